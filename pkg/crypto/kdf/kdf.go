// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-docvault.
//
// go-docvault is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package kdf derives key-encryption keys from passphrases.
package kdf

import (
	"crypto"
	"errors"
	"os"
	"strconv"
	"strings"
)

// KDFAlgorithm represents the key derivation function algorithm type
type KDFAlgorithm string

const (
	// AlgorithmPBKDF2 represents Password-Based Key Derivation Function 2 (RFC 8018)
	AlgorithmPBKDF2 KDFAlgorithm = "PBKDF2"
)

// String returns the string representation of the KDF algorithm
func (a KDFAlgorithm) String() string {
	return string(a)
}

const (
	// DefaultPBKDF2Iterations is the iteration count used when no valid
	// override is configured.
	DefaultPBKDF2Iterations = 310000

	// IterationsEnvVar overrides the iteration count for newly wrapped keys.
	IterationsEnvVar = "DOCVAULT_PBKDF2_ITERATIONS"

	// DefaultKeyLength is the derived key length in bytes.
	DefaultKeyLength = 32

	// DefaultSaltLength is the salt length generated for new wrappings.
	DefaultSaltLength = 16
)

// KDFParams contains parameters for key derivation
type KDFParams struct {
	// Algorithm specifies which KDF algorithm to use
	Algorithm KDFAlgorithm

	// Salt is the cryptographic salt (random and unique per wrapping)
	Salt []byte

	// Iterations specifies the number of iterations
	Iterations int

	// KeyLength is the desired output key length in bytes
	KeyLength int

	// Hash is the hash function to use
	Hash crypto.Hash
}

// KDFAdapter is the interface for key derivation function adapters
type KDFAdapter interface {
	// DeriveKey derives a key from the input key material using the specified parameters
	DeriveKey(ikm []byte, params *KDFParams) ([]byte, error)

	// Algorithm returns the KDF algorithm this adapter implements
	Algorithm() KDFAlgorithm

	// ValidateParams validates the KDF parameters for this algorithm
	ValidateParams(params *KDFParams) error
}

// Common errors
var (
	// ErrInvalidParams indicates the parameter struct is missing
	ErrInvalidParams = errors.New("kdf: missing parameters")

	// ErrInvalidSalt indicates the salt is invalid (nil, empty, or too short)
	ErrInvalidSalt = errors.New("kdf: invalid salt")

	// ErrInvalidKeyLength indicates the requested key length is invalid
	ErrInvalidKeyLength = errors.New("kdf: invalid key length")

	// ErrInvalidIterations indicates the iteration count is invalid
	ErrInvalidIterations = errors.New("kdf: invalid iterations")

	// ErrInvalidHash indicates the hash function is invalid or not supported
	ErrInvalidHash = errors.New("kdf: invalid or unsupported hash function")

	// ErrInvalidIKM indicates the input key material is invalid
	ErrInvalidIKM = errors.New("kdf: invalid input key material")

	// ErrUnsupportedAlgorithm indicates the algorithm is not supported by this adapter
	ErrUnsupportedAlgorithm = errors.New("kdf: unsupported algorithm")
)

// DefaultParams returns the default PBKDF2-SHA256 parameters for salt.
func DefaultParams(salt []byte, iterations int) *KDFParams {
	return &KDFParams{
		Algorithm:  AlgorithmPBKDF2,
		Salt:       salt,
		Iterations: iterations,
		KeyLength:  DefaultKeyLength,
		Hash:       crypto.SHA256,
	}
}

// ParseIterations parses an iteration count override. Values that are not
// base-10 integers or fall below MinPBKDF2Iterations are rejected.
func ParseIterations(raw string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, ErrInvalidIterations
	}
	if n < MinPBKDF2Iterations {
		return 0, ErrInvalidIterations
	}
	return n, nil
}

// IterationsFromEnv returns the iteration count from IterationsEnvVar.
// An absent or invalid value yields DefaultPBKDF2Iterations and ok=false.
func IterationsFromEnv() (iterations int, ok bool) {
	raw, set := os.LookupEnv(IterationsEnvVar)
	if !set || strings.TrimSpace(raw) == "" {
		return DefaultPBKDF2Iterations, false
	}
	n, err := ParseIterations(raw)
	if err != nil {
		return DefaultPBKDF2Iterations, false
	}
	return n, true
}
