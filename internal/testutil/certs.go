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

// Package testutil generates short-lived certificates for sync server
// TLS tests.
package testutil

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"time"
)

// TestCertificate is a generated certificate and its PEM encodings.
type TestCertificate struct {
	Cert    *x509.Certificate
	Key     *ecdsa.PrivateKey
	CertPEM []byte
	KeyPEM  []byte
}

// GenerateTestCA generates a self-signed CA valid for 24 hours.
func GenerateTestCA() (*TestCertificate, error) {
	template := &x509.Certificate{
		Subject:               pkix.Name{Organization: []string{"Test CA"}, CommonName: "Test CA"},
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
	}
	return issue(template, nil)
}

// GenerateTestServerCert generates a server certificate signed by ca.
// dnsNames defaults to localhost.
func GenerateTestServerCert(ca *TestCertificate, dnsNames ...string) (*TestCertificate, error) {
	if len(dnsNames) == 0 {
		dnsNames = []string{"localhost"}
	}
	template := &x509.Certificate{
		Subject:               pkix.Name{Organization: []string{"Test Server"}, CommonName: dnsNames[0]},
		DNSNames:              dnsNames,
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	return issue(template, ca)
}

// WriteServerFiles writes a CA and a localhost server certificate to dir
// and returns the cert, key and CA file paths.
func WriteServerFiles(dir string) (certFile, keyFile, caFile string, err error) {
	ca, err := GenerateTestCA()
	if err != nil {
		return "", "", "", err
	}
	server, err := GenerateTestServerCert(ca)
	if err != nil {
		return "", "", "", err
	}

	certFile = filepath.Join(dir, "server.pem")
	keyFile = filepath.Join(dir, "server-key.pem")
	caFile = filepath.Join(dir, "ca.pem")
	files := map[string][]byte{certFile: server.CertPEM, keyFile: server.KeyPEM, caFile: ca.CertPEM}
	for name, data := range files {
		if err := os.WriteFile(name, data, 0600); err != nil {
			return "", "", "", fmt.Errorf("failed to write %s: %w", name, err)
		}
	}
	return certFile, keyFile, caFile, nil
}

// issue signs template with parent, or self-signs when parent is nil.
func issue(template *x509.Certificate, parent *TestCertificate) (*TestCertificate, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial number: %w", err)
	}
	template.SerialNumber = serial
	template.NotBefore = time.Now()
	template.NotAfter = template.NotBefore.Add(24 * time.Hour)

	signer, signerKey := template, key
	if parent != nil {
		signer, signerKey = parent.Cert, parent.Key
	}
	der, err := x509.CreateCertificate(rand.Reader, template, signer, &key.PublicKey, signerKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal key: %w", err)
	}

	return &TestCertificate{
		Cert:    cert,
		Key:     key,
		CertPEM: pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
		KeyPEM:  pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}),
	}, nil
}
