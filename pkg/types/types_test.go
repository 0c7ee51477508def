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

package types

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrappedDEK_JSONLayout(t *testing.T) {
	w := WrappedDEK{
		IV:         []byte{1, 2, 3},
		Salt:       []byte{4, 5, 6},
		CipherText: []byte{7, 8, 9},
		Alg:        AlgAES256GCM,
		Ver:        WrapVersion,
	}

	data, err := json.Marshal(w)
	require.NoError(t, err)
	assert.JSONEq(t, `{"iv":"AQID","salt":"BAUG","cipherText":"BwgJ","alg":"AES-256-GCM","ver":1}`, string(data))

	w.Iterations = 310000
	data, err = json.Marshal(w)
	require.NoError(t, err)
	assert.JSONEq(t, `{"iv":"AQID","salt":"BAUG","cipherText":"BwgJ","alg":"AES-256-GCM","ver":1,"iterations":310000}`, string(data))
}

func TestWrappedDEK_Validate(t *testing.T) {
	valid := &WrappedDEK{IV: []byte{1}, Salt: []byte{1}, CipherText: []byte{1}, Alg: AlgAES256GCM, Ver: 1}
	assert.NoError(t, valid.Validate())

	var nilWrap *WrappedDEK
	assert.ErrorIs(t, nilWrap.Validate(), ErrCorruptPayload)

	badAlg := *valid
	badAlg.Alg = "DES"
	assert.ErrorIs(t, badAlg.Validate(), ErrCorruptPayload)

	missing := *valid
	missing.Salt = nil
	assert.ErrorIs(t, missing.Validate(), ErrCorruptPayload)
}

func TestEncryptedPayload_Validate(t *testing.T) {
	p := &EncryptedPayload{IV: []byte{1}, CipherText: []byte{2}, Alg: AlgAES256GCM, Ver: PayloadVersion}
	assert.NoError(t, p.Validate())

	p.CipherText = nil
	assert.ErrorIs(t, p.Validate(), ErrCorruptPayload)
}

func TestEncryptedPayload_JSONFieldNames(t *testing.T) {
	data, err := json.Marshal(EncryptedPayload{IV: []byte{0}, CipherText: []byte{0}, Alg: AlgAES256GCM, Ver: 1})
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Contains(t, m, "iv")
	assert.Contains(t, m, "cipherText")
	assert.Contains(t, m, "alg")
	assert.Contains(t, m, "ver")
}

func TestValidateRecordKey(t *testing.T) {
	tests := []struct {
		name     string
		category string
		id       string
		ok       bool
	}{
		{"valid", "documents", "doc-1", true},
		{"empty category", "", "doc-1", false},
		{"empty id", "documents", "", false},
		{"slash", "documents", "a/b", false},
		{"backslash", "documents", `a\b`, false},
		{"dotdot", "..", "doc", false},
		{"null", "documents", "a\x00", false},
		{"reserved suffix", "documents", "x.tmp", false},
		{"too long", "documents", strings.Repeat("a", 300), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRecordKey(tt.category, tt.id)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidRecordKey)
			}
		})
	}
}
