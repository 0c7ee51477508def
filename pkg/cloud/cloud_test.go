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

package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/jeremyhahn/go-docvault/pkg/correlation"
	"github.com/jeremyhahn/go-docvault/pkg/storage"
	"github.com/jeremyhahn/go-docvault/pkg/types"
)

func testPayload(b byte) *types.EncryptedPayload {
	return &types.EncryptedPayload{
		IV:         []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12},
		CipherText: []byte{b, b, b, b},
		Alg:        types.AlgAES256GCM,
		Ver:        types.PayloadVersion,
	}
}

func TestCheckUpsert(t *testing.T) {
	tests := []struct {
		name     string
		userID   string
		category string
		id       string
		payload  *types.EncryptedPayload
	}{
		{"no user", "", "documents", "doc-1", testPayload(1)},
		{"bad user", "a/b", "documents", "doc-1", testPayload(1)},
		{"bad category", "u", "", "doc-1", testPayload(1)},
		{"bad id", "u", "documents", "..", testPayload(1)},
		{"nil payload", "u", "documents", "doc-1", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkUpsert(tt.userID, tt.category, tt.id, tt.payload)
			assert.ErrorIs(t, err, types.ErrSync)
		})
	}
	assert.NoError(t, checkUpsert("u", "documents", "doc-1", testPayload(1)))
}

func TestStore_UpsertIdempotent(t *testing.T) {
	ctx := context.Background()
	clk := clockwork.NewFakeClockAt(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	s := NewStore(storage.NewMemory(), clk)
	defer s.Close()

	require.NoError(t, s.UpsertEncrypted(ctx, "user-1", "documents", "doc-1", testPayload(1)))
	require.NoError(t, s.UpsertEncrypted(ctx, "user-1", "documents", "doc-1", testPayload(1)))

	ids, err := s.List(ctx, "user-1", "documents")
	require.NoError(t, err)
	assert.Equal(t, []string{"doc-1"}, ids)

	clk.Advance(time.Minute)
	require.NoError(t, s.UpsertEncrypted(ctx, "user-1", "documents", "doc-1", testPayload(2)))

	rec, err := s.Get(ctx, "user-1", "documents", "doc-1")
	require.NoError(t, err)
	assert.Equal(t, []byte{2, 2, 2, 2}, rec.Payload.CipherText)
	assert.True(t, clk.Now().Equal(rec.UpdatedAt))
	assert.Equal(t, types.PayloadVersion, rec.SchemaVersion)
}

func TestStore_UsersAreIsolated(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.UpsertEncrypted(ctx, "alice", "documents", "doc-1", testPayload(1)))

	_, err := s.Get(ctx, "bob", "documents", "doc-1")
	assert.ErrorIs(t, err, types.ErrNotFound)

	ids, err := s.List(ctx, "bob", "documents")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

// fakeCollection emulates upsert-by-_id semantics.
type fakeCollection struct {
	mu    sync.Mutex
	docs  map[string]bson.M
	calls int
	err   error
}

func (f *fakeCollection) UpdateByID(ctx context.Context, id interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}

	upsert := false
	for _, o := range opts {
		if o.Upsert != nil && *o.Upsert {
			upsert = true
		}
	}
	key := fmt.Sprint(id)
	u := update.(bson.M)

	doc, exists := f.docs[key]
	if !exists {
		if !upsert {
			return &mongo.UpdateResult{}, nil
		}
		doc = bson.M{}
		for k, v := range u["$setOnInsert"].(bson.M) {
			doc[k] = v
		}
		f.docs[key] = doc
	}
	for k, v := range u["$set"].(bson.M) {
		doc[k] = v
	}
	if exists {
		return &mongo.UpdateResult{MatchedCount: 1, ModifiedCount: 1}, nil
	}
	return &mongo.UpdateResult{UpsertedCount: 1, UpsertedID: id}, nil
}

func TestMongoStore_UpsertIdempotent(t *testing.T) {
	ctx := context.Background()
	coll := &fakeCollection{docs: map[string]bson.M{}}
	m := &MongoStore{coll: coll, clock: clockwork.NewRealClock()}

	require.NoError(t, m.UpsertEncrypted(ctx, "user-1", "documents", "doc-1", testPayload(1)))
	require.NoError(t, m.UpsertEncrypted(ctx, "user-1", "documents", "doc-1", testPayload(2)))
	require.NoError(t, m.UpsertEncrypted(ctx, "user-1", "notes", "doc-1", testPayload(3)))

	assert.Equal(t, 3, coll.calls)
	assert.Len(t, coll.docs, 2)

	doc := coll.docs[fmt.Sprint(mongoID("user-1", "documents", "doc-1"))]
	require.NotNil(t, doc)
	assert.Equal(t, "user-1", doc["userId"])
	assert.Equal(t, []byte{2, 2, 2, 2}, doc["payload"].(*types.EncryptedPayload).CipherText)
	assert.Equal(t, types.PayloadVersion, doc["schemaVersion"])
}

func TestMongoStore_FailureIsSyncError(t *testing.T) {
	coll := &fakeCollection{docs: map[string]bson.M{}, err: errors.New("no primary")}
	m := &MongoStore{coll: coll, clock: clockwork.NewRealClock()}

	err := m.UpsertEncrypted(context.Background(), "user-1", "documents", "doc-1", testPayload(1))
	assert.ErrorIs(t, err, types.ErrSync)
}

func TestNewMongoStore_Validation(t *testing.T) {
	_, err := NewMongoStore(context.Background(), nil)
	assert.Error(t, err)
	_, err = NewMongoStore(context.Background(), &MongoConfig{URI: "mongodb://localhost"})
	assert.Error(t, err)
}

// fakeVault records KV v2 writes.
type fakeVault struct {
	mu     sync.Mutex
	writes map[string]map[string]interface{}
	tokens []string
	fail   bool
}

func (f *fakeVault) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.tokens = append(f.tokens, r.Header.Get("X-Vault-Token"))
	if f.fail {
		http.Error(w, `{"errors":["permission denied"]}`, http.StatusForbidden)
		return
	}

	var body map[string]interface{}
	raw, _ := io.ReadAll(r.Body)
	_ = json.Unmarshal(raw, &body)
	f.writes[r.URL.Path] = body["data"].(map[string]interface{})

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"data":{"version":1}}`))
}

func TestVaultKVStore_Upsert(t *testing.T) {
	fv := &fakeVault{writes: map[string]map[string]interface{}{}}
	srv := httptest.NewServer(fv)
	defer srv.Close()

	v, err := NewVaultKVStore(&VaultConfig{Address: srv.URL, Token: "root"})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, v.UpsertEncrypted(ctx, "user-1", "documents", "doc-1", testPayload(1)))
	require.NoError(t, v.UpsertEncrypted(ctx, "user-1", "documents", "doc-1", testPayload(2)))

	require.Len(t, fv.writes, 1)
	data := fv.writes["/v1/secret/data/user-1/documents/doc-1"]
	require.NotNil(t, data)
	assert.Equal(t, "AgICAg==", data["cipherText"])
	assert.Equal(t, types.AlgAES256GCM, data["alg"])
	assert.Equal(t, []string{"root", "root"}, fv.tokens)
}

func TestVaultKVStore_FailureIsSyncError(t *testing.T) {
	fv := &fakeVault{writes: map[string]map[string]interface{}{}, fail: true}
	srv := httptest.NewServer(fv)
	defer srv.Close()

	v, err := NewVaultKVStore(&VaultConfig{Address: srv.URL, Token: "root", Mount: "kv"})
	require.NoError(t, err)

	err = v.UpsertEncrypted(context.Background(), "user-1", "documents", "doc-1", testPayload(1))
	assert.ErrorIs(t, err, types.ErrSync)
}

func TestNewVaultKVStore_Validation(t *testing.T) {
	_, err := NewVaultKVStore(nil)
	assert.Error(t, err)
	_, err = NewVaultKVStore(&VaultConfig{Address: "http://127.0.0.1:8200"})
	assert.Error(t, err)
}

type staticToken string

func (s staticToken) BearerToken(ctx context.Context) (string, error) {
	return string(s), nil
}

func TestHTTPStore_Upsert(t *testing.T) {
	store := NewMemoryStore()
	var gotAuth, gotCID string

	r := chi.NewRouter()
	r.Put("/v1/users/{userID}/records/{category}/{id}", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotCID = r.Header.Get(correlation.CorrelationIDHeader)

		var req UpsertRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		err := store.UpsertEncrypted(r.Context(), chi.URLParam(r, "userID"),
			chi.URLParam(r, "category"), chi.URLParam(r, "id"), &req.Payload)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	h, err := NewHTTPStore(&HTTPConfig{BaseURL: srv.URL + "/", Tokens: staticToken("tok")})
	require.NoError(t, err)

	ctx := correlation.WithCorrelationID(context.Background(), "cid-1")
	require.NoError(t, h.UpsertEncrypted(ctx, "user-1", "documents", "doc-1", testPayload(1)))
	require.NoError(t, h.UpsertEncrypted(ctx, "user-1", "documents", "doc-1", testPayload(5)))

	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, "cid-1", gotCID)

	rec, err := store.Get(ctx, "user-1", "documents", "doc-1")
	require.NoError(t, err)
	assert.Equal(t, []byte{5, 5, 5, 5}, rec.Payload.CipherText)
}

func TestHTTPStore_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	h, err := NewHTTPStore(&HTTPConfig{BaseURL: srv.URL})
	require.NoError(t, err)

	err = h.UpsertEncrypted(context.Background(), "user-1", "documents", "doc-1", testPayload(1))
	assert.ErrorIs(t, err, types.ErrSync)
	assert.Contains(t, err.Error(), "429")
}
