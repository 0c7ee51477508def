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

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-docvault/internal/config"
	"github.com/jeremyhahn/go-docvault/pkg/cloud"
	"github.com/jeremyhahn/go-docvault/pkg/crypto/kdf"
	"github.com/jeremyhahn/go-docvault/pkg/identity"
	"github.com/jeremyhahn/go-docvault/pkg/storage/file"
	"github.com/jeremyhahn/go-docvault/pkg/types"
)

const testPassphraseEnv = "DOCVAULT_TEST_PASSPHRASE"

// cli runs docvault commands against one data directory.
type cli struct {
	t       *testing.T
	dataDir string
	extra   []string
}

func newCLI(t *testing.T, extra ...string) *cli {
	t.Helper()
	t.Setenv(kdf.IterationsEnvVar, "1000")
	t.Setenv(testPassphraseEnv, "correct-horse-battery")
	return &cli{t: t, dataDir: t.TempDir(), extra: extra}
}

func (c *cli) run(stdin string, args ...string) (string, error) {
	c.t.Helper()
	cmd := NewRootCmd()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))

	base := []string{"--data-dir", c.dataDir, "--passphrase-env", testPassphraseEnv}
	cmd.SetArgs(append(append(base, c.extra...), args...))
	err := cmd.Execute()
	return out.String(), err
}

func (c *cli) mustRun(args ...string) string {
	c.t.Helper()
	out, err := c.run("", args...)
	require.NoError(c.t, err, "docvault %v", args)
	return out
}

func TestNewConfig_Defaults(t *testing.T) {
	cfg := NewConfig()
	assert.Equal(t, "text", cfg.OutputFormat)
	assert.False(t, cfg.Verbose)
	assert.Empty(t, cfg.PassphraseEnv)
	assert.NotNil(t, cfg.Stdin)
}

func TestInitPutGet(t *testing.T) {
	c := newCLI(t)

	out := c.mustRun("init")
	assert.Contains(t, out, "Vault initialized")

	_, err := c.run("", "init")
	assert.ErrorContains(t, err, "already initialized")

	c.mustRun("put", "documents", "doc-1", "--data", `{"name":"Last Will"}`)

	out = c.mustRun("get", "documents", "doc-1")
	assert.JSONEq(t, `{"name":"Last Will"}`, strings.TrimSpace(out))

	out = c.mustRun("get", "documents", "doc-1", "-o", "json")
	var record map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &record))
	assert.Equal(t, "documents", record["category"])
	assert.Equal(t, "doc-1", record["id"])
	meta := record["meta"].(map[string]interface{})
	assert.Equal(t, Version, meta["appVersion"])
}

func TestGet_WrongPassphrase(t *testing.T) {
	c := newCLI(t)
	c.mustRun("init")
	c.mustRun("put", "notes", "n-1", "--data", `"hello"`)

	t.Setenv(testPassphraseEnv, "wrong")
	_, err := c.run("", "get", "notes", "n-1")
	assert.ErrorContains(t, err, "unable to unlock")
}

func TestGet_Uninitialized(t *testing.T) {
	c := newCLI(t)
	_, err := c.run("", "get", "notes", "n-1")
	assert.ErrorContains(t, err, "unable to unlock")
}

func TestPut_Stdin(t *testing.T) {
	c := newCLI(t)
	c.mustRun("init")

	_, err := c.run(`{"phone":"555-0100"}`, "put", "contacts", "lawyer")
	require.NoError(t, err)

	out := c.mustRun("get", "contacts", "lawyer")
	assert.JSONEq(t, `{"phone":"555-0100"}`, strings.TrimSpace(out))
}

func TestPut_PassphraseFromStdin(t *testing.T) {
	c := newCLI(t)
	c.mustRun("init")

	cmd := NewRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader("correct-horse-battery\n{\"a\":1}"))
	cmd.SetArgs([]string{"--data-dir", c.dataDir, "put", "notes", "n-1"})
	require.NoError(t, cmd.Execute())

	out := c.mustRun("get", "notes", "n-1")
	assert.JSONEq(t, `{"a":1}`, strings.TrimSpace(out))
}

func TestPut_File(t *testing.T) {
	c := newCLI(t)
	c.mustRun("init")

	path := filepath.Join(t.TempDir(), "will.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"name":"Last Will"}`), 0600))
	c.mustRun("put", "documents", "will", "--file", path)

	out := c.mustRun("get", "documents", "will")
	assert.JSONEq(t, `{"name":"Last Will"}`, strings.TrimSpace(out))
}

func TestPut_InvalidInput(t *testing.T) {
	c := newCLI(t)
	c.mustRun("init")

	_, err := c.run("", "put", "notes", "n-1", "--data", "{not json")
	assert.ErrorContains(t, err, "not valid JSON")

	_, err = c.run("", "put", "notes", "n-1", "--data", "1", "--file", "x.json")
	assert.ErrorContains(t, err, "mutually exclusive")

	_, err = c.run("", "put", "bad/category", "n-1", "--data", "1")
	assert.Error(t, err)

	_, err = c.run("", "put", "notes")
	assert.Error(t, err)
}

func TestListAndRm(t *testing.T) {
	c := newCLI(t)
	c.mustRun("init")
	c.mustRun("put", "notes", "b", "--data", `"b"`)
	c.mustRun("put", "notes", "a", "--data", `"a"`)
	c.mustRun("put", "contacts", "x", "--data", `"x"`)

	assert.Equal(t, "a\nb\n", c.mustRun("list", "notes"))
	assert.Equal(t, "contacts\nnotes\n", c.mustRun("list"))

	c.mustRun("rm", "notes", "a")
	assert.Equal(t, "b\n", c.mustRun("list", "notes"))

	_, err := c.run("", "rm", "notes", "a")
	assert.ErrorContains(t, err, "not found")

	assert.Contains(t, c.mustRun("list", "empty"), "No records in empty")
}

func TestPasswd(t *testing.T) {
	c := newCLI(t)
	c.mustRun("init")
	c.mustRun("put", "notes", "n-1", "--data", `"kept"`)

	t.Setenv("DOCVAULT_TEST_NEW_PASSPHRASE", "new-passphrase")
	c.mustRun("passwd", "--new-passphrase-env", "DOCVAULT_TEST_NEW_PASSPHRASE")

	_, err := c.run("", "get", "notes", "n-1")
	assert.Error(t, err)

	t.Setenv(testPassphraseEnv, "new-passphrase")
	out := c.mustRun("get", "notes", "n-1")
	assert.Equal(t, `"kept"`, strings.TrimSpace(out))

	t.Setenv(testPassphraseEnv, "wrong")
	_, err = c.run("", "passwd", "--new-passphrase-env", "DOCVAULT_TEST_NEW_PASSPHRASE")
	assert.ErrorContains(t, err, "unable to change passphrase")
}

func TestMissingPassphraseEnv(t *testing.T) {
	c := newCLI(t)
	cmd := NewRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--data-dir", c.dataDir, "--passphrase-env", "DOCVAULT_TEST_UNSET", "init"})
	assert.ErrorContains(t, cmd.Execute(), "DOCVAULT_TEST_UNSET is not set")
}

func TestAudit(t *testing.T) {
	c := newCLI(t)
	c.mustRun("init")
	c.mustRun("put", "notes", "n-1", "--data", `"v1"`)
	c.mustRun("put", "notes", "n-1", "--data", `"v2"`)

	out := c.mustRun("audit", "--category", "notes", "-o", "json")
	var result struct {
		Events []map[string]interface{} `json:"events"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	require.Len(t, result.Events, 2)
	assert.Equal(t, "create", result.Events[0]["type"])
	assert.Equal(t, "update", result.Events[1]["type"])

	out = c.mustRun("audit", "--type", "key.set_passphrase")
	assert.Contains(t, out, "key.set_passphrase")
	assert.NotContains(t, out, "notes/n-1")

	assert.Contains(t, c.mustRun("audit", "--type", "sync"), "No audit events found")
}

func TestStatus(t *testing.T) {
	c := newCLI(t)

	out := c.mustRun("status", "-o", "json")
	var report StatusReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.False(t, report.Initialized)

	c.mustRun("init")
	c.mustRun("put", "notes", "n-1", "--data", `1`)
	c.mustRun("put", "notes", "n-2", "--data", `2`)

	out = c.mustRun("status", "-o", "json")
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.True(t, report.Initialized)
	assert.Equal(t, config.StorageFile, report.Storage)
	assert.Equal(t, 1000, report.Iterations)
	assert.Equal(t, map[string]int{"notes": 2}, report.Records)
	assert.Equal(t, c.dataDir, report.Path)

	assert.Contains(t, c.mustRun("status"), "Initialized:  true")
}

func TestSync_LocalAdapter(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(`
sync:
  enabled: true
  sync_documents: true
  adapter: local
  user_id: user-1
`), 0600))

	c := newCLI(t, "--config", configPath)
	c.mustRun("init")
	c.mustRun("put", "documents", "doc-1", "--data", `{"name":"Last Will"}`)
	c.mustRun("put", "notes", "n-1", "--data", `"note"`, "--sync")

	out := c.mustRun("sync", "documents")
	assert.Contains(t, out, "Synced 1 categories")

	backend, err := file.New(c.dataDir)
	require.NoError(t, err)
	remote := cloud.NewStore(backend, nil)

	rec, err := remote.Get(context.Background(), "user-1", "documents", "doc-1")
	require.NoError(t, err)
	assert.NotContains(t, string(rec.Payload.CipherText), "Last Will")
	_, err = remote.Get(context.Background(), "user-1", "notes", "n-1")
	require.NoError(t, err)

	out = c.mustRun("audit", "--type", "sync")
	assert.Contains(t, out, "documents/doc-1")
	assert.Contains(t, out, "notes/n-1")
}

func TestSync_DisabledCategoryReportsError(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(`
sync:
  enabled: true
  sync_documents: false
  adapter: local
  user_id: user-1
`), 0600))

	c := newCLI(t, "--config", configPath)
	c.mustRun("init")
	c.mustRun("put", "documents", "doc-1", "--data", `{"name":"Last Will"}`)

	out, err := c.run("", "sync", "documents")
	assert.ErrorIs(t, err, types.ErrSyncDisabled)
	assert.NotContains(t, out, "Synced")
}

func TestSync_NotConfigured(t *testing.T) {
	c := newCLI(t)
	c.mustRun("init")
	c.mustRun("put", "notes", "n-1", "--data", `1`)

	_, err := c.run("", "sync", "notes")
	assert.ErrorContains(t, err, "no cloud adapter")
}

func TestSettings_FlagOverrides(t *testing.T) {
	c := newCLI(t)
	_, err := c.run("", "--storage", "s3", "status")
	assert.ErrorContains(t, err, "invalid storage backend")

	out, err := c.run("", "--storage", "memory", "status", "-o", "json")
	require.NoError(t, err)
	var report StatusReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, config.StorageMemory, report.Storage)
	assert.Empty(t, report.Path)
}

func TestCreateUsers(t *testing.T) {
	cfg := NewConfig()

	settings := config.Default()
	settings.Sync.UserID = "user-1"
	id, ok := cfg.CreateUsers(settings).UserID(context.Background())
	assert.True(t, ok)
	assert.Equal(t, "user-1", id)

	j, err := identity.NewJWT(&identity.JWTConfig{Secret: []byte("0123456789abcdef0123456789abcdef")})
	require.NoError(t, err)
	token, err := j.Issue("user-from-token")
	require.NoError(t, err)

	settings = config.Default()
	settings.Sync.HTTP = &config.HTTPConfig{URL: "http://localhost", Token: token}
	id, ok = cfg.CreateUsers(settings).UserID(context.Background())
	assert.True(t, ok)
	assert.Equal(t, "user-from-token", id)

	_, ok = cfg.CreateUsers(config.Default()).UserID(context.Background())
	assert.False(t, ok)
}

func TestVersion(t *testing.T) {
	c := newCLI(t)
	assert.Contains(t, c.mustRun("version"), "docvault version")
}
