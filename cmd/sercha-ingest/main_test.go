package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-ingest/internal/adapters/driven/auth"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		configFile = ""
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sercha-ingest.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestVersionCommand_JSON(t *testing.T) {
	out, err := execute(t, "version", "--json")
	require.NoError(t, err)

	var info map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, version, info["version"])
	assert.NotEmpty(t, info["go"])
	assert.Contains(t, info["platform"], "/")
}

func TestTokenHashKey(t *testing.T) {
	out, err := execute(t, "token", "hash-key", "s3cret-key")
	require.NoError(t, err)

	hash := strings.TrimSpace(out)
	adapter := auth.NewAdapter("", hash)
	assert.True(t, adapter.VerifyAPIKey("s3cret-key"))
	assert.False(t, adapter.VerifyAPIKey("other-key"))
}

func TestTokenHashKey_FromStdin(t *testing.T) {
	tokenHashKeyCmd.SetIn(strings.NewReader("piped-key\n"))
	t.Cleanup(func() { tokenHashKeyCmd.SetIn(nil) })

	out, err := execute(t, "token", "hash-key")
	require.NoError(t, err)
	assert.True(t, auth.NewAdapter("", strings.TrimSpace(out)).VerifyAPIKey("piped-key"))
}

func TestTokenIssue(t *testing.T) {
	path := writeConfig(t, `
database:
  url: postgres://localhost/sercha
auth:
  jwt_secret: test-secret-0123456789
`)

	out, err := execute(t, "--config", path, "token", "issue", "--subject", "ci", "--scope", "project-1", "--json")
	require.NoError(t, err)

	var issued struct {
		Token   string `json:"token"`
		Subject string `json:"subject"`
		Scope   string `json:"scope"`
	}
	require.NoError(t, json.Unmarshal([]byte(out[strings.Index(out, "{"):]), &issued))
	assert.Equal(t, "ci", issued.Subject)
	assert.Equal(t, "project-1", issued.Scope)

	claims, err := auth.NewAdapter("test-secret-0123456789").ParseToken(issued.Token)
	require.NoError(t, err)
	assert.Equal(t, "ci", claims.Subject)
	assert.Equal(t, "project-1", claims.Scope)
}

func TestTokenIssue_RequiresSecret(t *testing.T) {
	path := writeConfig(t, `
database:
  url: postgres://localhost/sercha
auth:
  api_key_hashes: ["$2a$10$abcdefghijklmnopqrstuv"]
`)

	_, err := execute(t, "--config", path, "token", "issue", "--subject", "ci")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt_secret")
}

func TestInvalidConfigIsRejected(t *testing.T) {
	path := writeConfig(t, `
log:
  level: loud
`)

	_, err := execute(t, "--config", path, "migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log.level")
}

func TestMemoryQueueRequiresAll(t *testing.T) {
	path := writeConfig(t, `
database:
  url: postgres://localhost/sercha
queue:
  backend: memory
auth:
  jwt_secret: test-secret-0123456789
`)

	_, err := execute(t, "--config", path, "worker")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all command")
}
