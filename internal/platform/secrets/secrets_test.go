package secrets

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeVault(t *testing.T, token string, secrets map[string]map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Vault-Token") != token {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"errors":["permission denied"]}`))
			return
		}
		data, ok := secrets[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"errors":[]}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"request_id": "1",
			"data": map[string]any{
				"data": data,
				"metadata": map[string]any{
					"created_time":    "2024-03-01T12:00:00.000000Z",
					"custom_metadata": nil,
					"deletion_time":   "",
					"destroyed":       false,
					"version":         1,
				},
			},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewValidation(t *testing.T) {
	t.Setenv("VAULT_TOKEN", "")

	_, err := New(Config{})
	assert.Error(t, err)

	_, err = New(Config{Address: "http://127.0.0.1:8200"})
	assert.Error(t, err, "token required")

	_, err = New(Config{Address: "http://127.0.0.1:8200", TokenFile: filepath.Join(t.TempDir(), "missing")})
	assert.Error(t, err)
}

func TestFieldReadsKVv2(t *testing.T) {
	srv := fakeVault(t, "s.test", map[string]map[string]any{
		"/v1/kv/data/fortunes": {"csv": "A,x\nB,y\n", "count": 2},
	})

	tokenFile := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(tokenFile, []byte("s.test\n"), 0o600))

	m, err := New(Config{Address: srv.URL, TokenFile: tokenFile, MountPath: "kv"})
	require.NoError(t, err)

	value, err := m.Field(context.Background(), "fortunes", "csv")
	require.NoError(t, err)
	assert.Equal(t, "A,x\nB,y\n", value)

	payload, err := m.GetKV(context.Background(), "fortunes")
	require.NoError(t, err)
	assert.NotContains(t, payload, "count", "non-string values are skipped")

	_, err = m.Field(context.Background(), "fortunes", "tsv")
	assert.ErrorIs(t, err, ErrFieldMissing)
}

func TestFieldPropagatesVaultErrors(t *testing.T) {
	srv := fakeVault(t, "s.test", nil)

	m, err := New(Config{Address: srv.URL, Token: "s.wrong"})
	require.NoError(t, err)

	_, err = m.Field(context.Background(), "fortunes", "csv")
	assert.Error(t, err)

	var nilManager *Manager
	_, err = nilManager.GetKV(context.Background(), "fortunes")
	assert.Error(t, err)
}
