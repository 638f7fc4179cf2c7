package main

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
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/example/fortune/internal/config"
	"github.com/example/fortune/pkg/fortune/record"
)

const sampleCSV = `text,attribution,work,character
# classics
"To be, or not to be",Shakespeare,Hamlet,Hamlet
Stay hungry.,Steve Jobs
Anonymous words.,Anonymous
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func fileSource(path string) config.SourceConfig {
	return config.SourceConfig{Path: path, HasHeader: true, Comment: "#", Delimiter: ","}
}

func TestLoadStoreFromFile(t *testing.T) {
	store, err := loadStore(context.Background(), fileSource(writeFile(t, "fortunes.csv", sampleCSV)), config.PolicyConfig{}, zap.NewNop())
	require.NoError(t, err)
	require.Equal(t, 3, store.Len())
	assert.Equal(t, record.Record{
		Text:        "To be, or not to be",
		Attribution: "Shakespeare",
		Work:        "Hamlet",
		Character:   "Hamlet",
	}, store.At(0))
}

func TestLoadStoreMissingFile(t *testing.T) {
	_, err := loadStore(context.Background(), fileSource(filepath.Join(t.TempDir(), "nope.csv")), config.PolicyConfig{}, zap.NewNop())
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadStoreHeaderOnly(t *testing.T) {
	_, err := loadStore(context.Background(), fileSource(writeFile(t, "fortunes.csv", "text,attribution\n")), config.PolicyConfig{}, zap.NewNop())
	assert.ErrorIs(t, err, record.ErrEmptyStore)
}

func TestLoadStoreAppliesPolicy(t *testing.T) {
	rego := `package fortune

import rego.v1

default admit := true

admit := false if input.attribution == "Anonymous"
`
	core, logs := observer.New(zapcore.InfoLevel)
	store, err := loadStore(context.Background(),
		fileSource(writeFile(t, "fortunes.csv", sampleCSV)),
		config.PolicyConfig{ModulePath: writeFile(t, "fortune.rego", rego), Query: "data.fortune.admit"},
		zap.New(core))
	require.NoError(t, err)
	require.Equal(t, 2, store.Len())
	for _, r := range store.All() {
		assert.NotEqual(t, "Anonymous", r.Attribution)
	}

	rejected := logs.FilterMessage("record rejected by policy").All()
	require.Len(t, rejected, 1)
	assert.Equal(t, int64(2), rejected[0].ContextMap()["index"])
}

func TestLoadStorePolicyRejectsAll(t *testing.T) {
	rego := `package fortune

import rego.v1

admit := false
`
	_, err := loadStore(context.Background(),
		fileSource(writeFile(t, "fortunes.csv", sampleCSV)),
		config.PolicyConfig{ModulePath: writeFile(t, "fortune.rego", rego), Query: "data.fortune.admit"},
		zap.NewNop())
	assert.ErrorIs(t, err, record.ErrEmptyStore)
}

func TestLoadStoreFromVault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Vault-Token") != "s.fortune" || r.URL.Path != "/v1/secret/data/fortunes" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"errors":[]}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"data": map[string]any{"csv": "text,attribution\nFrom the vault.,Vault\n"},
				"metadata": map[string]any{
					"created_time":  "2024-03-01T12:00:00.000000Z",
					"deletion_time": "",
					"destroyed":     false,
					"version":       3,
				},
			},
		})
	}))
	t.Cleanup(srv.Close)

	src := fileSource("")
	src.Vault = config.VaultConfig{
		Address: srv.URL,
		Token:   "s.fortune",
		Mount:   "secret",
		Path:    "fortunes",
		Field:   "csv",
	}
	store, err := loadStore(context.Background(), src, config.PolicyConfig{}, zap.NewNop())
	require.NoError(t, err)
	require.Equal(t, 1, store.Len())
	assert.Equal(t, "From the vault.", store.At(0).Text)
}
