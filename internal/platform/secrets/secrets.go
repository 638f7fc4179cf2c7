package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	vault "github.com/hashicorp/vault/api"
)

// ErrFieldMissing indicates the secret exists but lacks the requested field.
var ErrFieldMissing = errors.New("secrets: field missing")

// Config controls Vault client behaviour.
type Config struct {
	Address   string
	Token     string
	TokenFile string
	Namespace string
	MountPath string
}

// Manager reads KV v2 secrets from Vault.
type Manager struct {
	client *vault.Client
	mount  string
}

// New initialises a Vault client. The token falls back to TokenFile and then
// to VAULT_TOKEN.
func New(cfg Config) (*Manager, error) {
	if cfg.Address == "" {
		return nil, errors.New("secrets: vault address required")
	}
	if cfg.MountPath == "" {
		cfg.MountPath = "secret"
	}

	token := cfg.Token
	if token == "" && cfg.TokenFile != "" {
		b, err := os.ReadFile(cfg.TokenFile)
		if err != nil {
			return nil, fmt.Errorf("secrets: read token file: %w", err)
		}
		token = strings.TrimSpace(string(b))
	}
	if token == "" {
		token = os.Getenv("VAULT_TOKEN")
	}
	if token == "" {
		return nil, errors.New("secrets: vault token unavailable")
	}

	client, err := vault.NewClient(&vault.Config{Address: cfg.Address})
	if err != nil {
		return nil, fmt.Errorf("secrets: create client: %w", err)
	}
	client.SetToken(token)
	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}

	return &Manager{client: client, mount: cfg.MountPath}, nil
}

// GetKV retrieves the string values of a KV v2 secret.
func (m *Manager) GetKV(ctx context.Context, path string) (map[string]string, error) {
	if m == nil {
		return nil, errors.New("secrets: manager is nil")
	}
	secret, err := m.client.KVv2(m.mount).Get(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("secrets: kv get %q: %w", path, err)
	}

	payload := make(map[string]string, len(secret.Data))
	for k, v := range secret.Data {
		if str, ok := v.(string); ok {
			payload[k] = str
		}
	}
	return payload, nil
}

// Field returns a single string field of a KV v2 secret.
func (m *Manager) Field(ctx context.Context, path, field string) (string, error) {
	payload, err := m.GetKV(ctx, path)
	if err != nil {
		return "", err
	}
	value, ok := payload[field]
	if !ok {
		return "", fmt.Errorf("%w: %q in %q", ErrFieldMissing, field, path)
	}
	return value, nil
}
