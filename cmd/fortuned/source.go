package main

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/example/fortune/internal/config"
	"github.com/example/fortune/internal/platform/policy"
	"github.com/example/fortune/internal/platform/secrets"
	"github.com/example/fortune/pkg/fortune/loader"
	"github.com/example/fortune/pkg/fortune/record"
)

// loadStore reads the configured source, applies the admission policy and
// freezes the result into a store.
func loadStore(ctx context.Context, cfg config.SourceConfig, pol config.PolicyConfig, logger *zap.Logger) (*record.Store, error) {
	delim, err := cfg.DelimiterRune()
	if err != nil {
		return nil, err
	}
	opts := loader.Options{
		HasHeader: cfg.HasHeader,
		Comment:   cfg.Comment,
		Delimiter: delim,
	}

	var records []record.Record
	if cfg.Vault.Enabled() {
		records, err = loadFromVault(ctx, cfg.Vault, opts)
		if err != nil {
			return nil, err
		}
		logger.Info("records loaded from vault",
			zap.String("mount", cfg.Vault.Mount),
			zap.String("path", cfg.Vault.Path),
			zap.Int("records", len(records)),
		)
	} else {
		records, err = loader.LoadFile(cfg.Path, opts)
		if err != nil {
			return nil, err
		}
		logger.Info("records loaded from file",
			zap.String("path", cfg.Path),
			zap.Int("records", len(records)),
		)
	}

	if pol.Enabled() {
		engine, err := policy.LoadFile(ctx, pol.ModulePath, pol.Query)
		if err != nil {
			return nil, err
		}
		admitted, rejected, err := engine.Admit(ctx, records)
		if err != nil {
			return nil, err
		}
		for _, rej := range rejected {
			logger.Info("record rejected by policy",
				zap.Int("index", rej.Index),
				zap.String("attribution", rej.Record.Attribution),
				zap.Strings("reasons", rej.Reasons),
			)
		}
		records = admitted
	}

	store, err := record.NewStore(records)
	if err != nil {
		return nil, fmt.Errorf("fortuned: build store: %w", err)
	}
	return store, nil
}

func loadFromVault(ctx context.Context, cfg config.VaultConfig, opts loader.Options) ([]record.Record, error) {
	manager, err := secrets.New(secrets.Config{
		Address:   cfg.Address,
		Token:     cfg.Token,
		TokenFile: cfg.TokenFile,
		Namespace: cfg.Namespace,
		MountPath: cfg.Mount,
	})
	if err != nil {
		return nil, err
	}
	doc, err := manager.Field(ctx, cfg.Path, cfg.Field)
	if err != nil {
		return nil, err
	}
	records, err := loader.Parse(strings.NewReader(doc), opts)
	if err != nil {
		return nil, fmt.Errorf("vault %s/%s: %w", cfg.Mount, cfg.Path, err)
	}
	return records, nil
}
