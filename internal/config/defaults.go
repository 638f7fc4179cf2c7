package config

import (
	"github.com/knadh/koanf/v2"
)

func loadDefaults(k *koanf.Koanf) error {
	defaults := map[string]any{
		"server.address":          "0.0.0.0:3000",
		"server.read_timeout":     "10s",
		"server.write_timeout":    "15s",
		"server.idle_timeout":     "60s",
		"server.shutdown_timeout": "5s",

		"source.path":             "fortunes.csv",
		"source.has_header":       true,
		"source.comment":          "#",
		"source.delimiter":        ",",
		"source.vault.address":    "",
		"source.vault.token":      "",
		"source.vault.token_file": "",
		"source.vault.namespace":  "",
		"source.vault.mount":      "secret",
		"source.vault.path":       "",
		"source.vault.field":      "csv",

		"rotation.slice_seconds": 5,

		"logging.level":               "info",
		"logging.environment":         "dev",
		"logging.output_paths":        []string{"stdout"},
		"logging.error_output":        []string{"stderr"},
		"logging.sampling_initial":    0,
		"logging.sampling_thereafter": 0,

		"metrics.endpoint": "",
		"metrics.insecure": false,
		"metrics.interval": "15s",
		"metrics.timeout":  "5s",

		"tracing.endpoint":     "",
		"tracing.insecure":     false,
		"tracing.sample_ratio": 1.0,
		"tracing.timeout":      "5s",

		"policy.module_path": "",
		"policy.query":       "data.fortune.admit",
	}

	for key, value := range defaults {
		if err := k.Set(key, value); err != nil {
			return err
		}
	}
	return nil
}
