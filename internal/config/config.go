package config

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/example/fortune/internal/platform/logging"
)

// EnvPrefix namespaces environment overrides: FORTUNE_ROTATION_SLICE_SECONDS
// sets rotation.slice_seconds.
const EnvPrefix = "FORTUNE_"

// Config is the complete fortuned configuration after all layers are merged.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Source    SourceConfig    `koanf:"source"`
	Rotation  RotationConfig  `koanf:"rotation"`
	Logging   LoggingConfig   `koanf:"logging"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Metrics   MetricsConfig   `koanf:"metrics"`
	Tracing   TracingConfig   `koanf:"tracing"`
	Policy    PolicyConfig    `koanf:"policy"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Address         string        `koanf:"address"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// SourceConfig locates the fortune CSV and describes its dialect.
type SourceConfig struct {
	Path      string      `koanf:"path"`
	HasHeader bool        `koanf:"has_header"`
	Comment   string      `koanf:"comment"`
	Delimiter string      `koanf:"delimiter"`
	Vault     VaultConfig `koanf:"vault"`
}

// VaultConfig selects a KV v2 secret whose field holds the CSV document.
// When Path is set it takes precedence over Source.Path.
type VaultConfig struct {
	Address   string `koanf:"address"`
	Token     string `koanf:"token"`
	TokenFile string `koanf:"token_file"`
	Namespace string `koanf:"namespace"`
	Mount     string `koanf:"mount"`
	Path      string `koanf:"path"`
	Field     string `koanf:"field"`
}

// Enabled reports whether records come from Vault.
func (v VaultConfig) Enabled() bool { return v.Path != "" }

// RotationConfig sets the length of one time slice.
type RotationConfig struct {
	SliceSeconds float64 `koanf:"slice_seconds"`
}

// Slice converts the configured seconds to a duration.
func (r RotationConfig) Slice() time.Duration {
	return time.Duration(r.SliceSeconds * float64(time.Second))
}

// LoggingConfig feeds logging.Global.
type LoggingConfig struct {
	Level              string   `koanf:"level"`
	Environment        string   `koanf:"environment"`
	OutputPaths        []string `koanf:"output_paths"`
	ErrorOutput        []string `koanf:"error_output"`
	SamplingInitial    int      `koanf:"sampling_initial"`
	SamplingThereafter int      `koanf:"sampling_thereafter"`
}

// TelemetryConfig adds resource attributes to exported metrics and traces.
type TelemetryConfig struct {
	Attributes map[string]string `koanf:"attributes"`
}

// MetricsConfig points the metric pipeline at an OTLP/gRPC collector.
// An empty Endpoint keeps measurements in process.
type MetricsConfig struct {
	Endpoint string            `koanf:"endpoint"`
	Insecure bool              `koanf:"insecure"`
	Interval time.Duration     `koanf:"interval"`
	Timeout  time.Duration     `koanf:"timeout"`
	Headers  map[string]string `koanf:"headers"`
}

// TracingConfig points the trace pipeline at an OTLP/gRPC collector.
type TracingConfig struct {
	Endpoint    string            `koanf:"endpoint"`
	Insecure    bool              `koanf:"insecure"`
	SampleRatio float64           `koanf:"sample_ratio"`
	Timeout     time.Duration     `koanf:"timeout"`
	Headers     map[string]string `koanf:"headers"`
}

// PolicyConfig enables rego admission of loaded records.
type PolicyConfig struct {
	ModulePath string `koanf:"module_path"`
	Query      string `koanf:"query"`
}

// Enabled reports whether records are filtered through a rego policy.
func (p PolicyConfig) Enabled() bool { return p.ModulePath != "" }

// listKeys take comma-separated env values; mapKeys take "k=v,k2=v2".
var (
	listKeys = []string{"logging.output_paths", "logging.error_output"}
	mapKeys  = []string{"telemetry.attributes", "metrics.headers", "tracing.headers"}
)

// Load reads defaults, then the TOML file (if provided), then FORTUNE_ env vars.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := loadDefaults(k); err != nil {
		return nil, fmt.Errorf("config: defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("config: load %q: %w", configPath, err)
		}
	}

	// Only known keys are mapped so underscores inside key names survive, and
	// empty values never mask the file.
	known := make(map[string]string)
	for _, key := range append(append(k.Keys(), listKeys...), mapKeys...) {
		known[envName(key)] = key
	}
	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", func(name, value string) (string, interface{}) {
		key, ok := known[name]
		if !ok || value == "" {
			return "", nil
		}
		switch {
		case slices.Contains(listKeys, key):
			return key, splitList(value)
		case slices.Contains(mapKeys, key):
			return key, splitPairs(value)
		}
		return key, value
	}), nil); err != nil {
		return nil, fmt.Errorf("config: env: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}

func envName(key string) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// splitPairs parses "k=v,k2=v2"; items without "=" are dropped.
func splitPairs(value string) map[string]any {
	out := make(map[string]any)
	for _, item := range strings.Split(value, ",") {
		key, val, ok := strings.Cut(item, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		out[key] = strings.TrimSpace(val)
	}
	return out
}

// Validate reports every problem that would prevent startup.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Address == "" {
		errs = append(errs, errors.New("server.address is required"))
	}

	slice := c.Rotation.SliceSeconds
	if math.IsNaN(slice) || math.IsInf(slice, 0) || slice <= 0 {
		errs = append(errs, fmt.Errorf("rotation.slice_seconds must be positive, got %v", slice))
	} else if c.Rotation.Slice() <= 0 {
		errs = append(errs, fmt.Errorf("rotation.slice_seconds %v is below clock resolution", slice))
	}

	if c.Source.Vault.Enabled() {
		if c.Source.Vault.Address == "" {
			errs = append(errs, errors.New("source.vault.address is required when source.vault.path is set"))
		}
		if c.Source.Vault.Field == "" {
			errs = append(errs, errors.New("source.vault.field is required when source.vault.path is set"))
		}
	} else if c.Source.Path == "" {
		errs = append(errs, errors.New("source.path or source.vault.path is required"))
	}
	if _, err := c.Source.DelimiterRune(); err != nil {
		errs = append(errs, err)
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, err)
	}

	for name, d := range map[string]time.Duration{
		"metrics.interval": c.Metrics.Interval,
		"metrics.timeout":  c.Metrics.Timeout,
		"tracing.timeout":  c.Tracing.Timeout,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative, got %v", name, d))
		}
	}

	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("tracing.sample_ratio must be within [0,1], got %v", c.Tracing.SampleRatio))
	}

	if c.Policy.Enabled() && c.Policy.Query == "" {
		errs = append(errs, errors.New("policy.query is required when policy.module_path is set"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// DelimiterRune returns the single-character field delimiter.
func (s SourceConfig) DelimiterRune() (rune, error) {
	if s.Delimiter == "" {
		return ',', nil
	}
	r, size := utf8.DecodeRuneInString(s.Delimiter)
	if r == utf8.RuneError || size != len(s.Delimiter) || r == '\n' || r == '\r' || r == '"' {
		return 0, fmt.Errorf("source.delimiter %q must be a single character", s.Delimiter)
	}
	return r, nil
}
