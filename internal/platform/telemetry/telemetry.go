// Package telemetry holds the pieces shared by the metric and trace
// pipelines: the service resource and the OTLP/gRPC collector settings.
package telemetry

import (
	"errors"
	"maps"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

const defaultExportTimeout = 5 * time.Second

// Service identifies the process in exported telemetry.
type Service struct {
	Name        string
	Version     string
	Environment string
	// Attributes are extra resource attributes, e.g. region or instance.
	Attributes map[string]string
}

// Resource describes svc with semantic-convention keys. Extra attributes are
// added in key order and never override the service identity.
func Resource(svc Service) (*resource.Resource, error) {
	if svc.Name == "" {
		return nil, errors.New("telemetry: service name is required")
	}
	version := svc.Version
	if version == "" {
		version = "dev"
	}

	attrs := make([]attribute.KeyValue, 0, len(svc.Attributes)+3)
	for _, key := range slices.Sorted(maps.Keys(svc.Attributes)) {
		switch attribute.Key(key) {
		case semconv.ServiceNameKey, semconv.ServiceVersionKey, semconv.DeploymentEnvironmentKey:
			continue
		}
		attrs = append(attrs, attribute.String(key, svc.Attributes[key]))
	}
	attrs = append(attrs,
		semconv.ServiceName(svc.Name),
		semconv.ServiceVersion(version),
		semconv.DeploymentEnvironment(svc.Environment),
	)
	return resource.NewWithAttributes(semconv.SchemaURL, attrs...), nil
}

// Collector describes an OTLP/gRPC collector. An empty Endpoint disables
// export.
type Collector struct {
	Endpoint  string
	Insecure  bool
	Timeout   time.Duration
	Headers   map[string]string
	UserAgent string
}

// Enabled reports whether an endpoint is configured.
func (c Collector) Enabled() bool { return c.Endpoint != "" }

// ExportTimeout bounds each export call.
func (c Collector) ExportTimeout() time.Duration {
	if c.Timeout <= 0 {
		return defaultExportTimeout
	}
	return c.Timeout
}

// Credentials returns plaintext or system-root TLS transport credentials.
func (c Collector) Credentials() credentials.TransportCredentials {
	if c.Insecure {
		return insecure.NewCredentials()
	}
	return credentials.NewClientTLSFromCert(nil, "")
}

// DialOptions returns the gRPC options common to both exporters.
func (c Collector) DialOptions() []grpc.DialOption {
	opts := []grpc.DialOption{grpc.WithTransportCredentials(c.Credentials())}
	if c.UserAgent != "" {
		opts = append(opts, grpc.WithUserAgent(c.UserAgent))
	}
	return opts
}

// HeaderCopy returns a private copy of the request headers, or nil.
func (c Collector) HeaderCopy() map[string]string {
	if len(c.Headers) == 0 {
		return nil
	}
	return maps.Clone(c.Headers)
}
