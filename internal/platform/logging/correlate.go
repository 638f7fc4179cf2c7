package logging

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxInboundID = 128

// Correlator creates per-request loggers with a correlation identifier.
type Correlator struct {
	key      string
	generate func() string
}

// NewCorrelator instantiates a correlation helper. IDs default to random UUIDs.
func NewCorrelator(key string, generator func() string) *Correlator {
	if key == "" {
		key = "request_id"
	}
	if generator == nil {
		generator = uuid.NewString
	}
	return &Correlator{key: key, generate: generator}
}

// Decorate attaches a correlation id to logger and context. A non-empty
// inbound id of reasonable length is reused, otherwise a new one is generated.
func (c *Correlator) Decorate(ctx context.Context, logger *zap.Logger, inbound string) (context.Context, *zap.Logger, string) {
	if c == nil {
		return ctx, logger, inbound
	}
	id := strings.TrimSpace(inbound)
	if id == "" || len(id) > maxInboundID {
		id = c.generate()
	}
	child := logger.With(zap.String(c.key, id))
	return Inject(ctx, child), child, id
}
