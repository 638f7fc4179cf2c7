package policy

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/open-policy-agent/opa/rego"
	"github.com/open-policy-agent/opa/storage/inmem"

	"github.com/example/fortune/pkg/fortune/record"
)

// Config defines policy compilation inputs.
type Config struct {
	Query       string
	Modules     map[string]string
	Data        map[string]any
	EvalTimeout time.Duration
}

// Decision captures the outcome of evaluating one input.
type Decision struct {
	Allow     bool
	Reasons   []string
	RawResult any
}

// Rejection records a record the policy refused.
type Rejection struct {
	Index   int
	Record  record.Record
	Reasons []string
}

// Engine encapsulates a compiled rego query.
type Engine struct {
	query   rego.PreparedEvalQuery
	timeout time.Duration
}

// New compiles the policy modules and query.
func New(ctx context.Context, cfg Config) (*Engine, error) {
	if cfg.Query == "" {
		return nil, errors.New("policy: query cannot be empty")
	}

	opts := []func(*rego.Rego){
		rego.Query(cfg.Query),
	}
	for path, module := range cfg.Modules {
		opts = append(opts, rego.Module(path, module))
	}
	if cfg.Data != nil {
		opts = append(opts, rego.Store(inmem.NewFromObject(cfg.Data)))
	}

	prepared, err := rego.New(opts...).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("policy: compile: %w", err)
	}

	timeout := cfg.EvalTimeout
	if timeout <= 0 {
		timeout = 250 * time.Millisecond
	}
	return &Engine{query: prepared, timeout: timeout}, nil
}

// LoadFile compiles a single module from disk.
func LoadFile(ctx context.Context, path, query string) (*Engine, error) {
	module, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("policy: read module: %w", err)
	}
	return New(ctx, Config{
		Query:   query,
		Modules: map[string]string{path: string(module)},
	})
}

// Evaluate runs the prepared query against input.
func (e *Engine) Evaluate(ctx context.Context, input any) (Decision, error) {
	var zero Decision
	if e == nil {
		return zero, errors.New("policy: engine is nil")
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	rs, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return zero, fmt.Errorf("policy: eval: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		// An undefined decision does not admit.
		return Decision{Allow: false}, nil
	}
	return normalizeResult(rs[0].Expressions[0].Value)
}

// Admit splits records into those the policy allows and those it rejects,
// preserving order.
func (e *Engine) Admit(ctx context.Context, records []record.Record) ([]record.Record, []Rejection, error) {
	admitted := make([]record.Record, 0, len(records))
	var rejected []Rejection
	for i, rec := range records {
		decision, err := e.Evaluate(ctx, toInput(rec))
		if err != nil {
			return nil, nil, fmt.Errorf("policy: record %d: %w", i, err)
		}
		if decision.Allow {
			admitted = append(admitted, rec)
			continue
		}
		rejected = append(rejected, Rejection{Index: i, Record: rec, Reasons: decision.Reasons})
	}
	return admitted, rejected, nil
}

func toInput(rec record.Record) map[string]any {
	return map[string]any{
		"text":        rec.Text,
		"attribution": rec.Attribution,
		"work":        rec.Work,
		"character":   rec.Character,
	}
}

func normalizeResult(val any) (Decision, error) {
	switch v := val.(type) {
	case bool:
		return Decision{Allow: v, RawResult: v}, nil
	case map[string]any:
		decision := Decision{RawResult: v}
		if allow, ok := v["allow"].(bool); ok {
			decision.Allow = allow
		}
		if reasons, ok := v["reasons"].([]any); ok {
			for _, r := range reasons {
				if str, ok := r.(string); ok {
					decision.Reasons = append(decision.Reasons, str)
				}
			}
		}
		return decision, nil
	default:
		return Decision{}, fmt.Errorf("policy: unsupported result type %T", v)
	}
}
