package compliance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Status enumerates check result states.
type Status string

const (
	StatusUnknown Status = "UNKNOWN"
	StatusPass    Status = "PASS"
	StatusWarn    Status = "WARN"
	StatusFail    Status = "FAIL"
)

// Result captures a check outcome.
type Result struct {
	Name     string        `json:"name"`
	Status   Status        `json:"status"`
	Details  string        `json:"details,omitempty"`
	Error    error         `json:"-"`
	Duration time.Duration `json:"duration_ns"`
}

// Check defines the readiness validation contract.
type Check interface {
	Name() string
	Run(ctx context.Context) Result
}

type namedCheck struct {
	name string
	fn   func(ctx context.Context) Result
}

func (c namedCheck) Name() string                   { return c.name }
func (c namedCheck) Run(ctx context.Context) Result { return c.fn(ctx) }

// Named adapts a function to the Check interface.
func Named(name string, fn func(ctx context.Context) Result) Check {
	return namedCheck{name: name, fn: fn}
}

// Pass and Fail build results for use inside checks.
func Pass(details string) Result { return Result{Status: StatusPass, Details: details} }

func Fail(err error) Result { return Result{Status: StatusFail, Error: err, Details: err.Error()} }

// Checker orchestrates check execution and aggregation.
type Checker struct {
	mu      sync.RWMutex
	checks  []Check
	timeout time.Duration
}

// NewChecker builds an aggregator from the provided checks. Each check gets
// at most timeout to complete.
func NewChecker(timeout time.Duration, checks ...Check) *Checker {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Checker{checks: checks, timeout: timeout}
}

// Register appends additional checks at runtime.
func (c *Checker) Register(checks ...Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks = append(c.checks, checks...)
}

// Evaluate runs all registered checks concurrently and returns a summary.
func (c *Checker) Evaluate(ctx context.Context) Summary {
	start := time.Now()
	checks := c.snapshot()
	results := make([]Result, len(checks))

	var wg sync.WaitGroup
	for idx, check := range checks {
		wg.Add(1)
		go func(i int, chk Check) {
			defer wg.Done()
			checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()

			begin := time.Now()
			result := chk.Run(checkCtx)
			if result.Name == "" {
				result.Name = chk.Name()
			}
			result.Duration = time.Since(begin)
			if result.Status == "" {
				result.Status = StatusUnknown
			}
			results[i] = result
		}(idx, check)
	}
	wg.Wait()

	summary := Summary{
		Results:     results,
		GeneratedAt: time.Now(),
		Elapsed:     time.Since(start),
	}
	for _, result := range results {
		switch result.Status {
		case StatusFail, StatusUnknown:
			summary.Failed = append(summary.Failed, result)
		case StatusWarn:
			summary.Warnings = append(summary.Warnings, result)
		}
		if result.Error != nil {
			summary.Errors = append(summary.Errors, fmt.Errorf("%s: %w", result.Name, result.Error))
		}
	}
	return summary
}

func (c *Checker) snapshot() []Check {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Check, len(c.checks))
	copy(out, c.checks)
	return out
}

// Summary aggregates readiness posture.
type Summary struct {
	Results     []Result      `json:"results"`
	Failed      []Result      `json:"-"`
	Warnings    []Result      `json:"-"`
	Errors      []error       `json:"-"`
	GeneratedAt time.Time     `json:"generated_at"`
	Elapsed     time.Duration `json:"elapsed_ns"`
}

// Healthy reports whether no check failed. Warnings do not affect readiness.
func (s Summary) Healthy() bool {
	return len(s.Failed) == 0
}

// Error aggregates errors for easy reporting.
func (s Summary) Error() error {
	if len(s.Errors) == 0 {
		return nil
	}
	return errors.Join(s.Errors...)
}
