package logging

import (
	"fmt"
	"regexp"

	"go.uber.org/zap/zapcore"
)

const defaultReplacement = "[REDACTED]"

// RedactionRule masks field values before emission. With only Key set the
// whole value is replaced; with Pattern set only matches are rewritten, in
// every field or just in Key.
type RedactionRule struct {
	Key         string
	Pattern     string
	Replacement string
}

// DefaultRedactions hides credentials that may reach a log line while
// configuring record sources.
var DefaultRedactions = []RedactionRule{
	{Key: "token"},
	{Key: "vault_token"},
}

type redaction struct {
	key         string
	replacement string
	pattern     *regexp.Regexp
}

func (r redaction) matches(key string) bool { return r.key == "" || r.key == key }

func (r redaction) apply(value string) string {
	if r.pattern == nil {
		return r.replacement
	}
	return r.pattern.ReplaceAllString(value, r.replacement)
}

// redactor rewrites string-like fields according to its rules in order.
type redactor []redaction

func newRedactor(rules []RedactionRule) (redactor, error) {
	var out redactor
	for _, rule := range rules {
		if rule.Key == "" && rule.Pattern == "" {
			continue
		}
		r := redaction{key: rule.Key, replacement: rule.Replacement}
		if r.replacement == "" {
			r.replacement = defaultReplacement
		}
		if rule.Pattern != "" {
			re, err := regexp.Compile(rule.Pattern)
			if err != nil {
				return nil, fmt.Errorf("invalid redaction pattern %q: %w", rule.Pattern, err)
			}
			r.pattern = re
		}
		out = append(out, r)
	}
	return out, nil
}

func (rs redactor) field(f zapcore.Field) zapcore.Field {
	for _, r := range rs {
		if !r.matches(f.Key) {
			continue
		}
		text, ok := fieldText(f)
		if !ok {
			continue
		}
		f = zapcore.Field{Key: f.Key, Type: zapcore.StringType, String: r.apply(text)}
	}
	return f
}

func (rs redactor) fields(in []zapcore.Field) []zapcore.Field {
	out := make([]zapcore.Field, len(in))
	for i := range in {
		out[i] = rs.field(in[i])
	}
	return out
}

// fieldText returns the rendered value of string, Stringer and error fields.
func fieldText(f zapcore.Field) (string, bool) {
	switch f.Type {
	case zapcore.StringType:
		return f.String, true
	case zapcore.StringerType:
		if s, ok := f.Interface.(fmt.Stringer); ok {
			return s.String(), true
		}
	case zapcore.ErrorType:
		if err, ok := f.Interface.(error); ok {
			return err.Error(), true
		}
	}
	return "", false
}

// redactingCore applies a redactor to fields added with With and to every
// entry written.
type redactingCore struct {
	zapcore.Core
	scrub redactor
}

func (c *redactingCore) With(fields []zapcore.Field) zapcore.Core {
	return &redactingCore{Core: c.Core.With(c.scrub.fields(fields)), scrub: c.scrub}
}

func (c *redactingCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *redactingCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	return c.Core.Write(ent, c.scrub.fields(fields))
}
