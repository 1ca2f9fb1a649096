package routing

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// Sentinel errors for rule validation. Use errors.Is to test a RuleError.
var (
	ErrInvalidPath    = errors.New("invalid path")
	ErrInvalidPattern = errors.New("invalid path pattern")
	ErrInvalidRewrite = errors.New("invalid rewrite target")
	ErrInvalidBackend = errors.New("invalid backend")
	ErrInvalidHost    = errors.New("invalid host")

	// ErrNoRules is returned by callers that refuse to serve an empty table.
	ErrNoRules = errors.New("no routing rules")
)

// RuleError is a validation failure for a single rule.
type RuleError struct {
	Rule Rule
	Err  error
}

func (e *RuleError) Error() string {
	src := e.Rule.Source
	if src == "" {
		src = e.Rule.String()
	}

	return src + ": " + e.Err.Error()
}

func (e *RuleError) Unwrap() error {
	return e.Err
}

// InvalidRulesError lists the rules Compile skipped.
type InvalidRulesError struct {
	Errors []*RuleError
}

func (e *InvalidRulesError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, ruleErr := range e.Errors {
		msgs = append(msgs, ruleErr.Error())
	}

	return "invalid routing rules: " + strings.Join(msgs, "; ")
}

// Unwrap exposes the individual rule errors to errors.Is and errors.As.
func (e *InvalidRulesError) Unwrap() []error {
	errs := make([]error, 0, len(e.Errors))
	for _, ruleErr := range e.Errors {
		errs = append(errs, ruleErr)
	}

	return errs
}
