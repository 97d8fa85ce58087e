package types

import (
	"fmt"
)

// Reserved binding names that carry per-file deployment settings.
const (
	KeyStatementPrefix      = "statement_prefix"
	KeyExpressionDelimiters = "expression_delimiters"
	KeyBinary               = "binary"
	KeyTargets              = "targets"
)

// Default template syntax.
const (
	DefaultStatementPrefix = "#"
	DefaultExprOpen        = "{{"
	DefaultExprClose       = "}}"
)

// Settings is the typed view of the reserved bindings that control how
// a source file is deployed. It is re-derived, and re-validated, every
// time a binding layer is merged (config file, header script).
type Settings struct {
	StatementPrefix string
	ExprOpen        string
	ExprClose       string
	Binary          bool
	Targets         []string
}

// DefaultSettings returns the built-in defaults.
func DefaultSettings() Settings {
	return Settings{
		StatementPrefix: DefaultStatementPrefix,
		ExprOpen:        DefaultExprOpen,
		ExprClose:       DefaultExprClose,
	}
}

// SettingsFromBindings extracts and validates the reserved settings keys
// from a binding context. Absent keys keep their defaults; present keys
// with the wrong shape are an error.
func SettingsFromBindings(b Bindings) (Settings, error) {
	s := DefaultSettings()

	if v, ok := b[KeyStatementPrefix]; ok {
		prefix, ok := v.(string)
		if !ok || prefix == "" {
			return s, fmt.Errorf("%s must be a non-empty string, got %v", KeyStatementPrefix, v)
		}
		s.StatementPrefix = prefix
	}

	if v, ok := b[KeyExpressionDelimiters]; ok {
		delims, err := stringList(v)
		if err != nil || len(delims) != 2 || delims[0] == "" || delims[1] == "" {
			return s, fmt.Errorf("%s must be a pair of non-empty strings, got %v", KeyExpressionDelimiters, v)
		}
		s.ExprOpen, s.ExprClose = delims[0], delims[1]
	}

	if v, ok := b[KeyBinary]; ok {
		binary, ok := v.(bool)
		if !ok {
			return s, fmt.Errorf("%s must be a bool, got %v", KeyBinary, v)
		}
		s.Binary = binary
	}

	if v, ok := b[KeyTargets]; ok {
		targets, err := stringList(v)
		if err != nil {
			return s, fmt.Errorf("%s must be a list of strings, got %v", KeyTargets, v)
		}
		for _, t := range targets {
			if t == "" {
				return s, fmt.Errorf("%s must not contain empty paths", KeyTargets)
			}
		}
		s.Targets = targets
	}

	return s, nil
}

func stringList(v any) ([]string, error) {
	switch v := v.(type) {
	case []string:
		return v, nil
	case []any:
		out := make([]string, len(v))
		for i, e := range v {
			s, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("element %d is not a string", i)
			}
			out[i] = s
		}
		return out, nil
	default:
		return nil, fmt.Errorf("not a list")
	}
}
