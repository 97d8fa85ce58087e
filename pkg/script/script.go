// Package script is stencil's embeddable expression and statement
// engine, built on expr-lang. Expressions see the current bindings plus
// a registered built-in set; statement scripts (headers, config
// bindings) may define or overwrite bindings. Neither facility sandboxes
// side effects: built-ins such as env read the real host environment.
package script

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/expr-lang/expr"

	"github.com/arthur-debert/stencil/pkg/types"
)

// Engine evaluates expressions and statement scripts against bindings.
type Engine struct {
	builtins map[string]any
}

// NewEngine creates an engine with the standard built-in set registered.
func NewEngine() *Engine {
	return &Engine{
		builtins: map[string]any{
			"env": func(name string) string { return os.Getenv(name) },
		},
	}
}

// EvalError is the single opaque failure both facilities surface. The
// underlying compile or runtime message is preserved verbatim.
type EvalError struct {
	Source string
	Err    error
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("could not evaluate %q: %v", e.Source, e.Err)
}

func (e *EvalError) Unwrap() error {
	return e.Err
}

// Eval evaluates a single expression with read access to the bindings.
func (e *Engine) Eval(src string, bindings types.Bindings) (any, error) {
	env := e.environment(bindings)

	program, err := expr.Compile(src, expr.Env(env))
	if err != nil {
		return nil, &EvalError{Source: src, Err: err}
	}

	out, err := expr.Run(program, env)
	if err != nil {
		return nil, &EvalError{Source: src, Err: err}
	}

	return out, nil
}

var assignTarget = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Exec runs a statement script line by line against the bindings. Each
// non-blank, non-comment line is either an assignment
// "name = expression", which defines or overwrites a binding, or a bare
// expression evaluated for effect. Errors carry the 1-based script line.
func (e *Engine) Exec(lines []string, bindings types.Bindings) error {
	for i, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if name, src, ok := splitAssignment(line); ok {
			value, err := e.Eval(src, bindings)
			if err != nil {
				return fmt.Errorf("line %d: %w", i+1, err)
			}
			bindings[name] = value
			continue
		}

		if _, err := e.Eval(line, bindings); err != nil {
			return fmt.Errorf("line %d: %w", i+1, err)
		}
	}

	return nil
}

// splitAssignment recognizes "name = expression" lines. A "=" that is
// part of a comparison operator (==, !=, <=, >=) does not count, and the
// left-hand side must be a bare identifier.
func splitAssignment(line string) (name, src string, ok bool) {
	i := strings.Index(line, "=")
	if i < 0 || i+1 >= len(line) || line[i+1] == '=' {
		return "", "", false
	}

	name = strings.TrimSpace(line[:i])
	if !assignTarget.MatchString(name) {
		return "", "", false
	}

	src = strings.TrimSpace(line[i+1:])
	if src == "" {
		return "", "", false
	}

	return name, src, true
}

// environment merges the built-in set under the current bindings.
// Bindings shadow built-ins of the same name.
func (e *Engine) environment(bindings types.Bindings) map[string]any {
	env := make(map[string]any, len(e.builtins)+len(bindings))
	for k, v := range e.builtins {
		env[k] = v
	}
	for k, v := range bindings {
		env[k] = v
	}
	return env
}
