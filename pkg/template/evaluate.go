package template

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/arthur-debert/stencil/pkg/types"
)

// Evaluator evaluates a single expression with read access to the
// current bindings. The script engine satisfies this.
type Evaluator interface {
	Eval(src string, bindings types.Bindings) (any, error)
}

// Evaluate renders the block against the bindings. Every produced line
// is newline-terminated. The first expression failure aborts the walk
// and is returned with the sub-evaluator's message intact.
func (b *Block) Evaluate(ev Evaluator, bindings types.Bindings) (string, error) {
	lines, err := b.evaluate(ev, bindings)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, ln := range lines {
		sb.WriteString(ln)
		sb.WriteByte('\n')
	}
	return sb.String(), nil
}

func (b *Block) evaluate(ev Evaluator, bindings types.Bindings) ([]string, error) {
	var lines []string

	for _, n := range b.nodes {
		switch n := n.(type) {
		case literalNode:
			ln, err := n.render(ev, bindings)
			if err != nil {
				return nil, err
			}
			lines = append(lines, ln)
		case *ifBlockNode:
			branch, err := n.evaluate(ev, bindings)
			if err != nil {
				return nil, err
			}
			lines = append(lines, branch...)
		}
	}

	return lines, nil
}

// render evaluates a literal line chunk by chunk: expression chunks are
// evaluated and stringified, text chunks pass through verbatim.
func (n literalNode) render(ev Evaluator, bindings types.Bindings) (string, error) {
	var sb strings.Builder

	for _, chunk := range n.chunks {
		if !chunk.Expr {
			sb.WriteString(chunk.Text)
			continue
		}

		value, err := ev.Eval(chunk.Text, bindings)
		if err != nil {
			return "", fmt.Errorf("line %d: %w", n.number, err)
		}
		sb.WriteString(stringify(value))
	}

	return sb.String(), nil
}

// evaluate tries the sections strictly in declaration order and renders
// exactly the first one whose condition is absent or truthy. No matching
// section renders zero lines; that is not an error.
func (n *ifBlockNode) evaluate(ev Evaluator, bindings types.Bindings) ([]string, error) {
	for _, s := range n.sections {
		if !s.hasCond {
			return s.body.evaluate(ev, bindings)
		}

		value, err := ev.Eval(s.cond, bindings)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", s.number, err)
		}
		if truthy(value) {
			return s.body.evaluate(ev, bindings)
		}
	}

	return nil, nil
}

func stringify(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}

// truthy implements the sub-language's truth rules: nil, false, zero
// numbers and empty strings/collections are false, everything else true.
func truthy(v any) bool {
	if v == nil {
		return false
	}

	switch v := v.(type) {
	case bool:
		return v
	case string:
		return v != ""
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() != 0
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() > 0
	default:
		return true
	}
}
