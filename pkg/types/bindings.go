// Package types holds the shared data types of stencil: the binding
// context visible to templates and the typed per-file settings derived
// from it.
package types

// Bindings is the ordered name-to-value context a template is rendered
// against. Values are layered: built-in defaults, config-file bindings,
// header overrides, then per-target values such as "filename" and
// "target".
type Bindings map[string]any

// Clone returns a copy of the bindings that is safe to mutate without
// leaking changes into the receiver. Maps and slices are copied
// recursively; scalars and functions are shared.
func (b Bindings) Clone() Bindings {
	clone := make(Bindings, len(b))
	for k, v := range b {
		clone[k] = cloneValue(v)
	}
	return clone
}

// Merge copies every entry of other into b, overwriting existing keys.
func (b Bindings) Merge(other Bindings) {
	for k, v := range other {
		b[k] = cloneValue(v)
	}
}

func cloneValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(v))
		for k, e := range v {
			m[k] = cloneValue(e)
		}
		return m
	case []any:
		s := make([]any, len(v))
		for i, e := range v {
			s[i] = cloneValue(e)
		}
		return s
	case []string:
		s := make([]string, len(v))
		copy(s, v)
		return s
	default:
		return v
	}
}
