package execctx

import (
	"fmt"
	"strings"
)

// PrepareInput builds the input map an executor passes to an agent: starting
// from the node's declared input_data, it injects dependency_<dep> for each
// dependency whose output has been published, then resolves ${KEY}
// placeholders against the context together with the injected
// dependency_<dep> keys. A
// dependency whose upstream node was SKIPPED (no output written) is not
// injected; downstream sees its original input_data for that key unchanged.
func PrepareInput(c *Context, inputData map[string]any, dependencies []string) map[string]any {
	prepared := cloneMap(inputData)
	scope := &Context{values: c.Snapshot()}

	for _, dep := range dependencies {
		if !c.NodeOutputExists(dep) {
			continue
		}
		output, _ := c.Get("node_" + dep + "_output")
		prepared["dependency_"+dep] = output
		scope.values["dependency_"+dep] = output
	}

	return ResolveTemplates(prepared, scope).(map[string]any)
}

// ResolveTemplates recurses into maps and lists, replacing ${KEY} in every
// string value. Non-string scalars pass through unchanged. Resolution is
// pure: it never mutates the context and never errors — an unresolved key
// leaves its literal placeholder in place.
func ResolveTemplates(v any, c *Context) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[k] = ResolveTemplates(inner, c)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = ResolveTemplates(inner, c)
		}
		return out
	case string:
		return resolveString(val, c)
	default:
		return v
	}
}

// resolveString replaces every ${KEY} occurrence, where KEY is a bare
// identifier (letters, digits, underscore). Keys not present in the context
// are left as the literal placeholder text.
func resolveString(s string, c *Context) string {
	if !strings.Contains(s, "${") {
		return s
	}

	var b strings.Builder
	i := 0
	for i < len(s) {
		start := strings.Index(s[i:], "${")
		if start == -1 {
			b.WriteString(s[i:])
			break
		}
		start += i
		b.WriteString(s[i:start])

		j := start + 2
		for j < len(s) && isIdentByte(s[j]) {
			j++
		}
		if j < len(s) && s[j] == '}' && j > start+2 {
			key := s[start+2 : j]
			if val, ok := c.Get(key); ok {
				b.WriteString(stringify(val))
			} else {
				b.WriteString(s[start : j+1])
			}
			i = j + 1
			continue
		}

		// Not a well-formed ${identifier}; emit the literal "${" and
		// continue scanning right after it.
		b.WriteString("${")
		i = start + 2
	}
	return b.String()
}

func isIdentByte(b byte) bool {
	return b == '_' ||
		(b >= 'a' && b <= 'z') ||
		(b >= 'A' && b <= 'Z') ||
		(b >= '0' && b <= '9')
}

func stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprintf("%v", val)
	}
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
