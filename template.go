package colloquy

import (
	"fmt"
	"strings"
)

// Render interpolates {name} placeholders in a template with values from the
// given map. Unknown placeholders are left intact so a missing slot is
// visible rather than silently blank. Doubled braces escape a literal brace.
func Render(template string, values map[string]any) string {
	if !strings.ContainsRune(template, '{') {
		return template
	}
	var b strings.Builder
	b.Grow(len(template))
	for i := 0; i < len(template); i++ {
		c := template[i]
		if c == '{' && i+1 < len(template) && template[i+1] == '{' {
			b.WriteByte('{')
			i++
			continue
		}
		if c == '}' && i+1 < len(template) && template[i+1] == '}' {
			b.WriteByte('}')
			i++
			continue
		}
		if c != '{' {
			b.WriteByte(c)
			continue
		}
		end := strings.IndexByte(template[i:], '}')
		if end < 0 {
			b.WriteString(template[i:])
			break
		}
		name := template[i+1 : i+end]
		if v, ok := values[name]; ok {
			b.WriteString(renderValue(v))
		} else {
			b.WriteString(template[i : i+end+1])
		}
		i += end
	}
	return b.String()
}

func renderValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		// Render integral floats without the trailing ".0" JSON introduces.
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%g", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
