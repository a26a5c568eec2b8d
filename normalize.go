package colloquy

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Normalizer converts a raw extracted slot value into the typed value the
// slot declaration expects. The engine runs every slot_value through the
// configured normalizer before it touches state.
type Normalizer interface {
	Normalize(spec SlotSpec, raw any) (any, error)
}

// DefaultNormalizer applies Unicode NFC normalization and whitespace
// trimming to strings, and coerces declared number/bool slots from their
// string forms. Unknown slot types pass through unchanged.
type DefaultNormalizer struct{}

var _ Normalizer = DefaultNormalizer{}

// Normalize implements Normalizer.
func (DefaultNormalizer) Normalize(spec SlotSpec, raw any) (any, error) {
	s, isString := raw.(string)
	if isString {
		s = strings.TrimSpace(norm.NFC.String(s))
		raw = s
	}

	switch spec.Type {
	case "", "string", "date":
		return raw, nil
	case "number":
		if f, ok := toFloat(raw); ok {
			return f, nil
		}
		return nil, fmt.Errorf("value %v is not a number", raw)
	case "bool":
		switch v := raw.(type) {
		case bool:
			return v, nil
		case string:
			b, err := strconv.ParseBool(strings.ToLower(v))
			if err != nil {
				return nil, fmt.Errorf("value %q is not a bool", v)
			}
			return b, nil
		}
		return nil, fmt.Errorf("value %v is not a bool", raw)
	default:
		return raw, nil
	}
}
