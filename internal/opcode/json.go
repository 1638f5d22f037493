package opcode

import (
	"encoding/json"
	"fmt"
)

// UnmarshalJSON accepts a JSON number, string, or bool.
func (l *Literal) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case float64:
		*l = Number(t)
	case string:
		*l = Text(t)
	case bool:
		*l = Flag(t)
	default:
		return fmt.Errorf("literal must be a number, string, or bool, got %T", v)
	}
	return nil
}

func (l Literal) MarshalJSON() ([]byte, error) {
	switch l.Kind {
	case LiteralNumber:
		return json.Marshal(l.Num)
	case LiteralString:
		return json.Marshal(l.Str)
	case LiteralBool:
		return json.Marshal(l.Bool)
	}
	return nil, fmt.Errorf("literal has no kind")
}
