package protocol

import (
	"errors"
	"fmt"
	"math"
)

// ErrMalformedFrame 帧结构无法解析（不是 map、缺少 type、字段类型错误等）
var ErrMalformedFrame = errors.New("malformed frame")

// Frame is the wire form of one message: a schema-less map
// {type, data, fmt, params}. One transport frame carries exactly one Frame.
//
// Data holds a string (STRING), a JSON-shaped value (JSON) or raw bytes
// (media). Fmt and Params are nil when absent.
type Frame struct {
	Type   int            `msgpack:"type" json:"type"`
	Data   any            `msgpack:"data" json:"data"`
	Fmt    *string        `msgpack:"fmt" json:"fmt"`
	Params map[string]any `msgpack:"params" json:"params"`
}

// FmtString returns the format or "" when absent.
func (f *Frame) FmtString() string {
	if f.Fmt == nil {
		return ""
	}
	return *f.Fmt
}

// SetFmt stores s, or clears the field when s is empty.
func (f *Frame) SetFmt(s string) {
	if s == "" {
		f.Fmt = nil
		return
	}
	f.Fmt = &s
}

// fromMap fills f from a generically decoded map. Shared by codecs whose
// decoder produces map[string]any.
func (f *Frame) fromMap(m map[string]any) error {
	rawType, ok := m["type"]
	if !ok {
		return fmt.Errorf("%w: missing field 'type'", ErrMalformedFrame)
	}
	t, err := toInt(rawType)
	if err != nil {
		return fmt.Errorf("%w: field 'type': %v", ErrMalformedFrame, err)
	}
	out := Frame{Type: t, Data: m["data"]}

	switch v := m["fmt"].(type) {
	case nil:
	case string:
		out.SetFmt(v)
	default:
		return fmt.Errorf("%w: field 'fmt' is %T", ErrMalformedFrame, v)
	}

	switch v := m["params"].(type) {
	case nil:
	case map[string]any:
		out.Params = v
	default:
		return fmt.Errorf("%w: field 'params' is %T", ErrMalformedFrame, v)
	}

	*f = out
	return nil
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int8:
		return int(n), nil
	case int16:
		return int(n), nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case uint8:
		return int(n), nil
	case uint16:
		return int(n), nil
	case uint32:
		return int(n), nil
	case uint64:
		if n > math.MaxInt32 {
			return 0, fmt.Errorf("out of range: %d", n)
		}
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("not an integer: %v", n)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("unexpected %T", v)
	}
}
