package protocol

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// jsonFrame 是 Frame 的 JSON 形式；二进制 data 以 base64 字符串传输并用 binary 标记
type jsonFrame struct {
	Type   *int           `json:"type"`
	Data   any            `json:"data"`
	Binary bool           `json:"binary,omitempty"`
	Fmt    *string        `json:"fmt"`
	Params map[string]any `json:"params"`
}

// NewJSONCodec 返回 JSON 编码器，便于调试与抓包查看
func NewJSONCodec() *GenericCodec {
	return NewGenericCodec(Json, encodeJSON, decodeJSON)
}

func encodeJSON(f *Frame) ([]byte, error) {
	t := f.Type
	jf := jsonFrame{Type: &t, Data: f.Data, Fmt: f.Fmt, Params: f.Params}
	if b, ok := f.Data.([]byte); ok {
		jf.Data = base64.StdEncoding.EncodeToString(b)
		jf.Binary = true
	}
	return json.Marshal(&jf)
}

func decodeJSON(data []byte, f *Frame) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return fmt.Errorf("payload not object")
	}
	var jf jsonFrame
	if err := json.Unmarshal(data, &jf); err != nil {
		return err
	}
	if jf.Type == nil {
		return fmt.Errorf("missing field: type")
	}
	out := Frame{Type: *jf.Type, Data: jf.Data, Fmt: jf.Fmt, Params: jf.Params}
	if jf.Binary {
		s, ok := jf.Data.(string)
		if !ok {
			return fmt.Errorf("binary data is %T, want base64 string", jf.Data)
		}
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return fmt.Errorf("binary data: %w", err)
		}
		out.Data = b
	}
	*f = out
	return nil
}
