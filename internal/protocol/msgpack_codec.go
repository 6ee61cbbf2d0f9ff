package protocol

import (
	"bytes"

	"github.com/vmihailenco/msgpack/v5"
)

// NewMsgpackCodec 返回 msgpack 编码器：帧即一个 msgpack map，
// 字符串按 str、二进制按 bin 编码，与原始对端直接兼容。
func NewMsgpackCodec() *GenericCodec {
	return NewGenericCodec(Msgpack, encodeMsgpack, decodeMsgpack)
}

func encodeMsgpack(f *Frame) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.UseCompactInts(true)
	if err := enc.Encode(f); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeMsgpack(data []byte, f *Frame) error {
	var raw map[string]any
	if err := msgpack.Unmarshal(data, &raw); err != nil {
		return err
	}
	return f.fromMap(raw)
}
