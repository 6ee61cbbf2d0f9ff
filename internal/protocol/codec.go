package protocol

import (
	"fmt"
	"strings"
)

const (
	CodecJson = iota
	CodecProtobuf
	CodecMsgpack
)

const (
	Json     = "json"
	Protobuf = "protobuf"
	Msgpack  = "msgpack"
)

// DefaultCodec is wire-compatible with peers speaking the original msgpack map.
const DefaultCodec = CodecMsgpack

var codecFactories = map[int]func() MessageCodec{
	CodecJson:     func() MessageCodec { return NewJSONCodec() },
	CodecProtobuf: func() MessageCodec { return NewProtobufCodec() },
	CodecMsgpack:  func() MessageCodec { return NewMsgpackCodec() },
}

// CodecNameMapping 编码器名称到类型的映射
var CodecNameMapping = map[string]int{
	Json:     CodecJson,
	Protobuf: CodecProtobuf,
	Msgpack:  CodecMsgpack,
}

// MessageCodec 帧编码解码器。一次 Encode 产出一个传输帧，Decode 消费一个完整帧。
type MessageCodec interface {
	Name() string
	Encode(f *Frame) ([]byte, error)
	Decode(data []byte, f *Frame) error
}

// NewCodec 根据编码类型创建相应的编解码器
func NewCodec(cc int) (MessageCodec, error) {
	if factory, ok := codecFactories[cc]; ok {
		return factory(), nil
	}
	return nil, fmt.Errorf("unsupported codec type: %d", cc)
}

// NewCodecByName 根据名称创建编解码器，名称不区分大小写；空字符串返回默认编码器
func NewCodecByName(name string) (MessageCodec, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return NewCodec(DefaultCodec)
	}
	if name == "pb" {
		name = Protobuf
	}
	cc, ok := CodecNameMapping[name]
	if !ok {
		return nil, fmt.Errorf("unsupported codec name: %s", name)
	}
	return NewCodec(cc)
}

// IsCodecSupported 检查编码器是否支持
func IsCodecSupported(codecType int) bool {
	_, exists := codecFactories[codecType]
	return exists
}
