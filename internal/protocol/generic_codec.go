package protocol

import (
	"fmt"
)

// GenericCodec 通用编码器实现，负责公共的参数校验与错误包装，
// 具体格式只需提供 encoder/decoder。
type GenericCodec struct {
	name    string
	encoder func(f *Frame) ([]byte, error)
	decoder func(data []byte, f *Frame) error
}

// NewGenericCodec 创建通用编码器
func NewGenericCodec(name string, encoder func(f *Frame) ([]byte, error), decoder func(data []byte, f *Frame) error) *GenericCodec {
	return &GenericCodec{
		name:    name,
		encoder: encoder,
		decoder: decoder,
	}
}

// Name 返回编码器名称
func (g *GenericCodec) Name() string {
	return g.name
}

// Encode 编码消息
func (g *GenericCodec) Encode(f *Frame) ([]byte, error) {
	if f == nil {
		return nil, fmt.Errorf("%s.Encode: frame is nil", g.name)
	}
	data, err := g.encoder(f)
	if err != nil {
		return nil, fmt.Errorf("%s.Encode: failed to encode frame (type=%d): %w", g.name, f.Type, err)
	}
	return data, nil
}

// Decode 解码消息；所有失败都包装为 ErrMalformedFrame
func (g *GenericCodec) Decode(data []byte, f *Frame) error {
	if f == nil {
		return fmt.Errorf("%s.Decode: frame is nil", g.name)
	}
	if len(data) == 0 {
		return fmt.Errorf("%s.Decode: %w: empty frame", g.name, ErrMalformedFrame)
	}
	if err := g.decoder(data, f); err != nil {
		return fmt.Errorf("%s.Decode: %w: %v", g.name, ErrMalformedFrame, err)
	}
	return nil
}
