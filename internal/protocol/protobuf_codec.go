package protocol

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Protobuf 帧字段编号。帧按 protobuf 线格式手工编码，结构化数据与 params
// 使用 google.protobuf.Value / Struct 承载。
const (
	pbFieldType   protowire.Number = 1
	pbFieldBytes  protowire.Number = 2 // []byte data
	pbFieldText   protowire.Number = 3 // string data
	pbFieldValue  protowire.Number = 4 // structured data (google.protobuf.Value)
	pbFieldFmt    protowire.Number = 5
	pbFieldParams protowire.Number = 6 // google.protobuf.Struct
)

// NewProtobufCodec 返回 protobuf 线格式编码器
func NewProtobufCodec() *GenericCodec {
	return NewGenericCodec(Protobuf, encodeProtobuf, decodeProtobuf)
}

func encodeProtobuf(f *Frame) ([]byte, error) {
	var b []byte
	b = protowire.AppendTag(b, pbFieldType, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeZigZag(int64(f.Type)))

	switch d := f.Data.(type) {
	case nil:
	case []byte:
		b = protowire.AppendTag(b, pbFieldBytes, protowire.BytesType)
		b = protowire.AppendBytes(b, d)
	case string:
		b = protowire.AppendTag(b, pbFieldText, protowire.BytesType)
		b = protowire.AppendString(b, d)
	default:
		v, err := structpb.NewValue(d)
		if err != nil {
			return nil, fmt.Errorf("data: %w", err)
		}
		raw, err := proto.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("data: %w", err)
		}
		b = protowire.AppendTag(b, pbFieldValue, protowire.BytesType)
		b = protowire.AppendBytes(b, raw)
	}

	if f.Fmt != nil {
		b = protowire.AppendTag(b, pbFieldFmt, protowire.BytesType)
		b = protowire.AppendString(b, *f.Fmt)
	}

	if f.Params != nil {
		s, err := structpb.NewStruct(f.Params)
		if err != nil {
			return nil, fmt.Errorf("params: %w", err)
		}
		raw, err := proto.Marshal(s)
		if err != nil {
			return nil, fmt.Errorf("params: %w", err)
		}
		b = protowire.AppendTag(b, pbFieldParams, protowire.BytesType)
		b = protowire.AppendBytes(b, raw)
	}
	return b, nil
}

func decodeProtobuf(data []byte, f *Frame) error {
	var (
		out     Frame
		hasType bool
	)
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]

		switch {
		case num == pbFieldType && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			out.Type = int(protowire.DecodeZigZag(v))
			hasType = true
			data = data[n:]

		case typ == protowire.BytesType && num >= pbFieldBytes && num <= pbFieldParams:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			data = data[n:]
			if err := out.setProtobufField(num, v); err != nil {
				return err
			}

		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			data = data[n:]
		}
	}
	if !hasType {
		return fmt.Errorf("missing field: type")
	}
	*f = out
	return nil
}

func (f *Frame) setProtobufField(num protowire.Number, v []byte) error {
	switch num {
	case pbFieldBytes:
		f.Data = append([]byte{}, v...)
	case pbFieldText:
		f.Data = string(v)
	case pbFieldValue:
		var pv structpb.Value
		if err := proto.Unmarshal(v, &pv); err != nil {
			return fmt.Errorf("data: %w", err)
		}
		f.Data = pv.AsInterface()
	case pbFieldFmt:
		f.SetFmt(string(v))
	case pbFieldParams:
		var ps structpb.Struct
		if err := proto.Unmarshal(v, &ps); err != nil {
			return fmt.Errorf("params: %w", err)
		}
		f.Params = ps.AsMap()
	}
	return nil
}
