package protocol

import (
	"bytes"
	"errors"
	"reflect"
	"testing"

	"github.com/vmihailenco/msgpack/v5"
)

// TestCodecFactory 测试编解码器工厂函数
func TestCodecFactory(t *testing.T) {
	tests := []struct {
		name      string
		codecType int
		wantError bool
		wantType  string
	}{
		{"JSON Codec", CodecJson, false, Json},
		{"Protobuf Codec", CodecProtobuf, false, Protobuf},
		{"Msgpack Codec", CodecMsgpack, false, Msgpack},
		{"Unknown Codec", 9, true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			codec, err := NewCodec(tt.codecType)
			if tt.wantError {
				if err == nil {
					t.Errorf("Expected error for codec type %d, but got none", tt.codecType)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error for codec type %d: %v", tt.codecType, err)
			}
			if codec.Name() != tt.wantType {
				t.Errorf("Name mismatch: got %s, want %s", codec.Name(), tt.wantType)
			}
		})
	}
}

func TestNewCodecByName(t *testing.T) {
	tests := map[string]string{
		"":         Msgpack,
		"msgpack":  Msgpack,
		"JSON":     Json,
		" pb ":     Protobuf,
		"protobuf": Protobuf,
	}
	for in, want := range tests {
		c, err := NewCodecByName(in)
		if err != nil {
			t.Fatalf("NewCodecByName(%q): %v", in, err)
		}
		if c.Name() != want {
			t.Errorf("NewCodecByName(%q) = %s, want %s", in, c.Name(), want)
		}
	}
	if _, err := NewCodecByName("xml"); err == nil {
		t.Error("Expected error for unsupported codec name")
	}
	if !IsCodecSupported(CodecMsgpack) || IsCodecSupported(42) {
		t.Error("IsCodecSupported mismatch")
	}
}

func allCodecs(t *testing.T) []MessageCodec {
	t.Helper()
	var out []MessageCodec
	for _, cc := range []int{CodecMsgpack, CodecJson, CodecProtobuf} {
		c, err := NewCodec(cc)
		if err != nil {
			t.Fatalf("NewCodec(%d): %v", cc, err)
		}
		out = append(out, c)
	}
	return out
}

// TestCodecRoundTrip 各编码器对 string / bytes / fmt / params 的往返
func TestCodecRoundTrip(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G', 0x00, 0xff}
	frames := []Frame{
		{Type: 0, Data: "ping"},
		{Type: 0, Data: "你好", Params: map[string]any{"from": "host"}},
		{Type: 2, Data: png},
		{Type: 3, Data: []byte{}, Params: map[string]any{"loop": true}},
	}
	frames[2].SetFmt(".png")
	frames[3].SetFmt(".ogg")

	for _, codec := range allCodecs(t) {
		t.Run(codec.Name(), func(t *testing.T) {
			for i, in := range frames {
				data, err := codec.Encode(&in)
				if err != nil {
					t.Fatalf("frame %d encode: %v", i, err)
				}
				var out Frame
				if err := codec.Decode(data, &out); err != nil {
					t.Fatalf("frame %d decode: %v", i, err)
				}
				if out.Type != in.Type {
					t.Errorf("frame %d type = %d, want %d", i, out.Type, in.Type)
				}
				if out.FmtString() != in.FmtString() {
					t.Errorf("frame %d fmt = %q, want %q", i, out.FmtString(), in.FmtString())
				}
				switch want := in.Data.(type) {
				case []byte:
					got, ok := out.Data.([]byte)
					if !ok || !bytes.Equal(got, want) {
						t.Errorf("frame %d data = %#v, want %#v", i, out.Data, want)
					}
				default:
					if !reflect.DeepEqual(out.Data, want) {
						t.Errorf("frame %d data = %#v, want %#v", i, out.Data, want)
					}
				}
				if !reflect.DeepEqual(out.Params, in.Params) {
					t.Errorf("frame %d params = %#v, want %#v", i, out.Params, in.Params)
				}
			}
		})
	}
}

func TestCodecStructuredData(t *testing.T) {
	in := Frame{Type: 1, Data: map[string]any{"name": "eileen", "tags": []any{"a", "b"}, "ok": true}}
	for _, codec := range allCodecs(t) {
		data, err := codec.Encode(&in)
		if err != nil {
			t.Fatalf("%s encode: %v", codec.Name(), err)
		}
		var out Frame
		if err := codec.Decode(data, &out); err != nil {
			t.Fatalf("%s decode: %v", codec.Name(), err)
		}
		if !reflect.DeepEqual(out.Data, in.Data) {
			t.Errorf("%s data = %#v, want %#v", codec.Name(), out.Data, in.Data)
		}
	}
}

// TestMsgpackPeerFrame 解析由对端以普通 map 打包的帧
func TestMsgpackPeerFrame(t *testing.T) {
	raw, err := msgpack.Marshal(map[string]any{
		"type":   2,
		"data":   []byte{1, 2, 3},
		"fmt":    ".png",
		"params": nil,
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var f Frame
	if err := NewMsgpackCodec().Decode(raw, &f); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if f.Type != 2 || f.FmtString() != ".png" || f.Params != nil {
		t.Fatalf("unexpected frame: %+v", f)
	}
	if !bytes.Equal(f.Data.([]byte), []byte{1, 2, 3}) {
		t.Fatalf("data = %v", f.Data)
	}
}

func TestCodecMalformed(t *testing.T) {
	notMap, _ := msgpack.Marshal("just a string")
	noType, _ := msgpack.Marshal(map[string]any{"data": "x"})
	badFmt, _ := msgpack.Marshal(map[string]any{"type": 0, "fmt": 12})

	cases := []struct {
		codec MessageCodec
		data  []byte
	}{
		{NewMsgpackCodec(), nil},
		{NewMsgpackCodec(), []byte{0xc1}},
		{NewMsgpackCodec(), notMap},
		{NewMsgpackCodec(), noType},
		{NewMsgpackCodec(), badFmt},
		{NewJSONCodec(), []byte(`[1,2]`)},
		{NewJSONCodec(), []byte(`{"data":"x"}`)},
		{NewJSONCodec(), []byte(`{"type":2,"data":"%%%","binary":true}`)},
		{NewProtobufCodec(), []byte{0xff, 0xff, 0xff}},
		{NewProtobufCodec(), []byte{0x1a, 0x01, 'x'}},
	}
	for i, c := range cases {
		var f Frame
		err := c.codec.Decode(c.data, &f)
		if err == nil {
			t.Errorf("case %d (%s): expected error", i, c.codec.Name())
			continue
		}
		if !errors.Is(err, ErrMalformedFrame) {
			t.Errorf("case %d (%s): error %v does not wrap ErrMalformedFrame", i, c.codec.Name(), err)
		}
	}
}

func TestEncodeNilFrame(t *testing.T) {
	for _, codec := range allCodecs(t) {
		if _, err := codec.Encode(nil); err == nil {
			t.Errorf("%s: expected error for nil frame", codec.Name())
		}
	}
}
