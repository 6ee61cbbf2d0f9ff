package transport

import (
	"errors"
	"fmt"

	"github.com/gorilla/websocket"

	"github.com/hongjun500/rencomm/internal/message"
	"github.com/hongjun500/rencomm/internal/protocol"
)

const (
	kindText   = "TEXT"
	kindBinary = "BINARY"
)

// Payload 一次接收到的内容：二进制帧解析为 Message，文本帧原样保留在 Text 中
type Payload struct {
	Message *message.Message
	Text    string
}

// IsText reports whether the frame was a raw text frame.
func (p *Payload) IsText() bool { return p.Message == nil }

func (p *Payload) String() string {
	if p.Message != nil {
		return p.Message.String()
	}
	return fmt.Sprintf("Text(%q)", p.Text)
}

// outbound 编码后的待发送帧
type outbound struct {
	messageType int
	data        []byte
	kind        string
	fmt         string
}

// encodeOutbound 支持 *message.Message、string（文本帧）与 []byte（原始二进制帧）
func encodeOutbound(codec protocol.MessageCodec, v any) (*outbound, error) {
	switch x := v.(type) {
	case *message.Message:
		if x == nil {
			return nil, ErrUnsupportedData.WithContext("nil message")
		}
		data, err := x.Encode(codec)
		if err != nil {
			return nil, fmt.Errorf("encode message: %w", err)
		}
		return &outbound{websocket.BinaryMessage, data, x.Type.String(), x.Fmt}, nil
	case string:
		return &outbound{websocket.TextMessage, []byte(x), kindText, ""}, nil
	case []byte:
		return &outbound{websocket.BinaryMessage, x, kindBinary, ""}, nil
	default:
		return nil, ErrUnsupportedData.WithContext(fmt.Sprintf("%T", v))
	}
}

// decodeInbound 解析一个收到的帧。返回 nil, nil 表示应当静默忽略（空文本帧）
func decodeInbound(messageType int, raw []byte, codec protocol.MessageCodec, cache *message.Cache) (*Payload, error) {
	switch messageType {
	case websocket.TextMessage:
		if len(raw) == 0 {
			return nil, nil
		}
		return &Payload{Text: string(raw)}, nil
	case websocket.BinaryMessage:
		m, err := message.Parse(raw, codec, cache)
		if err != nil {
			return nil, err
		}
		return &Payload{Message: m}, nil
	default:
		return nil, nil
	}
}

// dropReason 丢帧原因，用作指标标签
func dropReason(err error) string {
	if errors.Is(err, message.ErrUnknownType) {
		return "unknown_type"
	}
	return "malformed"
}
