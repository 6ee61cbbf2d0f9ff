package message

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
)

var (
	ErrInvalidMessage = errors.New("invalid message")
	ErrUnknownType    = errors.New("unknown message type")
	ErrMovieNotCached = errors.New("movie content requires a cache path")
)

// Message 一条消息。构造或解析完成后 Data 与 CachePath 恰好有一个非空。
type Message struct {
	Type      Type
	Data      any // string (STRING) | JSON value (JSON) | []byte (media) | nil when cached
	Fmt       string
	Params    map[string]any
	CachePath string

	contentOnce sync.Once
	content     any
	contentErr  error
}

// ImageData is an in-memory image payload plus its extension.
type ImageData struct {
	Data []byte
	Fmt  string
}

func (d *ImageData) Open() io.Reader { return bytes.NewReader(d.Data) }

// AudioData is an in-memory audio payload plus its extension.
type AudioData struct {
	Data []byte
	Fmt  string
}

func (d *AudioData) Open() io.Reader { return bytes.NewReader(d.Data) }

// New 创建消息并校验类型与数据形态是否匹配
func New(t Type, data any, format string, params map[string]any) (*Message, error) {
	m := &Message{Type: t, Data: data, Fmt: format, Params: params}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// WithParams attaches free-form metadata and returns m.
func (m *Message) WithParams(params map[string]any) *Message {
	m.Params = params
	return m
}

func (m *Message) validate() error {
	if !m.Type.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownType, int(m.Type))
	}
	if (m.Data == nil) == (m.CachePath == "") {
		return fmt.Errorf("%w: exactly one of data or cache path must be set", ErrInvalidMessage)
	}
	switch m.Type {
	case String:
		if _, ok := m.Data.(string); !ok {
			return fmt.Errorf("%w: STRING data is %T", ErrInvalidMessage, m.Data)
		}
	case JSON:
		if _, ok := m.Data.([]byte); ok {
			return fmt.Errorf("%w: JSON data must be a structured value", ErrInvalidMessage)
		}
	default:
		if m.Fmt == "" {
			return fmt.Errorf("%w: %s requires fmt", ErrInvalidMessage, m.Type)
		}
		if m.Data != nil {
			if _, ok := m.Data.([]byte); !ok {
				return fmt.Errorf("%w: %s data is %T", ErrInvalidMessage, m.Type, m.Data)
			}
		}
	}
	return nil
}

// Cached reports whether the payload lives in the cache rather than in memory.
func (m *Message) Cached() bool { return m.CachePath != "" }

// Bytes returns the inline media payload, or nil.
func (m *Message) Bytes() []byte {
	b, _ := m.Data.([]byte)
	return b
}

// Text returns the STRING payload, or "".
func (m *Message) Text() string {
	s, _ := m.Data.(string)
	return s
}

// Content 按类型物化消息内容，只计算一次：
//   - STRING/JSON 返回 Data 本身
//   - 媒体消息已缓存时返回缓存路径
//   - 否则 IMAGE/AUDIO 返回内存句柄；MOVIE 必须经由缓存，返回 ErrMovieNotCached
func (m *Message) Content() (any, error) {
	m.contentOnce.Do(func() {
		m.content, m.contentErr = m.materialize()
	})
	return m.content, m.contentErr
}

func (m *Message) materialize() (any, error) {
	if m.CachePath != "" {
		return m.CachePath, nil
	}
	switch m.Type {
	case String, JSON:
		return m.Data, nil
	case Image:
		return &ImageData{Data: m.Bytes(), Fmt: m.Fmt}, nil
	case Audio:
		return &AudioData{Data: m.Bytes(), Fmt: m.Fmt}, nil
	case Movie:
		return nil, ErrMovieNotCached
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, int(m.Type))
	}
}

func (m *Message) String() string {
	switch m.Type {
	case String, JSON:
		return fmt.Sprintf("Message(type=%s, data=%v)", m.Type, m.Data)
	default:
		if m.CachePath != "" {
			return fmt.Sprintf("Message(type=%s, fmt=%q, cache_path=%q)", m.Type, m.Fmt, m.CachePath)
		}
		return fmt.Sprintf("Message(type=%s, data=<%d bytes>, fmt=%q)", m.Type, len(m.Bytes()), m.Fmt)
	}
}
