package message

import (
	"fmt"
	"os"
	"path/filepath"
)

// FromString 从字符串创建消息
func FromString(s string) *Message {
	return &Message{Type: String, Data: s}
}

// FromJSON 从结构化对象（map / slice 等可 JSON 化的值）创建消息
func FromJSON(v any) (*Message, error) {
	return New(JSON, v, "", nil)
}

// FromMedia 读取媒体文件创建消息，fmt 取文件扩展名
func FromMedia(path string, t Type) (*Message, error) {
	if !t.IsMedia() {
		return nil, fmt.Errorf("%w: %s is not a media type", ErrInvalidMessage, t)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read media %s: %w", path, err)
	}
	return New(t, data, filepath.Ext(path), nil)
}

func FromImage(path string) (*Message, error) { return FromMedia(path, Image) }

func FromAudio(path string) (*Message, error) { return FromMedia(path, Audio) }

func FromMovie(path string) (*Message, error) { return FromMedia(path, Movie) }
