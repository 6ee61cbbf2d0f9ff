package message

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/hongjun500/rencomm/internal/protocol"
	"github.com/hongjun500/rencomm/pkg/logger"
)

// Frame 转换为线上帧。只持有缓存路径时先从缓存读回数据：发送时总是内联，缓存只是本地物化手段。
func (m *Message) Frame() (*protocol.Frame, error) {
	if !m.Type.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, int(m.Type))
	}
	data := m.Data
	if data == nil && m.CachePath != "" {
		b, err := os.ReadFile(m.CachePath)
		if err != nil {
			return nil, fmt.Errorf("load cached payload: %w", err)
		}
		data = b
	}
	f := &protocol.Frame{Type: int(m.Type), Data: data, Params: m.Params}
	f.SetFmt(m.Fmt)
	return f, nil
}

// Encode serializes m with codec.
func (m *Message) Encode(codec protocol.MessageCodec) ([]byte, error) {
	f, err := m.Frame()
	if err != nil {
		return nil, err
	}
	return codec.Encode(f)
}

// Parse 解析一个原始帧。cache 非空且载荷符合缓存策略时，载荷落盘并只保留 CachePath；
// 缓存写入失败只记录日志，载荷保持内联。
func Parse(raw []byte, codec protocol.MessageCodec, cache *Cache) (*Message, error) {
	var f protocol.Frame
	if err := codec.Decode(raw, &f); err != nil {
		return nil, err
	}
	return FromFrame(&f, cache)
}

// FromFrame builds a Message from a decoded frame, applying the cache policy.
func FromFrame(f *protocol.Frame, cache *Cache) (*Message, error) {
	t := Type(f.Type)
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, f.Type)
	}
	m := &Message{Type: t, Fmt: f.FmtString(), Params: normalizeMap(f.Params)}

	switch t {
	case String:
		switch d := f.Data.(type) {
		case string:
			m.Data = d
		case []byte:
			m.Data = string(d)
		default:
			return nil, fmt.Errorf("%w: STRING data is %T", protocol.ErrMalformedFrame, f.Data)
		}
	case JSON:
		if f.Data == nil {
			return nil, fmt.Errorf("%w: JSON data is missing", protocol.ErrMalformedFrame)
		}
		m.Data = normalize(f.Data)
	default:
		var payload []byte
		switch d := f.Data.(type) {
		case []byte:
			payload = d
		case string:
			payload = []byte(d)
		default:
			return nil, fmt.Errorf("%w: %s data is %T", protocol.ErrMalformedFrame, t, f.Data)
		}
		if m.Fmt == "" {
			return nil, fmt.Errorf("%w: %s frame without fmt", protocol.ErrMalformedFrame, t)
		}
		m.Data = payload
		if cache != nil {
			path, ok, err := cache.TryStore(payload, m.Fmt, t)
			switch {
			case err != nil:
				logger.Named("message").Warn("cache_store_failed",
					zap.String("type", t.String()), zap.Int("size", len(payload)), zap.Error(err))
			case ok:
				m.Data = nil
				m.CachePath = path
			}
		}
	}
	return m, nil
}

// normalize 将解码得到的值统一为 encoding/json 的形态：
// map[string]any、[]any、float64、string、bool、nil。
func normalize(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return normalizeMap(x)
	case map[any]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[fmt.Sprint(k)] = normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = normalize(val)
		}
		return out
	case int:
		return float64(x)
	case int8:
		return float64(x)
	case int16:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case uint:
		return float64(x)
	case uint8:
		return float64(x)
	case uint16:
		return float64(x)
	case uint32:
		return float64(x)
	case uint64:
		return float64(x)
	case float32:
		return float64(x)
	default:
		return v
	}
}

func normalizeMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = normalize(v)
	}
	return out
}
