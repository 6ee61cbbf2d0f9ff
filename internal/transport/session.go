package transport

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Session 一条 WebSocket 连接。写入按连接串行化，Close 幂等，可以在任意 goroutine 调用
type Session struct {
	id         string
	remoteAddr string
	conn       *websocket.Conn

	writeTimeout time.Duration
	writeMu      sync.Mutex

	closed    atomic.Bool
	closeOnce sync.Once
}

func newSession(id string, conn *websocket.Conn, writeTimeout time.Duration) *Session {
	return &Session{
		id:           id,
		remoteAddr:   conn.RemoteAddr().String(),
		conn:         conn,
		writeTimeout: writeTimeout,
	}
}

// ID 获取会话ID
func (s *Session) ID() string {
	return s.id
}

// RemoteAddr 获取远程地址
func (s *Session) RemoteAddr() string {
	return s.remoteAddr
}

// Closed reports whether Close has been called or the peer went away.
func (s *Session) Closed() bool {
	return s.closed.Load()
}

// write 写出一个完整帧。ctx 带截止时间时以其为写超时，否则使用 writeTimeout
func (s *Session) write(ctx context.Context, messageType int, data []byte) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var deadline time.Time
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	} else if s.writeTimeout > 0 {
		deadline = time.Now().Add(s.writeTimeout)
	}
	_ = s.conn.SetWriteDeadline(deadline)
	return s.conn.WriteMessage(messageType, data)
}

// Close 先尽力发送关闭帧，再关闭底层连接
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = s.conn.Close()
	})
	return err
}

// markClosed records that the peer is gone and releases the connection.
func (s *Session) markClosed() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		_ = s.conn.Close()
	})
}
