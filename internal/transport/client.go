package transport

import (
	"bytes"
	"context"
	"errors"
	"net"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/hongjun500/rencomm/internal/dispatch"
	"github.com/hongjun500/rencomm/internal/observe"
)

type (
	ConnectFunc    func() error
	DisconnectFunc func() error
	ReceiveFunc    func(p *Payload) error
)

// Client 客户端连接管理器：单个后台 worker 负责拨号、重试与接收
//
// 生命周期：idle -> Run -> connecting <-> connected -> (Close | 重试耗尽) -> idle
type Client struct {
	url  string
	opts options
	log  *zap.Logger

	onConnect    dispatch.Registry[ConnectFunc]
	onDisconnect dispatch.Registry[DisconnectFunc]
	onReceive    dispatch.Registry[ReceiveFunc]

	mu   sync.Mutex
	sess *Session
	stop chan struct{} // 由 Close 关闭
	done chan struct{} // worker 退出时关闭；nil 表示从未运行

	attempt  atomic.Int32
	workerID atomic.Uint64 // 当前 worker 所在 goroutine 的编号，0 表示没有 worker
}

// NewClient 创建客户端，url 形如 ws://127.0.0.1:8888/
func NewClient(url string, opts ...Option) *Client {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	o.finish("client")
	c := &Client{url: url, opts: o, log: o.logger.With(zap.String("url", url))}
	c.attempt.Store(1)
	return c
}

// OnConnect registers a callback fired after each successful connect.
func (c *Client) OnConnect(f ConnectFunc) ConnectFunc { return c.onConnect.Add(f) }

// OnDisconnect registers a callback fired when an established connection ends.
func (c *Client) OnDisconnect(f DisconnectFunc) DisconnectFunc { return c.onDisconnect.Add(f) }

// OnReceive registers a callback fired for every inbound frame, in order.
func (c *Client) OnReceive(f ReceiveFunc) ReceiveFunc { return c.onReceive.Add(f) }

// URL returns the target address.
func (c *Client) URL() string { return c.url }

// Attempts returns the number of the current (or next) connect attempt.
func (c *Client) Attempts() int { return int(c.attempt.Load()) }

// Connected reports whether a live connection is established.
func (c *Client) Connected() bool {
	s := c.session()
	return s != nil && !s.Closed()
}

// Done is closed when the current worker exits. It returns a closed channel
// when the client has never run.
func (c *Client) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.done
}

func (c *Client) session() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess
}

// Run 启动后台 worker。宿主处于快进状态时什么也不做
func (c *Client) Run() error {
	if c.opts.host.Skipping() {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done != nil {
		select {
		case <-c.done:
		default:
			return ErrAlreadyRunning
		}
	}
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	c.attempt.Store(1)
	go c.worker(c.stop, c.done)
	return nil
}

func (c *Client) worker(stop, done chan struct{}) {
	gid := goroutineID()
	c.workerID.Store(gid)
	defer func() {
		c.workerID.CompareAndSwap(gid, 0)
		close(done)
	}()
	for {
		sess := c.connect(stop)
		if sess == nil {
			return
		}
		c.serve(sess, stop)

		select {
		case <-stop:
			return
		default:
		}
		if !c.opts.autoReconnect {
			return
		}
		c.log.Info("ws_reconnecting")
	}
}

// connect 按退避策略拨号，成功返回会话；停止或重试耗尽返回 nil
func (c *Client) connect(stop chan struct{}) *Session {
	for {
		n := int(c.attempt.Load())
		c.log.Info("ws_connecting", zap.Int("attempt", n))

		sess, err := c.dial(stop)
		if err == nil {
			observe.IncConnectAttempt("ok")
			c.attempt.Store(1)
			select {
			case <-stop:
				_ = sess.Close()
				return nil
			default:
			}
			return sess
		}
		observe.IncConnectAttempt("failed")

		select {
		case <-stop:
			return nil
		default:
		}
		if n >= c.opts.maxRetries {
			c.log.Warn("ws_stop_retrying", zap.Int("attempts", n), zap.Error(err))
			return nil
		}

		delay := c.opts.backoff(n)
		c.log.Warn("ws_connect_failed", zap.Int("attempt", n), zap.Duration("retry_in", delay), zap.Error(err))
		if c.opts.onRetry != nil {
			c.opts.onRetry(n, delay, err)
		}
		if !sleep(stop, delay) {
			return nil
		}
		c.attempt.Add(1)
	}
}

func (c *Client) dial(stop chan struct{}) (*Session, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.dialTimeout)
	defer cancel()

	// 握手阶段 gorilla 只使用 ctx 的截止时间，不感知取消；
	// stop 时直接关闭底层 TCP 连接来打断握手
	var (
		rawMu sync.Mutex
		raw   net.Conn
	)
	dialer := websocket.Dialer{
		HandshakeTimeout: c.opts.dialTimeout,
		NetDialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			conn, err := (&net.Dialer{}).DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			rawMu.Lock()
			defer rawMu.Unlock()
			select {
			case <-stop:
				_ = conn.Close()
				return nil, context.Canceled
			default:
			}
			raw = conn
			return conn, nil
		},
	}
	dialed := make(chan struct{})
	go func() {
		select {
		case <-stop:
			cancel()
			rawMu.Lock()
			if raw != nil {
				_ = raw.Close()
			}
			rawMu.Unlock()
		case <-dialed:
		}
	}()

	conn, resp, err := dialer.DialContext(ctx, c.url, nil)
	close(dialed)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	if c.opts.maxFrameSize > 0 {
		conn.SetReadLimit(c.opts.maxFrameSize)
	}
	return newSession(uuid.New().String(), conn, c.opts.writeTimeout), nil
}

// serve 发布会话、触发连接回调并运行接收循环，连接结束后触发断连回调并清理状态。
// 发布前已经停止时直接关闭会话，不触发任何回调
func (c *Client) serve(sess *Session, stop chan struct{}) {
	c.mu.Lock()
	select {
	case <-stop:
		c.mu.Unlock()
		_ = sess.Close()
		return
	default:
	}
	c.sess = sess
	c.mu.Unlock()
	c.log.Info("ws_connected", zap.String("conn", sess.ID()))

	for i, f := range c.onConnect.Snapshot() {
		c.invoke("connect", i, func() error { return f() })
	}

	err := c.receive(sess)
	sess.markClosed()
	c.log.Warn("ws_disconnected", zap.String("conn", sess.ID()), zap.Error(err))

	for i, f := range c.onDisconnect.Snapshot() {
		c.invoke("disconnect", i, func() error { return f() })
	}

	c.mu.Lock()
	if c.sess == sess {
		c.sess = nil
	}
	c.mu.Unlock()
}

// receive 逐帧读取直到连接关闭。解析失败的帧记录日志后丢弃
func (c *Client) receive(sess *Session) error {
	for {
		mt, raw, err := sess.conn.ReadMessage()
		if err != nil {
			return err
		}
		p, err := decodeInbound(mt, raw, c.opts.codec, c.opts.cache)
		if err != nil {
			observe.IncDropped(dropReason(err))
			c.log.Warn("frame_dropped", zap.Int("size", len(raw)), zap.Error(err))
			continue
		}
		if p == nil {
			continue
		}
		recordInbound(&c.opts, "client", sess.ID(), p, len(raw))
		c.log.Debug("ws_received", zap.Stringer("payload", p))

		for i, f := range c.onReceive.Snapshot() {
			c.invoke("receive", i, func() error { return f(p) })
		}
	}
}

func (c *Client) invoke(kind string, i int, fn func() error) {
	_ = dispatch.Invoke(c.log, kind, i, fn)
}

// onWorker reports whether the caller runs on the worker goroutine, i.e.
// from inside one of the client's callbacks.
func (c *Client) onWorker() bool {
	id := c.workerID.Load()
	return id != 0 && id == goroutineID()
}

// goroutineID 解析 runtime.Stack 的首行 "goroutine N [...]"
func goroutineID() uint64 {
	var buf [64]byte
	b := bytes.TrimPrefix(buf[:runtime.Stack(buf[:], false)], []byte("goroutine "))
	if i := bytes.IndexByte(b, ' '); i >= 0 {
		b = b[:i]
	}
	id, _ := strconv.ParseUint(string(b), 10, 64)
	return id
}

// Send 发送消息：*message.Message、string（文本帧）或 []byte。
// 未连接时返回 ErrNotConnected。block 为 true 时在后台写出并让宿主继续 Tick 直到写完；
// 否则立即返回，写失败只记录日志。
func (c *Client) Send(v any, block bool) error {
	sess := c.session()
	if sess == nil || sess.Closed() {
		return ErrNotConnected
	}
	out, err := encodeOutbound(c.opts.codec, v)
	if err != nil {
		return err
	}
	write := func() error {
		if err := sess.write(context.Background(), out.messageType, out.data); err != nil {
			observe.IncSendError()
			return err
		}
		recordOutbound(&c.opts, "client", sess.ID(), out)
		return nil
	}
	if block {
		return dispatch.Block(c.opts.host, write)
	}
	dispatch.Go(func() {
		if err := write(); err != nil {
			c.log.Warn("ws_write_error", zap.String("conn", sess.ID()), zap.Error(err))
		}
	})
	return nil
}

// Close 停止 worker 并关闭连接，幂等。
// 在回调内部调用时不会等待 worker 退出（worker 正在执行该回调）。
func (c *Client) Close() error {
	done := c.shutdown()
	if done == nil {
		return nil
	}
	if c.onWorker() {
		return nil
	}
	_ = dispatch.Block(c.opts.host, func() error {
		<-done
		return nil
	})
	c.log.Info("ws_closed")
	return nil
}

// shutdown 发出停止信号并关闭连接，返回 worker 的 done 通道（从未运行时为 nil）
func (c *Client) shutdown() chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done == nil {
		return nil
	}
	select {
	case <-c.stop:
	default:
		close(c.stop)
	}
	if c.sess != nil {
		_ = c.sess.Close()
	}
	return c.done
}

// Reboot = Close + Run。在回调内部调用时，新的 worker 会在当前 worker 退出后启动
func (c *Client) Reboot() error {
	done := c.shutdown()
	if done != nil && c.onWorker() {
		dispatch.Go(func() {
			<-done
			if err := c.Run(); err != nil && !errors.Is(err, ErrAlreadyRunning) {
				c.log.Warn("ws_reboot_failed", zap.Error(err))
			}
		})
		return nil
	}
	if err := c.Close(); err != nil {
		return err
	}
	return c.Run()
}

// sleep 可被 stop 打断的等待，返回 false 表示被打断
func sleep(stop chan struct{}, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-stop:
		return false
	case <-t.C:
		return true
	}
}
