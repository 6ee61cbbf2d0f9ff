package transport

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hongjun500/rencomm/internal/dispatch"
	"github.com/hongjun500/rencomm/internal/observe"
)

type (
	ServerConnectFunc    func(id string, sess *Session) error
	ServerDisconnectFunc func(id string, sess *Session) error
	ServerReceiveFunc    func(id string, sess *Session, p *Payload) error
)

// broadcastLimit 广播时同时进行的写入数上限
const broadcastLimit = 64

// Server 服务端连接管理器：每个连接一个接收 goroutine，会话登记在 SessionManager 中
type Server struct {
	opts     options
	log      *zap.Logger
	sessions *SessionManager
	upgrader websocket.Upgrader

	onConnect    dispatch.Registry[ServerConnectFunc]
	onDisconnect dispatch.Registry[ServerDisconnectFunc]
	onReceive    dispatch.Registry[ServerReceiveFunc]

	mu      sync.Mutex
	addr    string // 首次绑定成功后改为实际地址，Reboot 复用同一端口
	httpSrv *http.Server
	ln      net.Listener
	served  chan struct{}
}

// NewServer 创建服务端，addr 形如 ":8888"
func NewServer(addr string, opts ...Option) *Server {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	o.finish("server")
	return &Server{
		opts:     o,
		log:      o.logger,
		sessions: NewSessionManager(),
		addr:     addr,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

func (s *Server) OnConnect(f ServerConnectFunc) ServerConnectFunc { return s.onConnect.Add(f) }

func (s *Server) OnDisconnect(f ServerDisconnectFunc) ServerDisconnectFunc {
	return s.onDisconnect.Add(f)
}

func (s *Server) OnReceive(f ServerReceiveFunc) ServerReceiveFunc { return s.onReceive.Add(f) }

// Addr returns the bound address once running, or the configured one.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.addr
}

// Running reports whether the listener is up.
func (s *Server) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.httpSrv != nil
}

// Clients returns the ids of all live sessions.
func (s *Server) Clients() []string { return s.sessions.IDs() }

// Count returns the number of live sessions.
func (s *Server) Count() int { return int(s.sessions.Count()) }

// Session looks up a live session by id.
func (s *Server) Session(id string) (*Session, bool) { return s.sessions.Get(id) }

// Run 同步绑定端口（绑定失败直接返回错误），然后在后台提供服务。宿主快进时什么也不做
func (s *Server) Run() error {
	if s.opts.host.Skipping() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.httpSrv != nil {
		return ErrAlreadyRunning
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.HandleFunc(s.opts.path, s.handleConnection)
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	s.ln = ln
	s.addr = ln.Addr().String()
	s.httpSrv = srv
	s.served = make(chan struct{})

	served := s.served
	go func() {
		defer close(served)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("websocket_serve_failed", zap.Error(err))
		}
	}()
	s.log.Info("websocket_listen", zap.String("addr", s.addr), zap.String("path", s.opts.path))
	return nil
}

func (s *Server) handleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade 已经写回了错误响应
		s.log.Warn("ws_upgrade_failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}
	if s.opts.maxFrameSize > 0 {
		conn.SetReadLimit(s.opts.maxFrameSize)
	}

	id := uuid.New().String()
	sess := newSession(id, conn, s.opts.writeTimeout)
	log := s.log.With(zap.String("client", id))

	// 只登记到仍在运行的那个 http.Server 上；Close 之后才完成升级的连接直接关闭
	srv, _ := r.Context().Value(http.ServerContextKey).(*http.Server)
	s.mu.Lock()
	live := srv != nil && srv == s.httpSrv
	if live {
		s.sessions.Add(sess)
	}
	s.mu.Unlock()
	if !live {
		log.Info("ws_client_rejected", zap.String("reason", "server closed"))
		_ = sess.Close()
		return
	}
	observe.AddOnline(1)
	log.Info("ws_client_connected", zap.String("remote", sess.RemoteAddr()))

	for i, f := range s.onConnect.Snapshot() {
		_ = dispatch.Invoke(log, "connect", i, func() error { return f(id, sess) })
	}

	err = s.receive(log, sess)

	// 先从会话表移除，再触发断连回调
	if s.sessions.Remove(id) {
		observe.AddOnline(-1)
	}
	sess.markClosed()
	log.Info("ws_client_disconnected", zap.Error(err))

	for i, f := range s.onDisconnect.Snapshot() {
		_ = dispatch.Invoke(log, "disconnect", i, func() error { return f(id, sess) })
	}
}

func (s *Server) receive(log *zap.Logger, sess *Session) error {
	for {
		mt, raw, err := sess.conn.ReadMessage()
		if err != nil {
			return err
		}
		p, err := decodeInbound(mt, raw, s.opts.codec, s.opts.cache)
		if err != nil {
			observe.IncDropped(dropReason(err))
			log.Warn("frame_dropped", zap.Int("size", len(raw)), zap.Error(err))
			continue
		}
		if p == nil {
			continue
		}
		recordInbound(&s.opts, "server", sess.ID(), p, len(raw))
		log.Debug("ws_received", zap.Stringer("payload", p))

		for i, f := range s.onReceive.Snapshot() {
			_ = dispatch.Invoke(log, "receive", i, func() error { return f(sess.ID(), sess, p) })
		}
	}
}

func (s *Server) lookup(id string) (*Session, error) {
	sess, ok := s.sessions.Get(id)
	if !ok || sess.Closed() {
		s.log.Warn("ws_send_skipped", zap.String("client", id), zap.String("reason", "not found or closed"))
		return nil, ErrSessionNotFound.WithContext(id)
	}
	return sess, nil
}

func (s *Server) deliver(ctx context.Context, sess *Session, out *outbound) error {
	if err := sess.write(ctx, out.messageType, out.data); err != nil {
		observe.IncSendError()
		return err
	}
	recordOutbound(&s.opts, "server", sess.ID(), out)
	return nil
}

// Send 异步发送给指定客户端。客户端不存在或已断开时记录警告并返回 ErrSessionNotFound
func (s *Server) Send(id string, v any) error {
	sess, err := s.lookup(id)
	if err != nil {
		return err
	}
	out, err := encodeOutbound(s.opts.codec, v)
	if err != nil {
		return err
	}
	dispatch.Go(func() {
		if err := s.deliver(context.Background(), sess, out); err != nil {
			s.log.Warn("ws_write_error", zap.String("client", id), zap.Error(err))
		}
	})
	return nil
}

// SendContext 同步发送并等待写完；ctx 的截止时间用作写超时
func (s *Server) SendContext(ctx context.Context, id string, v any) error {
	sess, err := s.lookup(id)
	if err != nil {
		return err
	}
	out, err := encodeOutbound(s.opts.codec, v)
	if err != nil {
		return err
	}
	return s.deliver(ctx, sess, out)
}

// Broadcast 编码一次后异步发给所有在线客户端，单个客户端失败只记录日志
func (s *Server) Broadcast(v any) error {
	out, err := encodeOutbound(s.opts.codec, v)
	if err != nil {
		return err
	}
	dispatch.Go(func() {
		s.broadcast(context.Background(), out)
	})
	return nil
}

// BroadcastContext 并发发送给所有在线客户端并等待完成，返回成功数与失败明细
func (s *Server) BroadcastContext(ctx context.Context, v any) (int, map[string]error, error) {
	out, err := encodeOutbound(s.opts.codec, v)
	if err != nil {
		return 0, nil, err
	}
	sent, failed := s.broadcast(ctx, out)
	return sent, failed, nil
}

func (s *Server) broadcast(ctx context.Context, out *outbound) (int, map[string]error) {
	var (
		mu     sync.Mutex
		sent   int
		failed = make(map[string]error)
		g      errgroup.Group
	)
	g.SetLimit(broadcastLimit)
	for _, sess := range s.sessions.GetAll() {
		if sess.Closed() {
			continue
		}
		sess := sess
		g.Go(func() error {
			err := s.deliver(ctx, sess, out)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed[sess.ID()] = err
				s.log.Warn("ws_broadcast_error", zap.String("client", sess.ID()), zap.Error(err))
				return nil
			}
			sent++
			return nil
		})
	}
	_ = g.Wait()
	s.log.Info("ws_broadcast", zap.Int("sent", sent), zap.Int("failed", len(failed)))
	return sent, failed
}

// Close 关闭所有会话与监听，幂等
func (s *Server) Close() error {
	s.mu.Lock()
	srv, served := s.httpSrv, s.served
	s.httpSrv, s.ln, s.served = nil, nil, nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	// httpSrv 置空之后 handleConnection 不会再登记新会话，Clear 能拿到全部
	for _, sess := range s.sessions.Clear() {
		observe.AddOnline(-1)
		_ = sess.Close()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(ctx)
	<-served
	s.log.Info("websocket_closed")
	return err
}

// Reboot = Close + Run，复用之前绑定的地址
func (s *Server) Reboot() error {
	if err := s.Close(); err != nil {
		s.log.Warn("websocket_close_failed", zap.Error(err))
	}
	return s.Run()
}
