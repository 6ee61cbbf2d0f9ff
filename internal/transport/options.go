package transport

import (
	"time"

	"go.uber.org/zap"

	"github.com/hongjun500/rencomm/internal/dispatch"
	"github.com/hongjun500/rencomm/internal/message"
	"github.com/hongjun500/rencomm/internal/protocol"
	"github.com/hongjun500/rencomm/pkg/logger"
)

// Default configuration values.
const (
	DefaultMaxRetries  = 5
	DefaultDialTimeout = 2 * time.Second
	DefaultMaxBackoff  = 60 * time.Second
	DefaultPath        = "/"
)

// options configures both connection managers; client-only and server-only
// fields are ignored by the other side.
type options struct {
	codec        protocol.MessageCodec
	cache        *message.Cache
	host         dispatch.Host
	logger       *zap.Logger
	tap          Tap
	writeTimeout time.Duration
	maxFrameSize int64 // 0 表示不限制

	// client
	maxRetries    int
	dialTimeout   time.Duration
	backoff       func(attempt int) time.Duration
	autoReconnect bool
	onRetry       func(attempt int, delay time.Duration, err error)

	// server
	path string
}

// Option is a function that configures a connection manager.
type Option func(*options)

func defaultOptions() options {
	return options{
		host:        dispatch.NopHost{},
		maxRetries:  DefaultMaxRetries,
		dialTimeout: DefaultDialTimeout,
		backoff:     func(attempt int) time.Duration { return Backoff(attempt, DefaultMaxBackoff) },
		path:        DefaultPath,
	}
}

// finish 补齐未设置的选项，name 用作默认日志器的名字
func (o *options) finish(name string) {
	if o.codec == nil {
		o.codec, _ = protocol.NewCodec(protocol.DefaultCodec)
	}
	if o.host == nil {
		o.host = dispatch.NopHost{}
	}
	if o.logger == nil {
		o.logger = logger.Named(name)
	}
	if o.maxRetries <= 0 {
		o.maxRetries = DefaultMaxRetries
	}
	if o.dialTimeout <= 0 {
		o.dialTimeout = DefaultDialTimeout
	}
	if o.backoff == nil {
		o.backoff = func(attempt int) time.Duration { return Backoff(attempt, DefaultMaxBackoff) }
	}
	if o.path == "" {
		o.path = DefaultPath
	}
}

// Backoff 第 attempt 次失败后的等待时间：min(2^attempt 秒, ceiling)
func Backoff(attempt int, ceiling time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= 31 {
		return ceiling
	}
	d := time.Duration(1<<uint(attempt)) * time.Second
	if d > ceiling {
		return ceiling
	}
	return d
}

// WithCodec sets the frame codec. Defaults to msgpack.
func WithCodec(codec protocol.MessageCodec) Option {
	return func(o *options) { o.codec = codec }
}

// WithCache enables disk caching of received media payloads.
func WithCache(cache *message.Cache) Option {
	return func(o *options) { o.cache = cache }
}

// WithHost sets the host collaborator used for skip checks and blocking sends.
func WithHost(host dispatch.Host) Option {
	return func(o *options) { o.host = host }
}

// WithLogger sets the logger. Defaults to the process logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithTap publishes one metadata event per frame.
func WithTap(t Tap) Option {
	return func(o *options) { o.tap = t }
}

// WithWriteTimeout bounds each frame write; 0 disables the deadline.
func WithWriteTimeout(d time.Duration) Option {
	return func(o *options) { o.writeTimeout = d }
}

// WithMaxFrameSize limits the size of a single inbound frame.
func WithMaxFrameSize(n int64) Option {
	return func(o *options) { o.maxFrameSize = n }
}

// WithMaxRetries sets the number of connect attempts before the client gives up.
func WithMaxRetries(n int) Option {
	return func(o *options) { o.maxRetries = n }
}

// WithDialTimeout sets the per-attempt handshake timeout.
func WithDialTimeout(d time.Duration) Option {
	return func(o *options) { o.dialTimeout = d }
}

// WithBackoff replaces the delay schedule between connect attempts.
func WithBackoff(f func(attempt int) time.Duration) Option {
	return func(o *options) { o.backoff = f }
}

// WithMaxBackoff keeps the exponential schedule but changes its ceiling.
func WithMaxBackoff(ceiling time.Duration) Option {
	return func(o *options) {
		o.backoff = func(attempt int) time.Duration { return Backoff(attempt, ceiling) }
	}
}

// WithAutoReconnect makes the client re-enter the connect loop after a
// dropped session instead of going idle.
func WithAutoReconnect(on bool) Option {
	return func(o *options) { o.autoReconnect = on }
}

// OnRetry is called after every failed connect attempt that will be retried,
// with the attempt number and the delay before the next one.
func OnRetry(f func(attempt int, delay time.Duration, err error)) Option {
	return func(o *options) { o.onRetry = f }
}

// WithPath sets the HTTP path the server upgrades on.
func WithPath(path string) Option {
	return func(o *options) { o.path = path }
}
