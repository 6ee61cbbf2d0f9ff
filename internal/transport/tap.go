package transport

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hongjun500/rencomm/internal/bus/redisstream"
	"github.com/hongjun500/rencomm/internal/dispatch"
	"github.com/hongjun500/rencomm/internal/observe"
)

// Tap receives frame metadata. *redisstream.Bus implements it.
type Tap interface {
	Publish(ctx context.Context, ev *redisstream.FrameEvent) error
}

const tapTimeout = 2 * time.Second

// record 更新帧计数并异步投递旁路事件；旁路失败不影响收发
func record(o *options, role, direction, connID, kind, format string, size int, cached bool) {
	observe.IncFrame(direction, kind)
	if o.tap == nil {
		return
	}
	ev := &redisstream.FrameEvent{
		Direction: direction,
		Role:      role,
		ConnID:    connID,
		Type:      kind,
		Fmt:       format,
		Size:      size,
		Cached:    cached,
		When:      time.Now(),
	}
	tap, log := o.tap, o.logger
	dispatch.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), tapTimeout)
		defer cancel()
		if err := tap.Publish(ctx, ev); err != nil {
			log.Debug("tap_publish_failed", zap.Error(err))
		}
	})
}

func recordInbound(o *options, role, connID string, p *Payload, size int) {
	if p.IsText() {
		record(o, role, "in", connID, kindText, "", size, false)
		return
	}
	record(o, role, "in", connID, p.Message.Type.String(), p.Message.Fmt, size, p.Message.Cached())
}

func recordOutbound(o *options, role, connID string, out *outbound) {
	record(o, role, "out", connID, out.kind, out.fmt, len(out.data), false)
}
