package redisstream

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Bus 帧事件旁路：每个收发的帧写入一条元数据事件（从不包含载荷本身）
type Bus struct {
	cli    *redis.Client
	stream string
	group  string
	maxLen int64
}

// FrameEvent 描述一个帧的元数据
type FrameEvent struct {
	Direction string    `json:"direction"` // in|out
	Role      string    `json:"role"`      // client|server
	ConnID    string    `json:"conn_id,omitempty"`
	Type      string    `json:"type"` // STRING|JSON|IMAGE|AUDIO|MOVIE|TEXT|BINARY
	Fmt       string    `json:"fmt,omitempty"`
	Size      int       `json:"size"`
	Cached    bool      `json:"cached,omitempty"`
	When      time.Time `json:"when"`
}

// DefaultMaxLen caps the stream with approximate trimming.
const DefaultMaxLen = 10000

func New(addr string, db int, stream, group string) *Bus {
	cli := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	return &Bus{cli: cli, stream: stream, group: group, maxLen: DefaultMaxLen}
}

// Ping checks connectivity so callers can fail fast at startup.
func (b *Bus) Ping(ctx context.Context) error {
	return b.cli.Ping(ctx).Err()
}

func (b *Bus) EnsureGroup(ctx context.Context) error {
	err := b.cli.XGroupCreateMkStream(ctx, b.stream, b.group, "$").Err()
	// 组已存在不算错误
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

func (b *Bus) Publish(ctx context.Context, ev *FrameEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.cli.XAdd(ctx, &redis.XAddArgs{
		Stream: b.stream,
		MaxLen: b.maxLen,
		Approx: true,
		Values: map[string]any{"data": payload},
	}).Err()
}

type Handler func(ctx context.Context, ev *FrameEvent) error

// Consume blocks and delivers events to handler; cancel ctx to stop
func (b *Bus) Consume(ctx context.Context, consumer string, handler Handler) error {
	for {
		res, err := b.cli.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    b.group,
			Consumer: consumer,
			Streams:  []string{b.stream, ">"},
			Count:    100,
			Block:    5 * time.Second,
		}).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// transient errors: back off briefly and retry
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}
		for _, str := range res {
			for _, xmsg := range str.Messages {
				raw, _ := xmsg.Values["data"].(string)
				var ev FrameEvent
				if err := json.Unmarshal([]byte(raw), &ev); err == nil {
					_ = handler(ctx, &ev)
				}
				_ = b.cli.XAck(ctx, b.stream, b.group, xmsg.ID).Err()
			}
		}
	}
}

func (b *Bus) Close() error {
	return b.cli.Close()
}
