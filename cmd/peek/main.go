package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hongjun500/rencomm/internal/bus/redisstream"
	"github.com/hongjun500/rencomm/internal/config"
)

// peek 从帧事件旁路中读取并打印每个帧的元数据
func main() {
	var (
		cfgPath  = flag.String("config", "", "path to YAML config")
		addr     = flag.String("addr", "", "redis address, overrides config")
		consumer = flag.String("consumer", "", "consumer name (default: hostname)")
	)
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if *addr != "" {
		cfg.Redis.Addr = *addr
	}
	if cfg.Redis.Addr == "" {
		fmt.Fprintln(os.Stderr, "redis address is required (-addr or CHAT_REDIS_ADDR)")
		os.Exit(2)
	}
	if *consumer == "" {
		*consumer, _ = os.Hostname()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := redisstream.New(cfg.Redis.Addr, cfg.Redis.DB, cfg.Redis.Stream, cfg.Redis.Group)
	defer bus.Close()
	if err := bus.EnsureGroup(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "ensure group: %v\n", err)
		os.Exit(1)
	}

	err = bus.Consume(ctx, *consumer, func(ctx context.Context, ev *redisstream.FrameEvent) error {
		format := ev.Fmt
		if format == "" {
			format = "-"
		}
		fmt.Printf("%s %-6s %-3s conn=%s type=%-6s fmt=%-5s size=%d cached=%t\n",
			ev.When.Format("15:04:05.000"), ev.Role, ev.Direction, ev.ConnID, ev.Type, format, ev.Size, ev.Cached)
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "consume: %v\n", err)
		os.Exit(1)
	}
}
