package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hongjun500/rencomm/internal/bus/redisstream"
	"github.com/hongjun500/rencomm/internal/config"
	"github.com/hongjun500/rencomm/internal/message"
	"github.com/hongjun500/rencomm/internal/observe"
	"github.com/hongjun500/rencomm/internal/protocol"
	"github.com/hongjun500/rencomm/internal/transport"
	"github.com/hongjun500/rencomm/pkg/logger"
)

func main() {
	var (
		cfgPath = flag.String("config", "", "path to YAML config")
		echo    = flag.Bool("echo", true, "echo every received frame back to its sender")
	)
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logger.L().Fatal("config_load_failed", zap.Error(err))
	}
	if err := logger.Configure(cfg.Log.Level, cfg.Log.Output); err != nil {
		logger.L().Warn("logger_configure_failed", zap.Error(err))
	}
	log := logger.Named("main")

	codec, err := protocol.NewCodecByName(cfg.Codec)
	if err != nil {
		log.Fatal("codec_invalid", zap.Error(err))
	}
	cache, err := message.NewCache(cfg.Cache.Dir,
		message.WithMaxTotalBytes(cfg.Cache.MaxTotalBytes),
		message.WithMinCacheableBytes(cfg.Cache.MinCacheableBytes))
	if err != nil {
		log.Fatal("cache_init_failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []transport.Option{
		transport.WithCodec(codec),
		transport.WithCache(cache),
		transport.WithPath(cfg.Server.Path),
		transport.WithMaxFrameSize(cfg.Server.MaxFrameSize),
	}
	if cfg.Redis.Addr != "" {
		bus := redisstream.New(cfg.Redis.Addr, cfg.Redis.DB, cfg.Redis.Stream, cfg.Redis.Group)
		defer bus.Close()
		if err := bus.Ping(ctx); err != nil {
			log.Warn("tap_unavailable", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		} else {
			opts = append(opts, transport.WithTap(bus))
		}
	}

	srv := transport.NewServer(cfg.Server.Addr, opts...)
	srv.OnConnect(func(id string, sess *transport.Session) error {
		log.Info("client_joined", zap.String("id", id), zap.String("remote", sess.RemoteAddr()), zap.Int("online", srv.Count()))
		return nil
	})
	srv.OnDisconnect(func(id string, sess *transport.Session) error {
		log.Info("client_left", zap.String("id", id), zap.Int("online", srv.Count()))
		return nil
	})
	srv.OnReceive(func(id string, sess *transport.Session, p *transport.Payload) error {
		log.Info("frame", zap.String("id", id), zap.Stringer("payload", p))
		if !*echo {
			return nil
		}
		if p.IsText() {
			return srv.Send(id, p.Text)
		}
		return srv.Send(id, p.Message)
	})

	if err := srv.Run(); err != nil {
		log.Fatal("server_run_failed", zap.Error(err))
	}

	g, ctx := errgroup.WithContext(ctx)
	if cfg.Metrics.Addr != "" {
		g.Go(func() error {
			log.Info("metrics_listen", zap.String("addr", cfg.Metrics.Addr))
			return observe.StartHTTP(ctx, cfg.Metrics.Addr)
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		return srv.Close()
	})
	if err := g.Wait(); err != nil {
		log.Error("server_exit", zap.Error(err))
		os.Exit(1)
	}
	log.Info("server_stopped")
}
