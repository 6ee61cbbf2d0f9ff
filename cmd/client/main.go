package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hongjun500/rencomm/internal/config"
	"github.com/hongjun500/rencomm/internal/message"
	"github.com/hongjun500/rencomm/internal/protocol"
	"github.com/hongjun500/rencomm/internal/transport"
	"github.com/hongjun500/rencomm/pkg/logger"
)

func main() {
	var (
		cfgPath = flag.String("config", "", "path to YAML config")
		url     = flag.String("url", "", "server url, overrides config")
		text    = flag.String("text", "", "send a STRING message")
		raw     = flag.String("raw", "", "send a raw text frame")
		jsonArg = flag.String("json", "", "send a JSON message (a JSON document)")
		image   = flag.String("image", "", "send an image file")
		audio   = flag.String("audio", "", "send an audio file")
		movie   = flag.String("movie", "", "send a movie file")
		wait    = flag.Duration("wait", 3*time.Second, "how long to wait for replies; 0 waits for Ctrl-C")
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
	if *url != "" {
		cfg.Client.URL = *url
	}

	outgoing, err := buildOutgoing(*text, *raw, *jsonArg, *image, *audio, *movie)
	if err != nil {
		log.Fatal("build_message_failed", zap.Error(err))
	}

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

	cli := transport.NewClient(cfg.Client.URL,
		transport.WithCodec(codec),
		transport.WithCache(cache),
		transport.WithMaxRetries(cfg.Client.MaxRetries),
		transport.WithDialTimeout(cfg.Client.DialTimeout),
		transport.WithMaxBackoff(cfg.Client.MaxBackoff),
		transport.WithAutoReconnect(cfg.Client.AutoReconnect),
	)
	cli.OnConnect(func() error {
		for _, v := range outgoing {
			if err := cli.Send(v, true); err != nil {
				return err
			}
		}
		log.Info("sent", zap.Int("frames", len(outgoing)))
		return nil
	})
	cli.OnReceive(func(p *transport.Payload) error {
		if p.IsText() {
			log.Info("reply_text", zap.String("text", p.Text))
			return nil
		}
		content, err := p.Message.Content()
		if err != nil {
			return err
		}
		log.Info("reply", zap.Stringer("message", p.Message), zap.Any("content", describe(content)))
		return nil
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if *wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *wait)
		defer cancel()
	}

	if err := cli.Run(); err != nil {
		log.Fatal("client_run_failed", zap.Error(err))
	}
	select {
	case <-ctx.Done():
	case <-cli.Done():
		log.Warn("client_gave_up", zap.Int("attempts", cli.Attempts()))
	}
	_ = cli.Close()
}

func buildOutgoing(text, raw, jsonArg, image, audio, movie string) ([]any, error) {
	var out []any
	if text != "" {
		out = append(out, message.FromString(text))
	}
	if raw != "" {
		out = append(out, raw)
	}
	if jsonArg != "" {
		var v any
		if err := json.Unmarshal([]byte(jsonArg), &v); err != nil {
			return nil, err
		}
		m, err := message.FromJSON(v)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	media := []struct {
		path string
		t    message.Type
	}{{image, message.Image}, {audio, message.Audio}, {movie, message.Movie}}
	for _, md := range media {
		if md.path == "" {
			continue
		}
		m, err := message.FromMedia(md.path, md.t)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// describe 媒体句柄只打印长度
func describe(content any) any {
	switch c := content.(type) {
	case *message.ImageData:
		return map[string]any{"image_bytes": len(c.Data), "fmt": c.Fmt}
	case *message.AudioData:
		return map[string]any{"audio_bytes": len(c.Data), "fmt": c.Fmt}
	default:
		return c
	}
}
