package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hongjun500/rencomm/internal/protocol"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Client  ClientConfig  `yaml:"client"`
	Codec   string        `yaml:"codec"`
	Cache   CacheConfig   `yaml:"cache"`
	Metrics MetricsConfig `yaml:"metrics"`
	Redis   RedisConfig   `yaml:"redis"`
	Log     LogConfig     `yaml:"log"`
}

type ServerConfig struct {
	Addr         string `yaml:"addr"`
	Path         string `yaml:"path"`
	MaxFrameSize int64  `yaml:"max_frame_size"` // 0 表示不限制
}

type ClientConfig struct {
	URL           string        `yaml:"url"`
	MaxRetries    int           `yaml:"max_retries"`
	DialTimeout   time.Duration `yaml:"dial_timeout"`
	MaxBackoff    time.Duration `yaml:"max_backoff"`
	AutoReconnect bool          `yaml:"auto_reconnect"`
}

type CacheConfig struct {
	Dir               string `yaml:"dir"`
	MaxTotalBytes     int64  `yaml:"max_total_bytes"`
	MinCacheableBytes int64  `yaml:"min_cacheable_bytes"`
}

// MetricsConfig Addr 为空时不启动 /metrics
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// RedisConfig Addr 为空时不开启帧事件旁路
type RedisConfig struct {
	Addr   string `yaml:"addr"`
	DB     int    `yaml:"db"`
	Stream string `yaml:"stream"`
	Group  string `yaml:"group"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Output string `yaml:"output"`
}

// Defaults 默认值：端口 8888，缓存 1GB / 10MB，重试 5 次，单次拨号超时 2s
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{Addr: ":8888", Path: "/"},
		Client: ClientConfig{
			URL:         "ws://127.0.0.1:8888/",
			MaxRetries:  5,
			DialTimeout: 2 * time.Second,
			MaxBackoff:  60 * time.Second,
		},
		Codec: protocol.Msgpack,
		Cache: CacheConfig{
			Dir:               "media_cache",
			MaxTotalBytes:     1 << 30,
			MinCacheableBytes: 10 << 20,
		},
		Redis: RedisConfig{Stream: "rencomm:frames", Group: "peek"},
		Log:   LogConfig{Level: "info", Output: "stdout"},
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Load 读取 YAML 配置文件（path 为空或文件不存在时使用默认值），再应用环境变量覆盖并校验
func Load(path string) (*Config, error) {
	cfg := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	if err := ApplyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides maps CHAT_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) error {
	cfg.Server.Addr = getEnv("CHAT_SERVER_ADDR", cfg.Server.Addr)
	cfg.Client.URL = getEnv("CHAT_CLIENT_URL", cfg.Client.URL)
	cfg.Codec = getEnv("CHAT_CODEC", cfg.Codec)
	cfg.Cache.Dir = getEnv("CHAT_CACHE_DIR", cfg.Cache.Dir)
	cfg.Metrics.Addr = getEnv("CHAT_METRICS_ADDR", cfg.Metrics.Addr)
	cfg.Redis.Addr = getEnv("CHAT_REDIS_ADDR", cfg.Redis.Addr)
	cfg.Log.Level = getEnv("CHAT_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Output = getEnv("CHAT_LOG_OUTPUT", cfg.Log.Output)

	if v := os.Getenv("CHAT_MAX_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CHAT_MAX_RETRIES: %w", err)
		}
		cfg.Client.MaxRetries = n
	}
	if v := os.Getenv("CHAT_AUTO_RECONNECT"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("CHAT_AUTO_RECONNECT: %w", err)
		}
		cfg.Client.AutoReconnect = b
	}
	return nil
}

// Validate 汇总所有配置错误一次性返回
func Validate(cfg *Config) error {
	var errs []error
	if cfg.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr must not be empty"))
	}
	if cfg.Client.MaxRetries <= 0 {
		errs = append(errs, errors.New("client.max_retries must be > 0"))
	}
	if cfg.Client.DialTimeout <= 0 {
		errs = append(errs, errors.New("client.dial_timeout must be > 0"))
	}
	if cfg.Client.MaxBackoff <= 0 {
		errs = append(errs, errors.New("client.max_backoff must be > 0"))
	}
	if _, err := protocol.NewCodecByName(cfg.Codec); err != nil {
		errs = append(errs, fmt.Errorf("codec: %w", err))
	}
	if cfg.Cache.MaxTotalBytes <= 0 {
		errs = append(errs, errors.New("cache.max_total_bytes must be > 0"))
	}
	if cfg.Cache.MinCacheableBytes < 0 {
		errs = append(errs, errors.New("cache.min_cacheable_bytes must be >= 0"))
	}
	return errors.Join(errs...)
}
