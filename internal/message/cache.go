package message

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/hongjun500/rencomm/internal/observe"
)

const (
	DefaultCacheDir          = "media_cache"
	DefaultMaxTotalBytes     = 1 << 30  // 1GB
	DefaultMinCacheableBytes = 10 << 20 // 10MB，视频不受此限制

	tmpPrefix = ".tmp-"
)

// Cache 以内容摘要为键把大载荷落盘。文件名为 <sha256 hex><fmt>，
// 没有索引文件：成员关系由构造时的目录列表加上进程内的写入记录得出。
//
// 同一个 Cache 可以在多个连接管理器之间共享。
type Cache struct {
	dir      string
	maxTotal int64
	minSize  int64

	mu    sync.Mutex // 保护 known/total 以及所有文件写入
	known map[string]struct{}
	total int64
}

// CacheOption 缓存配置项
type CacheOption func(*Cache)

// WithMaxTotalBytes sets the total size budget.
func WithMaxTotalBytes(n int64) CacheOption {
	return func(c *Cache) { c.maxTotal = n }
}

// WithMinCacheableBytes sets the size under which non-movie payloads stay inline.
func WithMinCacheableBytes(n int64) CacheOption {
	return func(c *Cache) { c.minSize = n }
}

// NewCache 创建缓存目录（若不存在），并登记目录中已有的文件及其大小
func NewCache(dir string, opts ...CacheOption) (*Cache, error) {
	if dir == "" {
		dir = DefaultCacheDir
	}
	c := &Cache{
		dir:      dir,
		maxTotal: DefaultMaxTotalBytes,
		minSize:  DefaultMinCacheableBytes,
		known:    make(map[string]struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list cache dir: %w", err)
	}
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), tmpPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		c.known[e.Name()] = struct{}{}
		c.total += info.Size()
	}
	observe.SetCacheBytes(float64(c.total))
	return c, nil
}

// Dir returns the cache directory.
func (c *Cache) Dir() string { return c.dir }

// Key 计算缓存键：sha256(data) 的十六进制 + fmt
func (c *Cache) Key(data []byte, format string) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]) + format
}

// TotalBytes returns the running total of cached bytes.
func (c *Cache) TotalBytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

// Contains reports whether key has already been persisted.
func (c *Cache) Contains(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.known[key]
	return ok
}

// ShouldCache 缓存策略：
//   - MOVIE 总是缓存
//   - 小于最小阈值的不缓存
//   - 超出总预算的不缓存（载荷留在内存里，属于可接受的降级）
func (c *Cache) ShouldCache(size int, t Type) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.shouldCacheLocked(int64(size), t)
}

func (c *Cache) shouldCacheLocked(size int64, t Type) bool {
	if t == Movie {
		return true
	}
	if size < c.minSize {
		return false
	}
	return c.total+size < c.maxTotal
}

// Store 无条件写入缓存并返回路径。同一键重复写入是空操作。
func (c *Cache) Store(data []byte, format string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.storeLocked(data, format)
}

// TryStore 在同一把锁内完成策略判断与写入。ok 为 false 表示载荷应保持内联。
// 小于最小阈值的载荷（MOVIE 除外）即使磁盘上已有同键文件也保持内联；
// 达到阈值且键已存在时直接返回路径，不受预算影响。
func (c *Cache) TryStore(data []byte, format string, t Type) (path string, ok bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	size := int64(len(data))
	if t != Movie && size < c.minSize {
		return "", false, nil
	}
	key := c.Key(data, format)
	if _, exists := c.known[key]; exists {
		return filepath.Join(c.dir, key), true, nil
	}
	if !c.shouldCacheLocked(size, t) {
		return "", false, nil
	}
	path, err = c.storeLocked(data, format)
	if err != nil {
		return "", false, err
	}
	return path, true, nil
}

func (c *Cache) storeLocked(data []byte, format string) (string, error) {
	key := c.Key(data, format)
	path := filepath.Join(c.dir, key)
	if _, exists := c.known[key]; exists {
		return path, nil
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return "", fmt.Errorf("create cache dir: %w", err)
	}
	if err := writeAtomic(c.dir, path, data); err != nil {
		return "", err
	}
	c.known[key] = struct{}{}
	c.total += int64(len(data))
	observe.SetCacheBytes(float64(c.total))
	return path, nil
}

// writeAtomic 先写临时文件再 rename，读者永远看不到写了一半的文件
func writeAtomic(dir, path string, data []byte) error {
	tmp, err := os.CreateTemp(dir, tmpPrefix+"*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return fmt.Errorf("write cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return fmt.Errorf("close cache file: %w", err)
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return fmt.Errorf("rename cache file: %w", err)
	}
	return nil
}

// Clear 删除并重建缓存目录，计数清零。只应在没有连接收发时调用。
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := os.RemoveAll(c.dir); err != nil {
		return fmt.Errorf("remove cache dir: %w", err)
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	c.known = make(map[string]struct{})
	c.total = 0
	observe.SetCacheBytes(0)
	return nil
}
