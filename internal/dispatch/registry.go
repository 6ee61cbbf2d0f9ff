package dispatch

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/hongjun500/rencomm/internal/observe"
)

// Registry 有序回调表：只追加，遍历时使用快照，注册与触发可以并发进行
type Registry[F any] struct {
	mu  sync.RWMutex
	fns []F
}

// Add appends f and returns it, so registration can wrap a declaration.
func (r *Registry[F]) Add(f F) F {
	r.mu.Lock()
	defer r.mu.Unlock()
	next := make([]F, len(r.fns), len(r.fns)+1)
	copy(next, r.fns)
	r.fns = append(next, f)
	return f
}

// Snapshot returns the callbacks in registration order. The slice is never
// mutated after it is handed out.
func (r *Registry[F]) Snapshot() []F {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fns
}

func (r *Registry[F]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.fns)
}

// Invoke 执行第 i 个 kind 类回调。错误与 panic 只记录日志，不向上传播
func Invoke(log *zap.Logger, kind string, i int, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("callback panicked: %v", r)
		}
		if err != nil {
			observe.IncCallbackError(kind)
			if log != nil {
				log.Warn("callback_failed",
					zap.String("kind", kind), zap.Int("index", i), zap.Error(err))
			}
		}
	}()
	return fn()
}
