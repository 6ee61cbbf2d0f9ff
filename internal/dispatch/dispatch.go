// Package dispatch bridges blocking work and a cooperative host loop.
//
// A host (for example a game engine main loop) must keep ticking while a
// blocking call is in flight; Block runs the call on its own goroutine and
// keeps ticking the host until it finishes.
package dispatch

import (
	"fmt"
	"runtime"
)

// Host 宿主协作者
type Host interface {
	// Skipping reports whether the host is fast-forwarding and managers should
	// not start network activity.
	Skipping() bool
	// Tick yields one frame to the host.
	Tick()
}

// NopHost never skips and needs no ticks; Block waits on it directly.
type NopHost struct{}

func (NopHost) Skipping() bool { return false }
func (NopHost) Tick()          { runtime.Gosched() }

// Go 在后台 goroutine 中执行 fn
func Go(fn func()) {
	go fn()
}

// Run 执行 fn：inline 为 true 时在当前 goroutine 同步执行，否则交给后台
func Run(inline bool, fn func()) {
	if inline {
		fn()
		return
	}
	Go(fn)
}

// Block 在独立 goroutine 中执行 fn，期间不断调用 host.Tick()，直到 fn 返回。
// host 为 nil 或 NopHost 时直接等待，不空转。fn 的 panic 被转换为错误返回。
func Block(host Host, fn func() error) error {
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("dispatch: blocked call panicked: %v", r)
			}
		}()
		done <- fn()
	}()

	if waitsDirectly(host) {
		return <-done
	}
	for {
		select {
		case err := <-done:
			return err
		default:
			host.Tick()
		}
	}
}

// waitsDirectly reports whether host has nothing to tick.
func waitsDirectly(host Host) bool {
	switch host.(type) {
	case nil, NopHost, *NopHost:
		return true
	}
	return false
}
