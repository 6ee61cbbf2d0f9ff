package transport

import (
	"context"
	"net"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

const waitTimeout = 5 * time.Second

// testContext 等价于 Go 1.24 的 t.Context：测试结束（Cleanup 执行）时取消
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}

func fastBackoff(int) time.Duration { return 10 * time.Millisecond }

func startServer(t *testing.T, opts ...Option) *Server {
	t.Helper()
	s := NewServer("127.0.0.1:0", append([]Option{WithLogger(zap.NewNop())}, opts...)...)
	if err := s.Run(); err != nil {
		t.Fatalf("server run: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestClient(t *testing.T, s *Server, opts ...Option) *Client {
	t.Helper()
	base := []Option{WithLogger(zap.NewNop()), WithBackoff(fastBackoff)}
	c := NewClient("ws://"+s.Addr()+"/", append(base, opts...)...)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// connectClient runs c and waits until its connect callbacks fired.
func connectClient(t *testing.T, c *Client) {
	t.Helper()
	connected := make(chan struct{}, 1)
	c.OnConnect(func() error {
		select {
		case connected <- struct{}{}:
		default:
		}
		return nil
	})
	if err := c.Run(); err != nil {
		t.Fatalf("client run: %v", err)
	}
	select {
	case <-connected:
	case <-time.After(waitTimeout):
		t.Fatal("client did not connect")
	}
}

// waitServerClients waits until the server registered n sessions.
func waitServerClients(t *testing.T, s *Server, n int) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for s.Count() != n {
		if time.Now().After(deadline) {
			t.Fatalf("server has %d clients, want %d", s.Count(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for value")
	}
	var zero T
	return zero
}

// freeAddr returns a loopback address nothing is listening on.
func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()
	return addr
}

func observedLogger() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return zap.New(core), logs
}
