package transport

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/hongjun500/rencomm/internal/message"
	"github.com/hongjun500/rencomm/internal/protocol"
)

func TestServer_RunTwiceAndBindError(t *testing.T) {
	s := startServer(t)
	if err := s.Run(); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second Run = %v, want ErrAlreadyRunning", err)
	}

	other := NewServer(s.Addr(), WithLogger(zap.NewNop()))
	if err := other.Run(); err == nil {
		_ = other.Close()
		t.Fatal("binding an occupied port should fail synchronously")
	}
}

func TestServer_SkippingHost(t *testing.T) {
	s := NewServer("127.0.0.1:0", WithHost(skippingHost{}))
	if err := s.Run(); err != nil {
		t.Fatal(err)
	}
	if s.Running() {
		t.Fatal("skipping host must not start the listener")
	}
}

func TestServer_SendUnknownClient(t *testing.T) {
	log, logs := observedLogger()
	s := startServer(t, WithLogger(log))
	if err := s.Send("nobody", "hi"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("Send = %v, want ErrSessionNotFound", err)
	}
	if err := s.SendContext(context.Background(), "nobody", "hi"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("SendContext = %v, want ErrSessionNotFound", err)
	}
	if logs.FilterMessage("ws_send_skipped").Len() != 2 {
		t.Fatal("missing warn log for unknown client")
	}
}

func TestServer_DisconnectRemovesBeforeCallbacks(t *testing.T) {
	s := startServer(t)
	type seen struct {
		id      string
		present bool
		count   int
	}
	gone := make(chan seen, 1)
	s.OnDisconnect(func(id string, sess *Session) error {
		_, ok := s.Session(id)
		gone <- seen{id, ok, s.Count()}
		return nil
	})
	ids := make(chan string, 1)
	s.OnConnect(func(id string, sess *Session) error {
		ids <- id
		return nil
	})

	c := newTestClient(t, s)
	connectClient(t, c)
	id := recv(t, ids)
	if got := s.Clients(); len(got) != 1 || got[0] != id {
		t.Fatalf("Clients() = %v, want [%s]", got, id)
	}

	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	g := recv(t, gone)
	if g.id != id || g.present || g.count != 0 {
		t.Fatalf("disconnect callback saw %+v; session should already be removed", g)
	}
	if err := s.Send(id, "late"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("Send after disconnect = %v, want ErrSessionNotFound", err)
	}
}

func TestServer_Broadcast(t *testing.T) {
	s := startServer(t)

	const n = 3
	got := make(chan string, n)
	for i := 0; i < n; i++ {
		c := newTestClient(t, s)
		c.OnReceive(func(p *Payload) error {
			got <- p.Message.Text()
			return nil
		})
		connectClient(t, c)
	}
	waitServerClients(t, s, n)

	sent, failed, err := s.BroadcastContext(context.Background(), message.FromString("hello all"))
	if err != nil {
		t.Fatal(err)
	}
	if sent != n || len(failed) != 0 {
		t.Fatalf("sent=%d failed=%v, want %d and none", sent, failed, n)
	}
	for i := 0; i < n; i++ {
		if text := recv(t, got); text != "hello all" {
			t.Fatalf("client got %q", text)
		}
	}

	if err := s.Broadcast("async"); err != nil {
		t.Fatal(err)
	}
	if err := s.Broadcast(3.14); !errors.Is(err, ErrUnsupportedData) {
		t.Fatalf("Broadcast(float) = %v, want ErrUnsupportedData", err)
	}
}

func TestServer_ReceiveCallbackIsolation(t *testing.T) {
	s := startServer(t)
	var calls []int
	done := make(chan struct{})
	s.OnReceive(func(id string, sess *Session, p *Payload) error {
		calls = append(calls, 0)
		return errors.New("boom")
	})
	s.OnReceive(func(id string, sess *Session, p *Payload) error {
		calls = append(calls, 1)
		panic("kaboom")
	})
	s.OnReceive(func(id string, sess *Session, p *Payload) error {
		calls = append(calls, 2)
		close(done)
		return nil
	})

	c := newTestClient(t, s)
	connectClient(t, c)
	if err := c.Send("x", true); err != nil {
		t.Fatal(err)
	}
	select {
	case <-done:
	case <-time.After(waitTimeout):
		t.Fatal("third callback never ran")
	}
	if len(calls) != 3 || calls[0] != 0 || calls[1] != 1 || calls[2] != 2 {
		t.Fatalf("callbacks ran as %v", calls)
	}
	waitServerClients(t, s, 1)
}

func TestServer_RawPeerAndCodec(t *testing.T) {
	codec := protocol.NewJSONCodec()
	s := startServer(t, WithCodec(codec))
	got := make(chan *Payload, 1)
	s.OnReceive(func(id string, sess *Session, p *Payload) error {
		got <- p
		return nil
	})

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+s.Addr()+"/", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	msg, _ := message.FromJSON(map[string]any{"scene": "start", "line": 3})
	raw, err := msg.Encode(codec)
	if err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, raw); err != nil {
		t.Fatal(err)
	}
	p := recv(t, got)
	data, ok := p.Message.Data.(map[string]any)
	if !ok || data["scene"] != "start" || data["line"] != float64(3) {
		t.Fatalf("unexpected JSON payload %#v", p.Message.Data)
	}
}

func TestServer_CloseIdempotentAndReboot(t *testing.T) {
	s := startServer(t)
	addr := s.Addr()
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := net.DialTimeout("tcp", addr, 200*time.Millisecond); err == nil {
		t.Fatal("listener still accepting after Close")
	}
	if err := s.Reboot(); err != nil {
		t.Fatalf("reboot: %v", err)
	}
	if s.Addr() != addr {
		t.Fatalf("reboot bound %s, want %s", s.Addr(), addr)
	}
}

// An upgrade that completes after Close must not register a session.
func TestServer_UpgradeAfterCloseIsRejected(t *testing.T) {
	s := startServer(t)
	connected := make(chan string, 1)
	s.OnConnect(func(id string, sess *Session) error {
		connected <- id
		return nil
	})
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	// the handler is reached through a different http.Server, as a late
	// upgrade on the closed listener would be
	ts := httptest.NewServer(http.HandlerFunc(s.handleConnection))
	defer ts.Close()
	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/", nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(waitTimeout))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("late session should be closed by the server")
	}
	if s.Count() != 0 {
		t.Fatalf("server registered %d sessions after Close", s.Count())
	}
	select {
	case id := <-connected:
		t.Fatalf("connect callback fired for late session %s", id)
	default:
	}
}
