package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/luciancaetano/realtime"
)

const waitTimeout = 2 * time.Second

// phoenixServer is a minimal server side of the channel protocol. Every
// accepted connection is handed to the test through accept.
type phoenixServer struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader
	conns    chan *serverConn
}

type serverConn struct {
	conn     *websocket.Conn
	received chan realtime.Envelope
	wmu      sync.Mutex
}

func newPhoenixServer(t *testing.T) *phoenixServer {
	t.Helper()

	s := &phoenixServer{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		conns: make(chan *serverConn, 4),
	}
	s.srv = httptest.NewServer(http.HandlerFunc(s.handleWebSocket))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *phoenixServer) URL() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/socket/websocket"
}

func (s *phoenixServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	sc := &serverConn{
		conn:     conn,
		received: make(chan realtime.Envelope, 64),
	}
	go sc.readLoop()
	s.conns <- sc
}

func (s *phoenixServer) accept(t *testing.T) *serverConn {
	t.Helper()

	select {
	case sc := <-s.conns:
		t.Cleanup(func() { sc.conn.Close() })
		return sc
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for client connection")
		return nil
	}
}

func (sc *serverConn) readLoop() {
	defer close(sc.received)
	for {
		var env realtime.Envelope
		if err := sc.conn.ReadJSON(&env); err != nil {
			return
		}
		sc.received <- env
	}
}

// next returns the next frame the client sent
func (sc *serverConn) next(t *testing.T) realtime.Envelope {
	t.Helper()

	select {
	case env, ok := <-sc.received:
		require.True(t, ok, "client connection closed")
		return env
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for frame")
		return realtime.Envelope{}
	}
}

func (sc *serverConn) send(t *testing.T, env realtime.Envelope) {
	t.Helper()

	sc.wmu.Lock()
	defer sc.wmu.Unlock()
	require.NoError(t, sc.conn.WriteJSON(env))
}

func (sc *serverConn) sendRaw(t *testing.T, data string) {
	t.Helper()

	sc.wmu.Lock()
	defer sc.wmu.Unlock()
	require.NoError(t, sc.conn.WriteMessage(websocket.TextMessage, []byte(data)))
}

func (sc *serverConn) reply(t *testing.T, req realtime.Envelope, status string) {
	t.Helper()

	sc.send(t, realtime.Envelope{
		Topic:   req.Topic,
		Event:   realtime.EventReply,
		Payload: realtime.Payload{"status": status, "response": map[string]any{}},
		Ref:     req.Ref,
	})
}

// testConfig returns a configuration without rate limiting for url
func testConfig(url string) *Config {
	cfg := DefaultConfig(url)
	cfg.RateLimitConfig = NoRateLimit()
	return cfg
}

// dial connects a new client to s and returns both ends
func dial(t *testing.T, s *phoenixServer, mutate func(*Config)) (*Connection, *serverConn) {
	t.Helper()

	cfg := testConfig(s.URL())
	if mutate != nil {
		mutate(cfg)
	}
	c := New(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	require.NoError(t, c.Connect(ctx))
	t.Cleanup(func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), waitTimeout)
		defer cancel()
		c.Close(closeCtx)
	})

	return c, s.accept(t)
}

// listen runs c.Listen in the background and returns its result channel
func listen(t *testing.T, c *Connection) (context.CancelFunc, <-chan error) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	errCh := make(chan error, 1)
	go func() { errCh <- c.Listen(ctx) }()
	return cancel, errCh
}

func waitErr(t *testing.T, errCh <-chan error) error {
	t.Helper()

	select {
	case err := <-errCh:
		return err
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for loop to return")
		return nil
	}
}
