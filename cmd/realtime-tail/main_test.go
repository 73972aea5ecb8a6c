package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luciancaetano/realtime"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// newInsertServer accepts every join and answers it with one INSERT event
func newInsertServer(t *testing.T) string {
	t.Helper()

	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			var env realtime.Envelope
			if err := conn.ReadJSON(&env); err != nil {
				return
			}
			if env.Event != realtime.EventJoin {
				continue
			}
			conn.WriteJSON(realtime.Envelope{
				Topic:   env.Topic,
				Event:   realtime.EventReply,
				Payload: realtime.Payload{"status": realtime.ReplyStatusOK, "response": map[string]any{}},
				Ref:     env.Ref,
			})
			conn.WriteJSON(realtime.Envelope{
				Topic:   env.Topic,
				Event:   "INSERT",
				Payload: realtime.Payload{"record": map[string]any{"title": "buy milk"}},
			})
		}
	}))
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/socket/websocket"
}

func TestRunTailPrintsEvents(t *testing.T) {
	cfg := defaultTailConfig()
	cfg.URL = newInsertServer(t)
	cfg.Topics = []string{"realtime:public:todos"}
	require.NoError(t, cfg.validate())

	out := &syncBuffer{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- runTail(ctx, cfg, out, zerolog.Nop()) }()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "\n")
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runTail did not return after cancel")
	}

	var line eventLine
	first := strings.SplitN(out.String(), "\n", 2)[0]
	require.NoError(t, json.Unmarshal([]byte(first), &line))
	assert.Equal(t, "realtime:public:todos", line.Topic)
	assert.Equal(t, "INSERT", line.Event)
	assert.Equal(t, map[string]any{"title": "buy milk"}, line.Payload["record"])
	assert.False(t, line.Time.IsZero())
}

func TestRunTailConnectFailure(t *testing.T) {
	cfg := defaultTailConfig()
	cfg.URL = "ws://127.0.0.1:1/socket/websocket"
	cfg.Topics = []string{"room:1"}

	err := runTail(context.Background(), cfg, &syncBuffer{}, zerolog.Nop())
	var failed *realtime.ConnectionFailedError
	assert.ErrorAs(t, err, &failed)
}

func TestPrinterWritesOneLinePerEvent(t *testing.T) {
	out := &syncBuffer{}
	printer := newPrinter(out)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			printer("room:1", "new_msg")(realtime.Payload{"body": "hi"})
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 20)
	for _, l := range lines {
		var line eventLine
		require.NoError(t, json.Unmarshal([]byte(l), &line))
		assert.Equal(t, "new_msg", line.Event)
	}
}
