package websocket

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/luciancaetano/realtime"
	"github.com/luciancaetano/realtime/internal/metrics"
	"github.com/luciancaetano/realtime/internal/protocol"
)

// writeRequest is a frame queued for the write pump. The pump reports the
// outcome of the write on result.
type writeRequest struct {
	data   []byte
	result chan error
}

// Connection implements the realtime.Connection interface
type Connection struct {
	id      string
	cfg     Config
	logger  zerolog.Logger
	metrics *metrics.ClientMetrics
	clock   clockwork.Clock
	limiter *rate.Limiter // Rate limiter for outgoing frames

	connectMu sync.Mutex
	mu        sync.RWMutex
	conn      *websocket.Conn
	channels  map[string][]*Channel

	status   atomic.Int32
	sendCh   chan writeRequest
	incoming chan []byte
	done     chan struct{}
	readDone chan struct{}

	termOnce sync.Once
	errMu    sync.Mutex
	err      error
}

// New creates a connection for cfg. It does not dial; call Connect.
func New(cfg *Config) *Connection {
	conf := *cfg
	conf.withDefaults()

	id := uuid.New().String()
	conn := &Connection{
		id:       id,
		cfg:      conf,
		logger:   conf.Logger.With().Str("component", "realtime").Str("conn_id", id).Logger(),
		metrics:  conf.Metrics,
		clock:    conf.Clock,
		limiter:  conf.RateLimitConfig.limiter(),
		channels: make(map[string][]*Channel),
		sendCh:   make(chan writeRequest, sendBufferSize),
		incoming: make(chan []byte, receiveBufferSize),
		done:     make(chan struct{}),
		readDone: make(chan struct{}),
	}
	conn.metrics.SetStatus(int32(realtime.StatusDisconnected))
	return conn
}

// ID returns a unique identifier for the connection
func (c *Connection) ID() string {
	return c.id
}

// Status returns the current lifecycle state
func (c *Connection) Status() realtime.Status {
	return realtime.Status(c.status.Load())
}

func (c *Connection) setStatus(s realtime.Status) {
	c.status.Store(int32(s))
	c.metrics.SetStatus(int32(s))
}

// Done is closed once the connection is closed
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// Err returns why the connection terminated, nil for a clean close
func (c *Connection) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

func (c *Connection) socket() *websocket.Conn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn
}

// Connect dials the server and starts the read and write pumps
func (c *Connection) Connect(ctx context.Context) error {
	c.connectMu.Lock()
	defer c.connectMu.Unlock()

	switch c.Status() {
	case realtime.StatusDisconnected:
	case realtime.StatusConnected:
		return &realtime.RealtimeError{Op: "connect", Err: realtime.ErrAlreadyConnected}
	default:
		return &realtime.RealtimeError{Op: "connect", Err: realtime.ErrConnectionClosed}
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: c.cfg.HandshakeTimeout,
	}
	conn, resp, err := dialer.DialContext(ctx, c.cfg.URL, c.cfg.Header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		c.logger.Error().Err(err).Str("url", c.cfg.URL).Msg("connection failed")
		return &realtime.ConnectionFailedError{URL: c.cfg.URL, Err: err}
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.setStatus(realtime.StatusConnected)

	go c.readPump(conn)
	go c.writePump(conn)

	c.logger.Info().Str("url", c.cfg.URL).Msg("connection was successful")
	return nil
}

// SetChannel creates a channel for topic and registers it
func (c *Connection) SetChannel(topic string) (realtime.Channel, error) {
	if c.Status() != realtime.StatusConnected {
		return nil, &realtime.NotConnectedError{Op: "SetChannel"}
	}
	return c.addChannel(topic), nil
}

func (c *Connection) addChannel(topic string) *Channel {
	ch := newChannel(c, topic, c.cfg.Params)

	c.mu.Lock()
	c.channels[topic] = append(c.channels[topic], ch)
	c.mu.Unlock()

	c.logger.Debug().Str("topic", topic).Msg("channel registered")
	return ch
}

// channelsFor returns a copy of the channels registered for topic
func (c *Connection) channelsFor(topic string) []*Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()

	chans := c.channels[topic]
	if len(chans) == 0 {
		return nil
	}
	out := make([]*Channel, len(chans))
	copy(out, chans)
	return out
}

// Summary returns a snapshot of the topic registry
func (c *Connection) Summary() map[string][]realtime.Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string][]realtime.Channel, len(c.channels))
	for topic, chans := range c.channels {
		list := make([]realtime.Channel, len(chans))
		for i, ch := range chans {
			list[i] = ch
		}
		out[topic] = list
	}
	return out
}

// Listen dispatches inbound frames until the connection closes or ctx is done.
// Only one Listen should run at a time.
func (c *Connection) Listen(ctx context.Context) error {
	if c.socket() == nil {
		return &realtime.NotConnectedError{Op: "Listen"}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-c.incoming:
			if !ok {
				c.logger.Info().Msg("connection closed, listener stopped")
				return nil
			}
			c.dispatch(data)
		}
	}
}

// dispatch routes one inbound frame. Replies resolve pending joins and are
// never handed to listeners.
func (c *Connection) dispatch(data []byte) {
	env, err := protocol.Decode(data)
	if err != nil {
		c.metrics.DecodeError()
		c.logger.Warn().Err(err).Int("size", len(data)).Msg("dropping undecodable frame")
		return
	}
	c.metrics.FrameReceived(env.Event)

	channels := c.channelsFor(env.Topic)
	if env.Event == realtime.EventReply {
		for _, ch := range channels {
			ch.handleReply(env)
		}
		return
	}

	if len(channels) == 0 {
		c.logger.Debug().Str("topic", env.Topic).Str("event", env.Event).Msg("no channel for topic")
		return
	}
	for _, ch := range channels {
		ch.trigger(env)
	}
}

func (c *Connection) invoke(env realtime.Envelope, cb realtime.Callback) {
	if c.cfg.Dispatch == AsyncDispatch {
		go c.call(env, cb)
		return
	}
	c.call(env, cb)
}

func (c *Connection) call(env realtime.Envelope, cb realtime.Callback) {
	defer func() {
		if r := recover(); r != nil {
			c.metrics.CallbackPanic()
			c.logger.Error().
				Interface("panic", r).
				Str("topic", env.Topic).
				Str("event", env.Event).
				Msg("listener callback panicked")
		}
	}()

	c.metrics.CallbackDispatched()
	cb(env.Payload)
}

// KeepAlive sends a heartbeat every heartbeat interval until the connection
// closes or ctx is done
func (c *Connection) KeepAlive(ctx context.Context) error {
	if c.socket() == nil {
		return &realtime.NotConnectedError{Op: "KeepAlive"}
	}

	for {
		hb := realtime.Envelope{
			Topic:   realtime.TopicPhoenix,
			Event:   realtime.EventHeartbeat,
			Payload: realtime.HeartbeatPayload(),
		}
		if err := c.send(ctx, hb); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, realtime.ErrConnectionClosed) || c.Status() == realtime.StatusClosed {
				c.logger.Info().Msg("connection with server closed, heartbeat stopped")
				return nil
			}
			return &realtime.RealtimeError{Op: "heartbeat", Err: err}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			c.logger.Info().Msg("connection with server closed, heartbeat stopped")
			return nil
		case <-c.clock.After(c.cfg.HeartbeatInterval):
		}
	}
}

// Run runs Listen and KeepAlive until both return. The first error stops the
// other loop and is returned.
func (c *Connection) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	run := func(loop func(context.Context) error) {
		defer wg.Done()
		if err := loop(runCtx); err != nil {
			errOnce.Do(func() {
				firstErr = err
				cancel()
			})
		}
	}

	wg.Add(2)
	go run(c.Listen)
	go run(c.KeepAlive)
	wg.Wait()

	return firstErr
}

// Send writes env to the socket
func (c *Connection) Send(ctx context.Context, env realtime.Envelope) error {
	if err := c.send(ctx, env); err != nil {
		return &realtime.RealtimeError{Op: "send", Err: err}
	}
	return nil
}

// send queues env on the write pump and waits for the write to complete
func (c *Connection) send(ctx context.Context, env realtime.Envelope) error {
	switch c.Status() {
	case realtime.StatusDisconnected:
		return realtime.ErrNotConnected
	case realtime.StatusClosing, realtime.StatusClosed:
		return realtime.ErrConnectionClosed
	}

	data, err := protocol.Encode(env)
	if err != nil {
		return err
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	req := writeRequest{data: data, result: make(chan error, 1)}
	select {
	case c.sendCh <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return realtime.ErrConnectionClosed
	}

	select {
	case err := <-req.result:
		return c.sent(env, err)
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		// The pump may have finished the write before shutting down.
		select {
		case err := <-req.result:
			return c.sent(env, err)
		default:
			return realtime.ErrConnectionClosed
		}
	}
}

func (c *Connection) sent(env realtime.Envelope, err error) error {
	if err != nil {
		return err
	}
	c.metrics.FrameSent(env.Event)
	c.logger.Trace().Str("topic", env.Topic).Str("event", env.Event).Msg("frame sent")
	return nil
}

// readPump reads frames from the websocket and hands them to Listen
func (c *Connection) readPump(conn *websocket.Conn) {
	defer close(c.readDone)
	defer close(c.incoming)

	for {
		if c.cfg.ReadTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			c.terminate("read", err)
			return
		}

		select {
		case c.incoming <- data:
		case <-c.done:
			return
		}
	}
}

// writePump is the only writer of data frames on the websocket
func (c *Connection) writePump(conn *websocket.Conn) {
	for {
		select {
		case req := <-c.sendCh:
			conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			err := conn.WriteMessage(websocket.TextMessage, req.data)
			if err != nil {
				c.terminate("write", err)
			}
			req.result <- err
			if err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}

// Close closes the connection with a normal closure
func (c *Connection) Close(ctx context.Context) error {
	return c.CloseWithCode(ctx, websocket.CloseNormalClosure, "")
}

// CloseWithCode sends a close frame with code and reason, waits briefly for
// the server to answer and closes the socket
func (c *Connection) CloseWithCode(ctx context.Context, code int, reason string) error {
	c.connectMu.Lock()
	switch c.Status() {
	case realtime.StatusDisconnected:
		c.terminate("close", nil)
		c.connectMu.Unlock()
		return nil
	case realtime.StatusConnected:
		c.setStatus(realtime.StatusClosing)
		c.connectMu.Unlock()
	default:
		c.connectMu.Unlock()
		select {
		case <-c.done:
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	}

	deadline := time.Now().Add(closeGracePeriod)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	message := websocket.FormatCloseMessage(code, reason)
	if err := c.socket().WriteControl(websocket.CloseMessage, message, deadline); err != nil {
		c.logger.Debug().Err(err).Msg("failed to send close frame")
	} else {
		// Wait for the server to echo the close frame.
		timer := time.NewTimer(time.Until(deadline))
		select {
		case <-c.readDone:
		case <-ctx.Done():
		case <-timer.C:
		}
		timer.Stop()
	}

	c.terminate("close", nil)
	return nil
}

// terminate moves the connection to StatusClosed exactly once. err is kept as
// the terminal cause unless it is a normal closure or the close was requested.
func (c *Connection) terminate(op string, err error) {
	c.termOnce.Do(func() {
		requested := c.Status() == realtime.StatusClosing || op == "close"
		cause := err
		if requested || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
			cause = nil
		}

		if cause != nil {
			c.errMu.Lock()
			c.err = &realtime.RealtimeError{Op: op, Err: cause}
			c.errMu.Unlock()
		}

		c.setStatus(realtime.StatusClosed)
		close(c.done)

		if conn := c.socket(); conn != nil {
			conn.Close()
		}

		c.mu.RLock()
		for _, chans := range c.channels {
			for _, ch := range chans {
				ch.markLeft()
			}
		}
		c.mu.RUnlock()

		switch {
		case cause == nil:
			c.logger.Info().Msg("connection closed")
		case websocket.IsUnexpectedCloseError(cause, websocket.CloseGoingAway, websocket.CloseNormalClosure):
			c.logger.Warn().Err(cause).Str("op", op).Msg("connection closed unexpectedly")
		default:
			c.logger.Warn().Err(cause).Str("op", op).Msg("connection with server closed")
		}
	})
}
