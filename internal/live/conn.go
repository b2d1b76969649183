package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"taskboard/internal/wire"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
)

var (
	ErrNotConnected     = errors.New("live channel not connected")
	ErrRetriesExhausted = errors.New("live channel retries exhausted")
	ErrSendTimeout      = errors.New("live channel send timed out")
)

type Settings struct {
	URL    string
	Header http.Header

	HandshakeTimeout time.Duration
	// ReconnectAttempts bounds the retries after a failed dial or a dropped
	// connection. Once exhausted the connection stays down until Connect.
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	WriteTimeout      time.Duration
	PingInterval      time.Duration
	ReadTimeout       time.Duration
	SendBuffer        int
}

func DefaultSettings(url string) *Settings {
	return &Settings{
		URL:               url,
		HandshakeTimeout:  5 * time.Second,
		ReconnectAttempts: 5,
		ReconnectDelay:    1 * time.Second,
		WriteTimeout:      5 * time.Second,
		PingInterval:      15 * time.Second,
		ReadTimeout:       45 * time.Second,
		SendBuffer:        16,
	}
}

// Handler receives the raw payload of one event.
type Handler func(data json.RawMessage)

type session struct {
	ws     *websocket.Conn
	send   chan []byte
	ctx    context.Context
	cancel context.CancelFunc
}

// Conn owns the single duplex channel to the server. Create one per process
// at the composition root and hand it to subscribers.
type Conn struct {
	settings Settings
	dialer   *websocket.Dialer
	log      *logrus.Entry

	mu         sync.Mutex
	sess       *session
	dialing    chan struct{}
	dialErr    error
	dialCancel context.CancelFunc
	stopped    bool

	hmu      sync.Mutex
	handlers map[string]map[uuid.UUID]Handler
	hooks    map[uuid.UUID]func()
}

func NewConn(settings *Settings, log *logrus.Entry) *Conn {
	return &Conn{
		settings: *settings,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: settings.HandshakeTimeout,
		},
		log:      log,
		handlers: make(map[string]map[uuid.UUID]Handler),
		hooks:    make(map[uuid.UUID]func()),
	}
}

// Connect returns at once when the channel is live. Concurrent callers
// while a dial is in flight wait for that same dial instead of starting
// another one.
func (c *Conn) Connect(ctx context.Context) error {
	return c.connect(ctx, false)
}

// connect dials unless the channel is already up. An automatic reconnect
// never clears a Disconnect that happened while it was pending.
func (c *Conn) connect(ctx context.Context, auto bool) error {
	c.mu.Lock()
	if auto && c.stopped {
		c.mu.Unlock()
		return ErrNotConnected
	}
	if c.sess != nil {
		c.mu.Unlock()
		return nil
	}
	if wait := c.dialing; wait != nil {
		c.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.sess != nil {
			return nil
		}
		return c.dialErr
	}
	done := make(chan struct{})
	dialCtx, cancel := context.WithCancel(ctx)
	c.dialing = done
	c.dialCancel = cancel
	if !auto {
		c.stopped = false
	}
	c.mu.Unlock()

	ws, err := c.dial(dialCtx)
	cancel()

	c.mu.Lock()
	c.dialing = nil
	c.dialCancel = nil
	c.dialErr = err
	if err == nil && c.stopped {
		ws.Close()
		err = ErrNotConnected
		c.dialErr = err
	}
	if err == nil {
		c.attach(ws)
	}
	c.mu.Unlock()
	close(done)

	if err != nil {
		return err
	}
	c.fireHooks()
	return nil
}

func (c *Conn) dial(ctx context.Context) (*websocket.Conn, error) {
	for attempt := 0; ; attempt++ {
		ws, _, err := c.dialer.DialContext(ctx, c.settings.URL, c.settings.Header)
		if err == nil {
			c.log.WithField("url", c.settings.URL).Info("live channel connected")
			return ws, nil
		}
		c.log.WithFields(logrus.Fields{"attempt": attempt + 1, "error": err}).Warn("live channel connect error")
		if attempt >= c.settings.ReconnectAttempts {
			return nil, fmt.Errorf("%w: %v", ErrRetriesExhausted, err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.settings.ReconnectDelay):
		}
	}
}

// attach starts the read and write loops. Caller holds c.mu.
func (c *Conn) attach(ws *websocket.Conn) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		ws:     ws,
		send:   make(chan []byte, c.settings.SendBuffer),
		ctx:    ctx,
		cancel: cancel,
	}
	c.sess = s
	go c.writeLoop(s)
	go c.readLoop(s)
}

// Disconnect tears the channel down and stops any reconnect in progress.
// Calling it while disconnected does nothing.
func (c *Conn) Disconnect() error {
	c.mu.Lock()
	c.stopped = true
	if c.dialCancel != nil {
		c.dialCancel()
	}
	s := c.sess
	c.sess = nil
	c.mu.Unlock()

	if s == nil {
		return nil
	}
	c.log.Info("live channel disconnecting")
	s.cancel()

	var result *multierror.Error
	deadline := time.Now().Add(c.settings.WriteTimeout)
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := s.ws.WriteControl(websocket.CloseMessage, msg, deadline); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		result = multierror.Append(result, err)
	}
	if err := s.ws.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

func (c *Conn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess != nil
}

// Emit queues one event for sending.
func (c *Conn) Emit(event string, data any) error {
	msg, err := wire.Encode(event, data)
	if err != nil {
		return err
	}
	c.mu.Lock()
	s := c.sess
	c.mu.Unlock()
	if s == nil {
		return ErrNotConnected
	}
	select {
	case s.send <- msg:
		return nil
	case <-s.ctx.Done():
		return ErrNotConnected
	case <-time.After(c.settings.WriteTimeout):
		return ErrSendTimeout
	}
}

// On registers h for event and returns a function removing it.
func (c *Conn) On(event string, h Handler) (off func()) {
	id := uuid.New()
	c.hmu.Lock()
	if c.handlers[event] == nil {
		c.handlers[event] = make(map[uuid.UUID]Handler)
	}
	c.handlers[event][id] = h
	c.hmu.Unlock()
	return func() {
		c.hmu.Lock()
		delete(c.handlers[event], id)
		c.hmu.Unlock()
	}
}

// OnConnect registers fn to run after every successful connection,
// including automatic reconnects.
func (c *Conn) OnConnect(fn func()) (off func()) {
	id := uuid.New()
	c.hmu.Lock()
	c.hooks[id] = fn
	c.hmu.Unlock()
	return func() {
		c.hmu.Lock()
		delete(c.hooks, id)
		c.hmu.Unlock()
	}
}

func (c *Conn) fireHooks() {
	c.hmu.Lock()
	fns := make([]func(), 0, len(c.hooks))
	for _, fn := range c.hooks {
		fns = append(fns, fn)
	}
	c.hmu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (c *Conn) dispatch(env wire.Envelope) {
	c.hmu.Lock()
	hs := make([]Handler, 0, len(c.handlers[env.Event]))
	for _, h := range c.handlers[env.Event] {
		hs = append(hs, h)
	}
	c.hmu.Unlock()
	if len(hs) == 0 {
		c.log.WithField("event", env.Event).Debug("no handler for event")
	}
	for _, h := range hs {
		h(env.Data)
	}
}

func (c *Conn) writeLoop(s *session) {
	ticker := time.NewTicker(c.settings.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case msg := <-s.send:
			s.ws.SetWriteDeadline(time.Now().Add(c.settings.WriteTimeout))
			if err := s.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.log.WithError(err).Warn("live channel write error")
				s.ws.Close()
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(c.settings.WriteTimeout)
			if err := s.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.log.WithError(err).Warn("live channel ping error")
				s.ws.Close()
				return
			}
		}
	}
}

// readLoop delivers events to handlers in arrival order, one at a time.
func (c *Conn) readLoop(s *session) {
	s.ws.SetPongHandler(func(string) error {
		return s.ws.SetReadDeadline(time.Now().Add(c.settings.ReadTimeout))
	})
	for {
		s.ws.SetReadDeadline(time.Now().Add(c.settings.ReadTimeout))
		_, msg, err := s.ws.ReadMessage()
		if err != nil {
			c.lost(s, err)
			return
		}
		env, err := wire.Decode(msg)
		if err != nil {
			c.log.WithError(err).Warn("dropping malformed live message")
			continue
		}
		c.dispatch(env)
	}
}

// lost handles a connection dropped by the transport.
func (c *Conn) lost(s *session, reason error) {
	c.mu.Lock()
	if c.sess != s {
		c.mu.Unlock()
		return
	}
	c.sess = nil
	stopped := c.stopped
	c.mu.Unlock()

	s.cancel()
	s.ws.Close()
	c.log.WithField("reason", reason).Warn("live channel disconnected")
	if stopped {
		return
	}
	go func() {
		if err := c.connect(context.Background(), true); errors.Is(err, ErrNotConnected) {
			c.log.Debug("live channel stopped, not reconnecting")
		} else if err != nil {
			c.log.WithError(err).Error("live channel reconnect failed, staying disconnected")
		}
	}()
}
