package live_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"taskboard/internal/live"
	"taskboard/internal/wire"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoServer upgrades every request and echoes messages back. It counts
// accepted connections and can drop all of them.
type echoServer struct {
	*httptest.Server
	accepted atomic.Int32

	mu    sync.Mutex
	conns []*websocket.Conn
}

func newEchoServer(t *testing.T) *echoServer {
	es := &echoServer{}
	up := websocket.Upgrader{}
	es.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		es.accepted.Add(1)
		es.mu.Lock()
		es.conns = append(es.conns, ws)
		es.mu.Unlock()
		for {
			mt, msg, err := ws.ReadMessage()
			if err != nil {
				return
			}
			if err := ws.WriteMessage(mt, msg); err != nil {
				return
			}
		}
	}))
	t.Cleanup(es.Close)
	return es
}

func (es *echoServer) wsURL() string {
	return "ws" + strings.TrimPrefix(es.URL, "http")
}

func (es *echoServer) dropAll() {
	es.mu.Lock()
	defer es.mu.Unlock()
	for _, ws := range es.conns {
		ws.Close()
	}
	es.conns = nil
}

func fastSettings(url string) *live.Settings {
	s := live.DefaultSettings(url)
	s.ReconnectAttempts = 2
	s.ReconnectDelay = 10 * time.Millisecond
	s.HandshakeTimeout = time.Second
	return s
}

func TestConn_ConnectIsIdempotentUnderConcurrency(t *testing.T) {
	srv := newEchoServer(t)
	c := live.NewConn(fastSettings(srv.wsURL()), quietLog())
	defer c.Disconnect()

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = c.Connect(context.Background())
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.True(t, c.Connected())
	assert.Equal(t, int32(1), srv.accepted.Load())
}

func TestConn_EmitAndDispatch(t *testing.T) {
	srv := newEchoServer(t)
	c := live.NewConn(fastSettings(srv.wsURL()), quietLog())
	defer c.Disconnect()

	got := make(chan json.RawMessage, 1)
	off := c.On(wire.EventSubscribeBoard, func(data json.RawMessage) { got <- data })
	defer off()

	require.NoError(t, c.Connect(context.Background()))
	require.NoError(t, c.Emit(wire.EventSubscribeBoard, wire.UnsubscribeIntent{BoardID: 3}))

	select {
	case data := <-got:
		var p wire.UnsubscribeIntent
		require.NoError(t, json.Unmarshal(data, &p))
		assert.Equal(t, int64(3), p.BoardID)
	case <-time.After(2 * time.Second):
		t.Fatal("no echo received")
	}
}

func TestConn_DisconnectIsSafeTwice(t *testing.T) {
	srv := newEchoServer(t)
	c := live.NewConn(fastSettings(srv.wsURL()), quietLog())

	require.NoError(t, c.Connect(context.Background()))
	assert.NoError(t, c.Disconnect())
	assert.NoError(t, c.Disconnect())
	assert.False(t, c.Connected())
	assert.ErrorIs(t, c.Emit(wire.EventUnsubscribeBoard, wire.UnsubscribeIntent{}), live.ErrNotConnected)
}

func TestConn_RetriesAreBounded(t *testing.T) {
	srv := newEchoServer(t)
	url := srv.wsURL()
	srv.Close()

	c := live.NewConn(fastSettings(url), quietLog())
	err := c.Connect(context.Background())

	assert.ErrorIs(t, err, live.ErrRetriesExhausted)
	assert.False(t, c.Connected())
}

func TestConn_ReconnectsAfterDrop(t *testing.T) {
	srv := newEchoServer(t)
	c := live.NewConn(fastSettings(srv.wsURL()), quietLog())
	defer c.Disconnect()

	var connects atomic.Int32
	c.OnConnect(func() { connects.Add(1) })

	require.NoError(t, c.Connect(context.Background()))
	srv.dropAll()

	assert.Eventually(t, func() bool {
		return connects.Load() == 2 && c.Connected()
	}, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(2), srv.accepted.Load())
}

func TestConn_DisconnectDuringReconnectStaysDown(t *testing.T) {
	srv := newEchoServer(t)
	var refuse atomic.Bool
	attempts := make(chan struct{}, 16)
	gated := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if refuse.Load() {
			select {
			case attempts <- struct{}{}:
			default:
			}
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		srv.Config.Handler.ServeHTTP(w, r)
	}))
	defer gated.Close()

	settings := fastSettings("ws" + strings.TrimPrefix(gated.URL, "http"))
	settings.ReconnectAttempts = 50
	c := live.NewConn(settings, quietLog())
	require.NoError(t, c.Connect(context.Background()))

	refuse.Store(true)
	srv.dropAll()
	select {
	case <-attempts:
	case <-time.After(3 * time.Second):
		t.Fatal("no reconnect attempt")
	}

	require.NoError(t, c.Disconnect())
	refuse.Store(false)

	assert.Never(t, c.Connected, 300*time.Millisecond, 20*time.Millisecond)
	assert.Equal(t, int32(1), srv.accepted.Load())

	// an explicit Connect clears the stop
	require.NoError(t, c.Connect(context.Background()))
	assert.True(t, c.Connected())
	require.NoError(t, c.Disconnect())
}
