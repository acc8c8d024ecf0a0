package channel

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JarrarHaider26/Jerry-AI-Assistant/internal/model"
)

// echoServer is a stand-in bridge executor: it answers every command with a
// success reply carrying the same request id.
type echoServer struct {
	upgrader websocket.Upgrader

	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *echoServer) handler(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	for {
		var cmd model.WrappedCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			return
		}
		reply := model.Reply{Status: model.ReplySuccess, Message: "executed " + cmd.Action, ReqID: cmd.ReqID}
		if err := conn.WriteJSON(reply); err != nil {
			return
		}
	}
}

func (s *echoServer) push(v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.WriteJSON(v)
}

func startBridge(t *testing.T, url string) *Bridge {
	t.Helper()
	b := NewBridge(model.BridgeConfig{
		URL:              url,
		ReplyTimeoutSec:  10,
		ReconnectSec:     1,
		HandshakeTimeout: 2,
	}, nil, model.LogLevelError)
	return b
}

func waitConnected(t *testing.T, b *Bridge) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if b.Connected() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("bridge never connected")
}

func TestBridge_SendAndAwait(t *testing.T) {
	srv := &echoServer{}
	ts := httptest.NewServer(http.HandlerFunc(srv.handler))
	defer ts.Close()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")

	b := startBridge(t, wsURL)
	b.Start(context.Background())
	defer b.Close()
	waitConnected(t, b)

	cmd := model.WrappedCommand{
		Command:   model.Command{Action: "open_app", Target: "browser"},
		AuthToken: "tok",
		Timestamp: time.Now().UnixMilli(),
		Nonce:     "abc",
	}
	reply, err := b.SendAndAwait(context.Background(), cmd, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, model.ReplySuccess, reply.Status)
	assert.Equal(t, "executed open_app", reply.Message)
	assert.Equal(t, 0, b.Pending(), "slot released after resolution")
}

func TestBridge_RoutesSnapshots(t *testing.T) {
	srv := &echoServer{}
	ts := httptest.NewServer(http.HandlerFunc(srv.handler))
	defer ts.Close()

	b := startBridge(t, "ws"+strings.TrimPrefix(ts.URL, "http"))

	got := make(chan model.Snapshot, 1)
	b.SetSnapshotFunc(func(s model.Snapshot) { got <- s })
	b.Start(context.Background())
	defer b.Close()
	waitConnected(t, b)

	require.NoError(t, srv.push(map[string]interface{}{
		"type":   "system_monitor",
		"cpu":    map[string]interface{}{"percent": 42.5, "cores": 8},
		"memory": map[string]interface{}{"percent": 60.0, "total_gb": 16.0},
	}))

	select {
	case snap := <-got:
		assert.Equal(t, 42.5, snap.CPU.Percent)
		assert.Equal(t, 8, snap.CPU.Cores)
		assert.Equal(t, 16.0, snap.Memory.TotalGB)
	case <-time.After(2 * time.Second):
		t.Fatal("snapshot never routed")
	}
}

func TestBridge_SendWhileDisconnected(t *testing.T) {
	b := startBridge(t, "ws://127.0.0.1:1/nowhere")
	assert.False(t, b.Connected())

	err := b.Send(context.Background(), model.WrappedCommand{Command: model.Command{Action: "x"}})
	assert.ErrorIs(t, err, ErrNotConnected)

	_, err = b.SendAndAwait(context.Background(), model.WrappedCommand{Command: model.Command{Action: "x"}}, 10*time.Second)
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Equal(t, 0, b.Pending(), "failed send releases its slot")
}

func TestBridge_DisconnectFailsPending(t *testing.T) {
	block := make(chan struct{})
	upgrader := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		// Swallow one command, then drop the connection without replying.
		var cmd model.WrappedCommand
		conn.ReadJSON(&cmd)
		conn.Close()
		<-block
	}))
	defer ts.Close()
	defer close(block)

	b := startBridge(t, "ws"+strings.TrimPrefix(ts.URL, "http"))
	b.Start(context.Background())
	defer b.Close()
	waitConnected(t, b)

	start := time.Now()
	reply, err := b.SendAndAwait(context.Background(),
		model.WrappedCommand{Command: model.Command{Action: "doomed"}}, 10*time.Second)
	require.NoError(t, err)
	assert.True(t, reply.IsError())
	assert.Less(t, time.Since(start), 8*time.Second, "disconnect resolves pending without waiting out the timeout")
}

func TestBridge_ReconnectsAfterDrop(t *testing.T) {
	srv := &echoServer{}
	ts := httptest.NewServer(http.HandlerFunc(srv.handler))
	defer ts.Close()

	b := startBridge(t, "ws"+strings.TrimPrefix(ts.URL, "http"))

	var mu sync.Mutex
	var states []bool
	b.SetStateFunc(func(connected bool) {
		mu.Lock()
		states = append(states, connected)
		mu.Unlock()
	})

	b.Start(context.Background())
	defer b.Close()
	waitConnected(t, b)

	// Kill the server-side connection; the client must come back.
	srv.mu.Lock()
	srv.conn.Close()
	srv.mu.Unlock()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(states)
		mu.Unlock()
		if n >= 3 && b.Connected() {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(states), 3, "connect, disconnect, reconnect")
	assert.Equal(t, []bool{true, false, true}, states[:3])
}
