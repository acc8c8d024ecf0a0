package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/JarrarHaider26/Jerry-AI-Assistant/internal/model"
)

// SnapshotFunc receives each inbound telemetry broadcast.
type SnapshotFunc func(model.Snapshot)

// StateFunc is notified on connect (true) and disconnect (false).
type StateFunc func(connected bool)

// Bridge is a websocket client for the command executor. It reconnects with
// a fixed backoff, writes JSON command envelopes, and routes inbound
// messages: correlated replies to their waiting callers, telemetry
// broadcasts to the snapshot handler.
type Bridge struct {
	url              string
	reconnectEvery   time.Duration
	handshakeTimeout time.Duration

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool

	pending    *pendingTable
	snapshotFn SnapshotFunc
	stateFn    StateFunc

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	logger   *log.Logger
	logLevel model.LogLevel
}

func NewBridge(cfg model.BridgeConfig, logger *log.Logger, level model.LogLevel) *Bridge {
	return &Bridge{
		url:              cfg.URL,
		reconnectEvery:   time.Duration(cfg.ReconnectSec) * time.Second,
		handshakeTimeout: time.Duration(cfg.HandshakeTimeout) * time.Second,
		pending:          newPendingTable(),
		stop:             make(chan struct{}),
		logger:           logger,
		logLevel:         level,
	}
}

// SetSnapshotFunc registers the telemetry broadcast handler. Must be called
// before Start.
func (b *Bridge) SetSnapshotFunc(fn SnapshotFunc) { b.snapshotFn = fn }

// SetStateFunc registers the connection state handler. Must be called
// before Start.
func (b *Bridge) SetStateFunc(fn StateFunc) { b.stateFn = fn }

// Start launches the connect/read loop.
func (b *Bridge) Start(ctx context.Context) {
	b.wg.Add(1)
	go b.loop(ctx)
}

func (b *Bridge) loop(ctx context.Context) {
	defer b.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.stop:
			return
		default:
		}

		dialer := websocket.Dialer{HandshakeTimeout: b.handshakeTimeout}
		conn, _, err := dialer.DialContext(ctx, b.url, nil)
		if err != nil {
			b.log(model.LogLevelWarn, "dial_failed url=%s error=%v retry=%s", b.url, err, b.reconnectEvery)
			if !b.sleep(ctx) {
				return
			}
			continue
		}

		b.mu.Lock()
		b.conn = conn
		b.connected = true
		b.mu.Unlock()
		b.log(model.LogLevelInfo, "connected url=%s", b.url)
		if b.stateFn != nil {
			b.stateFn(true)
		}

		b.readLoop(conn)

		b.mu.Lock()
		b.conn = nil
		b.connected = false
		b.mu.Unlock()
		conn.Close()
		b.pending.failAll("bridge connection lost")
		b.log(model.LogLevelWarn, "disconnected url=%s retry=%s", b.url, b.reconnectEvery)
		if b.stateFn != nil {
			b.stateFn(false)
		}

		if !b.sleep(ctx) {
			return
		}
	}
}

func (b *Bridge) sleep(ctx context.Context) bool {
	timer := time.NewTimer(b.reconnectEvery)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-b.stop:
		return false
	case <-timer.C:
		return true
	}
}

// readLoop drains inbound messages until the connection errors.
func (b *Bridge) readLoop(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		b.route(raw)
	}
}

// route classifies one inbound message. Telemetry broadcasts carry
// type=system_monitor; anything with a status field is a command reply.
func (b *Bridge) route(raw []byte) {
	var probe struct {
		Type   string            `json:"type"`
		Status model.ReplyStatus `json:"status"`
		ReqID  string            `json:"_reqId"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		b.log(model.LogLevelDebug, "recv_unparseable bytes=%d error=%v", len(raw), err)
		return
	}

	if probe.Type == "system_monitor" {
		if b.snapshotFn == nil {
			return
		}
		var snap model.Snapshot
		if err := json.Unmarshal(raw, &snap); err != nil {
			b.log(model.LogLevelWarn, "snapshot_unparseable error=%v", err)
			return
		}
		b.snapshotFn(snap)
		return
	}

	if probe.Status != "" {
		var reply model.Reply
		if err := json.Unmarshal(raw, &reply); err != nil {
			return
		}
		if !b.pending.resolve(reply) {
			b.log(model.LogLevelDebug, "reply_unmatched reqId=%s status=%s", reply.ReqID, reply.Status)
		}
		return
	}

	b.log(model.LogLevelDebug, "recv_ignored type=%q", probe.Type)
}

// Connected reports whether a live connection is open.
func (b *Bridge) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

// Send writes one command envelope. Writes are serialized; gorilla permits
// one concurrent writer.
func (b *Bridge) Send(ctx context.Context, cmd model.WrappedCommand) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil {
		return ErrNotConnected
	}
	if deadline, ok := ctx.Deadline(); ok {
		b.conn.SetWriteDeadline(deadline)
	} else {
		b.conn.SetWriteDeadline(time.Now().Add(maxReplyTimeout))
	}
	if err := b.conn.WriteJSON(cmd); err != nil {
		return fmt.Errorf("write command %s: %w", cmd.Action, err)
	}
	b.log(model.LogLevelDebug, "sent action=%s reqId=%s", cmd.Action, cmd.ReqID)
	return nil
}

// SendAndAwait delivers a command and blocks for its correlated reply. On
// timeout the request is abandoned and an error-status Reply returned; a
// reply arriving later is dropped as unmatched.
func (b *Bridge) SendAndAwait(ctx context.Context, cmd model.WrappedCommand, timeout time.Duration) (model.Reply, error) {
	timeout = ClampTimeout(timeout)
	if cmd.ReqID == "" {
		id, err := model.GenerateID(model.IDTypeCommand)
		if err != nil {
			return model.Reply{}, fmt.Errorf("generate request id: %w", err)
		}
		cmd.ReqID = id
	}

	ch := b.pending.register(cmd.ReqID)
	if err := b.Send(ctx, cmd); err != nil {
		b.pending.drop(cmd.ReqID)
		return model.Reply{}, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case reply := <-ch:
		return reply, nil
	case <-timer.C:
		b.pending.drop(cmd.ReqID)
		b.log(model.LogLevelWarn, "reply_timeout reqId=%s action=%s timeout=%s", cmd.ReqID, cmd.Action, timeout)
		return timeoutReply(cmd.ReqID, timeout), nil
	case <-ctx.Done():
		b.pending.drop(cmd.ReqID)
		return model.Reply{}, ctx.Err()
	}
}

// Pending reports the number of in-flight correlated requests.
func (b *Bridge) Pending() int { return b.pending.size() }

// Close stops reconnecting, closes any open connection, and waits for the
// loop to exit.
func (b *Bridge) Close() {
	b.stopOnce.Do(func() { close(b.stop) })
	b.mu.Lock()
	if b.conn != nil {
		b.conn.Close()
	}
	b.mu.Unlock()
	b.wg.Wait()
}

func (b *Bridge) log(level model.LogLevel, format string, args ...any) {
	if level < b.logLevel || b.logger == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)
	b.logger.Printf("%s %s bridge: %s", time.Now().Format(time.RFC3339), level, msg)
}
