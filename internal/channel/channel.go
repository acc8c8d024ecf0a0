// Package channel delivers wrapped commands to the bridge executor and
// correlates its replies back to waiting callers.
package channel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/JarrarHaider26/Jerry-AI-Assistant/internal/model"
)

// Reply timeouts are clamped to this window regardless of configuration.
const (
	minReplyTimeout = 8 * time.Second
	maxReplyTimeout = 15 * time.Second
)

var (
	// ErrNotConnected is returned when no bridge connection is open.
	ErrNotConnected = errors.New("channel: bridge not connected")
)

// Sender is the delivery interface the rest of the relay depends on.
type Sender interface {
	// Connected reports whether a live bridge connection is open.
	Connected() bool
	// Send delivers a command without waiting for its reply.
	Send(ctx context.Context, cmd model.WrappedCommand) error
	// SendAndAwait delivers a command and blocks for its correlated reply.
	// A missing reply resolves with an error-status Reply, never a hang.
	SendAndAwait(ctx context.Context, cmd model.WrappedCommand, timeout time.Duration) (model.Reply, error)
}

// ClampTimeout bounds a reply timeout to the supported window. A
// non-positive value gets the default of 10 seconds.
func ClampTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return 10 * time.Second
	}
	if d < minReplyTimeout {
		return minReplyTimeout
	}
	if d > maxReplyTimeout {
		return maxReplyTimeout
	}
	return d
}

// pendingTable correlates reply messages back to waiting requests by their
// request ID. Each slot is resolved at most once.
type pendingTable struct {
	mu    sync.Mutex
	slots map[string]chan model.Reply
}

func newPendingTable() *pendingTable {
	return &pendingTable{slots: make(map[string]chan model.Reply)}
}

// register creates a one-shot slot for reqID. The channel is buffered so a
// resolver never blocks on a caller that already timed out.
func (p *pendingTable) register(reqID string) chan model.Reply {
	ch := make(chan model.Reply, 1)
	p.mu.Lock()
	p.slots[reqID] = ch
	p.mu.Unlock()
	return ch
}

// resolve delivers a reply to its waiting slot. Unmatched replies (late
// arrivals after timeout, unsolicited messages) report false.
func (p *pendingTable) resolve(reply model.Reply) bool {
	if reply.ReqID == "" {
		return false
	}
	p.mu.Lock()
	ch, ok := p.slots[reply.ReqID]
	if ok {
		delete(p.slots, reply.ReqID)
	}
	p.mu.Unlock()
	if !ok {
		return false
	}
	ch <- reply
	return true
}

// drop removes a slot without resolving it.
func (p *pendingTable) drop(reqID string) {
	p.mu.Lock()
	delete(p.slots, reqID)
	p.mu.Unlock()
}

// failAll resolves every pending slot with an error reply. Used when the
// connection drops so no caller is left waiting on a dead socket.
func (p *pendingTable) failAll(reason string) {
	p.mu.Lock()
	slots := p.slots
	p.slots = make(map[string]chan model.Reply)
	p.mu.Unlock()

	for reqID, ch := range slots {
		ch <- model.Reply{Status: model.ReplyError, Message: reason, ReqID: reqID}
	}
}

func (p *pendingTable) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.slots)
}

// timeoutReply is the synthetic reply for an expired wait.
func timeoutReply(reqID string, timeout time.Duration) model.Reply {
	return model.Reply{
		Status:  model.ReplyError,
		Message: fmt.Sprintf("no reply from bridge within %s", timeout),
		ReqID:   reqID,
	}
}
