// Package queue buffers commands that could not be delivered to the bridge
// and replays them in priority order under a token-bucket rate limit once a
// delivery function becomes available.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/JarrarHaider26/Jerry-AI-Assistant/internal/model"
)

// SendFunc delivers one command. A nil error means the bridge accepted it;
// channel-closed and delivery-rejected are indistinguishable to the queue
// and both consume a retry attempt.
type SendFunc func(ctx context.Context, cmd model.Command) error

var (
	// ErrEvicted resolves the ticket of an item pushed out by overflow.
	ErrEvicted = errors.New("queue: evicted on overflow")
	// ErrCleared resolves tickets of items dropped by Clear.
	ErrCleared = errors.New("queue: cleared")
	// ErrRetriesExhausted resolves a ticket whose item failed its last attempt.
	ErrRetriesExhausted = errors.New("queue: retries exhausted")
)

// Result is the terminal outcome of a queued command, delivered once on the
// ticket's Done channel.
type Result struct {
	Err      error
	Attempts int
}

// Ticket is the handle returned by Enqueue. It replaces per-item completion
// callbacks: the terminal result is published exactly once on Done.
type Ticket struct {
	ID   string
	done chan Result
	once sync.Once
}

// Done yields the terminal result. The channel is buffered; the queue never
// blocks on a caller that does not read it.
func (t *Ticket) Done() <-chan Result { return t.done }

func (t *Ticket) resolve(r Result) {
	t.once.Do(func() { t.done <- r })
}

type itemStatus int

const (
	itemQueued itemStatus = iota
	itemExecuting
	itemCompleted
	itemFailed
)

type item struct {
	id         string
	cmd        model.Command
	priority   model.Priority
	enqueuedAt time.Time
	attempts   int
	maxRetries int
	status     itemStatus
	ticket     *Ticket
}

// Status is a point-in-time view of queue contents.
type Status struct {
	Size       int            `json:"size"`
	Pending    int            `json:"pending"`
	Executing  int            `json:"executing"`
	ByPriority map[string]int `json:"by_priority"`
}

// FlushResult summarises one replay pass.
type FlushResult struct {
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
	Requeued  int `json:"requeued"`
}

// Queue holds undeliverable commands in priority order (critical first),
// stable FIFO within a tier.
type Queue struct {
	mu       sync.Mutex
	items    []*item
	capacity int
	send     SendFunc
	flushing bool

	bucket *tokenBucket
	pacing time.Duration

	logger   *log.Logger
	logLevel model.LogLevel
}

// Option tunes queue construction.
type Option func(*Queue)

// WithRateLimit overrides the token bucket capacity and refill rate.
func WithRateLimit(capacity, perSec float64) Option {
	return func(q *Queue) { q.bucket = newTokenBucket(capacity, perSec) }
}

// WithPacing overrides the fixed inter-delivery delay.
func WithPacing(d time.Duration) Option {
	return func(q *Queue) { q.pacing = d }
}

func New(capacity int, logger *log.Logger, level model.LogLevel, opts ...Option) *Queue {
	if capacity <= 0 {
		capacity = 100
	}
	q := &Queue{
		capacity: capacity,
		bucket:   newTokenBucket(10, 10),
		pacing:   100 * time.Millisecond,
		logger:   logger,
		logLevel: level,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// SetSendFunc registers the delivery function used by Flush.
func (q *Queue) SetSendFunc(fn SendFunc) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.send = fn
}

// Enqueue inserts a command in priority order and returns its ticket. When
// the queue is full, the oldest item of the lowest-priority tier present is
// evicted first and its ticket resolved with ErrEvicted.
func (q *Queue) Enqueue(cmd model.Command, priority model.Priority, maxRetries int) *Ticket {
	if maxRetries <= 0 {
		maxRetries = 1
	}
	id, err := model.GenerateID(model.IDTypeCommand)
	if err != nil {
		id = fmt.Sprintf("cmd_%d", time.Now().UnixNano())
	}
	it := &item{
		id:         id,
		cmd:        cmd,
		priority:   priority,
		enqueuedAt: time.Now(),
		maxRetries: maxRetries,
		ticket:     &Ticket{ID: id, done: make(chan Result, 1)},
	}

	var evicted *item
	q.mu.Lock()
	if len(q.items) >= q.capacity {
		evicted = q.evictLowestLocked()
	}
	q.insertLocked(it)
	size := len(q.items)
	q.mu.Unlock()

	if evicted != nil {
		evicted.ticket.resolve(Result{Err: ErrEvicted, Attempts: evicted.attempts})
		q.log(model.LogLevelWarn, "queue_overflow evicted=%s priority=%s", evicted.id, evicted.priority)
	}
	q.log(model.LogLevelDebug, "enqueued id=%s action=%s priority=%s size=%d", it.id, cmd.Action, priority, size)
	return it.ticket
}

// insertLocked keeps items sorted by priority, FIFO within a tier.
func (q *Queue) insertLocked(it *item) {
	idx := len(q.items)
	for i, existing := range q.items {
		if existing.priority > it.priority {
			idx = i
			break
		}
	}
	q.items = append(q.items, nil)
	copy(q.items[idx+1:], q.items[idx:])
	q.items[idx] = it
}

// evictLowestLocked removes and returns the oldest item of the
// lowest-priority tier. The slice is priority-sorted, so the tier occupies
// the tail; its first element is the oldest of that tier.
func (q *Queue) evictLowestLocked() *item {
	if len(q.items) == 0 {
		return nil
	}
	lowest := q.items[len(q.items)-1].priority
	start := len(q.items) - 1
	for start > 0 && q.items[start-1].priority == lowest {
		start--
	}
	victim := q.items[start]
	q.items = append(q.items[:start], q.items[start+1:]...)
	return victim
}

// Flush replays all currently queued items through the delivery function.
// At most one flush runs at a time; a concurrent call is a no-op. Items that
// fail with attempts remaining stay queued for a future flush.
func (q *Queue) Flush(ctx context.Context) FlushResult {
	q.mu.Lock()
	if q.send == nil || q.flushing {
		q.mu.Unlock()
		return FlushResult{}
	}
	q.flushing = true
	snapshot := make([]*item, 0, len(q.items))
	for _, it := range q.items {
		if it.status == itemQueued {
			snapshot = append(snapshot, it)
		}
	}
	send := q.send
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.flushing = false
		q.purgeTerminalLocked()
		q.mu.Unlock()
	}()

	var res FlushResult
	for i, it := range snapshot {
		if err := q.bucket.wait(ctx); err != nil {
			q.log(model.LogLevelWarn, "flush_interrupted error=%v", err)
			break
		}

		q.mu.Lock()
		if it.status != itemQueued {
			q.mu.Unlock()
			continue
		}
		it.status = itemExecuting
		it.attempts++
		attempts := it.attempts
		cmd := it.cmd
		q.mu.Unlock()

		err := send(ctx, cmd)

		q.mu.Lock()
		switch {
		case err == nil:
			it.status = itemCompleted
			res.Delivered++
		case attempts >= it.maxRetries:
			it.status = itemFailed
			res.Failed++
		default:
			it.status = itemQueued
			res.Requeued++
		}
		status := it.status
		q.mu.Unlock()

		switch status {
		case itemCompleted:
			it.ticket.resolve(Result{Attempts: attempts})
			q.log(model.LogLevelInfo, "flush_delivered id=%s action=%s attempts=%d", it.id, cmd.Action, attempts)
		case itemFailed:
			it.ticket.resolve(Result{Err: fmt.Errorf("%w: %v", ErrRetriesExhausted, err), Attempts: attempts})
			q.log(model.LogLevelWarn, "flush_failed id=%s action=%s attempts=%d error=%v", it.id, cmd.Action, attempts, err)
		default:
			q.log(model.LogLevelDebug, "flush_requeued id=%s attempts=%d error=%v", it.id, attempts, err)
		}

		// Fixed pacing between deliveries, independent of token availability.
		if q.pacing > 0 && i < len(snapshot)-1 {
			timer := time.NewTimer(q.pacing)
			select {
			case <-ctx.Done():
				timer.Stop()
				return res
			case <-timer.C:
			}
		}
	}
	return res
}

func (q *Queue) purgeTerminalLocked() {
	live := q.items[:0]
	for _, it := range q.items {
		if it.status == itemQueued || it.status == itemExecuting {
			live = append(live, it)
		}
	}
	for i := len(live); i < len(q.items); i++ {
		q.items[i] = nil
	}
	q.items = live
}

// Status reports queue size and a per-priority breakdown of pending items.
func (q *Queue) Status() Status {
	q.mu.Lock()
	defer q.mu.Unlock()

	s := Status{Size: len(q.items), ByPriority: map[string]int{}}
	for _, it := range q.items {
		switch it.status {
		case itemQueued:
			s.Pending++
			s.ByPriority[it.priority.String()]++
		case itemExecuting:
			s.Executing++
		}
	}
	return s
}

// Clear drops every entry, resolving each ticket with ErrCleared.
func (q *Queue) Clear() {
	q.mu.Lock()
	dropped := q.items
	q.items = nil
	q.mu.Unlock()

	for _, it := range dropped {
		it.ticket.resolve(Result{Err: ErrCleared, Attempts: it.attempts})
	}
	if len(dropped) > 0 {
		q.log(model.LogLevelInfo, "queue_cleared dropped=%d", len(dropped))
	}
}

func (q *Queue) log(level model.LogLevel, format string, args ...any) {
	if level < q.logLevel || q.logger == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)
	q.logger.Printf("%s %s queue: %s", time.Now().Format(time.RFC3339), level, msg)
}
