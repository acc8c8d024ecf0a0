// Package relay wires the gate, ledger, queue, key pool, workflow engine,
// telemetry service, and bridge channel into one dispatching service.
package relay

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/JarrarHaider26/Jerry-AI-Assistant/internal/auth"
	"github.com/JarrarHaider26/Jerry-AI-Assistant/internal/channel"
	"github.com/JarrarHaider26/Jerry-AI-Assistant/internal/events"
	"github.com/JarrarHaider26/Jerry-AI-Assistant/internal/keypool"
	"github.com/JarrarHaider26/Jerry-AI-Assistant/internal/ledger"
	"github.com/JarrarHaider26/Jerry-AI-Assistant/internal/model"
	"github.com/JarrarHaider26/Jerry-AI-Assistant/internal/queue"
	"github.com/JarrarHaider26/Jerry-AI-Assistant/internal/telemetry"
	"github.com/JarrarHaider26/Jerry-AI-Assistant/internal/workflow"
)

// powerActions are queued at critical priority when the bridge is down so a
// deliberate shutdown outlives lower-value commands under overflow.
var powerActions = map[string]bool{
	"shutdown": true,
	"restart":  true,
	"logoff":   true,
	"lock":     true,
}

// Outcome reports what Dispatch did with one command.
type Outcome struct {
	Accepted  bool
	Dangerous bool
	Queued    bool
	Message   string
	Reply     *model.Reply
	Ticket    *queue.Ticket
}

// Relay owns one instance of each component. All dependencies are injected
// at construction; nothing package-level holds state.
type Relay struct {
	cfg model.Config

	gate      *auth.Gate
	ledger    *ledger.Ledger
	queue     *queue.Queue
	keys      *keypool.Manager
	engine    *workflow.Engine
	scheduler *workflow.Scheduler
	watcher   *workflow.Watcher
	telemetry *telemetry.Service
	bridge    *channel.Bridge
	bus       *events.Bus

	replyTimeout time.Duration

	shutdown sync.Once
	wg       sync.WaitGroup

	logger   *log.Logger
	logLevel model.LogLevel
}

// New builds a relay from configuration. The key pool is optional; every
// other component is mandatory.
func New(cfg model.Config, logger *log.Logger) (*Relay, error) {
	level := model.ParseLogLevel(cfg.Logging.Level)

	gate, err := auth.NewGate(cfg.Auth.Token, logger)
	if err != nil {
		return nil, err
	}

	r := &Relay{
		cfg:          cfg,
		gate:         gate,
		ledger:       ledger.New(cfg.Ledger.Capacity),
		telemetry:    telemetry.New(cfg.Telemetry, logger, level),
		bridge:       channel.NewBridge(cfg.Bridge, logger, level),
		bus:          events.NewBus(100),
		replyTimeout: channel.ClampTimeout(time.Duration(cfg.Bridge.ReplyTimeoutSec) * time.Second),
		logger:       logger,
		logLevel:     level,
	}

	r.queue = queue.New(cfg.Queue.Capacity, logger, level,
		queue.WithRateLimit(cfg.Queue.BucketCapacity, cfg.Queue.TokensPerSec),
		queue.WithPacing(time.Duration(cfg.Queue.PacingMs)*time.Millisecond),
	)
	r.queue.SetSendFunc(r.deliver)

	if strings.TrimSpace(cfg.Keys.Raw) != "" {
		pool, err := keypool.New(cfg.Keys.Raw, cfg.Keys, logger, level)
		if err != nil {
			return nil, err
		}
		r.keys = pool
	} else {
		r.log(model.LogLevelWarn, "keypool_disabled reason=no_keys")
	}

	r.engine = workflow.NewEngine(r.sendAwait, logger, level)
	r.engine.SetBridgeActiveProbe(r.bridge.Connected)
	r.engine.SetRunHook(func(res model.RunResult) {
		r.bus.Publish(events.EventWorkflowDone, map[string]interface{}{
			"run":      res.RunID,
			"workflow": res.WorkflowID,
			"status":   string(res.Status),
			"steps":    len(res.Steps),
		})
	})
	for _, wf := range workflow.Builtins() {
		if _, err := r.engine.Add(wf); err != nil {
			return nil, fmt.Errorf("register builtin workflow: %w", err)
		}
	}
	if cfg.Workflow.CatalogPath != "" {
		if _, err := r.engine.LoadCatalog(cfg.Workflow.CatalogPath); err != nil {
			r.log(model.LogLevelWarn, "catalog_load_failed error=%v", err)
		}
	}
	r.scheduler = workflow.NewScheduler(r.engine,
		time.Duration(cfg.Workflow.TickIntervalSec)*time.Second)

	r.telemetry.SetAlertFunc(func(a telemetry.Alert) {
		r.bus.Publish(events.EventAlertFired, map[string]interface{}{
			"rule":      a.RuleID,
			"metric":    a.Metric,
			"value":     a.Value,
			"threshold": a.Threshold,
			"message":   a.Message,
		})
	})
	r.bridge.SetSnapshotFunc(func(snap model.Snapshot) {
		r.telemetry.ProcessSnapshot(snap)
	})

	return r, nil
}

// sendAwait wraps a command and waits for its correlated reply.
func (r *Relay) sendAwait(ctx context.Context, cmd model.Command) (model.Reply, error) {
	return r.bridge.SendAndAwait(ctx, r.gate.Wrap(cmd), r.replyTimeout)
}

// deliver is the queue's send function. A reply with error status counts as
// a failed delivery so the queue's retry accounting sees it.
func (r *Relay) deliver(ctx context.Context, cmd model.Command) error {
	reply, err := r.sendAwait(ctx, cmd)
	if err != nil {
		return err
	}
	if reply.IsError() {
		return fmt.Errorf("bridge rejected %s: %s", cmd.Action, reply.Message)
	}
	r.ledger.Append(cmd.Action, cmd.Target, model.SourceSystem, ledger.StatusSuccess, "delivered from queue")
	return nil
}

// Dispatch validates a command and either sends it immediately or queues it
// for replay when the bridge is down. Every path leaves a ledger entry.
func (r *Relay) Dispatch(ctx context.Context, cmd model.Command, source model.Source) Outcome {
	v := r.gate.Validate(cmd)
	if !v.Valid {
		r.ledger.Append(cmd.Action, cmd.Target, source, ledger.StatusBlocked, v.Message)
		r.bus.Publish(events.EventCommandBlocked, map[string]interface{}{
			"action": cmd.Action, "reason": v.Message,
		})
		r.log(model.LogLevelWarn, "dispatch_blocked action=%s reason=%q", cmd.Action, v.Message)
		return Outcome{Message: v.Message}
	}

	out := Outcome{Accepted: true, Dangerous: v.Dangerous}
	detail := ""
	if v.Dangerous {
		detail = v.Message
	}

	if r.bridge.Connected() {
		reply, err := r.sendAwait(ctx, cmd)
		status := ledger.StatusSuccess
		switch {
		case err != nil:
			status = ledger.StatusFailed
			out.Message = err.Error()
		case reply.IsError():
			status = ledger.StatusFailed
			out.Message = reply.Message
			out.Reply = &reply
		default:
			out.Message = reply.Message
			out.Reply = &reply
		}
		r.ledger.Append(cmd.Action, cmd.Target, source, status, joinDetail(detail, out.Message))
		r.bus.Publish(events.EventCommandDispatched, map[string]interface{}{
			"action": cmd.Action, "status": string(status), "queued": false,
		})
		return out
	}

	priority := model.PriorityNormal
	if powerActions[strings.ToLower(cmd.Action)] {
		priority = model.PriorityCritical
	}
	out.Queued = true
	out.Ticket = r.queue.Enqueue(cmd, priority, r.cfg.Queue.DefaultRetries)
	out.Message = fmt.Sprintf("bridge offline, queued at %s priority", priority)
	r.ledger.Append(cmd.Action, cmd.Target, source, ledger.StatusPending, joinDetail(detail, out.Message))
	r.bus.Publish(events.EventCommandDispatched, map[string]interface{}{
		"action": cmd.Action, "status": "pending", "queued": true,
	})
	return out
}

func joinDetail(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + "; " + b
	}
}

// Run starts the bridge, scheduler, and catalog watcher, then blocks until
// the context is cancelled and shutdown completes.
func (r *Relay) Run(ctx context.Context) error {
	r.bridge.SetStateFunc(func(connected bool) {
		r.bus.Publish(events.EventBridgeState, map[string]interface{}{"connected": connected})
		if !connected {
			return
		}
		// Replay everything that piled up while the bridge was away.
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			res := r.queue.Flush(ctx)
			if res.Delivered+res.Failed+res.Requeued > 0 {
				r.log(model.LogLevelInfo, "flush_done delivered=%d failed=%d requeued=%d",
					res.Delivered, res.Failed, res.Requeued)
			}
		}()
	})

	r.bridge.Start(ctx)
	r.scheduler.Start(ctx)

	if r.cfg.Workflow.CatalogPath != "" && r.cfg.Workflow.WatchCatalog {
		w, err := workflow.NewWatcher(r.engine, r.cfg.Workflow.CatalogPath)
		if err != nil {
			r.log(model.LogLevelWarn, "catalog_watch_failed error=%v", err)
		} else {
			r.watcher = w
		}
	}

	r.log(model.LogLevelInfo, "relay_started bridge=%s", r.cfg.Bridge.URL)
	<-ctx.Done()
	r.Shutdown()
	return nil
}

// Shutdown stops components in dependency order and waits for in-flight
// work. Safe to call more than once.
func (r *Relay) Shutdown() {
	r.shutdown.Do(func() {
		r.log(model.LogLevelInfo, "shutdown_started")
		r.scheduler.Stop()
		if r.watcher != nil {
			r.watcher.Close()
		}
		r.bridge.Close()
		r.wg.Wait()
		r.bus.Close()
		r.log(model.LogLevelInfo, "shutdown_complete")
	})
}

// Component accessors for the CLI surface.

func (r *Relay) Ledger() *ledger.Ledger        { return r.ledger }
func (r *Relay) Queue() *queue.Queue           { return r.queue }
func (r *Relay) Keys() *keypool.Manager        { return r.keys }
func (r *Relay) Workflows() *workflow.Engine   { return r.engine }
func (r *Relay) Telemetry() *telemetry.Service { return r.telemetry }
func (r *Relay) Bus() *events.Bus              { return r.bus }
func (r *Relay) Connected() bool               { return r.bridge.Connected() }

func (r *Relay) log(level model.LogLevel, format string, args ...any) {
	if level < r.logLevel || r.logger == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)
	r.logger.Printf("%s %s relay: %s", time.Now().Format(time.RFC3339), level, msg)
}
