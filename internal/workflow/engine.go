// Package workflow executes named multi-step automation sequences with
// per-step delay, condition, and retry policy, and schedules deferred or
// periodic runs.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/JarrarHaider26/Jerry-AI-Assistant/internal/model"
)

// SendFunc delivers one step command to the bridge and awaits its reply.
type SendFunc func(ctx context.Context, cmd model.Command) (model.Reply, error)

var (
	ErrNotFound       = errors.New("workflow: not found")
	ErrDisabled       = errors.New("workflow: disabled")
	ErrAlreadyRunning = errors.New("workflow: a run is already in flight")
)

// Engine owns the workflow catalog and runs workflows step by step.
// A per-workflow run guard drops a trigger while a previous run of the same
// workflow is still in flight, so a slow run cannot stack up behind a
// scheduler that keeps firing.
type Engine struct {
	mu        sync.Mutex
	workflows map[string]*model.Workflow
	running   map[string]bool

	send         SendFunc
	bridgeActive func() bool
	runHook      func(model.RunResult)
	now          func() time.Time

	logger   *log.Logger
	logLevel model.LogLevel
}

func NewEngine(send SendFunc, logger *log.Logger, level model.LogLevel) *Engine {
	return &Engine{
		workflows: make(map[string]*model.Workflow),
		running:   make(map[string]bool),
		send:      send,
		now:       time.Now,
		logger:    logger,
		logLevel:  level,
	}
}

// SetBridgeActiveProbe supplies the bridge_active condition. Without a probe
// the condition evaluates true.
func (e *Engine) SetBridgeActiveProbe(fn func() bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.bridgeActive = fn
}

// SetRunHook registers a callback invoked after every run, whatever its
// outcome. Called on the run's goroutine; implementations must not block.
func (e *Engine) SetRunHook(fn func(model.RunResult)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.runHook = fn
}

// Add registers a workflow, generating an ID when absent. An existing
// workflow with the same ID is replaced; run counters restart.
func (e *Engine) Add(wf model.Workflow) (string, error) {
	if strings.TrimSpace(wf.Name) == "" {
		return "", fmt.Errorf("workflow: name is required")
	}
	if len(wf.Steps) == 0 {
		return "", fmt.Errorf("workflow %q: at least one step is required", wf.Name)
	}
	if wf.ID == "" {
		id, err := model.GenerateID(model.IDTypeWorkflow)
		if err != nil {
			return "", fmt.Errorf("workflow %q: %w", wf.Name, err)
		}
		wf.ID = id
	}
	if wf.Trigger == "" {
		wf.Trigger = model.TriggerManual
	}
	for i := range wf.Steps {
		if wf.Steps[i].ID == "" {
			wf.Steps[i].ID = fmt.Sprintf("%s_step%d", wf.ID, i+1)
		}
		if wf.Steps[i].OnFailure == "" {
			wf.Steps[i].OnFailure = model.FailureSkip
		}
	}

	e.mu.Lock()
	e.workflows[wf.ID] = &wf
	e.mu.Unlock()
	e.log(model.LogLevelInfo, "workflow_added id=%s name=%q steps=%d trigger=%s",
		wf.ID, wf.Name, len(wf.Steps), wf.Trigger)
	return wf.ID, nil
}

// Remove deletes a workflow by ID.
func (e *Engine) Remove(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.workflows[id]; !ok {
		return false
	}
	delete(e.workflows, id)
	return true
}

// Get returns a copy of the workflow with the given ID.
func (e *Engine) Get(id string) (model.Workflow, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	wf, ok := e.workflows[id]
	if !ok {
		return model.Workflow{}, false
	}
	return *wf, true
}

// List returns copies of all registered workflows.
func (e *Engine) List() []model.Workflow {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.Workflow, 0, len(e.workflows))
	for _, wf := range e.workflows {
		out = append(out, *wf)
	}
	return out
}

// resolveLocked finds a workflow by exact ID, then case-insensitive name,
// then underscored name ("focus mode" matches "focus_mode").
func (e *Engine) resolveLocked(key string) *model.Workflow {
	if wf, ok := e.workflows[key]; ok {
		return wf
	}
	for _, wf := range e.workflows {
		if strings.EqualFold(wf.Name, key) {
			return wf
		}
	}
	underscored := strings.ReplaceAll(strings.ToLower(key), " ", "_")
	for _, wf := range e.workflows {
		if strings.ReplaceAll(strings.ToLower(wf.Name), " ", "_") == underscored {
			return wf
		}
	}
	return nil
}

// Execute runs a workflow by ID or name. Unresolved or disabled lookups fail
// without side effects.
func (e *Engine) Execute(ctx context.Context, key string) (*model.RunResult, error) {
	return e.execute(ctx, key, false)
}

// execute is Execute with an escape hatch for the scheduler: a one-shot
// schedule disables its workflow before the run starts so nothing re-arms
// it, which means the due run itself must bypass the disabled check.
func (e *Engine) execute(ctx context.Context, key string, ignoreDisabled bool) (*model.RunResult, error) {
	e.mu.Lock()
	wf := e.resolveLocked(key)
	if wf == nil {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrNotFound, key)
	}
	if !wf.Enabled && !ignoreDisabled {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrDisabled, wf.Name)
	}
	if e.running[wf.ID] {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrAlreadyRunning, wf.Name)
	}
	e.running[wf.ID] = true
	id := wf.ID
	name := wf.Name
	steps := make([]model.Step, len(wf.Steps))
	copy(steps, wf.Steps)
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		delete(e.running, id)
		e.mu.Unlock()
	}()

	runID, err := model.GenerateID(model.IDTypeRun)
	if err != nil {
		runID = fmt.Sprintf("run_%d", time.Now().UnixNano())
	}
	start := e.now()
	e.log(model.LogLevelInfo, "workflow_start run=%s workflow=%s name=%q steps=%d",
		runID, id, name, len(steps))

	result := &model.RunResult{
		RunID:      runID,
		WorkflowID: id,
		StartedAt:  start,
	}

	for _, step := range steps {
		sr, abort := e.runStep(ctx, step)
		result.Steps = append(result.Steps, sr)
		if abort {
			result.Aborted = true
			e.log(model.LogLevelWarn, "workflow_abort run=%s step=%s", runID, step.ID)
			break
		}
	}

	result.Duration = time.Since(start)
	result.Status = overallStatus(result.Steps)

	e.mu.Lock()
	if cur, ok := e.workflows[id]; ok {
		cur.RunCount++
		cur.LastRunAt = e.now()
	}
	hook := e.runHook
	e.mu.Unlock()

	e.log(model.LogLevelInfo, "workflow_done run=%s status=%s steps=%d duration=%s",
		runID, result.Status, len(result.Steps), result.Duration.Round(time.Millisecond))
	if hook != nil {
		hook(*result)
	}
	return result, nil
}

// runStep executes one step: condition gate, delay, then up to
// max(1, retries) delivery attempts. The abort return is true only when the
// step failed and its policy is abort.
func (e *Engine) runStep(ctx context.Context, step model.Step) (model.StepResult, bool) {
	sr := model.StepResult{StepID: step.ID, Action: step.Action}

	if !e.conditionMet(step.Condition) {
		sr.Status = model.StepSkipped
		sr.Message = "condition not met"
		e.log(model.LogLevelDebug, "step_skipped step=%s condition=%s", step.ID, step.Condition.Type)
		return sr, false
	}

	if step.DelayMs > 0 {
		timer := time.NewTimer(time.Duration(step.DelayMs) * time.Millisecond)
		select {
		case <-ctx.Done():
			timer.Stop()
			sr.Status = model.StepFailed
			sr.Message = ctx.Err().Error()
			return sr, step.OnFailure == model.FailureAbort
		case <-timer.C:
		}
	}

	attempts := step.Retries
	if attempts < 1 {
		attempts = 1
	}

	start := time.Now()
	for i := 0; i < attempts; i++ {
		sr.Attempts++
		reply, err := e.send(ctx, step.Command())
		if err != nil {
			sr.Message = err.Error()
			continue
		}
		sr.Message = reply.Message
		if reply.IsError() {
			continue
		}
		sr.Status = model.StepSuccess
		break
	}
	sr.Duration = time.Since(start)

	if sr.Status != model.StepSuccess {
		sr.Status = model.StepFailed
		e.log(model.LogLevelWarn, "step_failed step=%s action=%s attempts=%d message=%q",
			step.ID, step.Action, sr.Attempts, sr.Message)
		return sr, step.OnFailure == model.FailureAbort
	}
	return sr, false
}

// conditionMet evaluates a step gate against the local clock and the bridge
// probe. A nil condition always passes.
func (e *Engine) conditionMet(cond *model.StepCondition) bool {
	if cond == nil {
		return true
	}
	switch cond.Type {
	case "", model.ConditionAlways:
		return true
	case model.ConditionTimeAfter, model.ConditionTimeBefore:
		target, err := minuteOfDay(cond.Value)
		if err != nil {
			e.log(model.LogLevelWarn, "condition_invalid type=%s value=%q", cond.Type, cond.Value)
			return false
		}
		now := e.now()
		current := now.Hour()*60 + now.Minute()
		if cond.Type == model.ConditionTimeAfter {
			return current >= target
		}
		return current < target
	case model.ConditionBridgeActive:
		e.mu.Lock()
		probe := e.bridgeActive
		e.mu.Unlock()
		if probe == nil {
			return true
		}
		return probe()
	default:
		e.log(model.LogLevelWarn, "condition_unknown type=%s", cond.Type)
		return false
	}
}

// minuteOfDay parses an HH:MM clock value.
func minuteOfDay(value string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("parse clock time %q: %w", value, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// overallStatus folds step outcomes into the run status: completed when
// every step succeeded or was skipped, failed when every step failed,
// partial otherwise.
func overallStatus(steps []model.StepResult) model.RunStatus {
	failed, other := 0, 0
	for _, s := range steps {
		if s.Status == model.StepFailed {
			failed++
		} else {
			other++
		}
	}
	switch {
	case failed == 0:
		return model.RunCompleted
	case other == 0:
		return model.RunFailed
	default:
		return model.RunPartial
	}
}

func (e *Engine) log(level model.LogLevel, format string, args ...any) {
	if level < e.logLevel || e.logger == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)
	e.logger.Printf("%s %s workflow: %s", time.Now().Format(time.RFC3339), level, msg)
}
