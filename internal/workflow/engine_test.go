package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JarrarHaider26/Jerry-AI-Assistant/internal/model"
)

// recordingSend collects sent commands and replies per a script.
type recordingSend struct {
	mu      sync.Mutex
	actions []string
	replies map[string][]model.Reply
	errs    map[string]error
}

func newRecordingSend() *recordingSend {
	return &recordingSend{
		replies: make(map[string][]model.Reply),
		errs:    make(map[string]error),
	}
}

func (r *recordingSend) send(ctx context.Context, cmd model.Command) (model.Reply, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = append(r.actions, cmd.Action)
	if err, ok := r.errs[cmd.Action]; ok {
		return model.Reply{}, err
	}
	if script := r.replies[cmd.Action]; len(script) > 0 {
		reply := script[0]
		r.replies[cmd.Action] = script[1:]
		return reply, nil
	}
	return model.Reply{Status: model.ReplySuccess, Message: "ok"}, nil
}

func (r *recordingSend) sent() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.actions...)
}

func newTestEngine(send SendFunc) *Engine {
	return NewEngine(send, nil, model.LogLevelError)
}

func twoStepWorkflow(name string) model.Workflow {
	return model.Workflow{
		Name:    name,
		Enabled: true,
		Steps: []model.Step{
			{Action: "step_one"},
			{Action: "step_two"},
		},
	}
}

func TestEngine_AddAssignsIDs(t *testing.T) {
	e := newTestEngine(nil)

	id, err := e.Add(twoStepWorkflow("Morning Routine"))
	require.NoError(t, err)
	assert.True(t, model.ValidateID(id))

	wf, ok := e.Get(id)
	require.True(t, ok)
	assert.Equal(t, model.TriggerManual, wf.Trigger)
	for _, step := range wf.Steps {
		assert.NotEmpty(t, step.ID)
		assert.Equal(t, model.FailureSkip, step.OnFailure)
	}
}

func TestEngine_AddRejectsInvalid(t *testing.T) {
	e := newTestEngine(nil)

	_, err := e.Add(model.Workflow{Steps: []model.Step{{Action: "x"}}})
	assert.Error(t, err, "missing name")

	_, err = e.Add(model.Workflow{Name: "empty"})
	assert.Error(t, err, "no steps")
}

func TestEngine_ExecuteSuccess(t *testing.T) {
	rs := newRecordingSend()
	e := newTestEngine(rs.send)
	id, err := e.Add(twoStepWorkflow("demo"))
	require.NoError(t, err)

	res, err := e.Execute(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.RunCompleted, res.Status)
	assert.Len(t, res.Steps, 2)
	assert.False(t, res.Aborted)
	assert.Equal(t, []string{"step_one", "step_two"}, rs.sent())

	wf, _ := e.Get(id)
	assert.Equal(t, 1, wf.RunCount)
	assert.False(t, wf.LastRunAt.IsZero())
}

func TestEngine_ResolveByName(t *testing.T) {
	rs := newRecordingSend()
	e := newTestEngine(rs.send)
	_, err := e.Add(twoStepWorkflow("Focus Mode"))
	require.NoError(t, err)

	for _, key := range []string{"Focus Mode", "focus mode", "focus_mode", "FOCUS_MODE"} {
		_, err := e.Execute(context.Background(), key)
		assert.NoError(t, err, "key %q", key)
	}

	_, err = e.Execute(context.Background(), "no such flow")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestEngine_ExecuteDisabled(t *testing.T) {
	e := newTestEngine(nil)
	wf := twoStepWorkflow("off")
	wf.Enabled = false
	id, err := e.Add(wf)
	require.NoError(t, err)

	_, err = e.Execute(context.Background(), id)
	assert.True(t, errors.Is(err, ErrDisabled))
}

func TestEngine_StepRetries(t *testing.T) {
	calls := 0
	send := func(ctx context.Context, cmd model.Command) (model.Reply, error) {
		calls++
		if calls < 3 {
			return model.Reply{Status: model.ReplyError, Message: "busy"}, nil
		}
		return model.Reply{Status: model.ReplySuccess}, nil
	}
	e := newTestEngine(send)
	id, err := e.Add(model.Workflow{
		Name:    "retrying",
		Enabled: true,
		Steps:   []model.Step{{Action: "flaky", Retries: 3}},
	})
	require.NoError(t, err)

	res, err := e.Execute(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.RunCompleted, res.Status)
	assert.Equal(t, 3, res.Steps[0].Attempts)
	assert.Equal(t, model.StepSuccess, res.Steps[0].Status)
}

func TestEngine_AbortPolicy(t *testing.T) {
	rs := newRecordingSend()
	rs.errs["boom"] = errors.New("connection lost")
	e := newTestEngine(rs.send)
	id, err := e.Add(model.Workflow{
		Name:    "aborting",
		Enabled: true,
		Steps: []model.Step{
			{Action: "first"},
			{Action: "boom", OnFailure: model.FailureAbort},
			{Action: "never"},
		},
	})
	require.NoError(t, err)

	res, err := e.Execute(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, res.Aborted)
	assert.Equal(t, model.RunPartial, res.Status)
	assert.Len(t, res.Steps, 2, "third step never runs")
	assert.NotContains(t, rs.sent(), "never")
}

func TestEngine_SkipPolicyContinues(t *testing.T) {
	rs := newRecordingSend()
	rs.errs["boom"] = errors.New("connection lost")
	e := newTestEngine(rs.send)
	id, err := e.Add(model.Workflow{
		Name:    "skipping",
		Enabled: true,
		Steps: []model.Step{
			{Action: "boom"},
			{Action: "after"},
		},
	})
	require.NoError(t, err)

	res, err := e.Execute(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, res.Aborted)
	assert.Equal(t, model.RunPartial, res.Status)
	assert.Contains(t, rs.sent(), "after")
}

func TestEngine_AllStepsFail(t *testing.T) {
	rs := newRecordingSend()
	rs.errs["a"] = errors.New("down")
	rs.errs["b"] = errors.New("down")
	e := newTestEngine(rs.send)
	id, err := e.Add(model.Workflow{
		Name:    "doomed",
		Enabled: true,
		Steps:   []model.Step{{Action: "a"}, {Action: "b"}},
	})
	require.NoError(t, err)

	res, err := e.Execute(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.RunFailed, res.Status)
}

func TestEngine_TimeConditions(t *testing.T) {
	rs := newRecordingSend()
	e := newTestEngine(rs.send)
	e.now = func() time.Time {
		return time.Date(2026, 8, 27, 9, 30, 0, 0, time.Local)
	}

	id, err := e.Add(model.Workflow{
		Name:    "conditional",
		Enabled: true,
		Steps: []model.Step{
			{Action: "runs", Condition: &model.StepCondition{Type: model.ConditionTimeAfter, Value: "08:00"}},
			{Action: "skipped_late", Condition: &model.StepCondition{Type: model.ConditionTimeAfter, Value: "18:00"}},
			{Action: "runs_too", Condition: &model.StepCondition{Type: model.ConditionTimeBefore, Value: "12:00"}},
			{Action: "skipped_early", Condition: &model.StepCondition{Type: model.ConditionTimeBefore, Value: "09:00"}},
		},
	})
	require.NoError(t, err)

	res, err := e.Execute(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.RunCompleted, res.Status, "skipped steps do not fail a run")
	assert.Equal(t, []string{"runs", "runs_too"}, rs.sent())
	assert.Equal(t, model.StepSkipped, res.Steps[1].Status)
	assert.Equal(t, model.StepSkipped, res.Steps[3].Status)
}

func TestEngine_BridgeActiveCondition(t *testing.T) {
	rs := newRecordingSend()
	e := newTestEngine(rs.send)

	wf := model.Workflow{
		Name:    "bridge gated",
		Enabled: true,
		Steps: []model.Step{
			{Action: "gated", Condition: &model.StepCondition{Type: model.ConditionBridgeActive}},
		},
	}
	id, err := e.Add(wf)
	require.NoError(t, err)

	// No probe registered: condition passes.
	res, err := e.Execute(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.StepSuccess, res.Steps[0].Status)

	e.SetBridgeActiveProbe(func() bool { return false })
	res, err = e.Execute(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.StepSkipped, res.Steps[0].Status)
}

func TestEngine_UnknownConditionSkips(t *testing.T) {
	rs := newRecordingSend()
	e := newTestEngine(rs.send)
	id, err := e.Add(model.Workflow{
		Name:    "bad condition",
		Enabled: true,
		Steps: []model.Step{
			{Action: "x", Condition: &model.StepCondition{Type: "phase_of_moon"}},
			{Action: "y", Condition: &model.StepCondition{Type: model.ConditionTimeAfter, Value: "25:99"}},
		},
	})
	require.NoError(t, err)

	res, err := e.Execute(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.StepSkipped, res.Steps[0].Status)
	assert.Equal(t, model.StepSkipped, res.Steps[1].Status)
	assert.Empty(t, rs.sent())
}

func TestEngine_RunGuard(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	send := func(ctx context.Context, cmd model.Command) (model.Reply, error) {
		close(started)
		<-release
		return model.Reply{Status: model.ReplySuccess}, nil
	}
	e := newTestEngine(send)
	id, err := e.Add(model.Workflow{
		Name:    "slow",
		Enabled: true,
		Steps:   []model.Step{{Action: "block"}},
	})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		e.Execute(context.Background(), id)
	}()
	<-started

	_, err = e.Execute(context.Background(), id)
	assert.True(t, errors.Is(err, ErrAlreadyRunning))

	close(release)
	<-done

	// Guard is released once the run finishes.
	send2 := newRecordingSend()
	e.send = send2.send
	_, err = e.Execute(context.Background(), id)
	assert.NoError(t, err)
}

func TestEngine_Remove(t *testing.T) {
	e := newTestEngine(nil)
	id, err := e.Add(twoStepWorkflow("gone"))
	require.NoError(t, err)

	assert.True(t, e.Remove(id))
	assert.False(t, e.Remove(id))
	assert.Len(t, e.List(), 0)
}

func TestEngine_RunHookReceivesResult(t *testing.T) {
	rs := newRecordingSend()
	e := newTestEngine(rs.send)

	var got []model.RunResult
	e.SetRunHook(func(res model.RunResult) { got = append(got, res) })

	id, err := e.Add(twoStepWorkflow("hooked"))
	require.NoError(t, err)

	_, err = e.Execute(context.Background(), id)
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, id, got[0].WorkflowID)
	assert.Equal(t, model.RunCompleted, got[0].Status)
	assert.Len(t, got[0].Steps, 2)
}
