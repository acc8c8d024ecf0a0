package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/JarrarHaider26/Jerry-AI-Assistant/internal/model"
)

// Scheduler periodically scans for due schedule-triggered workflows and
// fires them. Runs are fire-and-forget: the tick never waits on a workflow,
// and the engine's run guard drops a trigger whose previous run is still in
// flight. Stop halts future ticks; in-flight runs finish.
type Scheduler struct {
	engine   *Engine
	interval time.Duration

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewScheduler(engine *Engine, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Scheduler{
		engine:   engine,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

// Start launches the tick loop. At most one tick executes at a time because
// ticks run sequentially on the loop goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tick(ctx, s.engine.now())
			}
		}
	}()
}

// Stop halts future ticks and waits for the loop goroutine to exit.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.wg.Wait()
}

// tick arms and fires due schedules.
func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	e := s.engine

	type due struct {
		id      string
		name    string
		oneShot bool
	}
	var fire []due

	e.mu.Lock()
	for _, wf := range e.workflows {
		if !wf.Enabled || wf.Trigger != model.TriggerSchedule || wf.Schedule == nil {
			continue
		}
		if wf.NextRun.IsZero() {
			next, err := nextRun(*wf.Schedule, now)
			if err != nil {
				e.logLocked(model.LogLevelWarn, "schedule_invalid workflow=%s error=%v", wf.ID, err)
				wf.Enabled = false
				continue
			}
			wf.NextRun = next
			continue
		}
		if now.Before(wf.NextRun) {
			continue
		}

		if wf.Schedule.Kind == model.ScheduleOnce {
			// Disabled before the run fires so nothing re-arms it; the
			// run itself goes through the disabled-bypass path below.
			wf.Enabled = false
			wf.NextRun = time.Time{}
			fire = append(fire, due{id: wf.ID, name: wf.Name, oneShot: true})
			continue
		}
		fire = append(fire, due{id: wf.ID, name: wf.Name})
		next, err := nextRun(*wf.Schedule, now)
		if err != nil {
			e.logLocked(model.LogLevelWarn, "schedule_invalid workflow=%s error=%v", wf.ID, err)
			wf.Enabled = false
			continue
		}
		wf.NextRun = next
	}
	e.mu.Unlock()

	for _, d := range fire {
		e.log(model.LogLevelInfo, "schedule_fire workflow=%s name=%q", d.id, d.name)
		s.wg.Add(1)
		go func(id string, oneShot bool) {
			defer s.wg.Done()
			if _, err := e.execute(ctx, id, oneShot); err != nil {
				if errors.Is(err, ErrAlreadyRunning) {
					e.log(model.LogLevelInfo, "workflow_skip workflow=%s reason=already_running", id)
					return
				}
				e.log(model.LogLevelWarn, "schedule_run_failed workflow=%s error=%v", id, err)
			}
		}(d.id, d.oneShot)
	}
}

// nextRun computes the next fire time for a schedule relative to now.
// Interval schedules add the interval; daily and once schedules take the
// next occurrence of the HH:MM value, rolling to the following day when the
// time has already passed.
func nextRun(sched model.Schedule, now time.Time) (time.Time, error) {
	switch sched.Kind {
	case model.ScheduleInterval:
		if sched.EverySec <= 0 {
			return time.Time{}, fmt.Errorf("interval schedule needs every_sec > 0")
		}
		return now.Add(sched.Interval()), nil
	case model.ScheduleDaily, model.ScheduleOnce:
		minutes, err := minuteOfDay(sched.At)
		if err != nil {
			return time.Time{}, err
		}
		candidate := time.Date(now.Year(), now.Month(), now.Day(),
			minutes/60, minutes%60, 0, 0, now.Location())
		if !candidate.After(now) {
			candidate = candidate.AddDate(0, 0, 1)
		}
		return candidate, nil
	default:
		return time.Time{}, fmt.Errorf("unknown schedule kind %q", sched.Kind)
	}
}

// logLocked is log for callers already holding e.mu.
func (e *Engine) logLocked(level model.LogLevel, format string, args ...any) {
	if level < e.logLevel || e.logger == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)
	e.logger.Printf("%s %s workflow: %s", time.Now().Format(time.RFC3339), level, msg)
}
