package workflow

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/JarrarHaider26/Jerry-AI-Assistant/internal/model"
)

// catalogFile is the on-disk shape of a workflow catalog.
type catalogFile struct {
	Workflows []model.Workflow `yaml:"workflows"`
}

// Builtins returns the stock workflows registered when no catalog file
// overrides them. They are definitions only; nothing runs until triggered.
func Builtins() []model.Workflow {
	return []model.Workflow{
		{
			ID:      "wf_builtin_morning",
			Name:    "morning_routine",
			Trigger: model.TriggerVoice,
			Enabled: true,
			Steps: []model.Step{
				{Action: "open_app", Target: "browser"},
				{Action: "open_app", Target: "email", DelayMs: 1500},
				{Action: "set_volume", Payload: "40", DelayMs: 500},
				{Action: "system_monitor"},
			},
		},
		{
			ID:      "wf_builtin_focus",
			Name:    "focus_mode",
			Trigger: model.TriggerVoice,
			Enabled: true,
			Steps: []model.Step{
				{Action: "close_app", Target: "browser"},
				{Action: "mute", DelayMs: 300},
				{Action: "open_app", Target: "editor", DelayMs: 500},
			},
		},
		{
			ID:      "wf_builtin_shutdown",
			Name:    "shutdown_routine",
			Trigger: model.TriggerVoice,
			Enabled: true,
			Steps: []model.Step{
				{Action: "screenshot"},
				{Action: "close_app", Target: "all", DelayMs: 1000, OnFailure: model.FailureSkip},
				{
					Action:    "lock_screen",
					DelayMs:   2000,
					Condition: &model.StepCondition{Type: model.ConditionTimeAfter, Value: "18:00"},
				},
			},
		},
	}
}

// LoadCatalog reads a YAML catalog file and registers every workflow it
// contains. Workflows that fail validation are skipped and counted in the
// error, not fatal to the rest of the file.
func (e *Engine) LoadCatalog(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read catalog %s: %w", path, err)
	}
	var cf catalogFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return 0, fmt.Errorf("parse catalog %s: %w", path, err)
	}

	loaded, skipped := 0, 0
	for _, wf := range cf.Workflows {
		// Catalog entries carry no IDs; reuse the existing ID on reload so a
		// changed file replaces definitions instead of duplicating them.
		if wf.ID == "" {
			e.mu.Lock()
			if existing := e.resolveLocked(wf.Name); existing != nil {
				wf.ID = existing.ID
			}
			e.mu.Unlock()
		}
		if _, err := e.Add(wf); err != nil {
			skipped++
			e.log(model.LogLevelWarn, "catalog_skip name=%q error=%v", wf.Name, err)
			continue
		}
		loaded++
	}
	e.log(model.LogLevelInfo, "catalog_loaded path=%s workflows=%d skipped=%d", path, loaded, skipped)
	if skipped > 0 {
		return loaded, fmt.Errorf("catalog %s: %d workflow(s) skipped", path, skipped)
	}
	return loaded, nil
}

// Watcher reloads the catalog file when it changes on disk. Editors produce
// bursts of write events, so reloads are debounced.
type Watcher struct {
	engine   *Engine
	path     string
	watcher  *fsnotify.Watcher
	debounce time.Duration

	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewWatcher watches the catalog file's directory. Watching the directory
// rather than the file survives the rename-and-replace save pattern.
func NewWatcher(engine *Engine, path string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}
	w := &Watcher{
		engine:   engine,
		path:     path,
		watcher:  fw,
		debounce: 500 * time.Millisecond,
	}
	w.wg.Add(1)
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				fire = timer.C
			} else {
				if !timer.Stop() {
					<-timer.C
				}
				timer.Reset(w.debounce)
			}
		case <-fire:
			timer = nil
			fire = nil
			if _, err := w.engine.LoadCatalog(w.path); err != nil {
				w.engine.log(model.LogLevelWarn, "catalog_reload_failed error=%v", err)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.engine.log(model.LogLevelError, "watcher_error error=%v", err)
		}
	}
}

// Close stops the watcher and waits for the loop goroutine.
func (w *Watcher) Close() {
	w.stopOnce.Do(func() { w.watcher.Close() })
	w.wg.Wait()
}
