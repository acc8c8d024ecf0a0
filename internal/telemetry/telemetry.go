// Package telemetry consumes host snapshots broadcast by the bridge, keeps a
// bounded history, and raises threshold alerts with per-rule cooldowns.
package telemetry

import (
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/JarrarHaider26/Jerry-AI-Assistant/internal/model"
)

// AlertFunc receives each fired alert. Called from ProcessSnapshot's
// goroutine; implementations must not block.
type AlertFunc func(alert Alert)

// Alert is one fired rule occurrence.
type Alert struct {
	ID        string    `json:"id"`
	RuleID    string    `json:"rule_id"`
	Metric    string    `json:"metric"`
	Value     float64   `json:"value"`
	Threshold float64   `json:"threshold"`
	Message   string    `json:"message"`
	FiredAt   time.Time `json:"fired_at"`
}

// StatusReport is the aggregate view served to status queries.
type StatusReport struct {
	Latest      *model.Snapshot `json:"latest,omitempty"`
	Samples     int             `json:"samples"`
	AvgCPU      float64         `json:"avg_cpu"`
	AvgMemory   float64         `json:"avg_memory"`
	AvgDisk     float64         `json:"avg_disk"`
	AlertsFired int             `json:"alerts_fired"`
	GeneratedAt time.Time       `json:"generated_at"`
}

// Service holds snapshot history and alert rules. Status reports are cached
// for a short TTL and recomputation is deduplicated, so a burst of status
// queries costs one pass over the history.
type Service struct {
	mu      sync.Mutex
	history []model.Snapshot
	cap     int
	rules   []*model.AlertRule
	alertFn AlertFunc

	cacheTTL    time.Duration
	cached      *StatusReport
	cachedAt    time.Time
	flight      singleflight.Group
	alertsFired int

	now func() time.Time

	logger   *log.Logger
	logLevel model.LogLevel
}

func New(cfg model.TelemetryConfig, logger *log.Logger, level model.LogLevel) *Service {
	capacity := cfg.HistoryCapacity
	if capacity <= 0 {
		capacity = 120
	}
	ttl := time.Duration(cfg.CacheTTLSec) * time.Second
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	s := &Service{
		cap:      capacity,
		cacheTTL: ttl,
		now:      time.Now,
		logger:   logger,
		logLevel: level,
	}
	s.rules = defaultRules()
	return s
}

// defaultRules are the stock thresholds; callers may add more with AddRule.
func defaultRules() []*model.AlertRule {
	return []*model.AlertRule{
		{ID: "rule_cpu_high", Metric: model.MetricCPU, Threshold: 90, Direction: model.AlertAbove,
			Message: "CPU usage critical", Cooldown: 60 * time.Second, Enabled: true},
		{ID: "rule_mem_high", Metric: model.MetricMemory, Threshold: 85, Direction: model.AlertAbove,
			Message: "memory usage high", Cooldown: 60 * time.Second, Enabled: true},
		{ID: "rule_disk_high", Metric: model.MetricDisk, Threshold: 90, Direction: model.AlertAbove,
			Message: "disk nearly full", Cooldown: 300 * time.Second, Enabled: true},
		{ID: "rule_battery_low", Metric: model.MetricBattery, Threshold: 15, Direction: model.AlertBelow,
			Message: "battery low", Cooldown: 120 * time.Second, Enabled: true},
	}
}

// SetAlertFunc registers the alert sink.
func (s *Service) SetAlertFunc(fn AlertFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alertFn = fn
}

// AddRule registers an alert rule, generating an ID when absent.
func (s *Service) AddRule(rule model.AlertRule) (string, error) {
	if rule.Metric == "" || rule.Direction == "" {
		return "", fmt.Errorf("telemetry: rule needs metric and direction")
	}
	if rule.ID == "" {
		id, err := model.GenerateID(model.IDTypeAlert)
		if err != nil {
			return "", fmt.Errorf("telemetry: %w", err)
		}
		rule.ID = id
	}
	s.mu.Lock()
	s.rules = append(s.rules, &rule)
	s.mu.Unlock()
	s.log(model.LogLevelInfo, "rule_added id=%s metric=%s threshold=%.1f direction=%s",
		rule.ID, rule.Metric, rule.Threshold, rule.Direction)
	return rule.ID, nil
}

// Rules returns copies of all registered rules.
func (s *Service) Rules() []model.AlertRule {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.AlertRule, 0, len(s.rules))
	for _, r := range s.rules {
		out = append(out, *r)
	}
	return out
}

// ProcessSnapshot records a sample, invalidates the status cache, and
// evaluates every enabled rule against it.
func (s *Service) ProcessSnapshot(snap model.Snapshot) []Alert {
	now := s.now()
	snap.ReceivedAt = now

	s.mu.Lock()
	s.history = append(s.history, snap)
	if len(s.history) > s.cap {
		s.history = s.history[len(s.history)-s.cap:]
	}
	s.cached = nil

	var fired []Alert
	for _, rule := range s.rules {
		if !rule.Enabled {
			continue
		}
		value, ok := snap.MetricValue(rule.Metric)
		if !ok {
			continue
		}
		breached := (rule.Direction == model.AlertAbove && value > rule.Threshold) ||
			(rule.Direction == model.AlertBelow && value < rule.Threshold)
		if !breached {
			continue
		}
		if !rule.LastTriggered.IsZero() && now.Sub(rule.LastTriggered) < rule.Cooldown {
			continue
		}
		rule.LastTriggered = now

		id, err := model.GenerateID(model.IDTypeAlert)
		if err != nil {
			id = fmt.Sprintf("alert_%d", now.UnixNano())
		}
		fired = append(fired, Alert{
			ID:        id,
			RuleID:    rule.ID,
			Metric:    string(rule.Metric),
			Value:     value,
			Threshold: rule.Threshold,
			Message:   rule.Message,
			FiredAt:   now,
		})
	}
	s.alertsFired += len(fired)
	sink := s.alertFn
	s.mu.Unlock()

	for _, a := range fired {
		s.log(model.LogLevelWarn, "alert_fired rule=%s metric=%s value=%.1f threshold=%.1f",
			a.RuleID, a.Metric, a.Value, a.Threshold)
		if sink != nil {
			sink(a)
		}
	}
	return fired
}

// Latest returns the most recent snapshot, if any.
func (s *Service) Latest() (model.Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.history) == 0 {
		return model.Snapshot{}, false
	}
	return s.history[len(s.history)-1], true
}

// History returns up to n most recent snapshots, oldest first.
func (s *Service) History(n int) []model.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 || n > len(s.history) {
		n = len(s.history)
	}
	out := make([]model.Snapshot, n)
	copy(out, s.history[len(s.history)-n:])
	return out
}

// Averages computes mean cpu, memory, and disk percentages over the history.
func (s *Service) Averages() (cpu, memory, disk float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.averagesLocked()
}

func (s *Service) averagesLocked() (cpu, memory, disk float64) {
	if len(s.history) == 0 {
		return 0, 0, 0
	}
	for _, snap := range s.history {
		cpu += snap.CPU.Percent
		memory += snap.Memory.Percent
		disk += snap.Disk.Percent
	}
	n := float64(len(s.history))
	return cpu / n, memory / n, disk / n
}

// StatusReport returns the aggregate view. Reports are cached for the TTL;
// concurrent cache misses share one recomputation.
func (s *Service) StatusReport() StatusReport {
	s.mu.Lock()
	if s.cached != nil && s.now().Sub(s.cachedAt) < s.cacheTTL {
		report := *s.cached
		s.mu.Unlock()
		return report
	}
	s.mu.Unlock()

	v, _, _ := s.flight.Do("status", func() (interface{}, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.cached != nil && s.now().Sub(s.cachedAt) < s.cacheTTL {
			return *s.cached, nil
		}
		report := s.buildReportLocked()
		s.cached = &report
		s.cachedAt = s.now()
		return report, nil
	})
	return v.(StatusReport)
}

func (s *Service) buildReportLocked() StatusReport {
	report := StatusReport{
		Samples:     len(s.history),
		AlertsFired: s.alertsFired,
		GeneratedAt: s.now(),
	}
	if len(s.history) > 0 {
		latest := s.history[len(s.history)-1]
		report.Latest = &latest
	}
	report.AvgCPU, report.AvgMemory, report.AvgDisk = s.averagesLocked()
	return report
}

func (s *Service) log(level model.LogLevel, format string, args ...any) {
	if level < s.logLevel || s.logger == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)
	s.logger.Printf("%s %s telemetry: %s", time.Now().Format(time.RFC3339), level, msg)
}
