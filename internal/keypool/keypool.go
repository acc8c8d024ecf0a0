// Package keypool manages a pool of upstream API credentials, tracking
// per-credential health and rotating away from failing or rate-limited ones.
//
// Selection is a greedy health score, not optimal scheduling: the pool is
// small (a handful of keys) and the score only needs to avoid hammering a
// credential that is cooling down.
package keypool

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/JarrarHaider26/Jerry-AI-Assistant/internal/model"
)

const minKeyLength = 8

type credential struct {
	secret        string
	failureCount  int
	successCount  int
	lastFailureAt time.Time
	cooldownUntil time.Time
}

func (c *credential) inCooldown(now time.Time) bool {
	return c.cooldownUntil.After(now)
}

func (c *credential) remaining(now time.Time) time.Duration {
	if !c.inCooldown(now) {
		return 0
	}
	return c.cooldownUntil.Sub(now)
}

// KeyStats is the per-credential diagnostic detail exposed by Stats.
type KeyStats struct {
	Fingerprint       string        `json:"fingerprint"`
	FailureCount      int           `json:"failure_count"`
	SuccessCount      int           `json:"success_count"`
	InCooldown        bool          `json:"in_cooldown"`
	CooldownRemaining time.Duration `json:"cooldown_remaining"`
}

// Stats is a snapshot of pool health. The active secret is only ever
// reported as a redacted fingerprint.
type Stats struct {
	ActiveIndex int        `json:"active_index"`
	PoolSize    int        `json:"pool_size"`
	ActiveKey   string     `json:"active_key"`
	Healthy     int        `json:"healthy"`
	Cooling     int        `json:"cooling"`
	Keys        []KeyStats `json:"keys"`
}

// Manager owns the credential pool. All mutation goes through its methods.
type Manager struct {
	mu      sync.Mutex
	keys    []*credential
	current int

	shortCooldown time.Duration
	longCooldown  time.Duration
	escalation    int

	logger   *log.Logger
	logLevel model.LogLevel
}

// New parses a delimited raw key string into a pool. Entries are trimmed
// and anything shorter than 8 runes is dropped as a paste fragment.
func New(raw string, cfg model.KeysConfig, logger *log.Logger, level model.LogLevel) (*Manager, error) {
	var keys []*credential
	for _, part := range strings.Split(raw, ",") {
		secret := strings.TrimSpace(part)
		if len(secret) < minKeyLength {
			continue
		}
		keys = append(keys, &credential{secret: secret})
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("keypool: no usable keys in pool (set JERRY_API_KEYS)")
	}

	m := &Manager{
		keys:          keys,
		shortCooldown: time.Duration(cfg.ShortCooldownSec) * time.Second,
		longCooldown:  time.Duration(cfg.LongCooldownSec) * time.Second,
		escalation:    cfg.EscalationThreshold,
		logger:        logger,
		logLevel:      level,
	}
	m.log(model.LogLevelInfo, "pool_loaded size=%d", len(keys))
	return m, nil
}

// Active returns the currently selected secret without health checks.
func (m *Manager) Active() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.keys[m.current].secret
}

// MarkFailed records a failure on the active credential and places it in
// cooldown: short normally, long once failures reach the escalation
// threshold.
func (m *Manager) MarkFailed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markFailedLocked()
}

func (m *Manager) markFailedLocked() {
	now := time.Now()
	c := m.keys[m.current]
	c.failureCount++
	c.lastFailureAt = now

	cooldown := m.shortCooldown
	if c.failureCount >= m.escalation {
		cooldown = m.longCooldown
	}
	c.cooldownUntil = now.Add(cooldown)
	m.log(model.LogLevelWarn, "key_failed index=%d failures=%d cooldown=%s",
		m.current, c.failureCount, cooldown)
}

// MarkSuccess records a success: failure count decays by one, cooldown is
// cleared. Success never increases the failure count.
func (m *Manager) MarkSuccess() {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.keys[m.current]
	c.successCount++
	if c.failureCount > 0 {
		c.failureCount--
	}
	c.cooldownUntil = time.Time{}
}

// Rotate fails the active credential and moves to the healthiest other one.
// Returns false (and mutates nothing) when the pool has a single key.
func (m *Manager) Rotate() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.keys) <= 1 {
		return false
	}

	m.markFailedLocked()
	now := time.Now()

	best := -1
	bestScore := 0.0
	allCooling := true
	for i, c := range m.keys {
		if i == m.current {
			continue
		}
		score := 0.0
		if !c.inCooldown(now) {
			score = 1000
			allCooling = false
		}
		score -= float64(c.failureCount) * 100
		score += float64(c.successCount)
		if c.inCooldown(now) {
			score -= c.remaining(now).Seconds()
		}
		if best == -1 || score > bestScore {
			best = i
			bestScore = score
		}
	}

	if best == -1 || (allCooling && bestScore <= 0) {
		// Everyone else is cooling: take the shortest remaining cooldown.
		shortest := time.Duration(-1)
		for i, c := range m.keys {
			if i == m.current {
				continue
			}
			if r := c.remaining(now); shortest < 0 || r < shortest {
				shortest = r
				best = i
			}
		}
		if best == -1 {
			best = (m.current + 1) % len(m.keys)
		}
	}

	m.log(model.LogLevelInfo, "rotated from=%d to=%d score=%.1f", m.current, best, bestScore)
	m.current = best
	return true
}

// Available returns a usable secret immediately, or the wait until the
// soonest credential leaves cooldown. When the active credential is cooling
// but another is healthy, the pool switches to it.
func (m *Manager) Available() (secret string, wait time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if !m.keys[m.current].inCooldown(now) {
		return m.keys[m.current].secret, 0
	}

	for i, c := range m.keys {
		if !c.inCooldown(now) {
			m.log(model.LogLevelInfo, "key_switched from=%d to=%d reason=cooldown", m.current, i)
			m.current = i
			return c.secret, 0
		}
	}

	// Upstream exhaustion: report the shortest wait. Never fatal.
	best := m.current
	shortest := m.keys[m.current].remaining(now)
	for i, c := range m.keys {
		if r := c.remaining(now); r < shortest {
			shortest = r
			best = i
		}
	}
	m.current = best
	return m.keys[best].secret, shortest
}

// ResetCooldowns is the administrative override: clears every cooldown and
// failure count.
func (m *Manager) ResetCooldowns() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range m.keys {
		c.cooldownUntil = time.Time{}
		c.failureCount = 0
	}
	m.log(model.LogLevelInfo, "cooldowns_reset size=%d", len(m.keys))
}

// Stats reports pool health with redacted key material.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	s := Stats{
		ActiveIndex: m.current,
		PoolSize:    len(m.keys),
		ActiveKey:   redact(m.keys[m.current].secret),
	}
	for _, c := range m.keys {
		cooling := c.inCooldown(now)
		if cooling {
			s.Cooling++
		} else {
			s.Healthy++
		}
		s.Keys = append(s.Keys, KeyStats{
			Fingerprint:       redact(c.secret),
			FailureCount:      c.failureCount,
			SuccessCount:      c.successCount,
			InCooldown:        cooling,
			CooldownRemaining: c.remaining(now),
		})
	}
	return s
}

// redact keeps the first and last four characters of a secret.
func redact(secret string) string {
	if len(secret) <= 8 {
		return "****"
	}
	return secret[:4] + "..." + secret[len(secret)-4:]
}

func (m *Manager) log(level model.LogLevel, format string, args ...any) {
	if level < m.logLevel || m.logger == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)
	m.logger.Printf("%s %s keypool: %s", time.Now().Format(time.RFC3339), level, msg)
}
