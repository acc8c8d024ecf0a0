// Package auth attaches session authentication material to outbound commands
// and screens them against the destructive-command deny list before they
// reach the bridge channel.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	mathrand "math/rand"
	"strings"
	"sync"
	"time"

	"github.com/JarrarHaider26/Jerry-AI-Assistant/internal/model"
)

// blockedSubstrings rejects any command whose action/target/payload contains
// one of these fragments, case-insensitively. Matches the bridge executor's
// own block list so a bad command is stopped before it ever leaves the relay.
var blockedSubstrings = []string{
	"format c:",
	"del /s",
	"rd /s /q c:",
	"rm -rf /",
	"reg delete hklm",
	"mkfs",
	"dd if=",
}

// dangerousActions are allowed through but flagged so the caller can require
// confirmation before dispatch.
var dangerousActions = map[string]bool{
	"shutdown":      true,
	"restart":       true,
	"delete_file":   true,
	"delete_folder": true,
	"format":        true,
	"kill_process":  true,
	"shell_execute": true,
	"logoff":        true,
}

// Validation is the outcome of screening a command.
type Validation struct {
	Valid     bool
	Message   string
	Dangerous bool
}

// Gate wraps outbound commands with the session token, a millisecond
// timestamp, and a fresh nonce. Stateless apart from the secret.
type Gate struct {
	secret string
	logger *log.Logger

	fallbackOnce sync.Once
	fallback     *mathrand.Rand
	fallbackMu   sync.Mutex
}

// NewGate creates a gate for the given session secret. The relay refuses to
// start without one: an unauthenticated bridge link is a misconfiguration,
// not a degraded mode.
func NewGate(secret string, logger *log.Logger) (*Gate, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("auth: no session token configured (set JERRY_BRIDGE_TOKEN)")
	}
	return &Gate{secret: secret, logger: logger}, nil
}

// Wrap returns a copy of cmd carrying the session token, the current unix
// millisecond timestamp, and a unique nonce. The caller's command is never
// mutated.
func (g *Gate) Wrap(cmd model.Command) model.WrappedCommand {
	return model.WrappedCommand{
		Command:   cmd,
		AuthToken: g.secret,
		Timestamp: time.Now().UnixMilli(),
		Nonce:     g.nonce(),
	}
}

// nonce returns 16 cryptographically random bytes hex-encoded. If the secure
// source fails it degrades to a time-seeded generator, logged once.
func (g *Gate) nonce() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		g.fallbackOnce.Do(func() {
			g.fallback = mathrand.New(mathrand.NewSource(time.Now().UnixNano()))
			if g.logger != nil {
				g.logger.Printf("%s WARN auth: nonce_fallback degraded=true error=%v",
					time.Now().Format(time.RFC3339), err)
			}
		})
		g.fallbackMu.Lock()
		for i := range buf {
			buf[i] = byte(g.fallback.Intn(256))
		}
		g.fallbackMu.Unlock()
	}
	return hex.EncodeToString(buf)
}

// Validate screens a command. It never mutates state and never blocks.
func (g *Gate) Validate(cmd model.Command) Validation {
	if strings.TrimSpace(cmd.Action) == "" {
		return Validation{Valid: false, Message: "command has no action"}
	}

	haystack := strings.ToLower(cmd.Action + " " + cmd.Target + " " + cmd.Payload)
	for _, blocked := range blockedSubstrings {
		if strings.Contains(haystack, blocked) {
			return Validation{
				Valid:   false,
				Message: fmt.Sprintf("blocked destructive pattern %q", blocked),
			}
		}
	}

	if dangerousActions[strings.ToLower(strings.TrimSpace(cmd.Action))] {
		return Validation{Valid: true, Dangerous: true, Message: "dangerous action, confirmation advised"}
	}
	return Validation{Valid: true}
}
