package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JarrarHaider26/Jerry-AI-Assistant/internal/model"
)

func TestNewGate_RequiresSecret(t *testing.T) {
	_, err := NewGate("", nil)
	require.Error(t, err)
	_, err = NewGate("   ", nil)
	require.Error(t, err)

	g, err := NewGate("session-token", nil)
	require.NoError(t, err)
	require.NotNil(t, g)
}

func TestGate_Wrap(t *testing.T) {
	g, err := NewGate("session-token", nil)
	require.NoError(t, err)

	cmd := model.Command{Action: "open_app", Target: "browser"}
	before := time.Now().UnixMilli()
	wc := g.Wrap(cmd)
	after := time.Now().UnixMilli()

	assert.Equal(t, "session-token", wc.AuthToken)
	assert.Equal(t, "open_app", wc.Action)
	assert.GreaterOrEqual(t, wc.Timestamp, before)
	assert.LessOrEqual(t, wc.Timestamp, after)
	assert.Len(t, wc.Nonce, 32)

	// Caller's command is untouched and nonces never repeat.
	assert.Equal(t, model.Command{Action: "open_app", Target: "browser"}, cmd)
	assert.NotEqual(t, wc.Nonce, g.Wrap(cmd).Nonce)
}

func TestGate_Validate(t *testing.T) {
	g, err := NewGate("session-token", nil)
	require.NoError(t, err)

	tests := []struct {
		name      string
		cmd       model.Command
		valid     bool
		dangerous bool
	}{
		{
			name:  "plain command",
			cmd:   model.Command{Action: "open_app", Target: "browser"},
			valid: true,
		},
		{
			name: "missing action",
			cmd:  model.Command{Target: "browser"},
		},
		{
			name: "blocked payload",
			cmd:  model.Command{Action: "shell_execute", Payload: "format c: /q"},
		},
		{
			name: "blocked case insensitive",
			cmd:  model.Command{Action: "shell_execute", Payload: "FORMAT C: /q"},
		},
		{
			name: "blocked in target",
			cmd:  model.Command{Action: "run", Target: "rm -rf / --no-preserve-root"},
		},
		{
			name: "registry delete",
			cmd:  model.Command{Action: "shell_execute", Payload: "reg delete HKLM\\Software"},
		},
		{
			name:      "dangerous shutdown",
			cmd:       model.Command{Action: "shutdown"},
			valid:     true,
			dangerous: true,
		},
		{
			name:      "dangerous uppercase action",
			cmd:       model.Command{Action: "Shutdown"},
			valid:     true,
			dangerous: true,
		},
		{
			name:      "dangerous kill process",
			cmd:       model.Command{Action: "kill_process", Target: "notepad"},
			valid:     true,
			dangerous: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := g.Validate(tt.cmd)
			assert.Equal(t, tt.valid, v.Valid, "valid: %s", v.Message)
			assert.Equal(t, tt.dangerous, v.Dangerous, "dangerous")
			if !tt.valid || tt.dangerous {
				assert.NotEmpty(t, v.Message)
			}
		})
	}
}
