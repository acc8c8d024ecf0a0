package model

// Command is a single intent produced by the voice dispatcher or the UI.
// It is immutable once constructed; authentication metadata is only ever
// added to a wrapped copy, never written back into the caller's value.
type Command struct {
	Action  string `json:"action" yaml:"action"`
	Target  string `json:"target,omitempty" yaml:"target,omitempty"`
	Payload string `json:"payload,omitempty" yaml:"payload,omitempty"`
	Extra   string `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// WrappedCommand is a Command augmented with session authentication material,
// in the wire shape the bridge executor expects.
type WrappedCommand struct {
	Command
	AuthToken string `json:"auth_token"`
	Timestamp int64  `json:"timestamp"`
	Nonce     string `json:"nonce"`
	ReqID     string `json:"_reqId,omitempty"`
}

// ReplyStatus is the status field of a bridge reply.
type ReplyStatus string

const (
	ReplySuccess ReplyStatus = "success"
	ReplyError   ReplyStatus = "error"
	ReplyWarning ReplyStatus = "warning"
	ReplyInfo    ReplyStatus = "info"
)

// Reply is the executor's response to a correlated command.
type Reply struct {
	Status  ReplyStatus `json:"status"`
	Message string      `json:"message"`
	ReqID   string      `json:"_reqId,omitempty"`
}

// IsError reports whether the reply explicitly carries an error status.
// An empty status (fire-and-forget acks, partial replies) is not an error.
func (r Reply) IsError() bool {
	return r.Status == ReplyError
}

// Priority orders queued commands. Lower value dequeues first.
type Priority int

const (
	PriorityCritical Priority = iota
	PriorityHigh
	PriorityNormal
	PriorityLow
)

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	default:
		return "unknown"
	}
}

// ParsePriority maps a priority name to its value, defaulting to normal.
func ParsePriority(s string) Priority {
	switch s {
	case "critical":
		return PriorityCritical
	case "high":
		return PriorityHigh
	case "low":
		return PriorityLow
	default:
		return PriorityNormal
	}
}

// Source identifies who initiated a command.
type Source string

const (
	SourceVoice      Source = "voice"
	SourceManual     Source = "manual"
	SourceAutomation Source = "automation"
	SourceSystem     Source = "system"
)
