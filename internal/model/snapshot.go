package model

import "time"

// Snapshot is one immutable sample of host telemetry, in the wire shape the
// bridge broadcasts (type=system_monitor messages).
type Snapshot struct {
	CPU        CPUStats     `json:"cpu"`
	Memory     MemoryStats  `json:"memory"`
	Disk       DiskStats    `json:"disk"`
	Network    NetworkStats `json:"network"`
	Battery    BatteryStats `json:"battery"`
	Uptime     string       `json:"uptime"`
	OS         string       `json:"os"`
	Hostname   string       `json:"hostname"`
	ReceivedAt time.Time    `json:"-"`
}

type CPUStats struct {
	Percent float64 `json:"percent"`
	Cores   int     `json:"cores"`
}

type MemoryStats struct {
	Percent     float64 `json:"percent"`
	TotalGB     float64 `json:"total_gb"`
	UsedGB      float64 `json:"used_gb"`
	AvailableGB float64 `json:"available_gb"`
}

type DiskStats struct {
	Percent float64 `json:"percent"`
	TotalGB float64 `json:"total_gb"`
	UsedGB  float64 `json:"used_gb"`
	FreeGB  float64 `json:"free_gb"`
}

type NetworkStats struct {
	BytesSent int64   `json:"bytes_sent"`
	BytesRecv int64   `json:"bytes_recv"`
	SentMB    float64 `json:"sent_mb"`
	RecvMB    float64 `json:"recv_mb"`
}

type BatteryStats struct {
	Percent  *float64 `json:"percent"`
	Charging *bool    `json:"charging"`
	TimeLeft string   `json:"time_left"`
}

// Metric names an alert rule's observed value.
type Metric string

const (
	MetricCPU     Metric = "cpu"
	MetricMemory  Metric = "memory"
	MetricDisk    Metric = "disk"
	MetricBattery Metric = "battery"
)

// MetricValue extracts the named metric from the snapshot. The second return
// is false when the snapshot does not carry the metric (no battery on
// desktops).
func (s *Snapshot) MetricValue(m Metric) (float64, bool) {
	switch m {
	case MetricCPU:
		return s.CPU.Percent, true
	case MetricMemory:
		return s.Memory.Percent, true
	case MetricDisk:
		return s.Disk.Percent, true
	case MetricBattery:
		if s.Battery.Percent == nil {
			return 0, false
		}
		return *s.Battery.Percent, true
	default:
		return 0, false
	}
}

// AlertDirection says which side of the threshold triggers a rule.
type AlertDirection string

const (
	AlertAbove AlertDirection = "above"
	AlertBelow AlertDirection = "below"
)

// AlertRule is a threshold rule evaluated against every snapshot.
type AlertRule struct {
	ID            string         `yaml:"id"`
	Metric        Metric         `yaml:"metric"`
	Threshold     float64        `yaml:"threshold"`
	Direction     AlertDirection `yaml:"direction"`
	Message       string         `yaml:"message"`
	Cooldown      time.Duration  `yaml:"cooldown"`
	Enabled       bool           `yaml:"enabled"`
	LastTriggered time.Time      `yaml:"-"`
}
