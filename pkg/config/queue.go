package config

import "time"

// QueueConfig governs session admission: how many sessions run at once,
// how many may wait, and how workers drain on shutdown.
type QueueConfig struct {
	MaxConcurrentSessions  int           `yaml:"max_concurrent_sessions"`
	QueueLimit             int           `yaml:"queue_limit"`
	WorkerCount            int           `yaml:"worker_count"`
	PollInterval           time.Duration `yaml:"poll_interval"`
	PollIntervalJitter     time.Duration `yaml:"poll_interval_jitter"`
	DrainTimeout           time.Duration `yaml:"drain_timeout"`
	SessionTimeout         time.Duration `yaml:"session_timeout"`
	HeartbeatInterval      time.Duration `yaml:"heartbeat_interval"`
	OrphanDetectionInterval time.Duration `yaml:"orphan_detection_interval"`
	OrphanThreshold        time.Duration `yaml:"orphan_threshold"`
}
