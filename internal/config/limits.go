package config

// LimitsConfig configures the usage/rate gate: burst buckets checked per
// route, then per-user daily quotas.
type LimitsConfig struct {
	// Burst buckets: count per window, applied separately per IP and per
	// account.
	RecallPerHour   int `yaml:"recall_per_hour"`
	WritesPerMinute int `yaml:"writes_per_minute"`
	IngestPerMinute int `yaml:"ingest_per_minute"`

	// Daily quotas per user. Zero disables a quota.
	DailyMemoryLimit  int64 `yaml:"daily_memory_limit"`
	DailyRecallLimit  int64 `yaml:"daily_recall_limit"`
	DailyProjectLimit int64 `yaml:"daily_project_limit"`

	// CounterDir is the BadgerDB path for shared burst counters. Empty
	// selects the in-process fallback (development mode).
	CounterDir string `yaml:"counter_dir"`

	// Strict makes a counter-backend failure a refusal instead of a pass
	// (production behavior).
	Strict bool `yaml:"strict"`
}

// DefaultLimitsConfig returns sensible defaults.
func DefaultLimitsConfig() LimitsConfig {
	return LimitsConfig{
		RecallPerHour:     240,
		WritesPerMinute:   60,
		IngestPerMinute:   30,
		DailyMemoryLimit:  500,
		DailyRecallLimit:  1000,
		DailyProjectLimit: 20,
	}
}
