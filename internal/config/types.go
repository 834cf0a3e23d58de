package config

// Config is the full daemon configuration.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "30m").
// The file may be JSON or YAML; unknown fields are rejected.
type Config struct {
	Logging LoggingConfig `json:"logging"`

	Bus      BusConfig      `json:"bus"`
	Registry RegistryConfig `json:"registry"`
	Relay    RelayConfig    `json:"relay"`
	Discord  DiscordConfig  `json:"discord"`

	Interactions InteractionsConfig `json:"interactions"`
	Builds       BuildsConfig       `json:"builds"`

	Maintenance MaintenanceConfig `json:"maintenance,omitempty"`
}

type LoggingConfig struct {
	Level   string        `json:"level,omitempty"`
	Console bool          `json:"console"`
	File    LogFileConfig `json:"file,omitempty"`
}

type LogFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// BusConfig points at the valkey stream carrying build-status messages.
type BusConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password,omitempty"`

	Stream   string `json:"stream,omitempty"`
	Group    string `json:"group,omitempty"`
	Consumer string `json:"consumer,omitempty"`

	Block     string `json:"block,omitempty"`
	BatchSize int    `json:"batch_size,omitempty"`

	ClaimInterval string `json:"claim_interval,omitempty"`
	MinIdle       string `json:"min_idle,omitempty"`

	DeadLetterStream string `json:"dead_letter_stream,omitempty"`
}

type RegistryConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// RelayConfig tunes the delivery engine.
//
// Defaults (when fields are omitted/zero):
//   - queue_size: 256
//   - cache_ttl: "30m"
//   - sweep_interval: "5m"
//   - dispatch_timeout: "10s"
//   - rate_per_sec: 5
//   - decode_retry_max: 5
type RelayConfig struct {
	QueueSize       int    `json:"queue_size,omitempty"`
	CacheTTL        string `json:"cache_ttl,omitempty"`
	SweepInterval   string `json:"sweep_interval,omitempty"`
	DispatchTimeout string `json:"dispatch_timeout,omitempty"`
	RatePerSec      int    `json:"rate_per_sec,omitempty"`
	DecodeRetryMax  int    `json:"decode_retry_max,omitempty"`
}

type DiscordConfig struct {
	APIBase   string `json:"api_base,omitempty"`
	Username  string `json:"username,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Timeout   string `json:"timeout,omitempty"`
}

type InteractionsConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`
	PublicKey     string `json:"public_key,omitempty"`
	AppID         string `json:"app_id,omitempty"`
	ActionTimeout string `json:"action_timeout,omitempty"`
}

// BuildsConfig points at the build service API used to execute
// approve/reject/cancel/retry actions.
type BuildsConfig struct {
	APIBase string `json:"api_base,omitempty"`
	Token   string `json:"token,omitempty"`
	Timeout string `json:"timeout,omitempty"`
}

// MaintenanceConfig controls scheduled housekeeping.
type MaintenanceConfig struct {
	// AuditPruneSchedule is a cron spec; default "0 4 * * *".
	AuditPruneSchedule string `json:"audit_prune_schedule,omitempty"`
	// AuditRetention is how long dispatch audit rows are kept; default "168h".
	AuditRetention string `json:"audit_retention,omitempty"`
}
