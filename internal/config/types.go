package config

// Config is the on-disk configuration (JSON or YAML).
//
// All durations are Go duration strings ("500ms", "10s", "1m"). Omitted
// sections and zero fields take the defaults listed on each type.
type Config struct {
	Logging    LoggingConfig    `json:"logging"`
	Storage    StorageConfig    `json:"storage"`
	Feed       FeedConfig       `json:"feed"`
	Generator  GeneratorConfig  `json:"generator"`
	Permission PermissionConfig `json:"permission"`
	Delivery   DeliveryConfig   `json:"delivery"`
	HTTP       HTTPConfig       `json:"http"`
}

type LoggingConfig struct {
	Level   string            `json:"level"`
	Console bool              `json:"console"`
	File    LoggingFileConfig `json:"file"`
}

// LoggingFileConfig enables a rotating JSON log file.
//
// Defaults: max_size_mb 10, max_backups 3, max_age_days 7.
type LoggingFileConfig struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty"`
	MaxAgeDays int    `json:"max_age_days,omitempty"`
}

// StorageConfig selects the record store.
//
// Driver: "file" (path is a directory), "sqlite" (path is a db file) or
// "memory". Defaults to file under ./data.
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

type FeedConfig struct {
	// SeedDemo seeds three demonstration alerts into an empty feed.
	SeedDemo *bool `json:"seed_demo,omitempty"`
}

// GeneratorConfig controls the simulated alert source.
//
// Defaults: enabled, interval "60s", probability 0.3, buffer 16.
// Probability is a pointer so an explicit 0 can silence the generator.
type GeneratorConfig struct {
	Enabled     *bool    `json:"enabled,omitempty"`
	Schedule    string   `json:"schedule,omitempty"`
	Interval    string   `json:"interval,omitempty"`
	Probability *float64 `json:"probability,omitempty"`
	Seed        int64    `json:"seed,omitempty"`
	Buffer      int      `json:"buffer,omitempty"`
}

// PermissionConfig selects how consent is asked.
//
// Prompt: "terminal" (default), "auto_grant" or "auto_deny".
type PermissionConfig struct {
	Prompt        string `json:"prompt"`
	PromptTimeout string `json:"prompt_timeout,omitempty"`
}

type DeliveryConfig struct {
	Push PushConfig `json:"push"`
}

// PushConfig controls OS-level push delivery.
//
// Driver: "desktop" (D-Bus notifications, default), "telegram" or "none".
// Defaults: workers 2, queue_size 64, rate_per_sec 3, retry_max 3,
// retry_base "500ms", retry_max_delay "10s".
type PushConfig struct {
	Enabled          *bool  `json:"enabled,omitempty"`
	Driver           string `json:"driver"`
	AppName          string `json:"app_name,omitempty"`
	Workers          int    `json:"workers,omitempty"`
	QueueSize        int    `json:"queue_size,omitempty"`
	RatePerSec       int    `json:"rate_per_sec,omitempty"`
	RetryMax         *int   `json:"retry_max,omitempty"`
	RetryBase        string `json:"retry_base,omitempty"`
	RetryMaxDelay    string `json:"retry_max_delay,omitempty"`
	SendTimeout      string `json:"send_timeout,omitempty"`
	HighPriorityOnly bool   `json:"high_priority_only"`

	Telegram TelegramPushConfig `json:"telegram"`
}

type TelegramPushConfig struct {
	Token  string `json:"token,omitempty"`
	ChatID int64  `json:"chat_id,omitempty"`
}

// HTTPConfig serves health, metrics and the feed API. Default addr 127.0.0.1:8787.
type HTTPConfig struct {
	Enabled      bool   `json:"enabled"`
	Addr         string `json:"addr"`
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	// Pprof mounts net/http/pprof under /debug/pprof/.
	Pprof bool `json:"pprof"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info", Console: true},
		Storage: StorageConfig{Driver: "file"},
		Permission: PermissionConfig{
			Prompt: "terminal",
		},
		Delivery: DeliveryConfig{Push: PushConfig{Driver: "desktop"}},
		HTTP:     HTTPConfig{Addr: "127.0.0.1:8787"},
	}
}
