package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"blazealert/internal/delivery"
	"blazealert/internal/delivery/push"
	"blazealert/internal/generator"
	"blazealert/internal/permission"
	"blazealert/internal/storage"
	logx "blazealert/pkg/logx"
)

// Runtime is the validated, defaulted form of Config that components consume.
type Runtime struct {
	Logging    logx.Config
	Storage    storage.Config
	SeedDemo   bool
	Generator  GeneratorRuntime
	Permission PermissionRuntime
	Push       delivery.PushConfig
	Sink       push.Config
	HTTP       HTTPRuntime
}

type GeneratorRuntime struct {
	Enabled bool
	generator.Config
}

type PermissionRuntime struct {
	Prompt        string
	PromptTimeout time.Duration
}

type HTTPRuntime struct {
	Enabled      bool
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Pprof        bool
}

var promptModes = map[string]bool{"terminal": true, "auto_grant": true, "auto_deny": true}

// Resolve validates cfg and fills defaults. Every problem is reported, not just the first.
func Resolve(cfg *Config) (*Runtime, error) {
	if cfg == nil {
		cfg = Default()
	}
	var errs []error
	dur := func(path, raw string, def time.Duration) time.Duration {
		d, err := ParseDurationOrDefault(path, raw, def)
		if err != nil {
			errs = append(errs, err)
			return def
		}
		return d
	}

	rt := &Runtime{}

	// logging
	lf := cfg.Logging.File
	rt.Logging = logx.Config{
		Level:   orDefault(cfg.Logging.Level, "info"),
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled:    lf.Enabled,
			Path:       strings.TrimSpace(lf.Path),
			MaxSizeMB:  lf.MaxSizeMB,
			MaxBackups: lf.MaxBackups,
			MaxAgeDays: lf.MaxAgeDays,
		},
	}
	if lf.Enabled && rt.Logging.File.Path == "" {
		errs = append(errs, errors.New("logging.file.path is required when logging.file.enabled"))
	}

	// storage
	rt.Storage = storage.Config{
		Driver:      strings.ToLower(orDefault(cfg.Storage.Driver, "file")),
		Path:        strings.TrimSpace(cfg.Storage.Path),
		BusyTimeout: dur("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second),
	}
	switch rt.Storage.Driver {
	case "file":
		if rt.Storage.Path == "" {
			rt.Storage.Path = "./data"
		}
	case "sqlite", "sqlite3":
		if rt.Storage.Path == "" {
			rt.Storage.Path = "./data/blazealert.db"
		}
	case "memory", "none":
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver))
	}

	// feed
	rt.SeedDemo = boolOr(cfg.Feed.SeedDemo, true)

	// generator
	g := cfg.Generator
	rt.Generator = GeneratorRuntime{
		Enabled: boolOr(g.Enabled, true),
		Config: generator.Config{
			Schedule:    strings.TrimSpace(g.Schedule),
			Interval:    dur("generator.interval", g.Interval, generator.DefaultInterval),
			Probability: generator.DefaultProbability,
			Seed:        g.Seed,
			Buffer:      g.Buffer,
		},
	}
	if g.Probability != nil {
		p := *g.Probability
		if p < 0 || p > 1 {
			errs = append(errs, fmt.Errorf("generator.probability must be within [0,1], got %v", p))
		} else {
			rt.Generator.Probability = p
		}
	}
	if g.Buffer < 0 {
		errs = append(errs, errors.New("generator.buffer must be >= 0"))
	}

	// permission
	mode := strings.ToLower(orDefault(cfg.Permission.Prompt, "terminal"))
	if !promptModes[mode] {
		errs = append(errs, fmt.Errorf("permission.prompt: unknown mode %q", cfg.Permission.Prompt))
	}
	rt.Permission = PermissionRuntime{
		Prompt:        mode,
		PromptTimeout: dur("permission.prompt_timeout", cfg.Permission.PromptTimeout, permission.DefaultPromptTimeout),
	}

	// delivery
	p := cfg.Delivery.Push
	retryMax := 3
	if p.RetryMax != nil {
		retryMax = *p.RetryMax
	}
	if retryMax < 0 {
		errs = append(errs, errors.New("delivery.push.retry_max must be >= 0"))
		retryMax = 0
	}
	if p.Workers < 0 || p.QueueSize < 0 || p.RatePerSec < 0 {
		errs = append(errs, errors.New("delivery.push: workers, queue_size and rate_per_sec must be >= 0"))
	}
	sendTimeout := dur("delivery.push.send_timeout", p.SendTimeout, 10*time.Second)
	rt.Push = delivery.PushConfig{
		Enabled:          boolOr(p.Enabled, true),
		Workers:          p.Workers,
		QueueSize:        p.QueueSize,
		RatePerSec:       p.RatePerSec,
		RetryMax:         retryMax,
		RetryBase:        dur("delivery.push.retry_base", p.RetryBase, 500*time.Millisecond),
		RetryMaxDelay:    dur("delivery.push.retry_max_delay", p.RetryMaxDelay, 10*time.Second),
		SendTimeout:      sendTimeout,
		HighPriorityOnly: p.HighPriorityOnly,
	}
	driver := strings.ToLower(orDefault(p.Driver, "desktop"))
	switch driver {
	case "desktop", "dbus", "none", "off":
	case "telegram":
		if strings.TrimSpace(p.Telegram.Token) == "" || p.Telegram.ChatID == 0 {
			errs = append(errs, errors.New("delivery.push.telegram: token and chat_id are required"))
		}
	default:
		errs = append(errs, fmt.Errorf("delivery.push.driver: unknown driver %q", p.Driver))
	}
	rt.Sink = push.Config{
		Driver:         driver,
		AppName:        orDefault(p.AppName, delivery.PushTitle),
		Timeout:        sendTimeout,
		TelegramToken:  strings.TrimSpace(p.Telegram.Token),
		TelegramChatID: p.Telegram.ChatID,
	}

	// http
	rt.HTTP = HTTPRuntime{
		Enabled:      cfg.HTTP.Enabled,
		Addr:         orDefault(cfg.HTTP.Addr, "127.0.0.1:8787"),
		ReadTimeout:  dur("http.read_timeout", cfg.HTTP.ReadTimeout, 10*time.Second),
		WriteTimeout: dur("http.write_timeout", cfg.HTTP.WriteTimeout, 10*time.Second),
		Pprof:        cfg.HTTP.Pprof,
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return rt, nil
}

func orDefault(s, def string) string {
	if s = strings.TrimSpace(s); s == "" {
		return def
	}
	return s
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}
