// Package push holds the OS-level notification sinks used for alert push
// delivery.
package push

import (
	"context"
	"fmt"
	"strings"
	"time"

	logx "blazealert/pkg/logx"
)

type Urgency int

const (
	UrgencyLow Urgency = iota
	UrgencyNormal
	UrgencyCritical
)

// Message is one OS-level notification.
type Message struct {
	Title   string
	Body    string
	Urgency Urgency
	Tag     string // alert id
}

// Sink delivers messages. Available doubles as the permission facility
// probe: a sink that reports false cannot show anything on this host.
type Sink interface {
	Name() string
	Available(ctx context.Context) bool
	Send(ctx context.Context, m Message) error
}

type Config struct {
	Driver  string // "desktop" | "telegram" | "none"
	AppName string
	Timeout time.Duration

	TelegramToken  string
	TelegramChatID int64
}

// Open returns the configured sink, or nil for "none".
func Open(cfg Config, log logx.Logger) (Sink, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.AppName == "" {
		cfg.AppName = "Blaze Alert"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "none", "off":
		return nil, nil
	case "desktop", "dbus":
		return NewDesktop(cfg.AppName, log), nil
	case "telegram":
		return NewTelegram(cfg.TelegramToken, cfg.TelegramChatID, cfg.Timeout, log)
	default:
		return nil, fmt.Errorf("unknown push driver: %s", cfg.Driver)
	}
}
