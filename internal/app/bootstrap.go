package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"blazealert/internal/alert"
	"blazealert/internal/alertstore"
	"blazealert/internal/auth"
	"blazealert/internal/config"
	"blazealert/internal/delivery"
	"blazealert/internal/delivery/push"
	"blazealert/internal/eventbus"
	"blazealert/internal/feed"
	"blazealert/internal/permission"
	"blazealert/internal/storage"
	logx "blazealert/pkg/logx"
)

// Core is the set of components every entry point needs: the long-running
// service and the one-shot CLI commands alike.
type Core struct {
	Config  *config.Manager
	Runtime *config.Runtime

	Logs *logx.Service
	Log  logx.Logger
	Bus  eventbus.Bus

	Store    storage.Store
	Alerts   *alertstore.Store
	Sink     push.Sink
	Delivery *delivery.Channel
	Platform *permission.Platform
	Gate     *permission.Gate
	Feed     *feed.Manager
	Auth     *auth.Local
}

// CoreOptions carries what differs between entry points.
type CoreOptions struct {
	ConfigPath string
	// Terminal answers consent prompts when permission.prompt is "terminal".
	Terminal permission.Prompter
	// Presenter shows in-app notices. Nil means the console on stdout.
	Presenter delivery.Presenter
	// Sink replaces the configured push sink when set.
	Sink push.Sink
	// LogOverride replaces the configured level (e.g. "warn" for CLI commands).
	LogOverride string
}

// Bootstrap loads the config and wires storage, delivery, permission and
// the feed. It does not start anything.
func Bootstrap(ctx context.Context, opts CoreOptions) (*Core, error) {
	cfgm := config.NewManager(opts.ConfigPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	rt, err := config.Resolve(cfg)
	if err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", opts.ConfigPath, err)
	}

	logCfg := rt.Logging
	if opts.LogOverride != "" {
		logCfg.Level = opts.LogOverride
	}
	logs, log := logx.New(logCfg)

	c := &Core{
		Config:  cfgm,
		Runtime: rt,
		Logs:    logs,
		Log:     log.With(logx.String("comp", "app")),
		Bus:     eventbus.New(),
	}
	fail := func(err error) (*Core, error) {
		_ = c.Close()
		return nil, err
	}

	st, err := storage.Open(rt.Storage, log.With(logx.String("comp", "storage")))
	if err != nil {
		return fail(fmt.Errorf("open storage: %w", err))
	}
	c.Store = st
	c.Alerts = alertstore.New(st, log.With(logx.String("comp", "alertstore")))

	sink := opts.Sink
	if sink == nil {
		sink, err = push.Open(rt.Sink, log.With(logx.String("comp", "push")))
		if err != nil {
			return fail(fmt.Errorf("open push sink: %w", err))
		}
	}
	c.Sink = sink

	presenter := opts.Presenter
	if presenter == nil {
		presenter = delivery.NewConsolePresenter(logx.Stdout())
	}
	c.Delivery = delivery.New(delivery.Options{
		Presenter: presenter,
		Sink:      sink,
		Push:      rt.Push,
		Bus:       c.Bus,
		Log:       log.With(logx.String("comp", "delivery")),
	})

	c.Platform = permission.NewPlatform(st)
	var facility permission.Facility
	if sink != nil {
		facility = sink
	}
	c.Gate = permission.NewGate(permission.Options{
		Platform:      c.Platform,
		Facility:      facility,
		Prompter:      pickPrompter(rt.Permission.Prompt, opts.Terminal),
		PromptTimeout: rt.Permission.PromptTimeout,
		Bus:           c.Bus,
		Log:           log.With(logx.String("comp", "permission")),
	})
	// Adopt a decision remembered from an earlier run.
	c.Gate.Check(ctx)

	c.Feed = feed.New(feed.Options{
		Store:    c.Alerts,
		Gate:     c.Gate,
		Delivery: c.Delivery,
		Bus:      c.Bus,
		Log:      log.With(logx.String("comp", "feed")),
		SeedDemo: rt.SeedDemo,
	})
	c.Feed.Initialize(ctx)

	c.Auth = auth.NewLocal(st, log.With(logx.String("comp", "auth")))
	return c, nil
}

func pickPrompter(mode string, terminal permission.Prompter) permission.Prompter {
	switch mode {
	case "auto_grant":
		return permission.AutoGrant
	case "auto_deny":
		return permission.AutoDeny
	default:
		if terminal == nil {
			return permission.AutoDeny
		}
		return terminal
	}
}

// Close releases the sink, the store and the log sinks.
// IngestOnce runs a through the feed with push delivery started, then
// drains the push queue. One-shot commands use it; the service ingests
// through Start instead.
func (c *Core) IngestOnce(ctx context.Context, a alert.Alert) error {
	c.Delivery.Start(ctx)
	defer func() {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		c.Delivery.Stop(sctx)
	}()
	return c.Feed.Ingest(ctx, a)
}

func (c *Core) Close() error {
	var errs []error
	if cl, ok := c.Sink.(io.Closer); ok {
		errs = append(errs, cl.Close())
	}
	if c.Store != nil {
		errs = append(errs, c.Store.Close())
	}
	if c.Logs != nil {
		errs = append(errs, c.Logs.Close())
	}
	return errors.Join(errs...)
}
