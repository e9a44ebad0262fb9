package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"blazealert/internal/config"
	"blazealert/internal/console"
	"blazealert/internal/delivery"
	"blazealert/internal/eventbus"
	"blazealert/internal/generator"
	"blazealert/internal/httpapi"
	"blazealert/internal/metrics"
	"blazealert/internal/permission"
	"blazealert/internal/runtime/supervisor"
	logx "blazealert/pkg/logx"
)

type Options struct {
	ConfigPath string
	// In and Out back the interactive console. A nil In runs headless.
	In  io.Reader
	Out io.Writer
}

// App is the long-running service: the core plus the alert generator, the
// HTTP API, the console and config hot reload.
type App struct {
	*Core

	gen *generator.Generator
	api *httpapi.Server
	con *console.Console
	// notices keeps recent in-app notices for GET /api/notices.
	notices *delivery.RecordingPresenter

	sup *supervisor.Supervisor

	quitOnce sync.Once
	quit     chan struct{}
}

func New(ctx context.Context, opts Options) (*App, error) {
	a := &App{quit: make(chan struct{}), notices: delivery.NewRecordingPresenter(50)}
	out := opts.Out
	if out == nil {
		out = logx.Stdout()
	}

	// The console is built after the feed it drives, so the gate reaches it
	// through this indirection.
	var terminal permission.Prompter
	if opts.In != nil {
		terminal = permission.PrompterFunc(func(ctx context.Context) (bool, error) {
			if a.con == nil {
				return false, permission.ErrDismissed
			}
			return a.con.Prompt(ctx)
		})
	}

	core, err := Bootstrap(ctx, CoreOptions{
		ConfigPath: opts.ConfigPath,
		Terminal:   terminal,
		Presenter:  delivery.Multi{delivery.NewConsolePresenter(out), a.notices},
	})
	if err != nil {
		return nil, err
	}
	a.Core = core
	rt := core.Runtime

	if rt.Generator.Enabled {
		gen, err := generator.New(rt.Generator.Config, core.Log.With(logx.String("comp", "generator")))
		if err != nil {
			_ = core.Close()
			return nil, err
		}
		a.gen = gen
	}
	if rt.HTTP.Enabled {
		a.api = httpapi.New(httpapi.Config{
			Addr:         rt.HTTP.Addr,
			ReadTimeout:  rt.HTTP.ReadTimeout,
			WriteTimeout: rt.HTTP.WriteTimeout,
			Pprof:        rt.HTTP.Pprof,
			Notices:      a.notices,
		}, core.Feed, core.Log.With(logx.String("comp", "http")))
	}
	if opts.In != nil {
		a.con = console.New(core.Feed, opts.In, out, core.Log.With(logx.String("comp", "console")))
	}
	return a, nil
}

// Done is closed when the service should stop: a fatal error, a console
// quit or Stop.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Quit is closed when the user quits from the console.
func (a *App) Quit() <-chan struct{} { return a.quit }

func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.Log), supervisor.WithCancelOnError(true))
	sctx := a.sup.Context()

	a.Config.SetLogger(a.Log.With(logx.String("comp", "config")))
	a.Config.SetValidator(func(_ context.Context, cfg *config.Config) error {
		_, err := config.Resolve(cfg)
		return err
	})

	a.Delivery.Start(sctx)

	if a.gen != nil {
		a.sup.Go("generator", a.gen.Run)
		a.sup.Go("feed.ingest", func(c context.Context) error {
			err := a.Feed.Run(c, a.gen.Alerts())
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	if a.api != nil {
		a.api.Start(sctx)
	}
	if a.con != nil {
		a.sup.Go0("console", func(c context.Context) {
			if err := a.con.Run(c); errors.Is(err, console.ErrQuit) {
				a.quitOnce.Do(func() { close(a.quit) })
			}
		})
	}

	for _, prefix := range []string{"feed.", "delivery.", "permission."} {
		events, unsub := eventbus.SubscribePrefix(a.Bus, 64, prefix)
		a.sup.Go0("eventbus.log."+strings.TrimSuffix(prefix, "."), func(c context.Context) {
			defer unsub()
			for {
				select {
				case <-c.Done():
					return
				case e, ok := <-events:
					if !ok {
						return
					}
					a.logEvent(e)
				}
			}
		})
	}
	a.sup.Go0("eventbus.dropped", func(c context.Context) {
		t := time.NewTicker(10 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-c.Done():
				reportDropped(a.Bus)
				return
			case <-t.C:
				reportDropped(a.Bus)
			}
		}
	})

	sub := a.Config.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.Config.Unsubscribe(sub)
		last := a.Config.Get()
		for {
			select {
			case <-c.Done():
				return
			case next, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts.
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							next = newer
						}
					default:
						break drain
					}
				}
				a.applyConfig(last, next)
				last = next
			}
		}
	})
	a.sup.Go("config.watch", a.Config.Watch)

	a.sup.Go0("systemd.watchdog", func(c context.Context) { watchdog(c, a.Log) })
	notifyReady(a.Log)
	a.Log.Info("app started",
		logx.Int("alerts", a.Feed.Len()),
		logx.Int("unread", a.Feed.UnreadCount()),
		logx.String("permission", string(a.Gate.Status())),
		logx.Bool("generator", a.gen != nil),
		logx.Bool("http", a.api != nil),
	)
	return nil
}

func (a *App) logEvent(e eventbus.Event) {
	switch {
	case strings.HasPrefix(e.Type, "delivery.failed"), e.Type == "feed.persist_failed":
		a.Log.Warn("event", logx.String("type", e.Type), logx.Any("data", e.Data))
	default:
		a.Log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
	}
}

// reportDropped mirrors the bus drop count into the exported gauge.
func reportDropped(b eventbus.Bus) {
	metrics.EventsDropped.Set(float64(eventbus.Dropped(b)))
}

// applyConfig pushes the hot-reloadable sections into running components.
func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	sections, attrs := config.Changed(oldCfg, newCfg)
	if len(sections) == 0 {
		a.Log.Info("config reloaded (no changes)")
		return
	}
	rt, err := config.Resolve(newCfg)
	if err != nil {
		a.Log.Warn("invalid config; keeping previous", logx.Err(err))
		return
	}
	for _, s := range config.NeedsRestart(sections) {
		a.Log.Warn("config section changed; restart required for changes to take effect", logx.String("section", s))
	}
	for _, s := range sections {
		switch s {
		case config.SectionLogging:
			a.Logs.Apply(rt.Logging)
		case config.SectionDelivery:
			a.Delivery.Apply(rt.Push)
		case config.SectionGenerator:
			if a.gen != nil {
				a.gen.SetProbability(rt.Generator.Probability)
			}
		}
	}
	a.Runtime = rt
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.Log.Info("config reloaded", fields...)
}

// Stop shuts components down in dependency order, each step bounded so
// one slow component cannot stall the rest.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return a.Core.Close()
	}
	a.Log.Info("stopping", logx.String("reason", string(reason)))
	notifyStopping(a.Log)
	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		if dl, ok := ctx.Deadline(); ok {
			if rem := time.Until(dl); rem < max {
				max = rem
			}
		}
		if max <= 0 {
			a.Log.Warn("stop step skipped; deadline reached", logx.String("name", name))
			return
		}
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil && !errors.Is(err, context.Canceled) {
				a.Log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.Log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.Log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("http", 2*time.Second, func(c context.Context) error {
		if a.api != nil {
			a.api.Stop(c)
		}
		return nil
	})
	step("delivery", 2*time.Second, func(c context.Context) error { a.Delivery.Stop(c); return nil })
	step("supervisor", 2*time.Second, a.sup.Wait)
	step("storage", 1*time.Second, func(context.Context) error {
		if cl, ok := a.Sink.(io.Closer); ok {
			_ = cl.Close()
		}
		return a.Store.Close()
	})

	a.Log.Info("stopped")
	if a.Logs != nil {
		_ = a.Logs.Close()
	}
	return nil
}
