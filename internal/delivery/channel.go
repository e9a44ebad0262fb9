package delivery

import (
	"context"
	"errors"
	"time"

	"blazealert/internal/alert"
	"blazealert/internal/delivery/push"
	"blazealert/internal/eventbus"
	"blazealert/internal/metrics"
	logx "blazealert/pkg/logx"
)

const (
	AlertNoticeTitle = "New fire alert received"
	PushTitle        = "Blaze Alert"
)

// Channel is the delivery surface used by the feed. Failures are logged and
// counted; nothing is returned to the caller.
type Channel struct {
	log       logx.Logger
	presenter Presenter
	sink      push.Sink
	pusher    *pusher
	now       func() time.Time
}

type Options struct {
	Presenter Presenter
	Sink      push.Sink // nil when no OS-level facility exists
	Push      PushConfig
	Bus       eventbus.Bus
	Log       logx.Logger
}

func New(opts Options) *Channel {
	if opts.Log.IsZero() {
		opts.Log = logx.Nop()
	}
	return &Channel{
		log:       opts.Log,
		presenter: opts.Presenter,
		sink:      opts.Sink,
		pusher:    newPusher(opts.Push, opts.Sink, opts.Bus, opts.Log),
		now:       time.Now,
	}
}

// Facility is the push sink, for use as the permission facility probe.
// It is nil when no sink is configured.
func (c *Channel) Facility() push.Sink { return c.sink }

// Start launches the push workers under ctx.
func (c *Channel) Start(ctx context.Context) { c.pusher.start(ctx) }

// Stop drains queued pushes until ctx ends.
func (c *Channel) Stop(ctx context.Context) { c.pusher.stop(ctx) }

// Apply swaps push tuning (rate, retries, high-priority filter) at runtime.
func (c *Channel) Apply(cfg PushConfig) { c.pusher.apply(cfg) }

// Deliver shows an in-app notice for a, and queues an OS-level push when
// allowPush is true.
func (c *Channel) Deliver(ctx context.Context, a alert.Alert, allowPush bool) {
	c.Notify(Notice{
		Title:       AlertNoticeTitle,
		Description: a.Title,
		Level:       LevelWarning,
		AlertID:     a.ID,
	})
	metrics.DeliveriesTotal.WithLabelValues("in_app", "shown").Inc()

	if !allowPush {
		return
	}
	if err := ctx.Err(); err != nil {
		return
	}
	if c.pusher.config().HighPriorityOnly && a.Intensity != alert.IntensityHigh {
		metrics.DeliveriesTotal.WithLabelValues("push", "filtered").Inc()
		c.pusher.publish("delivery.filtered", push.Message{Tag: a.ID}, 0, nil)
		return
	}
	err := c.pusher.enqueue(push.Message{
		Title:   PushTitle,
		Body:    a.Title,
		Urgency: urgencyFor(a.Intensity),
		Tag:     a.ID,
	})
	switch {
	case err == nil:
	case errors.Is(err, ErrDisabled):
		metrics.DeliveriesTotal.WithLabelValues("push", "disabled").Inc()
	default:
		metrics.DeliveriesTotal.WithLabelValues("push", "dropped").Inc()
		c.log.Warn("push not queued", logx.String("alert_id", a.ID), logx.Err(err))
	}
}

// Notify shows an in-app only notice.
func (c *Channel) Notify(n Notice) {
	if n.At.IsZero() {
		n.At = c.now()
	}
	if n.Level == "" {
		n.Level = LevelInfo
	}
	if c.presenter == nil {
		c.log.Info(n.Title, logx.String("description", n.Description))
		return
	}
	c.presenter.Present(n)
}

func urgencyFor(in alert.Intensity) push.Urgency {
	switch in {
	case alert.IntensityHigh:
		return push.UrgencyCritical
	case alert.IntensityMedium:
		return push.UrgencyNormal
	default:
		return push.UrgencyLow
	}
}
