package delivery

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"blazealert/internal/delivery/push"
	"blazealert/internal/eventbus"
	"blazealert/internal/metrics"
	rtsup "blazealert/internal/runtime/supervisor"
	logx "blazealert/pkg/logx"
)

var (
	ErrDisabled  = errors.New("push delivery disabled")
	ErrQueueFull = errors.New("push queue full")
	ErrStopped   = errors.New("push delivery stopped")
)

// PushConfig controls the async push pipeline.
type PushConfig struct {
	Enabled          bool
	Workers          int
	QueueSize        int
	RatePerSec       int
	RetryMax         int
	RetryBase        time.Duration
	RetryMaxDelay    time.Duration
	SendTimeout      time.Duration
	HighPriorityOnly bool
}

// PushEvent is published on the bus as "delivery.<outcome>".
type PushEvent struct {
	Sink    string    `json:"sink"`
	AlertID string    `json:"alert_id"`
	At      time.Time `json:"at"`
	Attempt int       `json:"attempt,omitempty"`
	Error   string    `json:"error,omitempty"`
}

// pusher is a queue + worker pool + rate limit + retry in front of a push.Sink.
type pusher struct {
	mu sync.Mutex

	log  logx.Logger
	sink push.Sink
	bus  eventbus.Bus

	cfg     PushConfig
	limiter *rate.Limiter

	accepting bool
	enqueueWG sync.WaitGroup
	queue     chan push.Message
	sup       *rtsup.Supervisor
}

func newPusher(cfg PushConfig, sink push.Sink, bus eventbus.Bus, log logx.Logger) *pusher {
	p := &pusher{sink: sink, bus: bus, log: log}
	p.applyLocked(cfg)
	return p
}

func (p *pusher) apply(cfg PushConfig) {
	p.mu.Lock()
	p.applyLocked(cfg)
	p.mu.Unlock()
}

// applyLocked keeps the queue size and worker count of a running pipeline;
// they take effect on the next start.
func (p *pusher) applyLocked(cfg PushConfig) {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 3
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 10 * time.Second
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	p.cfg = cfg
	// Burst equals the per-second rate so short spikes pass.
	p.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

func (p *pusher) config() PushConfig {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg
}

func (p *pusher) start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.queue != nil || !p.cfg.Enabled || p.sink == nil {
		return
	}
	p.queue = make(chan push.Message, p.cfg.QueueSize)
	p.accepting = true
	p.sup = rtsup.New(ctx, rtsup.WithLogger(p.log))
	q := p.queue
	for i := 0; i < p.cfg.Workers; i++ {
		p.sup.GoRestart(fmt.Sprintf("push.worker.%d", i), func(c context.Context) error {
			p.workerLoop(c, q)
			return nil
		})
	}
}

// stop refuses new work and drains the queue until ctx ends.
func (p *pusher) stop(ctx context.Context) {
	p.mu.Lock()
	q, sup := p.queue, p.sup
	if q == nil || !p.accepting {
		p.mu.Unlock()
		return
	}
	p.accepting = false
	p.mu.Unlock()

	p.enqueueWG.Wait()
	close(q)
	if err := sup.Wait(ctx); err != nil {
		sup.Cancel()
		p.log.Warn("push queue not drained before deadline", logx.Int("pending", len(q)))
	}

	p.mu.Lock()
	p.queue = nil
	p.sup = nil
	p.mu.Unlock()
}

func (p *pusher) enqueue(m push.Message) error {
	p.mu.Lock()
	if !p.cfg.Enabled || p.sink == nil {
		p.mu.Unlock()
		return ErrDisabled
	}
	if !p.accepting || p.queue == nil {
		p.mu.Unlock()
		return ErrStopped
	}
	q := p.queue
	p.enqueueWG.Add(1)
	p.mu.Unlock()
	defer p.enqueueWG.Done()

	select {
	case q <- m:
		metrics.PushQueueDepth.Set(float64(len(q)))
		p.publish("delivery.queued", m, 0, nil)
		return nil
	default:
		p.publish("delivery.dropped", m, 0, ErrQueueFull)
		return ErrQueueFull
	}
}

func (p *pusher) workerLoop(ctx context.Context, q <-chan push.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-q:
			if !ok {
				return
			}
			metrics.PushQueueDepth.Set(float64(len(q)))
			p.sendWithRetry(ctx, m)
		}
	}
}

func (p *pusher) sendWithRetry(ctx context.Context, m push.Message) {
	p.mu.Lock()
	cfg, lim := p.cfg, p.limiter
	p.mu.Unlock()

	attempts := 1 + cfg.RetryMax
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := lim.Wait(ctx); err != nil {
			return
		}
		cctx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
		start := time.Now()
		err := p.sink.Send(cctx, m)
		cancel()
		metrics.PushSendDuration.Observe(time.Since(start).Seconds())
		if err == nil {
			metrics.DeliveriesTotal.WithLabelValues("push", "sent").Inc()
			p.publish("delivery.sent", m, attempt, nil)
			return
		}
		lastErr = err
		p.log.Debug("push send failed", logx.Err(err), logx.Int("attempt", attempt), logx.Int("max", attempts))
		if attempt == attempts {
			break
		}
		t := time.NewTimer(retryDelay(cfg, attempt))
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return
		}
	}
	metrics.DeliveriesTotal.WithLabelValues("push", "failed").Inc()
	p.log.Warn("push delivery failed", logx.String("sink", p.sink.Name()), logx.String("alert_id", m.Tag), logx.Err(lastErr))
	p.publish("delivery.failed", m, attempts, lastErr)
}

func (p *pusher) publish(typ string, m push.Message, attempt int, err error) {
	if p.bus == nil {
		return
	}
	ev := PushEvent{AlertID: m.Tag, At: time.Now(), Attempt: attempt}
	if p.sink != nil {
		ev.Sink = p.sink.Name()
	}
	if err != nil {
		ev.Error = err.Error()
	}
	p.bus.Publish(eventbus.Event{Type: typ, Time: ev.At, Data: ev})
}

// retryDelay is base * 2^(attempt-1) with 0.7..1.3 jitter, capped at RetryMaxDelay.
func retryDelay(cfg PushConfig, attempt int) time.Duration {
	d := cfg.RetryBase
	for i := 1; i < attempt && d < cfg.RetryMaxDelay; i++ {
		d *= 2
	}
	d = time.Duration(float64(d) * (0.7 + rand.Float64()*0.6))
	if d > cfg.RetryMaxDelay {
		d = cfg.RetryMaxDelay
	}
	return d
}
