package permission

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"blazealert/internal/eventbus"
	"blazealert/internal/metrics"
	logx "blazealert/pkg/logx"
)

const DefaultPromptTimeout = 2 * time.Minute

// Facility is the OS-level push mechanism. A nil Facility means none exists.
type Facility interface {
	Available(ctx context.Context) bool
}

type Options struct {
	Platform      *Platform
	Facility      Facility
	Prompter      Prompter
	PromptTimeout time.Duration
	Bus           eventbus.Bus
	Log           logx.Logger
}

// ChangeEvent is published as "permission.changed".
type ChangeEvent struct {
	From State `json:"from"`
	To   State `json:"to"`
}

// Gate owns the permission state. Consent requests are serialized; Status
// and Check never wait on an open prompt.
type Gate struct {
	platform *Platform
	facility Facility
	prompter Prompter
	timeout  time.Duration
	bus      eventbus.Bus
	log      logx.Logger

	mu    sync.Mutex
	state State
	// gen counts transitions made by set; Check drops its result when it moved.
	gen uint64

	// Holds one token; whoever has it may prompt.
	promptSlot chan struct{}
}

func NewGate(opts Options) *Gate {
	if opts.Log.IsZero() {
		opts.Log = logx.Nop()
	}
	if opts.PromptTimeout <= 0 {
		opts.PromptTimeout = DefaultPromptTimeout
	}
	if opts.Prompter == nil {
		opts.Prompter = AutoDeny
	}
	g := &Gate{
		platform:   opts.Platform,
		facility:   opts.Facility,
		prompter:   opts.Prompter,
		timeout:    opts.PromptTimeout,
		bus:        opts.Bus,
		log:        opts.Log,
		state:      StateUnknown,
		promptSlot: make(chan struct{}, 1),
	}
	g.promptSlot <- struct{}{}
	metrics.SetPermissionState(string(StateUnknown), States)
	return g
}

// Status returns the last known state without consulting the platform.
func (g *Gate) Status() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Check re-reads the platform. A granted state drops to denied when the
// facility went away or the remembered decision is no longer "granted".
// An unknown state adopts a remembered decision. Denied never becomes
// granted here; that takes an explicit RequestConsent. A Check that overlaps
// a transition keeps the newer state.
func (g *Gate) Check(ctx context.Context) State {
	g.mu.Lock()
	startGen := g.gen
	g.mu.Unlock()

	available := g.facility != nil && g.facility.Available(ctx)
	remembered, err := g.platform.Decision(ctx)
	if err != nil {
		g.log.Warn("reading remembered consent failed", logx.Err(err))
	}

	g.mu.Lock()
	cur := g.state
	if g.gen != startGen {
		g.mu.Unlock()
		return cur
	}
	next := cur
	switch cur {
	case StateGranted:
		if !available || (err == nil && remembered != StateGranted) {
			next = StateDenied
		}
	case StateUnknown:
		if !available {
			break
		}
		if remembered == StateGranted || remembered == StateDenied {
			next = remembered
		}
	}
	if next != cur {
		g.state = next
		g.gen++
	}
	g.mu.Unlock()

	if next != cur {
		g.changed(cur, next)
	}
	return next
}

// RequestConsent asks the user for permission.
//
// Without a facility the state becomes denied and ErrUnsupported is returned.
// When already granted no prompt is shown. Otherwise the prompter runs, even
// after an earlier denial, bounded by the prompt timeout; a dismissed or
// timed-out prompt leaves the state untouched and returns ErrPromptTimeout.
func (g *Gate) RequestConsent(ctx context.Context) (State, error) {
	if g.facility == nil || !g.facility.Available(ctx) {
		g.set(StateDenied)
		metrics.ConsentRequestsTotal.WithLabelValues("unsupported").Inc()
		g.log.Warn("consent requested but no push facility is available")
		return StateDenied, ErrUnsupported
	}
	if g.Check(ctx) == StateGranted {
		metrics.ConsentRequestsTotal.WithLabelValues("cached").Inc()
		return StateGranted, nil
	}

	select {
	case <-g.promptSlot:
	case <-ctx.Done():
		return g.Status(), fmt.Errorf("%w: %v", ErrPromptTimeout, ctx.Err())
	}
	defer func() { g.promptSlot <- struct{}{} }()

	// Someone else may have granted while we waited for the slot.
	if st := g.Status(); st == StateGranted {
		return st, nil
	}

	pctx, cancel := context.WithTimeout(ctx, g.timeout)
	granted, err := g.prompter.Prompt(pctx)
	cancel()
	if err != nil {
		metrics.ConsentRequestsTotal.WithLabelValues("timeout").Inc()
		if !errors.Is(err, ErrDismissed) && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
			g.log.Warn("consent prompt failed", logx.Err(err))
		}
		return g.Status(), fmt.Errorf("%w: %v", ErrPromptTimeout, err)
	}

	next := StateDenied
	if granted {
		next = StateGranted
	}
	if err := g.platform.Remember(ctx, next); err != nil {
		g.log.Warn("remembering consent decision failed", logx.Err(err))
	}
	g.set(next)
	metrics.ConsentRequestsTotal.WithLabelValues(string(next)).Inc()
	g.log.Info("consent decided", logx.String("state", string(next)))
	return next, nil
}

func (g *Gate) set(next State) {
	g.mu.Lock()
	cur := g.state
	g.state = next
	g.gen++
	g.mu.Unlock()
	if cur != next {
		g.changed(cur, next)
	}
}

func (g *Gate) changed(from, to State) {
	metrics.SetPermissionState(string(to), States)
	g.log.Debug("permission state changed", logx.String("from", string(from)), logx.String("to", string(to)))
	if g.bus != nil {
		g.bus.Publish(eventbus.Event{Type: "permission.changed", Data: ChangeEvent{From: from, To: to}})
	}
}
