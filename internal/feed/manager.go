// Package feed owns the in-memory alert feed and the push permission
// state, and is the only writer of either.
//
// Mutations are serialized by one mutex and each one saves the feed before
// returning. Readers get immutable snapshots and never wait on writers.
package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"blazealert/internal/alert"
	"blazealert/internal/delivery"
	"blazealert/internal/eventbus"
	"blazealert/internal/metrics"
	"blazealert/internal/permission"
	logx "blazealert/pkg/logx"
)

var (
	ErrInvalidAlert = errors.New("invalid alert")
	ErrDuplicateID  = errors.New("alert id already in feed")
)

// Store is the durable copy of the feed. Fetch reports whether a feed was
// ever stored, so a cleared feed is not reseeded.
type Store interface {
	Fetch(ctx context.Context) (alert.Feed, bool)
	Save(ctx context.Context, f alert.Feed) error
}

// Gate is the permission state holder.
type Gate interface {
	Status() permission.State
	Check(ctx context.Context) permission.State
	RequestConsent(ctx context.Context) (permission.State, error)
}

// Deliverer surfaces alerts and notices to the user.
type Deliverer interface {
	Deliver(ctx context.Context, a alert.Alert, allowPush bool)
	Notify(n delivery.Notice)
}

type Options struct {
	Store    Store
	Gate     Gate
	Delivery Deliverer
	Bus      eventbus.Bus
	Log      logx.Logger
	SeedDemo bool
	Now      func() time.Time
}

// Event payloads published on the bus.
type (
	IngestedEvent struct {
		ID        string          `json:"id"`
		Intensity alert.Intensity `json:"intensity"`
		Pushed    bool            `json:"pushed"`
	}
	ReadEvent struct {
		ID string `json:"id,omitempty"`
		N  int    `json:"n"`
	}
	PersistFailedEvent struct {
		Op    string `json:"op"`
		Error string `json:"error"`
	}
)

type Manager struct {
	store    Store
	gate     Gate
	out      Deliverer
	bus      eventbus.Bus
	log      logx.Logger
	seedDemo bool
	now      func() time.Time

	mu   sync.Mutex
	snap atomic.Pointer[alert.Feed]
}

func New(opts Options) *Manager {
	if opts.Log.IsZero() {
		opts.Log = logx.Nop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	m := &Manager{
		store:    opts.Store,
		gate:     opts.Gate,
		out:      opts.Delivery,
		bus:      opts.Bus,
		log:      opts.Log,
		seedDemo: opts.SeedDemo,
		now:      opts.Now,
	}
	empty := alert.Feed{}
	m.snap.Store(&empty)
	return m
}

// Initialize loads the stored feed. When nothing was ever stored and seeding
// is enabled it seeds the demonstration alerts instead.
func (m *Manager) Initialize(ctx context.Context) alert.Feed {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, found := alert.Feed{}, false
	if m.store != nil {
		f, found = m.store.Fetch(ctx)
	}
	if !found && m.seedDemo {
		f = alert.DemoFeed(m.now())
		m.log.Info("feed empty; seeded demonstration alerts", logx.Int("alerts", f.Len()))
		m.commit(ctx, "seed", f)
	} else {
		m.replace(f)
	}
	m.log.Info("feed initialized", logx.Int("alerts", f.Len()), logx.Int("unread", f.UnreadCount()))
	return f.Clone()
}

// Ingest puts a at the head of the feed, saves, and delivers it. In-app
// delivery always happens; push only when the permission is granted.
func (m *Manager) Ingest(ctx context.Context, a alert.Alert) error {
	if err := a.Validate(); err != nil {
		metrics.AlertsRejectedTotal.WithLabelValues("invalid").Inc()
		return fmt.Errorf("%w: %v", ErrInvalidAlert, err)
	}
	a.Read = false
	if a.Timestamp.IsZero() {
		a.Timestamp = m.now()
	}

	m.mu.Lock()
	cur := m.current()
	if cur.Index(a.ID) >= 0 {
		m.mu.Unlock()
		metrics.AlertsRejectedTotal.WithLabelValues("duplicate").Inc()
		return fmt.Errorf("%w: %s", ErrDuplicateID, a.ID)
	}
	m.commit(ctx, "ingest", cur.Prepend(a))
	m.mu.Unlock()

	metrics.AlertsIngestedTotal.WithLabelValues(string(a.Intensity)).Inc()

	// Delivery and the permission check stay outside the writer lock.
	allowPush := m.gate != nil && m.gate.Check(ctx) == permission.StateGranted
	if m.out != nil {
		m.out.Deliver(ctx, a, allowPush)
	}
	m.log.Debug("alert ingested", logx.String("id", a.ID), logx.String("intensity", string(a.Intensity)), logx.Bool("push", allowPush))
	m.publish("feed.ingested", IngestedEvent{ID: a.ID, Intensity: a.Intensity, Pushed: allowPush})
	return nil
}

// MarkAsRead flips one alert to read. Unknown or already-read ids are a
// no-op and report false.
func (m *Manager) MarkAsRead(ctx context.Context, id string) bool {
	m.mu.Lock()
	next, changed := m.current().WithRead(id)
	if changed {
		m.commit(ctx, "mark_read", next)
	}
	m.mu.Unlock()
	if changed {
		m.publish("feed.read", ReadEvent{ID: id, N: 1})
	}
	return changed
}

// MarkAllAsRead marks every alert read in one replacement and one save.
func (m *Manager) MarkAllAsRead(ctx context.Context) int {
	m.mu.Lock()
	next, n := m.current().WithAllRead()
	if n > 0 {
		m.commit(ctx, "mark_all_read", next)
	}
	m.mu.Unlock()
	if n > 0 {
		m.publish("feed.read_all", ReadEvent{N: n})
	}
	return n
}

// ClearAll empties the feed.
func (m *Manager) ClearAll(ctx context.Context) int {
	m.mu.Lock()
	n := m.current().Len()
	m.commit(ctx, "clear", alert.Feed{})
	m.mu.Unlock()
	m.publish("feed.cleared", ReadEvent{N: n})
	return n
}

// Snapshot returns a copy of the current feed.
func (m *Manager) Snapshot() alert.Feed { return m.current().Clone() }

// UnreadCount is recomputed from the current snapshot on every call.
func (m *Manager) UnreadCount() int { return m.current().UnreadCount() }

func (m *Manager) Len() int { return m.current().Len() }

func (m *Manager) Get(id string) (alert.Alert, bool) { return m.current().Get(id) }

// PermissionStatus is the last known permission state.
func (m *Manager) PermissionStatus() permission.State {
	if m.gate == nil {
		return permission.StateUnknown
	}
	return m.gate.Status()
}

// RequestConsent asks for push permission and surfaces the outcome as an
// in-app notice. It never holds the feed lock.
func (m *Manager) RequestConsent(ctx context.Context) (permission.State, error) {
	if m.gate == nil {
		return permission.StateDenied, permission.ErrUnsupported
	}
	st, err := m.gate.RequestConsent(ctx)
	switch {
	case errors.Is(err, permission.ErrUnsupported):
		m.notify("Notifications not supported on this system", "", delivery.LevelError)
	case err != nil:
		m.notify("Error requesting notification permission", "", delivery.LevelError)
	case st == permission.StateGranted:
		m.notify("Notification permission granted", "", delivery.LevelSuccess)
	default:
		m.notify("Notification permission denied", "", delivery.LevelError)
	}
	return st, err
}

// Run drains alerts into Ingest until the channel closes or ctx ends.
func (m *Manager) Run(ctx context.Context, alerts <-chan alert.Alert) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case a, ok := <-alerts:
			if !ok {
				return nil
			}
			if err := m.Ingest(ctx, a); err != nil {
				m.log.Warn("alert rejected", logx.String("id", a.ID), logx.Err(err))
			}
		}
	}
}

func (m *Manager) current() alert.Feed {
	return *m.snap.Load()
}

// replace publishes f to readers. Callers hold mu.
func (m *Manager) replace(f alert.Feed) {
	if f == nil {
		f = alert.Feed{}
	}
	m.snap.Store(&f)
	metrics.FeedSize.Set(float64(f.Len()))
	metrics.FeedUnread.Set(float64(f.UnreadCount()))
}

// commit publishes f and saves it. A failed save keeps the in-memory state.
// Callers hold mu.
func (m *Manager) commit(ctx context.Context, op string, f alert.Feed) {
	m.replace(f)
	if m.store == nil {
		return
	}
	if err := m.store.Save(ctx, f); err != nil {
		metrics.PersistFailuresTotal.Inc()
		m.log.Error("feed save failed", logx.String("op", op), logx.Err(err))
		m.notify("Failed to save notifications", "Changes are kept in memory until the next successful save.", delivery.LevelError)
		m.publish("feed.persist_failed", PersistFailedEvent{Op: op, Error: err.Error()})
	}
}

func (m *Manager) notify(title, desc string, lvl delivery.Level) {
	if m.out == nil {
		return
	}
	m.out.Notify(delivery.Notice{Title: title, Description: desc, Level: lvl})
}

func (m *Manager) publish(typ string, data any) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(eventbus.Event{Type: typ, Data: data})
}
