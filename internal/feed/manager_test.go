package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"blazealert/internal/alert"
	"blazealert/internal/alertstore"
	"blazealert/internal/delivery"
	"blazealert/internal/metrics"
	"blazealert/internal/permission"
	"blazealert/internal/storage"
	logx "blazealert/pkg/logx"
)

type delivered struct {
	id   string
	push bool
}

type recorder struct {
	mu      sync.Mutex
	alerts  []delivered
	notices []delivery.Notice
}

func (r *recorder) Deliver(_ context.Context, a alert.Alert, allowPush bool) {
	r.mu.Lock()
	r.alerts = append(r.alerts, delivered{id: a.ID, push: allowPush})
	r.mu.Unlock()
}

func (r *recorder) Notify(n delivery.Notice) {
	r.mu.Lock()
	r.notices = append(r.notices, n)
	r.mu.Unlock()
}

func (r *recorder) noticeTitles() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.notices))
	for _, n := range r.notices {
		out = append(out, n.Title)
	}
	return out
}

type stubGate struct {
	mu    sync.Mutex
	state permission.State
	next  permission.State
	err   error
}

func (g *stubGate) Status() permission.State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

func (g *stubGate) Check(context.Context) permission.State { return g.Status() }

func (g *stubGate) RequestConsent(context.Context) (permission.State, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err == nil {
		g.state = g.next
	}
	return g.state, g.err
}

type harness struct {
	m    *Manager
	mem  *storage.Memory
	rec  *recorder
	gate *stubGate
}

func newHarness(t *testing.T, seed bool) *harness {
	t.Helper()
	h := &harness{
		mem:  storage.NewMemory(),
		rec:  &recorder{},
		gate: &stubGate{state: permission.StateUnknown},
	}
	h.m = New(Options{
		Store:    alertstore.New(h.mem, logx.Nop()),
		Gate:     h.gate,
		Delivery: h.rec,
		Log:      logx.Nop(),
		SeedDemo: seed,
	})
	return h
}

var seq int

func newAlert(in alert.Intensity) alert.Alert {
	seq++
	return alert.Alert{ID: fmt.Sprintf("a-%d", seq), Title: "New Fire Alert", Intensity: in, Timestamp: time.Now()}
}

func TestInitializeSeedsAndPersists(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()
	f := h.m.Initialize(ctx)
	if f.Len() != 3 || h.m.UnreadCount() != 2 {
		t.Fatalf("seeded feed len=%d unread=%d", f.Len(), h.m.UnreadCount())
	}
	if got := alertstore.New(h.mem, logx.Nop()).Load(ctx); got.Len() != 3 {
		t.Fatalf("seed not persisted (stored %d)", got.Len())
	}

	// A second manager over the same store loads rather than reseeds.
	h.m.MarkAllAsRead(ctx)
	m2 := New(Options{Store: alertstore.New(h.mem, logx.Nop()), SeedDemo: true, Log: logx.Nop()})
	m2.Initialize(ctx)
	if m2.UnreadCount() != 0 || m2.Len() != 3 {
		t.Fatalf("reloaded feed len=%d unread=%d", m2.Len(), m2.UnreadCount())
	}
}

func TestInitializeWithoutSeed(t *testing.T) {
	h := newHarness(t, false)
	if f := h.m.Initialize(context.Background()); f.Len() != 0 {
		t.Fatalf("len = %d, want 0", f.Len())
	}
}

func TestIngestOrderAndDelivery(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	h.m.Initialize(ctx)

	a1, a2 := newAlert(alert.IntensityLow), newAlert(alert.IntensityHigh)
	if err := h.m.Ingest(ctx, a1); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	h.gate.mu.Lock()
	h.gate.state = permission.StateGranted
	h.gate.mu.Unlock()
	if err := h.m.Ingest(ctx, a2); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	f := h.m.Snapshot()
	if f.Len() != 2 || f[0].ID != a2.ID || f[1].ID != a1.ID {
		t.Fatalf("feed order wrong: %+v", f)
	}
	want := []delivered{{a1.ID, false}, {a2.ID, true}}
	if len(h.rec.alerts) != 2 || h.rec.alerts[0] != want[0] || h.rec.alerts[1] != want[1] {
		t.Fatalf("deliveries = %+v, want %+v", h.rec.alerts, want)
	}
	if stored := alertstore.New(h.mem, logx.Nop()).Load(ctx); stored.Len() != 2 {
		t.Fatalf("stored len = %d", stored.Len())
	}
}

func TestIngestThreeIntensitiesThenMarkOne(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	h.m.Initialize(ctx)

	high, medium, low := newAlert(alert.IntensityHigh), newAlert(alert.IntensityMedium), newAlert(alert.IntensityLow)
	for _, a := range []alert.Alert{high, medium, low} {
		if err := h.m.Ingest(ctx, a); err != nil {
			t.Fatalf("Ingest %s: %v", a.Intensity, err)
		}
	}
	wantOrder := []string{low.ID, medium.ID, high.ID}
	checkOrder := func() {
		t.Helper()
		f := h.m.Snapshot()
		if f.Len() != len(wantOrder) {
			t.Fatalf("len = %d, want %d", f.Len(), len(wantOrder))
		}
		for i, id := range wantOrder {
			if f[i].ID != id {
				t.Fatalf("position %d = %s (%s), want %s", i, f[i].ID, f[i].Intensity, id)
			}
		}
	}
	checkOrder()
	if n := h.m.UnreadCount(); n != 3 {
		t.Fatalf("unread = %d, want 3", n)
	}

	if !h.m.MarkAsRead(ctx, medium.ID) {
		t.Fatalf("MarkAsRead(medium) reported no change")
	}
	if n := h.m.UnreadCount(); n != 2 {
		t.Fatalf("unread after marking medium = %d, want 2", n)
	}
	checkOrder()
}

// countingStore counts Put calls per key.
type countingStore struct {
	*storage.Memory
	mu   sync.Mutex
	puts map[string]int
}

func (s *countingStore) Put(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	s.puts[key]++
	s.mu.Unlock()
	return s.Memory.Put(ctx, key, value)
}

func (s *countingStore) count(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.puts[key]
}

func TestMarkAllAsReadSavesOnce(t *testing.T) {
	ctx := context.Background()
	st := &countingStore{Memory: storage.NewMemory(), puts: map[string]int{}}
	m := New(Options{Store: alertstore.New(st, logx.Nop()), Log: logx.Nop()})
	m.Initialize(ctx)
	for i := 0; i < 5; i++ {
		if err := m.Ingest(ctx, newAlert(alert.IntensityLow)); err != nil {
			t.Fatalf("Ingest: %v", err)
		}
	}

	before := st.count(alertstore.FeedKey)
	if n := m.MarkAllAsRead(ctx); n != 5 {
		t.Fatalf("MarkAllAsRead = %d, want 5", n)
	}
	if got := st.count(alertstore.FeedKey) - before; got != 1 {
		t.Fatalf("MarkAllAsRead wrote %d times, want 1", got)
	}
	if stored := alertstore.New(st, logx.Nop()).Load(ctx); stored.UnreadCount() != 0 {
		t.Fatalf("stored unread = %d, want 0", stored.UnreadCount())
	}

	before = st.count(alertstore.FeedKey)
	if n := m.MarkAllAsRead(ctx); n != 0 {
		t.Fatalf("second MarkAllAsRead = %d, want 0", n)
	}
	if got := st.count(alertstore.FeedKey) - before; got != 0 {
		t.Fatalf("no-op MarkAllAsRead wrote %d times", got)
	}
}

func TestIngestRejects(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	a := newAlert(alert.IntensityMedium)
	_ = h.m.Ingest(ctx, a)
	if err := h.m.Ingest(ctx, a); !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("duplicate err = %v", err)
	}
	bad := newAlert("catastrophic")
	if err := h.m.Ingest(ctx, bad); !errors.Is(err, ErrInvalidAlert) {
		t.Fatalf("invalid err = %v", err)
	}
	if h.m.Len() != 1 {
		t.Fatalf("len = %d, want 1", h.m.Len())
	}
}

func TestMarkAsReadIdempotent(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()
	h.m.Initialize(ctx)

	if h.m.MarkAsRead(ctx, "missing") {
		t.Fatalf("unknown id should be a no-op")
	}
	if !h.m.MarkAsRead(ctx, "1") {
		t.Fatalf("first mark should change the feed")
	}
	once := h.m.Snapshot()
	if h.m.MarkAsRead(ctx, "1") {
		t.Fatalf("second mark should be a no-op")
	}
	twice := h.m.Snapshot()
	for i := range once {
		if once[i].Read != twice[i].Read {
			t.Fatalf("feed changed on repeat mark")
		}
	}
	if h.m.UnreadCount() != 1 {
		t.Fatalf("unread = %d, want 1", h.m.UnreadCount())
	}
}

func TestMarkAllAndClear(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()
	h.m.Initialize(ctx)

	if n := h.m.MarkAllAsRead(ctx); n != 2 {
		t.Fatalf("flipped = %d, want 2", n)
	}
	if h.m.UnreadCount() != 0 {
		t.Fatalf("unread after mark-all = %d", h.m.UnreadCount())
	}
	if n := h.m.ClearAll(ctx); n != 3 || h.m.Len() != 0 {
		t.Fatalf("ClearAll = %d, len %d", n, h.m.Len())
	}
	if stored := alertstore.New(h.mem, logx.Nop()).Load(ctx); stored.Len() != 0 {
		t.Fatalf("clear not persisted")
	}

	// A cleared feed stays empty on the next start even with seeding on.
	m2 := New(Options{Store: alertstore.New(h.mem, logx.Nop()), SeedDemo: true, Log: logx.Nop()})
	if f := m2.Initialize(ctx); f.Len() != 0 {
		t.Fatalf("cleared feed reseeded with %d alerts", f.Len())
	}
}

func TestSaveFailureKeepsMemoryAndNotifies(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	h.m.Initialize(ctx)
	h.mem.FailPuts(errors.New("disk full"))
	before := testutil.ToFloat64(metrics.PersistFailuresTotal)

	if err := h.m.Ingest(ctx, newAlert(alert.IntensityHigh)); err != nil {
		t.Fatalf("Ingest should not surface save errors: %v", err)
	}
	if h.m.Len() != 1 {
		t.Fatalf("in-memory mutation rolled back")
	}
	if got := testutil.ToFloat64(metrics.PersistFailuresTotal) - before; got != 1 {
		t.Fatalf("persist failures counted %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.FeedSize); got != 1 {
		t.Fatalf("feed size gauge=%v want 1", got)
	}
	found := false
	for _, title := range h.rec.noticeTitles() {
		if title == "Failed to save notifications" {
			found = true
		}
	}
	if !found {
		t.Fatalf("no save-failure notice, got %v", h.rec.noticeTitles())
	}
}

func TestRequestConsentNotices(t *testing.T) {
	tests := []struct {
		name  string
		next  permission.State
		err   error
		title string
	}{
		{"granted", permission.StateGranted, nil, "Notification permission granted"},
		{"denied", permission.StateDenied, nil, "Notification permission denied"},
		{"unsupported", permission.StateDenied, permission.ErrUnsupported, "Notifications not supported on this system"},
		{"timeout", permission.StateUnknown, permission.ErrPromptTimeout, "Error requesting notification permission"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, false)
			h.gate.next, h.gate.err = tt.next, tt.err
			st, err := h.m.RequestConsent(context.Background())
			if !errors.Is(err, tt.err) {
				t.Fatalf("err = %v, want %v", err, tt.err)
			}
			if tt.err == nil && st != tt.next {
				t.Fatalf("state = %s, want %s", st, tt.next)
			}
			titles := h.rec.noticeTitles()
			if len(titles) != 1 || titles[0] != tt.title {
				t.Fatalf("notices = %v, want [%s]", titles, tt.title)
			}
		})
	}
}

func TestConcurrentIngestAndRead(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	h.m.Initialize(ctx)

	const n = 50
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("c-%d", i)
	}
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(2)
		go func(id string) {
			defer wg.Done()
			_ = h.m.Ingest(ctx, alert.Alert{ID: id, Title: id, Intensity: alert.IntensityLow, Timestamp: time.Now()})
		}(id)
		go func(id string) {
			defer wg.Done()
			h.m.MarkAsRead(ctx, id)
			_ = h.m.UnreadCount()
		}(id)
	}
	wg.Wait()

	f := h.m.Snapshot()
	if f.Len() != n {
		t.Fatalf("len = %d, want %d", f.Len(), n)
	}
	unread := 0
	seen := map[string]bool{}
	for _, a := range f {
		if seen[a.ID] {
			t.Fatalf("duplicate id %s", a.ID)
		}
		seen[a.ID] = true
		if !a.Read {
			unread++
		}
	}
	if unread != h.m.UnreadCount() {
		t.Fatalf("UnreadCount = %d, counted %d", h.m.UnreadCount(), unread)
	}
}

func TestRunDrainsChannel(t *testing.T) {
	h := newHarness(t, false)
	ch := make(chan alert.Alert, 3)
	ch <- newAlert(alert.IntensityLow)
	ch <- newAlert(alert.IntensityMedium)
	close(ch)
	if err := h.m.Run(context.Background(), ch); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if h.m.Len() != 2 {
		t.Fatalf("len = %d, want 2", h.m.Len())
	}
}
