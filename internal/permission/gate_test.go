package permission

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"blazealert/internal/storage"
	logx "blazealert/pkg/logx"
)

type fakeFacility struct{ up atomic.Bool }

func (f *fakeFacility) Available(context.Context) bool { return f.up.Load() }

func newFacility(up bool) *fakeFacility {
	f := &fakeFacility{}
	f.up.Store(up)
	return f
}

type countingPrompter struct {
	calls  atomic.Int32
	answer bool
	err    error
}

func (p *countingPrompter) Prompt(ctx context.Context) (bool, error) {
	p.calls.Add(1)
	return p.answer, p.err
}

func newGate(fac Facility, pr Prompter, st storage.Store) *Gate {
	return NewGate(Options{
		Platform: NewPlatform(st),
		Facility: fac,
		Prompter: pr,
		Log:      logx.Nop(),
	})
}

func TestInitialStateIsUnknown(t *testing.T) {
	g := newGate(newFacility(true), AutoGrant, storage.NewMemory())
	if g.Status() != StateUnknown {
		t.Fatalf("Status = %s, want unknown", g.Status())
	}
}

func TestRequestWithoutFacility(t *testing.T) {
	for _, fac := range []Facility{nil, newFacility(false)} {
		g := newGate(fac, AutoGrant, storage.NewMemory())
		st, err := g.RequestConsent(context.Background())
		if !errors.Is(err, ErrUnsupported) || st != StateDenied {
			t.Fatalf("RequestConsent = %s, %v; want denied, ErrUnsupported", st, err)
		}
		if g.Status() != StateDenied {
			t.Fatalf("Status = %s, want denied", g.Status())
		}
	}
}

func TestGrantedDoesNotPromptAgain(t *testing.T) {
	p := &countingPrompter{answer: true}
	g := newGate(newFacility(true), p, storage.NewMemory())
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		st, err := g.RequestConsent(ctx)
		if err != nil || st != StateGranted {
			t.Fatalf("RequestConsent #%d = %s, %v", i, st, err)
		}
	}
	if p.calls.Load() != 1 {
		t.Fatalf("prompt calls = %d, want 1", p.calls.Load())
	}
}

func TestDeniedPromptsAgainAndCanBeGranted(t *testing.T) {
	p := &countingPrompter{answer: false}
	g := newGate(newFacility(true), p, storage.NewMemory())
	ctx := context.Background()
	if st, _ := g.RequestConsent(ctx); st != StateDenied {
		t.Fatalf("first request = %s, want denied", st)
	}
	p.answer = true
	if st, _ := g.RequestConsent(ctx); st != StateGranted {
		t.Fatalf("second request = %s, want granted", st)
	}
	if p.calls.Load() != 2 {
		t.Fatalf("prompt calls = %d, want 2", p.calls.Load())
	}
}

func TestDismissedPromptLeavesStateUnchanged(t *testing.T) {
	p := &countingPrompter{err: ErrDismissed}
	g := newGate(newFacility(true), p, storage.NewMemory())
	st, err := g.RequestConsent(context.Background())
	if !errors.Is(err, ErrPromptTimeout) {
		t.Fatalf("err = %v, want ErrPromptTimeout", err)
	}
	if st != StateUnknown || g.Status() != StateUnknown {
		t.Fatalf("state = %s/%s, want unknown", st, g.Status())
	}
}

func TestPromptTimeout(t *testing.T) {
	blocking := PrompterFunc(func(ctx context.Context) (bool, error) {
		<-ctx.Done()
		return false, ctx.Err()
	})
	g := NewGate(Options{
		Platform:      NewPlatform(storage.NewMemory()),
		Facility:      newFacility(true),
		Prompter:      blocking,
		PromptTimeout: 20 * time.Millisecond,
		Log:           logx.Nop(),
	})
	start := time.Now()
	_, err := g.RequestConsent(context.Background())
	if !errors.Is(err, ErrPromptTimeout) {
		t.Fatalf("err = %v, want ErrPromptTimeout", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("prompt was not bounded by the timeout")
	}
}

func TestCheckNoticesRevocation(t *testing.T) {
	st := storage.NewMemory()
	fac := newFacility(true)
	g := newGate(fac, AutoGrant, st)
	ctx := context.Background()
	if s, _ := g.RequestConsent(ctx); s != StateGranted {
		t.Fatalf("request = %s", s)
	}

	if err := NewPlatform(st).Revoke(ctx); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if s := g.Check(ctx); s != StateDenied {
		t.Fatalf("Check after revoke = %s, want denied", s)
	}
	// Denied is never promoted by Check alone.
	_ = NewPlatform(st).Remember(ctx, StateGranted)
	if s := g.Check(ctx); s != StateDenied {
		t.Fatalf("Check promoted denied to %s", s)
	}
}

func TestCheckNoticesFacilityLoss(t *testing.T) {
	fac := newFacility(true)
	g := newGate(fac, AutoGrant, storage.NewMemory())
	ctx := context.Background()
	_, _ = g.RequestConsent(ctx)
	fac.up.Store(false)
	if s := g.Check(ctx); s != StateDenied {
		t.Fatalf("Check = %s, want denied", s)
	}
}

func TestRememberedDecisionSurvivesRestart(t *testing.T) {
	st := storage.NewMemory()
	ctx := context.Background()
	_, _ = newGate(newFacility(true), AutoGrant, st).RequestConsent(ctx)

	p := &countingPrompter{}
	g := newGate(newFacility(true), p, st)
	if g.Status() != StateUnknown {
		t.Fatalf("fresh gate should start unknown")
	}
	if s := g.Check(ctx); s != StateGranted {
		t.Fatalf("Check = %s, want remembered granted", s)
	}
	if s, _ := g.RequestConsent(ctx); s != StateGranted || p.calls.Load() != 0 {
		t.Fatalf("remembered grant should not prompt (state %s, calls %d)", s, p.calls.Load())
	}
}

func TestReaderPrompter(t *testing.T) {
	var out strings.Builder
	ok, err := NewReaderPrompter(strings.NewReader("yes\n"), &out).Prompt(context.Background())
	if err != nil || !ok {
		t.Fatalf("Prompt = %v, %v", ok, err)
	}
	if out.String() != Question {
		t.Fatalf("question = %q", out.String())
	}
	if _, err := NewReaderPrompter(strings.NewReader(""), nil).Prompt(context.Background()); !errors.Is(err, ErrDismissed) {
		t.Fatalf("empty input err = %v, want ErrDismissed", err)
	}
	if ok, _ := NewReaderPrompter(strings.NewReader("n\n"), nil).Prompt(context.Background()); ok {
		t.Fatalf("'n' should deny")
	}
}

// stallingStore parks the first armed Get after it has read the record.
type stallingStore struct {
	*storage.Memory
	armed   atomic.Bool
	read    chan struct{}
	release chan struct{}
}

func (s *stallingStore) Get(ctx context.Context, key string) (storage.Record, bool, error) {
	rec, ok, err := s.Memory.Get(ctx, key)
	if s.armed.CompareAndSwap(true, false) {
		close(s.read)
		<-s.release
	}
	return rec, ok, err
}

func TestCheckOverlappingGrantKeepsGranted(t *testing.T) {
	st := &stallingStore{Memory: storage.NewMemory(), read: make(chan struct{}), release: make(chan struct{})}
	g := newGate(newFacility(true), AutoGrant, st)
	ctx := context.Background()

	st.armed.Store(true)
	done := make(chan State, 1)
	go func() { done <- g.Check(ctx) }()
	<-st.read

	got, err := g.RequestConsent(ctx)
	if err != nil || got != StateGranted {
		t.Fatalf("RequestConsent = %s, %v; want granted", got, err)
	}
	close(st.release)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Check did not return")
	}
	if g.Status() != StateGranted {
		t.Fatalf("Status after overlapping Check = %s, want granted", g.Status())
	}
	if g.Check(ctx) != StateGranted {
		t.Fatalf("later Check demoted a remembered grant")
	}
}
