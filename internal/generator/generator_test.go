package generator

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	logx "blazealert/pkg/logx"
)

func newGen(t *testing.T, cfg Config) *Generator {
	t.Helper()
	if cfg.Seed == 0 {
		cfg.Seed = 42
	}
	g, err := New(cfg, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return g
}

func TestCandidateShape(t *testing.T) {
	g := newGen(t, Config{Probability: 1})
	now := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	title := regexp.MustCompile(`^New Fire Alert: \d{1,2}$`)
	loc := regexp.MustCompile(`^(North|South|East|West) District, \d+\.\d miles from your location$`)
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		a := g.Candidate(now)
		if err := a.Validate(); err != nil {
			t.Fatalf("candidate invalid: %v", err)
		}
		if !title.MatchString(a.Title) || !loc.MatchString(a.Location) {
			t.Fatalf("unexpected text: %q / %q", a.Title, a.Location)
		}
		if a.Read || !a.Timestamp.Equal(now) || len(a.SafetyTips) != 3 {
			t.Fatalf("unexpected candidate: %+v", a)
		}
		if seen[a.ID] {
			t.Fatalf("duplicate id %s", a.ID)
		}
		seen[a.ID] = true
	}
}

func TestTickProbabilityBounds(t *testing.T) {
	never := newGen(t, Config{Probability: 0, Buffer: 100})
	always := newGen(t, Config{Probability: 1, Buffer: 100})
	for i := 0; i < 20; i++ {
		never.tick()
		always.tick()
	}
	if len(never.out) != 0 {
		t.Fatalf("p=0 emitted %d alerts", len(never.out))
	}
	if len(always.out) != 20 {
		t.Fatalf("p=1 emitted %d alerts, want 20", len(always.out))
	}
}

func TestTickDropsWhenBufferFull(t *testing.T) {
	g := newGen(t, Config{Probability: 1, Buffer: 2})
	for i := 0; i < 5; i++ {
		g.tick()
	}
	if len(g.out) != 2 {
		t.Fatalf("buffered = %d, want 2", len(g.out))
	}
}

func TestTickAfterRunReturnsIsIgnored(t *testing.T) {
	g := newGen(t, Config{Schedule: "@every 1h", Probability: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := g.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	g.tick()
	if _, ok := <-g.Alerts(); ok {
		t.Fatalf("stopped generator emitted an alert")
	}
}

func TestSeededSourceIsDeterministic(t *testing.T) {
	a := newGen(t, Config{Seed: 7, Probability: 1})
	b := newGen(t, Config{Seed: 7, Probability: 1})
	now := time.Now()
	for i := 0; i < 5; i++ {
		x, y := a.Candidate(now), b.Candidate(now)
		if x.Title != y.Title || x.Location != y.Location || x.Intensity != y.Intensity {
			t.Fatalf("seeded generators diverged: %+v vs %+v", x, y)
		}
	}
}

func TestRunEmitsAndClosesOnce(t *testing.T) {
	g := newGen(t, Config{Schedule: "@every 1s", Probability: 1})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- g.Run(ctx) }()

	select {
	case a := <-g.Alerts():
		if !a.Intensity.Valid() {
			t.Fatalf("bad intensity %q", a.Intensity)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no alert emitted")
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	for range g.Alerts() {
	}
	if err := g.Run(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("second Run err = %v, want ErrAlreadyStarted", err)
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	if _, err := New(Config{Probability: 1.5}, logx.Nop()); err == nil {
		t.Fatalf("expected probability error")
	}
	if _, err := New(Config{Schedule: "not a cron"}, logx.Nop()); err == nil {
		t.Fatalf("expected schedule error")
	}
}

func TestSetProbabilityClamps(t *testing.T) {
	g := newGen(t, Config{})
	g.SetProbability(3)
	if g.Probability() != 1 {
		t.Fatalf("Probability = %v", g.Probability())
	}
	g.SetProbability(-1)
	if g.Probability() != 0 {
		t.Fatalf("Probability = %v", g.Probability())
	}
}
