package delivery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"blazealert/internal/alert"
	"blazealert/internal/delivery/push"
	"blazealert/internal/eventbus"
	logx "blazealert/pkg/logx"
)

type fakeSink struct {
	mu    sync.Mutex
	sent  []push.Message
	fails int // fail this many sends first
	sendC chan push.Message
}

func (s *fakeSink) Name() string { return "fake" }
func (s *fakeSink) Available(context.Context) bool { return true }

func (s *fakeSink) Send(ctx context.Context, m push.Message) error {
	s.mu.Lock()
	if s.fails > 0 {
		s.fails--
		s.mu.Unlock()
		return errors.New("transient")
	}
	s.sent = append(s.sent, m)
	s.mu.Unlock()
	if s.sendC != nil {
		s.sendC <- m
	}
	return nil
}

func testAlert(id string, in alert.Intensity) alert.Alert {
	return alert.Alert{ID: id, Title: "New Fire Alert: " + id, Intensity: in, Timestamp: time.Now()}
}

func newTestChannel(t *testing.T, sink push.Sink, cfg PushConfig) (*Channel, *RecordingPresenter) {
	t.Helper()
	rec := NewRecordingPresenter(0)
	cfg.Enabled = true
	if cfg.RetryBase == 0 {
		cfg.RetryBase = time.Millisecond
	}
	if cfg.RatePerSec == 0 {
		cfg.RatePerSec = 1000
	}
	c := New(Options{Presenter: rec, Sink: sink, Push: cfg, Bus: eventbus.New(), Log: logx.Nop()})
	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx)
	t.Cleanup(func() {
		sctx, scancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer scancel()
		c.Stop(sctx)
		cancel()
	})
	return c, rec
}

func TestDeliverInAppAlways(t *testing.T) {
	sink := &fakeSink{}
	c, rec := newTestChannel(t, sink, PushConfig{})
	c.Deliver(context.Background(), testAlert("1", alert.IntensityLow), false)

	ns := rec.Notices()
	if len(ns) != 1 {
		t.Fatalf("notices = %d, want 1", len(ns))
	}
	if ns[0].Title != AlertNoticeTitle || ns[0].Description != "New Fire Alert: 1" || ns[0].Level != LevelWarning {
		t.Fatalf("unexpected notice %+v", ns[0])
	}
	time.Sleep(20 * time.Millisecond)
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.sent) != 0 {
		t.Fatalf("push sent without permission")
	}
}

func TestDeliverPushWithRetry(t *testing.T) {
	sink := &fakeSink{fails: 2, sendC: make(chan push.Message, 1)}
	c, _ := newTestChannel(t, sink, PushConfig{RetryMax: 3})
	c.Deliver(context.Background(), testAlert("7", alert.IntensityHigh), true)

	select {
	case m := <-sink.sendC:
		if m.Title != PushTitle || m.Body != "New Fire Alert: 7" || m.Urgency != push.UrgencyCritical || m.Tag != "7" {
			t.Fatalf("unexpected push %+v", m)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("push not delivered after retries")
	}
}

func TestHighPriorityOnlyFiltersPush(t *testing.T) {
	sink := &fakeSink{sendC: make(chan push.Message, 4)}
	c, rec := newTestChannel(t, sink, PushConfig{HighPriorityOnly: true})
	c.Deliver(context.Background(), testAlert("m", alert.IntensityMedium), true)
	c.Deliver(context.Background(), testAlert("h", alert.IntensityHigh), true)

	select {
	case m := <-sink.sendC:
		if m.Tag != "h" {
			t.Fatalf("pushed %q, want only the high alert", m.Tag)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("high alert not pushed")
	}
	if len(rec.Notices()) != 2 {
		t.Fatalf("in-app notices = %d, want 2", len(rec.Notices()))
	}
}

func TestNoSinkDisablesPush(t *testing.T) {
	c := New(Options{Push: PushConfig{Enabled: true}, Log: logx.Nop()})
	c.Start(context.Background())
	if err := c.pusher.enqueue(push.Message{Tag: "x"}); !errors.Is(err, ErrDisabled) {
		t.Fatalf("enqueue err = %v, want ErrDisabled", err)
	}
	if c.Facility() != nil {
		t.Fatalf("Facility should be nil without a sink")
	}
}

func TestEnqueueAfterStop(t *testing.T) {
	c := New(Options{Sink: &fakeSink{}, Push: PushConfig{Enabled: true}, Log: logx.Nop()})
	c.Start(context.Background())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	c.Stop(ctx)
	if err := c.pusher.enqueue(push.Message{Tag: "x"}); !errors.Is(err, ErrStopped) {
		t.Fatalf("enqueue err = %v, want ErrStopped", err)
	}
}

func TestRetryDelayIsBounded(t *testing.T) {
	cfg := PushConfig{RetryBase: 100 * time.Millisecond, RetryMaxDelay: time.Second}
	for attempt := 1; attempt < 10; attempt++ {
		d := retryDelay(cfg, attempt)
		if d <= 0 || d > time.Second {
			t.Fatalf("retryDelay(%d) = %v", attempt, d)
		}
	}
}
