package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func write(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func TestMissingFileUsesDefaults(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "absent.yaml"))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	rt, err := Resolve(cfg)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if rt.Storage.Driver != "file" || rt.Storage.Path != "./data" {
		t.Fatalf("storage = %+v", rt.Storage)
	}
	if !rt.Generator.Enabled || rt.Generator.Interval != 60*time.Second || rt.Generator.Probability != 0.3 {
		t.Fatalf("generator = %+v", rt.Generator)
	}
	if rt.Permission.PromptTimeout != 2*time.Minute || rt.Permission.Prompt != "terminal" {
		t.Fatalf("permission = %+v", rt.Permission)
	}
	if !rt.SeedDemo || !rt.Push.Enabled || rt.Push.RetryMax != 3 {
		t.Fatalf("unexpected defaults: seed=%v push=%+v", rt.SeedDemo, rt.Push)
	}
}

func TestYAMLAndJSONDecodeTheSame(t *testing.T) {
	dir := t.TempDir()
	y := write(t, dir, "c.yaml", `
storage:
  driver: sqlite
generator:
  interval: 5s
  probability: 0
delivery:
  push:
    driver: none
    high_priority_only: true
`)
	j := write(t, dir, "c.json", `{
  "storage": {"driver": "sqlite"},
  "generator": {"interval": "5s", "probability": 0},
  "delivery": {"push": {"driver": "none", "high_priority_only": true}}
}`)
	for _, p := range []string{y, j} {
		cfg, err := NewManager(p).Parse()
		if err != nil {
			t.Fatalf("Parse(%s): %v", p, err)
		}
		rt, err := Resolve(cfg)
		if err != nil {
			t.Fatalf("Resolve(%s): %v", p, err)
		}
		if rt.Storage.Path != "./data/blazealert.db" {
			t.Fatalf("%s: sqlite path = %q", p, rt.Storage.Path)
		}
		if rt.Generator.Interval != 5*time.Second || rt.Generator.Probability != 0 {
			t.Fatalf("%s: generator = %+v", p, rt.Generator)
		}
		if rt.Sink.Driver != "none" || !rt.Push.HighPriorityOnly {
			t.Fatalf("%s: push = %+v / %+v", p, rt.Push, rt.Sink)
		}
	}
}

func TestUnknownFieldRejected(t *testing.T) {
	p := write(t, t.TempDir(), "c.yaml", "generator:\n  probabilty: 0.5\n")
	if _, err := NewManager(p).Parse(); err == nil {
		t.Fatalf("expected unknown field error")
	}
}

func TestResolveReportsAllErrors(t *testing.T) {
	prob := 1.5
	cfg := Default()
	cfg.Generator.Probability = &prob
	cfg.Generator.Interval = "soon"
	cfg.Permission.Prompt = "carrier-pigeon"
	cfg.Delivery.Push.Driver = "telegram"
	_, err := Resolve(cfg)
	if err == nil {
		t.Fatalf("expected errors")
	}
	for _, want := range []string{"generator.probability", "generator.interval", "permission.prompt", "telegram"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q does not mention %s", err, want)
		}
	}
}

func TestChangedSections(t *testing.T) {
	a, b := Default(), Default()
	b.Logging.Level = "debug"
	b.HTTP.Enabled = true
	changed, _ := Changed(a, b)
	if len(changed) != 2 || changed[0] != SectionHTTP || changed[1] != SectionLogging {
		t.Fatalf("changed = %v", changed)
	}
	if rs := NeedsRestart(changed); len(rs) != 1 || rs[0] != SectionHTTP {
		t.Fatalf("NeedsRestart = %v", rs)
	}
}

func TestWatchPublishesReload(t *testing.T) {
	dir := t.TempDir()
	p := write(t, dir, "c.yaml", "logging:\n  level: info\n")
	m := NewManager(p)
	m.debounce = 10 * time.Millisecond
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	sub := m.Subscribe(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Watch(ctx) }()

	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case cfg := <-sub:
			if cfg.Logging.Level != "debug" {
				t.Fatalf("reloaded level = %q", cfg.Logging.Level)
			}
			return
		case <-tick.C:
			// Rewrite until the watcher is up and sees it.
			write(t, dir, "c.yaml", "logging:\n  level: debug\n")
		case <-deadline:
			t.Fatalf("no reload published")
		}
	}
}

func TestDurationHelpers(t *testing.T) {
	if d, err := ParseDurationOrDefault("x", "", time.Second); err != nil || d != time.Second {
		t.Fatalf("default = %v, %v", d, err)
	}
	if _, err := ParseDurationField("x", "-1s"); err == nil {
		t.Fatalf("expected negative duration error")
	}
}
