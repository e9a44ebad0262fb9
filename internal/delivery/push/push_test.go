package push

import (
	"context"
	"testing"

	logx "blazealert/pkg/logx"
)

func TestOpenDrivers(t *testing.T) {
	s, err := Open(Config{Driver: "none"}, logx.Nop())
	if err != nil || s != nil {
		t.Fatalf("none driver = %v, %v; want nil sink", s, err)
	}
	if _, err := Open(Config{Driver: "pager"}, logx.Nop()); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
	if _, err := Open(Config{Driver: "telegram"}, logx.Nop()); err == nil {
		t.Fatalf("expected error for telegram without credentials")
	}
	d, err := Open(Config{Driver: "desktop"}, logx.Nop())
	if err != nil || d == nil || d.Name() != "desktop" {
		t.Fatalf("desktop driver = %v, %v", d, err)
	}
}

func TestTelegramOfflineConstruction(t *testing.T) {
	tg, err := NewTelegram("123:abc", 42, 0, logx.Nop())
	if err != nil {
		t.Fatalf("NewTelegram: %v", err)
	}
	if !tg.Available(context.Background()) {
		t.Fatalf("configured telegram sink should be available")
	}
}
