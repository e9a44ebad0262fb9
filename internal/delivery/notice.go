// Package delivery surfaces alerts to the user: an in-app notice every
// time, and an OS-level push when the caller says push is allowed.
package delivery

import (
	"fmt"
	"io"
	"sync"
	"time"
)

type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notice is a transient in-app message (the toast of the web client).
type Notice struct {
	Title       string
	Description string
	Level       Level
	AlertID     string
	At          time.Time
}

// Presenter shows in-app notices. Implementations must not block for long.
type Presenter interface {
	Present(n Notice)
}

// ConsolePresenter writes one line per notice.
type ConsolePresenter struct {
	mu sync.Mutex
	w  io.Writer
}

func NewConsolePresenter(w io.Writer) *ConsolePresenter {
	return &ConsolePresenter{w: w}
}

func (p *ConsolePresenter) Present(n Notice) {
	if p == nil || p.w == nil {
		return
	}
	mark := "i"
	switch n.Level {
	case LevelWarning:
		mark = "!"
	case LevelError:
		mark = "x"
	case LevelSuccess:
		mark = "+"
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if n.Description != "" {
		_, _ = fmt.Fprintf(p.w, "[%s] %s: %s\n", mark, n.Title, n.Description)
		return
	}
	_, _ = fmt.Fprintf(p.w, "[%s] %s\n", mark, n.Title)
}

// RecordingPresenter keeps the most recent notices, oldest first.
type RecordingPresenter struct {
	mu      sync.Mutex
	notices []Notice
	max     int
}

func NewRecordingPresenter(max int) *RecordingPresenter {
	if max <= 0 {
		max = 100
	}
	return &RecordingPresenter{max: max}
}

func (r *RecordingPresenter) Present(n Notice) {
	r.mu.Lock()
	r.notices = append(r.notices, n)
	if len(r.notices) > r.max {
		r.notices = r.notices[len(r.notices)-r.max:]
	}
	r.mu.Unlock()
}

func (r *RecordingPresenter) Notices() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notice(nil), r.notices...)
}

// Multi fans a notice out to several presenters.
type Multi []Presenter

func (m Multi) Present(n Notice) {
	for _, p := range m {
		if p != nil {
			p.Present(n)
		}
	}
}
