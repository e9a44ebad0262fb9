// Package permission tracks whether OS-level push delivery is allowed.
//
// The Gate holds the in-process state. The Platform stands in for the
// operating system's own memory of the user's answer; it survives restarts
// and can be revoked out-of-band, which Gate.Check notices.
package permission

import (
	"errors"
	"strings"
)

// State is the push permission state. StateUnknown is only ever the initial value.
type State string

const (
	StateUnknown State = "unknown"
	StateGranted State = "granted"
	StateDenied  State = "denied"
)

// States lists every state, for metrics labelling.
var States = []string{string(StateUnknown), string(StateGranted), string(StateDenied)}

var (
	// ErrUnsupported is returned when no push facility exists on this host.
	ErrUnsupported = errors.New("push notifications not supported")
	// ErrPromptTimeout is returned when the consent prompt was dismissed or timed out.
	ErrPromptTimeout = errors.New("consent prompt dismissed or timed out")
	// ErrDismissed is what prompters return when the user gave no answer.
	ErrDismissed = errors.New("consent prompt dismissed")
)

func parseState(s string) State {
	switch State(strings.ToLower(strings.TrimSpace(s))) {
	case StateGranted:
		return StateGranted
	case StateDenied:
		return StateDenied
	default:
		return StateUnknown
	}
}
