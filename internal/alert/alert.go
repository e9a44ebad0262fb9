// Package alert defines the hazard alert entity and the newest-first feed that
// holds it.
//
// Feeds are treated as immutable values: every mutation helper returns a new
// slice and never writes into the receiver, so a snapshot handed to a reader
// stays valid while the owner builds the next one.
package alert

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Intensity is the severity classification of an alert.
type Intensity string

const (
	IntensityHigh   Intensity = "high"
	IntensityMedium Intensity = "medium"
	IntensityLow    Intensity = "low"
)

// Intensities lists every valid intensity, lowest first.
var Intensities = []Intensity{IntensityLow, IntensityMedium, IntensityHigh}

func (i Intensity) Valid() bool {
	switch i {
	case IntensityHigh, IntensityMedium, IntensityLow:
		return true
	default:
		return false
	}
}

// Label is the capitalized form used for badges ("High", "Medium", "Low").
func (i Intensity) Label() string {
	s := string(i)
	if s == "" {
		return ""
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// ParseIntensity accepts any casing and surrounding whitespace.
func ParseIntensity(s string) (Intensity, error) {
	i := Intensity(strings.ToLower(strings.TrimSpace(s)))
	if !i.Valid() {
		return "", fmt.Errorf("unknown intensity %q", s)
	}
	return i, nil
}

// Alert is a single hazard notice. Read is the only field that changes after
// creation, and only from false to true.
//
// The JSON form lives in codec.go.
type Alert struct {
	ID          string
	Title       string
	Description string
	Location    string
	Intensity   Intensity
	Timestamp   time.Time
	Read        bool
	SafetyTips  []string
}

var (
	errMissingID        = errors.New("alert id is empty")
	errInvalidIntensity = errors.New("alert intensity is invalid")
)

// Validate checks the fields the feed relies on.
func (a Alert) Validate() error {
	if strings.TrimSpace(a.ID) == "" {
		return errMissingID
	}
	if !a.Intensity.Valid() {
		return fmt.Errorf("%w: %q", errInvalidIntensity, a.Intensity)
	}
	return nil
}

// Clone returns a copy that shares no slices with a.
func (a Alert) Clone() Alert {
	cp := a
	if a.SafetyTips != nil {
		cp.SafetyTips = append([]string(nil), a.SafetyTips...)
	}
	return cp
}
