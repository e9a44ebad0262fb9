package alert

import (
	"encoding/json"
	"time"
)

// wireAlert is the persisted shape. Timestamps are unix milliseconds so the
// record stays compatible with the web client's localStorage format.
type wireAlert struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	Intensity   Intensity `json:"intensity"`
	Timestamp   int64     `json:"timestamp"`
	Read        bool      `json:"read"`
	SafetyTips  []string  `json:"safetyTips"`
}

func (a Alert) MarshalJSON() ([]byte, error) {
	tips := a.SafetyTips
	if tips == nil {
		tips = []string{}
	}
	return json.Marshal(wireAlert{
		ID:          a.ID,
		Title:       a.Title,
		Description: a.Description,
		Location:    a.Location,
		Intensity:   a.Intensity,
		Timestamp:   a.Timestamp.UnixMilli(),
		Read:        a.Read,
		SafetyTips:  tips,
	})
}

func (a *Alert) UnmarshalJSON(b []byte) error {
	var w wireAlert
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*a = Alert{
		ID:          w.ID,
		Title:       w.Title,
		Description: w.Description,
		Location:    w.Location,
		Intensity:   w.Intensity,
		Timestamp:   time.UnixMilli(w.Timestamp),
		Read:        w.Read,
		SafetyTips:  w.SafetyTips,
	}
	return nil
}
