// Package presence infers whether the capture device is online. The device
// holds no persistent connection, so presence is a disjunction of
// independent recency signals rather than a stored flag.
package presence

import (
	"time"
)

// Source reports the most recent timestamp of one presence signal. An error
// means the signal could not be read, which degrades to "signal absent".
type Source func() (time.Time, error)

// Tracker answers connectivity queries against the current clock. Queries
// are read-only and never fail: a broken source only removes its signal
// from the disjunction.
type Tracker struct {
	completions Source
	uploads     Source
	heartbeats  Source

	// activityWindow covers completions and uploads; heartbeatWindow is
	// tighter since heartbeats arrive on a fixed cadence.
	activityWindow  time.Duration
	heartbeatWindow time.Duration

	now func() time.Time
}

func NewTracker(completions, uploads, heartbeats Source, activityWindow, heartbeatWindow time.Duration) *Tracker {
	return &Tracker{
		completions:     completions,
		uploads:         uploads,
		heartbeats:      heartbeats,
		activityWindow:  activityWindow,
		heartbeatWindow: heartbeatWindow,
		now:             time.Now,
	}
}

// Connected reports whether any signal is fresh enough: a capture completed
// or an image uploaded within the activity window, or a heartbeat within
// the heartbeat window.
func (t *Tracker) Connected() bool {
	now := t.now()
	if t.fresh(t.completions, now, t.activityWindow) {
		return true
	}
	if t.fresh(t.uploads, now, t.activityWindow) {
		return true
	}
	return t.fresh(t.heartbeats, now, t.heartbeatWindow)
}

func (t *Tracker) fresh(source Source, now time.Time, window time.Duration) bool {
	if source == nil {
		return false
	}
	ts, err := source()
	if err != nil || ts.IsZero() {
		return false
	}
	return now.Sub(ts) < window
}
