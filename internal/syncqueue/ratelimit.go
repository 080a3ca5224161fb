package syncqueue

import "time"

// slidingWindow admits at most limit events in any rolling window.
type slidingWindow struct {
	limit  int
	window time.Duration
	events []time.Time
}

func newSlidingWindow(limit int, window time.Duration) *slidingWindow {
	return &slidingWindow{limit: limit, window: window}
}

// allow records an event at now when the window has room.
func (w *slidingWindow) allow(now time.Time) bool {
	if w.limit <= 0 {
		return true
	}
	cutoff := now.Add(-w.window)
	kept := w.events[:0]
	for _, at := range w.events {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	w.events = kept
	if len(w.events) >= w.limit {
		return false
	}
	w.events = append(w.events, now)
	return true
}
