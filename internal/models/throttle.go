package models

import "time"

// ThrottleEntry is a fixed-window attempt counter for one throttle key
// (normalized login + client address, or "2fa|" + user id for code guesses).
type ThrottleEntry struct {
	Key             string
	Attempts        int
	WindowExpiresAt time.Time
}

// Expired reports whether the window has lapsed; an expired entry counts as
// zero attempts.
func (e *ThrottleEntry) Expired(now time.Time) bool {
	return !e.WindowExpiresAt.After(now)
}
