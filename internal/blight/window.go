// Package blight implements the stage engine for the blight affliction:
// the daily roll window, the probabilistic stage transitions, and the
// forced escalations applied by the sweeper.
package blight

import "time"

// The daily roll window is a rolling 24-hour boundary anchored at 20:00 in a
// fixed reference zone. A fixed offset keeps the boundary independent of the
// host's tz database and of daylight saving shifts.
var rollWindowZone = time.FixedZone("UTC-5", -5*60*60)

// rollWindowAnchorHour is the local hour the daily window opens at.
const rollWindowAnchorHour = 20

// WindowStart returns the most recent 20:00 boundary at or before now.
func WindowStart(now time.Time) time.Time {
	local := now.In(rollWindowZone)
	start := time.Date(local.Year(), local.Month(), local.Day(), rollWindowAnchorHour, 0, 0, 0, rollWindowZone)
	if local.Before(start) {
		start = start.Add(-24 * time.Hour)
	}
	return start
}

// NextWindowStart returns the 20:00 boundary following now.
func NextWindowStart(now time.Time) time.Time {
	return WindowStart(now).Add(24 * time.Hour)
}

// RolledInWindow reports whether lastRoll already consumed the roll for the
// window containing now.
func RolledInWindow(lastRoll, now time.Time) bool {
	if lastRoll.IsZero() {
		return false
	}
	start := WindowStart(now)
	return !lastRoll.Before(start) && lastRoll.Before(start.Add(24*time.Hour))
}

// MissedRollWindow reports whether the character's last roll is stale enough
// for the sweeper to force an escalation.
func MissedRollWindow(lastRoll, now time.Time) bool {
	if lastRoll.IsZero() {
		return true
	}
	return now.Sub(lastRoll) > 24*time.Hour
}
