package session

import "time"

// Status is the timing classification of a submission.
type Status string

const (
	StatusOnTime Status = "on_time"
	StatusLate   Status = "late"
	StatusAbsent Status = "absent"
)

// GracePeriod is the window from session start during which a submission
// counts as on-time.
const GracePeriod = 5 * time.Minute

// DefaultLateWindow applies when the session configures no late window.
const DefaultLateWindow = 15 * time.Minute

// Classify maps elapsed time since session start to a status. A
// submission at exactly start+GracePeriod is still on-time, and one at
// exactly start+lateWindow is still late. Callers decide what to do with
// StatusAbsent; this engine rejects absent-range submissions rather than
// writing absent records (absence is inferred by the missing record).
func Classify(now, start time.Time, lateWindow time.Duration) Status {
	if lateWindow <= 0 {
		lateWindow = DefaultLateWindow
	}
	switch {
	case !now.After(start.Add(GracePeriod)):
		return StatusOnTime
	case !now.After(start.Add(lateWindow)):
		return StatusLate
	default:
		return StatusAbsent
	}
}
