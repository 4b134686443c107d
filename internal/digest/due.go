package digest

import (
	"time"

	"tyomaat-portal/internal/models"
)

// IsDue reports whether a watch should be evaluated at now. A watch that was
// never sent is always due.
func IsDue(w *models.Watch, now time.Time) bool {
	if w.LastSentAt == nil {
		return true
	}
	return now.Sub(*w.LastSentAt) >= w.Frequency.Period()
}

// Window returns the creation time after which projects are new for w. A watch
// that was never sent looks back a single period.
func Window(w *models.Watch, now time.Time) time.Time {
	if w.LastSentAt != nil {
		return *w.LastSentAt
	}
	return now.Add(-w.Frequency.Period())
}
