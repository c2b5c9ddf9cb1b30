package token

import (
	"time"

	"farecraft/models"
)

// Decision is the freshness verdict for a cached token set.
type Decision int

const (
	Reuse Decision = iota
	RegenerateSoon
	Regenerate
)

// DefaultRefreshMargin is how close to expiry a token set stops being reused.
const DefaultRefreshMargin = 5 * time.Minute

func (d Decision) String() string {
	switch d {
	case Reuse:
		return "reuse"
	case RegenerateSoon:
		return "regenerate-soon"
	default:
		return "regenerate"
	}
}

// NeedsAcquisition is true for anything other than Reuse.
func (d Decision) NeedsAcquisition() bool {
	return d != Reuse
}

// Classify decides whether ts can be reused at now. Absent or partial sets and
// sets at or past expiry must be regenerated; sets within margin of expiry
// (boundary included) are RegenerateSoon.
func Classify(ts models.TokenSet, ok bool, now time.Time, margin time.Duration, required []string) Decision {
	if !ok || !ts.Complete(required) || ts.ExpiresAt.IsZero() {
		return Regenerate
	}
	if !now.Before(ts.ExpiresAt) {
		return Regenerate
	}
	if margin < 0 {
		margin = 0
	}
	if ts.ExpiresAt.Sub(now) <= margin {
		return RegenerateSoon
	}
	return Reuse
}
