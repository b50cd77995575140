// Package ratelimit admits or throttles requests against tier-scaled quotas
// counted in fixed wall-clock windows. Sustained throttling feeds back into
// the trust evidence log as an abuse signal.
package ratelimit

import (
	"fmt"
	"time"

	id "quorum/pkg/domain"
)

// EndpointClass groups endpoints that share a quota.
type EndpointClass string

const (
	ClassVote      EndpointClass = "vote"
	ClassRead      EndpointClass = "read"
	ClassWrite     EndpointClass = "write"
	ClassAnalytics EndpointClass = "analytics"
)

func (c EndpointClass) IsValid() bool {
	switch c {
	case ClassVote, ClassRead, ClassWrite, ClassAnalytics:
		return true
	}
	return false
}

// Result is the outcome of one admission check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	// ResetAt is when the current window closes and the counter restarts.
	ResetAt time.Time
	// RetryAfter is how long a throttled caller should wait. Zero when
	// Allowed.
	RetryAfter time.Duration
}

// bucketKey scopes a counter to one identity, class, and window start.
// Window start in the key means rollover needs no deletion: the old key
// simply stops being addressed and expires.
func bucketKey(identityID id.IdentityID, class EndpointClass, windowStart time.Time) string {
	return fmt.Sprintf("rate:%s:%s:%d", identityID, class, windowStart.Unix())
}

// abuseKey scopes the throttle-event counter used for abuse detection.
func abuseKey(identityID id.IdentityID, windowStart time.Time) string {
	return fmt.Sprintf("abuse:%s:%d", identityID, windowStart.Unix())
}
