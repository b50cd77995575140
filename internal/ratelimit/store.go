package ratelimit

import (
	"context"
	"time"

	id "quorum/pkg/domain"
)

// BucketStore is the atomic counter backend for fixed-window admission.
//
// Increment must be atomic: two concurrent calls for the same key observe
// distinct counts. The ttl bounds how long the backend keeps a bucket after
// its window closes; implementations may expire earlier buckets lazily.
type BucketStore interface {
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// AbuseSink receives the abuse signal raised when an identity keeps hammering
// a throttled quota. Wired to the trust evidence log by the caller.
type AbuseSink interface {
	AbuseSignal(ctx context.Context, identityID id.IdentityID, reason string) error
}
