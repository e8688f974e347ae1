package auth

import (
	"context"
	"time"
)

// TokenBlacklist stores revoked token IDs (jti) until their original expiry.
type TokenBlacklist interface {
	// Add blacklists the jti until the token's original expiry time.
	Add(ctx context.Context, jti string, originalTokenExpTime time.Time) error
	// IsBlacklisted reports whether the jti has been revoked.
	IsBlacklisted(ctx context.Context, jti string) (bool, error)
}
