package outbound

import (
	"context"

	"auctioneer-service/internal/domain/shared"
)

// IdentityProvider resolves a bearer credential to a stable principal
type IdentityProvider interface {
	// Authenticate returns the principal for a token, or ErrUnauthenticated
	Authenticate(ctx context.Context, token string) (*shared.Principal, error)
}

// Announcer is the outbound voice/announcement channel. Fire-and-forget;
// failures are logged by callers and never escalate.
type Announcer interface {
	Announce(ctx context.Context, text string) error
}
