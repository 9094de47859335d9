package identity

import (
	"context"
	"fmt"

	"auctioneer-service/internal/domain/shared"

	"github.com/rs/zerolog"
)

// LocalProvider accepts any non-empty token and uses it as the bidder
// identity. It is meant for development setups without an identity
// endpoint; never run it in production.
type LocalProvider struct {
	logger zerolog.Logger
}

func NewLocalProvider(logger zerolog.Logger) *LocalProvider {
	return &LocalProvider{
		logger: logger.With().Str("component", "identity_provider").Logger(),
	}
}

func (p *LocalProvider) Authenticate(ctx context.Context, token string) (*shared.Principal, error) {
	if token == "" {
		return nil, shared.ErrUnauthenticated
	}
	return &shared.Principal{
		ID:    token,
		Email: fmt.Sprintf("%s@local", token),
	}, nil
}
