package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"auctioneer-service/internal/config"
	"auctioneer-service/internal/domain/shared"

	"github.com/rs/zerolog"
)

// HTTPProvider resolves bearer tokens against a GoTrue-style identity
// endpoint (GET /auth/v1/user). Any non-OK response maps to
// ErrUnauthenticated; the lifecycle engine never learns why a token was
// rejected.
type HTTPProvider struct {
	baseURL string
	anonKey string
	client  *http.Client
	logger  zerolog.Logger
}

type HTTPProviderParams struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewHTTPProvider creates a new HTTP identity provider
func NewHTTPProvider(params HTTPProviderParams) *HTTPProvider {
	return &HTTPProvider{
		baseURL: params.Config.Identity.URL,
		anonKey: params.Config.Identity.AnonKey,
		client:  &http.Client{Timeout: 5 * time.Second},
		logger:  params.Logger.With().Str("component", "identity_provider").Logger(),
	}
}

type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Authenticate resolves a bearer credential to a stable principal
func (p *HTTPProvider) Authenticate(ctx context.Context, token string) (*shared.Principal, error) {
	if token == "" {
		return nil, shared.ErrUnauthenticated
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/auth/v1/user", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build identity request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if p.anonKey != "" {
		req.Header.Set("apikey", p.anonKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Warn().Err(err).Msg("Identity endpoint unreachable")
		return nil, shared.ErrUnauthenticated
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		p.logger.Debug().Int("status", resp.StatusCode).Msg("Token rejected by identity endpoint")
		return nil, shared.ErrUnauthenticated
	}

	var user userResponse
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		p.logger.Warn().Err(err).Msg("Malformed identity response")
		return nil, shared.ErrUnauthenticated
	}
	if user.ID == "" {
		return nil, shared.ErrUnauthenticated
	}

	return &shared.Principal{ID: user.ID, Email: user.Email}, nil
}
