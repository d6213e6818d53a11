// Package auth resolves bearer credentials to platform identities.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/edforge/interview/internal/domain"
)

var (
	ErrNoToken      = errors.New("authentication token required")
	ErrInvalidToken = errors.New("invalid authentication token")
)

// Identity is what the external provider answers for a valid credential.
type Identity struct {
	UserID domain.UserID `json:"user_id"`
	Role   domain.Role   `json:"role"`
}

// Verifier validates a bearer credential against the identity provider.
// Any failure rejects the connection before other events are processed.
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// HTTPVerifier asks an external identity endpoint to resolve the token.
// The endpoint answers 200 with {"user_id": ..., "role": ...} or a
// non-200 status for an invalid credential.
type HTTPVerifier struct {
	URL    string
	Client *http.Client
}

func NewHTTPVerifier(url string) *HTTPVerifier {
	return &HTTPVerifier{
		URL:    url,
		Client: &http.Client{Timeout: 5 * time.Second},
	}
}

func (v *HTTPVerifier) Verify(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrNoToken
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.URL, nil)
	if err != nil {
		return Identity{}, fmt.Errorf("build verify request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := v.Client.Do(req)
	if err != nil {
		return Identity{}, fmt.Errorf("identity provider unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Identity{}, ErrInvalidToken
	}

	var id Identity
	if err := json.NewDecoder(resp.Body).Decode(&id); err != nil {
		return Identity{}, fmt.Errorf("decode identity: %w", err)
	}
	if err := domain.ValidateUserID(id.UserID); err != nil {
		return Identity{}, fmt.Errorf("identity provider returned bad user id: %w", err)
	}
	if id.Role == "" {
		id.Role = domain.RoleLearner
	}
	return id, nil
}
