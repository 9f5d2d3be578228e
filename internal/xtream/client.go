package xtream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/voyagen/tvvault/internal/models"
)

// AuthError signals bad credentials or an unreachable account endpoint.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string { return fmt.Sprintf("auth: %v", e.Err) }
func (e *AuthError) Unwrap() error { return e.Err }

// Client talks to an Xtream-style provider's player_api.php endpoint.
type Client struct {
	httpClient *http.Client
	userAgent  string
}

// NewClient returns a Client with the given user agent and request timeout.
func NewClient(userAgent string, timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		userAgent:  userAgent,
	}
}

// AccountInfo fetches and decodes the account snapshot for creds.
// A reachable endpoint that reports auth != 1 is still an AuthError:
// the credentials are not valid and nothing downstream may run.
func (c *Client) AccountInfo(ctx context.Context, creds models.Credentials) (*models.AccountInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, creds.AccountURL(), nil)
	if err != nil {
		return nil, &AuthError{Err: fmt.Errorf("NewRequest: %w", err)}
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &AuthError{Err: fmt.Errorf("Do: %w", err)}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &AuthError{Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
	}
	var info models.AccountInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, &AuthError{Err: fmt.Errorf("decode: %w", err)}
	}
	if info.UserInfo.Auth != 1 {
		return nil, &AuthError{Err: fmt.Errorf("invalid credentials for %q", creds.Username)}
	}
	return &info, nil
}
