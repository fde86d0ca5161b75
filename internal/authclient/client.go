// Package authclient lets other services resolve a session cookie through
// GET /api/me.
package authclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Skotchmaster/mind-auth/internal/models"
)

var ErrUnauthenticated = errors.New("session not authenticated")

type Client struct {
	baseURL    string
	cookieName string
	httpClient *http.Client
}

func NewClient(authServiceURL, cookieName string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(authServiceURL, "/"),
		cookieName: cookieName,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

type meResponse struct {
	User  *models.SafeUser `json:"user"`
	Error string           `json:"error"`
}

// Me returns the user behind token. A 401 from the service maps to
// ErrUnauthenticated wrapped with the service's message.
func (c *Client) Me(ctx context.Context, token string) (*models.SafeUser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/me", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.AddCookie(&http.Cookie{Name: c.cookieName, Value: token})

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	var result meResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, fmt.Errorf("%w: %s", ErrUnauthenticated, result.Error)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("me failed with status %d: %s", resp.StatusCode, result.Error)
	case result.User == nil:
		return nil, fmt.Errorf("me: response without user")
	}
	return result.User, nil
}
