package remote

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

const (
	loginPath = "/api/auth/login"
	mePath    = "/api/auth/me"
)

// User is the account the store of record authenticated.
type User struct {
	ID    uint   `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// LoginResult is the answer to a successful credential exchange.
type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      User      `json:"user"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login exchanges credentials for a bearer token. A refusal matches
// ErrUnauthorized.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	var out LoginResult
	decoded, err := c.do(ctx, request{
		op:     "login",
		method: http.MethodPost,
		path:   loginPath,
		body:   loginRequest{Email: email, Password: password},
		budget: Interactive,
	}, &out)
	if err != nil {
		return nil, err
	}
	if !decoded || out.Token == "" {
		return nil, fmt.Errorf("login: %w: response carried no token", ErrUnavailable)
	}
	return &out, nil
}

// Me returns the user the current bearer token belongs to.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var out User
	decoded, err := c.do(ctx, request{
		op:     "me",
		method: http.MethodGet,
		path:   mePath,
		budget: Interactive,
	}, &out)
	if err != nil {
		return nil, err
	}
	if !decoded {
		return nil, fmt.Errorf("me: %w: empty response", ErrUnavailable)
	}
	return &out, nil
}
