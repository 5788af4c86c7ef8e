package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogin_ReturnsToken(t *testing.T) {
	expires := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/auth/login", r.URL.Path)

		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ann@example.org", body["email"])
		assert.Equal(t, "secret", body["password"])

		writeJSON(w, http.StatusOK, LoginResult{
			Token:     "tok-1",
			ExpiresAt: expires,
			User:      User{ID: 7, Email: "ann@example.org", Name: "Ann"},
		})
	}))

	res, err := c.Login(context.Background(), "ann@example.org", "secret")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", res.Token)
	assert.True(t, expires.Equal(res.ExpiresAt))
	assert.Equal(t, uint(7), res.User.ID)
}

func TestLogin_RefusedIsUnauthorized(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad credentials", http.StatusUnauthorized)
	}))

	_, err := c.Login(context.Background(), "ann@example.org", "wrong")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.True(t, c.Available(), "a refusal must not trip the breaker")
}

func TestMe(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/auth/me", r.URL.Path)
		writeJSON(w, http.StatusOK, User{ID: 3, Email: "bob@example.org"})
	}))

	u, err := c.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "bob@example.org", u.Email)
}
