// Package tokenstore persists the session token and the last verified
// credential hash in the settings table, sealing the token at rest.
package tokenstore

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mrlokans/bibliotheek/internal/crypto"
	"github.com/mrlokans/bibliotheek/internal/database/settings"
	"github.com/mrlokans/bibliotheek/internal/entities"
)

// StoredSession is what survives a restart of the process.
type StoredSession struct {
	Token     string
	ExpiresAt time.Time // zero when the server gave no expiry
	Email     string
	UserID    uint
}

// Expired reports whether the token is past its expiry at now.
func (s *StoredSession) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// TokenStore provides sealed storage for the session token.
type TokenStore struct {
	settings  *settings.Repository
	encryptor *crypto.Encryptor
}

func New(repo *settings.Repository, encryptor *crypto.Encryptor) *TokenStore {
	return &TokenStore{settings: repo, encryptor: encryptor}
}

// ResolveEncryptionKey returns secret when set. Otherwise it reads the key
// file, generating and saving a fresh key on first use.
func ResolveEncryptionKey(secret, keyFilePath string) (string, error) {
	if secret != "" {
		return secret, nil
	}

	if data, err := os.ReadFile(keyFilePath); err == nil {
		return strings.TrimSpace(string(data)), nil
	}

	newKey, err := crypto.GenerateKey()
	if err != nil {
		return "", fmt.Errorf("failed to generate encryption key: %w", err)
	}
	if err := os.WriteFile(keyFilePath, []byte(newKey), 0o600); err != nil {
		return "", fmt.Errorf("failed to save encryption key to %s: %w", keyFilePath, err)
	}
	return newKey, nil
}

// SaveSession seals and stores the session.
func (s *TokenStore) SaveSession(ctx context.Context, sess StoredSession) error {
	sealed, err := s.encryptor.Encrypt(sess.Token)
	if err != nil {
		return fmt.Errorf("failed to encrypt session token: %w", err)
	}

	expiry := ""
	if !sess.ExpiresAt.IsZero() {
		expiry = sess.ExpiresAt.UTC().Format(time.RFC3339)
	}
	return s.settings.SetMany(ctx, map[string]string{
		entities.SettingKeySessionToken:       sealed,
		entities.SettingKeySessionTokenExpiry: expiry,
		entities.SettingKeySessionEmail:       sess.Email,
		entities.SettingKeySessionUserID:      strconv.FormatUint(uint64(sess.UserID), 10),
	})
}

// LoadSession returns the stored session, or nil when none was saved.
func (s *TokenStore) LoadSession(ctx context.Context) (*StoredSession, error) {
	sealed, ok, err := s.settings.Get(ctx, entities.SettingKeySessionToken)
	if err != nil || !ok || sealed == "" {
		return nil, err
	}

	token, err := s.encryptor.Decrypt(sealed)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt session token: %w", err)
	}

	sess := &StoredSession{Token: token}
	if v, _, err := s.settings.Get(ctx, entities.SettingKeySessionTokenExpiry); err == nil && v != "" {
		if t, perr := time.Parse(time.RFC3339, v); perr == nil {
			sess.ExpiresAt = t
		}
	}
	if v, _, err := s.settings.Get(ctx, entities.SettingKeySessionEmail); err == nil {
		sess.Email = v
	}
	if v, _, err := s.settings.Get(ctx, entities.SettingKeySessionUserID); err == nil && v != "" {
		if id, perr := strconv.ParseUint(v, 10, 64); perr == nil {
			sess.UserID = uint(id)
		}
	}
	return sess, nil
}

// ClearSession forgets the stored token. The identity of the last user is
// kept for offline sign-in.
func (s *TokenStore) ClearSession(ctx context.Context) error {
	return s.settings.Delete(ctx, entities.SettingKeySessionToken, entities.SettingKeySessionTokenExpiry)
}

// SaveCredential remembers the password hash last verified for email.
func (s *TokenStore) SaveCredential(ctx context.Context, email, hash string) error {
	return s.settings.Set(ctx, credentialKey(email), hash)
}

// Credential returns the remembered password hash for email.
func (s *TokenStore) Credential(ctx context.Context, email string) (string, bool, error) {
	return s.settings.Get(ctx, credentialKey(email))
}

func credentialKey(email string) string {
	return entities.SettingKeyCredentialPrefix + strings.ToLower(strings.TrimSpace(email))
}
