package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mrlokans/bibliotheek/internal/audit"
	"github.com/mrlokans/bibliotheek/internal/config"
	"github.com/mrlokans/bibliotheek/internal/database"
	"github.com/mrlokans/bibliotheek/internal/entities"
	"github.com/mrlokans/bibliotheek/internal/remote"
	"github.com/mrlokans/bibliotheek/internal/tokenstore"
)

// Schema is the part of the local database bootstrap prepares.
type Schema interface {
	EnsureSchema(ctx context.Context) error
	Seed(ctx context.Context) (database.SeedResult, error)
}

// Authenticator is the part of the remote API bootstrap authorizes against.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*remote.LoginResult, error)
	Me(ctx context.Context) (*remote.User, error)
}

// Report describes what a bootstrap run achieved.
type Report struct {
	SchemaReady bool
	Seeded      database.SeedResult
	Mode        Mode
	Identity    Identity
	// Verified is false when a persisted token was kept without the remote
	// confirming it, because the remote could not be reached.
	Verified bool
	Errors   []error
}

// Bootstrap runs the startup sequence once per process.
type Bootstrap struct {
	schema Schema
	auth   Authenticator
	tokens *tokenstore.TokenStore
	audit  *audit.Service
	cfg    config.Config
	log    *zap.Logger
	now    func() time.Time

	once   sync.Once
	report Report
}

// NewBootstrap wires the sequence. tokens may be nil, in which case nothing
// is persisted between runs and only configured credentials are tried.
func NewBootstrap(schema Schema, auth Authenticator, tokens *tokenstore.TokenStore, sink *audit.Service, cfg config.Config, log *zap.Logger) *Bootstrap {
	return &Bootstrap{
		schema: schema,
		auth:   auth,
		tokens: tokens,
		audit:  sink,
		cfg:    cfg,
		log:    log.Named("bootstrap"),
		now:    time.Now,
	}
}

// Run prepares the local store and authorizes sess. It never fails: every
// error is logged, recorded and reported, and the process carries on in a
// reduced mode. Later calls return the first run's report.
func (b *Bootstrap) Run(ctx context.Context, sess *Session) Report {
	b.once.Do(func() {
		b.report = b.run(ctx, sess)
	})
	return b.report
}

func (b *Bootstrap) run(ctx context.Context, sess *Session) Report {
	var r Report

	if err := b.schema.EnsureSchema(ctx); err != nil {
		b.fail(ctx, &r, "ensure_schema", err)
	} else {
		r.SchemaReady = true
		b.record(ctx, "ensure_schema", entities.AuditStatusSuccess, "local schema ready", nil)
	}

	if r.SchemaReady && b.cfg.Database.Seed {
		seeded, err := b.schema.Seed(ctx)
		if err != nil {
			b.fail(ctx, &r, "seed", err)
		} else {
			r.Seeded = seeded
			if seeded.Categories+seeded.Books+seeded.Members > 0 {
				b.record(ctx, "seed", entities.AuditStatusSuccess,
					fmt.Sprintf("seeded %d categories, %d books, %d members", seeded.Categories, seeded.Books, seeded.Members), nil)
			}
		}
	}

	b.authorize(ctx, sess, &r)

	r.Mode = sess.Mode()
	r.Identity = sess.Identity()
	b.log.Info("bootstrap finished",
		zap.Stringer("mode", r.Mode),
		zap.String("email", r.Identity.Email),
		zap.Bool("verified", r.Verified),
		zap.Int("errors", len(r.Errors)))
	return r
}

func (b *Bootstrap) authorize(ctx context.Context, sess *Session, r *Report) {
	sess.SignOut()
	if b.auth == nil {
		return
	}

	if b.resume(ctx, sess, r) {
		return
	}

	email, password := b.cfg.Auth.Email, b.cfg.Auth.Password
	if email == "" || password == "" {
		return
	}

	res, err := b.auth.Login(ctx, email, password)
	if err == nil {
		id := Identity{UserID: res.User.ID, Email: res.User.Email, Name: res.User.Name}
		if id.Email == "" {
			id.Email = email
		}
		sess.SignIn(id, res.Token, res.ExpiresAt)
		r.Verified = true
		b.remember(ctx, r, id, res, password)
		b.record(ctx, "login", entities.AuditStatusSuccess, "signed in as "+id.Email, nil)
		return
	}

	if errors.Is(err, remote.ErrUnauthorized) || !remote.IsRemoteFailure(err) {
		b.fail(ctx, r, "login", err)
		return
	}

	// The remote could not be reached: fall back to the last credentials it
	// accepted, if any.
	if b.offline(ctx, sess, email, password) {
		b.record(ctx, "login", entities.AuditStatusDegraded, "signed in offline as "+email, err)
		r.Errors = append(r.Errors, err)
		return
	}
	b.fail(ctx, r, "login", err)
}

// resume restores a persisted token. It reports whether sess ended up
// authenticated.
func (b *Bootstrap) resume(ctx context.Context, sess *Session, r *Report) bool {
	if b.tokens == nil {
		return false
	}
	stored, err := b.tokens.LoadSession(ctx)
	if err != nil {
		b.fail(ctx, r, "load_token", err)
		return false
	}
	if stored == nil {
		return false
	}
	if stored.Expired(b.now()) {
		b.log.Info("persisted token expired", zap.Time("expires_at", stored.ExpiresAt))
		b.forget(ctx, r)
		return false
	}

	id := Identity{UserID: stored.UserID, Email: stored.Email}
	sess.SignIn(id, stored.Token, stored.ExpiresAt)

	user, err := b.auth.Me(ctx)
	switch {
	case err == nil:
		sess.SignIn(Identity{UserID: user.ID, Email: user.Email, Name: user.Name}, stored.Token, stored.ExpiresAt)
		r.Verified = true
		b.record(ctx, "resume_token", entities.AuditStatusSuccess, "resumed session of "+user.Email, nil)
		return true
	case errors.Is(err, remote.ErrUnauthorized):
		sess.SignOut()
		b.log.Info("persisted token refused", zap.Error(err))
		b.forget(ctx, r)
		return false
	case remote.IsRemoteFailure(err):
		r.Errors = append(r.Errors, err)
		b.record(ctx, "resume_token", entities.AuditStatusDegraded, "kept persisted token of "+id.Email+" unverified", err)
		return true
	default:
		sess.SignOut()
		b.fail(ctx, r, "resume_token", err)
		return false
	}
}

func (b *Bootstrap) offline(ctx context.Context, sess *Session, email, password string) bool {
	if !b.cfg.Auth.OfflineLogin || b.tokens == nil {
		return false
	}
	hash, ok, err := b.tokens.Credential(ctx, email)
	if err != nil || !ok {
		return false
	}
	if CheckPassword(password, hash) != nil {
		return false
	}
	sess.SignInLocal(Identity{Email: email})
	return true
}

func (b *Bootstrap) remember(ctx context.Context, r *Report, id Identity, res *remote.LoginResult, password string) {
	if b.tokens == nil {
		return
	}
	if err := b.tokens.SaveSession(ctx, tokenstore.StoredSession{
		Token:     res.Token,
		ExpiresAt: res.ExpiresAt,
		Email:     id.Email,
		UserID:    id.UserID,
	}); err != nil {
		b.fail(ctx, r, "save_token", err)
	}

	if !b.cfg.Auth.OfflineLogin {
		return
	}
	hash, err := HashPassword(password, b.cfg.Auth.BcryptCost)
	if err == nil {
		err = b.tokens.SaveCredential(ctx, id.Email, hash)
	}
	if err != nil {
		b.fail(ctx, r, "save_credential", err)
	}
}

func (b *Bootstrap) forget(ctx context.Context, r *Report) {
	if err := b.tokens.ClearSession(ctx); err != nil {
		b.fail(ctx, r, "clear_token", err)
	}
}

func (b *Bootstrap) fail(ctx context.Context, r *Report, action string, err error) {
	r.Errors = append(r.Errors, fmt.Errorf("%s: %w", action, err))
	b.record(ctx, action, entities.AuditStatusFailed, "bootstrap step failed", err)
}

func (b *Bootstrap) record(ctx context.Context, action string, status entities.AuditStatus, description string, err error) {
	if b.audit == nil {
		return
	}
	eventType := entities.AuditEventBootstrap
	switch action {
	case "login", "resume_token", "save_token", "save_credential", "load_token", "clear_token":
		eventType = entities.AuditEventAuth
	}
	ev := entities.AuditEvent{
		EventType:   eventType,
		Action:      action,
		Description: description,
		Status:      status,
	}
	if err != nil {
		ev.ErrorMsg = err.Error()
	}
	b.audit.Record(ctx, ev)
}
