// Package auth provides the bearer tokens the scraper presents to the store.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AdminRole is the database role PostgREST switches to for scraper requests.
const AdminRole = "rsd_admin"

// ErrMissingSecret is returned when an admin token is requested without a
// signing secret.
var ErrMissingSecret = errors.New("jwt secret not configured")

// TokenSource supplies the bearer token sent with every store request.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a pre-issued token. An empty StaticToken sends no
// Authorization header.
type StaticToken string

// Token implements TokenSource.
func (t StaticToken) Token(context.Context) (string, error) {
	return string(t), nil
}

// AdminJWT mints short-lived HS256 tokens carrying the admin role, signed with
// the secret PostgREST verifies against. A token is reused until it is within
// a minute of expiring.
type AdminJWT struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

// NewAdminJWT creates an AdminJWT. A ttl below two minutes is raised to two
// minutes so a cached token is never handed out already stale.
func NewAdminJWT(secret string, ttl time.Duration) (*AdminJWT, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	if ttl < 2*time.Minute {
		ttl = 2 * time.Minute
	}
	return &AdminJWT{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// WithClock replaces the time source. Used by tests.
func (a *AdminJWT) WithClock(now func() time.Time) *AdminJWT {
	a.now = now
	return a
}

// Token implements TokenSource.
func (a *AdminJWT) Token(context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	if a.token != "" && now.Add(time.Minute).Before(a.expires) {
		return a.token, nil
	}

	expires := now.Add(a.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"role": AdminRole,
		"iat":  now.Unix(),
		"exp":  expires.Unix(),
	})
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign admin token: %w", err)
	}
	a.token, a.expires = signed, expires
	return signed, nil
}
