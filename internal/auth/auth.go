// Package auth provides the dashboard session: a tri-state of loading,
// failed and resolved, where a resolved session may be anonymous.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials is returned by Login for a bad username or password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidToken is the session error for a malformed, tampered or
	// expired token.
	ErrInvalidToken = errors.New("invalid session token")
)

// Identity is the signed-in user.
type Identity struct {
	Username string `json:"username" doc:"Login name"`
}

// Session is what the page sees of the current user. Loading is true while
// the identity is still being resolved; Err is set when resolution failed.
// With neither set, User nil means anonymous.
type Session struct {
	User    *Identity
	Loading bool
	Err     error
}

// Authenticated reports whether a user is signed in.
func (s Session) Authenticated() bool {
	return s.User != nil && !s.Loading && s.Err == nil
}

// Claims are the session token claims.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Config configures a Manager.
type Config struct {
	Secret     string
	CookieName string
	TTL        time.Duration
	// Username and PasswordHash (bcrypt) define the single login account.
	// Login is disabled when either is empty.
	Username     string
	PasswordHash string
}

// Manager issues and verifies session tokens.
type Manager struct {
	secret   []byte
	cookie   string
	ttl      time.Duration
	username string
	hash     []byte
	now      func() time.Time
}

// NewManager returns a Manager. The secret must be at least 32 bytes.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.Secret) < 32 {
		return nil, fmt.Errorf("auth secret must be at least 32 characters, got %d", len(cfg.Secret))
	}
	if cfg.CookieName == "" {
		cfg.CookieName = "tweetmap_session"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	return &Manager{
		secret:   []byte(cfg.Secret),
		cookie:   cfg.CookieName,
		ttl:      cfg.TTL,
		username: cfg.Username,
		hash:     []byte(cfg.PasswordHash),
		now:      time.Now,
	}, nil
}

// CookieName is the session cookie name.
func (m *Manager) CookieName() string { return m.cookie }

// Issue signs a token for username.
func (m *Manager) Issue(username string) (string, time.Time, error) {
	now := m.now()
	exp := now.Add(m.ttl)
	claims := &Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// Verify parses a token and returns its identity.
func (m *Manager) Verify(token string) (*Identity, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(m.now))
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Username == "" {
		return nil, fmt.Errorf("%w: no username", ErrInvalidToken)
	}
	return &Identity{Username: claims.Username}, nil
}

// Login checks the credentials against the configured account and issues
// a token.
func (m *Manager) Login(username, password string) (string, time.Time, error) {
	if m.username == "" || len(m.hash) == 0 || username != m.username {
		return "", time.Time{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(m.hash, []byte(password)); err != nil {
		return "", time.Time{}, ErrInvalidCredentials
	}
	return m.Issue(username)
}

// SessionFrom resolves the session carried by r: a bearer token first,
// then the session cookie. No token is an anonymous session.
func (m *Manager) SessionFrom(r *http.Request) Session {
	token := bearer(r.Header.Get("Authorization"))
	if token == "" {
		if c, err := r.Cookie(m.cookie); err == nil {
			token = c.Value
		}
	}
	return m.SessionForToken(token)
}

// SessionForToken resolves a raw token value.
func (m *Manager) SessionForToken(token string) Session {
	if token == "" {
		return Session{}
	}
	id, err := m.Verify(token)
	if err != nil {
		return Session{Err: err}
	}
	return Session{User: id}
}

// Cookie builds the session cookie for a token.
func (m *Manager) Cookie(token string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     m.cookie,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

// ClearCookie expires the session cookie.
func (m *Manager) ClearCookie() *http.Cookie {
	return &http.Cookie{
		Name:     m.cookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

// HashPassword returns a bcrypt hash for configuring the login account.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func bearer(h string) string {
	const prefix = "Bearer "
	if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return strings.TrimSpace(h[len(prefix):])
	}
	return ""
}
