package auth

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrNoSession is returned when the request carries no session cookie.
	ErrNoSession = errors.New("auth: no session")
	// ErrInvalidSession is returned for a forged, expired or malformed token.
	ErrInvalidSession = errors.New("auth: invalid session")
)

// SessionClaims is the payload of the session cookie.
type SessionClaims struct {
	OpenID string `json:"openId"`
	Name   string `json:"name"`
	jwt.RegisteredClaims
}

// SessionManager issues and verifies HS256 session tokens.
type SessionManager struct {
	secret     []byte
	ttl        time.Duration
	cookieName string
	secure     bool
	now        func() time.Time
}

// SessionConfig configures SessionManager.
type SessionConfig struct {
	Secret     string
	TTL        time.Duration
	CookieName string
	Secure     bool
}

func NewSessionManager(cfg SessionConfig) *SessionManager {
	if cfg.TTL <= 0 {
		cfg.TTL = 365 * 24 * time.Hour
	}
	if cfg.CookieName == "" {
		cfg.CookieName = "app_session_id"
	}
	return &SessionManager{
		secret:     []byte(cfg.Secret),
		ttl:        cfg.TTL,
		cookieName: cfg.CookieName,
		secure:     cfg.Secure,
		now:        time.Now,
	}
}

// Issue signs a token for openID.
func (m *SessionManager) Issue(openID, name string) (string, error) {
	if len(m.secret) == 0 {
		return "", errors.New("auth: session secret not configured")
	}
	now := m.now()
	claims := SessionClaims{
		OpenID: openID,
		Name:   name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   openID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign session: %w", err)
	}
	return signed, nil
}

// Verify parses token and returns its claims.
func (m *SessionManager) Verify(token string) (*SessionClaims, error) {
	if len(m.secret) == 0 {
		return nil, ErrInvalidSession
	}
	claims := &SessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(m.now))
	if err != nil || !parsed.Valid || claims.OpenID == "" {
		return nil, ErrInvalidSession
	}
	return claims, nil
}

// FromRequest verifies the session cookie on r.
func (m *SessionManager) FromRequest(r *http.Request) (*SessionClaims, error) {
	c, err := r.Cookie(m.cookieName)
	if err != nil || c.Value == "" {
		return nil, ErrNoSession
	}
	return m.Verify(c.Value)
}

// SetCookie writes the session cookie.
func (m *SessionManager) SetCookie(w http.ResponseWriter, r *http.Request, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(m.ttl.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   m.secureFor(r),
	})
}

// ClearCookie expires the session cookie.
func (m *SessionManager) ClearCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   m.secureFor(r),
	})
}

func (m *SessionManager) secureFor(r *http.Request) bool {
	if m.secure {
		return true
	}
	return r != nil && (r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https")
}

// Authenticator resolves the signed-in user for a request.
type Authenticator struct {
	sessions *SessionManager
	users    Store
}

func NewAuthenticator(sessions *SessionManager, users Store) *Authenticator {
	return &Authenticator{sessions: sessions, users: users}
}

// Authenticate returns the user behind the session cookie. Sessions whose
// user no longer exists are invalid.
func (a *Authenticator) Authenticate(r *http.Request) (*User, error) {
	claims, err := a.sessions.FromRequest(r)
	if err != nil {
		return nil, err
	}
	u, err := a.users.GetByOpenID(r.Context(), claims.OpenID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidSession
		}
		return nil, err
	}
	return u, nil
}
