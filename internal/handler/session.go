package handler

import (
	"fmt"
	"net/http"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"wishlist_backend/internal/config"
)

const (
	sessionTokenLength    = 43
	maxSessionTokenLength = 255
)

// SessionResolver identifies anonymous viewers by a long-lived cookie. A
// viewer without a usable cookie is issued a fresh token on the response.
type SessionResolver struct {
	cookieName string
	maxAge     time.Duration
	secure     bool
	sameSite   http.SameSite
}

func NewSessionResolver(cfg *config.Config) *SessionResolver {
	return &SessionResolver{
		cookieName: cfg.SessionCookieName,
		maxAge:     cfg.SessionCookieMaxAge,
		secure:     cfg.CookieSecure,
		sameSite:   parseSameSite(cfg.CookieSameSite),
	}
}

func parseSameSite(s string) http.SameSite {
	switch s {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

// Resolve returns the caller's session id, setting a new cookie when the
// request carries none or an unusable one.
func (s *SessionResolver) Resolve(w http.ResponseWriter, r *http.Request) (string, error) {
	if c, err := r.Cookie(s.cookieName); err == nil {
		if n := len(c.Value); n >= 1 && n <= maxSessionTokenLength {
			return c.Value, nil
		}
	}

	token, err := gonanoid.New(sessionTokenLength)
	if err != nil {
		return "", fmt.Errorf("failed to generate session token: %w", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.maxAge.Seconds()),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: s.sameSite,
	})
	return token, nil
}
