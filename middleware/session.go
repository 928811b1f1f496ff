// Package middleware holds the HTTP middleware shared by every route.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"zako_server/models"
)

type ctxKey int

const sessionKey ctxKey = iota

const (
	DefaultSessionCookie = "zako_session"
	DefaultClientCookie  = "zako_uuid"
	ClientIDHeader       = "X-Client-UUID"
	ClientIDParam        = "client_uuid"
)

// Sessions issues the per-visit session token and locates the persistent client identifier.
type Sessions struct {
	CookieName       string
	ClientCookieName string
	Secure           bool
}

func (s *Sessions) cookieName() string {
	if s.CookieName == "" {
		return DefaultSessionCookie
	}
	return s.CookieName
}

func (s *Sessions) clientCookieName() string {
	if s.ClientCookieName == "" {
		return DefaultClientCookie
	}
	return s.ClientCookieName
}

// Middleware makes sure every request carries a session token, issuing one when absent.
func (s *Sessions) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := ""
		if c, err := r.Cookie(s.cookieName()); err == nil {
			token = strings.TrimSpace(c.Value)
		}
		if len(token) > models.MaxSessionTokenLength {
			token = ""
		}
		if token == "" {
			token = uuid.NewString()
			http.SetCookie(w, &http.Cookie{
				Name:     s.cookieName(),
				Value:    token,
				Path:     "/",
				HttpOnly: true,
				Secure:   s.Secure,
				SameSite: http.SameSiteLaxMode,
			})
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey, token)))
	})
}

// SessionToken returns the token Middleware attached to ctx.
func SessionToken(ctx context.Context) string {
	token, _ := ctx.Value(sessionKey).(string)
	return token
}

// ClientID reads the persistent identifier from the request parameter, then the
// X-Client-UUID header, then the client cookie.
func (s *Sessions) ClientID(r *http.Request, param string) string {
	if v := strings.TrimSpace(param); v != "" {
		return v
	}
	if v := strings.TrimSpace(r.Header.Get(ClientIDHeader)); v != "" {
		return v
	}
	if c, err := r.Cookie(s.clientCookieName()); err == nil {
		return strings.TrimSpace(c.Value)
	}
	return ""
}

// RememberClientID stores the identifier in a long lived cookie.
func (s *Sessions) RememberClientID(w http.ResponseWriter, clientID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.clientCookieName(),
		Value:    clientID,
		Path:     "/",
		MaxAge:   365 * 24 * 60 * 60,
		Secure:   s.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ExpireSession drops the session cookie so the next request starts a new visit.
func (s *Sessions) ExpireSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName(),
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
