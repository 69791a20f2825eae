// Package auth resolves the acting user of a request from a signed session
// cookie or a bearer token.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/diewo77/go-catalog/internal/httpx"
)

type ctxKey string

const (
	sessionCookieName = "session"
	userIDCtxKey      = ctxKey("userID")
	sessionTTL        = 14 * 24 * time.Hour
)

// UserVerifier validates that a session's user still exists and is allowed
// to sign in.
type UserVerifier func(ctx context.Context, uid uint) bool

// Config holds the secrets used to sign sessions and tokens.
type Config struct {
	SessionSecret string
	TokenSecret   string
	TokenTTL      time.Duration
	SecureCookie  bool
}

// Auth signs and verifies credentials.
type Auth struct {
	secret []byte
	secure bool
	Tokens *Tokens
	verify UserVerifier
}

// New creates an Auth. verify may be nil.
func New(cfg Config, verify UserVerifier) *Auth {
	secret := cfg.SessionSecret
	if secret == "" {
		secret = "devsessionsecret"
	}
	tokenSecret := cfg.TokenSecret
	if tokenSecret == "" {
		tokenSecret = secret
	}
	return &Auth{
		secret: []byte(secret),
		secure: cfg.SecureCookie,
		Tokens: NewTokens(tokenSecret, cfg.TokenTTL),
		verify: verify,
	}
}

func (a *Auth) sign(uid string) string {
	mac := hmac.New(sha256.New, a.secret)
	mac.Write([]byte(uid))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// CreateSession sets a signed cookie with the user id.
func (a *Auth) CreateSession(w http.ResponseWriter, userID uint) {
	uidStr := strconv.FormatUint(uint64(userID), 10)
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    uidStr + "." + a.sign(uidStr),
		Path:     "/",
		HttpOnly: true,
		Secure:   a.secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(sessionTTL),
	})
}

// ClearSession deletes the session cookie.
func ClearSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{Name: sessionCookieName, Value: "", Path: "/", Expires: time.Unix(0, 0), HttpOnly: true, SameSite: http.SameSiteLaxMode})
}

// ParseSession validates the cookie and returns the user id.
func (a *Auth) ParseSession(r *http.Request) (uint, bool) {
	c, err := r.Cookie(sessionCookieName)
	if err != nil || c.Value == "" {
		return 0, false
	}
	uidStr, sig, ok := strings.Cut(c.Value, ".")
	if !ok || !hmac.Equal([]byte(sig), []byte(a.sign(uidStr))) {
		return 0, false
	}
	id64, err := strconv.ParseUint(uidStr, 10, 64)
	if err != nil || id64 == 0 {
		return 0, false
	}
	return uint(id64), true
}

// bearer returns the token of an "Authorization: Bearer" header.
func bearer(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}

// WithUserID stores user id in context.
func WithUserID(ctx context.Context, userID uint) context.Context {
	return context.WithValue(ctx, userIDCtxKey, userID)
}

// UserIDFromContext extracts user id.
func UserIDFromContext(ctx context.Context) (uint, bool) {
	id, ok := ctx.Value(userIDCtxKey).(uint)
	return id, ok && id != 0
}

// Middleware attaches the user id to the request context when a valid
// bearer token or session cookie is present. A bearer token wins.
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token, ok := bearer(r); ok {
			if uid, err := a.Tokens.Parse(token); err == nil {
				r = r.WithContext(WithUserID(r.Context(), uid))
			}
		} else if uid, ok := a.ParseSession(r); ok {
			r = r.WithContext(WithUserID(r.Context(), uid))
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAuth answers 401 for anonymous requests and for users the verifier
// rejects.
func (a *Auth) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid, ok := UserIDFromContext(r.Context())
		if !ok {
			httpx.Fail(w, http.StatusUnauthorized, "Unauthenticated.", nil)
			return
		}
		if a.verify != nil && !a.verify(r.Context(), uid) {
			// Session refers to a missing or disabled user.
			ClearSession(w)
			httpx.Fail(w, http.StatusUnauthorized, "Unauthenticated.", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
