package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func whoami() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if uid, ok := UserIDFromContext(r.Context()); ok {
			w.Header().Set("X-User", strconv.FormatUint(uint64(uid), 10))
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestSessionRoundTrip(t *testing.T) {
	a := New(Config{SessionSecret: "s3cret"}, nil)
	rec := httptest.NewRecorder()
	a.CreateSession(rec, 42)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	uid, ok := a.ParseSession(req)
	if !ok || uid != 42 {
		t.Fatalf("ParseSession = %d, %v; want 42, true", uid, ok)
	}

	other := New(Config{SessionSecret: "different"}, nil)
	if _, ok := other.ParseSession(req); ok {
		t.Error("cookie signed with another secret must be rejected")
	}
}

func TestParseSession_Tampered(t *testing.T) {
	a := New(Config{SessionSecret: "s3cret"}, nil)
	for _, v := range []string{"", "42", "42.bad", "0." + a.sign("0"), "x." + a.sign("x")} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: v})
		if _, ok := a.ParseSession(req); ok {
			t.Errorf("cookie %q accepted", v)
		}
	}
}

func TestTokens(t *testing.T) {
	tokens := NewTokens("key", time.Hour)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tokens.now = func() time.Time { return now }

	tok, exp, err := tokens.Issue(7)
	if err != nil {
		t.Fatal(err)
	}
	if !exp.Equal(now.Add(time.Hour)) {
		t.Errorf("exp = %v", exp)
	}
	uid, err := tokens.Parse(tok)
	if err != nil || uid != 7 {
		t.Fatalf("Parse = %d, %v", uid, err)
	}

	now = now.Add(2 * time.Hour)
	if _, err := tokens.Parse(tok); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expired token: err = %v", err)
	}

	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "7", Issuer: tokenIssuer}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	if _, err := tokens.Parse(none); err == nil {
		t.Error("alg=none must be rejected")
	}
}

func TestMiddleware(t *testing.T) {
	a := New(Config{SessionSecret: "s3cret", TokenSecret: "tok"}, nil)
	h := a.Middleware(whoami())

	tok, _, err := a.Tokens.Issue(3)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-User"); got != "3" {
		t.Errorf("bearer user = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-User"); got != "" {
		t.Errorf("invalid bearer resolved user %q", got)
	}
}

func TestRequireAuth(t *testing.T) {
	active := map[uint]bool{1: true}
	a := New(Config{}, func(_ context.Context, uid uint) bool { return active[uid] })
	h := a.RequireAuth(whoami())

	tests := []struct {
		name string
		ctx  context.Context
		want int
	}{
		{"anonymous", context.Background(), http.StatusUnauthorized},
		{"active", WithUserID(context.Background(), 1), http.StatusNoContent},
		{"disabled", WithUserID(context.Background(), 2), http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(tt.ctx)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}
