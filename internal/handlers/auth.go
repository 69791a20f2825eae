package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/diewo77/go-catalog/internal/auth"
	"github.com/diewo77/go-catalog/internal/gate"
	"github.com/diewo77/go-catalog/internal/httpx"
	"github.com/diewo77/go-catalog/internal/logging"
	"github.com/diewo77/go-catalog/internal/services"
	"github.com/diewo77/go-catalog/internal/validation"
)

// GrantsSource resolves what a user holds.
type GrantsSource interface {
	Grants(ctx context.Context, user uint) (gate.Grants, error)
}

type AuthHandler struct {
	users  *services.UserService
	auth   *auth.Auth
	grants GrantsSource
}

func NewAuthHandler(users *services.UserService, a *auth.Auth, grants GrantsSource) *AuthHandler {
	return &AuthHandler{users: users, auth: a, grants: grants}
}

type loginResponse struct {
	User      any       `json:"user"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Login checks credentials, sets the session cookie and returns a bearer
// token for API clients.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	if body.Email == "" || body.Password == "" {
		verr := validation.NewError("email", "The email and password fields are required.")
		writeError(w, r, verr)
		return
	}
	u, err := h.users.Authenticate(r.Context(), body.Email, body.Password)
	if err != nil {
		logging.FromContext(r.Context()).Info("login rejected", zap.String("email", body.Email), zap.Error(err))
		writeError(w, r, err)
		return
	}
	token, exp, err := h.auth.Tokens.Issue(u.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.auth.CreateSession(w, u.ID)
	httpx.Message(w, http.StatusOK, "Logged in successfully.", loginResponse{User: u, Token: token, ExpiresAt: exp})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	auth.ClearSession(w)
	httpx.Message(w, http.StatusOK, "Logged out successfully.", nil)
}

// Me returns the current user with the names of the roles they hold.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	uid := actor(r)
	u, err := h.users.GetUser(r.Context(), uid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	data := map[string]any{"user": u}
	if h.grants != nil {
		g, err := h.grants.Grants(r.Context(), uid)
		if err != nil {
			writeError(w, r, err)
			return
		}
		data["roles"] = g.RoleNames()
		data["is_admin"] = g.IsSuperAdmin()
	}
	httpx.OK(w, http.StatusOK, data, nil)
}
