package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/diewo77/go-catalog/internal/gate"
	"github.com/diewo77/go-catalog/internal/httpx"
	"github.com/diewo77/go-catalog/internal/repository"
	"github.com/diewo77/go-catalog/internal/services"
	"github.com/diewo77/go-catalog/internal/validation"
)

// UserHandler serves user accounts. Deletes also pass the user resource
// policy when an Authorizer is set.
type UserHandler struct {
	svc   *services.UserService
	authz Authorizer
}

func NewUserHandler(svc *services.UserService, authz Authorizer) *UserHandler {
	return &UserHandler{svc: svc, authz: authz}
}

// authorizeDelete runs the user policy on every target that exists.
// Missing ids are left to the service, which reports them.
func (h *UserHandler) authorizeDelete(r *http.Request, ids ...uint) error {
	if h.authz == nil {
		return nil
	}
	for _, id := range ids {
		u, err := h.svc.GetUser(r.Context(), id)
		if errors.Is(err, services.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if err := h.authz.Authorize(r.Context(), gate.ActionDelete, "user", u); err != nil {
			return err
		}
	}
	return nil
}

func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p, err := h.svc.SearchUsers(r.Context(), repository.UserQuery{
		Paging: paging(r),
		Search: strings.TrimSpace(q.Get("search")),
		Role:   q.Get("role"),
		Status: q.Get("status"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	page(w, p)
}

func (h *UserHandler) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.UserStats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, st, nil)
}

func (h *UserHandler) Show(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	u, err := h.svc.GetUser(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, u, nil)
}

func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	in, err := decodeInput(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	u, err := h.svc.CreateUser(r.Context(), actor(r), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.Message(w, http.StatusCreated, "User created successfully.", u)
}

func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	in, err := decodeInput(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	u, err := h.svc.UpdateUser(r.Context(), actor(r), id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.Message(w, http.StatusOK, "User updated successfully.", u)
}

func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.authorizeDelete(r, id); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.svc.DeleteUser(r.Context(), actor(r), id); err != nil {
		writeError(w, r, err)
		return
	}
	httpx.Message(w, http.StatusOK, "User deleted successfully.", nil)
}

func (h *UserHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	u, err := h.svc.ToggleUserStatus(r.Context(), actor(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.Message(w, http.StatusOK, "User status updated.", u)
}

// ResetPassword returns the generated password once; it is not stored in
// clear anywhere.
func (h *UserHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	pw, err := h.svc.ResetUserPassword(r.Context(), actor(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.Message(w, http.StatusOK, "Password reset successfully.", map[string]string{"password": pw})
}

// AssignRole handles POST /api/users/{id}/roles with {"role": name}.
func (h *UserHandler) AssignRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var body struct {
		Role string `json:"role"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(body.Role) == "" {
		writeError(w, r, validation.NewError("role", "The role field is required."))
		return
	}
	u, err := h.svc.AssignRoleToUser(r.Context(), actor(r), id, body.Role)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.Message(w, http.StatusOK, "Role assigned successfully.", u)
}

// RemoveRole handles DELETE /api/users/{id}/roles/{role}.
func (h *UserHandler) RemoveRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	u, err := h.svc.RemoveRoleFromUser(r.Context(), actor(r), id, r.PathValue("role"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.Message(w, http.StatusOK, "Role removed successfully.", u)
}

// Bulk accepts the activate, deactivate and delete actions.
func (h *UserHandler) Bulk(w http.ResponseWriter, r *http.Request) {
	req, err := decodeBulk(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if req.Action == "" {
		writeError(w, r, validation.NewError("action", "The action field is required."))
		return
	}
	if req.Action == services.ActionDelete {
		if err := h.authorizeDelete(r, req.IDs...); err != nil {
			writeError(w, r, err)
			return
		}
	}
	n, err := h.svc.BulkUserAction(r.Context(), actor(r), req.IDs, req.Action)
	if err != nil {
		writeError(w, r, err)
		return
	}
	verb := "updated"
	if req.Action == services.ActionDelete {
		verb = "deleted"
	}
	bulkDone(w, n, verb)
}
