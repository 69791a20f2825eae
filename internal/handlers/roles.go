package handlers

import (
	"net/http"

	"github.com/diewo77/go-catalog/internal/gate"
	"github.com/diewo77/go-catalog/internal/httpx"
	"github.com/diewo77/go-catalog/internal/services"
)

// RoleHandler serves roles and permissions. Updates and deletes of a role
// also pass the role resource policy when an Authorizer is set.
type RoleHandler struct {
	svc   *services.RoleService
	authz Authorizer
}

func NewRoleHandler(svc *services.RoleService, authz Authorizer) *RoleHandler {
	return &RoleHandler{svc: svc, authz: authz}
}

func (h *RoleHandler) List(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.SearchRoles(r.Context(), listQuery(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	page(w, p)
}

func (h *RoleHandler) Show(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	role, err := h.svc.GetRole(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, role, nil)
}

func (h *RoleHandler) Create(w http.ResponseWriter, r *http.Request) {
	in, err := decodeInput(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	role, err := h.svc.CreateRole(r.Context(), actor(r), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.Message(w, http.StatusCreated, "Role created successfully.", role)
}

// authorize loads the role and checks the resource policy for action.
func (h *RoleHandler) authorize(r *http.Request, id uint, action gate.Action) error {
	if h.authz == nil {
		return nil
	}
	role, err := h.svc.GetRole(r.Context(), id)
	if err != nil {
		return err
	}
	return h.authz.Authorize(r.Context(), action, "role", role)
}

func (h *RoleHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.authorize(r, id, gate.ActionUpdate); err != nil {
		writeError(w, r, err)
		return
	}
	in, err := decodeInput(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	role, err := h.svc.UpdateRole(r.Context(), actor(r), id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.Message(w, http.StatusOK, "Role updated successfully.", role)
}

func (h *RoleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.authorize(r, id, gate.ActionDelete); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.svc.DeleteRole(r.Context(), actor(r), id); err != nil {
		writeError(w, r, err)
		return
	}
	httpx.Message(w, http.StatusOK, "Role deleted successfully.", nil)
}

func (h *RoleHandler) ListPermissions(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.SearchPermissions(r.Context(), listQuery(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	page(w, p)
}

func (h *RoleHandler) CreatePermission(w http.ResponseWriter, r *http.Request) {
	in, err := decodeInput(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	perm, err := h.svc.CreatePermission(r.Context(), actor(r), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.Message(w, http.StatusCreated, "Permission created successfully.", perm)
}

func (h *RoleHandler) UpdatePermission(w http.ResponseWriter, r *http.Request) {
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
	perm, err := h.svc.UpdatePermission(r.Context(), actor(r), id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.Message(w, http.StatusOK, "Permission updated successfully.", perm)
}

func (h *RoleHandler) DeletePermission(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.svc.DeletePermission(r.Context(), actor(r), id); err != nil {
		writeError(w, r, err)
		return
	}
	httpx.Message(w, http.StatusOK, "Permission deleted successfully.", nil)
}
