package handlers

import (
	"net/http"

	"github.com/diewo77/go-catalog/internal/httpx"
	"github.com/diewo77/go-catalog/internal/services"
	"github.com/diewo77/go-catalog/internal/validation"
)

type CategoryHandler struct {
	svc *services.CatalogService
}

func NewCategoryHandler(svc *services.CatalogService) *CategoryHandler {
	return &CategoryHandler{svc: svc}
}

func (h *CategoryHandler) List(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.SearchCategories(r.Context(), listQuery(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	page(w, p)
}

func (h *CategoryHandler) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.CategoryStats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, st, nil)
}

func (h *CategoryHandler) Show(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	v, err := h.svc.GetCategory(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, v, nil)
}

func (h *CategoryHandler) Create(w http.ResponseWriter, r *http.Request) {
	in, err := decodeInput(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	v, err := h.svc.CreateCategory(r.Context(), actor(r), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.Message(w, http.StatusCreated, "Category created successfully.", v)
}

func (h *CategoryHandler) Update(w http.ResponseWriter, r *http.Request) {
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
	v, err := h.svc.UpdateCategory(r.Context(), actor(r), id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.Message(w, http.StatusOK, "Category updated successfully.", v)
}

func (h *CategoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.svc.DeleteCategory(r.Context(), actor(r), id); err != nil {
		writeError(w, r, err)
		return
	}
	httpx.Message(w, http.StatusOK, "Category deleted successfully.", nil)
}

func (h *CategoryHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	v, err := h.svc.ToggleCategoryStatus(r.Context(), actor(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.Message(w, http.StatusOK, "Category status updated.", v)
}

// Bulk accepts the activate, deactivate and delete actions, or a data
// object applied to every id.
func (h *CategoryHandler) Bulk(w http.ResponseWriter, r *http.Request) {
	req, err := decodeBulk(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var n int
	switch req.Action {
	case "":
		n, err = h.svc.BulkUpdateCategories(r.Context(), actor(r), req.IDs, req.Data)
	case services.ActionDelete:
		n, err = h.svc.BulkDeleteCategories(r.Context(), actor(r), req.IDs)
	case services.ActionActivate, services.ActionDeactivate:
		active := req.Action == services.ActionActivate
		n, err = h.svc.BulkUpdateCategories(r.Context(), actor(r), req.IDs, validation.Input{"is_active": active})
	default:
		err = validation.NewError("action", "The selected action is invalid.")
	}
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
