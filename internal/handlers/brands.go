package handlers

import (
	"net/http"

	"github.com/diewo77/go-catalog/internal/httpx"
	"github.com/diewo77/go-catalog/internal/services"
	"github.com/diewo77/go-catalog/internal/validation"
)

type BrandHandler struct {
	svc *services.CatalogService
}

func NewBrandHandler(svc *services.CatalogService) *BrandHandler {
	return &BrandHandler{svc: svc}
}

func (h *BrandHandler) List(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.SearchBrands(r.Context(), listQuery(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	page(w, p)
}

func (h *BrandHandler) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.BrandStats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, st, nil)
}

func (h *BrandHandler) Show(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	v, err := h.svc.GetBrand(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, v, nil)
}

func (h *BrandHandler) Create(w http.ResponseWriter, r *http.Request) {
	in, err := decodeInput(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	v, err := h.svc.CreateBrand(r.Context(), actor(r), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.Message(w, http.StatusCreated, "Brand created successfully.", v)
}

func (h *BrandHandler) Update(w http.ResponseWriter, r *http.Request) {
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
	v, err := h.svc.UpdateBrand(r.Context(), actor(r), id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.Message(w, http.StatusOK, "Brand updated successfully.", v)
}

func (h *BrandHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.svc.DeleteBrand(r.Context(), actor(r), id); err != nil {
		writeError(w, r, err)
		return
	}
	httpx.Message(w, http.StatusOK, "Brand deleted successfully.", nil)
}

func (h *BrandHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	v, err := h.svc.ToggleBrandStatus(r.Context(), actor(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.Message(w, http.StatusOK, "Brand status updated.", v)
}

// Bulk accepts the activate, deactivate and delete actions, or a data
// object applied to every id.
func (h *BrandHandler) Bulk(w http.ResponseWriter, r *http.Request) {
	req, err := decodeBulk(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var n int
	switch req.Action {
	case "":
		n, err = h.svc.BulkUpdateBrands(r.Context(), actor(r), req.IDs, req.Data)
	case services.ActionDelete:
		n, err = h.svc.BulkDeleteBrands(r.Context(), actor(r), req.IDs)
	case services.ActionActivate, services.ActionDeactivate:
		active := req.Action == services.ActionActivate
		n, err = h.svc.BulkUpdateBrands(r.Context(), actor(r), req.IDs, validation.Input{"is_active": active})
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
