package handlers

import (
	"net/http"
	"strings"

	"github.com/diewo77/go-catalog/internal/httpx"
	"github.com/diewo77/go-catalog/internal/repository"
	"github.com/diewo77/go-catalog/internal/services"
)

type ProductHandler struct {
	svc *services.CatalogService
}

func NewProductHandler(svc *services.CatalogService) *ProductHandler {
	return &ProductHandler{svc: svc}
}

func productQuery(r *http.Request) repository.ProductQuery {
	q := r.URL.Query()
	return repository.ProductQuery{
		Paging:     paging(r),
		Search:     strings.TrimSpace(q.Get("search")),
		CategoryID: uintParam(r, "category_id"),
		BrandID:    uintParam(r, "brand_id"),
		Active:     boolParam(r, "is_active"),
		LowStock:   q.Get("low_stock") == "1" || q.Get("low_stock") == "true",
		OutOfStock: q.Get("out_of_stock") == "1" || q.Get("out_of_stock") == "true",
		Trashed:    repository.Trashed(q.Get("trashed")),
	}
}

// List handles GET /api/products.
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.SearchProducts(r.Context(), productQuery(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	page(w, p)
}

// LowStock handles GET /api/products/low-stock.
func (h *ProductHandler) LowStock(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.LowStockProducts(r.Context(), productQuery(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	page(w, p)
}

func (h *ProductHandler) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.ProductStats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, st, nil)
}

func (h *ProductHandler) Show(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.svc.GetProduct(r.Context(), id, repository.Trashed(r.URL.Query().Get("trashed")) == repository.WithTrashed)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, p, nil)
}

func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	in, err := decodeInput(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.svc.CreateProduct(r.Context(), actor(r), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.Message(w, http.StatusCreated, "Product created successfully.", p)
}

func (h *ProductHandler) Update(w http.ResponseWriter, r *http.Request) {
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
	p, err := h.svc.UpdateProduct(r.Context(), actor(r), id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.Message(w, http.StatusOK, "Product updated successfully.", p)
}

func (h *ProductHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.svc.DeleteProduct(r.Context(), actor(r), id); err != nil {
		writeError(w, r, err)
		return
	}
	httpx.Message(w, http.StatusOK, "Product deleted successfully.", nil)
}

func (h *ProductHandler) Restore(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.svc.RestoreProduct(r.Context(), actor(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.Message(w, http.StatusOK, "Product restored successfully.", p)
}

func (h *ProductHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.svc.ToggleProductStatus(r.Context(), actor(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.Message(w, http.StatusOK, "Product status updated.", p)
}

// Stock handles PATCH /api/products/{id}/stock with {"quantity", "operation"}.
func (h *ProductHandler) Stock(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var body struct {
		Quantity  int    `json:"quantity"`
		Operation string `json:"operation"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.svc.UpdateStock(r.Context(), actor(r), id, body.Quantity, body.Operation)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.Message(w, http.StatusOK, "Stock updated successfully.", p)
}

// Bulk handles POST /api/products/bulk. An action runs activate, deactivate
// or delete; data applies a partial update.
func (h *ProductHandler) Bulk(w http.ResponseWriter, r *http.Request) {
	req, err := decodeBulk(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var n int
	if req.Action != "" {
		n, err = h.svc.BulkProductAction(r.Context(), actor(r), req.IDs, req.Action)
	} else {
		n, err = h.svc.BulkUpdateProducts(r.Context(), actor(r), req.IDs, req.Data)
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
