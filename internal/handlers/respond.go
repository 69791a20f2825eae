// Package handlers exposes the catalog services as a JSON API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/diewo77/go-catalog/internal/auth"
	"github.com/diewo77/go-catalog/internal/gate"
	"github.com/diewo77/go-catalog/internal/httpx"
	"github.com/diewo77/go-catalog/internal/logging"
	"github.com/diewo77/go-catalog/internal/repository"
	"github.com/diewo77/go-catalog/internal/services"
	"github.com/diewo77/go-catalog/internal/validation"
)

const maxBodyBytes = 1 << 20

var errMalformedBody = errors.New("malformed body")

// Authorizer checks a resource-level permission for the request's user.
type Authorizer interface {
	Authorize(ctx context.Context, action gate.Action, resourceType string, resource any) error
}

// statusOf maps the service error taxonomy onto HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, services.ErrBusinessRule):
		return http.StatusConflict
	case errors.Is(err, services.ErrSelfDeletion), errors.Is(err, services.ErrInactiveUser), errors.Is(err, gate.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, services.ErrNotFound), errors.Is(err, services.ErrRoleNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrInvalidOperation), errors.Is(err, services.ErrInvalidArgument), errors.Is(err, errMalformedBody):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrInvalidCredentials):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as a failure envelope. Unclassified errors are
// logged and hidden behind a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *validation.Error
	if errors.As(err, &verr) {
		httpx.Fail(w, http.StatusUnprocessableEntity, verr.First(), verr.Violations)
		return
	}
	status := statusOf(err)
	switch {
	case status == http.StatusInternalServerError:
		logging.FromContext(r.Context()).Error("request failed",
			zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Error(err))
		httpx.Fail(w, status, "Internal server error", nil)
	case errors.Is(err, gate.ErrUnauthorized):
		httpx.Fail(w, status, "This action is unauthorized.", nil)
	case errors.Is(err, errMalformedBody):
		httpx.Fail(w, status, "Malformed JSON body.", nil)
	default:
		httpx.Fail(w, status, err.Error(), nil)
	}
}

// actor returns the authenticated user id, 0 for anonymous.
func actor(r *http.Request) uint {
	id, _ := auth.UserIDFromContext(r.Context())
	return id
}

// pathID parses the {id} path value.
func pathID(r *http.Request) (uint, error) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, validation.NewError("id", "The id must be a positive integer.")
	}
	return uint(id), nil
}

// decode reads a JSON body into dst. An empty body leaves dst untouched.
func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return errMalformedBody
	}
	return nil
}

func decodeInput(r *http.Request) (validation.Input, error) {
	in := validation.Input{}
	if err := decode(r, &in); err != nil {
		return nil, err
	}
	return in, nil
}

// bulkRequest is the body of every bulk endpoint: ids plus either an action
// or a partial update.
type bulkRequest struct {
	IDs    []uint           `json:"ids"`
	Action string           `json:"action"`
	Data   validation.Input `json:"data"`
}

func decodeBulk(r *http.Request) (bulkRequest, error) {
	var req bulkRequest
	if err := decode(r, &req); err != nil {
		return req, err
	}
	if len(req.IDs) == 0 {
		return req, validation.NewError("ids", "The ids field is required.")
	}
	if req.Action == "" && len(req.Data) == 0 {
		return req, validation.NewError("action", "Either action or data is required.")
	}
	return req, nil
}

func paging(r *http.Request) repository.Paging {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	return repository.Paging{Page: page, PerPage: perPage}
}

func listQuery(r *http.Request) repository.ListQuery {
	return repository.ListQuery{
		Paging: paging(r),
		Search: strings.TrimSpace(r.URL.Query().Get("search")),
		Active: boolParam(r, "is_active"),
	}
}

// boolParam returns nil when the parameter is absent or not a boolean.
func boolParam(r *http.Request, name string) *bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(name))
	if err != nil {
		return nil
	}
	return &v
}

func uintParam(r *http.Request, name string) uint {
	v, _ := strconv.ParseUint(r.URL.Query().Get(name), 10, 64)
	return uint(v)
}

func page[T any](w http.ResponseWriter, p repository.Page[T]) {
	httpx.OK(w, http.StatusOK, p.Items, p.Meta())
}

func bulkDone(w http.ResponseWriter, n int, verb string) {
	httpx.Message(w, http.StatusOK, strconv.Itoa(n)+" records "+verb+".", map[string]int{"affected": n})
}
