package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diewo77/go-catalog/internal/gate"
	"github.com/diewo77/go-catalog/internal/httpx"
	"github.com/diewo77/go-catalog/internal/services"
	"github.com/diewo77/go-catalog/internal/validation"
)

func TestWriteError_Status(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{validation.NewError("name", "The name field is required."), http.StatusUnprocessableEntity},
		{&services.Error{Kind: services.ErrBusinessRule, Message: "in use"}, http.StatusConflict},
		{&services.Error{Kind: services.ErrSelfDeletion, Message: "self"}, http.StatusForbidden},
		{&services.Error{Kind: services.ErrInactiveUser, Message: "inactive"}, http.StatusForbidden},
		{&services.Error{Kind: services.ErrNotFound, Message: "missing"}, http.StatusNotFound},
		{&services.Error{Kind: services.ErrRoleNotFound, Message: "no role"}, http.StatusNotFound},
		{&services.Error{Kind: services.ErrInvalidOperation, Message: "bad op"}, http.StatusBadRequest},
		{&services.Error{Kind: services.ErrInvalidArgument, Message: "bad arg"}, http.StatusBadRequest},
		{&services.Error{Kind: services.ErrInvalidCredentials, Message: "nope"}, http.StatusUnauthorized},
		{fmt.Errorf("role check: %w", gate.ErrUnauthorized), http.StatusForbidden},
		{errMalformedBody, http.StatusBadRequest},
		{errors.New("connection reset"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, httptest.NewRequest(http.MethodGet, "/", nil), tt.err)
			assert.Equal(t, tt.want, rec.Code)

			var env httpx.Envelope
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
			assert.False(t, env.Success)
			assert.NotEmpty(t, env.Message)
		})
	}
}

func TestWriteError_HidesInternalErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, httptest.NewRequest(http.MethodGet, "/", nil), errors.New("pq: password authentication failed"))
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestWriteError_ValidationDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, httptest.NewRequest(http.MethodGet, "/", nil), validation.NewError("price", "The price must be at least 0."))

	var env struct {
		Message string            `json:"message"`
		Error   map[string]string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, "The price must be at least 0.", env.Message)
	assert.Equal(t, map[string]string{"price": "The price must be at least 0."}, env.Error)
}

func TestDecodeBulk(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"action", `{"ids":[1,2],"action":"activate"}`, false},
		{"data", `{"ids":[1],"data":{"is_active":false}}`, false},
		{"no ids", `{"action":"delete"}`, true},
		{"nothing to do", `{"ids":[1]}`, true},
		{"malformed", `{"ids":`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			_, err := decodeBulk(req)
			assert.Equal(t, tt.wantErr, err != nil, "err = %v", err)
		})
	}
}

func TestQueryParams(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?page=2&per_page=5&search=+lap+&is_active=false&category_id=7&low_stock=1&trashed=only", nil)

	q := productQuery(req)
	assert.Equal(t, 2, q.Page)
	assert.Equal(t, 5, q.PerPage)
	assert.Equal(t, "lap", q.Search)
	require.NotNil(t, q.Active)
	assert.False(t, *q.Active)
	assert.Equal(t, uint(7), q.CategoryID)
	assert.True(t, q.LowStock)
	assert.False(t, q.OutOfStock)
	assert.Equal(t, "only", string(q.Trashed))

	req = httptest.NewRequest(http.MethodGet, "/?is_active=maybe", nil)
	assert.Nil(t, listQuery(req).Active)
}

func TestPathID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.SetPathValue("id", "42")
	id, err := pathID(req)
	require.NoError(t, err)
	assert.Equal(t, uint(42), id)

	req.SetPathValue("id", "abc")
	_, err = pathID(req)
	var verr *validation.Error
	assert.ErrorAs(t, err, &verr)
}
