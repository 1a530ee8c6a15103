package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/gocrack/pkg/coordinator"
	"github.com/3leaps/gocrack/pkg/directory"
	"github.com/3leaps/gocrack/pkg/partition"
	"github.com/3leaps/gocrack/pkg/taskstore"
)

func TestFromError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"unknown task", fmt.Errorf("lookup: %w", taskstore.ErrNotFound), http.StatusNotFound, CodeNotFound},
		{"unknown minion", directory.ErrNotFound, http.StatusNotFound, CodeNotFound},
		{"not assigned", taskstore.ErrNotAssigned, http.StatusConflict, CodeNotAssigned},
		{"invalid range", partition.ErrInvalidRange, http.StatusBadRequest, CodeInvalidRange},
		{"invalid hash", coordinator.ErrInvalidHash, http.StatusBadRequest, CodeInvalidHash},
		{"empty payload", coordinator.ErrEmptyPayload, http.StatusBadRequest, CodeInvalidPayload},
		{"unexpected", stderrors.New("disk on fire"), http.StatusInternalServerError, CodeInternal},
		{"app error passthrough", NewInvalidPayload("bad body", nil), http.StatusBadRequest, CodeInvalidPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromError(tt.err)
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.Equal(t, tt.wantCode, got.Code)
		})
	}
}

func TestRespondWithError(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/task-status", nil)
	req = req.WithContext(WithRequestID(req.Context(), "req-42"))
	rec := httptest.NewRecorder()

	RespondWithError(rec, req, fmt.Errorf("%w: abc_0", taskstore.ErrNotFound))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body HTTPErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, CodeNotFound, body.Error.Code)
	assert.Equal(t, "req-42", body.Error.RequestID)
	assert.Contains(t, body.Error.Message, "abc_0")
}

func TestRespondWithError_Details(t *testing.T) {
	rec := httptest.NewRecorder()
	err := NewInvalidPayload("bad hash file", nil).WithDetails(map[string]any{"line": 3})

	RespondWithError(rec, nil, err)

	var body HTTPErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, float64(3), body.Error.Details["line"])
}

func TestAppErrorUnwrap(t *testing.T) {
	cause := stderrors.New("cause")
	err := WrapInternal(cause, "wrapped")
	assert.True(t, stderrors.Is(err, cause))
	assert.Equal(t, "wrapped: cause", err.Error())
}

func TestRequestIDFromContext(t *testing.T) {
	assert.Empty(t, RequestIDFromContext(context.Background()))
	ctx := WithRequestID(context.Background(), "abc")
	assert.Equal(t, "abc", RequestIDFromContext(ctx))
}
