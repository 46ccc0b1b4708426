package dto

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/crewdesk/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetHTTPStatus(t *testing.T) {
	tests := []struct {
		code     string
		expected int
	}{
		{ErrCodeInternal, http.StatusInternalServerError},
		{ErrCodeValidation, http.StatusBadRequest},
		{ErrCodeInvalidInput, http.StatusBadRequest},
		{ErrCodeUnauthorized, http.StatusUnauthorized},
		{ErrCodeTokenRevoked, http.StatusUnauthorized},
		{ErrCodeForbidden, http.StatusForbidden},
		{ErrCodePaymentRequired, http.StatusPaymentRequired},
		{ErrCodeNotFound, http.StatusNotFound},
		{ErrCodeAlreadyExists, http.StatusConflict},
		{ErrCodeConcurrencyConflict, http.StatusConflict},
		{ErrCodeInvalidState, http.StatusUnprocessableEntity},
		{ErrCodeRateLimited, http.StatusTooManyRequests},
		{"SOMETHING_ELSE", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.expected, GetHTTPStatus(tt.code))
		})
	}
}

func TestNormalizeErrorCode_DomainSentinels(t *testing.T) {
	sentinels := []*shared.DomainError{
		shared.ErrNotFound,
		shared.ErrAlreadyExists,
		shared.ErrInvalidInput,
		shared.ErrConcurrencyConflict,
		shared.ErrUnauthorized,
		shared.ErrForbidden,
		shared.ErrInvalidState,
		shared.ErrRateLimited,
		shared.ErrPaymentRequired,
	}
	for _, s := range sentinels {
		code := NormalizeErrorCode(s.Code)
		assert.Contains(t, ErrorCodeHTTPStatus, code, "no status for %s", s.Code)
	}

	assert.Equal(t, ErrCodeNotFound, NormalizeErrorCode("NOT_FOUND"))
	assert.Equal(t, http.StatusUnauthorized, GetHTTPStatus(NormalizeErrorCode("INVALID_CREDENTIALS")))
	assert.Equal(t, http.StatusLocked, GetHTTPStatus(NormalizeErrorCode("ACCOUNT_LOCKED")))
	assert.Equal(t, http.StatusUnauthorized, GetHTTPStatus(NormalizeErrorCode("TOKEN_REVOKED")))
	assert.Equal(t, ErrCodeInvalidJSON, NormalizeErrorCode(ErrCodeInvalidJSON))
	assert.Equal(t, "CUSTOM", NormalizeErrorCode("CUSTOM"))
}

func TestNewSuccessResponseWithMeta(t *testing.T) {
	resp := NewSuccessResponseWithMeta([]int{1, 2}, 41, 2, 20)
	require.NotNil(t, resp.Meta)
	assert.True(t, resp.Success)
	assert.Equal(t, 3, resp.Meta.TotalPages)

	empty := NewSuccessResponseWithMeta(nil, 0, 1, 0)
	assert.Equal(t, 0, empty.Meta.TotalPages)
}

func TestNewPageResponse_EmptyItemsEncodeAsArray(t *testing.T) {
	page := shared.NewPaginated[string](nil, 0, 1, 20)
	body, err := json.Marshal(NewPageResponse(&page))
	require.NoError(t, err)
	assert.Contains(t, string(body), `"data":[]`)
	assert.Contains(t, string(body), `"total":0`)
}

func TestNewValidationErrorResponse(t *testing.T) {
	resp := NewValidationErrorResponse("Validation failed", "req-1", []ValidationDetail{
		{Field: "email", Message: "email is required"},
	})

	body, err := json.Marshal(resp)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, false, decoded["success"])
	errObj := decoded["error"].(map[string]any)
	assert.Equal(t, ErrCodeValidation, errObj["code"])
	assert.Equal(t, "req-1", errObj["request_id"])
	assert.Len(t, errObj["details"], 1)
}
