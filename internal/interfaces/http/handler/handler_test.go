package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	billingapp "github.com/crewdesk/backend/internal/application/billing"
	"github.com/crewdesk/backend/internal/domain/organization"
	"github.com/crewdesk/backend/internal/domain/shared"
	"github.com/crewdesk/backend/internal/infrastructure/billing"
	"github.com/crewdesk/backend/internal/interfaces/http/dto"
	"github.com/crewdesk/backend/internal/interfaces/http/middleware"
	"github.com/crewdesk/backend/tests/testutil"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
	middleware.SetupValidator()
}

func serve(t *testing.T, method, path, body string, h gin.HandlerFunc, route string) *httptest.ResponseRecorder {
	t.Helper()
	r := gin.New()
	r.Use(middleware.RequestID())
	r.Handle(method, route, h)
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandleError(t *testing.T) {
	var h BaseHandler
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not found", shared.NotFound("Job"), http.StatusNotFound, dto.ErrCodeNotFound},
		{"wrapped invalid state", fmt.Errorf("complete: %w", shared.InvalidState("Job already completed")), http.StatusUnprocessableEntity, dto.ErrCodeInvalidState},
		{"identity code", shared.NewDomainError("INVALID_CREDENTIALS", "Invalid email or password"), http.StatusUnauthorized, dto.ErrCodeInvalidCredentials},
		{"plan limit", shared.NewDomainError("PAYMENT_REQUIRED", "Upgrade to add members"), http.StatusPaymentRequired, dto.ErrCodePaymentRequired},
		{"unexpected", errors.New("pq: connection reset"), http.StatusInternalServerError, dto.ErrCodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(t, http.MethodGet, "/x", "", func(c *gin.Context) { h.HandleError(c, tt.err) }, "/x")
			testutil.AssertErrorCode(t, w, tt.status, tt.code)
			env := testutil.DecodeEnvelope(t, w)
			assert.NotEmpty(t, env.Error.RequestID)
			assert.NotContains(t, w.Body.String(), "pq:", "internal errors are not exposed")
		})
	}
}

func TestBindJSON(t *testing.T) {
	var h BaseHandler
	type body struct {
		Name  string `json:"name" binding:"required"`
		Email string `json:"email" binding:"omitempty,email"`
	}
	handle := func(c *gin.Context) {
		var req body
		if !h.bindJSON(c, &req) {
			return
		}
		h.Success(c, req)
	}

	t.Run("validation failure lists fields", func(t *testing.T) {
		w := serve(t, http.MethodPost, "/x", `{"email":"nope"}`, handle, "/x")
		testutil.AssertErrorCode(t, w, http.StatusBadRequest, dto.ErrCodeValidation)
		assert.Contains(t, w.Body.String(), `"field":"name"`)
		assert.Contains(t, w.Body.String(), `"field":"email"`)
	})

	t.Run("malformed body", func(t *testing.T) {
		w := serve(t, http.MethodPost, "/x", `{"name":`, handle, "/x")
		testutil.AssertErrorCode(t, w, http.StatusBadRequest, dto.ErrCodeInvalidJSON)
	})

	t.Run("valid body", func(t *testing.T) {
		w := serve(t, http.MethodPost, "/x", `{"name":"Dana"}`, handle, "/x")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "Dana", testutil.DecodeData[body](t, w).Name)
	})
}

func TestPathID(t *testing.T) {
	var h BaseHandler
	handle := func(c *gin.Context) {
		id, ok := h.pathID(c, "id")
		if !ok {
			return
		}
		h.Success(c, id)
	}

	w := serve(t, http.MethodGet, "/jobs/abc", "", handle, "/jobs/:id")
	testutil.AssertErrorCode(t, w, http.StatusBadRequest, dto.ErrCodeBadRequest)

	id := uuid.New()
	w = serve(t, http.MethodGet, "/jobs/"+id.String(), "", handle, "/jobs/:id")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, id, testutil.DecodeData[uuid.UUID](t, w))
}

func TestPageWritesEmptyList(t *testing.T) {
	page := shared.NewPaginated[string](nil, 0, 1, 20)
	w := serve(t, http.MethodGet, "/x", "", func(c *gin.Context) { Page(c, &page) }, "/x")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"data":[]`)
	assert.Contains(t, w.Body.String(), `"total":0`)
}

func TestActorRestrictsTechnicians(t *testing.T) {
	userID := uuid.New()
	for role, assignedOnly := range map[organization.Role]bool{
		organization.RoleTechnician: true,
		organization.RoleDispatcher: false,
		organization.RoleOwner:      false,
	} {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Set(middleware.UserIDKey, userID)
		c.Set(middleware.RoleKey, role)
		a := actor(c)
		assert.Equal(t, userID, a.UserID)
		assert.Equal(t, assignedOnly, a.AssignedOnly, string(role))
	}
}

func TestWebhookRespond(t *testing.T) {
	h := NewWebhookHandler(nil)

	t.Run("bad signature is 401", func(t *testing.T) {
		err := fmt.Errorf("%w: bad authorization", billing.ErrInvalidSignature)
		w := serve(t, http.MethodPost, "/hook", "", func(c *gin.Context) { h.respond(c, nil, err) }, "/hook")
		testutil.AssertErrorCode(t, w, http.StatusUnauthorized, dto.ErrCodeUnauthorized)
	})

	t.Run("unprocessed delivery is still acknowledged", func(t *testing.T) {
		result := &billingapp.WebhookResult{Provider: "polar", Message: "unknown organization"}
		w := serve(t, http.MethodPost, "/hook", "", func(c *gin.Context) { h.respond(c, result, nil) }, "/hook")
		require.Equal(t, http.StatusOK, w.Code)
		got := testutil.DecodeData[billingapp.WebhookResult](t, w)
		assert.False(t, got.Processed)
		assert.Equal(t, "unknown organization", got.Message)
	})
}

func TestOptionalBodies(t *testing.T) {
	var h BaseHandler
	handle := func(c *gin.Context) {
		var req struct {
			Reason string `json:"reason" binding:"max=5"`
		}
		if c.Request.ContentLength > 0 && !h.bindJSON(c, &req) {
			return
		}
		h.Success(c, req.Reason)
	}

	w := serve(t, http.MethodPost, "/x", "", handle, "/x")
	require.Equal(t, http.StatusOK, w.Code)

	w = serve(t, http.MethodPost, "/x", `{"reason":"far too long"}`, handle, "/x")
	testutil.AssertErrorCode(t, w, http.StatusBadRequest, dto.ErrCodeValidation)
}

func TestWebhookOutcome(t *testing.T) {
	assert.Equal(t, "invalid_signature", webhookOutcome(nil, fmt.Errorf("%w: stale", billing.ErrInvalidSignature)))
	assert.Equal(t, "error", webhookOutcome(nil, errors.New("db down")))
	assert.Equal(t, "duplicate", webhookOutcome(&billingapp.WebhookResult{Duplicate: true}, nil))
	assert.Equal(t, "processed", webhookOutcome(&billingapp.WebhookResult{Processed: true}, nil))
	assert.Equal(t, "ignored", webhookOutcome(&billingapp.WebhookResult{}, nil))
}
