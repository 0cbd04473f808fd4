package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/internal/api/http/handlers"
	"github.com/spec-kit/support-desk/internal/auth"
	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/events"
	"github.com/spec-kit/support-desk/internal/observability"
	"github.com/spec-kit/support-desk/internal/repository"
	"github.com/spec-kit/support-desk/internal/service"
)

type testServer struct {
	app    *fiber.App
	tokens *auth.TokenManager
	store  *repository.MemoryStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store := repository.NewMemoryStore()
	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher(logger)
	tokens := auth.NewTokenManager("test-secret", 10)

	tickets := service.NewTicketService(service.TicketDependencies{Store: store, Dispatcher: dispatcher})
	transitions := service.NewTransitionService(service.TransitionDependencies{Store: store, Dispatcher: dispatcher, Metrics: metrics, Logger: logger})
	assignments := service.NewAssignmentService(service.AssignmentDependencies{Store: store, Dispatcher: dispatcher, Logger: logger})
	reports := service.NewReportService(service.ReportDependencies{Store: store, Logger: logger})

	app := fiber.New()
	RegisterMiddlewares(app, logger, metrics, 0)
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("support-desk", "test", map[string]handlers.Pinger{"store": store}),
		Tickets:        handlers.NewTicketsHandler(tickets, transitions, assignments),
		Reports:        handlers.NewReportsHandler(reports, metrics),
		AuthMiddleware: auth.NewAuthMiddleware(tokens, store.Users()),
	})
	return &testServer{app: app, tokens: tokens, store: store}
}

func (s *testServer) user(t *testing.T, email string, roles ...string) string {
	t.Helper()
	u := &domain.User{Email: email}
	require.NoError(t, s.store.Users().Create(context.Background(), u))
	token, _, err := s.tokens.GenerateToken(*u, roles)
	require.NoError(t, err)
	return token
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code      string         `json:"code"`
		Message   string         `json:"message"`
		Retryable bool           `json:"retryable"`
		Details   map[string]any `json:"details"`
	} `json:"error"`
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &env), string(raw))
	}
	return resp.StatusCode, env
}

func TestTicketWorkflowOverHTTP(t *testing.T) {
	s := newTestServer(t)
	anna := s.user(t, "anna@desk.test", "SUPPORT_EMPLOYEE")
	boris := s.user(t, "boris@desk.test", "SUPPORT_EMPLOYEE")

	status, env := s.do(t, nethttp.MethodPost, "/api/v1/tickets", anna, map[string]any{
		"subject":     "Parcel damaged",
		"author_name": "Jane",
	})
	require.Equal(t, nethttp.StatusCreated, status)
	var created struct {
		ID     int64               `json:"id"`
		Status domain.TicketStatus `json:"status"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.Equal(t, domain.TicketStatusNew, created.Status)
	base := fmt.Sprintf("/api/v1/tickets/%d", created.ID)

	status, _ = s.do(t, nethttp.MethodPost, base+"/transitions", anna, map[string]any{"status": "IN_PROGRESS"})
	require.Equal(t, nethttp.StatusCreated, status)

	status, env = s.do(t, nethttp.MethodPost, base+"/transitions", boris, map[string]any{"status": "POSTPONED", "comment": "mine"})
	assert.Equal(t, nethttp.StatusForbidden, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "FORBIDDEN", env.Error.Code)

	status, env = s.do(t, nethttp.MethodPost, base+"/transitions", anna, map[string]any{"status": "POSTPONED"})
	assert.Equal(t, nethttp.StatusUnprocessableEntity, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "MISSING_COMMENT", env.Error.Code)

	status, _ = s.do(t, nethttp.MethodPost, base+"/transitions", anna, map[string]any{
		"status": "COMPLETED", "comment": "refund issued", "closing_reason": "TRANSFERRED_TO_CLAIMS",
	})
	require.Equal(t, nethttp.StatusCreated, status)

	status, env = s.do(t, nethttp.MethodGet, base, anna, nil)
	require.Equal(t, nethttp.StatusOK, status)
	var detail struct {
		Status             domain.TicketStatus   `json:"status"`
		ClosedAt           *string               `json:"closed_at"`
		AllowedTransitions []domain.TicketStatus `json:"allowed_transitions"`
		Comments           []struct {
			Status domain.TicketStatus `json:"status"`
		} `json:"comments"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &detail))
	assert.Equal(t, domain.TicketStatusCompleted, detail.Status)
	assert.NotNil(t, detail.ClosedAt)
	assert.Empty(t, detail.AllowedTransitions)
	require.Len(t, detail.Comments, 2)
	assert.Equal(t, domain.TicketStatusCompleted, detail.Comments[0].Status)

	status, env = s.do(t, nethttp.MethodPost, base+"/transitions", anna, map[string]any{"status": "IN_PROGRESS", "comment": "reopen"})
	assert.Equal(t, nethttp.StatusUnprocessableEntity, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "INVALID_TRANSITION", env.Error.Code)
}

func TestWorkInProgressCapOverHTTP(t *testing.T) {
	s := newTestServer(t)
	anna := s.user(t, "anna@desk.test", "SUPPORT_EMPLOYEE")

	var last int64
	for i := 0; i < domain.MaxInProgressPerUser+1; i++ {
		status, env := s.do(t, nethttp.MethodPost, "/api/v1/tickets", anna, map[string]any{"subject": fmt.Sprintf("ticket %d", i)})
		require.Equal(t, nethttp.StatusCreated, status)
		var created struct {
			ID int64 `json:"id"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &created))
		last = created.ID
		if i < domain.MaxInProgressPerUser {
			status, _ = s.do(t, nethttp.MethodPost, fmt.Sprintf("/api/v1/tickets/%d/transitions", created.ID), anna, map[string]any{"status": "IN_PROGRESS"})
			require.Equal(t, nethttp.StatusCreated, status)
		}
	}

	status, env := s.do(t, nethttp.MethodPost, fmt.Sprintf("/api/v1/tickets/%d/transitions", last), anna, map[string]any{"status": "IN_PROGRESS"})
	assert.Equal(t, nethttp.StatusConflict, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "TOO_MANY_IN_PROGRESS", env.Error.Code)
	assert.NotNil(t, env.Error.Details["blocking_ticket_id"])
	assert.NotEmpty(t, env.Error.Details["blocking_ticket_subject"])
}

func TestAssignAndReportsRequireSupervisor(t *testing.T) {
	s := newTestServer(t)
	anna := s.user(t, "anna@desk.test", "SUPPORT_EMPLOYEE")
	maria := s.user(t, "maria@desk.test", "SUPPORT_EMPLOYEE", "SUPPORT_MANAGER")

	status, env := s.do(t, nethttp.MethodPost, "/api/v1/tickets", maria, map[string]any{"subject": "escalated"})
	require.Equal(t, nethttp.StatusCreated, status)
	var created struct {
		ID int64 `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assignee := fmt.Sprintf("/api/v1/tickets/%d/assignee", created.ID)

	status, env = s.do(t, nethttp.MethodPut, assignee, anna, map[string]any{"user_id": 1})
	assert.Equal(t, nethttp.StatusForbidden, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "FORBIDDEN", env.Error.Code)

	status, _ = s.do(t, nethttp.MethodPut, assignee, maria, map[string]any{"user_id": 1})
	assert.Equal(t, nethttp.StatusNoContent, status)

	status, env = s.do(t, nethttp.MethodPut, assignee, maria, map[string]any{"user_id": 999})
	assert.Equal(t, nethttp.StatusNotFound, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)

	status, env = s.do(t, nethttp.MethodGet, "/api/v1/reports/sla", anna, nil)
	assert.Equal(t, nethttp.StatusForbidden, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "FORBIDDEN", env.Error.Code)

	status, env = s.do(t, nethttp.MethodGet, "/api/v1/reports/sla", maria, nil)
	require.Equal(t, nethttp.StatusOK, status)
	var snapshot domain.SLASnapshot
	require.NoError(t, json.Unmarshal(env.Data, &snapshot))
	assert.Equal(t, 1, snapshot.TotalTickets)

	status, _ = s.do(t, nethttp.MethodGet, "/api/v1/reports/metrics", maria, nil)
	assert.Equal(t, nethttp.StatusOK, status)
}

func TestAuthentication(t *testing.T) {
	s := newTestServer(t)

	status, env := s.do(t, nethttp.MethodGet, "/api/v1/tickets", "", nil)
	assert.Equal(t, nethttp.StatusUnauthorized, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "UNAUTHORIZED", env.Error.Code)

	status, _ = s.do(t, nethttp.MethodGet, "/api/v1/tickets", "not-a-jwt", nil)
	assert.Equal(t, nethttp.StatusUnauthorized, status)

	// unknown users without a support role are not provisioned
	ghost, _, err := s.tokens.GenerateToken(domain.User{ID: 77, Email: "ghost@desk.test"}, []string{"CUSTOMER"})
	require.NoError(t, err)
	status, env = s.do(t, nethttp.MethodGet, "/api/v1/tickets", ghost, nil)
	assert.Equal(t, nethttp.StatusUnauthorized, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "user not found", env.Error.Message)
	_, err = s.store.Users().GetByID(context.Background(), 77)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	customer := s.user(t, "customer@desk.test", "CUSTOMER")
	status, env = s.do(t, nethttp.MethodGet, "/api/v1/tickets", customer, nil)
	assert.Equal(t, nethttp.StatusForbidden, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "FORBIDDEN", env.Error.Code)

	staff := s.user(t, "staff@desk.test", "SUPPORT_EMPLOYEE")
	status, env = s.do(t, nethttp.MethodGet, "/api/v1/tickets/abc", staff, nil)
	assert.Equal(t, nethttp.StatusBadRequest, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "VALIDATION_FAILED", env.Error.Code)
}

func TestAuthenticationProvisionsStaffFromClaims(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	lead, _, err := s.tokens.GenerateToken(domain.User{ID: 1, Email: "lead@desk.test", FirstName: "Lea"}, []string{"SUPPORT_MANAGER"})
	require.NoError(t, err)
	status, env := s.do(t, nethttp.MethodGet, "/api/v1/tickets", lead, nil)
	require.Equal(t, nethttp.StatusOK, status, "%+v", env.Error)

	stored, err := s.store.Users().GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "lead@desk.test", stored.Email)
	assert.Equal(t, "Lea", stored.FirstName)

	// an employee provisioned on first request can own what they create
	agent, _, err := s.tokens.GenerateToken(domain.User{ID: 2, Email: "agent@desk.test"}, []string{"SUPPORT_EMPLOYEE"})
	require.NoError(t, err)
	status, env = s.do(t, nethttp.MethodPost, "/api/v1/tickets", agent, map[string]any{"subject": "Refund pending"})
	require.Equal(t, nethttp.StatusCreated, status, "%+v", env.Error)
	var created struct {
		ID      int64 `json:"id"`
		OwnerID int64 `json:"owner_id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.Equal(t, int64(2), created.OwnerID)

	status, env = s.do(t, nethttp.MethodPost, fmt.Sprintf("/api/v1/tickets/%d/transitions", created.ID), agent, map[string]any{"status": "IN_PROGRESS"})
	require.Equal(t, nethttp.StatusCreated, status, "%+v", env.Error)

	// later tokens refresh the stored profile
	renamed, _, err := s.tokens.GenerateToken(domain.User{ID: 1, Email: "lead@desk.test", FirstName: "Leah", LastName: "Berg"}, []string{"SUPPORT_MANAGER"})
	require.NoError(t, err)
	status, _ = s.do(t, nethttp.MethodGet, "/api/v1/tickets", renamed, nil)
	require.Equal(t, nethttp.StatusOK, status)
	stored, err = s.store.Users().GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Leah Berg", stored.FullName())

	// an email owned by another user is refused
	impostor, _, err := s.tokens.GenerateToken(domain.User{ID: 3, Email: "LEAD@desk.test"}, []string{"SUPPORT_EMPLOYEE"})
	require.NoError(t, err)
	status, _ = s.do(t, nethttp.MethodGet, "/api/v1/tickets", impostor, nil)
	assert.Equal(t, nethttp.StatusUnauthorized, status)
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t)

	status, _ := s.do(t, nethttp.MethodGet, "/health/live", "", nil)
	assert.Equal(t, nethttp.StatusOK, status)

	status, _ = s.do(t, nethttp.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, nethttp.StatusOK, status)
}
