package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"orderbridge/internal/usecase"
)

const (
	headerCorrelationID = "X-Correlation-Id"
	headerAdminToken    = "X-Admin-Token"
	sessionsPrefix      = "/sessions/"
)

type SessionAdmin interface {
	Authorize(ctx context.Context, token string) error
	Status(ctx context.Context, tenantKey string) (usecase.SessionStatus, error)
	Teardown(ctx context.Context, tenantKey string) (string, error)
}

type Handler struct {
	admin SessionAdmin
}

type statusResponse struct {
	TenantKey string `json:"tenantKey"`
	Exists    bool   `json:"exists"`
}

type deleteResponse struct {
	TenantKey string `json:"tenantKey"`
	Deleted   bool   `json:"deleted"`
}

type errorResponse struct {
	Error         string `json:"error"`
	CorrelationID string `json:"correlationId"`
}

func NewHandler(admin SessionAdmin) (*Handler, error) {
	if admin == nil {
		return nil, errors.New("handler: session admin must not be nil")
	}
	return &Handler{admin: admin}, nil
}

// Handle serves GET and DELETE on /sessions/{tenant}.
func (h *Handler) Handle(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := header(event.Headers, headerCorrelationID)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	tenantKey, ok := tenantFromRequest(event)
	if !ok {
		return errorJSON(http.StatusNotFound, usecase.ErrorNotFound, correlationID), nil
	}
	if event.HTTPMethod != http.MethodGet && event.HTTPMethod != http.MethodDelete {
		return errorJSON(http.StatusNotFound, usecase.ErrorNotFound, correlationID), nil
	}

	if err := h.admin.Authorize(ctx, header(event.Headers, headerAdminToken)); err != nil {
		return h.fail(err, event.HTTPMethod, correlationID), nil
	}

	switch event.HTTPMethod {
	case http.MethodGet:
		st, err := h.admin.Status(ctx, tenantKey)
		if err != nil {
			return h.fail(err, event.HTTPMethod, correlationID), nil
		}
		return okJSON(statusResponse{TenantKey: st.TenantKey, Exists: st.Exists}, correlationID), nil
	default:
		deleted, err := h.admin.Teardown(ctx, tenantKey)
		if err != nil {
			return h.fail(err, event.HTTPMethod, correlationID), nil
		}
		slog.Info("session torn down", "tenant", deleted, "correlation_id", correlationID)
		return okJSON(deleteResponse{TenantKey: deleted, Deleted: true}, correlationID), nil
	}
}

func (h *Handler) fail(err error, method, correlationID string) events.APIGatewayProxyResponse {
	code := usecase.CodeOf(err)
	status := statusFor(code)
	if status >= http.StatusInternalServerError {
		slog.Error("admin request failed", "method", method, "code", code, "reason", usecase.ReasonOf(err), "correlation_id", correlationID, "err", err)
	} else {
		slog.Warn("admin request rejected", "method", method, "code", code, "reason", usecase.ReasonOf(err), "correlation_id", correlationID)
	}
	return errorJSON(status, code, correlationID)
}

func statusFor(code usecase.ErrorCode) int {
	switch code {
	case usecase.ErrorInvalidInput:
		return http.StatusBadRequest
	case usecase.ErrorUnauthorized:
		return http.StatusUnauthorized
	case usecase.ErrorNotFound:
		return http.StatusNotFound
	case usecase.ErrorUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func tenantFromRequest(event events.APIGatewayProxyRequest) (string, bool) {
	if v, ok := event.PathParameters["tenant"]; ok {
		return v, true
	}
	rest, ok := strings.CutPrefix(event.Path, sessionsPrefix)
	if !ok || strings.Contains(rest, "/") {
		return "", false
	}
	return rest, true
}

// header looks up key case-insensitively.
func header(headers map[string]string, key string) string {
	if v, ok := headers[key]; ok {
		return strings.TrimSpace(v)
	}
	for k, v := range headers {
		if strings.EqualFold(k, key) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func okJSON(v any, correlationID string) events.APIGatewayProxyResponse {
	body, err := json.Marshal(v)
	if err != nil {
		return errorJSON(http.StatusInternalServerError, usecase.ErrorInternal, correlationID)
	}
	return respond(http.StatusOK, string(body), correlationID)
}

func errorJSON(status int, code usecase.ErrorCode, correlationID string) events.APIGatewayProxyResponse {
	body, _ := json.Marshal(errorResponse{Error: string(code), CorrelationID: correlationID})
	return respond(status, string(body), correlationID)
}

func respond(status int, body, correlationID string) events.APIGatewayProxyResponse {
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":      "application/json",
			headerCorrelationID: correlationID,
		},
		Body: body,
	}
}
