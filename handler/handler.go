package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"chat-widget/internal/api"
	"chat-widget/internal/render"
)

const correlationHeader = "X-Correlation-Id"

type Handler struct {
	session   api.Session
	formatter render.Formatter
	log       *slog.Logger
}

type Option func(*Handler)

func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		h.log = l
	}
}

func NewHandler(session api.Session, formatter render.Formatter, opts ...Option) (*Handler, error) {
	if session == nil {
		return nil, errors.New("handler: session must not be nil")
	}
	if formatter == nil {
		return nil, errors.New("handler: formatter must not be nil")
	}
	h := &Handler{session: session, formatter: formatter, log: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	if h.log == nil {
		h.log = slog.Default()
	}
	return h, nil
}

// Handle routes on method and the last path segment so the function works
// behind any stage or base path.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	corrID := correlationID(req.Headers)
	log := h.log.With("correlation_id", corrID, "method", req.HTTPMethod, "path", req.Path)

	path := strings.TrimRight(req.Path, "/")
	switch {
	case req.HTTPMethod == http.MethodPost && strings.HasSuffix(path, "/messages"):
		return h.postMessage(ctx, log, corrID, req), nil
	case req.HTTPMethod == http.MethodGet && strings.HasSuffix(path, "/transcript"):
		msgs, typing := h.session.Snapshot()
		return jsonResponse(http.StatusOK, corrID, api.NewTranscriptResponse(msgs, typing, h.formatter)), nil
	case req.HTTPMethod == http.MethodDelete && strings.HasSuffix(path, "/transcript"):
		if err := h.session.Clear(ctx); err != nil {
			return h.errorResponse(log, corrID, err), nil
		}
		return events.APIGatewayProxyResponse{
			StatusCode: http.StatusNoContent,
			Headers:    map[string]string{correlationHeader: corrID},
		}, nil
	default:
		return jsonResponse(http.StatusNotFound, corrID, api.ErrorResponse{Error: "NOT_FOUND"}), nil
	}
}

func (h *Handler) postMessage(ctx context.Context, log *slog.Logger, corrID string, req events.APIGatewayProxyRequest) events.APIGatewayProxyResponse {
	body, err := requestBody(req)
	if err != nil {
		log.Warn("request body is not valid base64", "err", err)
		return jsonResponse(http.StatusBadRequest, corrID, api.InvalidBody())
	}
	var in api.MessageRequest
	if err := json.Unmarshal(body, &in); err != nil {
		return jsonResponse(http.StatusBadRequest, corrID, api.InvalidBody())
	}
	out, err := h.session.Send(ctx, in.Message)
	if err != nil {
		return h.errorResponse(log, corrID, err)
	}
	if out.Failed {
		log.Warn("reply replaced with apology")
	}
	_, typing := h.session.Snapshot()
	return jsonResponse(http.StatusOK, corrID, api.NewMessageResponse(out, typing, h.formatter))
}

// requestBody returns the raw body, decoding it when API Gateway delivered it
// base64-encoded (binary media types or some proxy setups).
func requestBody(req events.APIGatewayProxyRequest) ([]byte, error) {
	if !req.IsBase64Encoded {
		return []byte(req.Body), nil
	}
	return base64.StdEncoding.DecodeString(req.Body)
}

func (h *Handler) errorResponse(log *slog.Logger, corrID string, err error) events.APIGatewayProxyResponse {
	status, body := api.StatusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error("request failed", "code", body.Error, "reason", body.Reason, "err", err)
	}
	return jsonResponse(status, corrID, body)
}

func correlationID(headers map[string]string) string {
	for k, v := range headers {
		if strings.EqualFold(k, correlationHeader) && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return uuid.NewString()
}

func jsonResponse(status int, corrID string, v any) events.APIGatewayProxyResponse {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"error":"INTERNAL_ERROR"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":    "application/json",
			correlationHeader: corrID,
		},
		Body: string(body),
	}
}
