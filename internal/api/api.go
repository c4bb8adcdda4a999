// Package api holds the JSON contract shared by the HTTP server and the
// API Gateway handler: the session surface they drive, the request and
// response bodies, and the mapping from session errors to status codes.
package api

import (
	"context"
	"net/http"

	"chat-widget/internal/domain"
	"chat-widget/internal/render"
	"chat-widget/internal/usecase"
)

// ReasonInvalidBody is reported when a message request cannot be decoded.
const ReasonInvalidBody = "invalid_body"

// Session is the part of usecase.ChatSession the transports drive.
type Session interface {
	Send(ctx context.Context, text string) (usecase.SendOutput, error)
	Clear(ctx context.Context) error
	Snapshot() ([]domain.Message, bool)
}

type MessageRequest struct {
	Message string `json:"message"`
}

type MessageResponse struct {
	User   render.MessageView `json:"user"`
	Reply  render.MessageView `json:"reply"`
	Failed bool               `json:"failed"`
	Typing bool               `json:"typing"`
}

type TranscriptResponse struct {
	Messages []render.MessageView `json:"messages"`
	Typing   bool                 `json:"typing"`
}

type ErrorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

func NewMessageResponse(out usecase.SendOutput, typing bool, f render.Formatter) MessageResponse {
	return MessageResponse{
		User:   render.View(out.User, f),
		Reply:  render.View(out.Reply, f),
		Failed: out.Failed,
		Typing: typing,
	}
}

func NewTranscriptResponse(msgs []domain.Message, typing bool, f render.Formatter) TranscriptResponse {
	return TranscriptResponse{Messages: render.Views(msgs, f), Typing: typing}
}

// InvalidBody is the 400 body for a request that is not a MessageRequest.
func InvalidBody() ErrorResponse {
	return ErrorResponse{Error: string(usecase.ErrorInvalidInput), Reason: ReasonInvalidBody}
}

// StatusFor maps a session error to its HTTP status and response body.
// Unclassified errors are 500s.
func StatusFor(err error) (int, ErrorResponse) {
	code, reason := usecase.Classify(err)
	body := ErrorResponse{Error: string(code), Reason: reason}
	switch code {
	case usecase.ErrorInvalidInput:
		return http.StatusBadRequest, body
	case usecase.ErrorBusy:
		return http.StatusConflict, body
	default:
		return http.StatusInternalServerError, body
	}
}
