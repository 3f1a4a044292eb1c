package http

import (
	"errors"
	"net/http"

	"reading-study-service/internal/domain"
)

// csrfHeader carries the participant's anti-forgery token; it is passed through to the collaborator.
const csrfHeader = "X-CSRFToken"

// eventPayload is the wire form of a participant trigger.
type eventPayload struct {
	Text     *string `json:"text,omitempty"`
	Position float64 `json:"position,omitempty"`
}

func toEvent(kind string, p eventPayload) domain.Event {
	ev := domain.Event{Trigger: domain.Trigger(kind), Position: p.Position}
	if p.Text != nil {
		ev.Text = *p.Text
		ev.HasText = true
	}
	return ev
}

type statePayload struct {
	SessionID string      `json:"sessionId"`
	State     domain.View `json:"state"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// classify maps service errors to a stable code and HTTP status.
func classify(err error) (string, int) {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		return "session_not_found", http.StatusNotFound
	case errors.Is(err, domain.ErrStudyNotFound):
		return "study_not_found", http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidDefinition):
		return "study_unavailable", http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrInvalidTrigger):
		return "invalid_trigger", http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrSessionFinished):
		return "session_finished", http.StatusConflict
	default:
		return "internal", http.StatusBadGateway
	}
}
