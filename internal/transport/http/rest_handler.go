package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"reading-study-service/internal/app"
)

// RESTHandler exposes the participant flow as plain request/response calls.
type RESTHandler struct {
	service        *app.StudyService
	defaultStudyID string
}

func NewRESTHandler(service *app.StudyService, defaultStudyID string) *RESTHandler {
	return &RESTHandler{service: service, defaultStudyID: defaultStudyID}
}

// Mount registers the session routes on r.
func (h *RESTHandler) Mount(r chi.Router) {
	r.Post("/sessions", h.createSession)
	r.Get("/sessions/{sessionID}", h.getSession)
	r.Post("/sessions/{sessionID}/events", h.postEvent)
}

type createSessionRequest struct {
	StudyID       string `json:"studyId"`
	ParticipantID string `json:"participantId"`
}

type eventRequest struct {
	Type string `json:"type"`
	eventPayload
}

func (h *RESTHandler) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorPayload{Code: "bad_request", Message: "invalid json"})
		return
	}
	if req.StudyID == "" {
		req.StudyID = h.defaultStudyID
	}
	if req.StudyID == "" || req.ParticipantID == "" {
		writeJSON(w, http.StatusBadRequest, errorPayload{Code: "bad_request", Message: "studyId and participantId are required"})
		return
	}

	session, err := h.service.StartSession(r.Context(), req.StudyID, req.ParticipantID, r.Header.Get(csrfHeader))
	if err != nil {
		code, status := classify(err)
		writeJSON(w, status, errorPayload{Code: code, Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, statePayload{SessionID: session.ID(), State: session.View()})
}

func (h *RESTHandler) getSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	view, err := h.service.View(r.Context(), sessionID)
	if err != nil {
		code, status := classify(err)
		writeJSON(w, status, errorPayload{Code: code, Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, statePayload{SessionID: sessionID, State: view})
}

func (h *RESTHandler) postEvent(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Type == "" {
		writeJSON(w, http.StatusBadRequest, errorPayload{Code: "bad_request", Message: "event type is required"})
		return
	}

	view, err := h.service.Dispatch(r.Context(), sessionID, toEvent(req.Type, req.eventPayload))
	if err != nil {
		code, status := classify(err)
		writeJSON(w, status, errorPayload{Code: code, Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, statePayload{SessionID: sessionID, State: view})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
