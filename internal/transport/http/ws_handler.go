package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"reading-study-service/internal/app"
	"reading-study-service/internal/domain"
)

type WSHandler struct {
	service        *app.StudyService
	defaultStudyID string
	upgrader       websocket.Upgrader
}

// NewWSHandler accepts browser upgrades only from allowedOrigins, the same
// list the REST routes use for CORS. A "*" entry allows any origin.
func NewWSHandler(service *app.StudyService, defaultStudyID string, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		service:        service,
		defaultStudyID: defaultStudyID,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

// originChecker admits requests without an Origin header (non-browser
// clients), same-host requests and the listed origins.
func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || strings.EqualFold(o, origin) {
				return true
			}
		}
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

// ServeWS upgrades the request and runs one participant session over the socket.
// Frames are handled one at a time, so triggers reach the flow controller in arrival order.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	studyID := r.URL.Query().Get("studyId")
	if studyID == "" {
		studyID = h.defaultStudyID
	}
	participantID := r.URL.Query().Get("participantId")
	if studyID == "" || participantID == "" {
		http.Error(w, "missing studyId or participantId", http.StatusBadRequest)
		return
	}
	token := r.Header.Get(csrfHeader)
	if token == "" {
		token = r.URL.Query().Get("csrfToken")
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	session, err := h.service.StartSession(r.Context(), studyID, participantID, token)
	if err != nil {
		// The participant sees nothing to interact with; the cause is already logged.
		writeError(conn, err)
		return
	}
	sessionID := session.ID()
	// Sessions cannot be resumed, so a closed socket ends the run.
	defer h.service.Abandon(sessionID)
	if !writeState(conn, sessionID, session.View()) {
		return
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("ws read ended", "session_id", sessionID, "error", err)
			}
			return
		}

		var payload eventPayload
		if len(inbound.Payload) > 0 {
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Code: "bad_request", Message: "invalid payload"}})
				continue
			}
		}

		view, err := h.service.Dispatch(r.Context(), sessionID, toEvent(inbound.Type, payload))
		if err != nil {
			if !writeError(conn, err) {
				return
			}
			continue
		}
		if !writeState(conn, sessionID, view) {
			return
		}
		if view.Screen == domain.ScreenFinished {
			deadline := time.Now().Add(time.Second)
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "study finished"), deadline)
			return
		}
	}
}

func writeState(conn *websocket.Conn, sessionID string, view domain.View) bool {
	err := conn.WriteJSON(outboundMessage[statePayload]{Type: "state", Payload: statePayload{SessionID: sessionID, State: view}})
	if err != nil {
		slog.Debug("ws write error", "session_id", sessionID, "error", err)
		return false
	}
	return true
}

func writeError(conn *websocket.Conn, err error) bool {
	code, _ := classify(err)
	if werr := conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Code: code, Message: err.Error()}}); werr != nil {
		slog.Debug("ws write error", "error", werr)
		return false
	}
	return true
}
