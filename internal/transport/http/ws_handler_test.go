package http

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"reading-study-service/internal/app"
	"reading-study-service/internal/domain"
	"reading-study-service/internal/infra/memory"
)

func TestWebSocketStudyFlow(t *testing.T) {
	service, sink := newTestService()
	server := httptest.NewServer(NewRouter(service, RouterOptions{DefaultStudyID: "study-1", Logger: quietLogger()}))
	defer server.Close()

	u := "ws" + server.URL[len("http"):] + "/ws?participantId=p1&csrfToken=tok"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	state := readState(t, conn)
	if state.State.Screen != domain.ScreenNotStarted || state.SessionID == "" {
		t.Fatalf("unexpected initial state %+v", state)
	}

	send(t, conn, "start", nil)
	if s := readState(t, conn); s.State.Screen != domain.ScreenStory || s.State.Story != "S" {
		t.Fatalf("expected story screen, got %+v", s.State)
	}
	send(t, conn, "scroll", map[string]any{"position": 120})
	readState(t, conn)
	send(t, conn, "scroll", map[string]any{"position": 40})
	readState(t, conn)

	// Wrong trigger yields an error frame and keeps the session usable.
	send(t, conn, "submit", map[string]any{"text": "early"})
	if msg := readMessage(t, conn); msg.Type != "error" || msg.Payload["code"] != "invalid_trigger" {
		t.Fatalf("expected invalid_trigger error, got %+v", msg)
	}

	for _, step := range []string{"continue", "continue", "continue", "proceed"} {
		send(t, conn, step, nil)
		readState(t, conn)
	}
	send(t, conn, "submit", map[string]any{"text": "one two three"})
	if s := readState(t, conn); s.State.Screen != domain.ScreenResponse || !s.State.ValidationFailed {
		t.Fatalf("expected validation failure, got %+v", s.State)
	}
	send(t, conn, "submit", map[string]any{"text": "yes ok"})
	if s := readState(t, conn); s.State.Screen != domain.ScreenStory || s.State.ContextIndex != 1 {
		t.Fatalf("expected story for second context, got %+v", s.State)
	}

	for _, step := range []string{"continue", "continue", "continue", "proceed"} {
		send(t, conn, step, nil)
		readState(t, conn)
	}
	send(t, conn, "input", map[string]any{"text": "no way"})
	readState(t, conn)
	send(t, conn, "submit", nil)
	if s := readState(t, conn); s.State.Screen != domain.ScreenFinished || s.State.Answered != 2 {
		t.Fatalf("expected finished, got %+v", s.State)
	}

	service.Wait()
	entries := sink.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected one submission, got %d", len(entries))
	}
	first := entries[0].Submission.StudentResponses[0]
	if first.Response != "yes ok" || first.RereadCount != 1 || entries[0].CSRFToken != "tok" {
		t.Fatalf("unexpected submission %+v", entries[0])
	}
}

func TestWebSocketUnknownStudy(t *testing.T) {
	service, _ := newTestService()
	server := httptest.NewServer(NewRouter(service, RouterOptions{Logger: quietLogger()}))
	defer server.Close()

	u := "ws" + server.URL[len("http"):] + "/ws?studyId=missing&participantId=p1"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if msg := readMessage(t, conn); msg.Type != "error" || msg.Payload["code"] != "study_not_found" {
		t.Fatalf("expected study_not_found, got %+v", msg)
	}
}

func TestWebSocketDisconnectDiscardsSession(t *testing.T) {
	service, sink := newTestService()
	server := httptest.NewServer(NewRouter(service, RouterOptions{DefaultStudyID: "study-1", Logger: quietLogger()}))
	defer server.Close()

	u := "ws" + server.URL[len("http"):] + "/ws?participantId=p1"
	for i := 0; i < 3; i++ {
		conn, _, err := websocket.DefaultDialer.Dial(u, nil)
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		sessionID := readState(t, conn).SessionID
		send(t, conn, "start", nil)
		readState(t, conn)
		conn.Close()

		deadline := time.Now().Add(2 * time.Second)
		for {
			_, err := service.View(context.Background(), sessionID)
			if errors.Is(err, domain.ErrSessionNotFound) {
				break
			}
			if time.Now().After(deadline) {
				t.Fatalf("session %s still registered after disconnect", sessionID)
			}
			time.Sleep(10 * time.Millisecond)
		}
	}
	service.Wait()
	if len(sink.Entries()) != 0 {
		t.Fatalf("abandoned runs must not be submitted")
	}
}

func TestWebSocketOriginPolicy(t *testing.T) {
	service, _ := newTestService()
	server := httptest.NewServer(NewRouter(service, RouterOptions{
		DefaultStudyID: "study-1",
		CORSOrigins:    []string{"https://study.example.org"},
		Logger:         quietLogger(),
	}))
	defer server.Close()
	u := "ws" + server.URL[len("http"):] + "/ws?participantId=p1"

	_, resp, err := websocket.DefaultDialer.Dial(u, http.Header{"Origin": []string{"https://elsewhere.example.com"}})
	if err == nil {
		t.Fatalf("expected foreign origin to be refused")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for foreign origin, got %+v", resp)
	}

	conn, _, err := websocket.DefaultDialer.Dial(u, http.Header{"Origin": []string{"https://study.example.org"}})
	if err != nil {
		t.Fatalf("allowed origin should connect: %v", err)
	}
	defer conn.Close()
	if st := readState(t, conn); st.SessionID == "" {
		t.Fatalf("expected initial state")
	}
}

type wireMessage struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

type wireState struct {
	Type    string       `json:"type"`
	Payload statePayload `json:"payload"`
}

func send(t *testing.T, conn *websocket.Conn, kind string, payload map[string]any) {
	t.Helper()
	msg := map[string]any{"type": kind}
	if payload != nil {
		msg["payload"] = payload
	}
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write %s: %v", kind, err)
	}
}

func readState(t *testing.T, conn *websocket.Conn) statePayload {
	t.Helper()
	var msg wireState
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if msg.Type != "state" {
		t.Fatalf("expected state message, got %s", msg.Type)
	}
	return msg.Payload
}

func readMessage(t *testing.T, conn *websocket.Conn) wireMessage {
	t.Helper()
	var msg wireMessage
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	return msg
}

func newTestService() (*app.StudyService, *memory.SubmissionLog) {
	definitions := memory.NewDefinitionRepository(memory.NewStaticDefinitionLoader(map[string]domain.StudyDefinition{
		"study-1": {
			Story:     "S",
			Contexts:  []string{"C1", "C2"},
			Questions: []domain.Question{{Text: "Q1", WordLimit: 2}},
		},
	}), time.Minute)
	sink := memory.NewSubmissionLog()
	service := app.NewStudyService(memory.NewSessionStore(), definitions, sink, app.WithLogger(quietLogger()))
	return service, sink
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
