package app

import (
	"sync"
	"time"

	"reading-study-service/internal/domain"
	"reading-study-service/internal/flow"
)

// Session binds one participant run to its flow controller. The mutex makes
// each trigger, with all of its side effects, atomic for the next one.
type Session struct {
	id            string
	studyID       string
	participantID string
	csrfToken     string
	createdAt     time.Time
	now           func() time.Time

	mu         sync.Mutex
	ctrl       *flow.Controller
	lastActive time.Time
}

// NewSession is exported for infrastructure layers and tests that need to seed sessions.
func NewSession(id, studyID, participantID, csrfToken string, ctrl *flow.Controller) *Session {
	return newSessionWithClock(id, studyID, participantID, csrfToken, ctrl, time.Now)
}

func newSessionWithClock(id, studyID, participantID, csrfToken string, ctrl *flow.Controller, now func() time.Time) *Session {
	created := now()
	return &Session{
		id:            id,
		studyID:       studyID,
		participantID: participantID,
		csrfToken:     csrfToken,
		createdAt:     created,
		now:           now,
		ctrl:          ctrl,
		lastActive:    created,
	}
}

func (s *Session) ID() string            { return s.id }
func (s *Session) StudyID() string       { return s.studyID }
func (s *Session) ParticipantID() string { return s.participantID }
func (s *Session) CreatedAt() time.Time  { return s.createdAt }

// View returns the presentation snapshot.
func (s *Session) View() domain.View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctrl.View()
}

// Finished reports whether the participant reached the terminal screen.
func (s *Session) Finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctrl.Finished()
}

// LastActive is the time of the most recent participant event, or creation.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// IdleSince reports whether the session has seen no event since cutoff.
func (s *Session) IdleSince(cutoff time.Time) bool {
	return s.LastActive().Before(cutoff)
}

func (s *Session) fire(ev domain.Event) (flow.Outcome, domain.View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActive = s.now()
	out, err := s.ctrl.Fire(ev)
	return out, s.ctrl.View(), err
}

func (s *Session) envelope(sub domain.Submission) domain.Envelope {
	return domain.Envelope{
		StudyID:       s.studyID,
		ParticipantID: s.participantID,
		SessionID:     s.id,
		CSRFToken:     s.csrfToken,
		Submission:    sub,
	}
}
