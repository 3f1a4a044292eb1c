package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"reading-study-service/internal/domain"
	"reading-study-service/internal/flow"
)

// SessionRepository abstracts how participant sessions are kept (in-memory, Redis, etc).
type SessionRepository interface {
	Save(session *Session)
	Get(sessionID string) (*Session, bool)
	Touch(sessionID string)
	Delete(sessionID string)
	// EvictIdle removes sessions with no event since cutoff and returns their IDs.
	EvictIdle(cutoff time.Time) []string
}

// DefinitionRepository loads study definitions (from cache/backing store).
type DefinitionRepository interface {
	GetDefinition(ctx context.Context, studyID string) (domain.StudyDefinition, error)
}

// SubmissionGateway hands a finished run to the storage collaborator.
type SubmissionGateway interface {
	Submit(ctx context.Context, env domain.Envelope) error
}

// StudyService contains the participant-facing use cases.
type StudyService struct {
	sessions      SessionRepository
	definitions   DefinitionRepository
	gateway       SubmissionGateway
	logger        *slog.Logger
	now           func() time.Time
	validator     flow.Validator
	submitTimeout time.Duration
	newID         func() string

	inflight sync.WaitGroup
}

// Option configures a StudyService.
type Option func(*StudyService)

func WithLogger(logger *slog.Logger) Option {
	return func(s *StudyService) { s.logger = logger }
}

// WithClock is test-only for deterministic view durations.
func WithClock(now func() time.Time) Option {
	return func(s *StudyService) { s.now = now }
}

func WithValidator(v flow.Validator) Option {
	return func(s *StudyService) { s.validator = v }
}

func WithSubmitTimeout(d time.Duration) Option {
	return func(s *StudyService) { s.submitTimeout = d }
}

func WithIDGenerator(fn func() string) Option {
	return func(s *StudyService) { s.newID = fn }
}

func NewStudyService(sessions SessionRepository, definitions DefinitionRepository, gateway SubmissionGateway, opts ...Option) *StudyService {
	s := &StudyService{
		sessions:      sessions,
		definitions:   definitions,
		gateway:       gateway,
		logger:        slog.Default(),
		now:           time.Now,
		validator:     flow.NewValidator(nil),
		submitTimeout: 30 * time.Second,
		newID:         uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartSession loads the study definition and creates a participant session
// on the not-started screen. A definition that fails validation never yields a session.
func (s *StudyService) StartSession(ctx context.Context, studyID, participantID, csrfToken string) (*Session, error) {
	log := s.logger.With("study_id", studyID, "participant_id", participantID)

	def, err := s.definitions.GetDefinition(ctx, studyID)
	if err != nil {
		log.Error("study definition load failed", "error", err)
		return nil, fmt.Errorf("load definition %s: %w", studyID, err)
	}

	ctrl, err := flow.NewController(def, flow.Options{Now: s.now, Validator: s.validator})
	if err != nil {
		log.Error("study definition rejected", "error", err)
		return nil, err
	}

	session := newSessionWithClock(s.newID(), studyID, participantID, csrfToken, ctrl, s.now)
	s.sessions.Save(session)
	log.Info("study session created", "session_id", session.ID(), "answers_expected", def.TotalAnswers())
	return session, nil
}

// Dispatch delivers one participant event to the session's flow controller.
// Rejected triggers return the unchanged view together with the error.
func (s *StudyService) Dispatch(ctx context.Context, sessionID string, ev domain.Event) (domain.View, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return domain.View{}, domain.ErrSessionNotFound
	}

	out, view, err := session.fire(ev)
	if err != nil {
		return view, err
	}
	s.sessions.Touch(sessionID)

	if out.From != out.To {
		s.logger.Debug("study transition",
			"session_id", sessionID,
			"trigger", string(ev.Trigger),
			"from", out.From.String(),
			"to", out.To.String())
	}
	if out.Recorded != nil {
		s.logger.Debug("answer recorded",
			"session_id", sessionID,
			"context_index", view.ContextIndex,
			"reread_count", out.Recorded.RereadCount,
			"views", len(out.Recorded.ViewDurations))
	}
	if out.Submission != nil {
		s.submit(ctx, session, *out.Submission)
	}
	return view, nil
}

// View returns the current snapshot for a session.
func (s *StudyService) View(_ context.Context, sessionID string) (domain.View, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return domain.View{}, domain.ErrSessionNotFound
	}
	return session.View(), nil
}

// Abandon discards a session whose participant left before finishing.
// Finished sessions are left alone: the submission path removes them.
func (s *StudyService) Abandon(sessionID string) {
	session, ok := s.sessions.Get(sessionID)
	if !ok || session.Finished() {
		return
	}
	s.sessions.Delete(sessionID)
	s.logger.Info("study session abandoned",
		"session_id", sessionID,
		"study_id", session.StudyID(),
		"participant_id", session.ParticipantID(),
		"screen", session.View().Screen.String())
}

// EvictIdle discards sessions that have seen no event for longer than maxIdle.
func (s *StudyService) EvictIdle(maxIdle time.Duration) int {
	evicted := s.sessions.EvictIdle(s.now().Add(-maxIdle))
	if len(evicted) > 0 {
		s.logger.Info("idle study sessions evicted", "count", len(evicted), "max_idle", maxIdle)
	}
	return len(evicted)
}

// RunEviction calls EvictIdle every interval until ctx is done.
func (s *StudyService) RunEviction(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.EvictIdle(maxIdle)
		}
	}
}

// Wait blocks until in-flight submissions have completed.
func (s *StudyService) Wait() {
	s.inflight.Wait()
}

// submit sends the payload once in the background. Failures are logged for
// operators and never reach the participant, who already sees the final screen.
// The session is discarded once the attempt completes either way.
func (s *StudyService) submit(ctx context.Context, session *Session, sub domain.Submission) {
	env := session.envelope(sub)
	log := s.logger.With("session_id", session.ID(), "study_id", session.StudyID(), "participant_id", session.ParticipantID())

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer s.sessions.Delete(session.ID())

		submitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.submitTimeout)
		defer cancel()

		if err := s.gateway.Submit(submitCtx, env); err != nil {
			log.Error("submission failed, responses not stored", "error", err, "responses", len(sub.StudentResponses))
			return
		}
		log.Info("submission stored", "responses", len(sub.StudentResponses))
	}()
}
