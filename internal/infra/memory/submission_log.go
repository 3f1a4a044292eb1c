package memory

import (
	"context"
	"sync"

	"reading-study-service/internal/domain"
)

// SubmissionLog keeps submissions in process. It is the fallback sink when no
// collaborator or database is configured, and a recorder in tests.
type SubmissionLog struct {
	mu      sync.Mutex
	entries []domain.Envelope
	err     error
}

func NewSubmissionLog() *SubmissionLog {
	return &SubmissionLog{}
}

// FailWith makes every later Submit return err without recording.
func (l *SubmissionLog) FailWith(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.err = err
}

func (l *SubmissionLog) Submit(ctx context.Context, env domain.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.entries = append(l.entries, env)
	return nil
}

// Entries returns the recorded submissions in arrival order.
func (l *SubmissionLog) Entries() []domain.Envelope {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.Envelope(nil), l.entries...)
}
