// Package sqlite stores submissions in a local SQLite file when no remote
// collaborator is configured.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"reading-study-service/internal/domain"
)

type SubmissionStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSubmissionStore(ctx context.Context, dbPath string) (*SubmissionStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// single writer; SQLite serializes anyway
	db.SetMaxOpenConns(1)
	store := &SubmissionStore{db: db, now: time.Now}
	if err := store.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SubmissionStore) ensureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS submissions (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  session_id TEXT NOT NULL UNIQUE,
  study_id TEXT NOT NULL,
  participant_id TEXT NOT NULL,
  story TEXT NOT NULL,
  responses TEXT NOT NULL,
  created_at TEXT NOT NULL
);
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create submissions table: %w", err)
	}
	return nil
}

func (s *SubmissionStore) Submit(ctx context.Context, env domain.Envelope) error {
	responses, err := json.Marshal(env.Submission.StudentResponses)
	if err != nil {
		return fmt.Errorf("marshal responses: %w", err)
	}
	const stmt = `
INSERT INTO submissions (session_id, study_id, participant_id, story, responses, created_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(session_id) DO NOTHING;
`
	_, err = s.db.ExecContext(ctx, stmt,
		env.SessionID, env.StudyID, env.ParticipantID, env.Submission.Story, string(responses),
		s.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

// ListSubmissions returns the stored submissions for a study, oldest first.
func (s *SubmissionStore) ListSubmissions(ctx context.Context, studyID string) ([]domain.Submission, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT story, responses FROM submissions WHERE study_id = ? ORDER BY id`, studyID)
	if err != nil {
		return nil, fmt.Errorf("query submissions: %w", err)
	}
	defer rows.Close()

	var out []domain.Submission
	for rows.Next() {
		var (
			sub domain.Submission
			raw string
		)
		if err := rows.Scan(&sub.Story, &raw); err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &sub.StudentResponses); err != nil {
			return nil, fmt.Errorf("unmarshal responses: %w", err)
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (s *SubmissionStore) Close() error {
	return s.db.Close()
}
