package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"reading-study-service/internal/domain"
)

// SubmissionStore writes finished runs into the submissions table.
// A repeated session ID is ignored, so a duplicate delivery cannot create a second row.
type SubmissionStore struct {
	pool *pgxpool.Pool
}

func NewSubmissionStore(pool *pgxpool.Pool) *SubmissionStore {
	return &SubmissionStore{pool: pool}
}

func (s *SubmissionStore) Submit(ctx context.Context, env domain.Envelope) error {
	responses, err := json.Marshal(env.Submission.StudentResponses)
	if err != nil {
		return fmt.Errorf("marshal responses: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO submissions (session_id, study_id, participant_id, story, responses)
VALUES ($1, $2, $3, $4, $5::jsonb)
ON CONFLICT (session_id) DO NOTHING`,
		env.SessionID, env.StudyID, env.ParticipantID, env.Submission.Story, string(responses))
	if err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

// ListSubmissions returns the stored submissions for a study, oldest first.
func (s *SubmissionStore) ListSubmissions(ctx context.Context, studyID string) ([]domain.Submission, error) {
	rows, err := s.pool.Query(ctx, `SELECT story, responses FROM submissions WHERE study_id=$1 ORDER BY id`, studyID)
	if err != nil {
		return nil, fmt.Errorf("query submissions: %w", err)
	}
	defer rows.Close()

	var out []domain.Submission
	for rows.Next() {
		var (
			sub domain.Submission
			raw []byte
		)
		if err := rows.Scan(&sub.Story, &raw); err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		if err := json.Unmarshal(raw, &sub.StudentResponses); err != nil {
			return nil, fmt.Errorf("unmarshal responses: %w", err)
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}
