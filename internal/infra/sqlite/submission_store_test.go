package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"reading-study-service/internal/domain"
)

func TestSubmissionStorePersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data", "submissions.db")

	store, err := NewSubmissionStore(ctx, path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	env := domain.Envelope{
		StudyID:       "study-1",
		ParticipantID: "p1",
		SessionID:     "s1",
		Submission: domain.Submission{
			Story: "S",
			StudentResponses: []domain.AnswerRecord{
				{Context: "C1", Question: "Q1", Response: "yes ok", ViewDurations: []float64{1.25, 3}, RereadCount: 2},
				{Context: "C2", Question: "Q1", Response: "no way", ViewDurations: []float64{0.5}},
			},
		},
	}
	if err := store.Submit(ctx, env); err != nil {
		t.Fatalf("submit: %v", err)
	}
	// duplicate delivery of the same session is ignored
	if err := store.Submit(ctx, env); err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewSubmissionStore(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	subs, err := reopened.ListSubmissions(ctx, "study-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(subs) != 1 {
		t.Fatalf("expected 1 submission, got %d", len(subs))
	}
	got := subs[0].StudentResponses
	if len(got) != 2 || got[0].RereadCount != 2 || got[0].ViewDurations[1] != 3 || got[1].Response != "no way" {
		t.Fatalf("unexpected responses %+v", got)
	}
}
