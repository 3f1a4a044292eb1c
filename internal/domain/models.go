package domain

import (
	"fmt"
	"strings"
)

// Question is asked once per context. WordLimit caps the response length.
type Question struct {
	Text      string `json:"text" yaml:"text"`
	WordLimit int    `json:"word_limit" yaml:"word_limit"`
}

// StudyDefinition is the reading material and question set for one study.
// It is fetched once per session and never mutated.
type StudyDefinition struct {
	Story     string     `json:"story" yaml:"story"`
	Contexts  []string   `json:"contexts" yaml:"contexts"`
	Questions []Question `json:"questions" yaml:"questions"`
}

// Validate rejects definitions a session cannot run to completion.
// Zero word limits are refused here: an empty response never validates, so such
// a question could not be answered.
func (d StudyDefinition) Validate() error {
	if strings.TrimSpace(d.Story) == "" {
		return fmt.Errorf("%w: story is empty", ErrInvalidDefinition)
	}
	if len(d.Contexts) == 0 {
		return fmt.Errorf("%w: no contexts", ErrInvalidDefinition)
	}
	if len(d.Questions) == 0 {
		return fmt.Errorf("%w: no questions", ErrInvalidDefinition)
	}
	for i, q := range d.Questions {
		if strings.TrimSpace(q.Text) == "" {
			return fmt.Errorf("%w: question %d has no text", ErrInvalidDefinition, i)
		}
		if q.WordLimit <= 0 {
			return fmt.Errorf("%w: question %d word_limit must be positive, got %d", ErrInvalidDefinition, i, q.WordLimit)
		}
	}
	return nil
}

// TotalAnswers is the number of answer records a complete run produces.
func (d StudyDefinition) TotalAnswers() int {
	return len(d.Contexts) * len(d.Questions)
}

// AnswerRecord is the collected data for one (context, question) pair.
type AnswerRecord struct {
	Context       string    `json:"context"`
	Question      string    `json:"question"`
	Response      string    `json:"response"`
	ViewDurations []float64 `json:"view_durations"`
	RereadCount   int       `json:"reread_count"`
}

// Clone returns a copy that shares no slices with r.
func (r AnswerRecord) Clone() AnswerRecord {
	out := r
	out.ViewDurations = append([]float64(nil), r.ViewDurations...)
	if out.ViewDurations == nil {
		out.ViewDurations = []float64{}
	}
	return out
}

// Submission is the payload handed to the storage collaborator.
type Submission struct {
	Story            string         `json:"story"`
	StudentResponses []AnswerRecord `json:"student_responses"`
}

// Envelope wraps a submission with the routing data sinks need.
type Envelope struct {
	StudyID       string
	ParticipantID string
	SessionID     string
	// CSRFToken is passed through to the collaborator untouched.
	CSRFToken  string
	Submission Submission
}
