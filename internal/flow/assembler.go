package flow

import "reading-study-service/internal/domain"

// Assemble pairs the story with a snapshot of the collected answers.
// The result shares no memory with answers.
func Assemble(story string, answers []domain.AnswerRecord) domain.Submission {
	responses := make([]domain.AnswerRecord, 0, len(answers))
	for _, a := range answers {
		responses = append(responses, a.Clone())
	}
	return domain.Submission{
		Story:            story,
		StudentResponses: responses,
	}
}
