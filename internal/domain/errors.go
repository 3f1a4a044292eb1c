package domain

import "errors"

var (
	// ErrSessionNotFound is returned when a study session has not been initialized.
	ErrSessionNotFound = errors.New("study session not found")
	// ErrStudyNotFound indicates the study definition could not be loaded.
	ErrStudyNotFound = errors.New("study not found")
	// ErrInvalidDefinition marks a definition that fails validation.
	ErrInvalidDefinition = errors.New("invalid study definition")
	// ErrInvalidTrigger is returned when an event is not allowed on the current screen.
	ErrInvalidTrigger = errors.New("trigger not allowed on current screen")
	// ErrSessionFinished is returned for any event after the session completed.
	ErrSessionFinished = errors.New("study session already finished")
)
