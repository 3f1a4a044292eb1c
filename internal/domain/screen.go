package domain

import "fmt"

// Screen is the closed set of states a participant session moves through.
type Screen int

const (
	ScreenNotStarted Screen = iota
	ScreenStory
	ScreenContext
	ScreenQuestion
	ScreenConfirmReread
	ScreenResponse
	ScreenFinished
)

var screenNames = [...]string{
	ScreenNotStarted:    "not_started",
	ScreenStory:         "story",
	ScreenContext:       "context",
	ScreenQuestion:      "question",
	ScreenConfirmReread: "confirm_reread",
	ScreenResponse:      "response",
	ScreenFinished:      "finished",
}

func (s Screen) String() string {
	if s < 0 || int(s) >= len(screenNames) {
		return fmt.Sprintf("screen(%d)", int(s))
	}
	return screenNames[s]
}

// MarshalText renders the screen by name in JSON payloads.
func (s Screen) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a screen name.
func (s *Screen) UnmarshalText(text []byte) error {
	for i, name := range screenNames {
		if name == string(text) {
			*s = Screen(i)
			return nil
		}
	}
	return fmt.Errorf("unknown screen %q", text)
}

// Trigger is a participant action delivered to the flow controller.
type Trigger string

const (
	TriggerStart    Trigger = "start"
	TriggerContinue Trigger = "continue"
	TriggerReread   Trigger = "reread"
	TriggerProceed  Trigger = "proceed"
	TriggerInput    Trigger = "input"
	TriggerScroll   Trigger = "scroll"
	TriggerSubmit   Trigger = "submit"
)

// Event is one trigger plus its optional data.
type Event struct {
	Trigger  Trigger
	Text     string
	Position float64
	// HasText distinguishes an omitted submit text from an empty one.
	HasText bool
}

// View is the read-only snapshot the presentation layer renders.
type View struct {
	Screen           Screen `json:"screen"`
	ContextIndex     int    `json:"contextIndex"`
	QuestionIndex    int    `json:"questionIndex"`
	Story            string `json:"story,omitempty"`
	Context          string `json:"context,omitempty"`
	Question         string `json:"question,omitempty"`
	WordLimit        int    `json:"wordLimit,omitempty"`
	PendingInput     string `json:"pendingInput,omitempty"`
	ValidationFailed bool   `json:"validationFailed"`
	Answered         int    `json:"answered"`
	Total            int    `json:"total"`
}
