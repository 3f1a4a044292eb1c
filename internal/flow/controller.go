// Package flow sequences a participant through a reading study and measures
// how long and how often they re-read the material.
package flow

import (
	"fmt"
	"time"

	"reading-study-service/internal/domain"
)

// Options customizes a Controller. Zero values pick the defaults.
type Options struct {
	Now       func() time.Time
	Validator Validator
	// Assemble builds the final payload; it is called at most once.
	Assemble func(story string, answers []domain.AnswerRecord) domain.Submission
}

// Outcome describes the effect of one event.
type Outcome struct {
	From domain.Screen
	To   domain.Screen
	// Recorded is set when a response was accepted and appended.
	Recorded *domain.AnswerRecord
	// Submission is set exactly once, on the transition into Finished.
	Submission *domain.Submission
}

// Controller is the per-participant state machine. It is not safe for
// concurrent use: callers deliver one event at a time.
type Controller struct {
	def       domain.StudyDefinition
	now       func() time.Time
	validator Validator
	assemble  func(string, []domain.AnswerRecord) domain.Submission

	screen        domain.Screen
	contextIndex  int
	questionIndex int
	pendingInput  string
	answers       []domain.AnswerRecord

	timer  *Timer
	scroll ScrollTracker

	viewDurations    []float64
	rereadCount      int
	validationFailed bool
	assembled        bool
}

// NewController refuses definitions that fail validation, so a session never
// reaches the story screen without a complete definition.
func NewController(def domain.StudyDefinition, opts Options) (*Controller, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Validator.count == nil {
		opts.Validator = NewValidator(nil)
	}
	if opts.Assemble == nil {
		opts.Assemble = Assemble
	}
	return &Controller{
		def:       def,
		now:       opts.Now,
		validator: opts.Validator,
		assemble:  opts.Assemble,
		screen:    domain.ScreenNotStarted,
		answers:   make([]domain.AnswerRecord, 0, def.TotalAnswers()),
	}, nil
}

type step struct {
	to         domain.Screen
	rejected   bool
	recorded   *domain.AnswerRecord
	submission *domain.Submission
}

type transitionKey struct {
	from    domain.Screen
	trigger domain.Trigger
}

var transitions = map[transitionKey]func(*Controller) step{
	{domain.ScreenNotStarted, domain.TriggerStart}:      (*Controller).enterStory,
	{domain.ScreenStory, domain.TriggerContinue}:        (*Controller).leaveStory,
	{domain.ScreenContext, domain.TriggerContinue}:      goTo(domain.ScreenQuestion),
	{domain.ScreenQuestion, domain.TriggerContinue}:     goTo(domain.ScreenConfirmReread),
	{domain.ScreenConfirmReread, domain.TriggerReread}:  (*Controller).enterStory,
	{domain.ScreenConfirmReread, domain.TriggerProceed}: goTo(domain.ScreenResponse),
	{domain.ScreenResponse, domain.TriggerSubmit}:       (*Controller).submit,
}

func goTo(to domain.Screen) func(*Controller) step {
	return func(*Controller) step { return step{to: to} }
}

// Fire applies one event. Events not allowed on the current screen return
// ErrInvalidTrigger and leave the state untouched.
func (c *Controller) Fire(ev domain.Event) (Outcome, error) {
	from := c.screen
	out := Outcome{From: from, To: from}
	if from == domain.ScreenFinished {
		return out, domain.ErrSessionFinished
	}

	switch ev.Trigger {
	case domain.TriggerScroll:
		if from == domain.ScreenStory {
			c.scroll.OnScroll(ev.Position)
		}
		return out, nil
	case domain.TriggerInput:
		if from != domain.ScreenResponse {
			return out, fmt.Errorf("%w: %s on %s", domain.ErrInvalidTrigger, ev.Trigger, from)
		}
		c.pendingInput = ev.Text
		return out, nil
	}

	handler, ok := transitions[transitionKey{from: from, trigger: ev.Trigger}]
	if !ok {
		return out, fmt.Errorf("%w: %s on %s", domain.ErrInvalidTrigger, ev.Trigger, from)
	}
	// Text carried by a submit is only kept if the submit is accepted.
	prevInput := c.pendingInput
	if ev.Trigger == domain.TriggerSubmit && ev.HasText {
		c.pendingInput = ev.Text
	}

	st := handler(c)
	if st.rejected {
		c.pendingInput = prevInput
		c.validationFailed = true
		return out, nil
	}
	c.validationFailed = false
	c.screen = st.to
	out.To = st.to
	out.Recorded = st.recorded
	out.Submission = st.submission
	return out, nil
}

// enterStory opens a new view interval with a fresh timer. The scroll tracker
// is left alone so reread counting carries across views of one context.
func (c *Controller) enterStory() step {
	c.timer = NewTimer(c.now)
	c.timer.Start()
	return step{to: domain.ScreenStory}
}

func (c *Controller) leaveStory() step {
	if c.timer != nil {
		c.viewDurations = append(c.viewDurations, c.timer.Stop())
		c.timer = nil
	}
	c.rereadCount += c.scroll.UpCount()
	c.scroll.Reset()
	return step{to: domain.ScreenContext}
}

func (c *Controller) submit() step {
	question := c.def.Questions[c.questionIndex]
	if !c.validator.Validate(c.pendingInput, question.WordLimit) {
		return step{to: domain.ScreenResponse, rejected: true}
	}

	record := domain.AnswerRecord{
		Context:       c.def.Contexts[c.contextIndex],
		Question:      question.Text,
		Response:      c.pendingInput,
		ViewDurations: c.viewDurations,
		RereadCount:   c.rereadCount,
	}
	if record.ViewDurations == nil {
		record.ViewDurations = []float64{}
	}
	c.answers = append(c.answers, record)
	recorded := record.Clone()

	c.pendingInput = ""
	c.rereadCount = 0
	c.viewDurations = nil

	if c.questionIndex+1 < len(c.def.Questions) {
		c.questionIndex++
		return step{to: domain.ScreenQuestion, recorded: &recorded}
	}
	if c.contextIndex+1 < len(c.def.Contexts) {
		c.contextIndex++
		c.questionIndex = 0
		st := c.enterStory()
		st.recorded = &recorded
		return st
	}
	return step{to: domain.ScreenFinished, recorded: &recorded, submission: c.finish()}
}

// finish assembles the payload once; later calls return nil.
func (c *Controller) finish() *domain.Submission {
	if c.assembled {
		return nil
	}
	c.assembled = true
	sub := c.assemble(c.def.Story, c.answers)
	return &sub
}

// Screen returns the current screen.
func (c *Controller) Screen() domain.Screen {
	return c.screen
}

// Finished reports whether the run is complete.
func (c *Controller) Finished() bool {
	return c.screen == domain.ScreenFinished
}

// Answers returns a copy of the accepted answers in traversal order.
func (c *Controller) Answers() []domain.AnswerRecord {
	out := make([]domain.AnswerRecord, 0, len(c.answers))
	for _, a := range c.answers {
		out = append(out, a.Clone())
	}
	return out
}

// ScrollUpCount returns the reversals counted on the current story view.
func (c *Controller) ScrollUpCount() int {
	return c.scroll.UpCount()
}

// View renders the state for the presentation layer.
func (c *Controller) View() domain.View {
	v := domain.View{
		Screen:           c.screen,
		ContextIndex:     c.contextIndex,
		QuestionIndex:    c.questionIndex,
		PendingInput:     c.pendingInput,
		ValidationFailed: c.validationFailed,
		Answered:         len(c.answers),
		Total:            c.def.TotalAnswers(),
	}
	switch c.screen {
	case domain.ScreenStory:
		v.Story = c.def.Story
	case domain.ScreenContext:
		v.Context = c.def.Contexts[c.contextIndex]
	case domain.ScreenQuestion, domain.ScreenConfirmReread, domain.ScreenResponse:
		q := c.def.Questions[c.questionIndex]
		v.Context = c.def.Contexts[c.contextIndex]
		v.Question = q.Text
		v.WordLimit = q.WordLimit
	}
	return v
}
