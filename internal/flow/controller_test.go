package flow

import (
	"errors"
	"testing"
	"time"

	"reading-study-service/internal/domain"
)

func sampleDefinition() domain.StudyDefinition {
	return domain.StudyDefinition{
		Story:     "S",
		Contexts:  []string{"C1", "C2"},
		Questions: []domain.Question{{Text: "Q1", WordLimit: 2}},
	}
}

func mustFire(t *testing.T, c *Controller, ev domain.Event) Outcome {
	t.Helper()
	out, err := c.Fire(ev)
	if err != nil {
		t.Fatalf("fire %s on %s: %v", ev.Trigger, out.From, err)
	}
	return out
}

func trigger(tr domain.Trigger) domain.Event {
	return domain.Event{Trigger: tr}
}

func submit(text string) domain.Event {
	return domain.Event{Trigger: domain.TriggerSubmit, Text: text, HasText: true}
}

// answerCurrent walks Story/Context/Question/ConfirmReread/Response for one question.
func answerCurrent(t *testing.T, c *Controller, text string) Outcome {
	t.Helper()
	if c.Screen() == domain.ScreenStory {
		mustFire(t, c, trigger(domain.TriggerContinue))
		mustFire(t, c, trigger(domain.TriggerContinue))
	}
	mustFire(t, c, trigger(domain.TriggerContinue))
	mustFire(t, c, trigger(domain.TriggerProceed))
	return mustFire(t, c, submit(text))
}

func TestNewControllerRejectsInvalidDefinitions(t *testing.T) {
	cases := map[string]domain.StudyDefinition{
		"no contexts":   {Story: "S", Questions: []domain.Question{{Text: "Q", WordLimit: 1}}},
		"no questions":  {Story: "S", Contexts: []string{"C"}},
		"no story":      {Contexts: []string{"C"}, Questions: []domain.Question{{Text: "Q", WordLimit: 1}}},
		"zero limit":    {Story: "S", Contexts: []string{"C"}, Questions: []domain.Question{{Text: "Q", WordLimit: 0}}},
		"question text": {Story: "S", Contexts: []string{"C"}, Questions: []domain.Question{{WordLimit: 3}}},
	}
	for name, def := range cases {
		t.Run(name, func(t *testing.T) {
			c, err := NewController(def, Options{})
			if !errors.Is(err, domain.ErrInvalidDefinition) {
				t.Fatalf("expected invalid definition, got %v", err)
			}
			if c != nil {
				t.Fatalf("expected no controller")
			}
		})
	}
}

func TestEndToEndScenario(t *testing.T) {
	assembled := 0
	c, err := NewController(sampleDefinition(), Options{
		Assemble: func(story string, answers []domain.AnswerRecord) domain.Submission {
			assembled++
			return Assemble(story, answers)
		},
	})
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}

	mustFire(t, c, trigger(domain.TriggerStart))
	first := answerCurrent(t, c, "yes ok")
	if first.To != domain.ScreenStory {
		t.Fatalf("expected next context to route through story, got %s", first.To)
	}
	if first.Submission != nil {
		t.Fatalf("submission before the last answer")
	}

	last := answerCurrent(t, c, "no way")
	if last.To != domain.ScreenFinished {
		t.Fatalf("expected finished, got %s", last.To)
	}
	if last.Submission == nil {
		t.Fatalf("expected submission on finish")
	}
	if assembled != 1 {
		t.Fatalf("expected one assembly, got %d", assembled)
	}

	got := last.Submission.StudentResponses
	want := []struct{ context, question, response string }{
		{"C1", "Q1", "yes ok"},
		{"C2", "Q1", "no way"},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d answers, got %d", len(want), len(got))
	}
	for i, w := range want {
		if got[i].Context != w.context || got[i].Question != w.question || got[i].Response != w.response {
			t.Fatalf("answer %d = %+v, want %+v", i, got[i], w)
		}
	}
	if last.Submission.Story != "S" {
		t.Fatalf("expected story S, got %q", last.Submission.Story)
	}
}

func TestDoubleSubmitOnFinalResponse(t *testing.T) {
	assembled := 0
	c, _ := NewController(sampleDefinition(), Options{
		Assemble: func(story string, answers []domain.AnswerRecord) domain.Submission {
			assembled++
			return Assemble(story, answers)
		},
	})
	mustFire(t, c, trigger(domain.TriggerStart))
	answerCurrent(t, c, "yes ok")
	answerCurrent(t, c, "no way")

	out, err := c.Fire(submit("again"))
	if !errors.Is(err, domain.ErrSessionFinished) {
		t.Fatalf("expected finished error, got %v", err)
	}
	if out.Submission != nil {
		t.Fatalf("second submission produced")
	}
	if assembled != 1 {
		t.Fatalf("assembler invoked %d times", assembled)
	}
	if n := len(c.Answers()); n != 2 {
		t.Fatalf("expected 2 answers, got %d", n)
	}
}

func TestInvalidResponseStaysOnResponse(t *testing.T) {
	c, _ := NewController(sampleDefinition(), Options{})
	mustFire(t, c, trigger(domain.TriggerStart))
	mustFire(t, c, trigger(domain.TriggerContinue))
	mustFire(t, c, trigger(domain.TriggerContinue))
	mustFire(t, c, trigger(domain.TriggerContinue))
	mustFire(t, c, trigger(domain.TriggerProceed))

	out := mustFire(t, c, submit("one two three"))
	if out.To != domain.ScreenResponse || c.Screen() != domain.ScreenResponse {
		t.Fatalf("expected to stay on response, got %s", c.Screen())
	}
	if !c.View().ValidationFailed {
		t.Fatalf("expected validationFailed")
	}
	if len(c.Answers()) != 0 || out.Recorded != nil {
		t.Fatalf("expected no answers appended")
	}

	mustFire(t, c, domain.Event{Trigger: domain.TriggerInput, Text: "fine"})
	out = mustFire(t, c, trigger(domain.TriggerSubmit))
	if out.Recorded == nil || out.Recorded.Response != "fine" {
		t.Fatalf("expected recorded response from pending input, got %+v", out.Recorded)
	}
	if c.View().ValidationFailed {
		t.Fatalf("expected validationFailed cleared after success")
	}
}

func TestRejectedSubmitKeepsPendingInput(t *testing.T) {
	c, _ := NewController(sampleDefinition(), Options{})
	mustFire(t, c, trigger(domain.TriggerStart))
	mustFire(t, c, trigger(domain.TriggerContinue))
	mustFire(t, c, trigger(domain.TriggerContinue))
	mustFire(t, c, trigger(domain.TriggerContinue))
	mustFire(t, c, trigger(domain.TriggerProceed))
	mustFire(t, c, domain.Event{Trigger: domain.TriggerInput, Text: "draft"})

	mustFire(t, c, submit("far too many words"))
	v := c.View()
	if !v.ValidationFailed {
		t.Fatalf("expected validationFailed")
	}
	if v.PendingInput != "draft" {
		t.Fatalf("rejected submit must not replace pending input, got %q", v.PendingInput)
	}
	if len(c.Answers()) != 0 || c.Screen() != domain.ScreenResponse {
		t.Fatalf("expected no answer and response screen, got %d answers on %s", len(c.Answers()), c.Screen())
	}
}

func TestAnswerCountAndOrder(t *testing.T) {
	def := domain.StudyDefinition{
		Story:    "story",
		Contexts: []string{"C1", "C2", "C3"},
		Questions: []domain.Question{
			{Text: "Q1", WordLimit: 5},
			{Text: "Q2", WordLimit: 5},
		},
	}
	c, _ := NewController(def, Options{})
	mustFire(t, c, trigger(domain.TriggerStart))

	var sub *domain.Submission
	for !c.Finished() {
		out := answerCurrent(t, c, "an answer")
		if out.Submission != nil {
			sub = out.Submission
		}
	}
	if sub == nil {
		t.Fatalf("expected submission")
	}
	if len(sub.StudentResponses) != 6 {
		t.Fatalf("expected 6 records, got %d", len(sub.StudentResponses))
	}
	i := 0
	for _, ctx := range def.Contexts {
		for _, q := range def.Questions {
			r := sub.StudentResponses[i]
			if r.Context != ctx || r.Question != q.Text {
				t.Fatalf("record %d = (%s,%s), want (%s,%s)", i, r.Context, r.Question, ctx, q.Text)
			}
			i++
		}
	}
}

func TestSecondQuestionSkipsStory(t *testing.T) {
	def := domain.StudyDefinition{
		Story:     "story",
		Contexts:  []string{"C1"},
		Questions: []domain.Question{{Text: "Q1", WordLimit: 5}, {Text: "Q2", WordLimit: 5}},
	}
	c, _ := NewController(def, Options{})
	mustFire(t, c, trigger(domain.TriggerStart))
	out := answerCurrent(t, c, "first")
	if out.To != domain.ScreenQuestion {
		t.Fatalf("expected question screen for next question, got %s", out.To)
	}
	v := c.View()
	if v.QuestionIndex != 1 || v.Question != "Q2" || v.Context != "C1" {
		t.Fatalf("unexpected view %+v", v)
	}
}

func TestViewDurationsAndRereads(t *testing.T) {
	clock := newFakeClock()
	c, _ := NewController(sampleDefinition(), Options{Now: clock.Now})

	mustFire(t, c, trigger(domain.TriggerStart))
	for _, pos := range []float64{0, 100, 50, 200, 150} {
		mustFire(t, c, domain.Event{Trigger: domain.TriggerScroll, Position: pos})
	}
	if c.ScrollUpCount() != 2 {
		t.Fatalf("expected 2 reversals on story, got %d", c.ScrollUpCount())
	}
	clock.Advance(3 * time.Second)
	mustFire(t, c, trigger(domain.TriggerContinue)) // story -> context
	if c.ScrollUpCount() != 0 {
		t.Fatalf("expected tracker reset on leaving story")
	}

	// Scrolls off the story screen are ignored.
	mustFire(t, c, domain.Event{Trigger: domain.TriggerScroll, Position: 0})
	mustFire(t, c, trigger(domain.TriggerContinue)) // context -> question
	mustFire(t, c, trigger(domain.TriggerContinue)) // question -> confirm

	mustFire(t, c, trigger(domain.TriggerReread)) // back to story, new view
	clock.Advance(90 * time.Second)
	mustFire(t, c, domain.Event{Trigger: domain.TriggerScroll, Position: 10})
	mustFire(t, c, domain.Event{Trigger: domain.TriggerScroll, Position: 0})
	mustFire(t, c, trigger(domain.TriggerContinue))
	mustFire(t, c, trigger(domain.TriggerContinue))
	mustFire(t, c, trigger(domain.TriggerContinue))
	mustFire(t, c, trigger(domain.TriggerProceed))
	out := mustFire(t, c, submit("yes ok"))

	rec := out.Recorded
	if rec == nil {
		t.Fatalf("expected a record")
	}
	if len(rec.ViewDurations) != 2 || !approx(rec.ViewDurations[0], 3) || !approx(rec.ViewDurations[1], 90) {
		t.Fatalf("unexpected view durations %v", rec.ViewDurations)
	}
	if rec.RereadCount != 3 {
		t.Fatalf("expected 3 rereads across views, got %d", rec.RereadCount)
	}

	// Next context starts with fresh accumulators.
	clock.Advance(time.Second)
	out = answerCurrent(t, c, "no way")
	if out.Recorded.RereadCount != 0 || len(out.Recorded.ViewDurations) != 1 || !approx(out.Recorded.ViewDurations[0], 1) {
		t.Fatalf("expected fresh accumulators, got %+v", out.Recorded)
	}
}

func TestInvalidTriggersDoNotMutate(t *testing.T) {
	c, _ := NewController(sampleDefinition(), Options{})

	cases := []domain.Trigger{domain.TriggerContinue, domain.TriggerSubmit, domain.TriggerReread, domain.TriggerInput}
	for _, tr := range cases {
		if _, err := c.Fire(trigger(tr)); !errors.Is(err, domain.ErrInvalidTrigger) {
			t.Fatalf("%s on not_started: expected invalid trigger, got %v", tr, err)
		}
	}
	if c.Screen() != domain.ScreenNotStarted {
		t.Fatalf("state changed to %s", c.Screen())
	}

	mustFire(t, c, trigger(domain.TriggerStart))
	if _, err := c.Fire(trigger(domain.TriggerStart)); !errors.Is(err, domain.ErrInvalidTrigger) {
		t.Fatalf("expected second start to be rejected, got %v", err)
	}
	if _, err := c.Fire(trigger("dance")); !errors.Is(err, domain.ErrInvalidTrigger) {
		t.Fatalf("expected unknown trigger to be rejected, got %v", err)
	}
}

func TestFirstQuestionIsActive(t *testing.T) {
	c, _ := NewController(sampleDefinition(), Options{})
	mustFire(t, c, trigger(domain.TriggerStart))
	mustFire(t, c, trigger(domain.TriggerContinue))
	mustFire(t, c, trigger(domain.TriggerContinue))
	v := c.View()
	if v.Screen != domain.ScreenQuestion || v.QuestionIndex != 0 || v.Question != "Q1" || v.WordLimit != 2 {
		t.Fatalf("expected question index 0 to be shown, got %+v", v)
	}
}

func TestAnswersSnapshotIsIndependent(t *testing.T) {
	c, _ := NewController(sampleDefinition(), Options{})
	mustFire(t, c, trigger(domain.TriggerStart))
	answerCurrent(t, c, "yes ok")
	answerCurrent(t, c, "no way")

	snap := c.Answers()
	snap[0].Response = "tampered"
	snap[0].ViewDurations = append(snap[0].ViewDurations, 99)
	if got := c.Answers()[0]; got.Response != "yes ok" || len(got.ViewDurations) != 1 {
		t.Fatalf("controller answers mutated through snapshot: %+v", got)
	}
}
