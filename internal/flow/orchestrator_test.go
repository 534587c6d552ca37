package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/mindsupport/compass/internal/models"
	"github.com/mindsupport/compass/internal/store"
)

// mockInvoker returns scripted replies in order, repeating the last entry
// once the script runs out. A nil script always errors.
type mockInvoker struct {
	mu      sync.Mutex
	replies []string
	err     error
	calls   int
}

func (m *mockInvoker) Invoke(_ context.Context, _, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return "", m.err
	}
	if len(m.replies) == 0 {
		return "", errors.New("mockInvoker: no scripted reply")
	}
	reply := m.replies[0]
	if len(m.replies) > 1 {
		m.replies = m.replies[1:]
	}
	return reply, nil
}

func (m *mockInvoker) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func newTestOrchestrator(inv CompletionInvoker) (*Orchestrator, store.Store) {
	st := store.NewInMemoryStore()
	return NewOrchestrator(st, NewAssessmentFlow(inv)), st
}

func TestHandleMessage_FreshConversation(t *testing.T) {
	inv := &mockInvoker{replies: []string{"What do you like to do after school?"}}
	orch, st := newTestOrchestrator(inv)

	result, err := orch.HandleMessage(context.Background(), "user-1", "hi")
	if err != nil {
		t.Fatalf("HandleMessage failed: %v", err)
	}
	if result.Response == "" {
		t.Error("expected a non-empty response for a fresh conversation")
	}
	if !strings.Contains(result.Response, "check-in") {
		t.Errorf("expected a welcome greeting, got %q", result.Response)
	}
	if result.Stage != models.StageAgeQuestioning {
		t.Errorf("expected stage %s, got %s", models.StageAgeQuestioning, result.Stage)
	}
	if result.Progress != "0/5" {
		t.Errorf("expected progress 0/5, got %q", result.Progress)
	}

	state, err := st.GetConversation(context.Background(), "user-1")
	if err != nil || state == nil {
		t.Fatalf("expected persisted state, got state=%v err=%v", state, err)
	}
	if state.AgeQuestionsAsked != 0 {
		t.Errorf("expected no questions recorded yet, got %d", state.AgeQuestionsAsked)
	}
}

func TestHandleMessage_FullAgeBattery(t *testing.T) {
	script := []string{
		"What do you like to do in your free time?",
		"How do you usually solve a problem you are stuck on?",
		"What subjects interest you at school?",
		"How do you feel about making new friends?",
		"What do you want to be when you grow up?",
		`{"estimated_age": 11, "confidence": 7, "category": "child", "indicators": ["short answers"]}`,
		"Urgency Score: 3\nPrimary Concern: school stress\nEmotional State: calm\nRisk Level: low",
		"Thanks for sharing all of that with me. How is school going this week?",
	}
	inv := &mockInvoker{replies: script}
	orch, st := newTestOrchestrator(inv)
	ctx := context.Background()

	if _, err := orch.HandleMessage(ctx, "user-2", "hi"); err != nil {
		t.Fatalf("welcome turn failed: %v", err)
	}
	// The first questioning turn asks question one; each later turn records the
	// answer and asks the next question.
	if _, err := orch.HandleMessage(ctx, "user-2", "ok, ready"); err != nil {
		t.Fatalf("first question turn failed: %v", err)
	}
	answers := []string{"play games", "ask parents", "grades", "science", "games"}
	var last *models.TurnResult
	for i, answer := range answers {
		result, err := orch.HandleMessage(ctx, "user-2", answer)
		if err != nil {
			t.Fatalf("turn %d failed: %v", i+1, err)
		}
		last = result

		state, err := st.GetConversation(ctx, "user-2")
		if err != nil || state == nil {
			t.Fatalf("turn %d: expected persisted state, err=%v", i+1, err)
		}
		if len(state.AgeAnswers) != state.AgeQuestionsAsked {
			t.Fatalf("turn %d: answers/asked mismatch: %d vs %d",
				i+1, len(state.AgeAnswers), state.AgeQuestionsAsked)
		}
	}

	state, err := st.GetConversation(ctx, "user-2")
	if err != nil || state == nil {
		t.Fatalf("expected persisted state, err=%v", err)
	}
	if !state.AgeAssessmentComplete {
		t.Fatal("expected age assessment to complete after the final answer")
	}
	if state.AgeResult == nil {
		t.Fatal("expected an age result")
	}
	if state.AgeResult.EstimatedAge < 5 || state.AgeResult.EstimatedAge > 18 {
		t.Errorf("estimated age out of range: %d", state.AgeResult.EstimatedAge)
	}
	if state.AgeResult.Category != models.AgeCategoryChild {
		t.Errorf("expected child category, got %s", state.AgeResult.Category)
	}
	if !state.MentalAssessmentComplete || state.MentalResult == nil {
		t.Fatal("expected the mental assessment to run in the same turn")
	}
	if state.MentalResult.Urgency != 3 {
		t.Errorf("expected urgency 3, got %d", state.MentalResult.Urgency)
	}
	if !state.FollowUpDone {
		t.Error("expected the follow-up to run after a low urgency triage")
	}
	if last.Response == "" {
		t.Error("final turn should carry the follow-up response")
	}
}

func TestHandleMessage_HighUrgencySkipsFollowUp(t *testing.T) {
	script := []string{
		"q1", "q2", "q3", "q4", "q5",
		`{"estimated_age": 16, "confidence": 8, "category": "teen"}`,
		"Urgency Score: 9\nPrimary Concern: overwhelming stress\nEmotional State: distressed\nRisk Level: high",
		"Please talk to someone you trust today. Here is where you can start.",
	}
	inv := &mockInvoker{replies: script}
	orch, st := newTestOrchestrator(inv)
	ctx := context.Background()

	if _, err := orch.HandleMessage(ctx, "user-3", "hi"); err != nil {
		t.Fatalf("welcome turn failed: %v", err)
	}
	if _, err := orch.HandleMessage(ctx, "user-3", "ready"); err != nil {
		t.Fatalf("first question turn failed: %v", err)
	}
	for i, answer := range []string{"a", "b", "c", "d", "e"} {
		if _, err := orch.HandleMessage(ctx, "user-3", answer); err != nil {
			t.Fatalf("turn %d failed: %v", i+1, err)
		}
	}

	state, err := st.GetConversation(ctx, "user-3")
	if err != nil || state == nil {
		t.Fatalf("expected persisted state, err=%v", err)
	}
	if state.FollowUpDone {
		t.Error("high urgency should skip the follow-up")
	}
	if state.Stage != models.StageComplete {
		t.Errorf("guidance should close the conversation, got stage %s", state.Stage)
	}
}

func TestHandleMessage_ExternalFailureFallsBack(t *testing.T) {
	inv := &mockInvoker{err: fmt.Errorf("%w: upstream down", models.ErrExternalService)}
	orch, st := newTestOrchestrator(inv)
	ctx := context.Background()

	if _, err := orch.HandleMessage(ctx, "user-4", "hi"); err != nil {
		t.Fatalf("welcome turn failed: %v", err)
	}
	result, err := orch.HandleMessage(ctx, "user-4", "ok")
	if err != nil {
		t.Fatalf("turn with failing invoker should still succeed: %v", err)
	}
	if result.Response == "" {
		t.Error("expected a fallback question despite the invoker failure")
	}
	if !strings.Contains(result.Response, fallbackQuestions[0]) {
		t.Errorf("expected the first fallback question, got %q", result.Response)
	}
	if !models.IsValidStage(result.Stage) {
		t.Errorf("expected a valid stage, got %q", result.Stage)
	}

	state, err := st.GetConversation(ctx, "user-4")
	if err != nil || state == nil {
		t.Fatalf("expected persisted state, err=%v", err)
	}
	if state.CurrentQuestion != fallbackQuestions[0] {
		t.Errorf("expected the fallback question to be recorded, got %q", state.CurrentQuestion)
	}
}

func TestHandleMessage_CompleteShortCircuits(t *testing.T) {
	inv := &mockInvoker{replies: []string{"should not be called"}}
	orch, st := newTestOrchestrator(inv)
	ctx := context.Background()

	state := models.NewConversationState("user-5")
	state.Stage = models.StageComplete
	state.AgeAssessmentComplete = true
	state.MentalAssessmentComplete = true
	state.FollowUpDone = true
	if err := st.SaveConversation(ctx, *state); err != nil {
		t.Fatalf("seed save failed: %v", err)
	}

	result, err := orch.HandleMessage(ctx, "user-5", "hello again")
	if err != nil {
		t.Fatalf("HandleMessage failed: %v", err)
	}
	if result.Stage != models.StageComplete {
		t.Errorf("expected stage %s, got %s", models.StageComplete, result.Stage)
	}
	if result.Response == "" {
		t.Error("completed conversations should still answer")
	}
	if inv.callCount() != 0 {
		t.Errorf("completed conversations must not call the model, got %d calls", inv.callCount())
	}
}

func TestHandleMessage_RejectsConcurrentTurns(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	inv := &blockingInvoker{started: started, release: release}
	orch, _ := newTestOrchestrator(inv)
	ctx := context.Background()

	if _, err := orch.HandleMessage(ctx, "user-6", "hi"); err != nil {
		t.Fatalf("welcome turn failed: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := orch.HandleMessage(ctx, "user-6", "first")
		errCh <- err
	}()
	<-started

	_, err := orch.HandleMessage(ctx, "user-6", "second")
	if !errors.Is(err, models.ErrTurnInProgress) {
		t.Errorf("expected ErrTurnInProgress for an overlapping turn, got %v", err)
	}
	close(release)
	if err := <-errCh; err != nil {
		t.Errorf("first turn should have completed: %v", err)
	}

	// Once the first turn drains, the identity is admissible again.
	if _, err := orch.HandleMessage(ctx, "user-6", "third"); err != nil {
		t.Errorf("expected the gate to release, got %v", err)
	}
}

// blockingInvoker signals when a call arrives and holds it until released.
type blockingInvoker struct {
	once    sync.Once
	started chan struct{}
	release chan struct{}
}

func (b *blockingInvoker) Invoke(_ context.Context, _, _ string) (string, error) {
	b.once.Do(func() { close(b.started) })
	<-b.release
	return "What is your favorite hobby?", nil
}

func TestHandleMessage_CancelledContextStillPersists(t *testing.T) {
	inv := &mockInvoker{replies: []string{"What games do you enjoy?"}}
	orch, st := newTestOrchestrator(inv)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := orch.HandleMessage(ctx, "user-7", "hi")
	if err != nil {
		t.Fatalf("a cancelled caller should not abort the turn: %v", err)
	}
	if result.Response == "" {
		t.Error("expected a response despite the cancelled context")
	}
	state, err := st.GetConversation(context.Background(), "user-7")
	if err != nil || state == nil {
		t.Fatalf("expected the turn to persist, state=%v err=%v", state, err)
	}
}

func TestHandleMessage_EmptyIdentity(t *testing.T) {
	orch, _ := newTestOrchestrator(&mockInvoker{})
	_, err := orch.HandleMessage(context.Background(), "  ", "hi")
	if !errors.Is(err, models.ErrEmptyIdentity) {
		t.Errorf("expected ErrEmptyIdentity, got %v", err)
	}
}

func TestHandleMessage_MigratesUnknownStage(t *testing.T) {
	inv := &mockInvoker{replies: []string{"q"}}
	orch, st := newTestOrchestrator(inv)
	ctx := context.Background()

	state := models.NewConversationState("user-8")
	state.Stage = models.Stage("LEGACY_STAGE")
	if err := st.SaveConversation(ctx, *state); err != nil {
		t.Fatalf("seed save failed: %v", err)
	}

	result, err := orch.HandleMessage(ctx, "user-8", "hello")
	if err != nil {
		t.Fatalf("HandleMessage failed: %v", err)
	}
	if !models.IsValidStage(result.Stage) {
		t.Errorf("expected migration to a valid stage, got %q", result.Stage)
	}
}

func TestRestart_ClearsState(t *testing.T) {
	script := []string{"q1", "q2"}
	inv := &mockInvoker{replies: script}
	orch, st := newTestOrchestrator(inv)
	ctx := context.Background()

	if _, err := orch.HandleMessage(ctx, "user-9", "hi"); err != nil {
		t.Fatalf("welcome turn failed: %v", err)
	}
	if _, err := orch.HandleMessage(ctx, "user-9", "I like reading"); err != nil {
		t.Fatalf("answer turn failed: %v", err)
	}

	result, err := orch.Restart(ctx, "user-9")
	if err != nil {
		t.Fatalf("Restart failed: %v", err)
	}
	if result.Stage != models.StageAgeQuestioning {
		t.Errorf("restart should land after the greeting, got %s", result.Stage)
	}

	state, err := st.GetConversation(ctx, "user-9")
	if err != nil || state == nil {
		t.Fatalf("expected restarted state, err=%v", err)
	}
	if state.AgeQuestionsAsked != 0 || len(state.AgeAnswers) != 0 {
		t.Error("restart should drop all battery progress")
	}
	if state.AgeAssessmentComplete || state.MentalAssessmentComplete {
		t.Error("restart should clear assessment flags")
	}
}

func TestReport(t *testing.T) {
	orch, st := newTestOrchestrator(&mockInvoker{})
	ctx := context.Background()

	if _, err := orch.Report(ctx, "nobody"); !errors.Is(err, models.ErrConversationNotFound) {
		t.Errorf("expected ErrConversationNotFound, got %v", err)
	}

	partial := models.NewConversationState("user-10")
	if err := st.SaveConversation(ctx, *partial); err != nil {
		t.Fatalf("seed save failed: %v", err)
	}
	if _, err := orch.Report(ctx, "user-10"); !errors.Is(err, models.ErrAssessmentIncomplete) {
		t.Errorf("expected ErrAssessmentIncomplete, got %v", err)
	}

	done := models.NewConversationState("user-11")
	done.AgeAssessmentComplete = true
	done.AgeResult = &models.AgeResult{EstimatedAge: 11, Confidence: 7, Category: models.AgeCategoryChild}
	done.MentalAssessmentComplete = true
	done.MentalResult = &models.MentalResult{Urgency: 3, PrimaryConcern: "school stress", EmotionalState: "calm", RiskLevel: models.RiskLevelLow}
	if err := st.SaveConversation(ctx, *done); err != nil {
		t.Fatalf("seed save failed: %v", err)
	}
	report, err := orch.Report(ctx, "user-11")
	if err != nil {
		t.Fatalf("Report failed: %v", err)
	}
	if report.MaturityBand != models.MaturityBandIntermediate {
		t.Errorf("expected intermediate band for age 11, got %s", report.MaturityBand)
	}
	if len(report.Resources) == 0 {
		t.Error("expected guidance resources in the report")
	}
}
