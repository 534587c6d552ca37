// Package flow top-level turn orchestration: load state, dispatch stage
// handlers, persist, respond.
package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mindsupport/compass/internal/metrics"
	"github.com/mindsupport/compass/internal/models"
	"github.com/mindsupport/compass/internal/store"
)

// Orchestrator drives one conversation turn per inbound message. It owns the
// per-identity admission gate: at most one turn is in flight for an identity
// at any time, while turns for different identities run fully in parallel.
type Orchestrator struct {
	st   store.Store
	flow *AssessmentFlow

	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewOrchestrator creates an orchestrator over the given store and flow.
func NewOrchestrator(st store.Store, flow *AssessmentFlow) *Orchestrator {
	return &Orchestrator{
		st:       st,
		flow:     flow,
		inflight: make(map[string]struct{}),
	}
}

// admit reserves the identity for one turn. It fails fast with
// models.ErrTurnInProgress instead of queueing, so callers can retry.
func (o *Orchestrator) admit(identity string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.inflight[identity]; busy {
		metrics.RecordTurnConflict()
		return models.ErrTurnInProgress
	}
	o.inflight[identity] = struct{}{}
	return nil
}

// release frees the identity after a turn.
func (o *Orchestrator) release(identity string) {
	o.mu.Lock()
	delete(o.inflight, identity)
	o.mu.Unlock()
}

// HandleMessage processes one inbound user message and returns the response
// envelope. The resulting state is persisted unconditionally so a
// conversation never silently resets; only store unavailability propagates as
// an error.
func (o *Orchestrator) HandleMessage(ctx context.Context, identity, text string) (*models.TurnResult, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return nil, models.ErrEmptyIdentity
	}
	if err := o.admit(identity); err != nil {
		slog.Warn("Orchestrator.HandleMessage: turn rejected", "identity", identity)
		return nil, err
	}
	defer o.release(identity)

	// An abandoned inbound request must not cancel an in-flight completion
	// call mid-turn: the turn finishes and its state is persisted, which
	// keeps the stored conversation consistent with what the service did.
	ctx = context.WithoutCancel(ctx)

	start := time.Now()
	state, err := o.loadOrCreate(ctx, identity)
	if err != nil {
		return nil, err
	}

	state.AppendHistory(models.RoleUser, text)
	state.CurrentResponse = ""

	// Dispatch stage handlers until one produces user-facing text. Analysis
	// stages (age evaluation, mental triage) chain within the same turn.
	var stage models.Stage
	for i := 0; i < maxDispatchesPerTurn; i++ {
		stage = o.flow.Dispatch(ctx, state)
		if state.CurrentResponse != "" {
			break
		}
	}
	if state.CurrentResponse == "" {
		slog.Error("Orchestrator.HandleMessage: no handler produced a response",
			"identity", identity, "stage", stage)
		state.CurrentResponse = stuckTurnMessage
		state.AppendHistory(models.RoleAssistant, stuckTurnMessage)
	}

	if err := state.CheckInvariants(); err != nil {
		// Log loudly but still persist and respond; the parser and handlers
		// are responsible for never producing this.
		slog.Error("Orchestrator.HandleMessage: state invariant violated",
			"identity", identity, "error", err)
	}

	state.UpdatedAt = time.Now()
	if err := o.st.SaveConversation(ctx, *state); err != nil {
		slog.Error("Orchestrator.HandleMessage: failed to persist state",
			"identity", identity, "error", err)
		return nil, fmt.Errorf("failed to persist conversation state: %w", err)
	}

	metrics.RecordTurn(string(state.Stage), time.Since(start))
	slog.Info("Orchestrator.HandleMessage: turn complete",
		"identity", identity, "stage", state.Stage, "duration", time.Since(start))
	return o.envelope(state), nil
}

// Restart discards any persisted state for the identity and starts a fresh
// conversation, returning the welcome turn.
func (o *Orchestrator) Restart(ctx context.Context, identity string) (*models.TurnResult, error) {
	if identity == "" {
		return nil, models.ErrEmptyIdentity
	}
	if err := o.admit(identity); err != nil {
		return nil, err
	}
	defer o.release(identity)

	ctx = context.WithoutCancel(ctx)
	if err := o.st.DeleteConversation(ctx, identity); err != nil {
		return nil, fmt.Errorf("failed to clear conversation state: %w", err)
	}

	state := models.NewConversationState(identity)
	o.flow.handleWelcome(state)
	state.UpdatedAt = time.Now()
	if err := o.st.SaveConversation(ctx, *state); err != nil {
		return nil, fmt.Errorf("failed to persist conversation state: %w", err)
	}

	slog.Info("Orchestrator.Restart: conversation restarted", "identity", identity)
	return o.envelope(state), nil
}

// Report assembles the assessment report for a completed conversation.
func (o *Orchestrator) Report(ctx context.Context, identity string) (*models.AssessmentReport, error) {
	if identity == "" {
		return nil, models.ErrEmptyIdentity
	}
	state, err := o.st.GetConversation(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation state: %w", err)
	}
	if state == nil {
		return nil, models.ErrConversationNotFound
	}
	if !state.AgeAssessmentComplete || !state.MentalAssessmentComplete {
		return nil, models.ErrAssessmentIncomplete
	}

	band := models.MaturityBandForAge(state.AgeResult.EstimatedAge)
	return &models.AssessmentReport{
		Identity:     identity,
		AgeResult:    state.AgeResult,
		MaturityBand: band,
		MentalResult: state.MentalResult,
		Resources:    GuidanceResources(state.MentalResult.PrimaryConcern, band),
	}, nil
}

// loadOrCreate fetches the persisted state or creates a fresh one, recovering
// from unrecognized persisted stage values by resetting to WELCOME.
func (o *Orchestrator) loadOrCreate(ctx context.Context, identity string) (*models.ConversationState, error) {
	state, err := o.st.GetConversation(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation state: %w", err)
	}
	if state == nil {
		slog.Debug("Orchestrator.loadOrCreate: creating fresh conversation", "identity", identity)
		return models.NewConversationState(identity), nil
	}

	stage, migrated := models.NormalizeStage(string(state.Stage))
	if migrated {
		slog.Warn("Orchestrator.loadOrCreate: unrecognized persisted stage, resetting to WELCOME",
			"identity", identity, "stage", state.Stage)
	}
	state.Stage = stage
	return state, nil
}

// envelope builds the outbound turn envelope. Progress is only reported
// while the question battery is running.
func (o *Orchestrator) envelope(state *models.ConversationState) *models.TurnResult {
	result := &models.TurnResult{
		Identity: state.Identity,
		Response: state.CurrentResponse,
		Stage:    state.Stage,
	}
	if state.Stage == models.StageAgeQuestioning {
		result.Progress = fmt.Sprintf("%d/%d", state.AgeQuestionsAsked, AgeQuestionCount)
	}
	return result
}
