// Package flow implements the conversational assessment state machine: stage
// handlers, the deterministic router, and the orchestrator that drives one
// turn per inbound message.
package flow

import "context"

// CompletionInvoker is the throttled completion-service dependency of the
// stage handlers. genai.Invoker satisfies it; tests substitute scripted
// implementations.
type CompletionInvoker interface {
	Invoke(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Tunables of the assessment state machine.
const (
	// AgeQuestionCount is the size of the age-diagnostic question battery.
	AgeQuestionCount = 5
	// HighUrgencyThreshold routes straight to guidance, skipping follow-up.
	HighUrgencyThreshold = 8
	// promptHistoryLimit bounds how many history entries feed a prompt.
	// Storage always keeps the full history.
	promptHistoryLimit = 6
	// maxDispatchesPerTurn caps handler chaining inside a single turn so a
	// routing defect can never loop a conversation forever.
	maxDispatchesPerTurn = 5
)

// Documented parser defaults used when completion output is malformed.
const (
	DefaultEstimatedAge   = 15
	DefaultConfidence     = 5
	DefaultUrgency        = 5
	DefaultConcern        = "general"
	DefaultEmotionalState = "uncertain"
)
