// Package models defines the core data structures for Compass.
//
// It includes the conversation stage machine vocabulary, assessment result
// types, and the API request/response envelopes shared across modules.
package models

import (
	"errors"
	"strings"
)

// Stage identifies a phase of the conversation state machine.
type Stage string

const (
	// StageWelcome greets a freshly created conversation.
	StageWelcome Stage = "WELCOME"
	// StageAgeQuestioning runs the adaptive battery of age-diagnostic questions.
	StageAgeQuestioning Stage = "AGE_QUESTIONING"
	// StageAgeEvaluating produces the structured age result from all answers.
	StageAgeEvaluating Stage = "AGE_EVALUATING"
	// StageMentalAssessment triages the user's free-text mental state.
	StageMentalAssessment Stage = "MENTAL_ASSESSMENT"
	// StageFollowUp asks one empathetic follow-up question.
	StageFollowUp Stage = "FOLLOW_UP"
	// StageGuidance delivers the final multi-part guidance text.
	StageGuidance Stage = "GUIDANCE"
	// StageComplete marks a finished conversation.
	StageComplete Stage = "COMPLETE"
)

// IsValidStage checks whether the given stage is part of the state machine.
func IsValidStage(s Stage) bool {
	switch s {
	case StageWelcome, StageAgeQuestioning, StageAgeEvaluating,
		StageMentalAssessment, StageFollowUp, StageGuidance, StageComplete:
		return true
	default:
		return false
	}
}

// NormalizeStage migrates a persisted stage value to a recognized stage.
// Unrecognized values map to StageWelcome; the second return reports whether
// a migration was necessary so callers can log the corruption.
func NormalizeStage(raw string) (Stage, bool) {
	s := Stage(strings.ToUpper(strings.TrimSpace(raw)))
	if IsValidStage(s) {
		return s, false
	}
	return StageWelcome, true
}

// AgeCategory buckets the estimated age the way the assessment prompts do.
type AgeCategory string

const (
	AgeCategoryChild      AgeCategory = "child"       // 5-12
	AgeCategoryTeen       AgeCategory = "teen"        // 13-17
	AgeCategoryYoungAdult AgeCategory = "young_adult" // 18-24
	AgeCategoryAdult      AgeCategory = "adult"       // 25+
)

// AgeCategoryForAge derives the category bucket from an estimated age.
func AgeCategoryForAge(age int) AgeCategory {
	switch {
	case age <= 12:
		return AgeCategoryChild
	case age <= 17:
		return AgeCategoryTeen
	case age <= 24:
		return AgeCategoryYoungAdult
	default:
		return AgeCategoryAdult
	}
}

// RiskLevel grades the mental-state triage result.
type RiskLevel string

const (
	RiskLevelLow    RiskLevel = "low"
	RiskLevelMedium RiskLevel = "medium"
	RiskLevelHigh   RiskLevel = "high"
)

// MaturityBand maps an estimated age to a coarse learning-maturity level used
// when toning guidance content.
type MaturityBand string

const (
	MaturityBandBeginner     MaturityBand = "beginner"     // 5-8
	MaturityBandIntermediate MaturityBand = "intermediate" // 9-12
	MaturityBandAdvanced     MaturityBand = "advanced"     // 13-16
	MaturityBandExpert       MaturityBand = "expert"       // 17+
)

// MaturityBandForAge derives the maturity band from an estimated age.
func MaturityBandForAge(age int) MaturityBand {
	switch {
	case age <= 8:
		return MaturityBandBeginner
	case age <= 12:
		return MaturityBandIntermediate
	case age <= 16:
		return MaturityBandAdvanced
	default:
		return MaturityBandExpert
	}
}

// AgeResult holds the structured outcome of the age evaluation stage.
type AgeResult struct {
	EstimatedAge int         `json:"estimated_age"` // clamped to [5,18]
	Confidence   int         `json:"confidence"`    // clamped to [0,10]
	Category     AgeCategory `json:"category"`
	Indicators   []string    `json:"indicators,omitempty"`
}

// MentalResult holds the structured outcome of the mental-state triage.
type MentalResult struct {
	Urgency        int       `json:"urgency"` // clamped to [1,10]
	PrimaryConcern string    `json:"primary_concern"`
	EmotionalState string    `json:"emotional_state"`
	RiskLevel      RiskLevel `json:"risk_level"`
}

// Error variables for the orchestrator's failure taxonomy.
var (
	// ErrExternalService indicates the completion service is unusable after
	// exhausting retries. Stage handlers degrade to static fallback content.
	ErrExternalService = errors.New("completion service unavailable")
	// ErrRateLimited marks a rate-limit-class completion failure; the invoker
	// retries these with backoff.
	ErrRateLimited = errors.New("completion service rate limited")
	// ErrTurnInProgress is returned when a second turn is admitted for an
	// identity whose previous turn has not finished. Callers should retry.
	ErrTurnInProgress = errors.New("turn already in progress for this conversation")
	// ErrAssessmentIncomplete is returned when a report is requested before
	// the assessment has finished.
	ErrAssessmentIncomplete = errors.New("assessment not yet complete")
	// ErrConversationNotFound is returned when no state exists for an
	// identity that requires one.
	ErrConversationNotFound = errors.New("conversation not found")
	// ErrEmptyIdentity rejects requests without a conversation identity.
	ErrEmptyIdentity = errors.New("identity cannot be empty")
	// ErrEmptyMessage rejects requests without message text.
	ErrEmptyMessage = errors.New("message text cannot be empty")
	// ErrAnswerCountMismatch reports a violated answer-count invariant:
	// len(AgeAnswers) must always equal AgeQuestionsAsked.
	ErrAnswerCountMismatch = errors.New("age answer count does not match questions asked")
)

// TurnResult is the outbound envelope for a single orchestrated turn.
type TurnResult struct {
	Identity string `json:"identity"`
	Response string `json:"response"`
	Stage    Stage  `json:"stage"`
	Progress string `json:"progress,omitempty"` // "n/5" while questioning, else absent
}

// AssessmentReport summarizes a completed assessment for the report endpoint.
type AssessmentReport struct {
	Identity     string             `json:"identity"`
	AgeResult    *AgeResult         `json:"age_result"`
	MaturityBand MaturityBand       `json:"maturity_band"`
	MentalResult *MentalResult      `json:"mental_result"`
	Resources    []GuidanceResource `json:"resources,omitempty"`
}

// GuidanceResource points the user at a site area relevant to their result.
type GuidanceResource struct {
	Topic       string `json:"topic"`
	Path        string `json:"path"`
	Description string `json:"description"`
}

// ChatStartRequest begins a fresh conversation, replacing any stored state
// for the identity. Identity is optional; the server mints one when absent.
type ChatStartRequest struct {
	Identity string `json:"identity,omitempty"`
}

// ChatMessageRequest carries one inbound user message.
type ChatMessageRequest struct {
	Identity string `json:"identity"`
	Text     string `json:"text"`
}

// Validate checks the message request fields.
func (r *ChatMessageRequest) Validate() error {
	if strings.TrimSpace(r.Identity) == "" {
		return ErrEmptyIdentity
	}
	if strings.TrimSpace(r.Text) == "" {
		return ErrEmptyMessage
	}
	return nil
}

// ChatRestartRequest asks for a fresh conversation under the same identity.
type ChatRestartRequest struct {
	Identity string `json:"identity"`
}

// Validate checks the restart request fields.
func (r *ChatRestartRequest) Validate() error {
	if strings.TrimSpace(r.Identity) == "" {
		return ErrEmptyIdentity
	}
	return nil
}

// API response status values.
const (
	APIStatusOK    = "ok"
	APIStatusError = "error"
)

// APIResponse is the uniform HTTP response envelope.
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// Success creates a successful API response carrying result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: APIStatusOK, Result: result}
}

// SuccessWithMessage creates a successful API response with a message.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return APIResponse{Status: APIStatusOK, Message: message, Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: APIStatusError, Message: message}
}
