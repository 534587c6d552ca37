// Package flow stage handlers for the assessment state machine.
package flow

import (
	"context"
	"log/slog"
	"strings"

	"github.com/mindsupport/compass/internal/models"
	"github.com/mindsupport/compass/internal/parse"
)

// AssessmentFlow holds the stage handlers and their shared completion
// dependency. Handlers mutate the conversation state in place; a handler that
// produces user-facing text sets CurrentResponse and appends it to history,
// while analysis-only handlers leave CurrentResponse empty so the orchestrator
// chains into the next routed stage within the same turn.
//
// Handlers never fail the turn on completion-service errors: each one
// degrades to its static fallback content instead.
type AssessmentFlow struct {
	invoker CompletionInvoker
}

// NewAssessmentFlow creates the stage handler set around a throttled
// completion invoker.
func NewAssessmentFlow(invoker CompletionInvoker) *AssessmentFlow {
	return &AssessmentFlow{invoker: invoker}
}

// Dispatch routes the state and runs exactly one stage handler. It returns
// the stage that handled the dispatch.
func (f *AssessmentFlow) Dispatch(ctx context.Context, s *models.ConversationState) models.Stage {
	stage := Route(s)
	slog.Debug("AssessmentFlow.Dispatch: routed", "identity", s.Identity, "stage", stage)

	if stage != models.StageComplete {
		s.Stage = stage
	}
	switch stage {
	case models.StageWelcome:
		f.handleWelcome(s)
	case models.StageAgeQuestioning:
		f.handleAgeQuestioning(ctx, s)
	case models.StageAgeEvaluating:
		f.handleAgeEvaluating(ctx, s)
	case models.StageMentalAssessment:
		f.handleMentalAssessment(ctx, s)
	case models.StageFollowUp:
		f.handleFollowUp(ctx, s)
	case models.StageGuidance:
		f.handleGuidance(ctx, s)
	case models.StageComplete:
		f.handleComplete(s)
	}
	return stage
}

// handleWelcome emits the fixed greeting and moves the conversation into the
// question battery. No completion call is made.
func (f *AssessmentFlow) handleWelcome(s *models.ConversationState) {
	s.CurrentResponse = welcomeMessage
	s.AppendHistory(models.RoleAssistant, welcomeMessage)
	s.Stage = models.StageAgeQuestioning
	slog.Info("AssessmentFlow.handleWelcome: conversation started", "identity", s.Identity)
}

// handleAgeQuestioning records the answer to the outstanding question (if
// any), then either asks the next question or, once the battery is full,
// yields to age evaluation without producing a response.
func (f *AssessmentFlow) handleAgeQuestioning(ctx context.Context, s *models.ConversationState) {
	if s.CurrentQuestion != "" {
		s.AgeAnswers = append(s.AgeAnswers, s.LastUserMessage())
		s.AgeQuestionsAsked++
		s.CurrentQuestion = ""
		slog.Debug("AssessmentFlow.handleAgeQuestioning: answer recorded",
			"identity", s.Identity, "answered", s.AgeQuestionsAsked)
	}

	if s.AgeQuestionsAsked >= AgeQuestionCount {
		// Battery complete; the evaluation stage takes over this turn.
		return
	}

	question, err := f.invoker.Invoke(ctx, ageQuestionSystemPrompt,
		ageQuestionPrompt(s.AgeQuestionsAsked+1, s.AgeAnswers))
	if err != nil || strings.TrimSpace(question) == "" {
		slog.Warn("AssessmentFlow.handleAgeQuestioning: generation failed, using fallback question",
			"identity", s.Identity, "error", err)
		question = fallbackQuestion(s.AgeQuestionsAsked)
	}
	question = strings.TrimSpace(question)

	s.CurrentQuestion = question
	s.CurrentResponse = formatQuestion(s.AgeQuestionsAsked+1, question)
	s.AppendHistory(models.RoleAssistant, s.CurrentResponse)
}

// ageEvaluation is the JSON shape requested from the completion service.
type ageEvaluation struct {
	EstimatedAge int      `json:"estimated_age"`
	Confidence   *int     `json:"confidence"` // pointer so an absent field keeps the default
	Category     string   `json:"category"`
	Indicators   []string `json:"indicators"`
}

// handleAgeEvaluating turns the full answer battery into a structured age
// result. Malformed output degrades to the documented defaults; the flag flips
// exactly once and is never unset.
func (f *AssessmentFlow) handleAgeEvaluating(ctx context.Context, s *models.ConversationState) {
	result := &models.AgeResult{
		EstimatedAge: DefaultEstimatedAge,
		Confidence:   DefaultConfidence,
	}

	reply, err := f.invoker.Invoke(ctx, ageEvaluationSystemPrompt, ageEvaluationPrompt(s.AgeAnswers))
	if err != nil {
		slog.Warn("AssessmentFlow.handleAgeEvaluating: evaluation call failed, using defaults",
			"identity", s.Identity, "error", err)
	} else {
		var eval ageEvaluation
		if perr := parse.JSONBlock(reply, &eval); perr != nil {
			slog.Warn("AssessmentFlow.handleAgeEvaluating: malformed evaluation, using defaults",
				"identity", s.Identity, "error", perr)
		} else {
			if eval.EstimatedAge != 0 {
				result.EstimatedAge = parse.Clamp(eval.EstimatedAge, 5, 18)
			}
			if eval.Confidence != nil {
				result.Confidence = parse.Clamp(*eval.Confidence, 0, 10)
			}
			result.Indicators = eval.Indicators
			eval.Category = strings.ToLower(eval.Category)
			switch {
			case strings.Contains(eval.Category, "child"):
				result.Category = models.AgeCategoryChild
			case strings.Contains(eval.Category, "teen"):
				result.Category = models.AgeCategoryTeen
			case strings.Contains(eval.Category, "young"):
				result.Category = models.AgeCategoryYoungAdult
			case strings.Contains(eval.Category, "adult"):
				result.Category = models.AgeCategoryAdult
			}
		}
	}
	if result.Category == "" {
		result.Category = models.AgeCategoryForAge(result.EstimatedAge)
	}

	s.AgeResult = result
	s.AgeAssessmentComplete = true
	slog.Info("AssessmentFlow.handleAgeEvaluating: age assessment complete",
		"identity", s.Identity, "estimatedAge", result.EstimatedAge,
		"category", result.Category, "confidence", result.Confidence)
}

// handleMentalAssessment triages the latest user input with labelled-line
// parsing. Every field falls back to its own documented default.
func (f *AssessmentFlow) handleMentalAssessment(ctx context.Context, s *models.ConversationState) {
	result := &models.MentalResult{
		Urgency:        DefaultUrgency,
		PrimaryConcern: DefaultConcern,
		EmotionalState: DefaultEmotionalState,
		RiskLevel:      models.RiskLevelLow,
	}

	reply, err := f.invoker.Invoke(ctx, mentalAssessmentSystemPrompt,
		mentalAssessmentPrompt(s.LastUserMessage(), s.AgeResult))
	if err != nil {
		slog.Warn("AssessmentFlow.handleMentalAssessment: triage call failed, using defaults",
			"identity", s.Identity, "error", err)
	} else {
		result.Urgency = parse.Number(reply, "Urgency Score", DefaultUrgency, 1, 10)
		result.PrimaryConcern = parse.Text(reply, "Primary Concern", DefaultConcern)
		result.EmotionalState = parse.Text(reply, "Emotional State", DefaultEmotionalState)
		result.RiskLevel = models.RiskLevel(parse.Enum(reply, "Risk Level",
			[]string{"medium", "high", "low"}, string(models.RiskLevelLow)))
	}

	s.MentalResult = result
	s.MentalAssessmentComplete = true
	slog.Info("AssessmentFlow.handleMentalAssessment: triage complete",
		"identity", s.Identity, "urgency", result.Urgency,
		"concern", result.PrimaryConcern, "risk", result.RiskLevel)
}

// handleFollowUp asks one empathetic follow-up question.
func (f *AssessmentFlow) handleFollowUp(ctx context.Context, s *models.ConversationState) {
	followUp, err := f.invoker.Invoke(ctx, followUpSystemPrompt, followUpPrompt(s))
	if err != nil || strings.TrimSpace(followUp) == "" {
		slog.Warn("AssessmentFlow.handleFollowUp: generation failed, using fallback",
			"identity", s.Identity, "error", err)
		followUp = fallbackFollowUpMessage
	}

	s.FollowUpDone = true
	s.CurrentResponse = strings.TrimSpace(followUp)
	s.AppendHistory(models.RoleAssistant, s.CurrentResponse)
}

// handleGuidance delivers the final guidance and completes the conversation.
func (f *AssessmentFlow) handleGuidance(ctx context.Context, s *models.ConversationState) {
	guidance, err := f.invoker.Invoke(ctx, guidanceSystemPrompt, guidancePrompt(s))
	if err != nil || strings.TrimSpace(guidance) == "" {
		slog.Warn("AssessmentFlow.handleGuidance: generation failed, using fallback",
			"identity", s.Identity, "error", err)
		guidance = fallbackGuidance(s)
	}

	s.CurrentResponse = strings.TrimSpace(guidance)
	s.AppendHistory(models.RoleAssistant, s.CurrentResponse)
	s.Stage = models.StageComplete
	slog.Info("AssessmentFlow.handleGuidance: conversation complete", "identity", s.Identity)
}

// handleComplete answers messages to a finished conversation with the fixed
// short-circuit response. The completion service is never invoked.
func (f *AssessmentFlow) handleComplete(s *models.ConversationState) {
	s.CurrentResponse = completedMessage
	s.AppendHistory(models.RoleAssistant, completedMessage)
}
