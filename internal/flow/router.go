// Package flow deterministic stage routing.
package flow

import "github.com/mindsupport/compass/internal/models"

// Route maps a conversation state to the stage that must handle the next
// dispatch. It is a pure function: no I/O, no mutation, and the predicate set
// is mutually exclusive and exhaustive, so exactly one stage is produced for
// any state and repeated calls agree.
//
// Priority order: completed conversations short-circuit; fresh conversations
// are welcomed; the age assessment runs to completion before the mental
// assessment; follow-up precedes guidance unless the triage urgency is high
// enough to warrant skipping straight to guidance.
func Route(s *models.ConversationState) models.Stage {
	switch {
	case s.Stage == models.StageComplete:
		return models.StageComplete
	case s.Stage == models.StageWelcome:
		return models.StageWelcome
	case !s.AgeAssessmentComplete && s.AgeQuestionsAsked < AgeQuestionCount:
		return models.StageAgeQuestioning
	case !s.AgeAssessmentComplete:
		return models.StageAgeEvaluating
	case !s.MentalAssessmentComplete:
		return models.StageMentalAssessment
	case !s.FollowUpDone && !highUrgency(s):
		return models.StageFollowUp
	default:
		return models.StageGuidance
	}
}

// highUrgency reports whether the triage result warrants immediate guidance.
func highUrgency(s *models.ConversationState) bool {
	return s.MentalResult != nil && s.MentalResult.Urgency >= HighUrgencyThreshold
}
