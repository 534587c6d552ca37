package flow

import (
	"context"
	"testing"

	"github.com/mindsupport/compass/internal/models"
)

func batteryState(identity string) *models.ConversationState {
	s := models.NewConversationState(identity)
	s.Stage = models.StageAgeEvaluating
	s.AgeAnswers = []string{"play games", "ask parents", "grades", "science", "games"}
	s.AgeQuestionsAsked = AgeQuestionCount
	return s
}

func TestHandleAgeEvaluating_PartialJSONKeepsFieldDefaults(t *testing.T) {
	tests := []struct {
		name           string
		reply          string
		wantAge        int
		wantConfidence int
		wantCategory   models.AgeCategory
	}{
		{
			name:           "confidence omitted keeps its default",
			reply:          `{"estimated_age": 12, "category": "child"}`,
			wantAge:        12,
			wantConfidence: DefaultConfidence,
			wantCategory:   models.AgeCategoryChild,
		},
		{
			name:           "age omitted keeps its default",
			reply:          `{"confidence": 8, "category": "teen"}`,
			wantAge:        DefaultEstimatedAge,
			wantConfidence: 8,
			wantCategory:   models.AgeCategoryTeen,
		},
		{
			name:           "explicit zero confidence is honored, not defaulted",
			reply:          `{"estimated_age": 12, "confidence": 0, "category": "child"}`,
			wantAge:        12,
			wantConfidence: 0,
			wantCategory:   models.AgeCategoryChild,
		},
		{
			name:           "empty object keeps every default",
			reply:          `{}`,
			wantAge:        DefaultEstimatedAge,
			wantConfidence: DefaultConfidence,
			wantCategory:   models.AgeCategoryTeen, // derived from the default age
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			af := NewAssessmentFlow(&mockInvoker{replies: []string{tt.reply}})
			state := batteryState("user-eval")

			af.handleAgeEvaluating(context.Background(), state)

			if !state.AgeAssessmentComplete || state.AgeResult == nil {
				t.Fatal("expected a completed age assessment")
			}
			if state.AgeResult.EstimatedAge != tt.wantAge {
				t.Errorf("EstimatedAge = %d, want %d", state.AgeResult.EstimatedAge, tt.wantAge)
			}
			if state.AgeResult.Confidence != tt.wantConfidence {
				t.Errorf("Confidence = %d, want %d", state.AgeResult.Confidence, tt.wantConfidence)
			}
			if state.AgeResult.Category != tt.wantCategory {
				t.Errorf("Category = %s, want %s", state.AgeResult.Category, tt.wantCategory)
			}
		})
	}
}
