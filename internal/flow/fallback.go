// Package flow static fallback content used when the completion service is
// unusable. The user always receives a well-formed response.
package flow

import (
	"fmt"

	"github.com/mindsupport/compass/internal/models"
)

// Fixed stage responses that never require the completion service.
const (
	welcomeMessage = "Hello! I'm here to support you. I'd like to start with a " +
		"short five-question check-in so I can understand you better, and then " +
		"we can talk about whatever is on your mind. Ready when you are!"

	completedMessage = "Your assessment is already complete. If you'd like to " +
		"start over, just ask to restart the conversation."

	fallbackFollowUpMessage = "Thank you for sharing that with me. It sounds " +
		"like a lot to carry. Can you tell me a bit more about when this " +
		"started, or what tends to make it feel better or worse?"

	// stuckTurnMessage is the last-resort reply if no handler produced a
	// response within a turn.
	stuckTurnMessage = "I'm sorry, I had trouble processing that. Could you " +
		"tell me a little more about what's on your mind?"
)

// fallbackQuestions stands in for generated age-diagnostic questions when
// generation fails entirely.
var fallbackQuestions = []string{
	"What comes next in this pattern: 2, 4, 6, 8, ?",
	"If you have 3 apples and give away 1, how many do you have left?",
	"What is the opposite of 'hot'?",
	"Can you solve this: 5 + 3 = ?",
	"What do you think happens when ice melts?",
}

// fallbackQuestion returns the static question for the given zero-based slot.
func fallbackQuestion(questionIndex int) string {
	return fallbackQuestions[questionIndex%len(fallbackQuestions)]
}

// fallbackGuidance returns static closing guidance toned per age category.
func fallbackGuidance(state *models.ConversationState) string {
	category := models.AgeCategoryAdult
	if state.AgeResult != nil {
		category = state.AgeResult.Category
	}
	switch category {
	case models.AgeCategoryChild:
		return "Thank you for talking with me today! Remember: it's always okay to " +
			"tell a parent, teacher, or another grown-up you trust how you feel. " +
			"Doing something you enjoy, like drawing or playing outside, can help " +
			"when things feel big. You did a great job sharing today."
	case models.AgeCategoryTeen:
		return "Thanks for being open with me. What you're feeling is valid, and " +
			"you don't have to figure it out alone. Talking to a trusted adult or " +
			"school counselor, keeping a simple routine, and making time for things " +
			"you enjoy all genuinely help. If things ever feel overwhelming, please " +
			"reach out to someone right away. You've got this."
	default:
		return "Thank you for sharing. Consider building small, consistent habits: " +
			"regular sleep, brief daily exercise, and honest conversations with " +
			"people you trust. If these feelings persist or intensify, speaking " +
			"with a licensed counselor is a strong and practical next step. " +
			"You deserve support, and reaching out is a sign of strength."
	}
}

// siteResources maps guidance topics to areas of the companion site.
var siteResources = map[string]models.GuidanceResource{
	"homework": {Topic: "homework", Path: "/homework-assistance",
		Description: "Get personalized help with your homework assignments across all subjects"},
	"progress": {Topic: "progress", Path: "/progress-tracker",
		Description: "Track your learning progress and see your achievements"},
	"practice": {Topic: "practice", Path: "/practice-tests",
		Description: "Take practice tests and quizzes to reinforce your learning"},
	"study": {Topic: "study", Path: "/study-materials",
		Description: "Access study guides, notes, and educational resources"},
	"schedule": {Topic: "schedule", Path: "/study-schedule",
		Description: "Create and manage your personalized study schedule"},
	"tutoring": {Topic: "tutoring", Path: "/live-tutoring",
		Description: "Connect with live tutors for one-on-one help"},
	"games": {Topic: "games", Path: "/educational-games",
		Description: "Learn through fun and interactive educational games"},
}

// GuidanceResources selects site resources for a completed assessment. The
// selection is deterministic: concern-specific areas first, then a
// band-appropriate extra.
func GuidanceResources(concern string, band models.MaturityBand) []models.GuidanceResource {
	var picks []string
	switch concern {
	case "academic", "stress":
		picks = []string{"homework", "study", "schedule"}
	case "family", "relationships":
		picks = []string{"tutoring", "progress"}
	default:
		picks = []string{"study", "progress"}
	}
	if band == models.MaturityBandBeginner || band == models.MaturityBandIntermediate {
		picks = append(picks, "games")
	} else {
		picks = append(picks, "practice")
	}

	resources := make([]models.GuidanceResource, 0, len(picks))
	for _, topic := range picks {
		if r, ok := siteResources[topic]; ok {
			resources = append(resources, r)
		}
	}
	return resources
}

// formatQuestion wraps a question with its battery position.
func formatQuestion(questionNumber int, question string) string {
	return fmt.Sprintf("Question %d of %d:\n\n%s\n\nTake your time to think it through!",
		questionNumber, AgeQuestionCount, question)
}
