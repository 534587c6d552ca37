// Package flow prompt construction for the assessment stages.
package flow

import (
	"fmt"
	"strings"

	"github.com/mindsupport/compass/internal/models"
)

// System prompts per stage.
const (
	ageQuestionSystemPrompt = "You are an expert child psychologist creating an " +
		"intellectual assessment for determining mental age (5-18 years). " +
		"Generate only the question, make it conversational and encouraging."

	ageEvaluationSystemPrompt = "You are an expert child psychologist analyzing " +
		"assessment answers to determine a user's mental age. Respond with a " +
		"single JSON object and nothing else."

	mentalAssessmentSystemPrompt = "You are a mental health professional " +
		"performing a brief written triage. Respond exactly in the requested " +
		"labelled format."

	followUpSystemPrompt = "You are a warm, supportive counselor. Keep responses " +
		"conversational and age-appropriate."

	guidanceSystemPrompt = "You are an experienced counselor providing final, " +
		"practical guidance. Be warm, specific, and hopeful."
)

// toneGuide adjusts guidance register per age category.
var toneGuide = map[models.AgeCategory]string{
	models.AgeCategoryChild:      "simple, warm words and short sentences. Use examples they can relate to.",
	models.AgeCategoryTeen:       "respectful, relatable language. Acknowledge their independence and feelings.",
	models.AgeCategoryYoungAdult: "supportive but mature. Respect their adult perspective.",
	models.AgeCategoryAdult:      "professional, empathetic counseling approach.",
}

// ageQuestionPrompt builds the prompt for the next age-diagnostic question.
// The context carries at most the last two answers so the battery can adapt.
func ageQuestionPrompt(questionNumber int, previousAnswers []string) string {
	context := "This is the first question"
	if len(previousAnswers) > 0 {
		recent := previousAnswers
		if len(recent) > 2 {
			recent = recent[len(recent)-2:]
		}
		context = "Based on previous answers: " + strings.Join(recent, ", ")
	}
	return fmt.Sprintf(`Question number: %d of %d
Context: %s

Create a question that tests one of these cognitive abilities:
- Mathematical reasoning and problem-solving
- Logical thinking and pattern recognition
- Reading comprehension and vocabulary
- Abstract thinking and conceptual understanding
- Memory and information processing

Requirements:
- Make it engaging and child-friendly
- Progressively increase difficulty if previous answers show higher ability
- Include clear instructions
- Make it age-neutral (suitable for different mental ages)`,
		questionNumber, AgeQuestionCount, context)
}

// ageEvaluationPrompt asks for the structured age result over all answers.
func ageEvaluationPrompt(answers []string) string {
	var sb strings.Builder
	sb.WriteString("Analyze these assessment answers and determine the user's mental age.\n\n")
	for i, answer := range answers {
		fmt.Fprintf(&sb, "Answer %d: %q\n", i+1, answer)
	}
	sb.WriteString(`
Consider vocabulary, reasoning complexity, topics of concern, and communication style.

Respond with JSON in exactly this shape:
{
    "estimated_age": <number between 5 and 18>,
    "confidence": <number between 0 and 10>,
    "category": "<child|teen|young_adult|adult>",
    "indicators": ["<clue 1>", "<clue 2>", "<clue 3>"]
}`)
	return sb.String()
}

// mentalAssessmentPrompt asks for the labelled mental-state triage of the
// latest user input, with age context when available.
func mentalAssessmentPrompt(latestInput string, age *models.AgeResult) string {
	ageContext := "The user's age is unknown."
	if age != nil {
		ageContext = fmt.Sprintf("The user is a %s, approximately %d years old.", age.Category, age.EstimatedAge)
	}
	return fmt.Sprintf(`%s Assess this message:

%q

Provide assessment in this format:
1. Urgency Score: [1-10]
2. Primary Concern: [anxiety/depression/stress/trauma/relationships/academic/family/general]
3. Emotional State: [brief description]
4. Risk Level: [low/medium/high]

Consider age-appropriate concerns and expression styles.`, ageContext, latestInput)
}

// followUpPrompt asks for one empathetic follow-up question.
func followUpPrompt(state *models.ConversationState) string {
	category := models.AgeCategoryAdult
	estimatedAge := DefaultEstimatedAge
	if state.AgeResult != nil {
		category = state.AgeResult.Category
		estimatedAge = state.AgeResult.EstimatedAge
	}
	concern := DefaultConcern
	if state.MentalResult != nil {
		concern = state.MentalResult.PrimaryConcern
	}
	return fmt.Sprintf(`You're talking to a %s (around %d years old) about %s.

Generate a warm, empathetic follow-up response that:
1. Acknowledges their feelings briefly
2. Asks ONE thoughtful question to understand them better
3. Uses age-appropriate language

Keep it conversational and supportive. Make them feel heard.`,
		category, estimatedAge, concern)
}

// guidancePrompt asks for the final multi-part guidance text, toned per the
// age category and fed the recent conversation for context.
func guidancePrompt(state *models.ConversationState) string {
	category := models.AgeCategoryAdult
	estimatedAge := DefaultEstimatedAge
	if state.AgeResult != nil {
		category = state.AgeResult.Category
		estimatedAge = state.AgeResult.EstimatedAge
	}
	urgency := DefaultUrgency
	concern := DefaultConcern
	emotionalState := DefaultEmotionalState
	risk := models.RiskLevelLow
	if state.MentalResult != nil {
		urgency = state.MentalResult.Urgency
		concern = state.MentalResult.PrimaryConcern
		emotionalState = state.MentalResult.EmotionalState
		risk = state.MentalResult.RiskLevel
	}

	var convo strings.Builder
	for _, msg := range state.RecentHistory(promptHistoryLimit) {
		fmt.Fprintf(&convo, "%s: %s\n", msg.Role, msg.Content)
	}

	return fmt.Sprintf(`Provide final guidance for a %s (age ~%d) dealing with %s.

Context:
- Urgency: %d/10
- Emotional state: %s
- Risk level: %s

Recent conversation:
%s
Use %s

Include:
1. Validation and empathy (2-3 sentences)
2. 3-4 specific, actionable coping strategies appropriate for their age
3. When to seek additional help
4. Age-appropriate resources or hotlines (if urgency > 6)
5. Encouraging closing message

Make it warm, practical, and hopeful.`,
		category, estimatedAge, concern, urgency, emotionalState, risk,
		convo.String(), toneGuide[category])
}
