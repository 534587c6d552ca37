// Package models defines the conversation state document owned by the orchestrator.
package models

import "time"

// Conversation history roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ConversationMessage is a single entry in the conversation history.
type ConversationMessage struct {
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ConversationState is the per-identity state document. It is owned
// exclusively by the orchestrator, mutated only inside stage handlers, and
// persisted verbatim as JSON after every turn.
type ConversationState struct {
	Identity string                `json:"identity"`
	Stage    Stage                 `json:"stage"`
	History  []ConversationMessage `json:"history"` // append-only; never truncated in storage

	AgeQuestionsAsked int      `json:"age_questions_asked"`
	AgeAnswers        []string `json:"age_answers"`
	CurrentQuestion   string   `json:"current_question,omitempty"` // outstanding age question, if any

	AgeAssessmentComplete    bool          `json:"age_assessment_complete"`
	AgeResult                *AgeResult    `json:"age_result,omitempty"`
	MentalAssessmentComplete bool          `json:"mental_assessment_complete"`
	MentalResult             *MentalResult `json:"mental_result,omitempty"`
	FollowUpDone             bool          `json:"follow_up_done"`

	CurrentResponse string `json:"current_response,omitempty"` // latest assistant-facing text

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewConversationState creates a fresh state for an identity: stage WELCOME,
// all counters zero, all completion flags false.
func NewConversationState(identity string) *ConversationState {
	now := time.Now()
	return &ConversationState{
		Identity:  identity,
		Stage:     StageWelcome,
		History:   []ConversationMessage{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// AppendHistory appends a message to the conversation history.
func (s *ConversationState) AppendHistory(role, content string) {
	s.History = append(s.History, ConversationMessage{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	})
}

// RecentHistory returns the last n history entries. Storage keeps the full
// history; only prompts are bounded.
func (s *ConversationState) RecentHistory(n int) []ConversationMessage {
	if n <= 0 || len(s.History) <= n {
		return s.History
	}
	return s.History[len(s.History)-n:]
}

// LastUserMessage returns the most recent user-authored history entry.
func (s *ConversationState) LastUserMessage() string {
	for i := len(s.History) - 1; i >= 0; i-- {
		if s.History[i].Role == RoleUser {
			return s.History[i].Content
		}
	}
	return ""
}

// CheckInvariants verifies the structural invariants of the state document.
func (s *ConversationState) CheckInvariants() error {
	if s.Identity == "" {
		return ErrEmptyIdentity
	}
	if len(s.AgeAnswers) != s.AgeQuestionsAsked {
		return ErrAnswerCountMismatch
	}
	return nil
}
