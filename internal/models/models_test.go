package models

import (
	"errors"
	"testing"
)

func TestNormalizeStage(t *testing.T) {
	tests := []struct {
		raw      string
		want     Stage
		migrated bool
	}{
		{"WELCOME", StageWelcome, false},
		{"AGE_QUESTIONING", StageAgeQuestioning, false},
		{"  mental_assessment ", StageMentalAssessment, false},
		{"complete", StageComplete, false},
		{"LEGACY_NODE", StageWelcome, true},
		{"", StageWelcome, true},
	}
	for _, tt := range tests {
		got, migrated := NormalizeStage(tt.raw)
		if got != tt.want || migrated != tt.migrated {
			t.Errorf("NormalizeStage(%q) = (%s, %v), want (%s, %v)",
				tt.raw, got, migrated, tt.want, tt.migrated)
		}
	}
}

func TestAgeCategoryForAge(t *testing.T) {
	tests := []struct {
		age  int
		want AgeCategory
	}{
		{5, AgeCategoryChild},
		{12, AgeCategoryChild},
		{13, AgeCategoryTeen},
		{17, AgeCategoryTeen},
		{18, AgeCategoryYoungAdult},
		{24, AgeCategoryYoungAdult},
		{25, AgeCategoryAdult},
	}
	for _, tt := range tests {
		if got := AgeCategoryForAge(tt.age); got != tt.want {
			t.Errorf("AgeCategoryForAge(%d) = %s, want %s", tt.age, got, tt.want)
		}
	}
}

func TestMaturityBandForAge(t *testing.T) {
	tests := []struct {
		age  int
		want MaturityBand
	}{
		{5, MaturityBandBeginner},
		{8, MaturityBandBeginner},
		{9, MaturityBandIntermediate},
		{12, MaturityBandIntermediate},
		{13, MaturityBandAdvanced},
		{16, MaturityBandAdvanced},
		{17, MaturityBandExpert},
	}
	for _, tt := range tests {
		if got := MaturityBandForAge(tt.age); got != tt.want {
			t.Errorf("MaturityBandForAge(%d) = %s, want %s", tt.age, got, tt.want)
		}
	}
}

func TestConversationStateHistory(t *testing.T) {
	s := NewConversationState("user-1")
	if s.Stage != StageWelcome {
		t.Errorf("expected fresh state at %s, got %s", StageWelcome, s.Stage)
	}
	if got := s.LastUserMessage(); got != "" {
		t.Errorf("expected empty last user message, got %q", got)
	}

	s.AppendHistory(RoleUser, "hello")
	s.AppendHistory(RoleAssistant, "hi there")
	s.AppendHistory(RoleUser, "I need help")

	if got := s.LastUserMessage(); got != "I need help" {
		t.Errorf("LastUserMessage = %q, want %q", got, "I need help")
	}

	recent := s.RecentHistory(2)
	if len(recent) != 2 {
		t.Fatalf("RecentHistory(2) returned %d messages", len(recent))
	}
	if recent[0].Content != "hi there" || recent[1].Content != "I need help" {
		t.Errorf("RecentHistory returned wrong window: %+v", recent)
	}
	if got := s.RecentHistory(10); len(got) != 3 {
		t.Errorf("RecentHistory larger than history should return all %d, got %d", 3, len(got))
	}
}

func TestCheckInvariants(t *testing.T) {
	s := NewConversationState("user-1")
	if err := s.CheckInvariants(); err != nil {
		t.Errorf("fresh state should satisfy invariants: %v", err)
	}

	s.AgeAnswers = append(s.AgeAnswers, "an answer")
	if err := s.CheckInvariants(); !errors.Is(err, ErrAnswerCountMismatch) {
		t.Errorf("expected ErrAnswerCountMismatch, got %v", err)
	}
	s.AgeQuestionsAsked = 1
	if err := s.CheckInvariants(); err != nil {
		t.Errorf("matched counts should satisfy invariants: %v", err)
	}

	empty := &ConversationState{}
	if err := empty.CheckInvariants(); !errors.Is(err, ErrEmptyIdentity) {
		t.Errorf("expected ErrEmptyIdentity, got %v", err)
	}
}

func TestRequestValidation(t *testing.T) {
	msg := &ChatMessageRequest{Identity: "u", Text: "hello"}
	if err := msg.Validate(); err != nil {
		t.Errorf("valid message request rejected: %v", err)
	}
	msg = &ChatMessageRequest{Identity: " ", Text: "hello"}
	if err := msg.Validate(); !errors.Is(err, ErrEmptyIdentity) {
		t.Errorf("expected ErrEmptyIdentity, got %v", err)
	}
	msg = &ChatMessageRequest{Identity: "u", Text: "\t"}
	if err := msg.Validate(); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("expected ErrEmptyMessage, got %v", err)
	}

	restart := &ChatRestartRequest{Identity: "u"}
	if err := restart.Validate(); err != nil {
		t.Errorf("valid restart request rejected: %v", err)
	}
	restart = &ChatRestartRequest{}
	if err := restart.Validate(); !errors.Is(err, ErrEmptyIdentity) {
		t.Errorf("expected ErrEmptyIdentity, got %v", err)
	}
}

func TestAPIResponseHelpers(t *testing.T) {
	ok := Success(map[string]string{"k": "v"})
	if ok.Status != APIStatusOK || ok.Result == nil {
		t.Errorf("Success envelope malformed: %+v", ok)
	}
	withMsg := SuccessWithMessage("done", nil)
	if withMsg.Status != APIStatusOK || withMsg.Message != "done" {
		t.Errorf("SuccessWithMessage envelope malformed: %+v", withMsg)
	}
	bad := Error("boom")
	if bad.Status != APIStatusError || bad.Message != "boom" {
		t.Errorf("Error envelope malformed: %+v", bad)
	}
}
