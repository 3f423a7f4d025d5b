package model

import (
	"time"

	"github.com/google/uuid"
)

// SubmittedAnswer pairs a question id with its final answer value.
type SubmittedAnswer struct {
	QuestionID string `json:"question_id"`
	Answer     Answer `json:"answer"`
}

// SuspiciousActivity aggregates the proctoring signals collected passively
// during an attempt. Forwarded with the submission for later review.
type SuspiciousActivity struct {
	TabSwitches int  `json:"tab_switches"`
	TimeSpent   *int `json:"time_spent"`
}

// TestSubmission is the POST body for /modules/{id}/test/submit. Answers are
// ordered by the test definition's question order.
type TestSubmission struct {
	Answers            []SubmittedAnswer  `json:"answers"`
	TimeSpentSeconds   *int               `json:"time_spent_seconds"`
	SuspiciousActivity SuspiciousActivity `json:"suspicious_activity"`
}

// BuildSubmission assembles the submission payload from the answer set,
// preserving the definition's question order. timeSpent may be nil when the
// elapsed time is unavailable.
func BuildSubmission(def *TestDefinition, answers AnswerSet, timeSpent *int, tabSwitches int) *TestSubmission {
	sub := &TestSubmission{
		Answers:          make([]SubmittedAnswer, 0, len(def.Questions)),
		TimeSpentSeconds: timeSpent,
		SuspiciousActivity: SuspiciousActivity{
			TabSwitches: tabSwitches,
			TimeSpent:   timeSpent,
		},
	}
	for _, q := range def.Questions {
		sub.Answers = append(sub.Answers, SubmittedAnswer{
			QuestionID: q.ID,
			Answer:     answers[q.ID],
		})
	}
	return sub
}

// TestResult is the graded outcome returned by the content service.
type TestResult struct {
	AttemptID          uuid.UUID           `json:"attempt_id"`
	Score              float64             `json:"score"`
	MaxScore           float64             `json:"max_score"`
	Percentage         float64             `json:"percentage"`
	Passed             bool                `json:"passed"`
	TimeSpentSeconds   *int                `json:"time_spent_seconds"`
	SubmittedAt        time.Time           `json:"submitted_at"`
	SuspiciousActivity *SuspiciousActivity `json:"suspicious_activity,omitempty"`
}
