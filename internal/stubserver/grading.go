package stubserver

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/lms-exam-client/internal/model"
)

// correctAnswer is the grading key for one question.
type correctAnswer struct {
	options []string // multiple_choice: the full correct set
	text    string   // text: expected value, compared case-insensitively
}

// grade scores a submission against the fixture key. Multiple choice earns
// full points on an exact set match and half credit when exactly one
// correct option was selected; text answers are trimmed and compared
// case-insensitively.
func grade(fixture *testFixture, sub *model.TestSubmission) model.TestResult {
	byQuestion := make(map[string]model.Answer, len(sub.Answers))
	for _, a := range sub.Answers {
		byQuestion[a.QuestionID] = a.Answer
	}

	var score float64
	maxScore := fixture.def.MaxScore()

	for _, q := range fixture.def.Questions {
		key, ok := fixture.correct[q.ID]
		if !ok {
			continue
		}
		answer := byQuestion[q.ID]

		switch q.Type {
		case model.QuestionTypeMultipleChoice:
			score += q.Points * choiceCredit(answer.Selected, key.options)
		case model.QuestionTypeText:
			if strings.EqualFold(strings.TrimSpace(answer.Text), strings.TrimSpace(key.text)) {
				score += q.Points
			}
		}
	}

	percentage := 0.0
	if maxScore > 0 {
		percentage = score / maxScore * 100
	}

	return model.TestResult{
		AttemptID:          uuid.New(),
		Score:              score,
		MaxScore:           maxScore,
		Percentage:         percentage,
		Passed:             percentage >= fixture.def.Settings.PassingThreshold*100,
		TimeSpentSeconds:   sub.TimeSpentSeconds,
		SubmittedAt:        time.Now().UTC(),
		SuspiciousActivity: &sub.SuspiciousActivity,
	}
}

// choiceCredit returns 1 for an exact set match, 0.5 when the single
// selected option is correct, and 0 otherwise.
func choiceCredit(selected, correct []string) float64 {
	if setEqual(selected, correct) {
		return 1
	}
	if len(selected) == 1 && contains(correct, selected[0]) {
		return 0.5
	}
	return 0
}

func setEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]struct{}, len(a))
	for _, v := range a {
		seen[v] = struct{}{}
	}
	if len(seen) != len(b) {
		return false
	}
	for _, v := range b {
		if _, ok := seen[v]; !ok {
			return false
		}
	}
	return true
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
