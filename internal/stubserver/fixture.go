package stubserver

import (
	"github.com/google/uuid"
	"github.com/stemsi/lms-exam-client/internal/model"
)

// Demo credentials accepted by the fixture server.
const (
	FixtureEmail    = "student@example.com"
	FixturePassword = "password123"

	// FixtureModuleID carries the demo test.
	FixtureModuleID = "go-basics"
)

func intPtr(v int) *int { return &v }

// loadFixture seeds one course with one tested module and a demo student.
func (s *Server) loadFixture() {
	s.accounts[FixtureEmail] = &account{
		user: model.User{
			ID:       uuid.New(),
			Email:    FixtureEmail,
			FullName: "Demo Student",
			Role:     "student",
		},
		password: FixturePassword,
	}

	courseID := uuid.New()
	s.courses = []model.Course{{
		ID:          courseID,
		Title:       "Programming Foundations",
		Description: "Introductory programming track",
		OrderIndex:  1,
		IsActive:    true,
	}}
	s.modules[courseID.String()] = []model.CourseModule{{
		ID:           FixtureModuleID,
		CourseID:     courseID,
		Title:        "Go Basics",
		Description:  "Syntax, types, and control flow",
		TotalLessons: 4,
		OrderIndex:   1,
		IsActive:     true,
	}}

	s.tests[FixtureModuleID] = &testFixture{
		def: model.TestDefinition{
			ModuleID: FixtureModuleID,
			Questions: []model.Question{
				{
					ID:       "q1",
					Type:     model.QuestionTypeMultipleChoice,
					Question: "Which of these are built-in Go types?",
					Options: []model.Option{
						{ID: "a", Text: "string"},
						{ID: "b", Text: "integer"},
						{ID: "c", Text: "rune"},
					},
					Points:      2,
					Explanation: "string and rune are built in; the integer type is spelled int.",
				},
				{
					ID:       "q2",
					Type:     model.QuestionTypeMultipleChoice,
					Question: "Which keyword declares a constant?",
					Options: []model.Option{
						{ID: "a", Text: "const"},
						{ID: "b", Text: "let"},
					},
					Points: 1,
				},
				{
					ID:       "q3",
					Type:     model.QuestionTypeText,
					Question: "Which builtin appends to a slice?",
					Points:   1,
				},
			},
			Settings: model.TestSettings{
				PassingThreshold:       0.7,
				TimeLimitMinutes:       intPtr(30),
				MaxAttempts:            intPtr(3),
				ShowResultsImmediately: true,
				AllowReview:            true,
			},
		},
		correct: map[string]correctAnswer{
			"q1": {options: []string{"a", "c"}},
			"q2": {options: []string{"a"}},
			"q3": {text: "append"},
		},
	}
}
