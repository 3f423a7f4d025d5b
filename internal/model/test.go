package model

// QuestionType enumerates supported question kinds.
type QuestionType string

const (
	QuestionTypeMultipleChoice QuestionType = "multiple_choice"
	QuestionTypeText           QuestionType = "text"
)

// Option is one selectable choice of a multiple_choice question.
type Option struct {
	ID   string `json:"id" validate:"required"`
	Text string `json:"text"`
}

// Question is a single test question as served by the content service.
// Explanation is withheld from rendering while an attempt is in progress.
type Question struct {
	ID          string       `json:"id" validate:"required"`
	Type        QuestionType `json:"type" validate:"required,oneof=multiple_choice text"`
	Question    string       `json:"question" validate:"required"`
	Options     []Option     `json:"options,omitempty" validate:"omitempty,dive"`
	Points      float64      `json:"points"`
	Explanation string       `json:"explanation,omitempty"`
}

// HasOption reports whether the question offers the given option id.
func (q *Question) HasOption(id string) bool {
	for _, opt := range q.Options {
		if opt.ID == id {
			return true
		}
	}
	return false
}

// TestSettings carries per-test configuration. MaxAttempts is a display
// hint only — the content service owns enforcement and answers 409 when
// attempts are exhausted.
type TestSettings struct {
	PassingThreshold       float64 `json:"passing_threshold" validate:"gte=0,lte=1"`
	TimeLimitMinutes       *int    `json:"time_limit_minutes,omitempty" validate:"omitempty,gt=0"`
	MaxAttempts            *int    `json:"max_attempts,omitempty" validate:"omitempty,gt=0"`
	ShuffleQuestions       bool    `json:"shuffle_questions,omitempty"`
	ShowResultsImmediately bool    `json:"show_results_immediately,omitempty"`
	AllowReview            bool    `json:"allow_review,omitempty"`
}

// TestDefinition is a module's test. Immutable once fetched for a session.
type TestDefinition struct {
	ModuleID  string       `json:"module_id"`
	Questions []Question   `json:"questions" validate:"required,min=1,dive"`
	Settings  TestSettings `json:"settings"`
}

// Normalize applies server-side defaults the wire format leaves implicit.
func (d *TestDefinition) Normalize() {
	for i := range d.Questions {
		if d.Questions[i].Points <= 0 {
			d.Questions[i].Points = 1
		}
	}
}

// MaxScore sums the point values of all questions.
func (d *TestDefinition) MaxScore() float64 {
	var total float64
	for _, q := range d.Questions {
		total += q.Points
	}
	return total
}

// QuestionByID returns the question with the given id, or nil.
func (d *TestDefinition) QuestionByID(id string) *Question {
	for i := range d.Questions {
		if d.Questions[i].ID == id {
			return &d.Questions[i]
		}
	}
	return nil
}
