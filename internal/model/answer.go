package model

import (
	"encoding/json"
	"fmt"
)

// Answer is the in-progress answer for one question. Exactly one shape is
// live at a time: Selected (option ids) for multiple_choice, Text otherwise.
// A non-nil Selected slice marks the multiple_choice shape even when empty,
// so an untouched multiple_choice answer still serializes as [].
type Answer struct {
	Selected []string
	Text     string
}

// EmptyAnswer returns the initial answer value for a question type:
// an empty option set for multiple_choice, an empty string for text.
func EmptyAnswer(t QuestionType) Answer {
	if t == QuestionTypeMultipleChoice {
		return Answer{Selected: []string{}}
	}
	return Answer{}
}

// IsChoice reports whether the answer carries the multiple_choice shape.
func (a Answer) IsChoice() bool {
	return a.Selected != nil
}

// Has reports whether optionID is currently selected.
func (a Answer) Has(optionID string) bool {
	for _, id := range a.Selected {
		if id == optionID {
			return true
		}
	}
	return false
}

// Toggle returns a copy with optionID's membership flipped. Selection order
// is preserved for the remaining options.
func (a Answer) Toggle(optionID string) Answer {
	out := make([]string, 0, len(a.Selected)+1)
	found := false
	for _, id := range a.Selected {
		if id == optionID {
			found = true
			continue
		}
		out = append(out, id)
	}
	if !found {
		out = append(out, optionID)
	}
	return Answer{Selected: out}
}

// MarshalJSON writes an option-id array for multiple_choice answers and a
// plain string for text answers, matching the content service wire format.
func (a Answer) MarshalJSON() ([]byte, error) {
	if a.Selected != nil {
		return json.Marshal(a.Selected)
	}
	return json.Marshal(a.Text)
}

// UnmarshalJSON accepts either wire shape.
func (a *Answer) UnmarshalJSON(data []byte) error {
	var opts []string
	if err := json.Unmarshal(data, &opts); err == nil {
		a.Selected = opts
		a.Text = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("answer is neither an option list nor text: %w", err)
	}
	a.Selected = nil
	a.Text = s
	return nil
}

// AnswerSet maps question id to the current answer. A live set holds exactly
// one entry per question of the active test definition.
type AnswerSet map[string]Answer

// NewAnswerSet builds the initial set with one empty answer per question.
func NewAnswerSet(questions []Question) AnswerSet {
	set := make(AnswerSet, len(questions))
	for _, q := range questions {
		set[q.ID] = EmptyAnswer(q.Type)
	}
	return set
}

// MergeDraft copies draft entries whose question ids exist in the set.
// Draft entries for questions no longer in the test are dropped; questions
// missing from the draft keep their initialized empty answers.
func (s AnswerSet) MergeDraft(draft AnswerSet) {
	for id, ans := range draft {
		if _, ok := s[id]; ok {
			s[id] = ans
		}
	}
}

// Clone returns a deep copy.
func (s AnswerSet) Clone() AnswerSet {
	out := make(AnswerSet, len(s))
	for id, ans := range s {
		if ans.Selected != nil {
			sel := make([]string, len(ans.Selected))
			copy(sel, ans.Selected)
			ans.Selected = sel
		}
		out[id] = ans
	}
	return out
}
