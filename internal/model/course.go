package model

import "github.com/google/uuid"

// Course is a top-level course as listed on the dashboard.
type Course struct {
	ID          uuid.UUID `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	OrderIndex  int       `json:"order_index"`
	IsActive    bool      `json:"is_active"`
}

// CourseModule is one module of a course. Module ids are plain strings in
// the content service (human-readable slugs), unlike course ids.
type CourseModule struct {
	ID           string    `json:"id"`
	CourseID     uuid.UUID `json:"course_id"`
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	TotalLessons int       `json:"total_lessons"`
	OrderIndex   int       `json:"order_index"`
	IsActive     bool      `json:"is_active"`
}

// Lesson is one lesson of a module.
type Lesson struct {
	ID           string `json:"id"`
	ModuleID     string `json:"module_id"`
	LessonNumber int    `json:"lesson_number"`
	Title        string `json:"title"`
	OrderIndex   int    `json:"order_index"`
	IsActive     bool   `json:"is_active"`
}
