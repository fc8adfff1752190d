package models

import "time"

// Course is the root of the course structure tree.
type Course struct {
	ID        uint      `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Title     string    `gorm:"size:255" json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Modules   []Module  `json:"modules,omitempty"`
}

// Module groups lessons inside a course. Position orders modules within the course.
type Module struct {
	ID       uint     `gorm:"primaryKey;autoIncrement:false" json:"id"`
	CourseID uint     `gorm:"index;not null" json:"course_id"`
	Position int      `gorm:"not null" json:"position"`
	Lessons  []Lesson `json:"lessons,omitempty"`
}

// Lesson groups steps inside a module. Position orders lessons within the module.
type Lesson struct {
	ID       uint   `gorm:"primaryKey;autoIncrement:false" json:"id"`
	ModuleID uint   `gorm:"index;not null" json:"module_id"`
	Position int    `gorm:"not null" json:"position"`
	Steps    []Step `json:"steps,omitempty"`
}

// Step is the smallest unit of course content.
type Step struct {
	ID       uint   `gorm:"primaryKey;autoIncrement:false" json:"id"`
	LessonID uint   `gorm:"index;not null" json:"lesson_id"`
	Position int    `gorm:"not null" json:"position"`
	Type     string `gorm:"size:64" json:"type"`
	Cost     *int   `json:"cost"`
}

// IsSubmittable reports whether the step counts toward course completion.
func (s Step) IsSubmittable() bool {
	return s.Cost != nil && *s.Cost > 0
}

// AdditionalStepInfo carries externally sourced view statistics for a step.
type AdditionalStepInfo struct {
	StepID      uint `gorm:"primaryKey;autoIncrement:false" json:"step_id"`
	Views       *int `json:"views"`
	UniqueViews *int `json:"unique_views"`
	Passed      *int `json:"passed"`
}

// TableName keeps the table name stable regardless of gorm pluralisation rules.
func (AdditionalStepInfo) TableName() string {
	return "additional_step_infos"
}
