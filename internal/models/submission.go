package models

import "time"

// Submission is a single answer attempt on a step. A user may submit many times.
type Submission struct {
	ID             uint       `gorm:"primaryKey;autoIncrement:false" json:"id"`
	StepID         uint       `gorm:"index;not null" json:"step_id"`
	UserID         uint       `gorm:"index;not null" json:"user_id"`
	AttemptTime    *time.Time `json:"attempt_time"`
	SubmissionTime *time.Time `json:"submission_time"`
	Status         string     `gorm:"size:32" json:"status"`
	Score          *float64   `json:"score"`
}

// SubmissionStatusCorrect marks an accepted answer.
const SubmissionStatusCorrect = "correct"

// IsCorrect reports whether the submission was accepted.
func (s Submission) IsCorrect() bool {
	return s.Status == SubmissionStatusCorrect
}
