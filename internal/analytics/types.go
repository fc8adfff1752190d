// Package analytics holds the metric calculators. It works on plain records only and
// never talks to the store, so every function here is deterministic for a given input.
package analytics

import (
	"fmt"
	"time"
)

// StatusCorrect is the submission status of an accepted answer.
const StatusCorrect = "correct"

// StepRef is a step joined with its lesson, module and course coordinates.
type StepRef struct {
	StepID         uint
	LessonID       uint
	ModuleID       uint
	CourseID       uint
	ModulePosition int
	LessonPosition int
	StepPosition   int
	Type           string
	Cost           *int
}

// Submittable reports whether the step counts toward completion (cost > 0).
func (s StepRef) Submittable() bool {
	return s.Cost != nil && *s.Cost > 0
}

// Submission is one answer attempt.
type Submission struct {
	UserID         uint
	StepID         uint
	Status         string
	Score          *float64
	AttemptTime    *time.Time
	SubmissionTime *time.Time
}

// Correct reports whether the attempt was accepted.
func (s Submission) Correct() bool {
	return s.Status == StatusCorrect
}

// Comment is the part of a comment the calculators care about.
type Comment struct {
	UserID  uint
	StepID  uint
	Deleted bool
}

// StepInfo is the optional externally sourced view data for a step.
type StepInfo struct {
	Views       *int
	UniqueViews *int
	Passed      *int
}

// Account is a user as seen by the roster calculator.
type Account struct {
	ID        uint   `json:"id"`
	LastName  string `json:"last_name"`
	FirstName string `json:"first_name"`
	IsLearner bool   `json:"-"`
}

// FaultHandler receives recovered calculation failures. Scope is "step", "lesson" or "course".
type FaultHandler func(scope string, id uint, err error)

// Options tunes the step calculator.
type Options struct {
	// CompletionTimeCap drops per-user completion times above the cap. Zero disables the filter.
	CompletionTimeCap time.Duration
	OnFault           FaultHandler
}

// guard runs fn and turns a panic into a reported fault.
func (o Options) guard(scope string, id uint, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			if o.OnFault != nil {
				o.OnFault(scope, id, fmt.Errorf("%s %d: %v", scope, id, r))
			}
		}
	}()
	fn()
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

func ratioPtr(num, den int) *float64 {
	if den == 0 {
		return nil
	}
	value := float64(num) / float64(den)
	return &value
}

func floatPtr(v float64) *float64 {
	return &v
}
