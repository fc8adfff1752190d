package models

// All returns every model managed by the service, in migration order.
func All() []interface{} {
	return []interface{}{
		&Course{},
		&Module{},
		&Lesson{},
		&Step{},
		&AdditionalStepInfo{},
		&Learner{},
		&Enrollment{},
		&Submission{},
		&Comment{},
	}
}
