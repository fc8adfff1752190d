package models

import "time"

// Learner is any account present in the imported data. Staff accounts carry IsLearner=false.
type Learner struct {
	ID         uint       `gorm:"primaryKey;autoIncrement:false" json:"id"`
	LastName   string     `gorm:"size:255" json:"last_name"`
	FirstName  string     `gorm:"size:255" json:"first_name"`
	LastLogin  *time.Time `json:"last_login"`
	DateJoined *time.Time `json:"date_joined"`
	IsLearner  bool       `gorm:"not null;index" json:"is_learner"`
}

// Enrollment links a learner to a course.
type Enrollment struct {
	CourseID  uint `gorm:"primaryKey;autoIncrement:false" json:"course_id"`
	LearnerID uint `gorm:"primaryKey;autoIncrement:false;index" json:"learner_id"`
}

// TableName returns the enrollment join table name.
func (Enrollment) TableName() string {
	return "course_enrollments"
}
