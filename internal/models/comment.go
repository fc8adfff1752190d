package models

import "time"

// Comment is a discussion entry on a step. ParentCommentID points at the replied-to comment.
type Comment struct {
	ID              uint       `gorm:"primaryKey;autoIncrement:false" json:"id"`
	StepID          uint       `gorm:"index;not null" json:"step_id"`
	UserID          uint       `gorm:"index;not null" json:"user_id"`
	ParentCommentID *uint      `gorm:"index" json:"parent_comment_id"`
	Time            *time.Time `json:"time"`
	Deleted         bool       `json:"deleted"`
	Text            string     `gorm:"type:text" json:"text"`
}
