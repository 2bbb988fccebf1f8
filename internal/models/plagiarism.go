package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PlagiarismCheck is one append-only audit record per (submission, attempt).
type PlagiarismCheck struct {
	ID                     string            `gorm:"primaryKey;size:36" json:"id"`
	SubmissionID           string            `gorm:"size:36;not null;uniqueIndex:idx_plagiarism_checks_submission_attempt,priority:1" json:"submission_id"`
	Attempt                int               `gorm:"not null;uniqueIndex:idx_plagiarism_checks_submission_attempt,priority:2" json:"attempt"`
	ActivityID             string            `gorm:"size:36;not null;index" json:"activity_id"`
	ClassID                *string           `gorm:"size:36;index" json:"class_id"`
	ContentHash            string            `gorm:"size:64;index" json:"content_hash"`
	SimilarityScore        float64           `gorm:"not null" json:"similarity_score"`
	AIGeneratedProbability *float64          `json:"ai_generated_probability"`
	Severity               string            `gorm:"size:16;not null;index" json:"severity"`
	IsPlagiarized          bool              `gorm:"not null" json:"is_plagiarized"`
	Provider               string            `gorm:"size:64" json:"provider"`
	Sources                datatypes.JSON    `json:"sources"`
	RawResponse            datatypes.JSONMap `json:"raw_response"`
	Cached                 bool              `gorm:"not null" json:"cached"`
	CreatedAt              time.Time         `gorm:"index" json:"created_at"`
}

// BeforeCreate assigns an identifier when the caller did not.
func (c *PlagiarismCheck) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// PlagiarismNotificationSetting holds a class owner's thresholds and alert channels.
type PlagiarismNotificationSetting struct {
	OwnerID         string    `gorm:"primaryKey;size:36" json:"owner_id"`
	LowThreshold    float64   `gorm:"not null" json:"low_threshold"`
	MediumThreshold float64   `gorm:"not null" json:"medium_threshold"`
	HighThreshold   float64   `gorm:"not null" json:"high_threshold"`
	NotifyEmail     bool      `gorm:"not null" json:"notify_email"`
	NotifyInApp     bool      `gorm:"not null" json:"notify_in_app"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
