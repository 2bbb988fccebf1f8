package models

import "time"

// Submission is a student's answer to an activity. The plagiarism columns are the only ones written by this service.
type Submission struct {
	ID                 string     `gorm:"primaryKey;size:36" json:"id"`
	ActivityID         string     `gorm:"size:36;not null;index" json:"activity_id"`
	StudentID          string     `gorm:"size:36;not null;index" json:"student_id"`
	Content            string     `gorm:"type:text" json:"content"`
	Status             string     `gorm:"size:32" json:"status"`
	PlagiarismChecked  bool       `gorm:"not null;default:false" json:"plagiarism_checked"`
	PlagiarismScore    *float64   `json:"plagiarism_score"`
	PlagiarismSeverity string     `gorm:"size:16" json:"plagiarism_severity"`
	IsPlagiarized      bool       `gorm:"not null;default:false" json:"is_plagiarized"`
	SubmittedAt        *time.Time `json:"submitted_at"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

const (
	// SubmissionStatusSubmitted indicates the submission has been handed in but not graded.
	SubmissionStatusSubmitted = "submitted"
	// SubmissionStatusGraded indicates the submission has been evaluated.
	SubmissionStatusGraded = "graded"
)

// IsGraded reports whether the submission has a final grade.
func (s Submission) IsGraded() bool {
	return s.Status == SubmissionStatusGraded
}
