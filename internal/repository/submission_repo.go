package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/teachlyze/tamanduai-api/internal/models"
)

// SubmissionFlags carries the plagiarism columns written back to a submission.
type SubmissionFlags struct {
	Score         float64
	Severity      string
	IsPlagiarized bool
}

// SubmissionRepository defines data operations for submissions.
type SubmissionRepository interface {
	GetByID(ctx context.Context, id string) (models.Submission, error)
	UpdatePlagiarismFlags(ctx context.Context, submissionID string, flags SubmissionFlags) error
}

type submissionRepository struct {
	db *gorm.DB
}

// NewSubmissionRepository instantiates the repository.
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

func (r *submissionRepository) GetByID(ctx context.Context, id string) (models.Submission, error) {
	var submission models.Submission
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&submission).Error; err != nil {
		return models.Submission{}, err
	}

	return submission, nil
}

// UpdatePlagiarismFlags only touches the plagiarism columns. A missing row yields gorm.ErrRecordNotFound.
func (r *submissionRepository) UpdatePlagiarismFlags(ctx context.Context, submissionID string, flags SubmissionFlags) error {
	score := flags.Score
	result := r.db.WithContext(ctx).
		Model(&models.Submission{}).
		Where("id = ?", submissionID).
		Updates(map[string]interface{}{
			"plagiarism_checked":  true,
			"plagiarism_score":    &score,
			"plagiarism_severity": flags.Severity,
			"is_plagiarized":      flags.IsPlagiarized,
			"updated_at":          time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}

	return nil
}
