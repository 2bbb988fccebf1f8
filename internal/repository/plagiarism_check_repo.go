package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/teachlyze/tamanduai-api/internal/models"
)

// PlagiarismCheckFilter narrows history and stats queries.
type PlagiarismCheckFilter struct {
	SubmissionID string
	ActivityID   string
	ClassID      string
	Severity     string
	Page         int
	PageSize     int
}

// PlagiarismCheckStats aggregates checks matching a filter.
type PlagiarismCheckStats struct {
	Total      int64
	Cached     int64
	Flagged    int64
	AvgScore   float64
	MaxScore   float64
	BySeverity map[string]int64
}

// PlagiarismCheckRepository persists the append-only plagiarism audit log.
type PlagiarismCheckRepository interface {
	Create(ctx context.Context, check *models.PlagiarismCheck) error
	Record(ctx context.Context, check *models.PlagiarismCheck, flags SubmissionFlags) error
	LatestBySubmission(ctx context.Context, submissionID string) (models.PlagiarismCheck, error)
	NextAttempt(ctx context.Context, submissionID string) (int, error)
	ListBySubmission(ctx context.Context, submissionID string) ([]models.PlagiarismCheck, error)
	List(ctx context.Context, filter PlagiarismCheckFilter) ([]models.PlagiarismCheck, int64, error)
	Stats(ctx context.Context, filter PlagiarismCheckFilter) (PlagiarismCheckStats, error)
}

type plagiarismCheckRepository struct {
	db *gorm.DB
}

// NewPlagiarismCheckRepository constructs a repository backed by GORM.
func NewPlagiarismCheckRepository(db *gorm.DB) PlagiarismCheckRepository {
	return &plagiarismCheckRepository{db: db}
}

func (r *plagiarismCheckRepository) Create(ctx context.Context, check *models.PlagiarismCheck) error {
	return createCheck(r.db.WithContext(ctx), check)
}

// Record inserts the check and updates the submission flags in one transaction.
// Errors are wrapped with the step that failed; ErrDuplicateCheck and
// gorm.ErrRecordNotFound remain matchable with errors.Is.
func (r *plagiarismCheckRepository) Record(ctx context.Context, check *models.PlagiarismCheck, flags SubmissionFlags) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := createCheck(tx, check); err != nil {
			return fmt.Errorf("record plagiarism check: %w", err)
		}
		if err := NewSubmissionRepository(tx).UpdatePlagiarismFlags(ctx, check.SubmissionID, flags); err != nil {
			return fmt.Errorf("update submission flags: %w", err)
		}
		return nil
	})
}

func createCheck(db *gorm.DB, check *models.PlagiarismCheck) error {
	if check.Attempt <= 0 {
		check.Attempt = 1
	}
	if err := db.Create(check).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateCheck
		}
		return err
	}
	return nil
}

func (r *plagiarismCheckRepository) LatestBySubmission(ctx context.Context, submissionID string) (models.PlagiarismCheck, error) {
	var check models.PlagiarismCheck
	if err := r.db.WithContext(ctx).
		Where("submission_id = ?", submissionID).
		Order("attempt DESC").
		First(&check).Error; err != nil {
		return models.PlagiarismCheck{}, err
	}
	return check, nil
}

func (r *plagiarismCheckRepository) NextAttempt(ctx context.Context, submissionID string) (int, error) {
	var latest models.PlagiarismCheck
	err := r.db.WithContext(ctx).
		Select("attempt").
		Where("submission_id = ?", submissionID).
		Order("attempt DESC").
		Take(&latest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return latest.Attempt + 1, nil
}

func (r *plagiarismCheckRepository) ListBySubmission(ctx context.Context, submissionID string) ([]models.PlagiarismCheck, error) {
	var checks []models.PlagiarismCheck
	if err := r.db.WithContext(ctx).
		Where("submission_id = ?", submissionID).
		Order("attempt DESC").
		Find(&checks).Error; err != nil {
		return nil, err
	}
	return checks, nil
}

func (r *plagiarismCheckRepository) List(ctx context.Context, filter PlagiarismCheckFilter) ([]models.PlagiarismCheck, int64, error) {
	var total int64
	if err := r.filtered(ctx, filter).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := filter.Page
	if page <= 0 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}

	var checks []models.PlagiarismCheck
	if err := r.filtered(ctx, filter).
		Order("created_at DESC").
		Offset((page - 1) * size).
		Limit(size).
		Find(&checks).Error; err != nil {
		return nil, 0, err
	}

	return checks, total, nil
}

type checkAggregateRow struct {
	Total    int64
	Cached   int64
	Flagged  int64
	AvgScore float64
	MaxScore float64
}

type severityCountRow struct {
	Severity string
	Count    int64
}

func (r *plagiarismCheckRepository) Stats(ctx context.Context, filter PlagiarismCheckFilter) (PlagiarismCheckStats, error) {
	var aggregate checkAggregateRow
	if err := r.filtered(ctx, filter).
		Select(`COUNT(*) AS total,
			COALESCE(SUM(CASE WHEN cached THEN 1 ELSE 0 END), 0) AS cached,
			COALESCE(SUM(CASE WHEN is_plagiarized THEN 1 ELSE 0 END), 0) AS flagged,
			COALESCE(AVG(similarity_score), 0) AS avg_score,
			COALESCE(MAX(similarity_score), 0) AS max_score`).
		Scan(&aggregate).Error; err != nil {
		return PlagiarismCheckStats{}, err
	}

	var rows []severityCountRow
	if err := r.filtered(ctx, filter).
		Select("severity, COUNT(*) AS count").
		Group("severity").
		Scan(&rows).Error; err != nil {
		return PlagiarismCheckStats{}, err
	}

	stats := PlagiarismCheckStats{
		Total:      aggregate.Total,
		Cached:     aggregate.Cached,
		Flagged:    aggregate.Flagged,
		AvgScore:   aggregate.AvgScore,
		MaxScore:   aggregate.MaxScore,
		BySeverity: make(map[string]int64, len(rows)),
	}
	for _, row := range rows {
		stats.BySeverity[row.Severity] = row.Count
	}

	return stats, nil
}

func (r *plagiarismCheckRepository) filtered(ctx context.Context, filter PlagiarismCheckFilter) *gorm.DB {
	query := r.db.WithContext(ctx).Model(&models.PlagiarismCheck{})

	if id := strings.TrimSpace(filter.SubmissionID); id != "" {
		query = query.Where("submission_id = ?", id)
	}
	if id := strings.TrimSpace(filter.ActivityID); id != "" {
		query = query.Where("activity_id = ?", id)
	}
	if id := strings.TrimSpace(filter.ClassID); id != "" {
		query = query.Where("class_id = ?", id)
	}
	if severity := strings.TrimSpace(filter.Severity); severity != "" {
		query = query.Where("severity = ?", strings.ToLower(severity))
	}

	return query
}
