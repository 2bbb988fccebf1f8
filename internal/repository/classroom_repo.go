package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/teachlyze/tamanduai-api/internal/models"
)

// ClassroomRepository resolves the read-only class, activity and profile lookups used for alert routing.
type ClassroomRepository interface {
	GetClass(ctx context.Context, id string) (models.Class, error)
	GetActivity(ctx context.Context, id string) (models.Activity, error)
	GetProfile(ctx context.Context, id string) (models.Profile, error)
}

type classroomRepository struct {
	db *gorm.DB
}

// NewClassroomRepository constructs a repository backed by GORM.
func NewClassroomRepository(db *gorm.DB) ClassroomRepository {
	return &classroomRepository{db: db}
}

func (r *classroomRepository) GetClass(ctx context.Context, id string) (models.Class, error) {
	var class models.Class
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&class).Error; err != nil {
		return models.Class{}, err
	}
	return class, nil
}

func (r *classroomRepository) GetActivity(ctx context.Context, id string) (models.Activity, error) {
	var activity models.Activity
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&activity).Error; err != nil {
		return models.Activity{}, err
	}
	return activity, nil
}

func (r *classroomRepository) GetProfile(ctx context.Context, id string) (models.Profile, error) {
	var profile models.Profile
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&profile).Error; err != nil {
		return models.Profile{}, err
	}
	return profile, nil
}
