package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/teachlyze/tamanduai-api/internal/models"
)

// NotificationSettingRepository reads per-owner plagiarism alert preferences.
type NotificationSettingRepository interface {
	FindByOwner(ctx context.Context, ownerID string) (models.PlagiarismNotificationSetting, error)
}

type notificationSettingRepository struct {
	db *gorm.DB
}

// NewNotificationSettingRepository constructs a repository backed by GORM.
func NewNotificationSettingRepository(db *gorm.DB) NotificationSettingRepository {
	return &notificationSettingRepository{db: db}
}

func (r *notificationSettingRepository) FindByOwner(ctx context.Context, ownerID string) (models.PlagiarismNotificationSetting, error) {
	var setting models.PlagiarismNotificationSetting
	if err := r.db.WithContext(ctx).Where("owner_id = ?", ownerID).First(&setting).Error; err != nil {
		return models.PlagiarismNotificationSetting{}, err
	}
	return setting, nil
}
