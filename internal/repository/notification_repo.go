package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/teachlyze/tamanduai-api/internal/models"
)

const (
	defaultNotificationLimit = 50
	maxNotificationLimit     = 100
)

// NotificationFilter narrows an inbox listing.
type NotificationFilter struct {
	Type       string
	UnreadOnly bool
	Limit      int
	Offset     int
}

// NotificationRepository handles persistence for notification entities.
type NotificationRepository interface {
	Create(ctx context.Context, notification *models.Notification) error
	ListByUser(ctx context.Context, userID string, filter NotificationFilter) ([]models.Notification, error)
	CountUnread(ctx context.Context, userID, notificationType string) (int64, error)
	MarkRead(ctx context.Context, id uint, userID string) (models.Notification, error)
	MarkAllRead(ctx context.Context, userID, notificationType string) (int64, error)
}

type notificationRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewNotificationRepository constructs a repository backed by GORM.
func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db, now: time.Now}
}

func (r *notificationRepository) Create(ctx context.Context, notification *models.Notification) error {
	return r.db.WithContext(ctx).Create(notification).Error
}

func (r *notificationRepository) ListByUser(ctx context.Context, userID string, filter NotificationFilter) ([]models.Notification, error) {
	limit := filter.Limit
	if limit <= 0 || limit > maxNotificationLimit {
		limit = defaultNotificationLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := r.inbox(ctx, userID, filter.Type)
	if filter.UnreadOnly {
		query = query.Where("read = ?", false)
	}

	var notifications []models.Notification
	if err := query.
		Order("created_at DESC").
		Order("id DESC").
		Offset(offset).
		Limit(limit).
		Find(&notifications).Error; err != nil {
		return nil, err
	}

	return notifications, nil
}

func (r *notificationRepository) CountUnread(ctx context.Context, userID, notificationType string) (int64, error) {
	var count int64
	err := r.inbox(ctx, userID, notificationType).
		Where("read = ?", false).
		Count(&count).Error
	return count, err
}

// MarkRead is idempotent; an already-read notification keeps its original read_at.
func (r *notificationRepository) MarkRead(ctx context.Context, id uint, userID string) (models.Notification, error) {
	var notification models.Notification
	if err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&notification).Error; err != nil {
		return models.Notification{}, err
	}

	if notification.Read {
		return notification, nil
	}

	readAt := r.now().UTC()
	if err := r.db.WithContext(ctx).
		Model(&notification).
		Updates(map[string]interface{}{"read": true, "read_at": readAt}).Error; err != nil {
		return models.Notification{}, err
	}
	notification.Read = true
	notification.ReadAt = &readAt

	return notification, nil
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, userID, notificationType string) (int64, error) {
	result := r.inbox(ctx, userID, notificationType).
		Where("read = ?", false).
		Updates(map[string]interface{}{"read": true, "read_at": r.now().UTC()})
	return result.RowsAffected, result.Error
}

func (r *notificationRepository) inbox(ctx context.Context, userID, notificationType string) *gorm.DB {
	query := r.db.WithContext(ctx).Model(&models.Notification{}).Where("user_id = ?", userID)
	if notificationType != "" {
		query = query.Where("type = ?", notificationType)
	}
	return query
}
