package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"

	"github.com/teachlyze/tamanduai-api/internal/dto"
	"github.com/teachlyze/tamanduai-api/internal/models"
	"github.com/teachlyze/tamanduai-api/internal/observability"
	"github.com/teachlyze/tamanduai-api/internal/repository"
)

const (
	notificationBufferSize      = 16
	notificationEnvelopeVersion = 1
	notificationQueueGroup      = "tamanduai-notifications"
)

var (
	// ErrNotificationEmpty is returned when a message has no content left after sanitizing.
	ErrNotificationEmpty = errors.New("notification message empty after sanitization")
	// ErrNotificationUserRequired is returned when an inbox operation has no user.
	ErrNotificationUserRequired = errors.New("notification user id is required")
)

// NotificationService stores in-app notifications and streams them to connected users via SSE.
// Deliveries are fanned out to other API nodes through Redis pub/sub and, optionally, a NATS queue group.
type NotificationService interface {
	Publish(ctx context.Context, payload dto.NotificationCreateRequest) (dto.NotificationResponse, error)
	List(ctx context.Context, userID string, query dto.NotificationListQuery) (dto.NotificationListResponse, error)
	MarkRead(ctx context.Context, id uint, userID string) (dto.NotificationResponse, error)
	MarkAllRead(ctx context.Context, userID, notificationType string) (dto.NotificationReadAllResponse, error)
	Subscribe(userID string) (<-chan dto.NotificationResponse, func())
	Start(ctx context.Context)
}

type notificationService struct {
	repo         repository.NotificationRepository
	redis        *redis.Client
	redisChannel string
	nats         *nats.Conn
	natsSubject  string
	validator    *validator.Validate
	logger       zerolog.Logger
	tracer       trace.Tracer
	sanitizer    *bluemonday.Policy
	streams      *streamRegistry
	nodeID       string
}

// notificationEnvelope is the cross-node wire format.
type notificationEnvelope struct {
	Version      int                      `json:"v"`
	Origin       string                   `json:"origin"`
	Notification dto.NotificationResponse `json:"notification"`
	SentAt       time.Time                `json:"sent_at"`
}

// NewNotificationService constructs a notification service. channelBase names the Redis channel
// ("<base>:notifications") and the NATS subject ("<base>.notifications"); empty disables fan-out.
func NewNotificationService(repo repository.NotificationRepository, redisClient *redis.Client, channelBase string, natsConn *nats.Conn, validate *validator.Validate, logger zerolog.Logger) NotificationService {
	channel := ""
	subject := ""
	if base := strings.TrimSpace(channelBase); base != "" {
		channel = base + ":notifications"
		subject = strings.ReplaceAll(base, ":", ".") + ".notifications"
	}

	return &notificationService{
		repo:         repo,
		redis:        redisClient,
		redisChannel: channel,
		nats:         natsConn,
		natsSubject:  subject,
		validator:    validate,
		logger:       logger.With().Str("component", "notification_service").Logger(),
		tracer:       otel.Tracer("github.com/teachlyze/tamanduai-api/internal/service/notification"),
		sanitizer:    bluemonday.StrictPolicy(),
		streams:      newStreamRegistry(),
		nodeID:       uuid.NewString(),
	}
}

func (s *notificationService) Start(ctx context.Context) {
	if s.redis != nil && s.redisChannel != "" {
		go s.consumeRedis(ctx)
	}
	if s.nats != nil && s.natsSubject != "" {
		s.consumeNATS(ctx)
	}
}

func (s *notificationService) Publish(ctx context.Context, payload dto.NotificationCreateRequest) (dto.NotificationResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.NotificationResponse{}, err
	}

	message := strings.TrimSpace(s.sanitizer.Sanitize(payload.Message))
	if message == "" {
		return dto.NotificationResponse{}, ErrNotificationEmpty
	}

	ctx, span := s.tracer.Start(ctx, "notifications.publish", trace.WithAttributes(
		attribute.String("notification.user_id", payload.UserID),
		attribute.String("notification.type", payload.Type),
	))
	defer span.End()

	model := models.Notification{
		UserID:  payload.UserID,
		Type:    payload.Type,
		Title:   strings.TrimSpace(s.sanitizer.Sanitize(payload.Title)),
		Message: message,
	}
	if len(payload.Data) > 0 {
		model.Data = datatypes.JSONMap(payload.Data)
	}

	if err := s.repo.Create(ctx, &model); err != nil {
		span.RecordError(err)
		return dto.NotificationResponse{}, err
	}

	response := dto.NewNotificationResponse(model)
	s.deliverLocal(response)
	if err := s.relay(ctx, response); err != nil {
		s.logger.Warn().Err(err).Uint("notification_id", response.ID).Msg("failed to relay notification to other nodes")
	}

	return response, nil
}

func (s *notificationService) List(ctx context.Context, userID string, query dto.NotificationListQuery) (dto.NotificationListResponse, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return dto.NotificationListResponse{}, ErrNotificationUserRequired
	}
	if err := s.validator.Struct(query); err != nil {
		return dto.NotificationListResponse{}, err
	}

	notifications, err := s.repo.ListByUser(ctx, userID, repository.NotificationFilter{
		Type:       query.Type,
		UnreadOnly: query.UnreadOnly,
		Limit:      query.Limit,
		Offset:     query.Offset,
	})
	if err != nil {
		return dto.NotificationListResponse{}, err
	}

	unread, err := s.repo.CountUnread(ctx, userID, query.Type)
	if err != nil {
		return dto.NotificationListResponse{}, err
	}

	return dto.NotificationListResponse{
		Items:  dto.NewNotificationResponseSlice(notifications),
		Unread: unread,
	}, nil
}

func (s *notificationService) MarkRead(ctx context.Context, id uint, userID string) (dto.NotificationResponse, error) {
	if strings.TrimSpace(userID) == "" {
		return dto.NotificationResponse{}, ErrNotificationUserRequired
	}

	ctx, span := s.tracer.Start(ctx, "notifications.mark_read", trace.WithAttributes(
		attribute.String("notification.user_id", userID),
	))
	defer span.End()

	notification, err := s.repo.MarkRead(ctx, id, userID)
	if err != nil {
		span.RecordError(err)
		return dto.NotificationResponse{}, err
	}

	return dto.NewNotificationResponse(notification), nil
}

func (s *notificationService) MarkAllRead(ctx context.Context, userID, notificationType string) (dto.NotificationReadAllResponse, error) {
	if strings.TrimSpace(userID) == "" {
		return dto.NotificationReadAllResponse{}, ErrNotificationUserRequired
	}

	ctx, span := s.tracer.Start(ctx, "notifications.mark_all_read", trace.WithAttributes(
		attribute.String("notification.user_id", userID),
		attribute.String("notification.type", notificationType),
	))
	defer span.End()

	updated, err := s.repo.MarkAllRead(ctx, userID, strings.TrimSpace(notificationType))
	if err != nil {
		span.RecordError(err)
		return dto.NotificationReadAllResponse{}, err
	}

	return dto.NotificationReadAllResponse{Updated: updated}, nil
}

func (s *notificationService) Subscribe(userID string) (<-chan dto.NotificationResponse, func()) {
	ch := make(chan dto.NotificationResponse, notificationBufferSize)
	s.streams.add(userID, ch)
	observability.SSEClientsActive().Inc()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.streams.remove(userID, ch)
			observability.SSEClientsActive().Dec()
		})
	}
}

func (s *notificationService) deliverLocal(notification dto.NotificationResponse) {
	delivered, dropped := s.streams.send(notification.UserID, notification)
	if delivered > 0 {
		observability.NotificationsPublishedTotal().WithLabelValues(notification.Type).Add(float64(delivered))
	}
	if dropped > 0 {
		observability.NotificationsDropped().Add(float64(dropped))
		s.logger.Debug().Str("user_id", notification.UserID).Int("dropped", dropped).Msg("notification stream buffer full")
	}
}

func (s *notificationService) relay(ctx context.Context, notification dto.NotificationResponse) error {
	payload, err := json.Marshal(notificationEnvelope{
		Version:      notificationEnvelopeVersion,
		Origin:       s.nodeID,
		Notification: notification,
		SentAt:       time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	var errs []error
	if s.redis != nil && s.redisChannel != "" {
		if err := s.redis.Publish(ctx, s.redisChannel, payload).Err(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.nats != nil && s.natsSubject != "" {
		if err := s.nats.Publish(s.natsSubject, payload); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (s *notificationService) consumeRedis(ctx context.Context) {
	pubsub := s.redis.Subscribe(ctx, s.redisChannel)
	defer func() { _ = pubsub.Close() }()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Error().Err(err).Str("channel", s.redisChannel).Msg("notification redis subscription closed")
			return
		}
		s.receive([]byte(msg.Payload))
	}
}

func (s *notificationService) consumeNATS(ctx context.Context) {
	sub, err := s.nats.QueueSubscribe(s.natsSubject, notificationQueueGroup, func(msg *nats.Msg) {
		s.receive(msg.Data)
	})
	if err != nil {
		s.logger.Error().Err(err).Str("subject", s.natsSubject).Msg("failed to subscribe to notification subject")
		return
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to drain notification subscription")
		}
	}()
}

func (s *notificationService) receive(payload []byte) {
	var envelope notificationEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		s.logger.Warn().Err(err).Msg("invalid notification envelope")
		return
	}
	if envelope.Version != notificationEnvelopeVersion {
		s.logger.Warn().Int("version", envelope.Version).Msg("unsupported notification envelope version")
		return
	}
	if envelope.Origin == s.nodeID || envelope.Notification.UserID == "" {
		return
	}

	s.deliverLocal(envelope.Notification)
}

// streamRegistry tracks the open SSE channels of each user on this node.
type streamRegistry struct {
	mu      sync.RWMutex
	streams map[string]map[chan dto.NotificationResponse]struct{}
}

func newStreamRegistry() *streamRegistry {
	return &streamRegistry{streams: make(map[string]map[chan dto.NotificationResponse]struct{})}
}

func (r *streamRegistry) add(userID string, ch chan dto.NotificationResponse) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.streams[userID]; !ok {
		r.streams[userID] = make(map[chan dto.NotificationResponse]struct{})
	}
	r.streams[userID][ch] = struct{}{}
}

func (r *streamRegistry) remove(userID string, ch chan dto.NotificationResponse) {
	r.mu.Lock()
	defer r.mu.Unlock()

	streams, ok := r.streams[userID]
	if !ok {
		return
	}
	if _, ok := streams[ch]; !ok {
		return
	}
	delete(streams, ch)
	close(ch)
	if len(streams) == 0 {
		delete(r.streams, userID)
	}
}

// send never blocks; a full buffer counts as dropped.
func (r *streamRegistry) send(userID string, notification dto.NotificationResponse) (delivered, dropped int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for ch := range r.streams[userID] {
		select {
		case ch <- notification:
			delivered++
		default:
			dropped++
		}
	}
	return delivered, dropped
}
