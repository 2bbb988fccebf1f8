package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// PlagiarismCheckedRoutingKey is the routing key of the event emitted after every recorded check.
const PlagiarismCheckedRoutingKey = "plagiarism.checked"

const eventPublishTimeout = 5 * time.Second

// PlagiarismCheckedEvent is published after a check has been persisted.
type PlagiarismCheckedEvent struct {
	EventID         string    `json:"event_id"`
	CheckID         string    `json:"check_id"`
	SubmissionID    string    `json:"submission_id"`
	ActivityID      string    `json:"activity_id"`
	ClassID         *string   `json:"class_id,omitempty"`
	OwnerID         string    `json:"owner_id,omitempty"`
	Attempt         int       `json:"attempt"`
	SimilarityScore float64   `json:"similarity_score"`
	Severity        string    `json:"severity"`
	IsPlagiarized   bool      `json:"is_plagiarized"`
	FromCache       bool      `json:"from_cache"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// EventPublisher emits domain events for downstream consumers (analytics, gradebook sync).
type EventPublisher interface {
	PublishPlagiarismChecked(ctx context.Context, event PlagiarismCheckedEvent) error
}

// AMQPChannel is the subset of *amqp.Channel used for publishing.
type AMQPChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// RabbitEventPublisher publishes JSON events to a RabbitMQ exchange.
type RabbitEventPublisher struct {
	channel  AMQPChannel
	exchange string
	logger   zerolog.Logger
	timeout  time.Duration
}

// NewRabbitEventPublisher wraps an open channel. The exchange must already be declared.
func NewRabbitEventPublisher(channel AMQPChannel, exchange string, logger zerolog.Logger) *RabbitEventPublisher {
	return &RabbitEventPublisher{
		channel:  channel,
		exchange: exchange,
		logger:   logger.With().Str("component", "plagiarism_events").Logger(),
		timeout:  eventPublishTimeout,
	}
}

func (p *RabbitEventPublisher) PublishPlagiarismChecked(ctx context.Context, event PlagiarismCheckedEvent) error {
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode plagiarism event: %w", err)
	}

	publishCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.channel.PublishWithContext(publishCtx, p.exchange, PlagiarismCheckedRoutingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		MessageId:    event.EventID,
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    event.OccurredAt,
	}); err != nil {
		return fmt.Errorf("publish plagiarism event: %w", err)
	}

	p.logger.Debug().Str("check_id", event.CheckID).Str("event_id", event.EventID).Msg("plagiarism event published")
	return nil
}
