package service

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/teachlyze/tamanduai-api/internal/dto"
	"github.com/teachlyze/tamanduai-api/internal/observability"
	"github.com/teachlyze/tamanduai-api/internal/repository"
	"github.com/teachlyze/tamanduai-api/pkg/email"
	"github.com/teachlyze/tamanduai-api/pkg/plagiarism"
)

// NotificationTypePlagiarismAlert tags in-app notifications produced by plagiarism checks.
const NotificationTypePlagiarismAlert = "plagiarism_alert"

// Delivery outcomes recorded in a DispatchReport.
const (
	DeliverySent     = "sent"
	DeliveryFailed   = "failed"
	DeliveryDisabled = "disabled"
	DeliverySkipped  = "skipped"
)

// ErrOwnerUnresolved indicates neither the class nor the activity leads to an owning teacher.
var ErrOwnerUnresolved = errors.New("class owner could not be resolved")

// AlertRecipient is the class owner together with their effective alert preferences.
// ClassID is the class the activity belongs to, when one is known.
type AlertRecipient struct {
	OwnerID     string
	ClassID     string
	Thresholds  plagiarism.Thresholds
	NotifyInApp bool
	NotifyEmail bool
}

// PlagiarismAlert describes a recorded check that may need to be reported to the owner.
type PlagiarismAlert struct {
	CheckID       string
	SubmissionID  string
	ActivityID    string
	ClassID       *string
	Attempt       int
	Score         float64
	Severity      plagiarism.Severity
	IsPlagiarized bool
	FromCache     bool
	SourcesCount  int
}

// DispatchReport records what happened on each channel.
type DispatchReport struct {
	OwnerID string
	InApp   string
	Email   string
	Event   string
}

// PlagiarismNotifier resolves alert recipients and fans alerts out. Delivery is best effort:
// Dispatch never returns an error.
type PlagiarismNotifier interface {
	ResolveRecipient(ctx context.Context, activityID string, classID *string) (AlertRecipient, error)
	Dispatch(ctx context.Context, recipient AlertRecipient, alert PlagiarismAlert) DispatchReport
}

type plagiarismNotifier struct {
	classrooms    repository.ClassroomRepository
	settings      repository.NotificationSettingRepository
	notifications NotificationService
	email         EmailSender
	events        EventPublisher
	defaults      plagiarism.Thresholds
	logger        zerolog.Logger
}

// NewPlagiarismNotifier wires the dispatcher. email and events may be nil to disable those channels.
func NewPlagiarismNotifier(
	classrooms repository.ClassroomRepository,
	settings repository.NotificationSettingRepository,
	notifications NotificationService,
	emailSender EmailSender,
	events EventPublisher,
	defaults plagiarism.Thresholds,
	logger zerolog.Logger,
) PlagiarismNotifier {
	if err := defaults.Validate(); err != nil {
		defaults = plagiarism.DefaultThresholds
	}
	return &plagiarismNotifier{
		classrooms:    classrooms,
		settings:      settings,
		notifications: notifications,
		email:         emailSender,
		events:        events,
		defaults:      defaults,
		logger:        logger.With().Str("component", "plagiarism_notifier").Logger(),
	}
}

// ResolveRecipient follows class.created_by, then the activity's class, then activity.created_by.
// The returned recipient always carries usable thresholds, even alongside an error.
func (n *plagiarismNotifier) ResolveRecipient(ctx context.Context, activityID string, classID *string) (AlertRecipient, error) {
	recipient := AlertRecipient{
		Thresholds:  n.defaults,
		NotifyInApp: true,
	}

	ownerID, resolvedClass, err := n.resolveOwner(ctx, activityID, classID)
	recipient.ClassID = resolvedClass
	if err != nil {
		return recipient, err
	}
	recipient.OwnerID = ownerID

	setting, err := n.settings.FindByOwner(ctx, ownerID)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return recipient, nil
	case err != nil:
		n.logger.Warn().Err(err).Str("owner_id", ownerID).Msg("failed to load notification settings, using defaults")
		return recipient, nil
	}

	recipient.NotifyInApp = setting.NotifyInApp
	recipient.NotifyEmail = setting.NotifyEmail

	thresholds := plagiarism.Thresholds{
		Low:    setting.LowThreshold,
		Medium: setting.MediumThreshold,
		High:   setting.HighThreshold,
	}
	if err := thresholds.Validate(); err != nil {
		n.logger.Warn().Err(err).Str("owner_id", ownerID).Msg("stored thresholds invalid, using defaults")
	} else {
		recipient.Thresholds = thresholds
	}

	return recipient, nil
}

// resolveOwner also reports the class the check belongs to: the requested class when it
// exists, otherwise the activity's class.
func (n *plagiarismNotifier) resolveOwner(ctx context.Context, activityID string, classID *string) (string, string, error) {
	if classID != nil && strings.TrimSpace(*classID) != "" {
		requested := strings.TrimSpace(*classID)
		if owner, ok := n.classOwner(ctx, requested); ok {
			return owner, requested, nil
		}
	}

	activity, err := n.classrooms.GetActivity(ctx, activityID)
	if err != nil {
		return "", "", fmt.Errorf("%w: activity %s: %w", ErrOwnerUnresolved, activityID, err)
	}

	activityClass := ""
	if activity.ClassID != nil {
		activityClass = strings.TrimSpace(*activity.ClassID)
	}
	if activityClass != "" {
		if owner, ok := n.classOwner(ctx, activityClass); ok {
			return owner, activityClass, nil
		}
	}

	if owner := strings.TrimSpace(activity.CreatedBy); owner != "" {
		return owner, activityClass, nil
	}

	return "", activityClass, fmt.Errorf("%w: activity %s has no owner", ErrOwnerUnresolved, activityID)
}

func (n *plagiarismNotifier) classOwner(ctx context.Context, classID string) (string, bool) {
	class, err := n.classrooms.GetClass(ctx, classID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			n.logger.Warn().Err(err).Str("class_id", classID).Msg("class lookup failed")
		}
		return "", false
	}
	owner := strings.TrimSpace(class.CreatedBy)
	return owner, owner != ""
}

func (n *plagiarismNotifier) Dispatch(ctx context.Context, recipient AlertRecipient, alert PlagiarismAlert) DispatchReport {
	report := DispatchReport{
		OwnerID: recipient.OwnerID,
		InApp:   DeliverySkipped,
		Email:   DeliverySkipped,
		Event:   DeliveryDisabled,
	}

	logger := n.logger.With().
		Str("check_id", alert.CheckID).
		Str("submission_id", alert.SubmissionID).
		Str("severity", string(alert.Severity)).
		Logger()

	if recipient.OwnerID == "" {
		logger.Warn().Msg("no class owner resolved, plagiarism alert not sent")
	} else if alert.Severity.AtLeast(plagiarism.SeverityLow) {
		report.InApp = n.sendInApp(ctx, logger, recipient, alert)
		report.Email = n.sendEmail(ctx, logger, recipient, alert)
	}

	if n.events != nil {
		report.Event = n.publishEvent(ctx, logger, recipient, alert)
	}

	logger.Info().
		Str("owner_id", report.OwnerID).
		Str("in_app", report.InApp).
		Str("email", report.Email).
		Str("event", report.Event).
		Msg("plagiarism alert dispatched")

	return report
}

func (n *plagiarismNotifier) sendInApp(ctx context.Context, logger zerolog.Logger, recipient AlertRecipient, alert PlagiarismAlert) string {
	if !recipient.NotifyInApp || n.notifications == nil {
		return DeliveryDisabled
	}

	_, err := n.notifications.Publish(ctx, dto.NotificationCreateRequest{
		UserID:  recipient.OwnerID,
		Type:    NotificationTypePlagiarismAlert,
		Title:   alertTitle(alert),
		Message: alertMessage(alert),
		Data: map[string]interface{}{
			"check_id":      alert.CheckID,
			"submission_id": alert.SubmissionID,
			"activity_id":   alert.ActivityID,
			"score":         alert.Score,
			"severity":      string(alert.Severity),
			"from_cache":    alert.FromCache,
			"sources_count": alert.SourcesCount,
		},
	})
	if err != nil {
		observability.PlagiarismAlerts().WithLabelValues("in_app", DeliveryFailed).Inc()
		logger.Warn().Err(err).Str("owner_id", recipient.OwnerID).Msg("in-app plagiarism alert failed")
		return DeliveryFailed
	}

	observability.PlagiarismAlerts().WithLabelValues("in_app", DeliverySent).Inc()
	return DeliverySent
}

func (n *plagiarismNotifier) sendEmail(ctx context.Context, logger zerolog.Logger, recipient AlertRecipient, alert PlagiarismAlert) string {
	if !recipient.NotifyEmail || n.email == nil {
		return DeliveryDisabled
	}

	profile, err := n.classrooms.GetProfile(ctx, recipient.OwnerID)
	if err != nil || strings.TrimSpace(profile.Email) == "" {
		logger.Warn().Err(err).Str("owner_id", recipient.OwnerID).Msg("owner email unavailable, skipping plagiarism email")
		return DeliverySkipped
	}

	message := email.Message{
		ToAddress: profile.Email,
		ToName:    profile.FullName,
		Subject:   alertTitle(alert),
		Text:      alertMessage(alert),
		HTML:      alertHTML(alert),
	}
	if err := n.email.Send(ctx, message); err != nil {
		observability.PlagiarismAlerts().WithLabelValues("email", DeliveryFailed).Inc()
		logger.Error().Err(err).Str("email", maskEmailAddress(profile.Email)).Msg("plagiarism alert email failed")
		return DeliveryFailed
	}

	observability.PlagiarismAlerts().WithLabelValues("email", DeliverySent).Inc()
	return DeliverySent
}

func (n *plagiarismNotifier) publishEvent(ctx context.Context, logger zerolog.Logger, recipient AlertRecipient, alert PlagiarismAlert) string {
	err := n.events.PublishPlagiarismChecked(ctx, PlagiarismCheckedEvent{
		CheckID:         alert.CheckID,
		SubmissionID:    alert.SubmissionID,
		ActivityID:      alert.ActivityID,
		ClassID:         alert.ClassID,
		OwnerID:         recipient.OwnerID,
		Attempt:         alert.Attempt,
		SimilarityScore: alert.Score,
		Severity:        string(alert.Severity),
		IsPlagiarized:   alert.IsPlagiarized,
		FromCache:       alert.FromCache,
	})
	if err != nil {
		observability.PlagiarismAlerts().WithLabelValues("event", DeliveryFailed).Inc()
		logger.Warn().Err(err).Msg("plagiarism event publish failed")
		return DeliveryFailed
	}

	observability.PlagiarismAlerts().WithLabelValues("event", DeliverySent).Inc()
	return DeliverySent
}

func alertTitle(alert PlagiarismAlert) string {
	return fmt.Sprintf("Plagiarism alert: %s similarity", alert.Severity)
}

func alertMessage(alert PlagiarismAlert) string {
	message := fmt.Sprintf("Submission %s scored %.0f%% similarity (%s severity) across %d matched source(s).",
		alert.SubmissionID, alert.Score*100, alert.Severity, alert.SourcesCount)
	if alert.FromCache {
		message += " The result was reused from an identical earlier submission."
	}
	return message
}

func alertHTML(alert PlagiarismAlert) string {
	return "<p>" + html.EscapeString(alertMessage(alert)) + "</p>"
}
