package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/teachlyze/tamanduai-api/internal/dto"
	"github.com/teachlyze/tamanduai-api/internal/models"
	"github.com/teachlyze/tamanduai-api/internal/utils"
	"github.com/teachlyze/tamanduai-api/pkg/ai"
	"github.com/teachlyze/tamanduai-api/pkg/email"
	"github.com/teachlyze/tamanduai-api/pkg/plagiarism"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Profile{},
		&models.Class{},
		&models.Activity{},
		&models.Submission{},
		&models.PlagiarismCheck{},
		&models.PlagiarismNotificationSetting{},
		&models.Notification{},
	))
	return db
}

// seedClassroom creates teacher-1 owning class-1 with activity act-1 and submissions sub-1..sub-3.
func seedClassroom(t *testing.T, db *gorm.DB) {
	t.Helper()
	classID := "class-1"
	require.NoError(t, db.Create(&models.Profile{ID: "teacher-1", FullName: "Ana Souza", Email: "ana.souza@example.com", Role: "teacher"}).Error)
	require.NoError(t, db.Create(&models.Class{ID: classID, Name: "Biology", CreatedBy: "teacher-1"}).Error)
	require.NoError(t, db.Create(&models.Activity{ID: "act-1", ClassID: &classID, Title: "Essay", CreatedBy: "teacher-1"}).Error)
	for _, id := range []string{"sub-1", "sub-2", "sub-3"} {
		require.NoError(t, db.Create(&models.Submission{ID: id, ActivityID: "act-1", StudentID: "student-" + id, Status: models.SubmissionStatusSubmitted}).Error)
	}
}

type stubDetector struct {
	mu     sync.Mutex
	calls  int
	score  float64
	err    error
	result *plagiarism.Result
}

func (d *stubDetector) Name() string { return "stub" }

func (d *stubDetector) Detect(ctx context.Context, input ai.DetectionInput) (plagiarism.Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.err != nil {
		return plagiarism.Result{}, d.err
	}
	if d.result != nil {
		return *d.result, nil
	}
	return plagiarism.Result{
		SimilarityScore: d.score,
		Sources: []plagiarism.Source{
			{URL: "https://example.com/source", Title: "Source", Similarity: d.score},
		},
		Provider: "stub",
		Raw:      map[string]interface{}{"model": "stub-model"},
	}, nil
}

func (d *stubDetector) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

type stubEmailSender struct {
	mu       sync.Mutex
	messages []email.Message
	err      error
}

func (s *stubEmailSender) Send(ctx context.Context, msg email.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	return s.err
}

type stubEventPublisher struct {
	mu     sync.Mutex
	events []PlagiarismCheckedEvent
	err    error
}

func (p *stubEventPublisher) PublishPlagiarismChecked(ctx context.Context, event PlagiarismCheckedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

var errProviderDown = errors.New("provider unavailable")

func newTestValidator() *validator.Validate {
	return utils.NewValidator()
}

// stubNotificationCollector records Publish calls instead of persisting them.
type stubNotificationCollector struct {
	NotificationService
	mu       sync.Mutex
	requests []dto.NotificationCreateRequest
	err      error
}

func (c *stubNotificationCollector) Publish(ctx context.Context, payload dto.NotificationCreateRequest) (dto.NotificationResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return dto.NotificationResponse{}, c.err
	}
	c.requests = append(c.requests, payload)
	return dto.NotificationResponse{UserID: payload.UserID, Type: payload.Type, Message: payload.Message}, nil
}
