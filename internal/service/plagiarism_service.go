package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/teachlyze/tamanduai-api/internal/dto"
	"github.com/teachlyze/tamanduai-api/internal/models"
	"github.com/teachlyze/tamanduai-api/internal/observability"
	"github.com/teachlyze/tamanduai-api/internal/repository"
	"github.com/teachlyze/tamanduai-api/pkg/ai"
	"github.com/teachlyze/tamanduai-api/pkg/plagiarism"
)

var (
	// ErrInvalidCheckRequest wraps validation and encoding failures of a check request.
	ErrInvalidCheckRequest = errors.New("invalid plagiarism check request")
	// ErrProviderFailed indicates the detection provider call failed; nothing was persisted.
	ErrProviderFailed = errors.New("plagiarism provider failed")
	// ErrCheckPersistence indicates the check or the submission flags could not be written.
	ErrCheckPersistence = errors.New("plagiarism check could not be persisted")
	// ErrSubmissionNotFound is returned by read paths for unknown submissions.
	ErrSubmissionNotFound = errors.New("submission not found")
)

// Check states, recorded as span events.
const (
	stateReceived     = "RECEIVED"
	stateCacheLookup  = "CACHE_LOOKUP"
	stateCacheHit     = "CACHE_HIT"
	stateProviderCall = "PROVIDER_CALL"
	stateClassified   = "CLASSIFIED"
	statePersisted    = "PERSISTED"
	stateNotified     = "NOTIFIED"
	stateDone         = "DONE"
	stateError        = "ERROR"
)

// Check outcomes, used as metric labels.
const (
	outcomeFresh            = "fresh"
	outcomeCached           = "cached"
	outcomeSkipped          = "skipped"
	outcomeInvalid          = "invalid"
	outcomeProviderError    = "provider_error"
	outcomePersistenceError = "persistence_error"
)

// PlagiarismService runs plagiarism checks and serves their history and statistics.
type PlagiarismService interface {
	Check(ctx context.Context, req dto.PlagiarismCheckRequest) (dto.PlagiarismCheckResponse, error)
	History(ctx context.Context, submissionID string) ([]dto.PlagiarismResultResponse, error)
	Stats(ctx context.Context, query dto.PlagiarismStatsQuery) (dto.PlagiarismStatsResponse, error)
	ListChecks(ctx context.Context, query dto.PlagiarismCheckListQuery) (dto.PlagiarismCheckListResponse, error)
}

type plagiarismService struct {
	checks      repository.PlagiarismCheckRepository
	submissions repository.SubmissionRepository
	detector    ai.Detector
	cache       PlagiarismCache
	notifier    PlagiarismNotifier
	validator   *validator.Validate
	cacheTTL    time.Duration
	logger      zerolog.Logger
	tracer      trace.Tracer
}

// NewPlagiarismService wires the check pipeline.
func NewPlagiarismService(
	checks repository.PlagiarismCheckRepository,
	submissions repository.SubmissionRepository,
	detector ai.Detector,
	cache PlagiarismCache,
	notifier PlagiarismNotifier,
	validate *validator.Validate,
	cacheTTL time.Duration,
	logger zerolog.Logger,
) PlagiarismService {
	if cacheTTL <= 0 {
		cacheTTL = DefaultPlagiarismCacheTTL
	}
	return &plagiarismService{
		checks:      checks,
		submissions: submissions,
		detector:    detector,
		cache:       cache,
		notifier:    notifier,
		validator:   validate,
		cacheTTL:    cacheTTL,
		logger:      logger.With().Str("component", "plagiarism_service").Logger(),
		tracer:      otel.Tracer("github.com/teachlyze/tamanduai-api/internal/service/plagiarism"),
	}
}

func (s *plagiarismService) Check(ctx context.Context, req dto.PlagiarismCheckRequest) (dto.PlagiarismCheckResponse, error) {
	started := time.Now()
	ctx, span := s.tracer.Start(ctx, "plagiarism.check", trace.WithAttributes(
		attribute.String("plagiarism.submission_id", req.SubmissionID),
		attribute.Bool("plagiarism.recheck", req.Recheck),
	))
	defer span.End()
	transition(span, stateReceived)

	req.SubmissionID = strings.TrimSpace(req.SubmissionID)
	req.ActivityID = strings.TrimSpace(req.ActivityID)
	if err := s.validator.Struct(req); err != nil {
		return dto.PlagiarismCheckResponse{}, s.fail(span, outcomeInvalid, fmt.Errorf("%w: %w", ErrInvalidCheckRequest, err))
	}

	fingerprint, err := plagiarism.Fingerprint(req.Text)
	if err != nil {
		return dto.PlagiarismCheckResponse{}, s.fail(span, outcomeInvalid, fmt.Errorf("%w: %w", ErrInvalidCheckRequest, err))
	}

	logger := s.logger.With().
		Str("submission_id", req.SubmissionID).
		Str("activity_id", req.ActivityID).
		Logger()

	attempt := 1
	if req.Recheck {
		attempt, err = s.checks.NextAttempt(ctx, req.SubmissionID)
		if err != nil {
			return dto.PlagiarismCheckResponse{}, s.fail(span, outcomePersistenceError, fmt.Errorf("%w: read previous attempts: %w", ErrCheckPersistence, err))
		}
	} else {
		previous, err := s.checks.LatestBySubmission(ctx, req.SubmissionID)
		switch {
		case err == nil:
			return s.skip(span, logger, previous), nil
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return dto.PlagiarismCheckResponse{}, s.fail(span, outcomePersistenceError, fmt.Errorf("%w: read previous check: %w", ErrCheckPersistence, err))
		}
	}

	recipient, err := s.notifier.ResolveRecipient(ctx, req.ActivityID, req.ClassID)
	if err != nil {
		logger.Warn().Err(err).Msg("alert recipient unresolved, using default thresholds")
	}

	transition(span, stateCacheLookup)
	cacheKey := plagiarism.CacheKey(fingerprint)

	var (
		result    plagiarism.Result
		severity  plagiarism.Severity
		fromCache bool
	)

	if entry, ok := s.cache.Get(ctx, cacheKey); ok {
		transition(span, stateCacheHit)
		result = entry.Result
		severity = entry.Severity
		if !severity.Valid() {
			severity = plagiarism.Classify(result.SimilarityScore, recipient.Thresholds)
		}
		fromCache = true
	} else {
		transition(span, stateProviderCall)
		result, err = s.detector.Detect(ctx, ai.DetectionInput{Text: req.Text, Language: req.Language})
		if err != nil {
			logger.Error().Err(err).Str("provider", s.detector.Name()).Msg("plagiarism provider call failed")
			return dto.PlagiarismCheckResponse{}, s.fail(span, outcomeProviderError, fmt.Errorf("%w: %w", ErrProviderFailed, err))
		}
		severity = plagiarism.Classify(result.SimilarityScore, recipient.Thresholds)
		s.cache.Set(ctx, cacheKey, CachedResult{Result: result, Severity: severity}, s.cacheTTL)
	}
	transition(span, stateClassified)

	provider := result.Provider
	if provider == "" {
		provider = s.detector.Name()
	}

	check := models.PlagiarismCheck{
		SubmissionID:           req.SubmissionID,
		Attempt:                attempt,
		ActivityID:             req.ActivityID,
		ClassID:                checkClassID(req.ClassID, recipient.ClassID),
		ContentHash:            fingerprint,
		SimilarityScore:        result.SimilarityScore,
		AIGeneratedProbability: result.AIGeneratedProbability,
		Severity:               string(severity),
		IsPlagiarized:          plagiarism.IsPlagiarized(severity),
		Provider:               provider,
		Sources:                encodeSources(result.Sources),
		RawResponse:            datatypes.JSONMap(result.Raw),
		Cached:                 fromCache,
	}

	flags := repository.SubmissionFlags{
		Score:         check.SimilarityScore,
		Severity:      check.Severity,
		IsPlagiarized: check.IsPlagiarized,
	}
	if err := s.checks.Record(ctx, &check, flags); err != nil {
		if errors.Is(err, repository.ErrDuplicateCheck) {
			return s.skipAfterRace(ctx, span, logger, req.SubmissionID)
		}
		logger.Error().Err(err).Msg("failed to persist plagiarism check")
		return dto.PlagiarismCheckResponse{}, s.fail(span, outcomePersistenceError, fmt.Errorf("%w: %w", ErrCheckPersistence, err))
	}
	transition(span, statePersisted)

	report := s.notifier.Dispatch(ctx, recipient, PlagiarismAlert{
		CheckID:       check.ID,
		SubmissionID:  check.SubmissionID,
		ActivityID:    check.ActivityID,
		ClassID:       check.ClassID,
		Attempt:       check.Attempt,
		Score:         check.SimilarityScore,
		Severity:      severity,
		IsPlagiarized: check.IsPlagiarized,
		FromCache:     fromCache,
		SourcesCount:  len(result.Sources),
	})
	transition(span, stateNotified)

	outcome := outcomeFresh
	if fromCache {
		outcome = outcomeCached
	}
	observability.PlagiarismChecks().WithLabelValues(outcome).Inc()
	observability.PlagiarismCheckDuration().Observe(time.Since(started).Seconds())

	span.SetAttributes(
		attribute.String("plagiarism.check_id", check.ID),
		attribute.String("plagiarism.severity", check.Severity),
		attribute.Bool("plagiarism.from_cache", fromCache),
	)
	span.SetStatus(codes.Ok, outcome)
	transition(span, stateDone)

	logger.Info().
		Str("check_id", check.ID).
		Int("attempt", check.Attempt).
		Float64("score", check.SimilarityScore).
		Str("severity", check.Severity).
		Bool("from_cache", fromCache).
		Str("owner_id", report.OwnerID).
		Msg("plagiarism check completed")

	response := dto.NewPlagiarismResultResponse(check)
	return dto.PlagiarismCheckResponse{PlagiarismResultResponse: &response}, nil
}

func (s *plagiarismService) skip(span trace.Span, logger zerolog.Logger, previous models.PlagiarismCheck) dto.PlagiarismCheckResponse {
	observability.PlagiarismChecks().WithLabelValues(outcomeSkipped).Inc()
	span.SetAttributes(attribute.String("plagiarism.previous_check_id", previous.ID))
	span.SetStatus(codes.Ok, outcomeSkipped)
	transition(span, stateDone)

	logger.Info().Str("previous_check_id", previous.ID).Msg("submission already checked, skipping")
	return dto.NewSkippedCheckResponse(dto.NewPlagiarismResultResponse(previous))
}

// skipAfterRace handles a concurrent writer recording the same attempt first.
func (s *plagiarismService) skipAfterRace(ctx context.Context, span trace.Span, logger zerolog.Logger, submissionID string) (dto.PlagiarismCheckResponse, error) {
	logger.Warn().Msg("concurrent plagiarism check recorded first, returning its result")
	previous, err := s.checks.LatestBySubmission(ctx, submissionID)
	if err != nil {
		return dto.PlagiarismCheckResponse{}, s.fail(span, outcomePersistenceError, fmt.Errorf("%w: read concurrent check: %w", ErrCheckPersistence, err))
	}
	return s.skip(span, logger, previous), nil
}

func (s *plagiarismService) fail(span trace.Span, outcome string, err error) error {
	observability.PlagiarismChecks().WithLabelValues(outcome).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, outcome)
	transition(span, stateError)
	return err
}

func (s *plagiarismService) History(ctx context.Context, submissionID string) ([]dto.PlagiarismResultResponse, error) {
	submissionID = strings.TrimSpace(submissionID)
	if submissionID == "" {
		return nil, fmt.Errorf("%w: submission id is required", ErrInvalidCheckRequest)
	}

	ctx, span := s.tracer.Start(ctx, "plagiarism.history", trace.WithAttributes(
		attribute.String("plagiarism.submission_id", submissionID),
	))
	defer span.End()

	if _, err := s.submissions.GetByID(ctx, submissionID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubmissionNotFound
		}
		span.RecordError(err)
		return nil, err
	}

	checks, err := s.checks.ListBySubmission(ctx, submissionID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	return dto.NewPlagiarismResultResponseSlice(checks), nil
}

func (s *plagiarismService) Stats(ctx context.Context, query dto.PlagiarismStatsQuery) (dto.PlagiarismStatsResponse, error) {
	if err := s.validator.Struct(query); err != nil {
		return dto.PlagiarismStatsResponse{}, fmt.Errorf("%w: %w", ErrInvalidCheckRequest, err)
	}

	ctx, span := s.tracer.Start(ctx, "plagiarism.stats", trace.WithAttributes(
		attribute.String("plagiarism.class_id", query.ClassID),
		attribute.String("plagiarism.activity_id", query.ActivityID),
	))
	defer span.End()

	stats, err := s.checks.Stats(ctx, repository.PlagiarismCheckFilter{
		ClassID:    query.ClassID,
		ActivityID: query.ActivityID,
	})
	if err != nil {
		span.RecordError(err)
		return dto.PlagiarismStatsResponse{}, err
	}

	return dto.PlagiarismStatsResponse{
		ClassID:      query.ClassID,
		ActivityID:   query.ActivityID,
		TotalChecks:  stats.Total,
		CachedChecks: stats.Cached,
		Flagged:      stats.Flagged,
		AverageScore: stats.AvgScore,
		MaxScore:     stats.MaxScore,
		BySeverity:   stats.BySeverity,
	}, nil
}

const defaultCheckPageSize = 20

func (s *plagiarismService) ListChecks(ctx context.Context, query dto.PlagiarismCheckListQuery) (dto.PlagiarismCheckListResponse, error) {
	if err := s.validator.Struct(query); err != nil {
		return dto.PlagiarismCheckListResponse{}, fmt.Errorf("%w: %w", ErrInvalidCheckRequest, err)
	}

	severity := ""
	if strings.TrimSpace(query.Severity) != "" {
		parsed, err := plagiarism.ParseSeverity(query.Severity)
		if err != nil {
			return dto.PlagiarismCheckListResponse{}, fmt.Errorf("%w: %w", ErrInvalidCheckRequest, err)
		}
		severity = string(parsed)
	}

	page := query.Page
	if page <= 0 {
		page = 1
	}
	pageSize := query.PageSize
	if pageSize <= 0 {
		pageSize = defaultCheckPageSize
	}

	ctx, span := s.tracer.Start(ctx, "plagiarism.list_checks", trace.WithAttributes(
		attribute.String("plagiarism.class_id", query.ClassID),
		attribute.String("plagiarism.activity_id", query.ActivityID),
		attribute.String("plagiarism.severity", severity),
	))
	defer span.End()

	checks, total, err := s.checks.List(ctx, repository.PlagiarismCheckFilter{
		ClassID:    query.ClassID,
		ActivityID: query.ActivityID,
		Severity:   severity,
		Page:       page,
		PageSize:   pageSize,
	})
	if err != nil {
		span.RecordError(err)
		return dto.PlagiarismCheckListResponse{}, err
	}

	return dto.PlagiarismCheckListResponse{
		Items:    dto.NewPlagiarismResultResponseSlice(checks),
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}, nil
}

func transition(span trace.Span, state string) {
	span.AddEvent("state", trace.WithAttributes(attribute.String("plagiarism.state", state)))
}

// checkClassID keeps the requested class and otherwise stores the class resolved from the activity,
// so class-level stats include checks submitted without class_id.
func checkClassID(requested *string, resolved string) *string {
	if id := normalizeOptionalID(requested); id != nil {
		return id
	}
	return normalizeOptionalID(&resolved)
}

func normalizeOptionalID(id *string) *string {
	if id == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*id)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func encodeSources(sources []plagiarism.Source) datatypes.JSON {
	if sources == nil {
		sources = []plagiarism.Source{}
	}
	payload, err := json.Marshal(sources)
	if err != nil {
		return datatypes.JSON("[]")
	}
	return datatypes.JSON(payload)
}
