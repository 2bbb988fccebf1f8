package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/teachlyze/tamanduai-api/pkg/plagiarism"
)

var (
	detectionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "tamanduai",
		Subsystem: "ai",
		Name:      "detection_duration_seconds",
		Help:      "Duration of plagiarism detection requests",
	}, []string{"model"})

	detectionFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tamanduai",
		Subsystem: "ai",
		Name:      "detection_failures_total",
		Help:      "Number of plagiarism detection failures",
	}, []string{"model"})
)

// OpenAIConfig defines configuration options for the OpenAI-compatible detector.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float32
	Timeout     time.Duration
	Logger      zerolog.Logger
}

// OpenAIDetector implements Detector against an OpenAI-compatible chat completion API.
type OpenAIDetector struct {
	client *openai.Client
	cfg    OpenAIConfig
	schema *jsonschema.Schema
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewOpenAIDetector builds a new detector using the provided configuration.
func NewOpenAIDetector(cfg OpenAIConfig) (*OpenAIDetector, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("plagiarism provider api key is required")
	}

	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}

	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1024
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	schema, err := compileDetectionSchema()
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	return &OpenAIDetector{
		client: openai.NewClientWithConfig(config),
		cfg:    cfg,
		schema: schema,
		tracer: otel.Tracer("github.com/teachlyze/tamanduai-api/pkg/ai/openai"),
		logger: logger.With().Str("component", "openai_detector").Logger(),
	}, nil
}

// Name identifies the provider in persisted checks.
func (d *OpenAIDetector) Name() string {
	return "openai:" + d.cfg.Model
}

// Detect sends the submission text to the provider and normalizes the verdict.
func (d *OpenAIDetector) Detect(parent context.Context, input DetectionInput) (plagiarism.Result, error) {
	ctx, span := d.tracer.Start(parent, "openai.detect", trace.WithAttributes(
		attribute.String("model", d.cfg.Model),
		attribute.Int("text.length", len(input.Text)),
	))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	start := time.Now()
	request := openai.ChatCompletionRequest{
		Model:       d.cfg.Model,
		MaxTokens:   d.cfg.MaxTokens,
		Temperature: d.cfg.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: detectorSystemPrompt(),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: buildDetectionPrompt(input),
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	}

	resp, err := d.client.CreateChatCompletion(ctx, request)
	detectionDuration.WithLabelValues(d.cfg.Model).Observe(time.Since(start).Seconds())
	if err != nil {
		return plagiarism.Result{}, d.fail(span, fmt.Errorf("%w: openai detect: %w", ErrDetectionFailed, err))
	}

	if len(resp.Choices) == 0 {
		return plagiarism.Result{}, d.fail(span, fmt.Errorf("%w: no choices returned from provider", ErrDetectionFailed))
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	result, err := d.parseDetectionResponse(content)
	if err != nil {
		return plagiarism.Result{}, d.fail(span, err)
	}

	result.Provider = d.Name()
	result.Raw["id"] = resp.ID
	result.Raw["model"] = resp.Model
	result.Raw["usage"] = map[string]interface{}{
		"prompt_tokens":     resp.Usage.PromptTokens,
		"completion_tokens": resp.Usage.CompletionTokens,
		"total_tokens":      resp.Usage.TotalTokens,
	}

	span.SetAttributes(attribute.Float64("similarity_score", result.SimilarityScore))
	d.logger.Debug().Float64("similarity_score", result.SimilarityScore).Int("sources", len(result.Sources)).Msg("detection completed")

	return result, nil
}

func (d *OpenAIDetector) fail(span trace.Span, err error) error {
	detectionFailures.WithLabelValues(d.cfg.Model).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func detectorSystemPrompt() string {
	return "You are a plagiarism and AI-content detector for student submissions. Respond with a JSON object containing " +
		"similarity_score (0-1, how much of the text matches existing sources), ai_generated_probability (0-1), and " +
		"sources: an array of {url, title, similarity (0-1)} for every matched source. Return an empty sources array when nothing matches."
}

func buildDetectionPrompt(input DetectionInput) string {
	builder := strings.Builder{}
	if input.Language != "" {
		builder.WriteString("## Language\n")
		builder.WriteString(input.Language)
		builder.WriteString("\n\n")
	}
	builder.WriteString("## Submission\n")
	builder.WriteString(input.Text)
	builder.WriteString("\nReturn JSON.")
	return builder.String()
}

type detectionPayload struct {
	SimilarityScore        float64  `json:"similarity_score"`
	AIGeneratedProbability *float64 `json:"ai_generated_probability"`
	Sources                []struct {
		URL               string   `json:"url"`
		Title             string   `json:"title"`
		Similarity        *float64 `json:"similarity"`
		MatchedPercentage *float64 `json:"matched_percentage"`
	} `json:"sources"`
}

func (d *OpenAIDetector) parseDetectionResponse(content string) (plagiarism.Result, error) {
	var document interface{}
	if err := json.Unmarshal([]byte(content), &document); err != nil {
		return plagiarism.Result{}, fmt.Errorf("%w: parse detection json: %w", ErrDetectionFailed, err)
	}

	if err := d.schema.Validate(document); err != nil {
		return plagiarism.Result{}, fmt.Errorf("%w: detection response rejected: %w", ErrDetectionFailed, err)
	}

	var data detectionPayload
	if err := json.Unmarshal([]byte(content), &data); err != nil {
		return plagiarism.Result{}, fmt.Errorf("%w: decode detection json: %w", ErrDetectionFailed, err)
	}

	result := plagiarism.Result{
		SimilarityScore: plagiarism.NormalizeScore(data.SimilarityScore),
		Sources:         make([]plagiarism.Source, 0, len(data.Sources)),
		Raw:             map[string]interface{}{"response": document},
	}

	if data.AIGeneratedProbability != nil {
		probability := plagiarism.NormalizeScore(*data.AIGeneratedProbability)
		result.AIGeneratedProbability = &probability
	}

	for _, source := range data.Sources {
		similarity := 0.0
		switch {
		case source.Similarity != nil:
			similarity = *source.Similarity
		case source.MatchedPercentage != nil:
			similarity = *source.MatchedPercentage
		}
		result.Sources = append(result.Sources, plagiarism.Source{
			URL:        source.URL,
			Title:      source.Title,
			Similarity: plagiarism.NormalizeScore(similarity),
		})
	}

	return result, nil
}
