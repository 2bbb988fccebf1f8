package dto

import (
	"encoding/json"
	"time"

	"github.com/teachlyze/tamanduai-api/internal/models"
	"github.com/teachlyze/tamanduai-api/pkg/plagiarism"
)

// SkipReasonAlreadyChecked is returned when a submission already has a check and no recheck was requested.
const SkipReasonAlreadyChecked = "already_checked"

// PlagiarismCheckRequest is the body of POST /plagiarism-check.
type PlagiarismCheckRequest struct {
	SubmissionID string  `json:"submission_id" validate:"required,max=64"`
	ActivityID   string  `json:"activity_id" validate:"required,max=64"`
	ClassID      *string `json:"class_id" validate:"omitempty,max=64"`
	Text         string  `json:"text" validate:"required"`
	Language     string  `json:"language" validate:"omitempty,max=16"`
	Recheck      bool    `json:"recheck"`
}

// PlagiarismSourceResponse describes one matched source.
type PlagiarismSourceResponse struct {
	URL        string  `json:"url"`
	Title      string  `json:"title,omitempty"`
	Similarity float64 `json:"similarity"`
}

// PlagiarismResultResponse is the outcome of a completed check.
type PlagiarismResultResponse struct {
	CheckID                string                     `json:"check_id"`
	SubmissionID           string                     `json:"submission_id"`
	Attempt                int                        `json:"attempt"`
	SimilarityScore        float64                    `json:"similarity_score"`
	Severity               string                     `json:"severity"`
	IsPlagiarized          bool                       `json:"is_plagiarized"`
	Sources                []PlagiarismSourceResponse `json:"sources"`
	AIGeneratedProbability *float64                   `json:"ai_generated_probability,omitempty"`
	Provider               string                     `json:"provider,omitempty"`
	FromCache              bool                       `json:"from_cache"`
	CreatedAt              time.Time                  `json:"created_at"`
}

// PlagiarismCheckResponse is either a result or a skip marker carrying the prior result.
type PlagiarismCheckResponse struct {
	*PlagiarismResultResponse
	Skipped  bool                      `json:"skipped,omitempty"`
	Reason   string                    `json:"reason,omitempty"`
	Previous *PlagiarismResultResponse `json:"previous,omitempty"`
}

// NewSkippedCheckResponse builds the already-checked response around the previous result.
func NewSkippedCheckResponse(previous PlagiarismResultResponse) PlagiarismCheckResponse {
	return PlagiarismCheckResponse{
		Skipped:  true,
		Reason:   SkipReasonAlreadyChecked,
		Previous: &previous,
	}
}

// NewPlagiarismResultResponse converts a stored check into its API representation.
func NewPlagiarismResultResponse(model models.PlagiarismCheck) PlagiarismResultResponse {
	return PlagiarismResultResponse{
		CheckID:                model.ID,
		SubmissionID:           model.SubmissionID,
		Attempt:                model.Attempt,
		SimilarityScore:        model.SimilarityScore,
		Severity:               model.Severity,
		IsPlagiarized:          model.IsPlagiarized,
		Sources:                decodeSources(model.Sources),
		AIGeneratedProbability: model.AIGeneratedProbability,
		Provider:               model.Provider,
		FromCache:              model.Cached,
		CreatedAt:              model.CreatedAt,
	}
}

// NewPlagiarismResultResponseSlice converts checks to DTOs.
func NewPlagiarismResultResponseSlice(items []models.PlagiarismCheck) []PlagiarismResultResponse {
	out := make([]PlagiarismResultResponse, 0, len(items))
	for _, item := range items {
		out = append(out, NewPlagiarismResultResponse(item))
	}
	return out
}

// NewPlagiarismSourceResponses maps normalized provider sources to DTOs.
func NewPlagiarismSourceResponses(sources []plagiarism.Source) []PlagiarismSourceResponse {
	out := make([]PlagiarismSourceResponse, 0, len(sources))
	for _, source := range sources {
		out = append(out, PlagiarismSourceResponse{
			URL:        source.URL,
			Title:      source.Title,
			Similarity: source.Similarity,
		})
	}
	return out
}

func decodeSources(raw []byte) []PlagiarismSourceResponse {
	if len(raw) == 0 {
		return []PlagiarismSourceResponse{}
	}
	var sources []plagiarism.Source
	if err := json.Unmarshal(raw, &sources); err != nil {
		return []PlagiarismSourceResponse{}
	}
	return NewPlagiarismSourceResponses(sources)
}

// PlagiarismStatsQuery filters the stats endpoint.
type PlagiarismStatsQuery struct {
	ClassID    string `query:"class_id" validate:"omitempty,max=64"`
	ActivityID string `query:"activity_id" validate:"omitempty,max=64"`
}

// PlagiarismCheckListQuery filters and pages the check listing.
type PlagiarismCheckListQuery struct {
	ClassID    string `query:"class_id" validate:"omitempty,max=64"`
	ActivityID string `query:"activity_id" validate:"omitempty,max=64"`
	Severity   string `query:"severity" validate:"omitempty,max=16"`
	Page       int    `query:"page" validate:"omitempty,min=1"`
	PageSize   int    `query:"page_size" validate:"omitempty,min=1,max=100"`
}

// PlagiarismCheckListResponse is one page of checks, newest first.
type PlagiarismCheckListResponse struct {
	Items    []PlagiarismResultResponse `json:"items"`
	Total    int64                      `json:"total"`
	Page     int                        `json:"page"`
	PageSize int                        `json:"page_size"`
}

// PlagiarismStatsResponse summarises checks for a class or activity.
type PlagiarismStatsResponse struct {
	ClassID      string           `json:"class_id,omitempty"`
	ActivityID   string           `json:"activity_id,omitempty"`
	TotalChecks  int64            `json:"total_checks"`
	CachedChecks int64            `json:"cached_checks"`
	Flagged      int64            `json:"flagged"`
	AverageScore float64          `json:"average_score"`
	MaxScore     float64          `json:"max_score"`
	BySeverity   map[string]int64 `json:"by_severity"`
}
