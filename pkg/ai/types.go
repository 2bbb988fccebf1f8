package ai

import (
	"context"
	"errors"

	"github.com/teachlyze/tamanduai-api/pkg/plagiarism"
)

// ErrDetectionFailed wraps every provider-side failure: transport, non-2xx, timeout, or malformed output.
var ErrDetectionFailed = errors.New("plagiarism detection failed")

// DetectionInput carries the submission text sent to the provider.
type DetectionInput struct {
	Text     string
	Language string
}

// Detector describes an external plagiarism / AI-content detection provider.
type Detector interface {
	Detect(ctx context.Context, input DetectionInput) (plagiarism.Result, error)
	Name() string
}
