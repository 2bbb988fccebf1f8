package plagiarism

import (
	"errors"
	"fmt"
	"strings"
)

// Severity is the ordered classification of a similarity score.
type Severity string

const (
	SeverityNone   Severity = "none"
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// ErrInvalidThresholds indicates a threshold set that is not strictly increasing within [0,1].
var ErrInvalidThresholds = errors.New("invalid severity thresholds")

// DefaultThresholds apply when an owner has not configured their own.
var DefaultThresholds = Thresholds{Low: 0.2, Medium: 0.4, High: 0.7}

// Thresholds holds the minimum score for each severity bucket.
type Thresholds struct {
	Low    float64 `json:"low"`
	Medium float64 `json:"medium"`
	High   float64 `json:"high"`
}

// Validate requires 0 <= low < medium < high <= 1.
func (t Thresholds) Validate() error {
	if t.Low < 0 || t.High > 1 {
		return fmt.Errorf("%w: values must be within [0,1]", ErrInvalidThresholds)
	}
	if !(t.Low < t.Medium && t.Medium < t.High) {
		return fmt.Errorf("%w: expected low < medium < high, got %.2f/%.2f/%.2f", ErrInvalidThresholds, t.Low, t.Medium, t.High)
	}
	return nil
}

// Rank orders severities so that none < low < medium < high. Unknown values rank as none.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	default:
		return 0
	}
}

// Valid reports whether s is one of the known severities.
func (s Severity) Valid() bool {
	switch s {
	case SeverityNone, SeverityLow, SeverityMedium, SeverityHigh:
		return true
	}
	return false
}

// AtLeast reports whether s ranks at or above other.
func (s Severity) AtLeast(other Severity) bool {
	return s.Rank() >= other.Rank()
}

// ParseSeverity converts free-form input into a Severity.
func ParseSeverity(value string) (Severity, error) {
	severity := Severity(strings.ToLower(strings.TrimSpace(value)))
	if !severity.Valid() {
		return SeverityNone, fmt.Errorf("unknown severity %q", value)
	}
	return severity, nil
}

// Classify returns the highest bucket whose threshold the score meets.
func Classify(score float64, thresholds Thresholds) Severity {
	switch {
	case score >= thresholds.High:
		return SeverityHigh
	case score >= thresholds.Medium:
		return SeverityMedium
	case score >= thresholds.Low:
		return SeverityLow
	default:
		return SeverityNone
	}
}

// IsPlagiarized flags a submission once its severity reaches medium.
func IsPlagiarized(severity Severity) bool {
	return severity.AtLeast(SeverityMedium)
}
