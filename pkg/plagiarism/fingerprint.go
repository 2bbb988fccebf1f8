package plagiarism

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"unicode/utf8"
)

// CacheKeyPrefix namespaces fingerprint keys inside the shared cache.
const CacheKeyPrefix = "plagiarism:"

var (
	// ErrInvalidEncoding indicates the submitted text is not valid UTF-8.
	ErrInvalidEncoding = errors.New("submission text is not valid utf-8")
	// ErrEmptyText indicates the submitted text has no content after normalization.
	ErrEmptyText = errors.New("submission text is empty")
)

// NormalizeText trims the text and collapses every whitespace run into a single space.
func NormalizeText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// Fingerprint returns the SHA-256 hex digest of the normalized submission text.
func Fingerprint(text string) (string, error) {
	if !utf8.ValidString(text) {
		return "", ErrInvalidEncoding
	}

	normalized := NormalizeText(text)
	if normalized == "" {
		return "", ErrEmptyText
	}

	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:]), nil
}

// CacheKey builds the cache key for a fingerprint.
func CacheKey(fingerprint string) string {
	return CacheKeyPrefix + fingerprint
}
