package repository

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// ErrDuplicateCheck is returned when a plagiarism check for the same (submission, attempt) already exists.
var ErrDuplicateCheck = errors.New("plagiarism check already recorded")

// isUniqueViolation reports whether err is a unique constraint failure. Dialects with
// TranslateError enabled return gorm.ErrDuplicatedKey; the message match covers those without it.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "unique constraint") || strings.Contains(message, "duplicate key")
}
