package utils_test

import (
	"errors"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/teachlyze/tamanduai-api/internal/utils"
)

func TestNewValidatorReportsWireNames(t *testing.T) {
	type payload struct {
		SubmissionID string `json:"submission_id,omitempty" validate:"required"`
		ClassID      string `query:"class_id" validate:"required"`
		Plain        string `validate:"required"`
	}

	err := utils.NewValidator().Struct(payload{})
	require.Error(t, err)

	var validationErrors validator.ValidationErrors
	require.True(t, errors.As(err, &validationErrors))

	fields := make([]string, 0, len(validationErrors))
	for _, fieldErr := range validationErrors {
		fields = append(fields, fieldErr.Field())
	}
	require.ElementsMatch(t, []string{"submission_id", "class_id", "Plain"}, fields)
}
