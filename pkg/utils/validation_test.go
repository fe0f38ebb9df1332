package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "topicref/pkg/errors"
)

type sample struct {
	Name  string `json:"name" validate:"required,max=5"`
	Low   int    `json:"low" validate:"min=0"`
	High  int    `json:"high" validate:"gtefield=Low"`
	Count int    `json:"count" validate:"min=1"`
}

func TestValidateStruct(t *testing.T) {
	require.NoError(t, ValidateStruct(sample{Name: "ok", Low: 1, High: 1, Count: 1}))

	err := ValidateStruct(sample{Name: "", Low: 3, High: 2, Count: 0})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
	msg := apperrors.GetAppError(err).Message
	assert.Contains(t, msg, "name is required")
	assert.Contains(t, msg, "high must not be less than low")
	assert.Contains(t, msg, "count must be at least 1")

	err = ValidateStruct(sample{Name: "toolong", Count: 1})
	assert.Contains(t, apperrors.GetAppError(err).Message, "name must be at most 5 characters")
}

func TestMillisRoundTrip(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 30, 0, 5_000_000, time.UTC)
	assert.Equal(t, now, FromMillis(ToMillis(now)))
	assert.Equal(t, int64(0), ToMillis(time.Time{}))
	assert.True(t, FromMillis(0).IsZero())
}
