// Package validators enforces the catalog's input rules before anything
// reaches the store.
package validators

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"topicref/domain/core/entities"
	"topicref/pkg/common"
	apperrors "topicref/pkg/errors"
	"topicref/pkg/utils"
)

const (
	MaxTopicNameLength = 200
	MaxPageSize        = 500
)

// ErrInvalidPagination is the message returned for non-positive page or size.
const ErrInvalidPagination = common.InvalidPaginationMessage

// ValidateVerseRange checks chapter bounds and that the range is not inverted.
func ValidateVerseRange(v entities.VerseRange) error {
	return utils.ValidateStruct(v)
}

// ValidateReference validates any reference variant.
func ValidateReference(ref entities.Reference) error {
	if ref == nil {
		return apperrors.NewValidationError("reference is required")
	}
	return utils.ValidateStruct(ref)
}

// NormalizeTopicName trims name and checks it is usable as a topic identity.
func NormalizeTopicName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", apperrors.NewValidationError("topic name is required")
	}
	if utf8.RuneCountInString(trimmed) > MaxTopicNameLength {
		return "", apperrors.NewValidationError(
			fmt.Sprintf("topic name must be at most %d characters", MaxTopicNameLength))
	}
	return trimmed, nil
}

// PageOffset validates a 1-based page and a page size and returns the number
// of rows to skip.
func PageOffset(page, size int) (int, error) {
	if page < 1 || size < 1 {
		return 0, apperrors.NewValidationError(ErrInvalidPagination)
	}
	if size > MaxPageSize {
		return 0, apperrors.NewValidationError(fmt.Sprintf("size must be at most %d", MaxPageSize))
	}
	if page-1 > math.MaxInt/size {
		return 0, apperrors.NewValidationError("page is out of range")
	}
	return (page - 1) * size, nil
}
