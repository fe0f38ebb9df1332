package common

import (
	"net/http"
	"strconv"

	apperrors "topicref/pkg/errors"
)

const (
	DefaultPage     = 1
	DefaultPageSize = 50
)

// InvalidPaginationMessage is the validation message for a bad page or size.
const InvalidPaginationMessage = "Invalid query parameters. Must be positive integers."

// PaginationParams is a 1-based page request.
type PaginationParams struct {
	Page int `json:"page"`
	Size int `json:"size"`
}

// ExtractPaginationParams reads the page and size query parameters. Absent
// values take the defaults; present values must be positive integers.
func ExtractPaginationParams(r *http.Request) (PaginationParams, error) {
	params := PaginationParams{Page: DefaultPage, Size: DefaultPageSize}
	q := r.URL.Query()

	for key, dst := range map[string]*int{"page": &params.Page, "size": &params.Size} {
		raw := q.Get(key)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return PaginationParams{}, apperrors.NewValidationError(InvalidPaginationMessage).WithDetail("parameter", key)
		}
		*dst = n
	}
	return params, nil
}
