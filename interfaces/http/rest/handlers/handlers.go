// Package handlers adapts HTTP requests onto the catalog and identity use cases.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"topicref/application/identity"
	"topicref/domain/core/entities"
	apperrors "topicref/pkg/errors"
	"topicref/pkg/utils"
)

// maxBodyBytes caps request bodies; every payload here is a few fields.
const maxBodyBytes = 64 << 10

// Catalog is what the topic and reference handlers need.
type Catalog interface {
	Health(ctx context.Context) error
	ListTopics(ctx context.Context, page, size int) ([]string, error)
	CreateTopic(ctx context.Context, name string) (string, error)
	DeleteTopic(ctx context.Context, name string) error
	LinkSubTopic(ctx context.Context, parent, child string) error
	ListSubTopics(ctx context.Context, parent string) ([]string, error)
	AttachReference(ctx context.Context, topic string, ref entities.Reference) (entities.StoredReference, error)
	ListReferences(ctx context.Context, topic string) ([]entities.StoredReference, error)
	ListVerseReferences(ctx context.Context, topic string, page, size int) ([]entities.StoredReference, error)
	FindTopicsByVerse(ctx context.Context, v entities.VerseRange, page, size int) ([]string, error)
}

// Authenticator is what the auth handlers and session middleware need.
type Authenticator interface {
	Login(ctx context.Context, referrer string) (authURL, state string, err error)
	Complete(ctx context.Context, credential, state string) error
	IsLoggedIn(ctx context.Context, key string) (bool, error)
	GetUser(ctx context.Context, key string) (*entities.User, error)
	Logout(ctx context.Context, key string) error
	Flow() identity.Flow
}

// decodeJSON reads a single JSON object into dst and validates it.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperrors.NewValidationError("request body is required")
		}
		return apperrors.NewValidationError("invalid request body").WithDetail("reason", err.Error())
	}
	return utils.ValidateStruct(dst)
}
