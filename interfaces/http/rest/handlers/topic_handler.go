package handlers

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"topicref/pkg/common"
	apperrors "topicref/pkg/errors"
)

// TopicHandler handles topic-related HTTP requests
type TopicHandler struct {
	catalog Catalog
	errs    *apperrors.ErrorHandler
	logger  *zap.Logger
}

func NewTopicHandler(catalog Catalog, errs *apperrors.ErrorHandler, logger *zap.Logger) *TopicHandler {
	return &TopicHandler{catalog: catalog, errs: errs, logger: logger}
}

// TopicRequest names a topic in a request body.
type TopicRequest struct {
	Name string `json:"name" validate:"required,max=200"`
}

// ListTopics handles GET /topics
func (h *TopicHandler) ListTopics(w http.ResponseWriter, r *http.Request) {
	params, err := common.ExtractPaginationParams(r)
	if err != nil {
		h.errs.Handle(w, r, err)
		return
	}
	topics, err := h.catalog.ListTopics(r.Context(), params.Page, params.Size)
	if err != nil {
		h.errs.Handle(w, r, err)
		return
	}
	if topics == nil {
		topics = []string{}
	}
	common.RespondPage(w, topics, params, len(topics))
}

// CreateTopic handles POST /topics
func (h *TopicHandler) CreateTopic(w http.ResponseWriter, r *http.Request) {
	var req TopicRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.errs.Handle(w, r, err)
		return
	}
	name, err := h.catalog.CreateTopic(r.Context(), req.Name)
	if err != nil {
		h.errs.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusCreated, common.NewGeneric(fmt.Sprintf("Successfully created %s", name)))
}

// DeleteTopic handles DELETE /topics
func (h *TopicHandler) DeleteTopic(w http.ResponseWriter, r *http.Request) {
	var req TopicRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.errs.Handle(w, r, err)
		return
	}
	if err := h.catalog.DeleteTopic(r.Context(), req.Name); err != nil {
		h.errs.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, common.NewGeneric(fmt.Sprintf("Successfully deleted %s", req.Name)))
}

// ListSubTopics handles GET /topics/{topic}/subtopics
func (h *TopicHandler) ListSubTopics(w http.ResponseWriter, r *http.Request) {
	names, err := h.catalog.ListSubTopics(r.Context(), chi.URLParam(r, "topic"))
	if err != nil {
		h.errs.Handle(w, r, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	common.RespondJSON(w, http.StatusOK, names)
}

// LinkSubTopic handles POST /topics/{topic}/subtopics
func (h *TopicHandler) LinkSubTopic(w http.ResponseWriter, r *http.Request) {
	var req TopicRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.errs.Handle(w, r, err)
		return
	}
	parent := chi.URLParam(r, "topic")
	if err := h.catalog.LinkSubTopic(r.Context(), parent, req.Name); err != nil {
		h.errs.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusCreated, common.NewGeneric(fmt.Sprintf("Linked %s under %s", req.Name, parent)))
}
