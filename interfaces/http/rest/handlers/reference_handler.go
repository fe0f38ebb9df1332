package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"topicref/domain/core/entities"
	"topicref/pkg/common"
	apperrors "topicref/pkg/errors"
)

// ReferenceHandler handles reference-related HTTP requests
type ReferenceHandler struct {
	catalog Catalog
	errs    *apperrors.ErrorHandler
	logger  *zap.Logger
}

func NewReferenceHandler(catalog Catalog, errs *apperrors.ErrorHandler, logger *zap.Logger) *ReferenceHandler {
	return &ReferenceHandler{catalog: catalog, errs: errs, logger: logger}
}

// CreatedReference is the body returned after attaching a reference.
type CreatedReference struct {
	common.Generic
	Reference entities.StoredReference `json:"reference"`
}

// ListReferences handles GET /refs/{topic}. Book references are left out.
func (h *ReferenceHandler) ListReferences(w http.ResponseWriter, r *http.Request) {
	refs, err := h.catalog.ListReferences(r.Context(), chi.URLParam(r, "topic"))
	if err != nil {
		h.errs.Handle(w, r, err)
		return
	}
	if refs == nil {
		refs = []entities.StoredReference{}
	}
	common.RespondJSON(w, http.StatusOK, refs)
}

// ListVerseReferences handles GET /refs/{topic}/qref
func (h *ReferenceHandler) ListVerseReferences(w http.ResponseWriter, r *http.Request) {
	params, err := common.ExtractPaginationParams(r)
	if err != nil {
		h.errs.Handle(w, r, err)
		return
	}
	refs, err := h.catalog.ListVerseReferences(r.Context(), chi.URLParam(r, "topic"), params.Page, params.Size)
	if err != nil {
		h.errs.Handle(w, r, err)
		return
	}
	if refs == nil {
		refs = []entities.StoredReference{}
	}
	common.RespondPage(w, refs, params, len(refs))
}

// FindTopicsByVerse handles GET /refs/qref?chapter=&init_verse=&final_verse=
func (h *ReferenceHandler) FindTopicsByVerse(w http.ResponseWriter, r *http.Request) {
	v, err := verseRangeFromQuery(r)
	if err != nil {
		h.errs.Handle(w, r, err)
		return
	}
	params, err := common.ExtractPaginationParams(r)
	if err != nil {
		h.errs.Handle(w, r, err)
		return
	}
	topics, err := h.catalog.FindTopicsByVerse(r.Context(), v, params.Page, params.Size)
	if err != nil {
		h.errs.Handle(w, r, err)
		return
	}
	if topics == nil {
		topics = []string{}
	}
	common.RespondPage(w, topics, params, len(topics))
}

// AddVerseReference handles POST /refs/{topic}/qref
func (h *ReferenceHandler) AddVerseReference(w http.ResponseWriter, r *http.Request) {
	var v entities.VerseRange
	h.attach(w, r, &v, func() entities.Reference { return v }, "Created verse reference successfully")
}

// AddCitation handles POST /refs/{topic}/href
func (h *ReferenceHandler) AddCitation(w http.ResponseWriter, r *http.Request) {
	var c entities.Citation
	h.attach(w, r, &c, func() entities.Reference { return c }, "Created citation successfully")
}

// AddBookReference handles POST /refs/{topic}/bref
func (h *ReferenceHandler) AddBookReference(w http.ResponseWriter, r *http.Request) {
	var b entities.BookReference
	h.attach(w, r, &b, func() entities.Reference { return b }, "Created book reference successfully")
}

func (h *ReferenceHandler) attach(w http.ResponseWriter, r *http.Request, dst interface{}, ref func() entities.Reference, message string) {
	if err := decodeJSON(w, r, dst); err != nil {
		h.errs.Handle(w, r, err)
		return
	}
	stored, err := h.catalog.AttachReference(r.Context(), chi.URLParam(r, "topic"), ref())
	if err != nil {
		h.errs.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusCreated, CreatedReference{
		Generic:   common.NewGeneric(message),
		Reference: stored,
	})
}

func verseRangeFromQuery(r *http.Request) (entities.VerseRange, error) {
	q := r.URL.Query()
	var v entities.VerseRange
	fields := []struct {
		key string
		dst *int
	}{
		{"chapter", &v.Chapter},
		{"init_verse", &v.InitVerse},
		{"final_verse", &v.FinalVerse},
	}
	for _, f := range fields {
		raw := q.Get(f.key)
		if raw == "" {
			return v, apperrors.NewValidationError("query parameter " + f.key + " is required")
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return v, apperrors.NewValidationError("query parameter " + f.key + " must be an integer")
		}
		*f.dst = n
	}
	return v, nil
}
