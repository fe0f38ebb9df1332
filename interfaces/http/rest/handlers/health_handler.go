package handlers

import (
	"net/http"

	"topicref/pkg/common"
)

// HealthHandler serves the root and health endpoints.
type HealthHandler struct {
	catalog Catalog
}

func NewHealthHandler(catalog Catalog) *HealthHandler {
	return &HealthHandler{catalog: catalog}
}

// Root handles GET /
func (h *HealthHandler) Root(w http.ResponseWriter, _ *http.Request) {
	common.RespondJSON(w, http.StatusOK, common.NewGeneric("Nothing to see here!"))
}

// Health handles GET /healthz. A failing store turns the response into a 503.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	db := common.ComponentStatus{Name: "database", Status: common.StatusUp}
	if err := h.catalog.Health(r.Context()); err != nil {
		db.Status = common.StatusDown
		db.Error = err.Error()
	}
	health := common.NewHealth(db)
	status := http.StatusOK
	if health.Status != common.StatusUp {
		status = http.StatusServiceUnavailable
	}
	common.RespondJSON(w, status, health)
}
