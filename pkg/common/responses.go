package common

import (
	"encoding/json"
	"net/http"

	"topicref/pkg/utils"
)

// Version is reported in every envelope. Set at build time with
// -ldflags "-X topicref/pkg/common.Version=...".
var Version = "0.1.0-dev"

// APIResponse is the envelope of every successful response.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Meta    *MetaInfo   `json:"meta,omitempty"`
}

type MetaInfo struct {
	Version    string          `json:"version,omitempty"`
	Pagination *PaginationInfo `json:"pagination,omitempty"`
}

type PaginationInfo struct {
	Page  int `json:"page"`
	Size  int `json:"size"`
	Count int `json:"count"`
}

// Generic acknowledges a write.
type Generic struct {
	Message string `json:"message"`
	Version string `json:"version"`
}

func NewGeneric(message string) Generic {
	return Generic{Message: message, Version: Version}
}

// ComponentStatus is the health of one dependency.
type ComponentStatus struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Health is the body of the health endpoint.
type Health struct {
	Status     string            `json:"status"`
	Components []ComponentStatus `json:"components"`
	Version    string            `json:"version"`
	Timestamp  string            `json:"timestamp"`
}

const (
	StatusUp   = "up"
	StatusDown = "down"
)

// NewHealth is up only if every component is.
func NewHealth(components ...ComponentStatus) Health {
	status := StatusUp
	for _, c := range components {
		if c.Status != StatusUp {
			status = StatusDown
		}
	}
	return Health{
		Status:     status,
		Components: components,
		Version:    Version,
		Timestamp:  utils.NowRFC3339(),
	}
}

// RespondJSON writes data inside an APIResponse envelope.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, status, APIResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
		Meta:    &MetaInfo{Version: Version},
	})
}

// RespondPage writes one page of a listing.
func RespondPage(w http.ResponseWriter, data interface{}, params PaginationParams, count int) {
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
		Meta: &MetaInfo{
			Version:    Version,
			Pagination: &PaginationInfo{Page: params.Page, Size: params.Size, Count: count},
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
