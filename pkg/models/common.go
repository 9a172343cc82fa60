package models

import "time"

// ErrorResponse is the error body of every endpoint except the
// recommendation query.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ModelStatus describes one loaded recommender.
type ModelStatus struct {
	Loaded   bool      `json:"loaded"`
	LoadedAt time.Time `json:"loaded_at,omitempty"`
	Users    int       `json:"users,omitempty"`
	Groups   int       `json:"groups,omitempty"`
	Products int       `json:"products,omitempty"`
}

// ReloadResponse reports the outcome of a model reload.
type ReloadResponse struct {
	Status string                 `json:"status"`
	Models map[string]ModelStatus `json:"models"`
}
