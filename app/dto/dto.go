// Package dto contains the JSON envelopes of the ops HTTP surface
package dto

import "time"

// APIResponse represents the standard API response structure
type APIResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Error   any    `json:"error,omitempty"`
}

// ErrorDetail represents error details in API responses
type ErrorDetail struct {
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

type HealthData struct {
	Status    string `json:"status"`
	Timestamp int64  `json:"timestamp"`
	Version   string `json:"version"`
}

// SyncStatusResponse mirrors the scheduler status
type SyncStatusResponse struct {
	State             string     `json:"state"`
	LastSuccessAt     *time.Time `json:"last_success_at"`
	NextRunAt         *time.Time `json:"next_run_at"`
	ConfiguredTargets int        `json:"configured_targets"`
}

type RefreshResponse struct {
	Accepted bool `json:"accepted"`
}
