package api

import (
	"github.com/mattjoyce/clibridge/internal/history"
	"github.com/mattjoyce/clibridge/internal/invoke"
)

// InvokeRequest is the JSON body for POST /invoke/{name} and /call/{name}.
type InvokeRequest struct {
	// Params are keyed by parameter name; see invoke.Input.
	Params map[string]any `json:"params,omitempty"`
	// Args fill positional arguments in ordinal order.
	Args []string `json:"args,omitempty"`
	// Timeout overrides the configured timeout, e.g. "10s".
	Timeout string `json:"timeout,omitempty"`
}

// OperationSummary describes one callable operation.
type OperationSummary struct {
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	Parameters  []invoke.Parameter `json:"parameters"`
}

// OperationListResponse is returned by GET /operations.
type OperationListResponse struct {
	Operations []OperationSummary `json:"operations"`
}

// InvocationListResponse is returned by GET /invocations.
type InvocationListResponse struct {
	Invocations []*history.Entry `json:"invocations"`
}

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string `json:"status"`
	Program       string `json:"program,omitempty"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Operations    int    `json:"operations"`
}
