package api

import (
	"time"

	"github.com/satriahrh/flightvoice/domain/entities"
)

// HealthResponse is returned by the health check
type HealthResponse struct {
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	Connections int       `json:"connections"`
}

// TablesResponse lists the queryable tables
type TablesResponse struct {
	Tables []string `json:"tables"`
}

// QueryRequest represents the request payload for ad-hoc queries
type QueryRequest struct {
	SQL string `json:"sql"`
}

// QueryResponse wraps ad-hoc query rows
type QueryResponse struct {
	Result []entities.Row `json:"result"`
}

// FlightsResponse wraps flight lookups
type FlightsResponse struct {
	Result []entities.Flight `json:"result"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
