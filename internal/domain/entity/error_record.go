package entity

import (
	"time"

	"github.com/google/uuid"
)

// ErrorRecord is an append-only log entry describing a failed scrape or write.
type ErrorRecord struct {
	ServiceName string     `json:"service_name"`
	TableName   string     `json:"table_name"`
	ReferenceID *uuid.UUID `json:"reference_id"`
	Message     string     `json:"message"`
	StackTrace  string     `json:"stack_trace"`
	CreatedAt   time.Time  `json:"created_at"`
}
