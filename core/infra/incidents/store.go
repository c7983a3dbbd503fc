package incidents

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no incident exists for an error id.
var ErrNotFound = errors.New("incident not found")

// Incident is the server-side record of an internal failure. Message holds
// the raw cause and must never be echoed to clients of the public surface.
type Incident struct {
	ErrorID     string    `json:"error_id"`
	SupportCode string    `json:"support_code"`
	RequestID   string    `json:"request_id"`
	Code        string    `json:"code"`
	Method      string    `json:"method"`
	Path        string    `json:"path"`
	Route       string    `json:"route,omitempty"`
	ClientIP    string    `json:"client_ip,omitempty"`
	Message     string    `json:"message"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Store persists incidents for later lookup by support staff.
type Store interface {
	Put(ctx context.Context, incident Incident) error
	Get(ctx context.Context, errorID string) (*Incident, error)
}
