package gateway

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cordum/packedge/core/edge/decorate"
	"github.com/cordum/packedge/core/edge/edgeerr"
	"github.com/cordum/packedge/core/edge/events"
	"github.com/cordum/packedge/core/infra/incidents"
	"github.com/cordum/packedge/core/infra/logging"
	"github.com/google/uuid"
)

const incidentWriteTimeout = 2 * time.Second

// reportIncident logs the raw failure, stores it and emits an error event.
// It returns the ids handed to the client.
func (s *Server) reportIncident(r *http.Request, tr decorate.Trace, routeName string, e *edgeerr.Error) (string, string) {
	errorID := uuid.NewString()
	code := supportCode(errorID)
	message := s.redactor.String(e.Error())
	logging.Error("edge", "request failed",
		"error_id", errorID,
		"support_code", code,
		"request_id", tr.RequestID,
		"kind", e.Kind,
		"method", r.Method,
		"path", r.URL.Path,
		"route", routeName,
		"error", message,
	)

	incident := incidents.Incident{
		ErrorID:     errorID,
		SupportCode: code,
		RequestID:   tr.RequestID,
		Code:        e.Kind.Code(),
		Method:      r.Method,
		Path:        r.URL.Path,
		Route:       routeName,
		ClientIP:    clientIP(r),
		Message:     message,
		OccurredAt:  time.Now().UTC(),
	}
	if s.incidents != nil {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), incidentWriteTimeout)
		if err := s.incidents.Put(ctx, incident); err != nil {
			logging.Warn("edge", "incident store failed", "error_id", errorID, "error", err)
		}
		cancel()
	}
	s.events.Emit(events.Event{
		Type:      events.TypeError,
		RequestID: tr.RequestID,
		Method:    r.Method,
		Path:      r.URL.Path,
		Route:     routeName,
		Status:    http.StatusInternalServerError,
		Code:      e.Kind.Code(),
		ErrorID:   errorID,
		Time:      incident.OccurredAt,
	})
	return errorID, code
}

// supportCode derives the short code users quote to support from an error id.
func supportCode(errorID string) string {
	compact := strings.ToUpper(strings.ReplaceAll(errorID, "-", ""))
	if len(compact) > 8 {
		compact = compact[:8]
	}
	return "ERR-" + compact
}

// clientIP prefers the CDN-provided address, then the first forwarded hop.
func clientIP(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("CF-Connecting-IP")); ip != "" {
		return ip
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
