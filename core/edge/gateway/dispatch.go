package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cordum/packedge/core/edge/decorate"
	"github.com/cordum/packedge/core/edge/edgeerr"
	"github.com/cordum/packedge/core/edge/events"
	"github.com/cordum/packedge/core/edge/router"
	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/gzhttp"
)

var notFoundSuggestions = []string{
	"/cdn/{packId}/{filePath}",
	"/pack/{packId}",
	"/search?q={query}",
	"/",
}

// Handler returns the public HTTP handler, compressed when enabled.
// Websocket upgrades bypass compression.
func (s *Server) Handler() http.Handler {
	if !s.cfg.Gzip {
		return s
	}
	gz := gzhttp.GzipHandler(s)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if websocket.IsWebSocketUpgrade(r) {
			s.ServeHTTP(w, r)
			return
		}
		gz.ServeHTTP(w, r)
	})
}

// ServeHTTP runs one request through preflight, matching, the handler and
// decoration. It is the only place that writes to w.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	tr := s.decorator.Begin()
	routeName := routeUnmatched
	committed := false
	reply := func(resp *decorate.Response) {
		committed = true
		s.finish(w, r, tr, routeName, resp)
	}

	defer func() {
		rec := recover()
		if rec == nil {
			return
		}
		err := edgeerr.Internal(fmt.Errorf("panic: %v", rec))
		if committed {
			// Headers are out or the connection is hijacked.
			s.reportIncident(r, tr, routeName, err)
			return
		}
		reply(s.errorResponse(r, tr, routeName, err))
	}()

	if r.Method == http.MethodOptions {
		resp := s.decorator.Preflight(r, tr)
		routeName = routePreflight
		reply(resp)
		return
	}

	match, err := s.table.Match(r.URL.EscapedPath())
	if err != nil {
		reply(s.errorResponse(r, tr, routeName, err))
		return
	}
	routeName = match.Route.Name

	if routeName != routeHealth && s.limiter != nil && !s.limiter.Allow() {
		reply(s.errorResponse(r, tr, routeName, edgeerr.RateLimited()))
		return
	}
	if !match.Route.Allows(r.Method) {
		err := edgeerr.MethodNotAllowed(r.Method, match.Route.Methods)
		reply(s.errorResponse(r, tr, routeName, err))
		return
	}
	if routeName == routeStream && websocket.IsWebSocketUpgrade(r) {
		committed = true
		s.serveStream(w, r, tr)
		return
	}

	resp, err := match.Route.Handler(r.Context(), &router.Request{HTTP: r, Route: routeName, Params: match.Params})
	if err == nil && resp == nil {
		err = edgeerr.Internal(errors.New("handler returned no response"))
	}
	if err != nil {
		resp = s.errorResponse(r, tr, routeName, err)
	}
	reply(resp)
}

func (s *Server) finish(w http.ResponseWriter, r *http.Request, tr decorate.Trace, routeName string, resp *decorate.Response) {
	if routeName != routePreflight {
		resp = s.decorator.Apply(r, resp, tr)
	}
	header := w.Header()
	for k, vals := range resp.Header {
		header[k] = vals
	}
	if resp.Status != http.StatusNoContent && header.Get("Content-Length") == "" {
		header.Set("Content-Length", strconv.Itoa(len(resp.Body)))
	}
	w.WriteHeader(resp.Status)
	if r.Method != http.MethodHead && resp.Status != http.StatusNoContent && len(resp.Body) > 0 {
		_, _ = w.Write(resp.Body)
	}
	s.record(r, tr, routeName, resp.Status, "")
}

func (s *Server) record(r *http.Request, tr decorate.Trace, routeName string, status int, code string) {
	elapsed := time.Since(tr.Start)
	s.metrics.ObserveRequest(r.Method, routeName, strconv.Itoa(status), elapsed.Seconds())
	s.events.Emit(events.Event{
		Type:       events.TypeRequest,
		RequestID:  tr.RequestID,
		Method:     r.Method,
		Path:       r.URL.Path,
		Route:      routeName,
		Status:     status,
		Code:       code,
		DurationMs: elapsed.Milliseconds(),
	})
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code        string         `json:"code"`
	Message     string         `json:"message"`
	Path        string         `json:"path"`
	Method      string         `json:"method,omitempty"`
	Timestamp   string         `json:"timestamp"`
	ClientIP    string         `json:"clientIp,omitempty"`
	Suggestions []string       `json:"suggestions,omitempty"`
	ErrorID     string         `json:"errorId,omitempty"`
	SupportCode string         `json:"supportCode,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
}

// errorResponse converts any failure into the structured client body.
// Unexposed kinds are logged and stored server-side only.
func (s *Server) errorResponse(r *http.Request, tr decorate.Trace, routeName string, err error) *decorate.Response {
	e := edgeerr.From(err)
	status := e.Kind.Status()
	detail := errorDetail{
		Code:      e.ClientCode(),
		Message:   e.Message,
		Path:      r.URL.Path,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	switch {
	case !e.Kind.Exposed():
		status = http.StatusInternalServerError
		detail.Code = edgeerr.KindInternal.Code()
		detail.Message = "An unexpected error occurred"
		detail.ErrorID, detail.SupportCode = s.reportIncident(r, tr, routeName, e)
	case e.Kind == edgeerr.KindNoRouteMatched:
		detail.Method = r.Method
		detail.ClientIP = clientIP(r)
		detail.Suggestions = notFoundSuggestions
	default:
		detail.Details = e.Context
	}

	var resp *decorate.Response
	if routeName == routePack {
		resp = s.renderErrorPage(status, detail)
	} else {
		body, mErr := json.Marshal(errorBody{Error: detail})
		if mErr != nil {
			body = []byte(`{"error":{"code":"INTERNAL_ERROR","message":"An unexpected error occurred"}}`)
		}
		resp = decorate.NewResponse(status, "application/json", body)
	}
	switch e.Kind {
	case edgeerr.KindMethodNotAllowed:
		if allowed, ok := e.Context["allowed"].([]string); ok {
			methods := append(append([]string(nil), allowed...), http.MethodOptions)
			resp.Header.Set("Allow", strings.Join(methods, ", "))
		}
	case edgeerr.KindRateLimited:
		resp.Header.Set("Retry-After", "1")
	}
	resp.Header.Set("Cache-Control", "no-store")
	return resp
}
