package gateway

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/cordum/packedge/core/edge/decorate"
	"github.com/cordum/packedge/core/edge/edgeerr"
	"github.com/cordum/packedge/core/edge/router"
	"github.com/cordum/packedge/core/infra/incidents"
	"github.com/cordum/packedge/core/infra/logging"
	"github.com/gorilla/websocket"
)

// authorizeAdmin hides admin routes entirely unless a token is configured
// and presented.
func (s *Server) authorizeAdmin(r *http.Request) error {
	if !s.cfg.AdminEnabled() {
		return edgeerr.NoRouteMatched(r.URL.Path)
	}
	token := adminTokenFromRequest(r)
	if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AdminToken)) != 1 {
		return edgeerr.NoRouteMatched(r.URL.Path)
	}
	return nil
}

func adminTokenFromRequest(r *http.Request) string {
	if auth := strings.TrimSpace(r.Header.Get("Authorization")); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if token := strings.TrimSpace(r.Header.Get("X-Edge-Admin-Token")); token != "" {
		return token
	}
	return adminTokenFromWebSocket(r)
}

// adminTokenFromWebSocket reads the token from the Sec-WebSocket-Protocol
// list, either as "packedge-admin, <token>" or "packedge-admin.<token>".
// Browsers cannot set headers on websocket handshakes.
func adminTokenFromWebSocket(r *http.Request) string {
	protocols := websocket.Subprotocols(r)
	prefix := wsAdminProtocol + "."
	for i, protocol := range protocols {
		if strings.EqualFold(protocol, wsAdminProtocol) && i+1 < len(protocols) {
			return decodeWSToken(protocols[i+1])
		}
		if strings.HasPrefix(strings.ToLower(protocol), prefix) {
			return decodeWSToken(protocol[len(prefix):])
		}
	}
	return ""
}

func decodeWSToken(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if decoded, err := base64.RawURLEncoding.DecodeString(raw); err == nil {
		return string(decoded)
	}
	return raw
}

func (s *Server) handleIncident(ctx context.Context, req *router.Request) (*decorate.Response, error) {
	if err := s.authorizeAdmin(req.HTTP); err != nil {
		return nil, err
	}
	if s.incidents == nil {
		return nil, edgeerr.NotFound("Incident store is disabled").WithCode("INCIDENT_NOT_FOUND")
	}
	errorID := req.Params.Get("errorId")
	incident, err := s.incidents.Get(ctx, errorID)
	if errors.Is(err, incidents.ErrNotFound) {
		return nil, edgeerr.NotFound("Incident not found").WithCode("INCIDENT_NOT_FOUND").With("errorId", errorID)
	}
	if err != nil {
		return nil, edgeerr.Internal(err)
	}
	body, err := json.Marshal(incident)
	if err != nil {
		return nil, edgeerr.Internal(err)
	}
	resp := decorate.NewResponse(http.StatusOK, "application/json", body)
	resp.Header.Set("Cache-Control", "no-store")
	return resp, nil
}

// handleStreamPlain answers non-upgrade requests to the stream route.
func (s *Server) handleStreamPlain(ctx context.Context, req *router.Request) (*decorate.Response, error) {
	if err := s.authorizeAdmin(req.HTTP); err != nil {
		return nil, err
	}
	return nil, edgeerr.InvalidRequest("Websocket upgrade required")
}

func (s *Server) checkStreamOrigin(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	return s.decorator.AllowOrigin(origin) == origin
}

// serveStream upgrades an admin connection and relays edge events until the
// client goes away or falls behind.
func (s *Server) serveStream(w http.ResponseWriter, r *http.Request, tr decorate.Trace) {
	if err := s.authorizeAdmin(r); err != nil {
		s.finish(w, r, tr, routeStream, s.errorResponse(r, tr, routeStream, err))
		return
	}
	if s.events == nil {
		s.finish(w, r, tr, routeStream, s.errorResponse(r, tr, routeStream, edgeerr.NotFound("Event stream is disabled").WithCode("STREAM_DISABLED")))
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn("edge", "ws upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer ws.Close()
	s.record(r, tr, routeStream, http.StatusSwitchingProtocols, "")
	logging.Info("edge", "ws connected", "remote", r.RemoteAddr)

	sub := s.events.Subscribe()
	defer s.events.Unsubscribe(sub)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case evt, ok := <-sub.C:
			if !ok {
				return
			}
			if err := ws.WriteJSON(evt); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
