// Package gateway wires the route table, handlers and response decoration
// into the edge HTTP server.
package gateway

import (
	"context"
	"fmt"
	"html/template"
	"net/http"

	"github.com/cordum/packedge/core/edge/decorate"
	"github.com/cordum/packedge/core/edge/events"
	"github.com/cordum/packedge/core/edge/packs"
	"github.com/cordum/packedge/core/edge/router"
	"github.com/cordum/packedge/core/infra/config"
	"github.com/cordum/packedge/core/infra/incidents"
	"github.com/cordum/packedge/core/infra/metrics"
	"github.com/cordum/packedge/core/infra/secrets"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	routeCDN      = "cdn"
	routePack     = "pack"
	routeSearch   = "search"
	routeLanding  = "landing"
	routeHealth   = "health"
	routeIncident = "incident"
	routeStream   = "stream"

	routeUnmatched = "unmatched"
	routePreflight = "preflight"

	// #nosec G101 -- protocol label, not a credential.
	wsAdminProtocol = "packedge-admin"
)

// Searcher proxies search queries to the search API.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]byte, error)
}

// Deps are the collaborators a Server uses. Nil members disable the
// features that need them.
type Deps struct {
	Resolver  *packs.Resolver
	Search    Searcher
	Metrics   metrics.EdgeMetrics
	Incidents incidents.Store
	Events    *events.Hub
}

// Server is the edge dispatcher. It is built once and shared by all requests.
type Server struct {
	cfg       *config.Config
	table     *router.Table
	decorator *decorate.Decorator
	resolver  *packs.Resolver
	search    Searcher
	metrics   metrics.EdgeMetrics
	incidents incidents.Store
	events    *events.Hub
	limiter   *rate.Limiter
	redactor  *secrets.Redactor
	pages     *template.Template
	upgrader  websocket.Upgrader
}

// New builds a Server from an immutable configuration.
func New(cfg *config.Config, deps Deps) (*Server, error) {
	if cfg == nil {
		cfg = config.Load()
	}
	pages, err := parsePages()
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	s := &Server{
		cfg: cfg,
		decorator: decorate.New(decorate.Options{
			AllowedOrigins:      cfg.AllowedOrigins,
			SecurityHeaders:     cfg.SecurityHeaders,
			DefaultCacheControl: cfg.DefaultCacheControl,
		}),
		resolver:  deps.Resolver,
		search:    deps.Search,
		metrics:   deps.Metrics,
		incidents: deps.Incidents,
		events:    deps.Events,
		redactor:  secrets.NewRedactor(cfg.PackStoreAPIKey, cfg.AdminToken),
		pages:     pages,
	}
	if s.metrics == nil {
		s.metrics = metrics.Noop{}
	}
	if cfg.RateLimitRPS > 0 && cfg.RateLimitBurst > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin:  s.checkStreamOrigin,
		Subprotocols: []string{wsAdminProtocol},
	}
	table, err := router.Compile(s.routeSpecs())
	if err != nil {
		return nil, fmt.Errorf("compile routes: %w", err)
	}
	s.table = table
	return s, nil
}

func (s *Server) routeSpecs() []router.Spec {
	return []router.Spec{
		{Name: routeCDN, Pattern: `^/cdn/([^/]+)(?:/(.+))?$`, Params: []string{"packId", "filePath"}, Handler: s.handleCDN},
		{Name: routePack, Pattern: `^/pack/([^/]+)$`, Params: []string{"packId"}, Handler: s.handlePackPage},
		{Name: routeSearch, Pattern: `^/search$`, Handler: s.handleSearch},
		{Name: routeLanding, Pattern: `^/$`, Handler: s.handleLanding},
		{Name: routeHealth, Pattern: `^/health$`, Handler: s.handleHealth},
		{Name: routeIncident, Pattern: `^/_edge/incidents/([^/]+)$`, Params: []string{"errorId"}, Methods: []string{http.MethodGet}, Handler: s.handleIncident},
		{Name: routeStream, Pattern: `^/_edge/stream$`, Methods: []string{http.MethodGet}, Handler: s.handleStreamPlain},
	}
}

// Routes lists the compiled route table in evaluation order.
func (s *Server) Routes() []*router.Route {
	return s.table.Routes()
}
