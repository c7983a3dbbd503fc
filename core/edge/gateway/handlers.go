package gateway

import (
	"bytes"
	"context"
	"embed"
	"html/template"
	"net/http"
	"strconv"
	"strings"

	"github.com/cordum/packedge/core/edge/decorate"
	"github.com/cordum/packedge/core/edge/edgeerr"
	"github.com/cordum/packedge/core/edge/packs"
	"github.com/cordum/packedge/core/edge/router"
	"github.com/cordum/packedge/core/infra/buildinfo"
)

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 100
	htmlContentType    = "text/html; charset=utf-8"
)

//go:embed templates/*.html
var templateFS embed.FS

func parsePages() (*template.Template, error) {
	return template.New("pages").Funcs(template.FuncMap{
		"contentType": packs.ContentType,
	}).ParseFS(templateFS, "templates/*.html")
}

func (s *Server) render(status int, name string, data any) (*decorate.Response, error) {
	var buf bytes.Buffer
	if err := s.pages.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, edgeerr.Internal(err)
	}
	return decorate.NewResponse(status, htmlContentType, buf.Bytes()), nil
}

func (s *Server) handleCDN(ctx context.Context, req *router.Request) (*decorate.Response, error) {
	if s.resolver == nil {
		return nil, edgeerr.Upstream("pack resolver not configured", nil)
	}
	filePath := req.Params.Get("filePath")
	if filePath == "" {
		filePath = packs.DefaultEntry
	}
	file, err := s.resolver.Resolve(ctx, req.Params.Get("packId"), filePath)
	if err != nil {
		return nil, err
	}
	resp := decorate.NewResponse(http.StatusOK, file.ContentType, []byte(file.Content))
	resp.Header.Set("X-Pack-Id", file.PackID)
	resp.Header.Set("X-Resolved-Path", file.Path)
	return resp, nil
}

type packPage struct {
	Pack    *packs.Pack
	PackID  string
	Entry   string
	Version string
}

func (s *Server) handlePackPage(ctx context.Context, req *router.Request) (*decorate.Response, error) {
	if s.resolver == nil {
		return nil, edgeerr.Upstream("pack resolver not configured", nil)
	}
	packID := req.Params.Get("packId")
	pack, err := s.resolver.Lookup(ctx, packID)
	if err != nil {
		return nil, err
	}
	entry, _, _ := packs.SelectFile(pack.Files, packs.DefaultEntry)
	return s.render(http.StatusOK, "pack.html", packPage{
		Pack:    pack,
		PackID:  packID,
		Entry:   entry,
		Version: buildinfo.Version,
	})
}

// renderErrorPage is the HTML form of errorDetail used by the pack page.
func (s *Server) renderErrorPage(status int, detail errorDetail) *decorate.Response {
	resp, err := s.render(status, "error.html", struct {
		Status int
		Error  errorDetail
	}{Status: status, Error: detail})
	if err != nil {
		return decorate.NewResponse(status, "text/plain; charset=utf-8", []byte(detail.Code+": "+detail.Message))
	}
	return resp
}

func (s *Server) handleSearch(ctx context.Context, req *router.Request) (*decorate.Response, error) {
	query := strings.TrimSpace(req.HTTP.URL.Query().Get("q"))
	if query == "" {
		return nil, edgeerr.InvalidRequest("Query parameter q is required")
	}
	limit := defaultSearchLimit
	if raw := strings.TrimSpace(req.HTTP.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxSearchLimit {
			return nil, edgeerr.InvalidRequest("limit must be between 1 and " + strconv.Itoa(maxSearchLimit))
		}
		limit = n
	}
	if s.search == nil {
		return nil, edgeerr.Upstream("search not configured", nil)
	}
	body, err := s.search.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	resp := decorate.NewResponse(http.StatusOK, "application/json", body)
	resp.Header.Set("Cache-Control", "public, max-age=60")
	return resp, nil
}

func (s *Server) handleLanding(ctx context.Context, req *router.Request) (*decorate.Response, error) {
	return s.render(http.StatusOK, "landing.html", struct{ Version string }{Version: buildinfo.Version})
}

func (s *Server) handleHealth(ctx context.Context, req *router.Request) (*decorate.Response, error) {
	resp := decorate.NewResponse(http.StatusOK, "text/plain; charset=utf-8", []byte("ok"))
	resp.Header.Set("Cache-Control", "no-store")
	return resp, nil
}
