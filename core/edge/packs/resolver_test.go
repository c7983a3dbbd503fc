package packs

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cordum/packedge/core/edge/edgeerr"
)

type recordingMetrics struct {
	mu       sync.Mutex
	resolves []string
	upstream []string
}

func (m *recordingMetrics) ObserveRequest(string, string, string, float64) {}
func (m *recordingMetrics) IncResolve(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resolves = append(m.resolves, outcome)
}
func (m *recordingMetrics) ObserveUpstream(target, outcome string, _ float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upstream = append(m.upstream, target+":"+outcome)
}

func newStoreServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "", time.Second)
}

func packJSON(files string) string {
	return `{"success":true,"pack":{"id":"demo","name":"Demo","isPublic":true,"files":` + files + `}}`
}

func serveJSON(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}
}

func TestResolveExact(t *testing.T) {
	client := newStoreServer(t, serveJSON(packJSON(`{"index.js":"I","lib/util.py":"print(1)","data.unknownext":"?"}`)))
	r := NewResolver(client, nil)

	cases := map[string]string{
		"index.js":        "application/javascript",
		"lib/util.py":     "text/x-python",
		"data.unknownext": "text/plain",
	}
	for p, ct := range cases {
		file, err := r.Resolve(context.Background(), "demo", p)
		if err != nil {
			t.Fatalf("%s: %v", p, err)
		}
		if file.Path != p || file.ContentType != ct {
			t.Fatalf("%s: unexpected file %+v", p, file)
		}
	}
}

func TestResolveFallbackOrder(t *testing.T) {
	client := newStoreServer(t, serveJSON(packJSON(`{"app.js":"B","main.js":"A"}`)))
	file, err := NewResolver(client, nil).Resolve(context.Background(), "demo", "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if file.Content != "A" || file.Path != "main.js" {
		t.Fatalf("expected main.js to win, got %+v", file)
	}
}

func TestSelectFileChain(t *testing.T) {
	cases := []struct {
		files *FileSet
		want  string
	}{
		{ptr(NewFileSet("app.js", "B", "index.mjs", "M")), "index.mjs"},
		{ptr(NewFileSet("readme.md", "R", "app.js", "B")), "app.js"},
		{ptr(NewFileSet("zeta.css", "Z", "alpha.css", "A")), "zeta.css"},
	}
	for _, tc := range cases {
		got, _, ok := SelectFile(*tc.files, DefaultEntry)
		if !ok || got != tc.want {
			t.Fatalf("expected %s, got %s (%v)", tc.want, got, ok)
		}
	}
	if _, _, ok := SelectFile(NewFileSet("main.js", "A"), "other.js"); ok {
		t.Fatalf("fallback must only apply to the default entry")
	}
}

func ptr(fs FileSet) *FileSet { return &fs }

func TestResolveFileNotFound(t *testing.T) {
	client := newStoreServer(t, serveJSON(packJSON(`{}`)))
	r := NewResolver(client, nil)
	if _, err := r.Resolve(context.Background(), "demo", "index.js"); !errors.Is(err, edgeerr.ErrFileNotFound) {
		t.Fatalf("expected FileNotFound, got %v", err)
	}
	client = newStoreServer(t, serveJSON(packJSON(`{"main.js":"A"}`)))
	if _, err := NewResolver(client, nil).Resolve(context.Background(), "demo", "missing.js"); !errors.Is(err, edgeerr.ErrFileNotFound) {
		t.Fatalf("expected FileNotFound, got %v", err)
	}
}

func TestResolveIdempotent(t *testing.T) {
	calls := 0
	client := newStoreServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		serveJSON(packJSON(`{"main.js":"console.log(1)"}`))(w, r)
	})
	r := NewResolver(client, nil)
	first, err := r.Resolve(context.Background(), "demo", "index.js")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	second, err := r.Resolve(context.Background(), "demo", "index.js")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if *first != *second {
		t.Fatalf("expected identical results: %+v vs %+v", first, second)
	}
	if calls != 2 {
		t.Fatalf("expected a fetch per resolution, got %d", calls)
	}
}

func TestResolveInvalidPackID(t *testing.T) {
	r := NewResolver(NewClient("http://127.0.0.1:0", "", time.Second), nil)
	if _, err := r.Resolve(context.Background(), "  ", "index.js"); !errors.Is(err, edgeerr.ErrInvalidRequest) {
		t.Fatalf("expected InvalidRequest, got %v", err)
	}
}

func TestLookupRequestShape(t *testing.T) {
	var got *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		serveJSON(packJSON(`{"index.js":"x"}`))(w, r)
	}))
	defer srv.Close()
	client := NewClient(srv.URL+"/", "secret", time.Second)
	if _, err := NewResolver(client, nil).Lookup(context.Background(), "my pack"); err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got.URL.Path != "/api/packs/lookup" || got.URL.Query().Get("id") != "my pack" {
		t.Fatalf("unexpected request url %s", got.URL)
	}
	if got.Header.Get("Accept") != "application/json" || got.Header.Get("X-Edge-Client") != "packedge" {
		t.Fatalf("missing identifying headers: %v", got.Header)
	}
	if !strings.HasPrefix(got.Header.Get("User-Agent"), "packedge/") {
		t.Fatalf("unexpected user agent %q", got.Header.Get("User-Agent"))
	}
	if got.Header.Get("apikey") != "secret" || got.Header.Get("Authorization") != "Bearer secret" {
		t.Fatalf("expected api key headers")
	}
}

func TestLookupNotFoundCases(t *testing.T) {
	bodies := []string{
		`{"success":false}`,
		`{"pack":{"id":"demo","files":{}}}`,
		`{"success":true,"pack":null}`,
		`{"success":true,"pack":{"id":"demo","isPublic":false,"files":{}}}`,
	}
	for _, body := range bodies {
		client := newStoreServer(t, serveJSON(body))
		if _, err := client.Lookup(context.Background(), "demo"); !errors.Is(err, edgeerr.ErrNotFound) {
			t.Fatalf("%s: expected NotFound, got %v", body, err)
		}
	}
	client := newStoreServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	})
	if _, err := client.Lookup(context.Background(), "demo"); !errors.Is(err, edgeerr.ErrNotFound) {
		t.Fatalf("expected NotFound for 404, got %v", err)
	}
}

func TestLookupUpstreamErrors(t *testing.T) {
	handlers := map[string]http.HandlerFunc{
		"5xx": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "database exploded", http.StatusBadGateway)
		},
		"malformed": serveJSON(`{"success":true,"pack":`),
		"html":      serveJSON(`<html>maintenance</html>`),
		"types":     serveJSON(`{"success":true,"pack":{"id":"demo","isPublic":"yes","files":{}}}`),
	}
	for name, h := range handlers {
		client := newStoreServer(t, h)
		_, err := client.Lookup(context.Background(), "demo")
		if !errors.Is(err, edgeerr.ErrUpstream) {
			t.Fatalf("%s: expected UpstreamError, got %v", name, err)
		}
	}
}

func TestLookupTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	m := &recordingMetrics{}
	client := NewClient(srv.URL, "", 50*time.Millisecond)
	client.Metrics = m
	r := NewResolver(client, m)
	_, err := r.Resolve(context.Background(), "demo", "index.js")
	if !errors.Is(err, edgeerr.ErrUpstream) {
		t.Fatalf("expected UpstreamError on timeout, got %v", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.upstream) != 1 || m.upstream[0] != "pack_store:timeout" {
		t.Fatalf("unexpected upstream metrics: %v", m.upstream)
	}
	if len(m.resolves) != 1 || m.resolves[0] != "upstream_error" {
		t.Fatalf("unexpected resolve metrics: %v", m.resolves)
	}
}

func TestResolveMetricsOutcomes(t *testing.T) {
	m := &recordingMetrics{}
	client := newStoreServer(t, serveJSON(packJSON(`{"main.js":"A","index.js":"I"}`)))
	r := NewResolver(client, m)
	_, _ = r.Resolve(context.Background(), "demo", "index.js")
	_, _ = r.Resolve(context.Background(), "demo", "other.js")
	m.mu.Lock()
	defer m.mu.Unlock()
	if strings.Join(m.resolves, ",") != "exact,file_not_found" {
		t.Fatalf("unexpected outcomes: %v", m.resolves)
	}
}

func TestSearch(t *testing.T) {
	var query string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		serveJSON(`{"results":[]}`)(w, r)
	}))
	defer srv.Close()
	client := NewClient("http://unused", "", time.Second)
	client.SearchURL = srv.URL + "/find"
	body, err := client.Search(context.Background(), "synth pad", 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if string(body) != `{"results":[]}` {
		t.Fatalf("unexpected body %s", body)
	}
	if query != "limit=5&q=synth+pad" {
		t.Fatalf("unexpected query %q", query)
	}
}

func TestSearchRejectedUpstream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()
	client := NewClient(srv.URL, "", time.Second)
	_, err := client.Search(context.Background(), "x", 0)
	if !errors.Is(err, edgeerr.ErrUpstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}
	if !strings.Contains(err.Error(), "status 400") {
		t.Fatalf("expected upstream status in server-side cause: %v", err)
	}
}

func TestLookupStatusStaysServerSide(t *testing.T) {
	client := newStoreServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	_, err := client.Lookup(context.Background(), "demo")
	e := edgeerr.From(err)
	if e.Kind != edgeerr.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, ok := e.Context["upstreamStatus"]; ok {
		t.Fatalf("upstream status must not reach client context: %v", e.Context)
	}
}

func TestContentTypeTable(t *testing.T) {
	cases := map[string]string{
		"a.js": "application/javascript", "a.mjs": "application/javascript", "a.cjs": "application/javascript",
		"a.wasm": "application/wasm", "a.json": "application/json", "a.html": "text/html",
		"a.css": "text/css", "a.md": "text/markdown", "Makefile": "text/plain", "a.JS": "text/plain",
	}
	for p, want := range cases {
		if got := ContentType(p); got != want {
			t.Fatalf("%s: got %s want %s", p, got, want)
		}
	}
}
