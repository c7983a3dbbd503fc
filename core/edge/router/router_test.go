package router

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/cordum/packedge/core/edge/decorate"
	"github.com/cordum/packedge/core/edge/edgeerr"
)

func okHandler(ctx context.Context, req *Request) (*decorate.Response, error) {
	return decorate.NewResponse(http.StatusOK, "text/plain", []byte(req.Route)), nil
}

func testTable(t *testing.T) *Table {
	t.Helper()
	table, err := Compile([]Spec{
		{Name: "cdn", Pattern: `/cdn/([^/]+)(?:/(.+))?`, Params: []string{"packId", "filePath"}, Handler: okHandler},
		{Name: "pack", Pattern: `^/pack/([^/]+)$`, Params: []string{"packId"}, Handler: okHandler},
		{Name: "landing", Pattern: `^/$`, Handler: okHandler},
		{Name: "catchall", Pattern: `/pack/.*`, Handler: okHandler},
	})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	return table
}

func TestMatchCapturesVerbatim(t *testing.T) {
	table := testTable(t)
	m, err := table.Match("/cdn/abc-123/lib/Util.py")
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if m.Route.Name != "cdn" {
		t.Fatalf("unexpected route %s", m.Route.Name)
	}
	if m.Params.Get("packId") != "abc-123" || m.Params.Get("filePath") != "lib/Util.py" {
		t.Fatalf("unexpected params: %v", m.Params)
	}
}

func TestMatchOptionalGroupEmpty(t *testing.T) {
	m, err := testTable(t).Match("/cdn/abc")
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if v, ok := m.Params["filePath"]; !ok || v != "" {
		t.Fatalf("expected empty filePath param, got %q (present=%v)", v, ok)
	}
}

func TestMatchUnescapesCapturedSegments(t *testing.T) {
	m, err := testTable(t).Match("/cdn/de%2Fmo/lib%20a/main.js")
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if m.Params.Get("packId") != "de/mo" || m.Params.Get("filePath") != "lib a/main.js" {
		t.Fatalf("unexpected params: %v", m.Params)
	}
	m, err = testTable(t).Match("/pack/bad%ZZ")
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if m.Params.Get("packId") != "bad%ZZ" {
		t.Fatalf("invalid escapes should stay raw: %v", m.Params)
	}
}

func TestMatchFirstWins(t *testing.T) {
	m, err := testTable(t).Match("/pack/demo")
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if m.Route.Name != "pack" {
		t.Fatalf("expected first declared route, got %s", m.Route.Name)
	}
	m, err = testTable(t).Match("/pack/demo/extra")
	if err != nil || m.Route.Name != "catchall" {
		t.Fatalf("expected catchall, got %v %v", m.Route, err)
	}
}

func TestMatchNoNormalization(t *testing.T) {
	table := testTable(t)
	for _, path := range []string{"/cdn/abc/", "/CDN/abc", "/totally/unknown/path", ""} {
		_, err := table.Match(path)
		if !errors.Is(err, edgeerr.ErrNoRouteMatched) {
			t.Fatalf("%q: expected no route, got %v", path, err)
		}
	}
	_, err := table.Match("/nope")
	if e := edgeerr.From(err); e.Context["path"] != "/nope" {
		t.Fatalf("expected path in context: %v", e.Context)
	}
}

func TestCompileRejectsBadSpecs(t *testing.T) {
	cases := map[string]Spec{
		"params":  {Name: "x", Pattern: `/a/([^/]+)`, Handler: okHandler},
		"regex":   {Name: "x", Pattern: `/a/(`, Handler: okHandler},
		"name":    {Pattern: `/a`, Handler: okHandler},
		"handler": {Name: "x", Pattern: `/a`},
	}
	for label, spec := range cases {
		if _, err := Compile([]Spec{spec}); err == nil {
			t.Fatalf("%s: expected compile error", label)
		}
	}
	_, err := Compile([]Spec{
		{Name: "a", Pattern: "/a", Handler: okHandler},
		{Name: "a", Pattern: "/b", Handler: okHandler},
	})
	if err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Fatalf("expected duplicate error, got %v", err)
	}
}

func TestRoutesAndMethods(t *testing.T) {
	routes := testTable(t).Routes()
	if len(routes) != 4 || routes[0].Pattern != `^/cdn/([^/]+)(?:/(.+))?$` {
		t.Fatalf("unexpected routes: %+v", routes[0])
	}
	if !routes[0].Allows(http.MethodHead) || routes[0].Allows(http.MethodPost) {
		t.Fatalf("expected default GET/HEAD methods")
	}
}

func TestMustCompilePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	MustCompile([]Spec{{Name: "bad"}})
}
