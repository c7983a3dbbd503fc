// Package router matches request paths against an ordered, compiled-once
// table of typed route descriptors.
package router

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/cordum/packedge/core/edge/decorate"
	"github.com/cordum/packedge/core/edge/edgeerr"
)

// Request is what a route handler sees: the inbound request plus the params
// captured by its pattern.
type Request struct {
	HTTP   *http.Request
	Route  string
	Params Params
}

// Handler produces a response or a typed failure. Handlers never write to the
// client directly.
type Handler func(ctx context.Context, req *Request) (*decorate.Response, error)

// Spec describes one route before compilation.
type Spec struct {
	Name    string
	Pattern string
	Params  []string
	// Methods lists the accepted methods; empty means GET and HEAD.
	Methods []string
	Handler Handler
}

// Route is a compiled Spec.
type Route struct {
	Name    string
	Pattern string
	Params  []string
	Methods []string
	Handler Handler

	re *regexp.Regexp
}

// Allows reports whether method is accepted by the route.
func (r *Route) Allows(method string) bool {
	for _, m := range r.Methods {
		if m == method {
			return true
		}
	}
	return false
}

// Params holds captured values by name.
type Params map[string]string

// Get returns the named param or "".
func (p Params) Get(name string) string {
	return p[name]
}

// Match is the result of a successful lookup.
type Match struct {
	Route  *Route
	Params Params
}

// Table is an immutable ordered route list.
type Table struct {
	routes []*Route
}

// Compile validates and compiles specs in order.
func Compile(specs []Spec) (*Table, error) {
	t := &Table{routes: make([]*Route, 0, len(specs))}
	seen := make(map[string]struct{}, len(specs))
	for i, spec := range specs {
		name := strings.TrimSpace(spec.Name)
		if name == "" {
			return nil, fmt.Errorf("route %d: name required", i)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("route %s: duplicate name", name)
		}
		seen[name] = struct{}{}
		if spec.Handler == nil {
			return nil, fmt.Errorf("route %s: handler required", name)
		}
		pattern := anchor(spec.Pattern)
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("route %s: compile pattern: %w", name, err)
		}
		if got := re.NumSubexp(); got != len(spec.Params) {
			return nil, fmt.Errorf("route %s: pattern has %d capture groups, %d params named", name, got, len(spec.Params))
		}
		methods := spec.Methods
		if len(methods) == 0 {
			methods = []string{http.MethodGet, http.MethodHead}
		}
		t.routes = append(t.routes, &Route{
			Name:    name,
			Pattern: pattern,
			Params:  append([]string(nil), spec.Params...),
			Methods: append([]string(nil), methods...),
			Handler: spec.Handler,
			re:      re,
		})
	}
	return t, nil
}

// MustCompile is Compile for static tables; it panics on error.
func MustCompile(specs []Spec) *Table {
	t, err := Compile(specs)
	if err != nil {
		panic(err)
	}
	return t
}

// Match returns the first route whose pattern matches the full path. path is
// the escaped request path; captured params are unescaped after matching so
// an encoded slash stays inside its segment.
func (t *Table) Match(path string) (Match, error) {
	if t != nil {
		for _, route := range t.routes {
			groups := route.re.FindStringSubmatch(path)
			if groups == nil {
				continue
			}
			params := make(Params, len(route.Params))
			for i, name := range route.Params {
				params[name] = unescape(groups[i+1])
			}
			return Match{Route: route, Params: params}, nil
		}
	}
	return Match{}, edgeerr.NoRouteMatched(path)
}

// Routes returns the compiled routes in evaluation order.
func (t *Table) Routes() []*Route {
	if t == nil {
		return nil
	}
	return append([]*Route(nil), t.routes...)
}

func unescape(value string) string {
	if out, err := url.PathUnescape(value); err == nil {
		return out
	}
	return value
}

func anchor(pattern string) string {
	if !strings.HasPrefix(pattern, "^") {
		pattern = "^" + pattern
	}
	if !strings.HasSuffix(pattern, "$") || strings.HasSuffix(pattern, `\$`) {
		pattern += "$"
	}
	return pattern
}
