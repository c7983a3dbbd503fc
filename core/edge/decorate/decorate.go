// Package decorate attaches CORS, security, caching and diagnostic headers to
// every edge response regardless of which handler produced it.
package decorate

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Diagnostic headers stamped on every response.
const (
	HeaderRequestID      = "X-Request-ID"
	HeaderTimestamp      = "X-Timestamp"
	HeaderProcessingTime = "X-Processing-Time"
)

var defaultSecurityHeaders = map[string]string{
	"X-Content-Type-Options": "nosniff",
	"X-Frame-Options":        "DENY",
	"Referrer-Policy":        "strict-origin-when-cross-origin",
	"X-XSS-Protection":       "1; mode=block",
	"Permissions-Policy":     "camera=(), microphone=(), geolocation=()",
}

// Response is a handler result before decoration.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// NewResponse builds a response with the given status, content type and body.
func NewResponse(status int, contentType string, body []byte) *Response {
	h := make(http.Header)
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	return &Response{Status: status, Header: h, Body: body}
}

// Options configures a Decorator. Zero values fall back to defaults.
type Options struct {
	AllowedOrigins      []string
	AllowMethods        string
	AllowHeaders        string
	ExposeHeaders       string
	MaxAge              time.Duration
	SecurityHeaders     map[string]string
	DefaultCacheControl string
}

// Decorator merges the fixed header policy into handler responses. It holds
// no per-request state and is safe for concurrent use.
type Decorator struct {
	allowed       map[string]struct{}
	allowMethods  string
	allowHeaders  string
	exposeHeaders string
	maxAge        string
	security      http.Header
	cacheControl  string
	now           func() time.Time
	newID         func() string
}

// New builds a Decorator from opts.
func New(opts Options) *Decorator {
	d := &Decorator{
		allowed:       make(map[string]struct{}, len(opts.AllowedOrigins)),
		allowMethods:  opts.AllowMethods,
		allowHeaders:  opts.AllowHeaders,
		exposeHeaders: opts.ExposeHeaders,
		cacheControl:  opts.DefaultCacheControl,
		security:      make(http.Header),
		now:           time.Now,
		newID:         uuid.NewString,
	}
	for _, origin := range opts.AllowedOrigins {
		if o := strings.TrimSpace(origin); o != "" {
			d.allowed[o] = struct{}{}
		}
	}
	if d.allowMethods == "" {
		d.allowMethods = "GET, HEAD, OPTIONS"
	}
	if d.allowHeaders == "" {
		d.allowHeaders = "Content-Type, Authorization, X-Requested-With"
	}
	if d.exposeHeaders == "" {
		d.exposeHeaders = strings.Join([]string{HeaderRequestID, HeaderTimestamp, HeaderProcessingTime}, ", ")
	}
	maxAge := opts.MaxAge
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	d.maxAge = strconv.Itoa(int(maxAge / time.Second))
	if d.cacheControl == "" {
		d.cacheControl = "public, max-age=300"
	}
	for k, v := range defaultSecurityHeaders {
		d.security.Set(k, v)
	}
	for k, v := range opts.SecurityHeaders {
		d.security.Set(k, v)
	}
	return d
}

// Trace carries the per-request diagnostic values stamped on the response.
type Trace struct {
	RequestID string
	Start     time.Time
}

// Begin starts a trace at router entry.
func (d *Decorator) Begin() Trace {
	return Trace{RequestID: d.newID(), Start: d.now()}
}

// AllowOrigin returns the Access-Control-Allow-Origin value for origin.
func (d *Decorator) AllowOrigin(origin string) string {
	origin = strings.TrimSpace(origin)
	if origin == "" {
		return "*"
	}
	if _, ok := d.allowed[origin]; ok {
		return origin
	}
	return "*"
}

// Apply merges CORS, security, caching and diagnostic headers into resp.
// Handler-set headers win over security and caching defaults.
func (d *Decorator) Apply(r *http.Request, resp *Response, tr Trace) *Response {
	if resp == nil {
		resp = &Response{Status: http.StatusNoContent}
	}
	if resp.Status == 0 {
		resp.Status = http.StatusOK
	}
	if resp.Header == nil {
		resp.Header = make(http.Header)
	}
	d.applyCORS(r, resp.Header)
	for k, vals := range d.security {
		if resp.Header.Get(k) == "" {
			resp.Header[k] = append([]string(nil), vals...)
		}
	}
	if resp.Status == http.StatusOK && resp.Header.Get("Cache-Control") == "" {
		resp.Header.Set("Cache-Control", d.cacheControl)
	}
	d.stamp(resp.Header, tr)
	return resp
}

// Preflight builds the 204 answer for OPTIONS requests: CORS, security and
// diagnostic headers only, no body.
func (d *Decorator) Preflight(r *http.Request, tr Trace) *Response {
	resp := &Response{Status: http.StatusNoContent, Header: make(http.Header)}
	d.applyCORS(r, resp.Header)
	resp.Header.Set("Access-Control-Max-Age", d.maxAge)
	for k, vals := range d.security {
		resp.Header[k] = append([]string(nil), vals...)
	}
	d.stamp(resp.Header, tr)
	return resp
}

func (d *Decorator) applyCORS(r *http.Request, h http.Header) {
	origin := ""
	if r != nil {
		origin = r.Header.Get("Origin")
	}
	h.Set("Access-Control-Allow-Origin", d.AllowOrigin(origin))
	h.Set("Access-Control-Allow-Methods", d.allowMethods)
	h.Set("Access-Control-Allow-Headers", d.allowHeaders)
	h.Set("Access-Control-Expose-Headers", d.exposeHeaders)
	addVary(h, "Origin")
}

func (d *Decorator) stamp(h http.Header, tr Trace) {
	now := d.now()
	start := tr.Start
	if start.IsZero() {
		start = now
	}
	id := tr.RequestID
	if id == "" {
		id = d.newID()
	}
	h.Set(HeaderRequestID, id)
	h.Set(HeaderTimestamp, now.UTC().Format(time.RFC3339))
	h.Set(HeaderProcessingTime, strconv.FormatInt(now.Sub(start).Milliseconds(), 10)+"ms")
}

func addVary(h http.Header, value string) {
	for _, existing := range h.Values("Vary") {
		for _, part := range strings.Split(existing, ",") {
			if strings.EqualFold(strings.TrimSpace(part), value) {
				return
			}
		}
	}
	h.Add("Vary", value)
}
