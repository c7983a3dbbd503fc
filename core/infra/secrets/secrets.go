// Package secrets scrubs credentials from text that leaves the request path,
// such as incident records and error logs.
package secrets

import (
	"regexp"
	"sort"
	"strings"
)

const (
	placeholder  = "<redacted>"
	secretPrefix = "secret://"
	minValueLen  = 4
)

var (
	bearerPattern = regexp.MustCompile(`(?i)(bearer\s+)[A-Za-z0-9\-._~+/]+=*`)
	paramPattern  = regexp.MustCompile(`(?i)((?:apikey|api_key|access_token|token|key|password)=)[^&\s"']+`)
	refPattern    = regexp.MustCompile(regexp.QuoteMeta(secretPrefix) + `[^\s"']+`)
)

// Redactor replaces configured secret values and credential-shaped fragments.
// It is immutable and safe for concurrent use.
type Redactor struct {
	values []string
}

// NewRedactor returns a Redactor for the given literal values. Blank and very
// short values are ignored.
func NewRedactor(values ...string) *Redactor {
	r := &Redactor{}
	for _, v := range values {
		v = strings.TrimSpace(v)
		if len(v) < minValueLen {
			continue
		}
		r.values = append(r.values, v)
	}
	// Longest first so a value that contains another is replaced whole.
	sort.Slice(r.values, func(i, j int) bool { return len(r.values[i]) > len(r.values[j]) })
	return r
}

// Redact returns text with secrets replaced and whether anything changed.
func (r *Redactor) Redact(text string) (string, bool) {
	if text == "" {
		return text, false
	}
	out := text
	if r != nil {
		for _, v := range r.values {
			out = strings.ReplaceAll(out, v, placeholder)
		}
	}
	out = bearerPattern.ReplaceAllString(out, "${1}"+placeholder)
	out = paramPattern.ReplaceAllString(out, "${1}"+placeholder)
	out = refPattern.ReplaceAllString(out, placeholder)
	return out, out != text
}

// String is Redact without the change flag.
func (r *Redactor) String(text string) string {
	out, _ := r.Redact(text)
	return out
}
