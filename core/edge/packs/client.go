package packs

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cordum/packedge/core/edge/edgeerr"
	"github.com/cordum/packedge/core/infra/buildinfo"
	"github.com/cordum/packedge/core/infra/metrics"
	"github.com/cordum/packedge/core/infra/schema"
)

const (
	lookupPath     = "/api/packs/lookup"
	defaultTimeout = 5 * time.Second
	maxBodyBytes   = 32 << 20
	edgeClientName = "packedge"
)

//go:embed schema/lookup.schema.json
var lookupSchema []byte

var lookupValidator = schema.MustCompile("pack-lookup", lookupSchema)

// Store fetches pack snapshots.
type Store interface {
	Lookup(ctx context.Context, packID string) (*Pack, error)
}

// Client talks to the pack store and search HTTP APIs. Every call is a
// single attempt bounded by Timeout.
type Client struct {
	BaseURL    string
	SearchURL  string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Metrics    metrics.EdgeMetrics
}

// NewClient returns a client for the pack store at baseURL.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Timeout: timeout,
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
		Metrics: metrics.Noop{},
	}
}

type lookupResponse struct {
	Success *bool `json:"success"`
	Pack    *Pack `json:"pack"`
}

// Lookup fetches the current snapshot of packID.
func (c *Client) Lookup(ctx context.Context, packID string) (*Pack, error) {
	if c == nil || c.BaseURL == "" {
		return nil, edgeerr.Upstream("pack store not configured", nil)
	}
	endpoint := c.BaseURL + lookupPath + "?" + url.Values{"id": {packID}}.Encode()
	data, err := c.get(ctx, "pack_store", endpoint)
	if err != nil {
		if edgeerr.KindOf(err) == edgeerr.KindNotFound {
			return nil, packNotFound(packID)
		}
		return nil, err
	}
	if err := lookupValidator.Validate(data); err != nil {
		return nil, edgeerr.Upstream("pack store returned an invalid payload", err)
	}
	var out lookupResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, edgeerr.Upstream("pack store returned an invalid payload", fmt.Errorf("decode json: %w", err))
	}
	if out.Success == nil || !*out.Success || out.Pack == nil || !out.Pack.Public() {
		return nil, packNotFound(packID)
	}
	return out.Pack, nil
}

func packNotFound(packID string) *edgeerr.Error {
	return edgeerr.NotFound(fmt.Sprintf("Pack %q not found", packID)).With("packId", packID)
}

// Search forwards a query to the search API and returns its JSON body.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]byte, error) {
	if c == nil {
		return nil, edgeerr.Upstream("search not configured", nil)
	}
	base := c.SearchURL
	if base == "" {
		if c.BaseURL == "" {
			return nil, edgeerr.Upstream("search not configured", nil)
		}
		base = c.BaseURL + "/api/search"
	}
	params := url.Values{"q": {query}}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	data, err := c.get(ctx, "search", base+sep+params.Encode())
	if err != nil {
		if edgeerr.KindOf(err) == edgeerr.KindNotFound {
			return nil, edgeerr.Upstream("search request rejected", err)
		}
		return nil, err
	}
	if !json.Valid(data) {
		return nil, edgeerr.Upstream("search returned an invalid payload", errors.New("response is not json"))
	}
	return data, nil
}

func (c *Client) get(ctx context.Context, target, endpoint string) ([]byte, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, edgeerr.Upstream("build upstream request", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", buildinfo.UserAgent())
	req.Header.Set("X-Edge-Client", edgeClientName)
	if c.APIKey != "" {
		req.Header.Set("apikey", c.APIKey)
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		outcome := "error"
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			outcome = "timeout"
		}
		c.observe(target, outcome, start)
		return nil, edgeerr.Upstream(target+" request failed", fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		c.observe(target, "not_found", start)
		return nil, &edgeerr.Error{
			Kind:    edgeerr.KindNotFound,
			Message: "Resource not found upstream",
			Cause:   fmt.Errorf("%s answered status %d", target, resp.StatusCode),
		}
	}
	data, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.observe(target, "error", start)
		msg := strings.TrimSpace(string(data))
		if msg == "" {
			msg = resp.Status
		}
		return nil, edgeerr.Upstream(target+" request failed", fmt.Errorf("unexpected status %d: %s", resp.StatusCode, msg))
	}
	if readErr != nil {
		c.observe(target, "error", start)
		return nil, edgeerr.Upstream(target+" request failed", fmt.Errorf("read body: %w", readErr))
	}
	c.observe(target, "ok", start)
	return data, nil
}

func (c *Client) observe(target, outcome string, start time.Time) {
	if c.Metrics != nil {
		c.Metrics.ObserveUpstream(target, outcome, time.Since(start).Seconds())
	}
}
