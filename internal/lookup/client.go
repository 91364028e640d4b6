// Package lookup queries the external vehicle record service.
package lookup

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"walter-bridge/internal/metrics"
	"walter-bridge/internal/vehicle"
)

const DefaultTimeout = 8 * time.Second

type Record struct {
	DiagramName string `json:"diagram_name"`
	DiagramURL  string `json:"diagram_url"`
	Notes       string `json:"notes"`
}

// Result is the outcome of one lookup. Diagnostic explains a lookup that
// could not be completed; it is empty for a clean match or miss.
type Result struct {
	Matched    bool
	Record     *Record
	Diagnostic string
}

type Config struct {
	BaseURL   string
	PublicKey string
	// Token, when set, is sent as a bearer token.
	Token   string
	Timeout time.Duration
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	publicKey  string
	logger     *zap.Logger
	metrics    *metrics.Collector
}

func NewClient(cfg Config, logger *zap.Logger, m *metrics.Collector) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	hc := &http.Client{}
	if cfg.Token != "" {
		hc = oauth2.NewClient(context.Background(), oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token}))
	}
	hc.Timeout = cfg.Timeout
	return &Client{
		httpClient: hc,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		publicKey:  cfg.PublicKey,
		logger:     logger.Named("lookup"),
		metrics:    m,
	}
}

type searchResponse struct {
	Count   *int     `json:"count"`
	Records []Record `json:"records"`
}

// Lookup makes a single attempt to find the record for attrs. It never
// returns an error: failures come back unmatched with a Diagnostic.
func (c *Client) Lookup(ctx context.Context, attrs vehicle.Attributes) Result {
	if !attrs.Complete() {
		c.metrics.ObserveLookup("skipped")
		return Result{Diagnostic: "year, make and model are required"}
	}
	var resp searchResponse
	if err := c.getJSON(ctx, c.query(attrs), &resp); err != nil {
		c.metrics.ObserveLookup("error")
		c.logger.Warn("vehicle lookup failed",
			zap.String("year", attrs.Year), zap.String("make", attrs.Make), zap.String("model", attrs.Model),
			zap.Error(err))
		return Result{Diagnostic: err.Error()}
	}
	if len(resp.Records) == 0 || (resp.Count != nil && *resp.Count == 0) {
		c.metrics.ObserveLookup("not_found")
		return Result{}
	}
	c.metrics.ObserveLookup("matched")
	rec := resp.Records[0]
	return Result{Matched: true, Record: &rec}
}

func (c *Client) query(attrs vehicle.Attributes) string {
	q := url.Values{}
	q.Set("year", attrs.Year)
	q.Set("make", attrs.Make)
	q.Set("model", attrs.Model)
	if l := attrs.Ignition.Label(); l != "" {
		q.Set("ignition", l)
	}
	if c.publicKey != "" {
		q.Set("key", c.publicKey)
	}
	return q.Encode()
}

func (c *Client) getJSON(ctx context.Context, rawQuery string, out any) error {
	u := c.baseURL
	if strings.Contains(u, "?") {
		u += "&" + rawQuery
	} else {
		u += "?" + rawQuery
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("lookup service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode lookup response: %w", err)
	}
	return nil
}
