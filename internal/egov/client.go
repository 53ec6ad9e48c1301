// Package egov is a client for the e-Gov law API v2 (https://laws.e-gov.go.jp/api/2).
package egov

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/law-notes-crawler/internal/backoff"
)

// DefaultBaseURL is the public API origin.
const DefaultBaseURL = "https://laws.e-gov.go.jp"

const maxErrorBody = 512

// StatusError reports a non-2xx API response.
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("e-gov api %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("e-gov api %s: status %d: %s", e.URL, e.StatusCode, e.Body)
}

// Temporary reports whether a retry may succeed.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Config controls the client.
type Config struct {
	BaseURL   string        `mapstructure:"base_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	Retries   int           `mapstructure:"retries"`
	RetryUnit time.Duration `mapstructure:"retry_unit"`
}

// DefaultConfig returns the settings the API is known to tolerate.
func DefaultConfig() Config {
	return Config{
		BaseURL:   DefaultBaseURL,
		Timeout:   30 * time.Second,
		Retries:   3,
		RetryUnit: 400 * time.Millisecond,
	}
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger sets the logger used for retry diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithBackoffOptions forwards options to the retry executor.
func WithBackoffOptions(opts ...backoff.Option) Option {
	return func(c *Client) {
		c.backoffOpts = append(c.backoffOpts, opts...)
	}
}

// Client issues GET requests against the API and decodes JSON responses.
type Client struct {
	base        string
	http        *http.Client
	exec        *backoff.Executor
	logger      *zap.Logger
	backoffOpts []backoff.Option
}

// NewClient builds a Client. Zero config fields take DefaultConfig values.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Retries == 0 {
		cfg.Retries = def.Retries
	}
	if cfg.RetryUnit == 0 {
		cfg.RetryUnit = def.RetryUnit
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("api.base_url %q is not an absolute url", cfg.BaseURL)
	}

	c := &Client{
		base:   strings.TrimRight(cfg.BaseURL, "/"),
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	execOpts := append([]backoff.Option{backoff.WithNotify(c.logRetry)}, c.backoffOpts...)
	c.exec, err = backoff.New(cfg.Retries, cfg.RetryUnit, execOpts...)
	if err != nil {
		return nil, fmt.Errorf("api retries: %w", err)
	}
	return c, nil
}

func (c *Client) logRetry(attempt int, err error, wait time.Duration) {
	c.logger.Debug("retrying e-gov api call",
		zap.Int("attempt", attempt+1),
		zap.Duration("wait", wait),
		zap.Error(err),
	)
}

// getJSON GETs path with query and decodes the body into out. Transport
// failures, 429 and 5xx are retried; anything else fails at once.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	target := c.base + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	return c.exec.Do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("build request: %w", err))
		}
		req.Header.Set("Accept", "application/json")
		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("call %s: %w", target, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			statusErr := &StatusError{URL: target, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
			if statusErr.Temporary() {
				return statusErr
			}
			return backoff.Permanent(statusErr)
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return backoff.Permanent(fmt.Errorf("decode %s: %w", target, err))
		}
		return nil
	})
}

// LawInfo holds the revision-independent attributes of a law.
type LawInfo struct {
	LawID            string `json:"law_id"`
	LawNum           string `json:"law_num"`
	PromulgationDate string `json:"promulgation_date"`
}

// RevisionInfo holds the attributes of the current revision.
type RevisionInfo struct {
	LawTitle string `json:"law_title"`
	Abbrev   string `json:"abbrev"`
}

type lawsResponse struct {
	TotalCount int `json:"total_count"`
	Laws       []struct {
		LawInfo      LawInfo      `json:"law_info"`
		RevisionInfo RevisionInfo `json:"revision_info"`
	} `json:"laws"`
}

// Candidate is one law returned by a search.
type Candidate struct {
	LawID            string `json:"law_id"`
	LawNum           string `json:"law_num,omitempty"`
	Title            string `json:"title"`
	Abbrev           string `json:"abbrev,omitempty"`
	PromulgationDate string `json:"promulgation_date,omitempty"`
}

func (r lawsResponse) candidates() []Candidate {
	out := make([]Candidate, 0, len(r.Laws))
	seen := make(map[string]struct{}, len(r.Laws))
	for _, law := range r.Laws {
		c := Candidate{
			LawID:            strings.TrimSpace(law.LawInfo.LawID),
			LawNum:           strings.TrimSpace(law.LawInfo.LawNum),
			Title:            strings.TrimSpace(law.RevisionInfo.LawTitle),
			Abbrev:           strings.TrimSpace(law.RevisionInfo.Abbrev),
			PromulgationDate: law.LawInfo.PromulgationDate,
		}
		key := c.LawID + "|" + c.LawNum + "|" + c.Title
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	return out
}

// SearchLaws returns the laws whose title matches title.
func (c *Client) SearchLaws(ctx context.Context, title string) ([]Candidate, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, errors.New("search title is empty")
	}
	var resp lawsResponse
	if err := c.getJSON(ctx, "/api/2/laws", url.Values{"law_title": {title}}, &resp); err != nil {
		return nil, fmt.Errorf("search laws: %w", err)
	}
	return resp.candidates(), nil
}

// ListLaws returns one page of the full law list.
func (c *Client) ListLaws(ctx context.Context, limit, offset int) ([]Candidate, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0, got %d", limit)
	}
	query := url.Values{
		"limit":  {strconv.Itoa(limit)},
		"offset": {strconv.Itoa(offset)},
	}
	var resp lawsResponse
	if err := c.getJSON(ctx, "/api/2/laws", query, &resp); err != nil {
		return nil, fmt.Errorf("list laws at offset %d: %w", offset, err)
	}
	return resp.candidates(), nil
}

// LookupTitle returns the current title of the law. Unknown IDs yield "".
func (c *Client) LookupTitle(ctx context.Context, id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", nil
	}
	var resp lawsResponse
	if err := c.getJSON(ctx, "/api/2/laws", url.Values{"law_id": {id}}, &resp); err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			return "", nil
		}
		return "", fmt.Errorf("lookup title of %s: %w", id, err)
	}
	for _, cand := range resp.candidates() {
		if cand.LawID == id {
			return cand.Title, nil
		}
	}
	return "", nil
}

// LawData is the body of /api/2/law_data.
type LawData struct {
	LawInfo      LawInfo         `json:"law_info"`
	RevisionInfo RevisionInfo    `json:"revision_info"`
	FullText     json.RawMessage `json:"law_full_text"`
}

// FetchLawData downloads the full text of a law as a JSON tree.
func (c *Client) FetchLawData(ctx context.Context, id string) (LawData, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return LawData{}, errors.New("law id is empty")
	}
	query := url.Values{
		"response_format":      {"json"},
		"law_full_text_format": {"json"},
	}
	var data LawData
	if err := c.getJSON(ctx, "/api/2/law_data/"+url.PathEscape(id), query, &data); err != nil {
		return LawData{}, fmt.Errorf("fetch law data %s: %w", id, err)
	}
	return data, nil
}
