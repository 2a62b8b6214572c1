// Package search is a minimal REST client for the search service management API.
//
// Only the calls needed to provision and tear down a resource chain are
// implemented: create (PUT with If-None-Match), get, list, delete, indexer
// status and indexer run.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	cerrors "github.com/Aman-CERP/corpusctl/internal/errors"
	"github.com/Aman-CERP/corpusctl/internal/schema"
)

const (
	// DefaultAPIVersion is the management API version sent with every request.
	DefaultAPIVersion = "2023-11-01"

	// DefaultTimeout bounds a single request.
	DefaultTimeout = 30 * time.Second

	// DefaultRequestsPerSecond throttles calls to the service.
	DefaultRequestsPerSecond = 10.0

	// DefaultBurst is the limiter bucket size.
	DefaultBurst = 5

	headerAPIKey    = "api-key"
	headerRequestID = "client-request-id"

	maxErrorBody = 64 << 10
)

// Kind is the collection a resource lives in.
type Kind string

const (
	KindIndex      Kind = "indexes"
	KindDataSource Kind = "datasources"
	KindSkillset   Kind = "skillsets"
	KindIndexer    Kind = "indexers"
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	return string(k)
}

// Singular names one resource of the kind.
func (k Kind) Singular() string {
	switch k {
	case KindIndex:
		return "index"
	case KindDataSource:
		return "data source"
	case KindSkillset:
		return "skillset"
	case KindIndexer:
		return "indexer"
	default:
		return string(k)
	}
}

// Config configures a Client.
type Config struct {
	// Endpoint is the service URL, e.g. https://myservice.search.windows.net.
	Endpoint string
	// AdminKey authenticates management calls.
	AdminKey   string
	APIVersion string
	// UserAgent is sent with every request when set.
	UserAgent string

	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int

	// HTTPClient overrides the default client (used by tests).
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client talks to one search service. It is safe for concurrent use.
type Client struct {
	base       *url.URL
	adminKey   string
	apiVersion string
	userAgent  string
	http       *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewClient validates cfg and creates a client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, cerrors.New(cerrors.ErrCodeConfigInvalid, "search service endpoint is required", nil).
			WithSuggestion("Set search.endpoint or AZURE_SEARCH_SERVICE_ENDPOINT")
	}
	if cfg.AdminKey == "" {
		return nil, cerrors.New(cerrors.ErrCodeCredentialMissing, "search admin key is required", nil).
			WithSuggestion("Set AZURE_SEARCH_ADMIN_KEY")
	}
	base, err := url.Parse(strings.TrimRight(cfg.Endpoint, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, cerrors.New(cerrors.ErrCodeConfigInvalid, "search service endpoint is not a valid URL", err).
			WithDetail("endpoint", cfg.Endpoint)
	}

	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = DefaultRequestsPerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = DefaultBurst
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Client{
		base:       base,
		adminKey:   cfg.AdminKey,
		apiVersion: cfg.APIVersion,
		userAgent:  cfg.UserAgent,
		http:       cfg.HTTPClient,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		logger:     cfg.Logger,
	}, nil
}

// CreateIndex creates an index. An existing index is a conflict.
func (c *Client) CreateIndex(ctx context.Context, ix schema.Index) error {
	return c.create(ctx, KindIndex, ix.Name, ix)
}

// CreateDataSource creates a data source. An existing data source is a conflict.
func (c *Client) CreateDataSource(ctx context.Context, ds schema.DataSource) error {
	return c.create(ctx, KindDataSource, ds.Name, ds)
}

// CreateSkillset creates a skillset. An existing skillset is a conflict.
func (c *Client) CreateSkillset(ctx context.Context, ss schema.Skillset) error {
	return c.create(ctx, KindSkillset, ss.Name, ss)
}

// CreateIndexer creates an indexer. The service starts running it immediately.
func (c *Client) CreateIndexer(ctx context.Context, ix schema.Indexer) error {
	return c.create(ctx, KindIndexer, ix.Name, ix)
}

func (c *Client) create(ctx context.Context, kind Kind, name string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return cerrors.InternalError("failed to encode "+string(kind)+" definition", err)
	}
	header := http.Header{}
	// Create-only semantics: the service answers 412 when the resource exists.
	header.Set("If-None-Match", "*")
	header.Set("Prefer", "return=minimal")

	resp, err := c.do(ctx, http.MethodPut, c.resourcePath(kind, name), header, payload)
	if err != nil {
		return err
	}
	defer drain(resp)

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
		return nil
	default:
		return responseError(resp, kind, name)
	}
}

// Delete removes a resource. A missing resource returns a not-found error.
func (c *Client) Delete(ctx context.Context, kind Kind, name string) error {
	resp, err := c.do(ctx, http.MethodDelete, c.resourcePath(kind, name), nil, nil)
	if err != nil {
		return err
	}
	defer drain(resp)

	switch resp.StatusCode {
	case http.StatusOK, http.StatusAccepted, http.StatusNoContent:
		return nil
	default:
		return responseError(resp, kind, name)
	}
}

// Exists reports whether a resource is present.
func (c *Client) Exists(ctx context.Context, kind Kind, name string) (bool, error) {
	resp, err := c.do(ctx, http.MethodGet, c.resourcePath(kind, name), nil, nil)
	if err != nil {
		return false, err
	}
	defer drain(resp)

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, responseError(resp, kind, name)
	}
}

type listResponse struct {
	Value []struct {
		Name string `json:"name"`
	} `json:"value"`
}

// List returns the names of every resource of kind.
func (c *Client) List(ctx context.Context, kind Kind) ([]string, error) {
	q := url.Values{}
	q.Set("$select", "name")
	resp, err := c.doQuery(ctx, http.MethodGet, "/"+string(kind), q, nil, nil)
	if err != nil {
		return nil, err
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusOK {
		return nil, responseError(resp, kind, "")
	}
	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return nil, cerrors.New(cerrors.ErrCodeUnexpectedResponse, "failed to decode "+string(kind)+" list", err)
	}
	names := make([]string, 0, len(lr.Value))
	for _, v := range lr.Value {
		names = append(names, v.Name)
	}
	return names, nil
}

// IndexerStatus fetches the execution status of an indexer.
func (c *Client) IndexerStatus(ctx context.Context, name string) (IndexerStatus, error) {
	resp, err := c.do(ctx, http.MethodGet, c.resourcePath(KindIndexer, name)+"/status", nil, nil)
	if err != nil {
		return IndexerStatus{}, err
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusOK {
		return IndexerStatus{}, responseError(resp, KindIndexer, name)
	}
	var raw statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return IndexerStatus{}, cerrors.New(cerrors.ErrCodeUnexpectedResponse, "failed to decode indexer status", err).
			WithDetail("indexer", name)
	}
	return raw.toStatus(), nil
}

// RunIndexer asks the service to start an indexer run now.
func (c *Client) RunIndexer(ctx context.Context, name string) error {
	resp, err := c.do(ctx, http.MethodPost, c.resourcePath(KindIndexer, name)+"/run", nil, nil)
	if err != nil {
		return err
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		return responseError(resp, KindIndexer, name)
	}
	return nil
}

func (c *Client) resourcePath(kind Kind, name string) string {
	return "/" + string(kind) + "/" + url.PathEscape(name)
}

func (c *Client) do(ctx context.Context, method, path string, header http.Header, body []byte) (*http.Response, error) {
	return c.doQuery(ctx, method, path, nil, header, body)
}

func (c *Client) doQuery(ctx context.Context, method, path string, query url.Values, header http.Header, body []byte) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	u := *c.base
	u.Path = c.base.Path + path
	if query == nil {
		query = url.Values{}
	}
	query.Set("api-version", c.apiVersion)
	u.RawQuery = query.Encode()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, cerrors.InternalError("failed to create request", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	requestID := uuid.NewString()
	req.Header.Set(headerAPIKey, c.adminKey)
	req.Header.Set(headerRequestID, requestID)
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, cerrors.NetworkError(method+" "+path+" failed", err).
			WithDetail("request_id", requestID)
	}

	c.logger.Debug("search_request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
		slog.String("request_id", requestID))
	return resp, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	_ = resp.Body.Close()
}

// IsContextError reports whether err came from a cancelled or expired context.
func IsContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
