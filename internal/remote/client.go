// Package remote talks to the hosted database through its PostgREST interface
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tildaslashalef/congregate/internal/config"
	"github.com/tildaslashalef/congregate/internal/entity"
	"github.com/tildaslashalef/congregate/internal/loggy"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// Service is the remote data service the synchronizer replays against
type Service interface {
	// Create upserts by id and returns the stored record, or nil if the server returned none
	Create(ctx context.Context, collection entity.Collection, payload entity.Record) (entity.Record, error)

	// Update patches the record with the given fields
	Update(ctx context.Context, collection entity.Collection, id string, fields entity.Record) (entity.Record, error)

	// Delete removes the record, softly for collections that keep deleted rows
	Delete(ctx context.Context, collection entity.Collection, id string) error

	// List returns the live records of a collection
	List(ctx context.Context, collection entity.Collection) ([]entity.Record, error)
}

const (
	restPath   = "/rest/v1/"
	healthPath = "/auth/v1/health"
)

// Client implements Service over HTTP
type Client struct {
	baseURL    string
	apiKey     string
	deviceName string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *loggy.Logger
	now        func() time.Time
}

// NewClient creates a client for the configured project. The bearer token
// falls back to the API key, which is how anonymous access works.
func NewClient(cfg config.RemoteConfig, logger *loggy.Logger) *Client {
	token := cfg.Token
	if token == "" {
		token = cfg.APIKey
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}

	httpClient := &http.Client{
		Timeout: cfg.Timeout,
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}),
			Base:   transport,
		},
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		deviceName: cfg.DeviceName,
		httpClient: httpClient,
		limiter:    newLimiter(cfg.RequestsPerMinute, cfg.BurstLimit),
		logger:     logger,
		now:        time.Now,
	}
}

func newLimiter(rpm, burst int) *rate.Limiter {
	if rpm <= 0 {
		return rate.NewLimiter(rate.Inf, max(burst, 1))
	}
	return rate.NewLimiter(rate.Limit(float64(rpm)/60.0), max(burst, 1))
}

// Create inserts the record, merging into an existing row with the same id.
// Replaying an INSERT that already reached the server is therefore harmless.
func (c *Client) Create(ctx context.Context, collection entity.Collection, payload entity.Record) (entity.Record, error) {
	query := url.Values{"on_conflict": {entity.FieldID}}
	records, err := c.do(ctx, "create", http.MethodPost, collection, query, payload.Remote(),
		"resolution=merge-duplicates,return=representation")
	if err != nil {
		return nil, err
	}
	return first(records), nil
}

// Update patches the row with the given id
func (c *Client) Update(ctx context.Context, collection entity.Collection, id string, fields entity.Record) (entity.Record, error) {
	records, err := c.do(ctx, "update", http.MethodPatch, collection, idFilter(id), fields.Remote().WithoutID(),
		"return=representation")
	if err != nil {
		return nil, err
	}
	return first(records), nil
}

// Delete marks the row deleted for soft-delete collections and removes it otherwise
func (c *Client) Delete(ctx context.Context, collection entity.Collection, id string) error {
	if collection.SoftDeletes() {
		body := entity.Record{entity.FieldDeletedAt: c.now().UTC().Format(time.RFC3339)}
		_, err := c.do(ctx, "delete", http.MethodPatch, collection, idFilter(id), body, "return=minimal")
		return err
	}
	_, err := c.do(ctx, "delete", http.MethodDelete, collection, idFilter(id), nil, "return=minimal")
	return err
}

// List fetches every live row of a collection
func (c *Client) List(ctx context.Context, collection entity.Collection) ([]entity.Record, error) {
	query := url.Values{"select": {"*"}}
	if collection.SoftDeletes() {
		query.Set(entity.FieldDeletedAt, "is.null")
	}
	return c.do(ctx, "list", http.MethodGet, collection, query, nil, "")
}

// Ping checks that the service answers at all. Any HTTP response, even an
// error status, means the network path is up.
func (c *Client) Ping(ctx context.Context) error {
	if c.baseURL == "" {
		return &ConnectivityError{Op: "ping", Err: ErrNotConfigured}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+healthPath, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(ctx, req, "")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &ConnectivityError{Op: "ping", Err: err}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	return nil
}

func (c *Client) do(ctx context.Context, op, method string, collection entity.Collection, query url.Values, body entity.Record, prefer string) ([]entity.Record, error) {
	if c.baseURL == "" || c.apiKey == "" {
		return nil, &ConnectivityError{Op: op, Err: ErrNotConfigured}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for rate limiter: %w", err)
	}

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	endpoint := c.baseURL + restPath + url.PathEscape(string(collection))
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(ctx, req, prefer)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		// A cancelled caller is not an outage
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s %s: %w", op, collection, ctx.Err())
		}
		return nil, &ConnectivityError{Op: op + " " + string(collection), Err: err}
	}
	defer resp.Body.Close()

	loggy.FromContext(ctx).Debug("Remote request",
		"op", op,
		"collection", collection,
		"status", resp.StatusCode,
		"duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, decodeAPIError(resp)
	}

	if resp.StatusCode == http.StatusNoContent || method == http.MethodDelete || prefer == "return=minimal" {
		return nil, nil
	}

	return decodeRecords(resp.Body)
}

func (c *Client) setHeaders(ctx context.Context, req *http.Request, prefer string) {
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if req.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}
	if c.deviceName != "" {
		req.Header.Set("X-Client-Info", "congregate/"+c.deviceName)
	}
	if id := loggy.GetRequestID(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	}
}

func idFilter(id string) url.Values {
	return url.Values{entity.FieldID: {"eq." + id}}
}

func first(records []entity.Record) entity.Record {
	if len(records) == 0 {
		return nil
	}
	return records[0]
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(data, apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(data))
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
	}
	return apiErr
}

// PostgREST answers with an array for representations; a single object is accepted too
func decodeRecords(r io.Reader) ([]entity.Record, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()

	if trimmed[0] == '{' {
		var record entity.Record
		if err := dec.Decode(&record); err != nil {
			return nil, fmt.Errorf("decoding response: %w", err)
		}
		return []entity.Record{record}, nil
	}

	var records []entity.Record
	if err := dec.Decode(&records); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return records, nil
}
