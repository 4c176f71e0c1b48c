// Package bubble reads collections from a Bubble Data API over HTTP.
package bubble

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"agfdash/internal/store"
)

const (
	apiPrefix   = "/api/1.1/obj/"
	maxBodyLog  = 2048
	maxBodyRead = 64 << 20
)

// Config holds client settings.
type Config struct {
	BaseURL      string
	APIKey       string
	Timeout      time.Duration
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	Logger       *slog.Logger
}

// Client implements store.RecordStore against a Bubble app.
type Client struct {
	baseURL string
	apiKey  string
	http    *retryablehttp.Client
	logger  *slog.Logger
}

var (
	_ store.RecordStore = (*Client)(nil)
	_ store.IDFilterer  = (*Client)(nil)
)

// ErrPaginationStalled is returned when the server reports remaining records
// but sends an empty page, which would otherwise loop forever.
var ErrPaginationStalled = errors.New("pagination stalled: empty page with records remaining")

// New creates a client. BaseURL and APIKey are required.
func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("missing bubble base URL")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid bubble base URL: %w", err)
	}
	if cfg.APIKey == "" {
		return nil, errors.New("missing bubble API key")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.RetryMax
	if cfg.RetryWaitMin > 0 {
		rc.RetryWaitMin = cfg.RetryWaitMin
	}
	if cfg.RetryWaitMax > 0 {
		rc.RetryWaitMax = cfg.RetryWaitMax
	}
	if cfg.Timeout > 0 {
		rc.HTTPClient.Timeout = cfg.Timeout
	}
	rc.Logger = logger.With("component", "bubble")
	// Hand the final response back so non-2xx bodies end up in RemoteFetchError.
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &Client{
		baseURL: base,
		apiKey:  cfg.APIKey,
		http:    rc,
		logger:  logger,
	}, nil
}

type listEnvelope struct {
	Response *listPage `json:"response"`
}

type listPage struct {
	Results   []store.Record `json:"results"`
	Cursor    float64        `json:"cursor"`
	Remaining float64        `json:"remaining"`
}

type oneEnvelope struct {
	Response store.Record `json:"response"`
}

// FetchAll implements store.RecordStore. Pages are requested sequentially,
// each cursor being the previous cursor plus the size of the batch received.
func (c *Client) FetchAll(ctx context.Context, collection string, filter store.Filter, pageSize int) ([]store.Record, error) {
	if pageSize <= 0 {
		pageSize = store.DefaultPageSize
	}

	var constraints string
	if len(filter) > 0 {
		b, err := json.Marshal(filter)
		if err != nil {
			return nil, fmt.Errorf("encode constraints for %s: %w", collection, err)
		}
		constraints = string(b)
	}

	var (
		items  []store.Record
		cursor = -1
		pages  int
	)
	for {
		q := url.Values{}
		q.Set("limit", strconv.Itoa(pageSize))
		if constraints != "" {
			q.Set("constraints", constraints)
		}
		if cursor >= 0 {
			q.Set("cursor", strconv.Itoa(cursor))
		}
		path := apiPrefix + url.PathEscape(collection) + "?" + q.Encode()

		var env listEnvelope
		if err := c.get(ctx, collection, path, &env); err != nil {
			return nil, err
		}
		pages++
		if env.Response == nil {
			break
		}

		batch := env.Response.Results
		items = append(items, batch...)
		if env.Response.Remaining <= 0 {
			break
		}
		if len(batch) == 0 {
			return nil, fmt.Errorf("fetch %s at cursor %d: %w", collection, cursor, ErrPaginationStalled)
		}
		cursor = int(env.Response.Cursor) + len(batch)
	}

	c.logger.DebugContext(ctx, "Fetched collection",
		"collection", collection,
		"records", len(items),
		"pages", pages)

	return items, nil
}

// FetchOne implements store.RecordStore. A 404 or an envelope without a
// response body is reported as not found.
func (c *Client) FetchOne(ctx context.Context, collection, id string) (store.Record, bool, error) {
	path := apiPrefix + url.PathEscape(collection) + "/" + url.PathEscape(id)

	var env oneEnvelope
	if err := c.get(ctx, collection, path, &env); err != nil {
		var rfe *store.RemoteFetchError
		if errors.As(err, &rfe) && rfe.Status == http.StatusNotFound {
			return nil, false, nil
		}
		return nil, false, err
	}
	if env.Response == nil {
		return nil, false, nil
	}
	if env.Response.ID() == "" {
		env.Response[store.FieldID] = id
	}
	return env.Response, true, nil
}

// SupportsIDFilter implements store.IDFilterer; the Data API accepts
// constraints on "_id".
func (c *Client) SupportsIDFilter() bool { return true }

// Close releases idle keep-alive connections to the Bubble app.
func (c *Client) Close() error {
	c.http.HTTPClient.CloseIdleConnections()
	return nil
}

func (c *Client) get(ctx context.Context, collection, path string, out any) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request for %s: %w", collection, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyLog))
		return &store.RemoteFetchError{
			Collection: collection,
			Path:       path,
			Status:     resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyRead)).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", collection, err)
	}
	return nil
}
