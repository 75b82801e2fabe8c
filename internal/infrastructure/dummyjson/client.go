package dummyjson

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
	"golang.org/x/time/rate"

	"github.com/catalogsync/backend/internal/domain"
	"github.com/catalogsync/backend/internal/infrastructure/retry"
)

const (
	// DefaultBaseURL is the public DummyJSON products endpoint
	DefaultBaseURL = "https://dummyjson.com/products"

	maxResponseBytes = 10 << 20
	maxErrorBodyLen  = 4096
)

// transientStatuses are retried with backoff; every other non-2xx is fatal
var transientStatuses = map[int]bool{
	http.StatusTooManyRequests:    true,
	http.StatusBadGateway:         true,
	http.StatusServiceUnavailable: true,
	http.StatusGatewayTimeout:     true,
}

// ClientConfig holds the source client settings
type ClientConfig struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	// RateLimit is requests per second; zero disables limiting
	RateLimit float64
	Burst     int
}

// Client handles communication with the DummyJSON products API
type Client struct {
	httpClient  *http.Client
	baseURL     string
	rateLimiter *rate.Limiter
	retry       retry.Policy
	logger      *zap.Logger
}

// Ensure Client implements CatalogSource
var _ domain.CatalogSource = (*Client)(nil)

// NewClient creates a new source API client
func NewClient(cfg ClientConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		rateLimiter: rate.NewLimiter(limit, burst),
		retry:       retry.NewPolicy(cfg.MaxRetries),
		logger:      logger.Named("source"),
	}
}

// SetRetryPolicy replaces the retry policy (used to stub sleeps in tests)
func (c *Client) SetRetryPolicy(p retry.Policy) {
	c.retry = p
}

// Fetch performs a GET with bounded exponential-backoff retry on transient
// failures and returns the response body. Non-transient HTTP errors are
// returned immediately without retrying.
func (c *Client) Fetch(ctx context.Context, reqURL string, maxRetries int) ([]byte, error) {
	policy := c.retry
	policy.MaxRetries = maxRetries

	var body []byte
	err := policy.Do(ctx, func(ctx context.Context) error {
		b, err := c.doRequest(ctx, reqURL)
		if err != nil {
			var fetchErr *domain.FetchError
			if errors.As(err, &fetchErr) && fetchErr.Transient() {
				return err
			}
			return retry.Permanent(err)
		}
		body = b
		return nil
	}, func(attempt int, wait time.Duration, err error) {
		c.logger.Warn("fetch attempt failed, retrying",
			zap.String("url", reqURL),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

// doRequest executes a single GET and classifies the outcome
func (c *Client) doRequest(ctx context.Context, reqURL string) ([]byte, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter error: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "catalogsync/1.0")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrSourceAPIFailure, ctx.Err())
		}
		return nil, domain.NewNetworkError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		body, err := readLimitedBody(resp.Body, maxResponseBytes)
		if err != nil {
			return nil, domain.NewNetworkError(err)
		}
		return body, nil
	}

	if transientStatuses[resp.StatusCode] {
		return nil, domain.NewFetchError(resp.StatusCode, fmt.Sprintf("transient HTTP error %d", resp.StatusCode), true)
	}

	body, _ := readLimitedBody(resp.Body, maxErrorBodyLen)
	return nil, domain.NewFetchError(resp.StatusCode, fmt.Sprintf("fetch failed %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), false)
}

// readLimitedBody reads at most limit bytes from r
func readLimitedBody(r io.Reader, limit int64) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, limit))
}

// FetchPage retrieves one page of products at the given offset
func (c *Client) FetchPage(ctx context.Context, skip, limit int) (*domain.SourcePage, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("skip", strconv.Itoa(skip))
	reqURL := fmt.Sprintf("%s?%s", c.baseURL, params.Encode())

	body, err := c.Fetch(ctx, reqURL, c.retry.MaxRetries)
	if err != nil {
		return nil, err
	}

	var raw rawPage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	page := &domain.SourcePage{
		Products: make([]domain.SourceRecord, 0, len(raw.Products)),
		Total:    raw.Total,
		Skip:     raw.Skip,
		Limit:    raw.Limit,
	}
	for i, item := range raw.Products {
		record, err := decodeRecord(item)
		if err != nil {
			page.Skipped++
			c.logger.Warn("skipping undecodable product",
				zap.Int("offset", skip+i),
				zap.Error(err),
			)
			continue
		}
		page.Products = append(page.Products, record)
	}

	c.logger.Debug("fetched page",
		zap.Int("skip", skip),
		zap.Int("limit", limit),
		zap.Int("products", len(page.Products)),
		zap.Int("skipped", page.Skipped),
	)
	return page, nil
}

// rawPage defers product decoding so one malformed record cannot fail the page
type rawPage struct {
	Products []json.RawMessage `json:"products"`
	Total    *int              `json:"total"`
	Skip     int               `json:"skip"`
	Limit    *int              `json:"limit"`
}

// decodeRecord decodes a strictly typed record and falls back to the loose
// import coercion for records carrying strings where numbers belong
func decodeRecord(item json.RawMessage) (domain.SourceRecord, error) {
	var record domain.SourceRecord
	strictErr := json.Unmarshal(item, &record)
	if strictErr == nil {
		return record, nil
	}

	var loose domain.RawProduct
	if err := json.Unmarshal(item, &loose); err != nil {
		return domain.SourceRecord{}, strictErr
	}
	record, err := NormalizeRawProduct(loose)
	if err != nil {
		return domain.SourceRecord{}, fmt.Errorf("%v; %w", strictErr, err)
	}
	return record, nil
}

// FetchTotal returns the total number of products reported by the source
func (c *Client) FetchTotal(ctx context.Context) (int, error) {
	page, err := c.FetchPage(ctx, 0, 1)
	if err != nil {
		return 0, err
	}
	if page.Total == nil {
		return 0, nil
	}
	return *page.Total, nil
}

// FetchCategories retrieves the source category taxonomy
func (c *Client) FetchCategories(ctx context.Context) ([]domain.CategoryRecord, error) {
	reqURL := fmt.Sprintf("%s/categories", c.baseURL)

	body, err := c.Fetch(ctx, reqURL, c.retry.MaxRetries)
	if err != nil {
		return nil, err
	}

	var categories []domain.CategoryRecord
	if err := json.Unmarshal(body, &categories); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return categories, nil
}
