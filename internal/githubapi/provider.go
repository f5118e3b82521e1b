package githubapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cam3ron2/branchscope/internal/store"
	"go.uber.org/zap"
)

const (
	// PageSize is the fixed page size for paginated requests.
	PageSize = 100
	// APIVersion is the REST API version pinned on every request.
	APIVersion = "2022-11-28"
	// DefaultUserAgent identifies requests when none is configured.
	DefaultUserAgent = "branchscope"
)

// ProviderConfig configures a Provider.
type ProviderConfig struct {
	BaseURL   string
	UserAgent string
	Cache     store.Cache
	// CacheTTL applies to every cached call without an explicit ttl.
	CacheTTL time.Duration
	Logger   *zap.Logger
}

// Provider issues GET requests against the REST API, normalizing no-data
// statuses and optionally caching successful bodies.
type Provider struct {
	requestClient *Client
	baseURL       *url.URL
	userAgent     string
	cache         store.Cache
	cacheTTL      time.Duration
	logger        *zap.Logger

	mu       sync.Mutex
	lastRate RateLimitHeaders
}

// NewProvider creates a provider over the retrying request client.
func NewProvider(requestClient *Client, cfg ProviderConfig) (*Provider, error) {
	if requestClient == nil {
		return nil, fmt.Errorf("request client is required")
	}
	parsed, err := parseAPIBaseURL(cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		requestClient: requestClient,
		baseURL:       parsed,
		userAgent:     userAgent,
		cache:         cfg.Cache,
		cacheTTL:      cfg.CacheTTL,
		logger:        logger,
	}, nil
}

// Get fetches path and returns the raw JSON body. 202, 204 and 404 return nil
// with no error; other statuses >= 400 return *ProviderError.
func (p *Provider) Get(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	body, _, err := p.GetWithStatus(ctx, path, params, p.cacheTTL)
	return body, err
}

// GetTTL is Get with an explicit cache ttl.
func (p *Provider) GetTTL(ctx context.Context, path string, params url.Values, ttl time.Duration) (json.RawMessage, error) {
	body, _, err := p.GetWithStatus(ctx, path, params, ttl)
	return body, err
}

// GetWithStatus is Get that also reports the HTTP status. Cache hits report 200.
func (p *Provider) GetWithStatus(ctx context.Context, path string, params url.Values, ttl time.Duration) (json.RawMessage, int, error) {
	key := CacheKey(path, params)
	if p.cache != nil && ttl > 0 {
		if cached, ok := p.cache.Get(ctx, key); ok {
			return json.RawMessage(cached), http.StatusOK, nil
		}
	}

	body, status, err := p.fetch(ctx, path, params)
	if err != nil || body == nil {
		return body, status, err
	}

	if p.cache != nil && ttl > 0 {
		if err := p.cache.Set(ctx, key, body, ttl); err != nil {
			p.logger.Warn("response cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return body, status, nil
}

// GetPaginated fetches up to maxPages pages of PageSize items. It stops early on
// a non-array body, an empty page or a short page.
func (p *Provider) GetPaginated(ctx context.Context, path string, params url.Values, maxPages int) ([]json.RawMessage, error) {
	var items []json.RawMessage
	for page := 1; page <= maxPages; page++ {
		pageParams := cloneValues(params)
		pageParams.Set("per_page", strconv.Itoa(PageSize))
		pageParams.Set("page", strconv.Itoa(page))

		body, err := p.Get(ctx, path, pageParams)
		if err != nil {
			return nil, err
		}
		if body == nil {
			break
		}

		var pageItems []json.RawMessage
		if err := json.Unmarshal(body, &pageItems); err != nil {
			break
		}
		if len(pageItems) == 0 {
			break
		}
		items = append(items, pageItems...)
		if len(pageItems) < PageSize {
			break
		}
	}
	return items, nil
}

// Invalidate drops cached responses whose key starts with prefix.
func (p *Provider) Invalidate(ctx context.Context, prefix string) error {
	if p.cache == nil {
		return nil
	}
	return p.cache.Invalidate(ctx, prefix)
}

// Clear drops every cached response.
func (p *Provider) Clear(ctx context.Context) error {
	if p.cache == nil {
		return nil
	}
	return p.cache.Clear(ctx)
}

// LastRateLimit returns the rate-limit headers of the most recent response.
func (p *Provider) LastRateLimit() RateLimitHeaders {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastRate
}

// CacheKey identifies a request by path and sorted query parameters. The "?"
// separator is always present so a path is never a prefix of a sibling path.
func CacheKey(path string, params url.Values) string {
	return "/" + strings.TrimPrefix(path, "/") + "?" + params.Encode()
}

// InvalidateRepo drops every cached response for one repository.
func (p *Provider) InvalidateRepo(ctx context.Context, owner, repo string) error {
	base := "/" + repoPath(owner, repo)
	if err := p.Invalidate(ctx, base+"?"); err != nil {
		return err
	}
	return p.Invalidate(ctx, base+"/")
}

func (p *Provider) fetch(ctx context.Context, path string, params url.Values) (json.RawMessage, int, error) {
	reqURL := p.cloneBaseURL()
	reqURL.Path = joinURLPath(reqURL.Path, path)
	if len(params) > 0 {
		reqURL.RawQuery = params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, 0, fmt.Errorf("build request %s: %w", path, err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("X-GitHub-Api-Version", APIVersion)

	resp, metadata, err := p.requestClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request %s: %w", path, err)
	}
	if resp == nil {
		return nil, 0, fmt.Errorf("request %s: empty response", path)
	}
	defer resp.Body.Close()
	if metadata.LastRateHeaders.Present() {
		p.mu.Lock()
		p.lastRate = metadata.LastRateHeaders
		p.mu.Unlock()
	}

	switch resp.StatusCode {
	case http.StatusAccepted, http.StatusNoContent, http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, resp.StatusCode, nil
	}

	payload, readErr := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, resp.StatusCode, &ProviderError{
			StatusCode: resp.StatusCode,
			Message:    errorMessage(payload),
		}
	}
	if readErr != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response %s: %w", path, readErr)
	}
	if len(strings.TrimSpace(string(payload))) == 0 {
		return nil, resp.StatusCode, nil
	}
	return json.RawMessage(payload), resp.StatusCode, nil
}

func (p *Provider) cloneBaseURL() *url.URL {
	cloned := *p.baseURL
	return &cloned
}

func errorMessage(payload []byte) string {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return ""
	}
	return strings.TrimSpace(body.Message)
}

func cloneValues(values url.Values) url.Values {
	cloned := make(url.Values, len(values))
	for key, list := range values {
		cloned[key] = append([]string(nil), list...)
	}
	return cloned
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
