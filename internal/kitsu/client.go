package kitsu

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

	"golang.org/x/time/rate"

	"kitsusync/internal/services"
)

const mediaTypeJSONAPI = "application/vnd.api+json"

// resource models the minimal JSON:API resource envelope used for id and
// relationship extraction. Full payloads are passed through verbatim.
type resource struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

type listResponse struct {
	Data     []resource `json:"data"`
	Included []resource `json:"included"`
	Links    struct {
		Next string `json:"next"`
	} `json:"links"`
}

// Catalog defines the Kitsu operations the pipeline consumes.
type Catalog interface {
	FetchAnime(ctx context.Context, id string) (json.RawMessage, error)
	FindUserID(ctx context.Context, name string) (string, error)
	ListLibraryAnimeIDs(ctx context.Context, userID string) ([]string, error)
}

// Client provides access to the Kitsu catalog API.
type Client struct {
	baseURL    string
	pageLimit  int
	httpClient *http.Client
	limiter    *rate.Limiter
}

var _ Catalog = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRatePerMinute caps outbound requests. Zero or negative disables the limiter.
func WithRatePerMinute(perMinute int) Option {
	return func(c *Client) {
		if perMinute > 0 {
			c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
		} else {
			c.limiter = nil
		}
	}
}

// WithPageLimit sets the page size for listing endpoints. Kitsu caps pages at 20.
func WithPageLimit(limit int) Option {
	return func(c *Client) {
		if limit > 0 && limit <= 20 {
			c.pageLimit = limit
		}
	}
}

// New creates a Kitsu client.
func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("kitsu base url required")
	}
	client := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		pageLimit:  20,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(rate.Every(time.Second), 1),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// FetchAnime performs exactly one network round trip for the given catalog id
// and returns the raw response body verbatim. It never retries and never
// caches; both are the caller's responsibility.
func (c *Client) FetchAnime(ctx context.Context, id string) (json.RawMessage, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, services.Wrap(services.ErrValidation, "kitsu", "fetch", "entity id must not be empty", nil)
	}

	body, err := c.get(ctx, fmt.Sprintf("%s/anime/%s", c.baseURL, url.PathEscape(id)), nil)
	if err != nil {
		return nil, err
	}

	// Reject bodies that are not a JSON:API document before they reach the
	// cache; a truncated or HTML error body must not be stored as a record.
	var probe struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &probe); err != nil || len(probe.Data) == 0 {
		return nil, services.Wrap(services.ErrPermanent, "kitsu", "fetch", fmt.Sprintf("malformed response for id %s", id), err)
	}

	return json.RawMessage(body), nil
}

// FindUserID resolves a Kitsu username to its user id.
func (c *Client) FindUserID(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", services.Wrap(services.ErrValidation, "kitsu", "find user", "username must not be empty", nil)
	}

	params := url.Values{}
	params.Set("filter[name]", name)
	params.Set("fields[users]", "id")

	body, err := c.get(ctx, c.baseURL+"/users", params)
	if err != nil {
		return "", err
	}

	var payload listResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", services.Wrap(services.ErrPermanent, "kitsu", "find user", "malformed user response", err)
	}
	if len(payload.Data) == 0 {
		return "", services.Wrap(services.ErrPermanent, "kitsu", "find user", fmt.Sprintf("no user named %q", name), nil)
	}
	return payload.Data[0].ID, nil
}

// ListLibraryAnimeIDs walks the paginated library-entries listing for a user
// and returns the anime ids it references.
func (c *Client) ListLibraryAnimeIDs(ctx context.Context, userID string) ([]string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, services.Wrap(services.ErrValidation, "kitsu", "list library", "user id must not be empty", nil)
	}

	var ids []string
	seen := make(map[string]struct{})
	offset := 0

	for {
		params := url.Values{}
		params.Set("filter[userId]", userID)
		params.Set("filter[kind]", "anime")
		params.Set("include", "anime")
		params.Set("fields[anime]", "id")
		params.Set("page[limit]", strconv.Itoa(c.pageLimit))
		params.Set("page[offset]", strconv.Itoa(offset))

		body, err := c.get(ctx, c.baseURL+"/library-entries", params)
		if err != nil {
			return nil, err
		}

		var payload listResponse
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, services.Wrap(services.ErrPermanent, "kitsu", "list library", "malformed library response", err)
		}

		for _, inc := range payload.Included {
			if inc.Type != "anime" || inc.ID == "" {
				continue
			}
			if _, ok := seen[inc.ID]; ok {
				continue
			}
			seen[inc.ID] = struct{}{}
			ids = append(ids, inc.ID)
		}

		if len(payload.Data) < c.pageLimit || payload.Links.Next == "" {
			return ids, nil
		}
		offset += c.pageLimit
	}
}

// get issues a single rate-limited request and classifies failures.
func (c *Client) get(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "kitsu", "request", "parse url", err)
	}
	if params != nil {
		parsed.RawQuery = params.Encode()
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "kitsu", "request", "build request", err)
	}
	req.Header.Set("Accept", mediaTypeJSONAPI)

	requestStart := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(requestStart)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, services.Wrap(services.ErrTransient, "kitsu", "request",
			fmt.Sprintf("execute request (latency=%v)", latency), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp, latency)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "kitsu", "request", "read response body", err)
	}
	return body, nil
}

func classifyStatus(resp *http.Response, latency time.Duration) error {
	detail := fmt.Sprintf("kitsu returned %d (latency=%v)", resp.StatusCode, latency)
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		if delay := retryAfter(resp); delay > 0 {
			return &services.RetryAfterError{
				Delay: delay,
				Err: services.Wrap(services.ErrTransient, "kitsu", "request",
					fmt.Sprintf("%s, retry after %v", detail, delay), nil),
			}
		}
		return services.Wrap(services.ErrTransient, "kitsu", "request", detail, nil)
	case resp.StatusCode == http.StatusRequestTimeout, resp.StatusCode >= 500:
		return services.Wrap(services.ErrTransient, "kitsu", "request", detail, nil)
	default:
		// 404 and other 4xx: retrying cannot help.
		return services.Wrap(services.ErrPermanent, "kitsu", "request", detail, nil)
	}
}

func retryAfter(resp *http.Response) time.Duration {
	value := strings.TrimSpace(resp.Header.Get("Retry-After"))
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return 0
}
