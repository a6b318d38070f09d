package csdn

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"column-indexer/internal/metrics"
	"column-indexer/internal/model"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"
)

// Listing modes.
const (
	ModeAPI  = "api"
	ModeHTML = "html"
)

// Options configures a Client.
type Options struct {
	BaseURL       string
	Mode          string
	UserAgent     string
	Timeout       time.Duration
	RetryMax      int
	RatePerSecond float64
}

// Client fetches column listing pages from CSDN.
type Client struct {
	baseURL   string
	mode      string
	userAgent string
	client    *http.Client
	limiter   *rate.Limiter
}

func NewClient(opts Options) *Client {
	if strings.TrimSpace(opts.BaseURL) == "" {
		opts.BaseURL = "https://blog.csdn.net"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Mode == "" {
		opts.Mode = ModeAPI
	}
	r := retryablehttp.NewClient()
	r.RetryMax = opts.RetryMax
	r.RetryWaitMin = 200 * time.Millisecond
	r.RetryWaitMax = 2 * time.Second
	r.HTTPClient.Timeout = opts.Timeout
	r.Logger = slog.Default().With("component", "csdn-http")

	var limiter *rate.Limiter
	if opts.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), 1)
	}
	return &Client{
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		mode:      opts.Mode,
		userAgent: opts.UserAgent,
		client:    r.StandardClient(),
		limiter:   limiter,
	}
}

// listResponse mirrors the column article list API envelope.
type listResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    []struct {
		URL   string `json:"url"`
		Title string `json:"title"`
	} `json:"data"`
}

// FetchPage fetches one listing page.
// API: GET /phoenix/web/v1/column/article/list?columnId=&blogUsername=&page=&pageSize=
func (c *Client) FetchPage(ctx context.Context, req model.PageRequest) ([]model.ArticleRef, error) {
	if req.PageSize <= 0 {
		req.PageSize = model.PageSize
	}
	if req.Page < 1 {
		return nil, fmt.Errorf("csdn: invalid page %d", req.Page)
	}
	start := time.Now()
	var (
		refs []model.ArticleRef
		err  error
	)
	if c.mode == ModeHTML {
		refs, err = c.fetchHTML(ctx, req)
	} else {
		refs, err = c.fetchAPI(ctx, req)
	}
	metrics.PageFetchSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.PageFetches.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.PageFetches.WithLabelValues("ok").Inc()
	return refs, nil
}

func (c *Client) fetchAPI(ctx context.Context, req model.PageRequest) ([]model.ArticleRef, error) {
	q := url.Values{
		"columnId":     {req.Key.ColumnID},
		"blogUsername": {req.Key.Owner},
		"page":         {strconv.Itoa(req.Page)},
		"pageSize":     {strconv.Itoa(req.PageSize)},
	}
	endpoint := c.baseURL + "/phoenix/web/v1/column/article/list?" + q.Encode()
	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var raw listResponse
	if err := json.NewDecoder(body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("csdn: decode page %d of %s: %w", req.Page, req.Key, err)
	}
	if raw.Code != http.StatusOK {
		return nil, fmt.Errorf("csdn: page %d of %s: code=%d message=%s", req.Page, req.Key, raw.Code, raw.Message)
	}
	items := make([]model.ArticleRef, 0, len(raw.Data))
	for _, d := range raw.Data {
		u := strings.TrimSpace(d.URL)
		if u == "" {
			continue
		}
		items = append(items, model.ArticleRef{URL: u, Title: strings.TrimSpace(d.Title)})
	}
	return items, nil
}

// fetchHTML reads the server-rendered column page, e.g. /{owner}/category_{id}_{page}.html.
func (c *Client) fetchHTML(ctx context.Context, req model.PageRequest) ([]model.ArticleRef, error) {
	endpoint := fmt.Sprintf("%s/%s/category_%s_%d.html",
		c.baseURL, url.PathEscape(req.Key.Owner), url.PathEscape(req.Key.ColumnID), req.Page)
	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	refs, err := ParseListing(body)
	if err != nil {
		return nil, fmt.Errorf("csdn: parse page %d of %s: %w", req.Page, req.Key, err)
	}
	return refs, nil
}

func (c *Client) get(ctx context.Context, endpoint string) (io.ReadCloser, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if c.userAgent != "" {
		httpReq.Header.Set("User-Agent", c.userAgent)
	}
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("csdn: status=%d body=%s", resp.StatusCode, string(b))
	}
	return resp.Body, nil
}

// OpenArticle fetches a rendered article page. Relative paths are resolved
// against the base URL. The caller closes the body.
func (c *Client) OpenArticle(ctx context.Context, pageURL string) (io.ReadCloser, error) {
	u, err := url.Parse(strings.TrimSpace(pageURL))
	if err != nil {
		return nil, fmt.Errorf("csdn: article url: %w", err)
	}
	if !u.IsAbs() {
		base, err := url.Parse(c.baseURL + "/")
		if err != nil {
			return nil, err
		}
		u = base.ResolveReference(u)
	}
	return c.get(ctx, u.String())
}
