package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "https://graph.facebook.com"
	defaultVersion = "v19.0"
	defaultTimeout = 30 * time.Second

	// maxPageBatches bounds how many /me/accounts pages are followed.
	maxPageBatches = 10
	// maxResponseBytes caps how much of a response body is read.
	maxResponseBytes = 1 << 20
)

var (
	graphTracer      = otel.Tracer("codenetic/graph")
	graphMeter       = otel.Meter("codenetic/graph")
	graphRequests, _ = graphMeter.Int64Counter("graph.client.requests",
		metric.WithDescription("Graph API calls by operation and outcome"),
	)
)

// Config holds the app credentials and transport settings for the client.
type Config struct {
	BaseURL           string
	Version           string
	AppID             string
	AppSecret         string
	RequestsPerSecond float64
	Burst             int
	Timeout           time.Duration
}

// Client talks to the Graph API. Credentials travel in the query string for
// GETs and in a form-encoded body for POSTs.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
	version    string
	appID      string
	appSecret  string
}

var _ ClientInterface = (*Client)(nil)

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Version == "" {
		cfg.Version = defaultVersion
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &Client{
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		limiter:   rate.NewLimiter(limit, burst),
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		version:   cfg.Version,
		appID:     cfg.AppID,
		appSecret: cfg.AppSecret,
	}
}

// URL builds an absolute Graph URL for a versioned relative path.
func (c *Client) URL(relative string, query url.Values) string {
	u := c.baseURL + "/" + c.version + "/" + strings.TrimLeft(relative, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// ExchangeLongLivedToken trades a short-lived user token for a long-lived one.
func (c *Client) ExchangeLongLivedToken(ctx context.Context, shortLived string) (*Token, error) {
	q := url.Values{}
	q.Set("grant_type", "fb_exchange_token")
	q.Set("client_id", c.appID)
	q.Set("client_secret", c.appSecret)
	q.Set("fb_exchange_token", shortLived)

	var token Token
	if err := c.get(ctx, "exchange_token", "oauth/access_token", q, &token); err != nil {
		return nil, fmt.Errorf("long-lived token exchange failed: %w", err)
	}
	if token.AccessToken == "" {
		return nil, errors.New("long-lived token exchange returned no access token")
	}
	return &token, nil
}

// ListPages returns every page the user manages, following cursor pagination.
func (c *Client) ListPages(ctx context.Context, userToken string) ([]Page, error) {
	q := url.Values{}
	q.Set("access_token", userToken)
	q.Set("fields", "id,name,access_token")

	var pages []Page
	for i := 0; i < maxPageBatches; i++ {
		var resp pagesResponse
		if err := c.get(ctx, "list_pages", "me/accounts", q, &resp); err != nil {
			return nil, fmt.Errorf("failed to list pages: %w", err)
		}
		pages = append(pages, resp.Data...)

		if resp.Paging.Next == "" || resp.Paging.Cursors.After == "" {
			break
		}
		q.Set("after", resp.Paging.Cursors.After)
	}
	return pages, nil
}

// GetPageBusinessAccount returns the Instagram business account linked to a
// page, or "" when the page has none.
func (c *Client) GetPageBusinessAccount(ctx context.Context, pageID, pageToken string) (string, error) {
	q := url.Values{}
	q.Set("fields", "instagram_business_account")
	q.Set("access_token", pageToken)

	var resp pageAccountResponse
	if err := c.get(ctx, "page_business_account", url.PathEscape(pageID), q, &resp); err != nil {
		return "", fmt.Errorf("failed to look up business account for page %s: %w", pageID, err)
	}
	if resp.InstagramBusinessAccount == nil {
		return "", nil
	}
	return resp.InstagramBusinessAccount.ID, nil
}

func (c *Client) GetAccountProfile(ctx context.Context, igUserID, pageToken string) (*AccountProfile, error) {
	q := url.Values{}
	q.Set("fields", "username,profile_picture_url")
	q.Set("access_token", pageToken)

	var profile AccountProfile
	if err := c.get(ctx, "account_profile", url.PathEscape(igUserID), q, &profile); err != nil {
		return nil, fmt.Errorf("failed to fetch account %s: %w", igUserID, err)
	}
	return &profile, nil
}

// CreateMediaContainer registers media with Instagram and returns the container id.
// Videos are published as reels.
func (c *Client) CreateMediaContainer(ctx context.Context, igUserID, token string, params MediaParams) (string, error) {
	form := url.Values{}
	form.Set("access_token", token)
	form.Set("caption", params.Caption)
	switch params.Kind {
	case MediaVideo:
		form.Set("video_url", params.MediaURL)
		form.Set("media_type", "REELS")
	default:
		form.Set("image_url", params.MediaURL)
	}

	var resp idResponse
	if err := c.post(ctx, "create_container", url.PathEscape(igUserID)+"/media", form, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", errors.New("media container response carried no id")
	}
	return resp.ID, nil
}

// GetContainerStatus reports the processing state of a container together with
// the provider's free-text status, which explains ERROR states.
func (c *Client) GetContainerStatus(ctx context.Context, containerID, token string) (ContainerStatus, string, error) {
	q := url.Values{}
	q.Set("fields", "status_code,status")
	q.Set("access_token", token)

	var resp containerStatusResponse
	if err := c.get(ctx, "container_status", url.PathEscape(containerID), q, &resp); err != nil {
		return "", "", err
	}
	return resp.StatusCode, resp.Status, nil
}

func (c *Client) PublishContainer(ctx context.Context, igUserID, token, containerID string) (string, error) {
	form := url.Values{}
	form.Set("creation_id", containerID)
	form.Set("access_token", token)

	var resp idResponse
	if err := c.post(ctx, "publish_container", url.PathEscape(igUserID)+"/media_publish", form, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", errors.New("media publish response carried no id")
	}
	return resp.ID, nil
}

func (c *Client) get(ctx context.Context, op, relative string, query url.Values, out any) error {
	return c.do(ctx, op, http.MethodGet, c.URL(relative, query), nil, out)
}

func (c *Client) post(ctx context.Context, op, relative string, form url.Values, out any) error {
	return c.do(ctx, op, http.MethodPost, c.URL(relative, nil), form, out)
}

func (c *Client) do(ctx context.Context, op, method, endpoint string, form url.Values, out any) (err error) {
	ctx, span := graphTracer.Start(ctx, "graph."+op, trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("http.method", method)))
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		graphRequests.Add(ctx, 1, metric.WithAttributes(
			attribute.String("operation", op),
			attribute.String("outcome", outcome),
		))
		span.End()
	}()

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("graph request failed: %w", redactURLError(err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	// The provider sometimes reports failures inside a 200 body.
	if apiErr := ParseError(resp.StatusCode, data); apiErr != nil {
		return apiErr
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// redactURLError drops the request URL, which carries access tokens, from
// transport errors before they are logged or returned.
func redactURLError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%s: %w", urlErr.Op, urlErr.Err)
	}
	return err
}
