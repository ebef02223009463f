package woocommerce

import (
	"bytes"
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

	"storefront/internal/metrics"
	"storefront/internal/model"
	"storefront/internal/transport"
)

// apiPath is the base path for the backend REST API.
const apiPath = "/wp-json/wc/v3"

// Request timeouts. Order mutations get the long timeout because the
// backend is slow under load; exploratory lookups degrade to "not found"
// quickly instead of holding up checkout.
const (
	orderTimeout  = 30 * time.Second
	lookupTimeout = 5 * time.Second
	scrapeTimeout = 5 * time.Second
	warmupTimeout = 3 * time.Second
)

// Browser-shaped headers for the hosted pay-for-order page. Server-side
// gateway plugins only generate their redirect URL for what looks like a
// real storefront visit.
const browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Config holds backend connection settings.
type Config struct {
	// BaseURL may end in "/wp" for subdirectory installs; the suffix is
	// folded into the API path prefix.
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
}

// Client talks to the commerce backend REST API with basic-auth
// credentials. A Client with absent credentials is still constructible -
// every call then fails with the unconfigured error before any HTTP I/O,
// which handlers surface as service-unavailable.
type Client struct {
	httpClient   *http.Client
	scrapeClient *http.Client
	baseURL      string // scheme://host, no trailing slash, no /wp suffix
	pathPrefix   string // "/wp" for subdirectory installs, else ""
	host         string
	consumerKey  string
	secret       string
}

// New creates a backend client, normalizing the base URL's install-layout
// quirk: "https://shop.example.com/wp" becomes base "https://shop.example.com"
// with every API and page path prefixed by "/wp".
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("backend base URL is required")
	}

	base := strings.TrimSuffix(cfg.BaseURL, "/")
	prefix := ""
	if strings.HasSuffix(base, "/wp") {
		base = strings.TrimSuffix(base, "/wp")
		prefix = "/wp"
	}

	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid backend base URL: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid backend base URL: no host in %q", cfg.BaseURL)
	}

	// Page scrapes go through the browser-fingerprint transport so CDN
	// bot detection and gateway plugins see a Chrome-like client. Plain
	// HTTP (local dev, tests) keeps the default transport since the
	// fingerprint only exists at the TLS layer.
	scrape := &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	if u.Scheme == "https" {
		scrape.Transport = transport.NewBrowserTransport(scrapeTimeout)
	}

	return &Client{
		httpClient:   &http.Client{},
		scrapeClient: scrape,
		baseURL:      base,
		pathPrefix:   prefix,
		host:         u.Host,
		consumerKey:  cfg.ConsumerKey,
		secret:       cfg.ConsumerSecret,
	}, nil
}

// Host returns the backend host, used to classify candidate payment URLs
// as gateway (off-host) or backend page (same host).
func (c *Client) Host() string {
	return c.host
}

// Configured reports whether credentials are present.
func (c *Client) Configured() bool {
	return c.consumerKey != "" && c.secret != ""
}

// === Order operations ===

// CreateOrder creates an order. No retry here: retry policy is the
// orchestrator's responsibility.
func (c *Client) CreateOrder(ctx context.Context, req *WooOrderRequest) (*WooOrder, error) {
	var order WooOrder
	if err := c.doJSON(ctx, http.MethodPost, "/orders", req, &order, orderTimeout, "create_order"); err != nil {
		return nil, err
	}
	order.NormalizeBilling()
	return &order, nil
}

// UpdateOrder patches an order (status, payment method, metadata).
func (c *Client) UpdateOrder(ctx context.Context, orderID int, patch *WooOrderUpdate) (*WooOrder, error) {
	var order WooOrder
	path := "/orders/" + strconv.Itoa(orderID)
	if err := c.doJSON(ctx, http.MethodPut, path, patch, &order, orderTimeout, "update_order"); err != nil {
		return nil, err
	}
	order.NormalizeBilling()
	return &order, nil
}

// FetchOrder retrieves an order. When orderKey is non-empty it is checked
// against the order's capability key; a mismatch is forbidden, never a
// silently-wrong order view.
func (c *Client) FetchOrder(ctx context.Context, orderID int, orderKey string) (*WooOrder, error) {
	var order WooOrder
	path := "/orders/" + strconv.Itoa(orderID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &order, orderTimeout, "fetch_order"); err != nil {
		return nil, err
	}
	if orderKey != "" {
		if actual := order.Key(); actual != "" && actual != orderKey {
			return nil, model.NewInvalidKeyError()
		}
	}
	order.NormalizeBilling()
	return &order, nil
}

// === Gateway operations ===

// ListPaymentGateways returns the enabled payment gateways. The backend
// returns either a JSON array or a map keyed by gateway id; both shapes
// normalize to the same list.
func (c *Client) ListPaymentGateways(ctx context.Context) ([]model.Gateway, error) {
	var raw json.RawMessage
	if err := c.doJSON(ctx, http.MethodGet, "/payment_gateways", nil, &raw, lookupTimeout, "list_gateways"); err != nil {
		return nil, err
	}

	gateways, err := normalizeGateways(raw)
	if err != nil {
		return nil, model.NewParseError("list_gateways", err)
	}

	enabled := gateways[:0]
	for _, g := range gateways {
		if g.Enabled {
			enabled = append(enabled, g)
		}
	}
	return enabled, nil
}

// normalizeGateways accepts both response shapes and produces a uniform list.
func normalizeGateways(raw json.RawMessage) ([]model.Gateway, error) {
	var asList []WooGateway
	if err := json.Unmarshal(raw, &asList); err == nil {
		return toGateways(asList, nil), nil
	}

	var asMap map[string]WooGateway
	if err := json.Unmarshal(raw, &asMap); err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(asMap))
	list := make([]WooGateway, 0, len(asMap))
	for k, g := range asMap {
		keys = append(keys, k)
		list = append(list, g)
	}
	return toGateways(list, keys), nil
}

func toGateways(raw []WooGateway, mapKeys []string) []model.Gateway {
	out := make([]model.Gateway, 0, len(raw))
	for i, g := range raw {
		id := g.ID
		if id == "" && mapKeys != nil {
			id = mapKeys[i]
		}
		title := g.DisplayTitle()
		if title == "" {
			title = id
		}
		desc := g.Description
		if desc == "" {
			desc = g.MethodDescription
		}
		out = append(out, model.Gateway{
			ID:          id,
			Title:       title,
			Description: desc,
			Enabled:     g.IsEnabled(),
		})
	}
	return out
}

// FetchGateway fetches a single gateway, used to resolve the
// human-readable method title at order time.
func (c *Client) FetchGateway(ctx context.Context, gatewayID string) (*model.Gateway, error) {
	var g WooGateway
	path := "/payment_gateways/" + url.PathEscape(gatewayID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &g, lookupTimeout, "fetch_gateway"); err != nil {
		return nil, err
	}
	if g.ID == "" {
		g.ID = gatewayID
	}
	return &model.Gateway{
		ID:          g.ID,
		Title:       g.DisplayTitle(),
		Description: g.Description,
		Enabled:     g.IsEnabled(),
	}, nil
}

// === Product operations ===

// FetchProductImage returns the first image URL of a backend product.
// Purely cosmetic: any failure returns "" rather than an error.
func (c *Client) FetchProductImage(ctx context.Context, productID int) string {
	var product WooProduct
	path := "/products/" + strconv.Itoa(productID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &product, lookupTimeout, "fetch_product"); err != nil {
		return ""
	}
	if len(product.Images) > 0 {
		return product.Images[0].Src
	}
	return ""
}

// === Pay-for-order page ===

// PayForOrderURL constructs the backend's hosted pay-for-order page URL.
// This is the guaranteed fallback redirect whenever an order key is known.
func (c *Client) PayForOrderURL(orderID int, orderKey string) string {
	return fmt.Sprintf("%s%s/checkout/order-pay/%d/?pay_for_order=true&key=%s",
		c.baseURL, c.pathPrefix, orderID, url.QueryEscape(orderKey))
}

// ParsePayForOrderURL recovers (orderID, orderKey) from a pay-for-order
// URL. ok is false when the URL does not match the expected shape.
func ParsePayForOrderURL(raw string) (orderID int, orderKey string, ok bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return 0, "", false
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i, p := range parts {
		if p == "order-pay" && i+1 < len(parts) {
			id, err := strconv.Atoi(parts[i+1])
			if err != nil {
				return 0, "", false
			}
			key := u.Query().Get("key")
			if key == "" {
				return 0, "", false
			}
			return id, key, true
		}
	}
	return 0, "", false
}

// FetchOrderPayPage retrieves the hosted pay-for-order page without
// following redirects, so the resolver can inspect both the Location
// header and the HTML body for gateway URLs.
func (c *Client) FetchOrderPayPage(ctx context.Context, orderID int, orderKey string) (*PayPage, error) {
	ctx, cancel := context.WithTimeout(ctx, scrapeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.PayForOrderURL(orderID, orderKey), nil)
	if err != nil {
		return nil, fmt.Errorf("creating pay-page request: %w", err)
	}
	c.setBrowserHeaders(req)

	resp, err := c.scrapeClient.Do(req)
	if err != nil {
		metrics.BackendRequests.WithLabelValues("pay_page", "error").Inc()
		return nil, classifyTransportError("pay_page", err)
	}
	defer resp.Body.Close()

	// Pages can be large; cap the scan window.
	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		metrics.BackendRequests.WithLabelValues("pay_page", "error").Inc()
		return nil, model.NewNetworkError(err)
	}

	metrics.BackendRequests.WithLabelValues("pay_page", "ok").Inc()
	return &PayPage{
		StatusCode: resp.StatusCode,
		Location:   resp.Header.Get("Location"),
		Body:       string(body),
	}, nil
}

// WarmOrderPayPage fires a best-effort GET at the pay-for-order page to
// nudge the backend's gateway plugin into generating its redirect URL and
// writing it to order metadata. All failures are ignored; warm-up must
// never block or fail order creation.
func (c *Client) WarmOrderPayPage(ctx context.Context, orderID int, orderKey string) {
	ctx, cancel := context.WithTimeout(ctx, warmupTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.PayForOrderURL(orderID, orderKey), nil)
	if err != nil {
		return
	}
	c.setBrowserHeaders(req)

	resp, err := c.scrapeClient.Do(req)
	if err != nil {
		metrics.BackendRequests.WithLabelValues("warmup", "error").Inc()
		return
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	resp.Body.Close()
	metrics.BackendRequests.WithLabelValues("warmup", "ok").Inc()
}

// setBrowserHeaders makes the request look like a real storefront visit.
func (c *Client) setBrowserHeaders(req *http.Request) {
	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Referer", c.baseURL+c.pathPrefix+"/checkout/")
	req.Header.Set("Origin", c.baseURL)
}

// === Request plumbing ===

// doJSON executes an authenticated JSON request against the backend API
// and decodes the response into out. Every call checks configuration
// first: absent credentials fail before any HTTP I/O.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out interface{}, timeout time.Duration, op string) error {
	if !c.Configured() {
		metrics.BackendRequests.WithLabelValues(op, "unconfigured").Inc()
		return model.NewConfigurationError()
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	fullURL := c.baseURL + c.pathPrefix + apiPath + path
	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.SetBasicAuth(c.consumerKey, c.secret)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.BackendRequests.WithLabelValues(op, "error").Inc()
		return classifyTransportError(op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.BackendRequests.WithLabelValues(op, "error").Inc()
		return model.NewNetworkError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.BackendRequests.WithLabelValues(op, strconv.Itoa(resp.StatusCode)).Inc()
		return c.statusError(resp.StatusCode, respBody)
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			metrics.BackendRequests.WithLabelValues(op, "parse_error").Inc()
			return model.NewParseError(op, err)
		}
	}

	metrics.BackendRequests.WithLabelValues(op, "ok").Inc()
	return nil
}

// classifyTransportError maps connection failures into the taxonomy:
// deadline exhaustion is a timeout, everything else a network error.
func classifyTransportError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return model.NewTimeoutError(op)
	}
	var uerr *url.Error
	if errors.As(err, &uerr) && uerr.Timeout() {
		return model.NewTimeoutError(op)
	}
	return model.NewNetworkError(err)
}

// statusError converts a non-2xx response into a typed error. Error
// bodies are only ever kept as a bounded preview.
func (c *Client) statusError(statusCode int, body []byte) error {
	var wcErr WooErrorResponse
	json.Unmarshal(body, &wcErr) // best effort

	switch statusCode {
	case 404:
		return model.NewNotFoundError("order")
	case 400:
		msg := wcErr.Message
		if msg == "" {
			msg = "invalid request"
		}
		return model.NewValidationError("request", msg)
	default:
		preview := wcErr.Message
		if preview == "" {
			preview = model.Preview(body)
		}
		return model.NewUpstreamError(statusCode, preview)
	}
}
