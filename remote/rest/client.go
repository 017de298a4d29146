// Package rest implements remote.Store over the storefront REST API.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/UrielMangisto/ShoppingWebsite-sub000/domain"
	apperrors "github.com/UrielMangisto/ShoppingWebsite-sub000/pkg/errors"
	"github.com/UrielMangisto/ShoppingWebsite-sub000/pkg/httpclient"
	"github.com/UrielMangisto/ShoppingWebsite-sub000/pkg/pagination"
	"github.com/UrielMangisto/ShoppingWebsite-sub000/remote"
)

// HTTPDoer is the interface for executing HTTP requests.
// Both httpclient.Client and httpclient.CircuitBreakerClient satisfy this.
type HTTPDoer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Config holds the REST client configuration.
type Config struct {
	// BaseURL of the storefront API, e.g. "https://shop.example.com/api".
	BaseURL string

	// Doer executes requests; wrap with a circuit breaker in production.
	Doer HTTPDoer

	// Tokens supplies the bearer token; nil means unauthenticated requests.
	Tokens TokenSource

	// RequestsPerSecond caps outgoing request rate (client-side politeness
	// quota). Zero or negative disables the limit.
	RequestsPerSecond float64

	// Burst is the limiter burst size; ignored when rate limiting is disabled.
	Burst int

	Logger *slog.Logger
}

// Client implements remote.Store over HTTP.
type Client struct {
	baseURL string
	doer    HTTPDoer
	tokens  TokenSource
	limiter *rate.Limiter
	logger  *slog.Logger
}

var _ remote.Store = (*Client)(nil)

// New creates a REST-backed remote store.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("rest: base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("rest: invalid base URL: %w", err)
	}

	doer := cfg.Doer
	if doer == nil {
		doer = httpclient.New(httpclient.DefaultConfig())
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL: cfg.BaseURL,
		doer:    doer,
		tokens:  cfg.Tokens,
		limiter: limiter,
		logger:  logger,
	}, nil
}

// --- Wire DTOs (camelCase, as served by the storefront API) ---

type wireLine struct {
	ID        string `json:"id"`
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unitPrice"`
}

func (w wireLine) toDomain() domain.CartLine {
	return domain.CartLine{
		LineID:    w.ID,
		ProductID: w.ProductID,
		Quantity:  w.Quantity,
		UnitPrice: w.UnitPrice,
	}
}

type wireCart struct {
	Lines   []wireLine `json:"lines"`
	Version int        `json:"version"`
}

type wireOrder struct {
	OrderID   string     `json:"orderId"`
	Status    string     `json:"status"`
	Lines     []wireLine `json:"lines"`
	Total     int64      `json:"total"`
	CreatedAt time.Time  `json:"createdAt,omitempty"`
}

func (w wireOrder) toDomain() domain.Order {
	lines := make([]domain.CartLine, len(w.Lines))
	for i, l := range w.Lines {
		lines[i] = l.toDomain()
	}
	return domain.Order{
		OrderID:   w.OrderID,
		Status:    w.Status,
		Lines:     lines,
		Total:     w.Total,
		CreatedAt: w.CreatedAt,
	}
}

type wireOrderList struct {
	Data       []wireOrder `json:"data"`
	TotalCount int         `json:"total_count"`
}

// --- Store implementation ---

// FetchCart implements remote.Store.
func (c *Client) FetchCart(ctx context.Context) (domain.CartSnapshot, error) {
	var cart wireCart
	if err := c.do(ctx, http.MethodGet, "/cart", nil, &cart, "fetch cart", http.StatusOK); err != nil {
		return domain.CartSnapshot{}, err
	}

	snap := domain.CartSnapshot{Version: cart.Version, Lines: make([]domain.CartLine, len(cart.Lines))}
	for i, l := range cart.Lines {
		snap.Lines[i] = l.toDomain()
	}
	return snap, nil
}

// CreateLine implements remote.Store.
func (c *Client) CreateLine(ctx context.Context, productID string, quantity int) (domain.CartLine, error) {
	body := map[string]any{"productId": productID, "quantity": quantity}
	var line wireLine
	if err := c.do(ctx, http.MethodPost, "/cart", body, &line, "create line", http.StatusCreated, http.StatusOK); err != nil {
		return domain.CartLine{}, err
	}
	return line.toDomain(), nil
}

// UpdateLine implements remote.Store.
func (c *Client) UpdateLine(ctx context.Context, lineID string, quantity int) (domain.CartLine, error) {
	body := map[string]any{"quantity": quantity}
	var line wireLine
	if err := c.do(ctx, http.MethodPut, "/cart/"+url.PathEscape(lineID), body, &line, "update line", http.StatusOK); err != nil {
		return domain.CartLine{}, err
	}
	return line.toDomain(), nil
}

// DeleteLine implements remote.Store.
func (c *Client) DeleteLine(ctx context.Context, lineID string) error {
	return c.do(ctx, http.MethodDelete, "/cart/"+url.PathEscape(lineID), nil, nil, "delete line", http.StatusNoContent, http.StatusOK)
}

// ClearCart implements remote.Store.
func (c *Client) ClearCart(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/cart", nil, nil, "clear cart", http.StatusNoContent, http.StatusOK)
}

// CreateOrder implements remote.Store.
func (c *Client) CreateOrder(ctx context.Context) (domain.Order, error) {
	var order wireOrder
	if err := c.do(ctx, http.MethodPost, "/orders", nil, &order, "create order", http.StatusCreated, http.StatusOK); err != nil {
		return domain.Order{}, err
	}
	return order.toDomain(), nil
}

// GetOrder implements remote.Store.
func (c *Client) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	var order wireOrder
	if err := c.do(ctx, http.MethodGet, "/orders/"+url.PathEscape(orderID), nil, &order, "get order", http.StatusOK); err != nil {
		return domain.Order{}, err
	}
	return order.toDomain(), nil
}

// ListOrders implements remote.Store.
func (c *Client) ListOrders(ctx context.Context) ([]domain.Order, error) {
	var list []wireOrder
	if err := c.do(ctx, http.MethodGet, "/orders", nil, &list, "list orders", http.StatusOK); err != nil {
		return nil, err
	}
	orders := make([]domain.Order, len(list))
	for i, o := range list {
		orders[i] = o.toDomain()
	}
	return orders, nil
}

// ListAllOrders implements remote.Store.
func (c *Client) ListAllOrders(ctx context.Context, params pagination.Params) (pagination.Result[domain.Order], error) {
	params = params.Normalize()
	path := "/orders/all/admin?page=" + strconv.Itoa(params.Page) + "&per_page=" + strconv.Itoa(params.PerPage)

	var list wireOrderList
	if err := c.do(ctx, http.MethodGet, path, nil, &list, "list all orders", http.StatusOK); err != nil {
		return pagination.Result[domain.Order]{}, err
	}

	orders := make([]domain.Order, len(list.Data))
	for i, o := range list.Data {
		orders[i] = o.toDomain()
	}
	return pagination.NewResult(orders, list.TotalCount, params), nil
}

// UpdateOrderStatus implements remote.Store.
func (c *Client) UpdateOrderStatus(ctx context.Context, orderID, status string) (domain.Order, error) {
	if !domain.IsValidStatus(status) {
		return domain.Order{}, apperrors.InvalidInput(fmt.Sprintf("unknown order status %q", status))
	}

	body := map[string]any{"status": status}
	var order wireOrder
	if err := c.do(ctx, http.MethodPut, "/orders/"+url.PathEscape(orderID)+"/status", body, &order, "update order status", http.StatusOK); err != nil {
		return domain.Order{}, err
	}
	return order.toDomain(), nil
}

// do builds, rate-limits, authenticates, and executes one request, decoding
// the JSON body into out (when non-nil) if the status is one of expected.
// Non-expected statuses are translated via httpclient.ParseResponseError.
func (c *Client) do(ctx context.Context, method, path string, body any, out any, operation string, expected ...int) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return apperrors.Network(fmt.Errorf("%s: rate limiter: %w", operation, err))
	}

	var reqBody *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: marshal request: %w", operation, err)
		}
		reqBody = bytes.NewReader(raw)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", operation, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			// Typically an expired session; surfaced before any network I/O.
			return err
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.doer.Do(ctx, req)
	if err != nil {
		return apperrors.Network(fmt.Errorf("%s: %w", operation, err))
	}

	for _, want := range expected {
		if resp.StatusCode == want {
			defer func() { _ = resp.Body.Close() }()
			if out == nil {
				return nil
			}
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return apperrors.Network(fmt.Errorf("%s: decode response: %w", operation, err))
			}
			return nil
		}
	}

	return httpclient.ParseResponseError(resp, operation)
}
