// Package carttest provides an in-memory storefront API for tests. It speaks
// the same wire format as the production backend: camelCase cart/order JSON,
// domain rejections as {"reason": "..."} with a 4xx status.
package carttest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/UrielMangisto/ShoppingWebsite-sub000/domain"
	"github.com/UrielMangisto/ShoppingWebsite-sub000/pkg/httputil"
	"github.com/UrielMangisto/ShoppingWebsite-sub000/pkg/pagination"
)

// Product is a catalog entry. Stock bounds the total quantity of the product
// across the cart.
type Product struct {
	ID        string
	UnitPrice int64
	Stock     int
}

type line struct {
	ID        string `json:"id"`
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unitPrice"`
}

type order struct {
	OrderID   string    `json:"orderId"`
	Status    string    `json:"status"`
	Lines     []line    `json:"lines"`
	Total     int64     `json:"total"`
	CreatedAt time.Time `json:"createdAt"`
}

// Server is a fake storefront backend. All exported methods are safe for
// concurrent use.
type Server struct {
	srv *httptest.Server

	authToken string
	pricing   domain.Pricing

	mu       sync.Mutex
	catalog  map[string]Product
	lines    []line
	version  int
	orders   []order
	nextID   int
	failNext []plannedFailure
	requests int
}

type plannedFailure struct {
	status int
	reason string
}

// Option configures the fake server.
type Option func(*Server)

// WithAuthToken makes the server require "Bearer <token>" on every request.
func WithAuthToken(token string) Option {
	return func(s *Server) { s.authToken = token }
}

// WithPricing sets the rules the server uses to total orders.
func WithPricing(p domain.Pricing) Option {
	return func(s *Server) { s.pricing = p }
}

// WithProducts seeds the catalog.
func WithProducts(products ...Product) Option {
	return func(s *Server) {
		for _, p := range products {
			s.catalog[p.ID] = p
		}
	}
}

// NewServer starts a fake storefront. Callers must Close it.
func NewServer(opts ...Option) *Server {
	s := &Server{
		catalog: make(map[string]Product),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(s.intercept)

	r.Route("/cart", func(r chi.Router) {
		r.Get("/", s.getCart)
		r.Post("/", s.createLine)
		r.Delete("/", s.clearCart)
		r.Put("/{lineID}", s.updateLine)
		r.Delete("/{lineID}", s.deleteLine)
	})
	r.Route("/orders", func(r chi.Router) {
		r.Post("/", s.createOrder)
		r.Get("/", s.listOrders)
		r.Get("/all/admin", s.listAllOrders)
		r.Get("/{orderID}", s.getOrder)
		r.Put("/{orderID}/status", s.updateOrderStatus)
	})

	s.srv = httptest.NewServer(r)
	return s
}

// URL returns the server's base URL.
func (s *Server) URL() string { return s.srv.URL }

// Close shuts the server down.
func (s *Server) Close() { s.srv.Close() }

// FailNext makes the next request fail with the given status and reason,
// regardless of its content. Calls stack in FIFO order.
func (s *Server) FailNext(status int, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = append(s.failNext, plannedFailure{status: status, reason: reason})
}

// Requests reports how many requests the server has handled.
func (s *Server) Requests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
}

// CartVersion returns the server-side cart version.
func (s *Server) CartVersion() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// SeedLine puts a line directly into the cart, bypassing stock checks.
func (s *Server) SeedLine(productID string, quantity int, unitPrice int64) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := fmt.Sprintf("line-%d", s.nextID)
	s.lines = append(s.lines, line{ID: id, ProductID: productID, Quantity: quantity, UnitPrice: unitPrice})
	s.version++
	return id
}

// SeedOrder puts an order directly into the order list.
func (s *Server) SeedOrder(status string, total int64) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := fmt.Sprintf("ord-%d", s.nextID)
	s.orders = append(s.orders, order{OrderID: id, Status: status, Total: total, CreatedAt: time.Now().UTC()})
	return id
}

func (s *Server) intercept(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests++
		var fail *plannedFailure
		if len(s.failNext) > 0 {
			f := s.failNext[0]
			s.failNext = s.failNext[1:]
			fail = &f
		}
		s.mu.Unlock()

		if fail != nil {
			writeReason(w, fail.status, fail.reason)
			return
		}

		if s.authToken != "" && r.Header.Get("Authorization") != "Bearer "+s.authToken {
			writeReason(w, http.StatusUnauthorized, "invalid or missing token")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) getCart(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"lines":   append([]line{}, s.lines...),
		"version": s.version,
	})
}

func (s *Server) createLine(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProductID string `json:"productId"`
		Quantity  int    `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ProductID == "" || req.Quantity < 1 {
		writeReason(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.catalog[req.ProductID]
	if !ok {
		writeReason(w, http.StatusNotFound, "product not found")
		return
	}
	if s.productQuantityLocked(req.ProductID)+req.Quantity > product.Stock {
		writeReason(w, http.StatusConflict, "insufficient stock")
		return
	}

	s.nextID++
	l := line{
		ID:        fmt.Sprintf("line-%d", s.nextID),
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
		UnitPrice: product.UnitPrice,
	}
	s.lines = append(s.lines, l)
	s.version++
	writeJSON(w, http.StatusCreated, l)
}

func (s *Server) updateLine(w http.ResponseWriter, r *http.Request) {
	lineID := chi.URLParam(r, "lineID")
	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Quantity < 1 {
		writeReason(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.findLineLocked(lineID)
	if idx < 0 {
		writeReason(w, http.StatusNotFound, "cart line not found")
		return
	}

	l := s.lines[idx]
	if product, ok := s.catalog[l.ProductID]; ok {
		others := s.productQuantityLocked(l.ProductID) - l.Quantity
		if others+req.Quantity > product.Stock {
			writeReason(w, http.StatusUnprocessableEntity, "stock limit exceeded")
			return
		}
	}

	s.lines[idx].Quantity = req.Quantity
	s.version++
	writeJSON(w, http.StatusOK, s.lines[idx])
}

func (s *Server) deleteLine(w http.ResponseWriter, r *http.Request) {
	lineID := chi.URLParam(r, "lineID")

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.findLineLocked(lineID)
	if idx < 0 {
		writeReason(w, http.StatusNotFound, "cart line not found")
		return
	}
	s.lines = append(s.lines[:idx], s.lines[idx+1:]...)
	s.version++
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) clearCart(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = nil
	s.version++
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) createOrder(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.lines) == 0 {
		writeReason(w, http.StatusConflict, "cart is empty")
		return
	}

	snap := domain.CartSnapshot{}
	for _, l := range s.lines {
		snap.Lines = append(snap.Lines, domain.CartLine{
			LineID: l.ID, ProductID: l.ProductID, Quantity: l.Quantity, UnitPrice: l.UnitPrice,
		})
	}
	totals := snap.ComputeTotals(s.pricing)

	s.nextID++
	ord := order{
		OrderID:   fmt.Sprintf("ord-%d", s.nextID),
		Status:    domain.OrderStatusPending,
		Lines:     append([]line{}, s.lines...),
		Total:     totals.Total,
		CreatedAt: time.Now().UTC(),
	}
	s.orders = append(s.orders, ord)
	s.lines = nil
	s.version++
	writeJSON(w, http.StatusCreated, ord)
}

func (s *Server) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, o := range s.orders {
		if o.OrderID == orderID {
			writeJSON(w, http.StatusOK, o)
			return
		}
	}
	writeReason(w, http.StatusNotFound, "order not found")
}

func (s *Server) listOrders(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, append([]order{}, s.orders...))
}

func (s *Server) listAllOrders(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	params := pagination.Params{Page: page, PerPage: perPage}.Normalize()

	s.mu.Lock()
	defer s.mu.Unlock()

	start := params.Offset()
	end := start + params.PerPage
	if start > len(s.orders) {
		start = len(s.orders)
	}
	if end > len(s.orders) {
		end = len(s.orders)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":        append([]order{}, s.orders[start:end]...),
		"total_count": len(s.orders),
	})
}

func (s *Server) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")
	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !domain.IsValidStatus(req.Status) {
		writeReason(w, http.StatusBadRequest, "invalid status")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.orders {
		if s.orders[i].OrderID == orderID {
			s.orders[i].Status = req.Status
			writeJSON(w, http.StatusOK, s.orders[i])
			return
		}
	}
	writeReason(w, http.StatusNotFound, "order not found")
}

func (s *Server) findLineLocked(lineID string) int {
	for i := range s.lines {
		if s.lines[i].ID == lineID {
			return i
		}
	}
	return -1
}

func (s *Server) productQuantityLocked(productID string) int {
	total := 0
	for _, l := range s.lines {
		if l.ProductID == productID {
			total += l.Quantity
		}
	}
	return total
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	httputil.WriteJSON(w, status, v)
}

func writeReason(w http.ResponseWriter, status int, reason string) {
	httputil.WriteReason(w, status, reason)
}
