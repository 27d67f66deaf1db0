package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"github.com/shopspring/decimal"

	"github.com/rl1809/biosalim/internal/core/domain"
	"github.com/rl1809/biosalim/internal/core/service"
)

const (
	sessionName   = "biosalim_session"
	sessionCartID = "cart_id"
	sessionAdmin  = "admin"
)

// Recorder receives business and request metrics.
type Recorder interface {
	ObserveRequest(method, route string, code int, elapsed time.Duration)
	OrderSubmitted(total decimal.Decimal)
	CheckoutRejected(reason string)
	StatusChanged(status string)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type HTTPOptions struct {
	Sessions       sessions.Store
	RequestTimeout time.Duration
	MaxBodyBytes   int64
	Metrics        Recorder
	MetricsHandler http.Handler
	Health         Pinger
	Logger         *slog.Logger
}

type HTTPHandler struct {
	catalog *service.CatalogService
	carts   *service.CartService
	orders  *service.OrderService
	gate    *service.AdminGate
	opts    HTTPOptions
	logger  *slog.Logger
}

func NewHTTPHandler(catalog *service.CatalogService, carts *service.CartService, orders *service.OrderService, gate *service.AdminGate, opts HTTPOptions) *HTTPHandler {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPHandler{
		catalog: catalog,
		carts:   carts,
		orders:  orders,
		gate:    gate,
		opts:    opts,
		logger:  logger,
	}
}

func (h *HTTPHandler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(h.observe)
	r.Use(middleware.Timeout(h.opts.RequestTimeout))

	r.Get("/health", h.HealthCheck)
	if h.opts.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", h.opts.MetricsHandler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/products", h.ListProducts)
		r.Get("/products/{id}", h.GetProduct)
		r.Get("/categories", h.ListCategories)

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", h.GetCart)
			r.Delete("/", h.ClearCart)
			r.Post("/items", h.AddItem)
			r.Put("/items/{product_id}", h.UpdateQuantity)
			r.Delete("/items/{product_id}", h.RemoveItem)
		})
		r.Post("/checkout", h.Checkout)

		r.Route("/admin", func(r chi.Router) {
			r.Post("/login", h.Login)
			r.Post("/logout", h.Logout)

			r.Group(func(r chi.Router) {
				r.Use(h.RequireAdmin)
				r.Get("/products", h.AdminListProducts)
				r.Post("/products", h.CreateProduct)
				r.Patch("/products/{id}", h.UpdateProduct)
				r.Delete("/products/{id}", h.DeleteProduct)
				r.Get("/orders", h.ListOrders)
				r.Get("/orders/{id}", h.GetOrder)
				r.Patch("/orders/{id}/status", h.UpdateOrderStatus)
			})
		})
	})

	return r
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if h.opts.Health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.opts.Health.Ping(ctx); err != nil {
			h.logger.Warn("health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Catalog

func (h *HTTPHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	category := domain.Category(r.URL.Query().Get("category"))
	products, err := h.catalog.List(r.Context(), category)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductDTOs(products))
}

func (h *HTTPHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.catalog.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductDTO(product))
}

func (h *HTTPHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.catalog.Categories(r.Context())
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	out := make([]string, 0, len(categories))
	for _, c := range categories {
		out = append(out, string(c))
	}
	writeJSON(w, http.StatusOK, out)
}

// Cart

func (h *HTTPHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	cartID, ok := h.sessionCart(w, r)
	if !ok {
		return
	}
	cart, err := h.carts.Get(r.Context(), cartID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartDTO(cart))
}

func (h *HTTPHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	if req.ProductID == "" {
		respondError(w, http.StatusBadRequest, "validation_error", "product_id is required")
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	cartID, ok := h.sessionCart(w, r)
	if !ok {
		return
	}
	cart, err := h.carts.AddItem(r.Context(), cartID, req.ProductID, req.Quantity)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartDTO(cart))
}

func (h *HTTPHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	var req UpdateQuantityRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	if req.Quantity == nil {
		respondError(w, http.StatusBadRequest, "validation_error", "quantity is required")
		return
	}
	cartID, ok := h.sessionCart(w, r)
	if !ok {
		return
	}
	cart, err := h.carts.SetQuantity(r.Context(), cartID, chi.URLParam(r, "product_id"), *req.Quantity)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartDTO(cart))
}

func (h *HTTPHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	cartID, ok := h.sessionCart(w, r)
	if !ok {
		return
	}
	cart, err := h.carts.RemoveItem(r.Context(), cartID, chi.URLParam(r, "product_id"))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartDTO(cart))
}

func (h *HTTPHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	cartID, ok := h.sessionCart(w, r)
	if !ok {
		return
	}
	if err := h.carts.Clear(r.Context(), cartID); err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	cartID, ok := h.sessionCart(w, r)
	if !ok {
		return
	}

	order, err := h.orders.Checkout(r.Context(), cartID, domain.CheckoutInput{
		Name:    req.Name,
		Phone:   req.Phone,
		Address: req.Address,
		Notes:   req.Notes,
	})
	if err != nil {
		h.recordRejection(err)
		h.respondServiceError(w, r, err)
		return
	}

	if h.opts.Metrics != nil {
		h.opts.Metrics.OrderSubmitted(order.TotalPrice)
	}
	writeJSON(w, http.StatusCreated, toOrderDTO(order))
}

func (h *HTTPHandler) recordRejection(err error) {
	if h.opts.Metrics == nil {
		return
	}
	switch {
	case errors.Is(err, domain.ErrEmptyCart):
		h.opts.Metrics.CheckoutRejected("empty_cart")
	case errors.Is(err, domain.ErrValidation):
		h.opts.Metrics.CheckoutRejected("validation")
	case errors.Is(err, domain.ErrPersistence):
		h.opts.Metrics.CheckoutRejected("persistence")
	default:
		h.opts.Metrics.CheckoutRejected("other")
	}
}

// Admin session

func (h *HTTPHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	if err := h.gate.Authenticate(req.Email, req.Password); err != nil {
		h.logger.Info("admin login refused", "remote", r.RemoteAddr)
		h.respondServiceError(w, r, err)
		return
	}

	session, _ := h.opts.Sessions.Get(r, sessionName)
	session.Values[sessionAdmin] = true
	if err := session.Save(r, w); err != nil {
		h.logger.Error("failed to save session", "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to save session")
		return
	}

	h.logger.Info("admin logged in", "remote", r.RemoteAddr)
	writeJSON(w, http.StatusOK, map[string]bool{"admin": true})
}

// Logout drops the admin flag but keeps the shopper's cart.
func (h *HTTPHandler) Logout(w http.ResponseWriter, r *http.Request) {
	session, _ := h.opts.Sessions.Get(r, sessionName)
	delete(session.Values, sessionAdmin)
	if err := session.Save(r, w); err != nil {
		h.logger.Error("failed to save session", "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"admin": false})
}

// Admin catalog

func (h *HTTPHandler) AdminListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.List(r.Context(), "")
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductDTOs(products))
}

func (h *HTTPHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req ProductRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	product, err := h.catalog.Create(r.Context(), req.toDomain())
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProductDTO(product))
}

func (h *HTTPHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req ProductPatchRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	product, err := h.catalog.Update(r.Context(), chi.URLParam(r, "id"), req.toDomain())
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductDTO(product))
}

func (h *HTTPHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Admin orders

func (h *HTTPHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.List(r.Context())
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderDTOs(orders))
}

func (h *HTTPHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderDTO(order))
}

func (h *HTTPHandler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req StatusRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	status, err := domain.ParseOrderStatus(req.Status)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	order, err := h.orders.UpdateStatus(r.Context(), chi.URLParam(r, "id"), status)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	if h.opts.Metrics != nil {
		h.opts.Metrics.StatusChanged(string(order.Status))
	}
	writeJSON(w, http.StatusOK, toOrderDTO(order))
}

// sessionCart returns the cart id bound to the caller's session, minting and
// saving one on first use. It writes the error response itself.
func (h *HTTPHandler) sessionCart(w http.ResponseWriter, r *http.Request) (string, bool) {
	session, _ := h.opts.Sessions.Get(r, sessionName)
	if id, ok := session.Values[sessionCartID].(string); ok && id != "" {
		return id, true
	}

	id := uuid.NewString()
	session.Values[sessionCartID] = id
	if err := session.Save(r, w); err != nil {
		h.logger.Error("failed to save session", "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to save session")
		return "", false
	}
	return id, true
}

func (h *HTTPHandler) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return false
	}
	return true
}

func (h *HTTPHandler) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrEmptyCart):
		respondError(w, http.StatusBadRequest, "empty_cart", "cart is empty")
	case errors.Is(err, domain.ErrValidation):
		respondError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		respondError(w, http.StatusNotFound, "not_found", "not found")
	case errors.Is(err, service.ErrUnauthorized):
		respondError(w, http.StatusUnauthorized, "unauthorized", "invalid credentials")
	case errors.Is(err, domain.ErrPersistence):
		h.logger.Error("request failed", "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()), "error", err)
		respondError(w, http.StatusServiceUnavailable, "storage_unavailable", "storage temporarily unavailable, please retry")
	default:
		h.logger.Error("request failed", "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()), "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: message, Code: code})
}
