package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/sessions"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/biosalim/internal/adapter/metrics"
	"github.com/rl1809/biosalim/internal/adapter/storage"
	"github.com/rl1809/biosalim/internal/core/domain"
	"github.com/rl1809/biosalim/internal/core/service"
)

const (
	testAdminEmail    = "admin@biosalim.ma"
	testAdminPassword = "sorgho-2024"
)

type testEnv struct {
	mr      *miniredis.Miniredis
	store   *storage.RedisAdapter
	catalog *service.CatalogService
	carts   *service.CartService
	orders  *service.OrderService
	gate    *service.AdminGate
	metrics *metrics.Metrics
	server  *httptest.Server
	farine  domain.Product
	pates   domain.Product
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	store := storage.NewRedisAdapter(client, time.Hour)
	t.Cleanup(func() { store.Close() })

	timeout := 500 * time.Millisecond
	catalog := service.NewCatalogService(store, timeout, nil)
	carts := service.NewCartService(store, catalog, timeout, nil)
	orders := service.NewOrderService(store, carts, nil, timeout, nil)
	gate := service.NewAdminGate(testAdminEmail, testAdminPassword)
	m := metrics.New()

	ctx := context.Background()
	farine, err := catalog.Create(ctx, domain.Product{
		Name: "Farine de sorgho", Price: decimal.NewFromInt(25), Stock: 50, Weight: "1kg", Category: domain.CategoryFlour,
	})
	require.NoError(t, err)
	pates, err := catalog.Create(ctx, domain.Product{
		Name: "Pâtes artisanales au sorgho", Price: decimal.NewFromInt(28), Stock: 40, Weight: "400g", Category: domain.CategoryPasta,
	})
	require.NoError(t, err)

	cookies := sessions.NewCookieStore([]byte(strings.Repeat("s", 32)))
	cookies.Options.Path = "/"
	cookies.Options.HttpOnly = true

	h := NewHTTPHandler(catalog, carts, orders, gate, HTTPOptions{
		Sessions:       cookies,
		RequestTimeout: 5 * time.Second,
		Metrics:        m,
		MetricsHandler: m.Handler(),
		Health:         store,
	})
	server := httptest.NewServer(h.Routes())
	t.Cleanup(server.Close)

	return &testEnv{
		mr: mr, store: store, catalog: catalog, carts: carts, orders: orders,
		gate: gate, metrics: m, server: server, farine: farine, pates: pates,
	}
}

// newClient returns a client with its own cookie jar, i.e. its own session.
func (e *testEnv) newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{Jar: jar, Timeout: 10 * time.Second}
}

func (e *testEnv) do(t *testing.T, c *http.Client, method, path string, body any) (int, []byte) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.server.URL+path, rd)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v), string(data))
	return v
}

func intPtr(v int) *int { return &v }

func (e *testEnv) loginAdmin(t *testing.T, c *http.Client) {
	t.Helper()
	code, body := e.do(t, c, http.MethodPost, "/api/v1/admin/login", LoginRequest{Email: testAdminEmail, Password: testAdminPassword})
	require.Equal(t, http.StatusOK, code, string(body))
}

func TestHTTP_HealthAndMetrics(t *testing.T) {
	env := newTestEnv(t)
	c := env.newClient(t)

	code, body := env.do(t, c, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))

	code, body = env.do(t, c, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(body), `biosalim_http_requests_total{code="200",method="GET",route="/health"} 1`)

	env.mr.Close()
	code, _ = env.do(t, c, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestHTTP_ListProducts(t *testing.T) {
	env := newTestEnv(t)
	c := env.newClient(t)

	code, body := env.do(t, c, http.MethodGet, "/api/v1/products", nil)
	require.Equal(t, http.StatusOK, code)
	products := decode[[]ProductDTO](t, body)
	require.Len(t, products, 2)
	assert.Equal(t, "Farine de sorgho", products[0].Name)
	assert.Contains(t, string(body), `"price":"25"`)

	code, body = env.do(t, c, http.MethodGet, "/api/v1/products?category=pasta", nil)
	require.Equal(t, http.StatusOK, code)
	products = decode[[]ProductDTO](t, body)
	require.Len(t, products, 1)
	assert.Equal(t, env.pates.ID, products[0].ID)

	code, body = env.do(t, c, http.MethodGet, "/api/v1/products/"+env.farine.ID, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "1kg", decode[ProductDTO](t, body).Weight)

	code, body = env.do(t, c, http.MethodGet, "/api/v1/products/unknown", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "not_found", decode[ErrorResponse](t, body).Code)

	code, body = env.do(t, c, http.MethodGet, "/api/v1/categories", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{"flour", "pasta"}, decode[[]string](t, body))
}

func TestHTTP_CartLifecycle(t *testing.T) {
	env := newTestEnv(t)
	c := env.newClient(t)

	code, body := env.do(t, c, http.MethodGet, "/api/v1/cart", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, decode[CartDTO](t, body).Items)

	env.do(t, c, http.MethodPost, "/api/v1/cart/items", AddItemRequest{ProductID: env.farine.ID, Quantity: 2})
	code, body = env.do(t, c, http.MethodPost, "/api/v1/cart/items", AddItemRequest{ProductID: env.farine.ID, Quantity: 1})
	require.Equal(t, http.StatusOK, code, string(body))
	cart := decode[CartDTO](t, body)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 3, cart.Items[0].Quantity)
	assert.True(t, cart.TotalPrice.Equal(decimal.NewFromInt(75)))

	code, body = env.do(t, c, http.MethodPost, "/api/v1/cart/items", AddItemRequest{ProductID: env.pates.ID})
	require.Equal(t, http.StatusOK, code)
	cart = decode[CartDTO](t, body)
	assert.Equal(t, 4, cart.ItemCount)
	assert.True(t, cart.TotalPrice.Equal(decimal.NewFromInt(103)))

	code, body = env.do(t, c, http.MethodPut, "/api/v1/cart/items/"+env.farine.ID, UpdateQuantityRequest{Quantity: intPtr(1)})
	require.Equal(t, http.StatusOK, code)
	assert.True(t, decode[CartDTO](t, body).TotalPrice.Equal(decimal.NewFromInt(53)))

	code, body = env.do(t, c, http.MethodPut, "/api/v1/cart/items/"+env.pates.ID, UpdateQuantityRequest{Quantity: intPtr(0)})
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, decode[CartDTO](t, body).Items, 1)

	code, body = env.do(t, c, http.MethodDelete, "/api/v1/cart/items/"+env.farine.ID, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, decode[CartDTO](t, body).Items)

	env.do(t, c, http.MethodPost, "/api/v1/cart/items", AddItemRequest{ProductID: env.farine.ID, Quantity: 1})
	code, _ = env.do(t, c, http.MethodDelete, "/api/v1/cart", nil)
	assert.Equal(t, http.StatusNoContent, code)
	_, body = env.do(t, c, http.MethodGet, "/api/v1/cart", nil)
	assert.Empty(t, decode[CartDTO](t, body).Items)
}

func TestHTTP_CartErrors(t *testing.T) {
	env := newTestEnv(t)
	c := env.newClient(t)

	code, body := env.do(t, c, http.MethodPost, "/api/v1/cart/items", AddItemRequest{ProductID: "ghost", Quantity: 1})
	assert.Equal(t, http.StatusNotFound, code, string(body))

	code, body = env.do(t, c, http.MethodPost, "/api/v1/cart/items", AddItemRequest{ProductID: env.farine.ID, Quantity: -2})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "validation_error", decode[ErrorResponse](t, body).Code)

	code, body = env.do(t, c, http.MethodPost, "/api/v1/cart/items", AddItemRequest{})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "validation_error", decode[ErrorResponse](t, body).Code)

	req, err := http.NewRequest(http.MethodPost, env.server.URL+"/api/v1/cart/items", strings.NewReader("{broken"))
	require.NoError(t, err)
	resp, err := c.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHTTP_CartQuantityBounds(t *testing.T) {
	env := newTestEnv(t)
	c := env.newClient(t)

	code, body := env.do(t, c, http.MethodPost, "/api/v1/cart/items", AddItemRequest{ProductID: env.farine.ID, Quantity: math.MaxInt})
	assert.Equal(t, http.StatusBadRequest, code, string(body))
	assert.Equal(t, "validation_error", decode[ErrorResponse](t, body).Code)

	code, body = env.do(t, c, http.MethodPost, "/api/v1/cart/items", AddItemRequest{ProductID: env.farine.ID, Quantity: domain.MaxLineQuantity})
	require.Equal(t, http.StatusOK, code, string(body))

	code, body = env.do(t, c, http.MethodPost, "/api/v1/cart/items", AddItemRequest{ProductID: env.farine.ID, Quantity: 1})
	assert.Equal(t, http.StatusBadRequest, code, string(body))

	path := "/api/v1/cart/items/" + env.farine.ID
	code, body = env.do(t, c, http.MethodPut, path, UpdateQuantityRequest{Quantity: intPtr(math.MaxInt)})
	assert.Equal(t, http.StatusBadRequest, code, string(body))
	assert.Equal(t, "validation_error", decode[ErrorResponse](t, body).Code)

	// a body without quantity must not read as a removal
	code, body = env.do(t, c, http.MethodPut, path, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, code, string(body))
	assert.Equal(t, "validation_error", decode[ErrorResponse](t, body).Code)

	_, body = env.do(t, c, http.MethodGet, "/api/v1/cart", nil)
	cart := decode[CartDTO](t, body)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, domain.MaxLineQuantity, cart.ItemCount)
	assert.True(t, cart.TotalPrice.Equal(decimal.NewFromInt(25*domain.MaxLineQuantity)))
}

func TestHTTP_SessionsAreIsolated(t *testing.T) {
	env := newTestEnv(t)
	alice, bob := env.newClient(t), env.newClient(t)

	env.do(t, alice, http.MethodPost, "/api/v1/cart/items", AddItemRequest{ProductID: env.farine.ID, Quantity: 2})

	_, body := env.do(t, bob, http.MethodGet, "/api/v1/cart", nil)
	assert.Empty(t, decode[CartDTO](t, body).Items)
	_, body = env.do(t, alice, http.MethodGet, "/api/v1/cart", nil)
	assert.Len(t, decode[CartDTO](t, body).Items, 1)
}

func TestHTTP_Checkout(t *testing.T) {
	env := newTestEnv(t)
	c := env.newClient(t)

	env.do(t, c, http.MethodPost, "/api/v1/cart/items", AddItemRequest{ProductID: env.farine.ID, Quantity: 2})
	env.do(t, c, http.MethodPost, "/api/v1/cart/items", AddItemRequest{ProductID: env.pates.ID, Quantity: 1})

	code, body := env.do(t, c, http.MethodPost, "/api/v1/checkout", CheckoutRequest{
		Name: "  Sarah Benali ", Phone: "0600000000", Address: "Chefchaouen", Notes: "Sonner deux fois",
	})
	require.Equal(t, http.StatusCreated, code, string(body))
	order := decode[OrderDTO](t, body)
	assert.NotEmpty(t, order.ID)
	assert.Equal(t, "Sarah Benali", order.CustomerName)
	assert.Equal(t, "Pending", order.Status)
	assert.True(t, order.TotalPrice.Equal(decimal.NewFromInt(78)))
	require.Len(t, order.Items, 2)

	_, body = env.do(t, c, http.MethodGet, "/api/v1/cart", nil)
	assert.Empty(t, decode[CartDTO](t, body).Items, "cart is emptied after checkout")

	stored, err := env.store.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.True(t, stored.TotalPrice.Equal(decimal.NewFromInt(78)))
}

func TestHTTP_CheckoutRejections(t *testing.T) {
	env := newTestEnv(t)
	c := env.newClient(t)

	code, body := env.do(t, c, http.MethodPost, "/api/v1/checkout", CheckoutRequest{Name: "A", Phone: "1", Address: "B"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "empty_cart", decode[ErrorResponse](t, body).Code)

	env.do(t, c, http.MethodPost, "/api/v1/cart/items", AddItemRequest{ProductID: env.farine.ID, Quantity: 1})
	code, body = env.do(t, c, http.MethodPost, "/api/v1/checkout", CheckoutRequest{Name: "A", Phone: " ", Address: "B"})
	assert.Equal(t, http.StatusBadRequest, code)
	errResp := decode[ErrorResponse](t, body)
	assert.Equal(t, "validation_error", errResp.Code)
	assert.Contains(t, errResp.Error, "phone")

	orders, err := env.store.ListOrders(context.Background())
	require.NoError(t, err)
	assert.Empty(t, orders)

	_, body = env.do(t, c, http.MethodGet, "/api/v1/cart", nil)
	assert.Len(t, decode[CartDTO](t, body).Items, 1, "rejected checkout keeps the cart")

	_, body = env.do(t, c, http.MethodGet, "/metrics", nil)
	assert.Contains(t, string(body), `biosalim_checkout_rejected_total{reason="empty_cart"} 1`)
	assert.Contains(t, string(body), `biosalim_checkout_rejected_total{reason="validation"} 1`)
}

func TestHTTP_StoreUnavailable(t *testing.T) {
	env := newTestEnv(t)
	c := env.newClient(t)

	env.mr.Close()

	code, body := env.do(t, c, http.MethodPost, "/api/v1/checkout", CheckoutRequest{Name: "A", Phone: "1", Address: "B"})
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "storage_unavailable", decode[ErrorResponse](t, body).Code)

	// the catalog mirror keeps serving reads
	code, _ = env.do(t, c, http.MethodGet, "/api/v1/products", nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestHTTP_AdminRequiresLogin(t *testing.T) {
	env := newTestEnv(t)
	c := env.newClient(t)

	for _, path := range []string{"/api/v1/admin/products", "/api/v1/admin/orders"} {
		code, body := env.do(t, c, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusUnauthorized, code, path)
		assert.Equal(t, "unauthorized", decode[ErrorResponse](t, body).Code)
	}

	code, _ := env.do(t, c, http.MethodPost, "/api/v1/admin/login", LoginRequest{Email: testAdminEmail, Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, code)
	code, _ = env.do(t, c, http.MethodGet, "/api/v1/admin/orders", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	env.loginAdmin(t, c)
	code, _ = env.do(t, c, http.MethodGet, "/api/v1/admin/orders", nil)
	assert.Equal(t, http.StatusOK, code)

	code, _ = env.do(t, c, http.MethodPost, "/api/v1/admin/logout", nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = env.do(t, c, http.MethodGet, "/api/v1/admin/orders", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestHTTP_LogoutKeepsCart(t *testing.T) {
	env := newTestEnv(t)
	c := env.newClient(t)

	env.do(t, c, http.MethodPost, "/api/v1/cart/items", AddItemRequest{ProductID: env.farine.ID, Quantity: 1})
	env.loginAdmin(t, c)
	env.do(t, c, http.MethodPost, "/api/v1/admin/logout", nil)

	_, body := env.do(t, c, http.MethodGet, "/api/v1/cart", nil)
	assert.Len(t, decode[CartDTO](t, body).Items, 1)
}

func TestHTTP_AdminProducts(t *testing.T) {
	env := newTestEnv(t)
	c := env.newClient(t)
	env.loginAdmin(t, c)

	code, body := env.do(t, c, http.MethodPost, "/api/v1/admin/products", ProductRequest{
		Name: "Couscous de sorgho", Price: decimal.NewFromInt(30), Stock: 35, Weight: "500g", Category: "couscous",
	})
	require.Equal(t, http.StatusCreated, code, string(body))
	created := decode[ProductDTO](t, body)
	assert.NotEmpty(t, created.ID)

	code, body = env.do(t, c, http.MethodPost, "/api/v1/admin/products", ProductRequest{Name: " ", Price: decimal.NewFromInt(1)})
	assert.Equal(t, http.StatusBadRequest, code, string(body))

	code, body = env.do(t, c, http.MethodPatch, "/api/v1/admin/products/"+created.ID, map[string]any{"price": "32.50"})
	require.Equal(t, http.StatusOK, code, string(body))
	updated := decode[ProductDTO](t, body)
	assert.Equal(t, "Couscous de sorgho", updated.Name)
	assert.True(t, updated.Price.Equal(decimal.RequireFromString("32.5")))

	code, _ = env.do(t, c, http.MethodPatch, "/api/v1/admin/products/ghost", map[string]any{"stock": 3})
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = env.do(t, c, http.MethodDelete, "/api/v1/admin/products/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, code)
	code, _ = env.do(t, c, http.MethodDelete, "/api/v1/admin/products/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, code, "deleting twice is a no-op")

	code, body = env.do(t, c, http.MethodGet, "/api/v1/admin/products", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, decode[[]ProductDTO](t, body), 2)
}

func TestHTTP_AdminOrders(t *testing.T) {
	env := newTestEnv(t)
	shopper := env.newClient(t)
	admin := env.newClient(t)
	env.loginAdmin(t, admin)

	env.do(t, shopper, http.MethodPost, "/api/v1/cart/items", AddItemRequest{ProductID: env.farine.ID, Quantity: 2})
	_, body := env.do(t, shopper, http.MethodPost, "/api/v1/checkout", CheckoutRequest{Name: "Amina", Phone: "0611", Address: "Tétouan"})
	placed := decode[OrderDTO](t, body)

	code, body := env.do(t, admin, http.MethodGet, "/api/v1/admin/orders", nil)
	require.Equal(t, http.StatusOK, code)
	orders := decode[[]OrderDTO](t, body)
	require.Len(t, orders, 1)
	assert.Equal(t, placed.ID, orders[0].ID)

	code, body = env.do(t, admin, http.MethodGet, "/api/v1/admin/orders/"+placed.ID, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Amina", decode[OrderDTO](t, body).CustomerName)

	code, body = env.do(t, admin, http.MethodPatch, "/api/v1/admin/orders/"+placed.ID+"/status", StatusRequest{Status: "shipped"})
	require.Equal(t, http.StatusOK, code, string(body))
	shipped := decode[OrderDTO](t, body)
	assert.Equal(t, "Shipped", shipped.Status)
	assert.True(t, shipped.TotalPrice.Equal(placed.TotalPrice))
	assert.Len(t, shipped.Items, 1)

	code, body = env.do(t, admin, http.MethodPatch, "/api/v1/admin/orders/"+placed.ID+"/status", StatusRequest{Status: "Lost"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "validation_error", decode[ErrorResponse](t, body).Code)

	code, _ = env.do(t, admin, http.MethodPatch, "/api/v1/admin/orders/missing/status", StatusRequest{Status: "Paid"})
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = env.do(t, admin, http.MethodGet, "/api/v1/admin/orders/missing", nil)
	assert.Equal(t, http.StatusNotFound, code)
}
