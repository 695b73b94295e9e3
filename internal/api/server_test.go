package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/orderdesk/internal/domain"
	"github.com/vladislavdragonenkov/orderdesk/internal/metrics"
	"github.com/vladislavdragonenkov/orderdesk/internal/service/orders"
	"github.com/vladislavdragonenkov/orderdesk/internal/storage/memory"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fixture struct {
	server   *Server
	products []domain.Product
	orderID  int64
	registry *prometheus.Registry
}

func setupServer(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	store := memory.NewStore()
	orderRepo := memory.NewOrderRepository(store)
	productRepo := memory.NewProductRepository(store)

	f := &fixture{registry: prometheus.NewRegistry()}
	for _, p := range []domain.Product{
		{Name: "Paper", Price: decimal.RequireFromString("4.99")},
		{Name: "Stapler", Price: decimal.RequireFromString("12.50")},
	} {
		saved, err := productRepo.Create(ctx, p)
		require.NoError(t, err)
		f.products = append(f.products, saved)
	}
	order, err := orderRepo.Create(ctx, domain.Order{
		Name:        "Office",
		Description: "Monthly",
		Date:        domain.NewDate(2025, time.August, 12),
	}, []domain.LineInput{{ProductID: f.products[0].ID, Quantity: 2}})
	require.NoError(t, err)
	f.orderID = order.ID

	svc := orders.NewService(orderRepo, productRepo, nil, metrics.NewOrderMetricsWithRegisterer(f.registry))
	f.server = NewServer(svc, DefaultCORSConfig(), nil, metrics.NewHTTPMetricsWithRegisterer(f.registry))
	return f
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		if err := json.NewEncoder(&buf).Encode(b); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Engine().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q: %v", w.Body.String(), err)
	}
	return out
}

type errorBody struct {
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors"`
}

func orderPath(id int64) string {
	return "/api/orders/" + strconv.FormatInt(id, 10)
}

func TestListAndGetOrder(t *testing.T) {
	f := setupServer(t)

	w := doJSON(t, f.server, http.MethodGet, "/api/orders", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[[]map[string]any](t, w)
	require.Len(t, list, 1)
	require.Equal(t, "2025-08-12", list[0]["date"])
	require.Contains(t, list[0], "created_at")

	w = doJSON(t, f.server, http.MethodGet, orderPath(f.orderID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	view := decode[orderViewResponse](t, w)
	require.Equal(t, "Office", view.Name)
	require.Len(t, view.Products, 1)
	require.Equal(t, 4.99, view.Products[0].Price)
	require.Equal(t, 2, view.Products[0].Quantity)
}

func TestGetOrder_NotFound(t *testing.T) {
	f := setupServer(t)

	for _, path := range []string{"/api/orders/999", "/api/orders/abc"} {
		w := doJSON(t, f.server, http.MethodGet, path, nil)
		require.Equal(t, http.StatusNotFound, w.Code, path)
		require.Equal(t, "Order not found", decode[errorBody](t, w).Message)
	}
}

func TestUpdateOrder_Success(t *testing.T) {
	f := setupServer(t)

	w := doJSON(t, f.server, http.MethodPut, orderPath(f.orderID), map[string]any{
		"name": "Renamed",
		"date": "2025-09-01T10:30:00Z",
		"products": []map[string]any{
			{"id": f.products[1].ID, "quantity": 1},
			{"id": f.products[0].ID, "quantity": 5},
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	view := decode[orderViewResponse](t, w)
	require.Equal(t, "Renamed", view.Name)
	require.Equal(t, "Monthly", view.Description)
	require.Equal(t, "2025-09-01", view.Date.String())
	require.Len(t, view.Products, 2)
	require.Equal(t, f.products[0].ID, view.Products[0].ID)
	require.Equal(t, 5, view.Products[0].Quantity)
}

func TestUpdateOrder_NullAndEmptyProducts(t *testing.T) {
	f := setupServer(t)

	w := doJSON(t, f.server, http.MethodPut, orderPath(f.orderID), `{"products": null, "name": null}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	view := decode[orderViewResponse](t, w)
	require.Equal(t, "Office", view.Name)
	require.Len(t, view.Products, 1)

	w = doJSON(t, f.server, http.MethodPut, orderPath(f.orderID), `{"products": []}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Contains(t, w.Body.String(), `"products":[]`)

	w = doJSON(t, f.server, http.MethodPut, orderPath(f.orderID), nil)
	require.Equal(t, http.StatusOK, w.Code, "an empty body changes nothing")
}

func TestUpdateOrder_ValidationErrors(t *testing.T) {
	f := setupServer(t)

	cases := []struct {
		name  string
		body  any
		field string
		msg   string
	}{
		{
			name:  "name too long",
			body:  map[string]any{"name": strings.Repeat("n", 256)},
			field: "name",
			msg:   "The name field must not be greater than 255 characters.",
		},
		{
			name:  "bad date",
			body:  map[string]any{"date": "12/31/2025"},
			field: "date",
			msg:   "The date field must be a valid date.",
		},
		{
			name:  "missing product id",
			body:  map[string]any{"products": []map[string]any{{"quantity": 1}}},
			field: "products.0.id",
			msg:   "The products.0.id field is required.",
		},
		{
			name:  "zero quantity",
			body:  map[string]any{"products": []map[string]any{{"id": f.products[0].ID, "quantity": 0}}},
			field: "products.0.quantity",
			msg:   "The products.0.quantity field must be at least 1.",
		},
		{
			name:  "unknown product",
			body:  map[string]any{"products": []map[string]any{{"id": f.products[0].ID, "quantity": 1}, {"id": 9999, "quantity": 1}}},
			field: "products.1.id",
			msg:   "The selected products.1.id is invalid.",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := doJSON(t, f.server, http.MethodPut, orderPath(f.orderID), tc.body)
			require.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
			body := decode[errorBody](t, w)
			require.Equal(t, []string{tc.msg}, body.Errors[tc.field])
			require.Equal(t, tc.msg, body.Message)
		})
	}

	// ни один из запросов не изменил заказ
	w := doJSON(t, f.server, http.MethodGet, orderPath(f.orderID), nil)
	view := decode[orderViewResponse](t, w)
	require.Equal(t, "Office", view.Name)
	require.Len(t, view.Products, 1)
}

func TestUpdateOrder_SummaryCountsOtherErrors(t *testing.T) {
	f := setupServer(t)

	w := doJSON(t, f.server, http.MethodPut, orderPath(f.orderID), map[string]any{
		"name":     strings.Repeat("n", 300),
		"products": []map[string]any{{"id": f.products[0].ID, "quantity": 0}, {"id": f.products[1].ID, "quantity": -1}},
	})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	body := decode[errorBody](t, w)
	require.Equal(t, "The name field must not be greater than 255 characters. (and 2 more errors)", body.Message)
}

func TestUpdateOrder_TypeMismatchIs422(t *testing.T) {
	f := setupServer(t)

	w := doJSON(t, f.server, http.MethodPut, orderPath(f.orderID), `{"products":[{"id":1,"quantity":2},{"id":1,"quantity":"two"}]}`)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
	body := decode[errorBody](t, w)
	require.Equal(t, []string{"The products.1.quantity field must be an integer."}, body.Errors["products.1.quantity"])
	require.NotContains(t, body.Errors, "products.quantity")
}

func TestProductsTypeErrorKey(t *testing.T) {
	tests := []struct {
		name string
		key  string
		body string
		want string
	}{
		{name: "nested field", key: "products.quantity", body: `{"products":[{"id":1,"quantity":1},{"id":"x","quantity":1}]}`, want: "products.1.id"},
		{name: "element is not an object", key: "products", body: `{"products":[{"id":1,"quantity":1},5]}`, want: "products.1"},
		{name: "products is not an array", key: "products", body: `{"products":"all"}`, want: "products"},
		{name: "no body", key: "products.quantity", body: ``, want: "products.quantity"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, productsTypeErrorKey(tt.key, []byte(tt.body)))
		})
	}
}

func TestUpdateOrder_MalformedJSON(t *testing.T) {
	f := setupServer(t)

	w := doJSON(t, f.server, http.MethodPut, orderPath(f.orderID), `{"name": `)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateOrder_NotFound(t *testing.T) {
	f := setupServer(t)

	w := doJSON(t, f.server, http.MethodPut, "/api/orders/424242", map[string]any{"name": "x"})
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, "Order not found", decode[errorBody](t, w).Message)
}

type failingService struct {
	OrderService
	err error
}

func (f failingService) UpdateOrder(context.Context, int64, domain.OrderPatch) (domain.OrderView, error) {
	return domain.OrderView{}, f.err
}

func (f failingService) ListOrders(context.Context) ([]domain.Order, error) {
	return nil, f.err
}

func TestUpdateOrder_FailureIs500(t *testing.T) {
	s := NewServer(failingService{err: &domain.UpdateFailedError{Cause: context.DeadlineExceeded}}, DefaultCORSConfig(), nil, nil)

	w := doJSON(t, s, http.MethodPut, "/api/orders/1", map[string]any{"name": "x"})
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Equal(t, "Update failed: context deadline exceeded", decode[errorBody](t, w).Message)

	w = doJSON(t, s, http.MethodGet, "/api/orders", nil)
	require.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestDeleteOrder(t *testing.T) {
	f := setupServer(t)

	w := doJSON(t, f.server, http.MethodDelete, orderPath(f.orderID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "Order deleted successfully", decode[errorBody](t, w).Message)

	w = doJSON(t, f.server, http.MethodDelete, orderPath(f.orderID), nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, f.server, http.MethodGet, "/api/products", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, decode[[]productResponse](t, w), 2)
}

func TestCORS(t *testing.T) {
	f := setupServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/orders/1", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	w := httptest.NewRecorder()
	f.server.Engine().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Empty(t, w.Body.String())
	require.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	require.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "PUT")
	require.Equal(t, "86400", w.Header().Get("Access-Control-Max-Age"))

	w = doJSON(t, f.server, http.MethodGet, "/api/products", nil)
	require.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	require.NotEmpty(t, w.Header().Get(requestIDHeader))
}

func TestCORS_ExplicitOrigins(t *testing.T) {
	cfg := DefaultCORSConfig()
	cfg.AllowOrigins = []string{"https://desk.example"}
	s := NewServer(failingService{}, cfg, nil, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/orders", nil)
	req.Header.Set("Origin", "https://desk.example")
	w := httptest.NewRecorder()
	s.Engine().ServeHTTP(w, req)
	require.Equal(t, "https://desk.example", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/api/orders", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	s.Engine().ServeHTTP(w, req)
	require.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestHTTPMetricsUseRouteTemplate(t *testing.T) {
	f := setupServer(t)

	doJSON(t, f.server, http.MethodGet, orderPath(f.orderID), nil)
	doJSON(t, f.server, http.MethodGet, "/nowhere", nil)

	count, err := testutil.GatherAndCount(f.registry, "orderdesk_http_requests_total")
	require.NoError(t, err)
	require.Equal(t, 2, count)

	expected := `
# HELP orderdesk_http_requests_total Total number of HTTP requests grouped by method, route and status.
# TYPE orderdesk_http_requests_total counter
orderdesk_http_requests_total{method="GET",route="/api/orders/:id",status="200"} 1
orderdesk_http_requests_total{method="GET",route="unmatched",status="404"} 1
`
	require.NoError(t, testutil.GatherAndCompare(f.registry, strings.NewReader(expected), "orderdesk_http_requests_total"))
}

func TestFieldKey(t *testing.T) {
	require.Equal(t, "products.3.quantity", fieldKey("updateOrderRequest.products[3].quantity"))
	require.Equal(t, "date", fieldKey("updateOrderRequest.date"))
}
