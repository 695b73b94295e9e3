package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/orderdesk/internal/api"
	"github.com/vladislavdragonenkov/orderdesk/internal/client"
	"github.com/vladislavdragonenkov/orderdesk/internal/domain"
	"github.com/vladislavdragonenkov/orderdesk/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/orderdesk/internal/metrics"
	"github.com/vladislavdragonenkov/orderdesk/internal/service/orders"
	"github.com/vladislavdragonenkov/orderdesk/internal/storage/memory"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type apiFixture struct {
	url      string
	orderID  string
	products []domain.Product
}

func newAPIFixture(t *testing.T) apiFixture {
	t.Helper()
	ctx := context.Background()

	store := memory.NewStore()
	orderRepo := memory.NewOrderRepository(store)
	productRepo := memory.NewProductRepository(store)

	var f apiFixture
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
	f.orderID = strconv.FormatInt(order.ID, 10)

	registry := prometheus.NewRegistry()
	svc := orders.NewService(orderRepo, productRepo, nil, metrics.NewOrderMetricsWithRegisterer(registry))
	srv := httptest.NewServer(api.NewServer(svc, api.DefaultCORSConfig(), nil, metrics.NewHTTPMetricsWithRegisterer(registry)).Engine())
	t.Cleanup(srv.Close)
	f.url = srv.URL
	return f
}

func execute(t *testing.T, f apiFixture, args ...string) (string, error) {
	t.Helper()
	defer log.SetLevel(log.InfoLevel)

	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs(append(args, "--api", f.url))
	err := cmd.ExecuteContext(context.Background())
	return buf.String(), err
}

func TestOrdersList(t *testing.T) {
	f := newAPIFixture(t)

	out, err := execute(t, f, "orders", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "Office")
	assert.Contains(t, out, "2025-08-12")
}

func TestOrdersList_JSON(t *testing.T) {
	f := newAPIFixture(t)

	out, err := execute(t, f, "orders", "list", "--json")
	require.NoError(t, err)

	var list []client.Order
	require.NoError(t, json.Unmarshal([]byte(out), &list), "output should be valid JSON")
	require.Len(t, list, 1)
	assert.Equal(t, "Office", list[0].Name)
}

func TestOrdersShow(t *testing.T) {
	f := newAPIFixture(t)

	out, err := execute(t, f, "orders", "show", f.orderID)
	require.NoError(t, err)
	assert.Contains(t, out, "Order #"+f.orderID)
	assert.Contains(t, out, "Paper")
	assert.Contains(t, out, "Total: 9.98")
}

func TestOrdersShow_NotFound(t *testing.T) {
	f := newAPIFixture(t)

	_, err := execute(t, f, "orders", "show", "999")
	require.Error(t, err)
	assert.True(t, client.IsNotFound(err))

	_, err = execute(t, f, "orders", "show", "abc")
	require.ErrorContains(t, err, "invalid order id")
}

func TestOrdersEdit_ReplacesProducts(t *testing.T) {
	f := newAPIFixture(t)
	stapler := strconv.FormatInt(f.products[1].ID, 10)

	out, err := execute(t, f, "orders", "edit", f.orderID,
		"--name", "Renamed", "--date", "2025-09-01", "--product", stapler+"=3", "--json")
	require.NoError(t, err)

	var order client.Order
	require.NoError(t, json.Unmarshal([]byte(out), &order))
	assert.Equal(t, "Renamed", order.Name)
	assert.Equal(t, "Monthly", order.Description, "fields without flags are kept")
	assert.Equal(t, "2025-09-01", order.Date)
	require.Len(t, order.Products, 1)
	assert.Equal(t, f.products[1].ID, order.Products[0].ID)
	assert.Equal(t, 3, order.Products[0].Quantity)
}

func TestOrdersEdit_KeepsProductsWithoutFlag(t *testing.T) {
	f := newAPIFixture(t)

	out, err := execute(t, f, "orders", "edit", f.orderID, "--description", "Weekly", "--json")
	require.NoError(t, err)

	var order client.Order
	require.NoError(t, json.Unmarshal([]byte(out), &order))
	assert.Equal(t, "Weekly", order.Description)
	require.Len(t, order.Products, 1)
	assert.Equal(t, 2, order.Products[0].Quantity)

	out, err = execute(t, f, "orders", "edit", f.orderID, "--clear-products", "--json")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &order))
	assert.Empty(t, order.Products)
}

func TestOrdersEdit_Errors(t *testing.T) {
	f := newAPIFixture(t)

	_, err := execute(t, f, "orders", "edit", f.orderID, "--name", "")
	var formErr *client.FormError
	require.ErrorAs(t, err, &formErr)
	assert.Equal(t, "Name is required", formErr.Fields["name"])

	_, err = execute(t, f, "orders", "edit", f.orderID, "--product", "12345=1")
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 422, apiErr.Status)
	assert.Contains(t, RenderError(err), "products.0.id")

	_, err = execute(t, f, "orders", "edit", f.orderID, "--product", "7")
	require.ErrorContains(t, err, "expected id=quantity")

	_, err = execute(t, f, "orders", "edit", f.orderID, "--product", "7=1", "--clear-products")
	require.Error(t, err)
}

func TestOrdersDelete(t *testing.T) {
	f := newAPIFixture(t)

	out, err := execute(t, f, "orders", "delete", f.orderID)
	require.NoError(t, err)
	assert.Contains(t, out, "deleted")

	_, err = execute(t, f, "orders", "delete", f.orderID)
	assert.True(t, client.IsNotFound(err))
}

func TestProductsList(t *testing.T) {
	f := newAPIFixture(t)

	out, err := execute(t, f, "products", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Stapler")
	assert.Contains(t, out, "12.50")
}

func TestEventsTail_RequiresBrokers(t *testing.T) {
	t.Setenv(envKafkaBrokers, "")
	f := newAPIFixture(t)

	_, err := execute(t, f, "events", "tail", "--brokers", "")
	require.ErrorContains(t, err, "no kafka brokers")
}

func TestEventPrinter(t *testing.T) {
	msg, err := domain.NewOrderUpdatedMessage(42,
		domain.OrderPatch{Name: ptr("New")},
		domain.LineDiff{},
		time.Date(2025, time.August, 12, 10, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	env := kafka.NewEnvelope(msg, time.Date(2025, time.August, 12, 10, 0, 1, 0, time.UTC))

	var buf bytes.Buffer
	handler := newEventPrinter(&buf, &rootOptions{})

	require.NoError(t, handler(context.Background(), kafka.Event{Envelope: env, Topic: kafka.TopicOrderEvents}))
	assert.Contains(t, buf.String(), domain.EventOrderUpdated)
	assert.Contains(t, buf.String(), "#42")
	assert.Contains(t, buf.String(), "fields=name")

	buf.Reset()
	jsonHandler := newEventPrinter(&buf, &rootOptions{json: true})
	require.NoError(t, jsonHandler(context.Background(), kafka.Event{Envelope: env}))
	var decoded kafka.Envelope
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, msg.ID, decoded.ID)
}

func TestRenderError_FormFields(t *testing.T) {
	err := client.ValidateForm(&client.Order{})
	out := RenderError(err)
	assert.Contains(t, out, "name: Name is required")
	assert.Contains(t, out, "description: Description is required")

	assert.Contains(t, RenderError(errors.New("boom")), "error: boom")
}

func TestRenderOrders_Empty(t *testing.T) {
	assert.Contains(t, RenderOrders(nil), "no orders")
	assert.Contains(t, RenderProducts(nil), "no products")
}

func ptr[T any](v T) *T { return &v }

func TestRenderOrder_TotalWithoutFloatDrift(t *testing.T) {
	out := RenderOrder(client.Order{ID: 7, Name: "Cents", Date: "2025-01-02", Products: []client.Product{
		{ID: 1, Name: "Pin", Price: 0.1, Quantity: 3},
		{ID: 2, Name: "Clip", Price: 0.2, Quantity: 1},
	}})

	assert.Contains(t, out, "0.30")
	assert.Contains(t, out, "Total: 0.50")
}
