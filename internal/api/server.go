// Package api реализует REST API заказов и товаров поверх gin.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderdesk/internal/domain"
	"github.com/vladislavdragonenkov/orderdesk/internal/metrics"
)

// OrderService — операции, которые обслуживает API.
type OrderService interface {
	ListOrders(ctx context.Context) ([]domain.Order, error)
	GetOrder(ctx context.Context, id int64) (domain.OrderView, error)
	UpdateOrder(ctx context.Context, id int64, patch domain.OrderPatch) (domain.OrderView, error)
	DeleteOrder(ctx context.Context, id int64) error
	ListProducts(ctx context.Context) ([]domain.Product, error)
}

// CORSConfig задаёт заголовки Access-Control-* для всех ответов.
type CORSConfig struct {
	AllowOrigins []string      `yaml:"allow_origins"`
	AllowMethods []string      `yaml:"allow_methods"`
	AllowHeaders []string      `yaml:"allow_headers"`
	MaxAge       time.Duration `yaml:"max_age"`
}

// DefaultCORSConfig разрешает любые источники и стандартные методы API.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", "Authorization", "X-Request-ID"},
		MaxAge:       24 * time.Hour,
	}
}

// Server связывает gin.Engine с сервисом заказов.
type Server struct {
	engine  *gin.Engine
	orders  OrderService
	logger  *log.Entry
	metrics *metrics.HTTPMetrics
}

// NewServer создаёт REST-сервер. logger и httpMetrics могут быть nil.
func NewServer(orders OrderService, cors CORSConfig, logger *log.Entry, httpMetrics *metrics.HTTPMetrics) *Server {
	if logger == nil {
		logger = log.WithField("component", "http-api")
	}
	registerValidations()

	r := gin.New()
	s := &Server{engine: r, orders: orders, logger: logger, metrics: httpMetrics}
	r.Use(
		requestID(),
		s.recovery(),
		s.observe(),
		corsMiddleware(cors),
	)
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"message": "Not found"})
	})
	s.registerRoutes()
	return s
}

// Engine возвращает http.Handler сервера.
func (s *Server) Engine() *gin.Engine { return s.engine }

func (s *Server) registerRoutes() {
	api := s.engine.Group("/api")
	{
		orders := api.Group("/orders")
		orders.GET("", s.listOrders)
		orders.GET("/:id", s.getOrder)
		orders.PUT("/:id", s.updateOrder)
		orders.DELETE("/:id", s.deleteOrder)

		api.GET("/products", s.listProducts)
	}
}
