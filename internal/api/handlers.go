package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"github.com/vladislavdragonenkov/orderdesk/internal/domain"
)

const (
	msgOrderNotFound = "Order not found"
	msgOrderDeleted  = "Order deleted successfully"
	msgServerError   = "Server Error"
)

func (s *Server) listOrders(c *gin.Context) {
	list, err := s.orders.ListOrders(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	out := make([]orderResponse, 0, len(list))
	for _, o := range list {
		out = append(out, toOrderResponse(o))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) getOrder(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}
	view, err := s.orders.GetOrder(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderViewResponse(view))
}

func (s *Server) updateOrder(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}

	var req updateOrderRequest
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil && !errors.Is(err, io.EOF) {
		body, _ := c.Get(gin.BodyBytesKey)
		raw, _ := body.([]byte)
		bindErr := bindError(err, raw)
		if domain.IsValidation(bindErr) {
			s.fail(c, bindErr)
			return
		}
		_ = c.Error(err)
		c.JSON(http.StatusBadRequest, gin.H{"message": "Malformed JSON body"})
		return
	}

	view, err := s.orders.UpdateOrder(c.Request.Context(), id, req.toPatch())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderViewResponse(view))
}

func (s *Server) deleteOrder(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}
	if err := s.orders.DeleteOrder(c.Request.Context(), id); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msgOrderDeleted})
}

func (s *Server) listProducts(c *gin.Context) {
	list, err := s.orders.ListProducts(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	out := make([]productResponse, 0, len(list))
	for _, p := range list {
		out = append(out, toProductResponse(p))
	}
	c.JSON(http.StatusOK, out)
}

// orderID разбирает :id. Нечисловой идентификатор не может соответствовать заказу, поэтому 404.
func orderID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"message": msgOrderNotFound})
		return 0, false
	}
	return id, true
}

// fail сопоставляет доменную ошибку с HTTP-ответом.
func (s *Server) fail(c *gin.Context, err error) {
	_ = c.Error(err)

	var (
		verr   *domain.ValidationError
		failed *domain.UpdateFailedError
	)
	switch {
	case domain.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"message": msgOrderNotFound})
	case errors.As(err, &verr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"message": verr.Error(),
			"errors":  verr.Fields,
		})
	case errors.As(err, &failed):
		c.JSON(http.StatusInternalServerError, gin.H{"message": failed.Error()})
	default:
		s.logger.WithError(err).WithField("path", c.Request.URL.Path).Error("unexpected error")
		c.JSON(http.StatusInternalServerError, gin.H{"message": msgServerError})
	}
}
