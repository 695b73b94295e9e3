package api

import (
	"time"

	"github.com/vladislavdragonenkov/orderdesk/internal/domain"
)

type orderResponse struct {
	ID          int64       `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Date        domain.Date `json:"date"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

type orderedProductResponse struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

type orderViewResponse struct {
	ID          int64                    `json:"id"`
	Name        string                   `json:"name"`
	Description string                   `json:"description"`
	Date        domain.Date              `json:"date"`
	Products    []orderedProductResponse `json:"products"`
}

type productResponse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Price     float64   `json:"price"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toOrderResponse(o domain.Order) orderResponse {
	return orderResponse{
		ID:          o.ID,
		Name:        o.Name,
		Description: o.Description,
		Date:        o.Date,
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
	}
}

func toOrderViewResponse(v domain.OrderView) orderViewResponse {
	products := make([]orderedProductResponse, 0, len(v.Products))
	for _, p := range v.Products {
		products = append(products, orderedProductResponse{
			ID:       p.ID,
			Name:     p.Name,
			Price:    p.Price.InexactFloat64(),
			Quantity: p.Quantity,
		})
	}
	return orderViewResponse{
		ID:          v.ID,
		Name:        v.Name,
		Description: v.Description,
		Date:        v.Date,
		Products:    products,
	}
}

func toProductResponse(p domain.Product) productResponse {
	return productResponse{
		ID:        p.ID,
		Name:      p.Name,
		Price:     p.Price.InexactFloat64(),
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}
