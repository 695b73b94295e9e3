package client

import "github.com/shopspring/decimal"

// Product — товар каталога или позиция заказа (Quantity заполнен только в заказе).
type Product struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity,omitempty"`
}

// LineTotal — стоимость позиции: price * quantity.
func (p Product) LineTotal() decimal.Decimal {
	return decimal.NewFromFloat(p.Price).Mul(decimal.NewFromInt(int64(p.Quantity)))
}

// Order — заказ в том виде, в котором его отдаёт API.
// В списке заказов Products == nil, в карточке заказа — всегда не-nil.
type Order struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Date        string    `json:"date"`
	Products    []Product `json:"products,omitempty"`
}

// Total суммирует позиции заказа без накопления ошибки float64.
func (o Order) Total() decimal.Decimal {
	total := decimal.Zero
	for _, p := range o.Products {
		total = total.Add(p.LineTotal())
	}
	return total
}

// Clone возвращает глубокую копию заказа: позиции копии не разделяют память с оригиналом.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	out := *o
	if o.Products != nil {
		out.Products = make([]Product, len(o.Products))
		copy(out.Products, o.Products)
	}
	return &out
}

type lineRequest struct {
	ID       int64 `json:"id"`
	Quantity int   `json:"quantity"`
}

// updateRequest — тело PUT /api/orders/{id}. Пустые поля не отправляются, и сервер их не трогает.
// Если позиции не загружены, products тоже не отправляется и состав заказа остаётся прежним.
type updateRequest struct {
	Name        string         `json:"name,omitempty"`
	Description string         `json:"description,omitempty"`
	Date        string         `json:"date,omitempty"`
	Products    *[]lineRequest `json:"products,omitempty"`
}

func newUpdateRequest(o Order) updateRequest {
	req := updateRequest{
		Name:        o.Name,
		Description: o.Description,
		Date:        o.Date,
	}
	if o.Products != nil {
		lines := make([]lineRequest, 0, len(o.Products))
		for _, p := range o.Products {
			lines = append(lines, lineRequest{ID: p.ID, Quantity: p.Quantity})
		}
		req.Products = &lines
	}
	return req
}

type messageResponse struct {
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors,omitempty"`
}
