package domain

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// MaxOrderNameLength — ограничение длины названия заказа в символах.
const MaxOrderNameLength = 255

// Product описывает товар каталога.
type Product struct {
	ID    int64
	Name  string
	Price decimal.Decimal
	// CreatedAt/UpdatedAt заполняются хранилищем.
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Order хранит скалярные поля заказа без позиций.
type Order struct {
	ID          int64
	Name        string
	Description string
	Date        Date
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// OrderLine — связь заказа с товаром и количеством.
// Для пары (заказ, товар) существует не более одной строки.
type OrderLine struct {
	OrderID   int64
	ProductID int64
	Quantity  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// OrderedProduct — товар в составе заказа вместе с количеством.
type OrderedProduct struct {
	Product
	Quantity int
}

// OrderView — заказ вместе с товарами, в том виде, в котором его отдаёт API.
type OrderView struct {
	Order
	Products []OrderedProduct
}

// SortProducts упорядочивает товары заказа по идентификатору.
func (v *OrderView) SortProducts() {
	sort.Slice(v.Products, func(i, j int) bool {
		return v.Products[i].ID < v.Products[j].ID
	})
}

// Total считает сумму заказа: price * quantity по всем позициям.
func (v OrderView) Total() decimal.Decimal {
	total := decimal.Zero
	for _, p := range v.Products {
		total = total.Add(p.Price.Mul(decimal.NewFromInt(int64(p.Quantity))))
	}
	return total
}

// Apply переносит в заказ присутствующие в патче скалярные поля.
func (o *Order) Apply(patch OrderPatch) {
	if patch.Name != nil {
		o.Name = *patch.Name
	}
	if patch.Description != nil {
		o.Description = *patch.Description
	}
	if patch.Date != nil {
		o.Date = *patch.Date
	}
}
