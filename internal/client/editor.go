package client

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/vladislavdragonenkov/orderdesk/internal/domain"
)

// OrderUpdater — действие хранилища, через которое редактор сохраняет заказ.
type OrderUpdater interface {
	UpdateOrder(ctx context.Context, order Order) (Order, error)
}

var _ OrderUpdater = (*OrderStore)(nil)

// FormError — ошибки формы заказа по полям (name, description, date, products.N.quantity).
type FormError struct {
	Fields map[string]string
}

func (e *FormError) Error() string {
	return strings.Join(e.Messages(), "; ")
}

// Messages возвращает сообщения, упорядоченные по имени поля.
func (e *FormError) Messages() []string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, e.Fields[k])
	}
	return out
}

// ValidateForm проверяет обязательные поля формы до отправки на сервер.
func ValidateForm(order *Order) error {
	if order == nil {
		return &FormError{Fields: map[string]string{"order": "Order is required"}}
	}
	fields := make(map[string]string)
	if strings.TrimSpace(order.Name) == "" {
		fields["name"] = "Name is required"
	}
	if strings.TrimSpace(order.Description) == "" {
		fields["description"] = "Description is required"
	}
	if strings.TrimSpace(order.Date) == "" {
		fields["date"] = "Date is required"
	} else if _, err := domain.ParseDate(order.Date); err != nil {
		fields["date"] = "Date must be a valid date"
	}
	for i, p := range order.Products {
		if p.Quantity < 1 {
			fields[fmt.Sprintf("products.%d.quantity", i)] = "Quantity must be at least 1"
		}
	}
	if len(fields) == 0 {
		return nil
	}
	return &FormError{Fields: fields}
}

// OrderEditor — карточка заказа с режимом редактирования.
// При входе в режим редактирования рабочий заказ заменяется глубокой копией,
// поэтому правки не затрагивают заказ, закэшированный в хранилище.
type OrderEditor struct {
	store OrderUpdater
	order *Order
	edit  bool
}

// NewOrderEditor создаёт редактор для заказа order.
func NewOrderEditor(store OrderUpdater, order *Order) *OrderEditor {
	return &OrderEditor{store: store, order: order}
}

// Order возвращает текущий рабочий заказ.
func (e *OrderEditor) Order() *Order { return e.order }

// Editing сообщает, включён ли режим редактирования.
func (e *OrderEditor) Editing() bool { return e.edit }

// TriggerEdit переключает режим редактирования.
// Выход из режима без Submit оставляет рабочую копию как есть.
func (e *OrderEditor) TriggerEdit() {
	e.edit = !e.edit
	if e.edit {
		e.order = e.order.Clone()
	}
}

// Submit проверяет форму, сохраняет заказ через хранилище, показывает отправленное значение
// и выходит из режима редактирования. Если форма невалидна, хранилище не вызывается
// и редактор остаётся в режиме редактирования.
func (e *OrderEditor) Submit(ctx context.Context, updated *Order) error {
	if err := ValidateForm(updated); err != nil {
		return err
	}
	_, err := e.store.UpdateOrder(ctx, *updated)
	e.order = updated
	e.edit = false
	return err
}
