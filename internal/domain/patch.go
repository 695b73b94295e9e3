package domain

import (
	"fmt"
	"unicode/utf8"
)

// OrderPatch — частичное обновление заказа. Nil-поле означает «не передано».
// Products == nil оставляет позиции как есть, пустой не-nil срез удаляет все позиции.
type OrderPatch struct {
	Name        *string
	Description *string
	Date        *Date
	Products    []LineInput
}

// LineInput — желаемая позиция заказа.
type LineInput struct {
	ProductID int64
	Quantity  int
}

// HasProducts сообщает, что патч задаёт состав позиций.
func (p OrderPatch) HasProducts() bool {
	return p.Products != nil
}

// ProductIDs возвращает уникальные идентификаторы товаров патча в порядке появления.
func (p OrderPatch) ProductIDs() []int64 {
	seen := make(map[int64]struct{}, len(p.Products))
	ids := make([]int64, 0, len(p.Products))
	for _, line := range p.Products {
		if _, ok := seen[line.ProductID]; ok {
			continue
		}
		seen[line.ProductID] = struct{}{}
		ids = append(ids, line.ProductID)
	}
	return ids
}

// ChangedFields перечисляет имена полей, присутствующих в патче.
func (p OrderPatch) ChangedFields() []string {
	var fields []string
	if p.Name != nil {
		fields = append(fields, "name")
	}
	if p.Description != nil {
		fields = append(fields, "description")
	}
	if p.Date != nil {
		fields = append(fields, "date")
	}
	if p.Products != nil {
		fields = append(fields, "products")
	}
	return fields
}

// Validate проверяет ограничения патча, не обращаясь к хранилищу.
// Существование товаров проверяет сервис.
func (p OrderPatch) Validate() error {
	verr := NewValidationError()

	if p.Name != nil && utf8.RuneCountInString(*p.Name) > MaxOrderNameLength {
		verr.Add("name", fmt.Sprintf("The name field must not be greater than %d characters.", MaxOrderNameLength))
	}
	if p.Date != nil && p.Date.IsZero() {
		verr.Add("date", "The date field must be a valid date.")
	}
	for i, line := range p.Products {
		if line.ProductID <= 0 {
			verr.Add(fmt.Sprintf("products.%d.id", i), fmt.Sprintf("The selected products.%d.id is invalid.", i))
		}
		if line.Quantity < 1 {
			verr.Add(fmt.Sprintf("products.%d.quantity", i), fmt.Sprintf("The products.%d.quantity field must be at least 1.", i))
		}
	}

	return verr.OrNil()
}

// MissingProductsError строит ошибку валидации для позиций, ссылающихся на несуществующие товары.
func (p OrderPatch) MissingProductsError(missing []int64) error {
	if len(missing) == 0 {
		return nil
	}
	absent := make(map[int64]struct{}, len(missing))
	for _, id := range missing {
		absent[id] = struct{}{}
	}

	verr := NewValidationError()
	for i, line := range p.Products {
		if _, ok := absent[line.ProductID]; ok {
			verr.Add(fmt.Sprintf("products.%d.id", i), fmt.Sprintf("The selected products.%d.id is invalid.", i))
		}
	}
	return verr.OrNil()
}
