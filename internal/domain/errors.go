package domain

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

var (
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// ValidationError собирает ошибки входных данных по полям.
// Ключи полей совпадают с путями в JSON: name, date, products.0.quantity.
type ValidationError struct {
	Fields map[string][]string
}

// NewValidationError создаёт пустой набор ошибок валидации.
func NewValidationError() *ValidationError {
	return &ValidationError{Fields: make(map[string][]string)}
}

// Add добавляет сообщение к полю.
func (e *ValidationError) Add(field, message string) {
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	e.Fields[field] = append(e.Fields[field], message)
}

// Merge переносит сообщения другого набора.
func (e *ValidationError) Merge(other *ValidationError) {
	if other == nil {
		return
	}
	for field, messages := range other.Fields {
		for _, m := range messages {
			e.Add(field, m)
		}
	}
}

// Empty сообщает, что ошибок нет.
func (e *ValidationError) Empty() bool {
	return e == nil || len(e.Fields) == 0
}

// OrNil возвращает nil для пустого набора, чтобы не получить typed-nil error.
func (e *ValidationError) OrNil() error {
	if e.Empty() {
		return nil
	}
	return e
}

// Error формирует сводку: первое сообщение и количество остальных.
func (e *ValidationError) Error() string {
	messages := e.messages()
	if len(messages) == 0 {
		return "The given data was invalid."
	}
	first := messages[0]
	rest := len(messages) - 1
	switch rest {
	case 0:
		return first
	case 1:
		return fmt.Sprintf("%s (and 1 more error)", first)
	default:
		return fmt.Sprintf("%s (and %d more errors)", first, rest)
	}
}

// messages возвращает сообщения в порядке полей: скаляры раньше позиций, позиции по индексу.
func (e *ValidationError) messages() []string {
	if e == nil {
		return nil
	}
	fields := make([]string, 0, len(e.Fields))
	for field := range e.Fields {
		fields = append(fields, field)
	}
	sort.Slice(fields, func(i, j int) bool { return fieldLess(fields[i], fields[j]) })

	var out []string
	for _, field := range fields {
		out = append(out, e.Fields[field]...)
	}
	return out
}

func fieldLess(a, b string) bool {
	pa, pb := strings.Split(a, "."), strings.Split(b, ".")
	for i := 0; i < len(pa) && i < len(pb); i++ {
		if pa[i] == pb[i] {
			continue
		}
		na, errA := strconv.Atoi(pa[i])
		nb, errB := strconv.Atoi(pb[i])
		if errA == nil && errB == nil {
			return na < nb
		}
		return fieldRank(pa[i]) < fieldRank(pb[i]) || (fieldRank(pa[i]) == fieldRank(pb[i]) && pa[i] < pb[i])
	}
	return len(pa) < len(pb)
}

var fieldOrder = map[string]int{"name": 0, "description": 1, "date": 2, "products": 3, "id": 4, "quantity": 5}

func fieldRank(s string) int {
	if r, ok := fieldOrder[s]; ok {
		return r
	}
	return len(fieldOrder)
}

// UpdateFailedError означает, что транзакция обновления заказа откатилась.
type UpdateFailedError struct {
	Cause error
}

func (e *UpdateFailedError) Error() string {
	if e.Cause == nil {
		return "Update failed"
	}
	return "Update failed: " + e.Cause.Error()
}

func (e *UpdateFailedError) Unwrap() error { return e.Cause }

// IsNotFound проверяет, относится ли ошибка к отсутствующему заказу.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrOrderNotFound)
}

// IsValidation проверяет, является ли ошибка ошибкой валидации.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
