package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/vladislavdragonenkov/orderdesk/internal/domain"
)

// updateOrderRequest — тело PUT /api/orders/:id. Отсутствующее поле и null означают «не менять».
// Здесь проверяется только форма данных; ограничения значений проверяет domain.OrderPatch.
type updateOrderRequest struct {
	Name        *string       `json:"name"`
	Description *string       `json:"description"`
	Date        *string       `json:"date" binding:"omitempty,calendar_date"`
	Products    []lineRequest `json:"products" binding:"omitempty,dive"`
}

type lineRequest struct {
	ID       *int64 `json:"id" binding:"required"`
	Quantity *int   `json:"quantity" binding:"required"`
}

// toPatch переводит запрос в доменный патч. Неразборчивая дата даёт нулевую Date,
// которую отвергает domain.OrderPatch.Validate.
func (r updateOrderRequest) toPatch() domain.OrderPatch {
	patch := domain.OrderPatch{
		Name:        r.Name,
		Description: r.Description,
	}
	if r.Date != nil {
		date, err := domain.ParseDate(*r.Date)
		if err != nil {
			date = domain.Date{}
		}
		patch.Date = &date
	}
	if r.Products != nil {
		patch.Products = make([]domain.LineInput, 0, len(r.Products))
		for _, line := range r.Products {
			in := domain.LineInput{}
			if line.ID != nil {
				in.ProductID = *line.ID
			}
			if line.Quantity != nil {
				in.Quantity = *line.Quantity
			}
			patch.Products = append(patch.Products, in)
		}
	}
	return patch
}

var registerOnce sync.Once

// registerValidations подключает к валидатору gin json-имена полей и правило calendar_date.
func registerValidations() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		_ = v.RegisterValidation("calendar_date", func(fl validator.FieldLevel) bool {
			_, err := domain.ParseDate(fl.Field().String())
			return err == nil
		})
	})
}

var indexPattern = regexp.MustCompile(`\[(\d+)\]`)

// fieldKey превращает namespace валидатора (updateOrderRequest.products[0].id) в ключ products.0.id.
func fieldKey(namespace string) string {
	if i := strings.Index(namespace, "."); i >= 0 {
		namespace = namespace[i+1:]
	}
	return indexPattern.ReplaceAllString(namespace, ".$1")
}

// bindError переводит ошибку разбора тела в ответ: *domain.ValidationError для
// нарушений формы и типов, error для синтаксически битого JSON.
// body нужен, чтобы восстановить индекс позиции для ошибок типа внутри products.
func bindError(err error, body []byte) error {
	var (
		verrs   validator.ValidationErrors
		typeErr *json.UnmarshalTypeError
	)
	switch {
	case errors.As(err, &verrs):
		out := domain.NewValidationError()
		for _, fe := range verrs {
			key := fieldKey(fe.Namespace())
			out.Add(key, fieldMessage(key, fe.Tag()))
		}
		return out
	case errors.As(err, &typeErr):
		key := typeErr.Field
		if key == "" {
			key = "body"
		}
		if key == "products" || strings.HasPrefix(key, "products.") {
			key = productsTypeErrorKey(key, body)
		}
		out := domain.NewValidationError()
		out.Add(key, fmt.Sprintf("The %s field must be %s.", key, describeKind(typeErr.Type)))
		return out
	default:
		return err
	}
}

// productsTypeErrorKey ищет первую позицию, которая не разбирается в lineRequest,
// и возвращает ключ с её индексом: products.1.quantity. encoding/json индекс не сообщает.
func productsTypeErrorKey(key string, body []byte) string {
	var envelope struct {
		Products []json.RawMessage `json:"products"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return key
	}
	for i, raw := range envelope.Products {
		var line lineRequest
		var typeErr *json.UnmarshalTypeError
		if err := json.Unmarshal(raw, &line); errors.As(err, &typeErr) {
			indexed := "products." + strconv.Itoa(i)
			if typeErr.Field != "" {
				indexed += "." + typeErr.Field
			}
			return indexed
		}
	}
	return key
}

func fieldMessage(key, tag string) string {
	switch tag {
	case "required":
		return fmt.Sprintf("The %s field is required.", key)
	case "calendar_date":
		return fmt.Sprintf("The %s field must be a valid date.", key)
	default:
		return fmt.Sprintf("The %s field is invalid.", key)
	}
}

func describeKind(t reflect.Type) string {
	if t == nil {
		return "valid"
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return "an integer"
	case reflect.String:
		return "a string"
	case reflect.Slice, reflect.Array:
		return "an array"
	case reflect.Struct, reflect.Map:
		return "an object"
	default:
		return "valid"
	}
}
