// Package orders содержит прикладную логику работы с заказами:
// чтение, удаление и транзакционное обновление с синхронизацией товаров.
package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderdesk/internal/domain"
	"github.com/vladislavdragonenkov/orderdesk/internal/metrics"
)

// Recorder собирает метрики операций сервиса.
type Recorder interface {
	RecordOperation(operation, result string, duration time.Duration)
	RecordLinesSynced(inserted, updated, deleted int)
	SetListedOrders(n int)
}

// Service реализует операции над заказами поверх репозиториев.
type Service struct {
	orders   domain.OrderRepository
	products domain.ProductRepository
	logger   *log.Entry
	metrics  Recorder
}

// NewService создаёт сервис заказов. metrics может быть nil.
func NewService(orders domain.OrderRepository, products domain.ProductRepository, logger *log.Entry, recorder Recorder) *Service {
	if logger == nil {
		logger = log.WithField("component", "orders-service")
	}
	if recorder == nil {
		recorder = (*metrics.OrderMetrics)(nil)
	}
	return &Service{
		orders:   orders,
		products: products,
		logger:   logger,
		metrics:  recorder,
	}
}

// ListOrders возвращает все заказы без товаров.
func (s *Service) ListOrders(ctx context.Context) ([]domain.Order, error) {
	start := time.Now()

	list, err := s.orders.List(ctx)
	if err != nil {
		s.metrics.RecordOperation("list", metrics.ResultFailed, time.Since(start))
		return nil, fmt.Errorf("list orders: %w", err)
	}

	s.metrics.RecordOperation("list", metrics.ResultOK, time.Since(start))
	s.metrics.SetListedOrders(len(list))
	return list, nil
}

// GetOrder возвращает заказ вместе с товарами.
func (s *Service) GetOrder(ctx context.Context, id int64) (domain.OrderView, error) {
	start := time.Now()

	view, err := s.orders.Get(ctx, id)
	if err != nil {
		s.metrics.RecordOperation("get", resultOf(err), time.Since(start))
		if domain.IsNotFound(err) {
			return domain.OrderView{}, err
		}
		return domain.OrderView{}, fmt.Errorf("get order %d: %w", id, err)
	}

	s.metrics.RecordOperation("get", metrics.ResultOK, time.Since(start))
	return view, nil
}

// UpdateOrder проверяет патч, применяет его в одной транзакции и возвращает свежее представление заказа.
//
// Ошибки:
//   - *domain.ValidationError — входные данные некорректны, заказ не читался и не менялся;
//   - domain.ErrOrderNotFound — заказа нет;
//   - *domain.UpdateFailedError — транзакция откатилась.
func (s *Service) UpdateOrder(ctx context.Context, id int64, patch domain.OrderPatch) (view domain.OrderView, err error) {
	start := time.Now()
	defer func() {
		s.metrics.RecordOperation("update", resultOf(err), time.Since(start))
	}()

	if err := s.validate(ctx, patch); err != nil {
		return domain.OrderView{}, err
	}

	exists, err := s.orders.Exists(ctx, id)
	if err != nil {
		return domain.OrderView{}, fmt.Errorf("check order %d: %w", id, err)
	}
	if !exists {
		return domain.OrderView{}, domain.ErrOrderNotFound
	}

	diff, err := s.orders.Update(ctx, id, patch)
	if err != nil {
		if domain.IsNotFound(err) {
			return domain.OrderView{}, err
		}
		s.logger.WithError(err).WithField("order_id", id).Error("order update rolled back")
		return domain.OrderView{}, &domain.UpdateFailedError{Cause: err}
	}
	s.metrics.RecordLinesSynced(len(diff.Insert), len(diff.Update), len(diff.Delete))

	view, err = s.orders.Get(ctx, id)
	if err != nil {
		return domain.OrderView{}, fmt.Errorf("reload order %d: %w", id, err)
	}

	s.logger.WithFields(log.Fields{
		"order_id":         id,
		"fields":           patch.ChangedFields(),
		"lines_inserted":   len(diff.Insert),
		"lines_updated":    len(diff.Update),
		"lines_deleted":    len(diff.Delete),
		"products_present": patch.HasProducts(),
		"total":            view.Total().StringFixed(2),
	}).Info("order updated")

	return view, nil
}

// DeleteOrder удаляет заказ вместе с позициями.
func (s *Service) DeleteOrder(ctx context.Context, id int64) error {
	start := time.Now()

	err := s.orders.Delete(ctx, id)
	s.metrics.RecordOperation("delete", resultOf(err), time.Since(start))
	if err != nil {
		if domain.IsNotFound(err) {
			return err
		}
		return fmt.Errorf("delete order %d: %w", id, err)
	}

	s.logger.WithField("order_id", id).Info("order deleted")
	return nil
}

// ListProducts возвращает каталог товаров.
func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	list, err := s.products.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return list, nil
}

// validate проверяет ограничения патча и существование всех упомянутых товаров.
func (s *Service) validate(ctx context.Context, patch domain.OrderPatch) error {
	verr := domain.NewValidationError()

	var shapeErr *domain.ValidationError
	if err := patch.Validate(); errors.As(err, &shapeErr) {
		verr.Merge(shapeErr)
	}

	if patch.HasProducts() {
		ids := make([]int64, 0, len(patch.Products))
		for _, id := range patch.ProductIDs() {
			if id > 0 {
				ids = append(ids, id)
			}
		}
		if len(ids) > 0 {
			missing, err := s.products.MissingIDs(ctx, ids)
			if err != nil {
				return fmt.Errorf("check products: %w", err)
			}
			var missingErr *domain.ValidationError
			if err := patch.MissingProductsError(missing); errors.As(err, &missingErr) {
				verr.Merge(missingErr)
			}
		}
	}

	return verr.OrNil()
}

func resultOf(err error) string {
	var (
		verr    *domain.ValidationError
		failure *domain.UpdateFailedError
	)
	switch {
	case err == nil:
		return metrics.ResultOK
	case domain.IsNotFound(err):
		return metrics.ResultNotFound
	case errors.As(err, &verr):
		return metrics.ResultInvalid
	case errors.As(err, &failure):
		return metrics.ResultRolledBack
	default:
		return metrics.ResultFailed
	}
}
