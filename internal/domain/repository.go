package domain

import "context"

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// List возвращает все заказы без позиций, упорядоченные по id.
	List(ctx context.Context) ([]Order, error)
	// Get возвращает заказ с товарами или ErrOrderNotFound.
	Get(ctx context.Context, id int64) (OrderView, error)
	// Exists проверяет наличие заказа без загрузки позиций.
	Exists(ctx context.Context, id int64) (bool, error)
	// Update в одной транзакции применяет патч, синхронизирует позиции
	// и ставит событие order.updated в outbox. При ошибке изменения откатываются.
	Update(ctx context.Context, id int64, patch OrderPatch) (LineDiff, error)
	// Delete удаляет заказ вместе с позициями и ставит событие order.deleted в outbox.
	Delete(ctx context.Context, id int64) error
	// Create сохраняет новый заказ с позициями; используется при наполнении демо-данными.
	Create(ctx context.Context, order Order, lines []LineInput) (Order, error)
}

// ProductRepository описывает каталог товаров.
type ProductRepository interface {
	// List возвращает все товары, упорядоченные по id.
	List(ctx context.Context) ([]Product, error)
	// Create сохраняет новый товар и возвращает его с присвоенным id.
	Create(ctx context.Context, product Product) (Product, error)
	// MissingIDs возвращает идентификаторы из ids, для которых товара нет.
	MissingIDs(ctx context.Context, ids []int64) ([]int64, error)
}
