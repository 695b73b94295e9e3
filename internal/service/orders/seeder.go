package orders

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderdesk/internal/domain"
)

var (
	demoProductNames = []string{
		"Copy paper A4", "Stapler", "Ballpoint pen", "Notebook", "Desk lamp",
		"Whiteboard marker", "Paper clips", "Sticky notes", "Folder", "Calculator",
		"Scissors", "Tape dispenser", "Highlighter", "Envelope pack", "Mouse pad",
	}
	demoOrderWords = []string{
		"Office", "Warehouse", "Branch", "Reception", "Workshop", "Studio", "Lab",
	}
)

const (
	minProductsPerOrder = 2
	maxProductsPerOrder = 5
	maxQuantity         = 3
	seedDateWindowDays  = 90
)

// SeedCounter получает количество созданных заказов.
type SeedCounter interface {
	RecordSeeded(n int)
}

// SeedResult описывает созданные демо-данные.
type SeedResult struct {
	Products int
	Orders   int
}

// Seeder наполняет хранилище демо-товарами и заказами.
// К каждому заказу привязывается от 2 до 5 случайных товаров с количеством 1..3.
type Seeder struct {
	orders   domain.OrderRepository
	products domain.ProductRepository
	rnd      *rand.Rand
	now      func() time.Time
	logger   *log.Entry
	counter  SeedCounter
}

// NewSeeder создаёт seeder. seed фиксирует генератор случайных чисел (0 — случайный).
func NewSeeder(orders domain.OrderRepository, products domain.ProductRepository, seed uint64, logger *log.Entry, counter SeedCounter) *Seeder {
	if logger == nil {
		logger = log.WithField("component", "orders-seeder")
	}
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &Seeder{
		orders:   orders,
		products: products,
		rnd:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		now:      time.Now,
		logger:   logger,
		counter:  counter,
	}
}

// Seed создаёт productCount товаров (если каталог пуст) и orderCount заказов.
func (s *Seeder) Seed(ctx context.Context, productCount, orderCount int) (SeedResult, error) {
	var result SeedResult

	catalog, err := s.products.List(ctx)
	if err != nil {
		return result, fmt.Errorf("list products: %w", err)
	}
	if len(catalog) == 0 {
		for i := 0; i < productCount; i++ {
			p, err := s.products.Create(ctx, s.demoProduct(i))
			if err != nil {
				return result, fmt.Errorf("create demo product: %w", err)
			}
			catalog = append(catalog, p)
			result.Products++
		}
	}
	if len(catalog) == 0 {
		return result, nil
	}

	for i := 0; i < orderCount; i++ {
		order, lines := s.demoOrder(i, catalog)
		if _, err := s.orders.Create(ctx, order, lines); err != nil {
			return result, fmt.Errorf("create demo order: %w", err)
		}
		result.Orders++
	}

	if s.counter != nil {
		s.counter.RecordSeeded(result.Orders)
	}
	s.logger.WithFields(log.Fields{
		"products": result.Products,
		"orders":   result.Orders,
	}).Info("demo data seeded")

	return result, nil
}

func (s *Seeder) demoProduct(i int) domain.Product {
	name := demoProductNames[i%len(demoProductNames)]
	if i >= len(demoProductNames) {
		name = fmt.Sprintf("%s #%d", name, i/len(demoProductNames)+1)
	}
	cents := 100 + s.rnd.Int64N(9900)
	return domain.Product{
		Name:  name,
		Price: decimal.New(cents, -2),
	}
}

func (s *Seeder) demoOrder(i int, catalog []domain.Product) (domain.Order, []domain.LineInput) {
	word := demoOrderWords[s.rnd.IntN(len(demoOrderWords))]
	daysAgo := s.rnd.IntN(seedDateWindowDays)

	order := domain.Order{
		Name:        fmt.Sprintf("%s order %d", word, i+1),
		Description: fmt.Sprintf("Demo order for the %s", word),
		Date:        domain.DateOf(s.now().AddDate(0, 0, -daysAgo)),
	}

	count := minProductsPerOrder + s.rnd.IntN(maxProductsPerOrder-minProductsPerOrder+1)
	if count > len(catalog) {
		count = len(catalog)
	}

	lines := make([]domain.LineInput, 0, count)
	for _, idx := range s.rnd.Perm(len(catalog))[:count] {
		lines = append(lines, domain.LineInput{
			ProductID: catalog[idx].ID,
			Quantity:  1 + s.rnd.IntN(maxQuantity),
		})
	}
	return order, lines
}

// SeedIfEmpty вызывает Seed, только если в хранилище нет ни одного заказа.
func (s *Seeder) SeedIfEmpty(ctx context.Context, productCount, orderCount int) (SeedResult, error) {
	existing, err := s.orders.List(ctx)
	if err != nil {
		return SeedResult{}, fmt.Errorf("list orders: %w", err)
	}
	if len(existing) > 0 {
		s.logger.WithField("orders", len(existing)).Debug("storage already has orders, skip seeding")
		return SeedResult{}, nil
	}
	return s.Seed(ctx, productCount, orderCount)
}
