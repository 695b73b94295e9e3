// Package health отдаёт состояние order API: /healthz, /livez и /readyz.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vladislavdragonenkov/orderdesk/internal/domain"
)

// DefaultCheckTimeout ограничивает время одной проверки.
const DefaultCheckTimeout = 2 * time.Second

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// CheckFunc проверяет один компонент. Ошибка, обёрнутая Degraded, не снимает готовность.
type CheckFunc func(ctx context.Context) error

type degradedError struct{ err error }

func (e degradedError) Error() string { return e.err.Error() }
func (e degradedError) Unwrap() error { return e.err }

// Degraded помечает ошибку проверки как некритичную.
func Degraded(err error) error {
	if err == nil {
		return nil
	}
	return degradedError{err: err}
}

// Component — результат проверки одного компонента.
type Component struct {
	Status     Status `json:"status"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Report — тело ответа /healthz.
type Report struct {
	Status        Status               `json:"status"`
	Version       string               `json:"version,omitempty"`
	UptimeSeconds int64                `json:"uptime_seconds"`
	CheckedAt     time.Time            `json:"checked_at"`
	Components    map[string]Component `json:"components,omitempty"`
}

// Handler выполняет зарегистрированные проверки.
type Handler struct {
	mu      sync.RWMutex
	checks  map[string]CheckFunc
	version string
	started time.Time
	timeout time.Duration
	now     func() time.Time
}

func NewHandler(version string) *Handler {
	return &Handler{
		checks:  make(map[string]CheckFunc),
		version: version,
		started: time.Now(),
		timeout: DefaultCheckTimeout,
		now:     time.Now,
	}
}

// SetTimeout меняет ограничение времени одной проверки.
func (h *Handler) SetTimeout(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if d > 0 {
		h.timeout = d
	}
}

// Register добавляет проверку; повторная регистрация имени заменяет её.
func (h *Handler) Register(name string, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

// Report выполняет проверки параллельно. Общий статус — худший из статусов компонентов.
func (h *Handler) Report(ctx context.Context) Report {
	h.mu.RLock()
	checks := make(map[string]CheckFunc, len(h.checks))
	for name, check := range h.checks {
		checks[name] = check
	}
	timeout := h.timeout
	h.mu.RUnlock()

	var mu sync.Mutex
	report := Report{
		Status:        StatusHealthy,
		Version:       h.version,
		UptimeSeconds: int64(h.now().Sub(h.started).Seconds()),
		CheckedAt:     h.now().UTC(),
		Components:    make(map[string]Component, len(checks)),
	}

	var g errgroup.Group
	for name, check := range checks {
		g.Go(func() error {
			component := run(ctx, check, timeout)
			mu.Lock()
			defer mu.Unlock()
			report.Components[name] = component
			report.Status = worse(report.Status, component.Status)
			return nil
		})
	}
	_ = g.Wait()
	return report
}

func run(ctx context.Context, check CheckFunc, timeout time.Duration) Component {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := check(ctx)
	component := Component{Status: StatusHealthy, DurationMs: time.Since(start).Milliseconds()}
	if err == nil {
		return component
	}
	component.Error = err.Error()
	component.Status = StatusUnhealthy
	var degraded degradedError
	if errors.As(err, &degraded) {
		component.Status = StatusDegraded
	}
	return component
}

func worse(a, b Status) Status {
	rank := map[Status]int{StatusHealthy: 0, StatusDegraded: 1, StatusUnhealthy: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

// ServeHTTP отдаёт Report в JSON; 503, если хотя бы один компонент unhealthy.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	report := h.Report(r.Context())
	code := http.StatusOK
	if report.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(report)
}

// Ready отвечает 200, пока нет unhealthy компонентов.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.Report(r.Context()).Status == StatusUnhealthy {
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}
	_, _ = w.Write([]byte("ready"))
}

// Live всегда отвечает 200: процесс жив, пока обслуживает HTTP.
func Live(w http.ResponseWriter, _ *http.Request) {
	_, _ = w.Write([]byte("ok"))
}

// Pinger — компонент с проверкой соединения (хранилище, брокер).
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping проверяет доступность компонента.
func Ping(p Pinger) CheckFunc {
	return p.Ping
}

// BacklogSource отдаёт состояние outbox.
type BacklogSource interface {
	Stats(ctx context.Context) (domain.OutboxStats, error)
}

// OutboxBacklog сообщает degraded, если самое старое неотправленное событие заказа старше maxLag.
// Недоступность outbox — unhealthy: это то же хранилище, что и у заказов.
func OutboxBacklog(src BacklogSource, maxLag time.Duration, now func() time.Time) CheckFunc {
	if now == nil {
		now = time.Now
	}
	return func(ctx context.Context) error {
		stats, err := src.Stats(ctx)
		if err != nil {
			return fmt.Errorf("outbox stats: %w", err)
		}
		if stats.PendingCount == 0 || stats.OldestPendingAt.IsZero() || maxLag <= 0 {
			return nil
		}
		if lag := now().Sub(stats.OldestPendingAt); lag > maxLag {
			return Degraded(fmt.Errorf("%d order events pending, oldest %s old", stats.PendingCount, lag.Truncate(time.Second)))
		}
		return nil
	}
}
