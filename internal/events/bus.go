package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"incident-portal/internal/metrics"
)

// Type is the kind of row change.
type Type string

const (
	Insert Type = "INSERT"
	Update Type = "UPDATE"
)

const (
	TableReports     = "reports"
	TableAssignments = "assignments"
	TableCommanders  = "commanders"

	// AllTables subscribes a handler to every table.
	AllTables = "*"
)

// Change describes one committed row change. Record is a snapshot of the row
// after the change and must be safe to share between goroutines.
type Change struct {
	Table      string    `json:"table"`
	Type       Type      `json:"type"`
	EntityID   string    `json:"entity_id"`
	ReportID   string    `json:"report_id,omitempty"`
	Record     any       `json:"record,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Handler reacts to a change. Errors are logged by the bus.
type Handler func(ctx context.Context, c Change) error

type subscription struct {
	table     string
	eventType Type
	handler   Handler
}

// Bus fans committed changes out to in-process listeners.
//
// IMPORTANT:
// - Publish never blocks on handlers; each runs in its own goroutine.
// - Handler panics are recovered and logged.
// - Drain waits for in-flight handlers; call it on shutdown.
type Bus struct {
	log *slog.Logger

	mu   sync.RWMutex
	next int
	subs map[int]subscription

	wg sync.WaitGroup
}

func NewBus(log *slog.Logger) *Bus {
	if log == nil {
		log = slog.Default()
	}
	return &Bus{log: log, subs: map[int]subscription{}}
}

// OnEntityChanged registers h for changes on table ("*" for all) of eventType
// ("" for all). The returned func removes the subscription.
func (b *Bus) OnEntityChanged(table string, eventType Type, h Handler) func() {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = subscription{table: table, eventType: eventType, handler: h}
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// Publish dispatches c to every matching subscriber. The handlers inherit the
// values of ctx but not its cancellation.
func (b *Bus) Publish(ctx context.Context, c Change) {
	if b == nil {
		return
	}
	if c.OccurredAt.IsZero() {
		c.OccurredAt = time.Now().UTC()
	}

	b.mu.RLock()
	var matched []Handler
	for _, s := range b.subs {
		if s.table != AllTables && s.table != c.Table {
			continue
		}
		if s.eventType != "" && s.eventType != c.Type {
			continue
		}
		matched = append(matched, s.handler)
	}
	b.mu.RUnlock()

	hctx := context.WithoutCancel(ctx)
	for _, h := range matched {
		b.wg.Add(1)
		go b.dispatch(hctx, h, c)
	}
}

func (b *Bus) dispatch(ctx context.Context, h Handler, c Change) {
	defer b.wg.Done()
	start := time.Now()

	var err error
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("events: handler panic: %v", p)
		}
		metrics.ListenerDuration.WithLabelValues(c.Table, metrics.Result(err)).Observe(time.Since(start).Seconds())
		if err != nil {
			b.log.Error("change listener failed",
				slog.String("table", c.Table),
				slog.String("type", string(c.Type)),
				slog.String("entity_id", c.EntityID),
				slog.String("err", err.Error()),
			)
		}
	}()

	err = h(ctx, c)
}

// Drain blocks until in-flight handlers finish or ctx is done.
func (b *Bus) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
