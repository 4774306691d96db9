package store

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yanun0323/logs"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"renkotrader/internal/errors"
	"renkotrader/internal/model"
	"renkotrader/internal/obs"
	"renkotrader/pkg/exception"
)

const (
	DefaultQueueSize    = 4096
	DefaultWriteTimeout = 5 * time.Second
)

type Config struct {
	QueueSize    int
	WriteTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	return c
}

type record struct {
	row    any
	upsert bool
}

// Recorder persists engine records from a buffered queue on one goroutine.
// Records are accepted before Start and written once it runs.
type Recorder struct {
	log   logs.Logger
	cfg   Config
	db    *gorm.DB
	ch    chan record
	write func(ctx context.Context, r record) error
	wg    sync.WaitGroup

	started atomic.Bool
	closed  atomic.Bool
	mu      sync.RWMutex

	written atomic.Uint64
	failed  atomic.Uint64
}

func NewRecorder(db *gorm.DB, cfg Config, log logs.Logger) (*Recorder, error) {
	if db == nil {
		return nil, errors.Wrap(exception.ErrNilInstance, "recorder needs a database")
	}
	cfg = cfg.withDefaults()
	r := &Recorder{
		log: obs.Component(log, "store"),
		cfg: cfg,
		db:  db,
		ch:  make(chan record, cfg.QueueSize),
	}
	r.write = r.writeRow
	return r, nil
}

// Migrate creates or updates the record tables.
func (r *Recorder) Migrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(
		&OrderRecord{},
		&TradeRecord{},
		&RiskEventRecord{},
		&CounterRecord{},
	)
}

// Start runs the writer loop until Close. ctx bounds individual writes.
func (r *Recorder) Start(ctx context.Context) {
	if r.started.Swap(true) {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.run(ctx)
	}()
}

// Close stops accepting records and waits for queued ones to be written.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if !r.closed.Swap(true) {
		close(r.ch)
	}
	r.mu.Unlock()
	r.wg.Wait()
	if n := r.failed.Load(); n > 0 {
		return errors.Wrapf(exception.ErrInternal, "%d records failed to persist", n)
	}
	return nil
}

func (r *Recorder) RecordOrder(o model.Order) error {
	return r.tryRecord(record{row: newOrderRecord(o), upsert: true})
}

func (r *Recorder) RecordTrade(t model.TradeResult) error {
	return r.tryRecord(record{row: newTradeRecord(t)})
}

func (r *Recorder) RecordRiskEvent(e model.RiskEvent) error {
	return r.tryRecord(record{row: newRiskEventRecord(e)})
}

func (r *Recorder) RecordCounter(c model.TradingCounter) error {
	if c.Number == 0 {
		return nil
	}
	return r.tryRecord(record{row: newCounterRecord(c), upsert: true})
}

// tryRecord enqueues without blocking.
func (r *Recorder) tryRecord(rec record) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed.Load() {
		return exception.ErrStoreClosed
	}
	select {
	case r.ch <- rec:
		return nil
	default:
		return exception.ErrStoreQueueFull
	}
}

func (r *Recorder) run(ctx context.Context) {
	for rec := range r.ch {
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.WriteTimeout)
		err := r.write(wctx, rec)
		cancel()
		if err != nil {
			r.failed.Add(1)
			r.log.Errorf("persist %T, err: %+v", rec.row, err)
			continue
		}
		r.written.Add(1)
	}
}

func (r *Recorder) writeRow(ctx context.Context, rec record) error {
	db := r.db.WithContext(ctx)
	if rec.upsert {
		db = db.Clauses(clause.OnConflict{UpdateAll: true})
	}
	return db.Create(rec.row).Error
}

// Written and Failed count records handled by the writer loop.
func (r *Recorder) Written() uint64 { return r.written.Load() }
func (r *Recorder) Failed() uint64  { return r.failed.Load() }

// Pending is the number of queued records.
func (r *Recorder) Pending() int { return len(r.ch) }
