package analytics

import (
	"context"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/kapu/cirak-widget-go/internal/constants"
	"github.com/kapu/cirak-widget-go/internal/domain"
	"github.com/kapu/cirak-widget-go/internal/util"
)

type Store interface {
	Insert(ctx context.Context, interaction domain.Interaction) error
}

// Counter keeps live per-day hit counts (Redis).
type Counter interface {
	IncrementIntentHit(ctx context.Context, day, label string) error
}

// Recorder writes interactions off the request path with bounded concurrency.
// Failures are logged and dropped.
type Recorder struct {
	store   Store
	counter Counter
	logger  *zap.Logger
	timeout time.Duration

	mu     sync.Mutex
	pool   *pool.Pool
	closed bool
}

func NewRecorder(store Store, counter Counter, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		store:   store,
		counter: counter,
		logger:  logger,
		timeout: constants.AnalyticsConfig.WriteTimeout,
		pool:    pool.New().WithMaxGoroutines(constants.AnalyticsConfig.MaxConcurrentWrites),
	}
}

// Record schedules a write. It blocks only while every writer is busy.
func (r *Recorder) Record(interaction domain.Interaction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.pool.Go(func() {
		r.write(interaction)
	})
}

func (r *Recorder) write(interaction domain.Interaction) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.store.Insert(ctx, interaction); err != nil {
		r.logger.Warn("Failed to record interaction",
			zap.String("source", string(interaction.Source)),
			zap.Error(err),
		)
	}

	if r.counter != nil {
		label := interaction.IntentID
		if label == "" {
			label = string(interaction.Source)
		}
		if err := r.counter.IncrementIntentHit(ctx, util.DayKey(interaction.CreatedAt), label); err != nil {
			r.logger.Debug("Failed to bump live counter", zap.Error(err))
		}
	}
}

// Close waits for pending writes. Later Record calls are ignored.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	r.pool.Wait()
	return nil
}
