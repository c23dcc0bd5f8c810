package snapshot

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kapu/cirak-widget-go/internal/constants"
	"github.com/kapu/cirak-widget-go/internal/domain"
	apperrors "github.com/kapu/cirak-widget-go/pkg/errors"
)

// SwapHook runs after a new snapshot is installed. previous may be nil.
type SwapHook func(current, previous *domain.Snapshot)

// Manager holds the current snapshot and replaces it atomically. Readers never block;
// a request keeps using the snapshot it loaded even if a swap happens meanwhile.
type Manager struct {
	builder  *Builder
	logger   *zap.Logger
	interval time.Duration

	current  atomic.Pointer[domain.Snapshot]
	previous atomic.Pointer[domain.Snapshot]

	buildMu sync.Mutex
	// pinned is the fingerprint rolled away from; periodic refreshes do not reinstall it.
	pinned  string
	lastErr error

	hooksMu    sync.RWMutex
	hooks      []SwapHook
	errorHooks []func(error)

	invalidate chan struct{}
}

type ManagerConfig struct {
	RefreshInterval time.Duration
}

func NewManager(builder *Builder, cfg ManagerConfig, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = constants.SnapshotConfig.RefreshInterval
	}
	return &Manager{
		builder:    builder,
		logger:     logger,
		interval:   cfg.RefreshInterval,
		invalidate: make(chan struct{}, 1),
	}
}

// Init builds the first snapshot. Without one the service cannot answer, so this fails hard.
func (m *Manager) Init(ctx context.Context) error {
	if _, err := m.Reload(ctx); err != nil {
		if m.Current() == nil {
			return err
		}
		m.logger.Warn("Initial rebuild failed, keeping existing snapshot", zap.Error(err))
	}
	return nil
}

func (m *Manager) Current() *domain.Snapshot {
	return m.current.Load()
}

func (m *Manager) Previous() *domain.Snapshot {
	return m.previous.Load()
}

func (m *Manager) Metadata() domain.SnapshotMetadata {
	return m.Current().Metadata()
}

// LastError returns the error of the most recent failed build, or nil after a success.
func (m *Manager) LastError() error {
	m.buildMu.Lock()
	defer m.buildMu.Unlock()
	return m.lastErr
}

// OnSwap registers a hook. Hooks run in registration order on the building goroutine.
func (m *Manager) OnSwap(hook SwapHook) {
	m.hooksMu.Lock()
	defer m.hooksMu.Unlock()
	m.hooks = append(m.hooks, hook)
}

// OnBuildError registers a hook called with every failed build.
func (m *Manager) OnBuildError(hook func(error)) {
	m.hooksMu.Lock()
	defer m.hooksMu.Unlock()
	m.errorHooks = append(m.errorHooks, hook)
}

// Reload rebuilds from the source now and installs the result unless its content is
// unchanged. It also clears a rollback pin.
func (m *Manager) Reload(ctx context.Context) (bool, error) {
	return m.rebuild(ctx, true)
}

func (m *Manager) refresh(ctx context.Context) (bool, error) {
	return m.rebuild(ctx, false)
}

func (m *Manager) rebuild(ctx context.Context, force bool) (bool, error) {
	m.buildMu.Lock()
	defer m.buildMu.Unlock()

	start := time.Now()
	next, err := m.builder.Build(ctx)
	if err != nil {
		m.lastErr = err
		fields := []zap.Field{zap.Error(err)}
		var snapErr *apperrors.SnapshotError
		if errors.As(err, &snapErr) && len(snapErr.Problems) > 0 {
			fields = append(fields, zap.Strings("problems", snapErr.Problems))
		}
		m.logger.Error("Snapshot build failed, keeping last good snapshot", fields...)

		m.hooksMu.RLock()
		errorHooks := slices.Clone(m.errorHooks)
		m.hooksMu.RUnlock()
		for _, hook := range errorHooks {
			hook(err)
		}
		return false, err
	}
	m.lastErr = nil

	if force {
		m.pinned = ""
	} else if m.pinned != "" && next.Fingerprint == m.pinned {
		return false, nil
	}

	current := m.current.Load()
	if current != nil && current.Fingerprint == next.Fingerprint {
		return false, nil
	}

	m.install(next, current)
	m.logger.Info("Snapshot installed",
		zap.String("id", next.ID),
		zap.Int64("sequence", next.Sequence),
		zap.Int("intents", len(next.Intents)),
		zap.Duration("build_time", time.Since(start)),
	)
	return true, nil
}

// Rollback reinstalls the previous snapshot. The replaced one becomes previous, so a
// second rollback undoes the first.
func (m *Manager) Rollback() (*domain.Snapshot, error) {
	m.buildMu.Lock()
	defer m.buildMu.Unlock()

	prev := m.previous.Load()
	if prev == nil {
		return nil, apperrors.NewNotFoundError("snapshot", "previous")
	}
	current := m.current.Load()
	if current != nil {
		m.pinned = current.Fingerprint
	}
	m.install(prev, current)

	m.logger.Warn("Snapshot rolled back",
		zap.String("id", prev.ID),
		zap.Int64("sequence", prev.Sequence),
	)
	return prev, nil
}

func (m *Manager) install(next, current *domain.Snapshot) {
	m.previous.Store(current)
	m.current.Store(next)

	m.hooksMu.RLock()
	hooks := append([]SwapHook(nil), m.hooks...)
	m.hooksMu.RUnlock()
	for _, hook := range hooks {
		hook(next, current)
	}
}

// Invalidate requests a rebuild from the Run loop. Multiple calls before the loop picks
// it up collapse into one.
func (m *Manager) Invalidate() {
	select {
	case m.invalidate <- struct{}{}:
	default:
	}
}

// Run refreshes on every interval tick and on Invalidate until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.logger.Info("Snapshot refresher started", zap.Duration("interval", m.interval))

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Snapshot refresher stopped")
			return
		case <-ticker.C:
			_, _ = m.refresh(ctx)
		case <-m.invalidate:
			_, _ = m.refresh(ctx)
		}
	}
}
