// Package mtd owns the moving-target-defense rotation state: a session
// nonce regenerated on a fixed timer, used to correlate honeytoken
// activations with the rotation epoch they occurred in.
package mtd

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/meridianapps/resilience-core/internal/metrics"
	"github.com/meridianapps/resilience-core/internal/model"
)

// DefaultRotationPeriod is the fixed interval between nonce rotations.
const DefaultRotationPeriod = 5 * time.Minute

// Scheduler rotates the session nonce. State is read-only to other
// components; trap activations are recorded through the Core, not here.
type Scheduler struct {
	mu    sync.RWMutex
	state model.MtdState

	// fingerprint is an opaque client identity that stays stable across
	// rotations within one session.
	fingerprint string

	period  time.Duration
	metrics *metrics.Metrics
	logger  *slog.Logger

	ticker *time.Ticker
	stop   chan struct{}
}

// NewScheduler initializes the session nonce and fingerprint. The rotation
// timer does not run until Start.
func NewScheduler(period time.Duration, m *metrics.Metrics, logger *slog.Logger) *Scheduler {
	if period <= 0 {
		period = DefaultRotationPeriod
	}
	return &Scheduler{
		state: model.MtdState{
			SessionNonce: uuid.New().String(),
			LastRotation: time.Now().UTC(),
		},
		fingerprint: uuid.New().String(),
		period:      period,
		metrics:     m,
		logger:      logger,
	}
}

// Start begins the rotation timer. Calling Start twice is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ticker != nil {
		return
	}
	s.ticker = time.NewTicker(s.period)
	s.stop = make(chan struct{})
	go s.run(s.ticker, s.stop)
	s.logger.Info("mtd scheduler started", "period", s.period)
}

// Stop cancels the rotation timer. Idempotent, and a no-op before Start, so
// a stale timer never rotates into a disposed state container.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	close(s.stop)
	s.ticker = nil
	s.stop = nil
}

func (s *Scheduler) run(ticker *time.Ticker, stop chan struct{}) {
	for {
		select {
		case <-ticker.C:
			s.Rotate()
		case <-stop:
			return
		}
	}
}

// Rotate regenerates the session nonce and bumps the rotation count.
func (s *Scheduler) Rotate() {
	s.mu.Lock()
	s.state.SessionNonce = uuid.New().String()
	s.state.RotationCount++
	s.state.LastRotation = time.Now().UTC()
	count := s.state.RotationCount
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.MtdRotationsTotal.Inc()
	}
	s.logger.Info("rotated session nonce", "rotation_count", count)
}

// State returns a copy of the current rotation state.
func (s *Scheduler) State() model.MtdState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Fingerprint returns the opaque client fingerprint for this session.
func (s *Scheduler) Fingerprint() string {
	return s.fingerprint
}
