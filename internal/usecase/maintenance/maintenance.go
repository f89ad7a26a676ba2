// Package maintenance evicts stale low-quality entries from the store,
// either on demand or on a periodic schedule.
package maintenance

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"tmengine/internal/domain"
	"tmengine/internal/ports"
)

// Policy selects eviction victims: entries rated below MinQuality that
// have not been used for MaxAge. Unrated entries are never evicted;
// absence of a rating is not a low rating.
type Policy struct {
	MinQuality float64
	MaxAge     time.Duration
}

func (p Policy) Validate() error {
	if p.MinQuality < 0 || p.MinQuality > 1 {
		return &domain.ValidationError{Field: "min_quality", Message: "must be within [0,1]"}
	}
	if p.MaxAge <= 0 {
		return &domain.ValidationError{Field: "max_age", Message: "must be positive"}
	}
	return nil
}

type Service struct {
	entries ports.EntryRepository
	cache   ports.MatchCache
	log     *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(entries ports.EntryRepository, cache ports.MatchCache, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{entries: entries, cache: cache, log: log}
}

// Cleanup deletes every entry matching the policy and invalidates their
// cache slots. Returns how many entries were evicted. Running it twice in
// a row evicts nothing the second time.
func (s *Service) Cleanup(ctx context.Context, p Policy) (int, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}
	cutoff := time.Now().UTC().Add(-p.MaxAge)
	victims, err := s.entries.DeleteWhere(ctx, p.MinQuality, cutoff)
	if err != nil {
		return 0, err
	}
	for _, v := range victims {
		s.cache.Invalidate(v.SourceHash, v.TargetLang)
	}
	if len(victims) > 0 {
		s.log.Info("cleanup evicted entries",
			"count", len(victims),
			"min_quality", p.MinQuality,
			"last_used_before", cutoff.Format(time.RFC3339))
	}
	return len(victims), nil
}

// Start runs Cleanup every interval until Stop is called or ctx is
// cancelled. A second Start while running is a no-op.
func (s *Service) Start(ctx context.Context, p Policy, interval time.Duration) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if interval <= 0 {
		return &domain.ValidationError{Field: "interval", Message: "must be positive"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	done := make(chan struct{})
	s.done = done

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.Cleanup(ctx, p); err != nil && ctx.Err() == nil {
					s.log.Error("scheduled cleanup failed", "error", err)
				}
			}
		}
	}()
	return nil
}

// Stop cancels the schedule and waits for the in-flight run to finish.
func (s *Service) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}
