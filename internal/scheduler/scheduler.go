// Package scheduler drives the periodic fetch-reconcile cycle.
package scheduler

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"anisync/internal/schedule"
	"anisync/pkg/anilist"
	"anisync/pkg/catalog"
)

var (
	cyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "anisync_cycles_total",
		Help: "Total sync cycles by result",
	}, []string{"result"})

	itemsUpserted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "anisync_items_upserted_total",
		Help: "Total catalog items upserted",
	})
)

// Fetcher is the upstream catalog API the loop pulls pages from. The
// loop owns the fetcher's session and closes it on exit.
type Fetcher interface {
	FetchPage(ctx context.Context, page int) (*anilist.Page, error)
	Close() error
}

// BatchStore applies staged batches to the backing store.
type BatchStore interface {
	Apply(ctx context.Context, batch *catalog.Batch) error
}

// Scheduler runs fetch-reconcile cycles on a jittered timer. Cycles
// are strictly sequential; exactly one is ever in flight.
type Scheduler struct {
	fetcher  Fetcher
	store    BatchStore
	selector *schedule.Selector
	interval time.Duration
	logger   zerolog.Logger
}

// New creates a scheduler. A zero interval defaults to 15 minutes.
func New(fetcher Fetcher, store BatchStore, selector *schedule.Selector, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Scheduler{
		fetcher:  fetcher,
		store:    store,
		selector: selector,
		interval: interval,
		logger:   log.With().Str("component", "scheduler").Logger(),
	}
}

// Run executes cycles until ctx is cancelled or a cycle fails on a
// store write. Transport failures only skip the tick. The fetcher
// session is released on every exit path.
func (s *Scheduler) Run(ctx context.Context) error {
	defer func() {
		if err := s.fetcher.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("Closing API session failed")
		}
		s.logger.Info().Msg("Sync loop stopped")
	}()

	for {
		if err := s.RunCycle(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Error().Err(err).Msg("Sync cycle failed")
			return err
		}

		// Jitter spreads instances that started together.
		wait := s.interval
		if quarter := s.interval / 4; quarter > 0 {
			wait += time.Duration(rand.Int63n(int64(quarter)))
		}
		s.logger.Info().Dur("wait", wait).Msg("Tick ended, waiting for the next one")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// RunCycle performs one fetch-reconcile cycle: pick a due page, fetch
// it, apply the batch, discover newly reported pages, and reschedule
// the fetched page by its newest release year.
func (s *Scheduler) RunCycle(ctx context.Context) error {
	page, ok, err := s.selector.PickPage(ctx)
	if err != nil {
		cyclesTotal.WithLabelValues("error").Inc()
		return err
	}
	if !ok {
		cyclesTotal.WithLabelValues("skipped").Inc()
		s.logger.Info().Msg("No pages due, skipping this tick")
		return nil
	}

	s.logger.Info().Int("page", page).Msg("Fetching catalog page")

	fetched, err := s.fetcher.FetchPage(ctx, page)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// Transport errors are recovered locally: log, count, retry
		// the page on a later tick. Nothing was written.
		cyclesTotal.WithLabelValues("fetch_error").Inc()
		s.logger.Warn().Err(err).Int("page", page).Msg("Fetch failed, skipping this tick")
		return nil
	}

	batch := catalog.NewBatch()
	for i := range fetched.Media {
		batch.Append(fetched.Media[i].Item())
	}

	if err := s.store.Apply(ctx, batch); err != nil {
		cyclesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("apply page %d: %w", page, err)
	}
	if err := s.selector.Discover(ctx, fetched.LastPage); err != nil {
		cyclesTotal.WithLabelValues("error").Inc()
		return err
	}

	year, known := batch.MaxReleaseYear()
	if err := s.selector.Reschedule(ctx, page, year, known); err != nil {
		cyclesTotal.WithLabelValues("error").Inc()
		return err
	}

	cyclesTotal.WithLabelValues("ok").Inc()
	itemsUpserted.Add(float64(batch.Len()))
	s.logger.Info().Int("page", page).Int("items", batch.Len()).Msg("Page synced")
	return nil
}
