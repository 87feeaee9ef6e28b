// Package schedule decides which catalog page to fetch next and when
// each page should be revisited.
package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultLookahead is how far ahead of its due time a page may be
	// picked up. A heuristic, not a hard requirement; tunable via config.
	DefaultLookahead = 24 * time.Hour

	// fallbackAnchorOffset stands in for the anchor year when a fetched
	// page had no items with a known release year. Four years back means
	// the page is revisited in about a month.
	fallbackAnchorOffset = 4
)

// Store is the schedule persistence the selector drives.
type Store interface {
	PageCount(ctx context.Context) (int, error)
	NextDuePage(ctx context.Context, dueBefore time.Time) (int, bool, error)
	RegisterPages(ctx context.Context, pages []int, due time.Time) error
	SetPageDue(ctx context.Context, page int, due time.Time) error
}

// Selector picks due pages, discovers new ones, and computes refresh
// times weighted by content recency: pages dominated by older titles
// are refreshed far less often than pages with current-season content.
type Selector struct {
	store     Store
	lookahead time.Duration
	now       func() time.Time
	logger    zerolog.Logger
}

// NewSelector creates a selector over the given schedule store.
func NewSelector(store Store, lookahead time.Duration) *Selector {
	if lookahead <= 0 {
		lookahead = DefaultLookahead
	}
	return &Selector{
		store:     store,
		lookahead: lookahead,
		now:       time.Now,
		logger:    log.With().Str("component", "schedule").Logger(),
	}
}

// PickPage returns the next page to fetch. An empty schedule store
// bootstraps with page 1; otherwise the soonest due page within the
// lookahead window, with ok=false meaning nothing to do this tick.
func (s *Selector) PickPage(ctx context.Context) (page int, ok bool, err error) {
	page, ok, err = s.store.NextDuePage(ctx, s.now().Add(s.lookahead))
	if err != nil {
		return 0, false, fmt.Errorf("pick page: %w", err)
	}
	if ok {
		return page, true, nil
	}

	count, err := s.store.PageCount(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("pick page: %w", err)
	}
	if count == 0 {
		return 1, true, nil
	}
	return 0, false, nil
}

// Discover registers any pages the source reports beyond the tracked
// set, due immediately. The tracked set only ever grows.
func (s *Selector) Discover(ctx context.Context, totalPages int) error {
	known, err := s.store.PageCount(ctx)
	if err != nil {
		return fmt.Errorf("discover pages: %w", err)
	}
	if totalPages <= known {
		s.logger.Debug().Int("pages", known).Msg("No new pages detected")
		return nil
	}

	pages := make([]int, 0, totalPages-known)
	for page := known + 1; page <= totalPages; page++ {
		pages = append(pages, page)
	}
	if err := s.store.RegisterPages(ctx, pages, s.now()); err != nil {
		return fmt.Errorf("discover pages: %w", err)
	}

	s.logger.Info().Int("known", known).Int("total", totalPages).Msg("Registered new pages")
	return nil
}

// Reschedule computes and persists the next refresh time for a fetched
// page: now plus one week per year of distance between the anchor year
// and the current year. yearKnown=false applies the fallback offset.
func (s *Selector) Reschedule(ctx context.Context, page, anchorYear int, yearKnown bool) error {
	now := s.now()

	if !yearKnown {
		anchorYear = now.Year() - fallbackAnchorOffset
	}

	delta := anchorYear - now.Year()
	if delta < 0 {
		delta = -delta
	}
	due := now.Add(time.Duration(delta) * 7 * 24 * time.Hour)

	if err := s.store.SetPageDue(ctx, page, due); err != nil {
		return fmt.Errorf("reschedule page %d: %w", page, err)
	}

	s.logger.Debug().Int("page", page).Time("next_due", due).Msg("Page rescheduled")
	return nil
}
