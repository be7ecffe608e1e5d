// Package pagesync keeps the page store in line with the pages feed: new
// pages are downloaded with their metadata and tags, vanished pages are
// purged when the policy allows it.
package pagesync

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dalnet/wikibot/internal/diff"
	"github.com/dalnet/wikibot/internal/store"
	"github.com/dalnet/wikibot/internal/wikidot"
	"go.uber.org/zap"
)

// chunk is the number of pages fetched and stored per step
const chunk = 100

// Bounds of the delay before a failed flush is retried
const (
	minRetry = 5 * time.Second
	maxRetry = 5 * time.Minute
)

// MetaSource fetches page metadata
type MetaSource interface {
	PageMeta(ctx context.Context, names []string) ([]wikidot.Page, error)
}

// PageStore is the part of the store the syncer writes to
type PageStore interface {
	PageIDs(ctx context.Context) ([]string, error)
	UpsertPages(ctx context.Context, pages []store.Page) error
	PurgePages(ctx context.Context, ids []string) error
}

// Syncer downloads and purges pages on its own goroutine. Submit may be
// called from any goroutine and never blocks.
type Syncer struct {
	src   MetaSource
	st    PageStore
	purge bool
	log   *zap.Logger

	mu      sync.Mutex
	added   diff.Set[string]
	removed diff.Set[string]
	wake    chan struct{}

	minRetry time.Duration
	maxRetry time.Duration
}

// New creates a syncer. With purge off, removed pages are left in the store.
func New(src MetaSource, st PageStore, purge bool, log *zap.Logger) *Syncer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Syncer{
		src:     src,
		st:      st,
		purge:   purge,
		log:     log,
		added:   diff.NewSet[string](),
		removed: diff.NewSet[string](),
		wake:    make(chan struct{}, 1),

		minRetry: minRetry,
		maxRetry: maxRetry,
	}
}

// Submit queues page changes. A page both added and removed across calls
// ends up in whichever state was submitted last.
func (s *Syncer) Submit(added, removed []string) {
	s.mu.Lock()
	for _, id := range added {
		s.removed.Remove(id)
		s.added.Add(id)
	}
	for _, id := range removed {
		s.added.Remove(id)
		s.removed.Add(id)
	}
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Pending returns the number of queued additions and removals.
func (s *Syncer) Pending() (added, removed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.added.Len(), s.removed.Len()
}

// Reconcile queues the difference between the stored pages and the current
// page list, so changes made while the bot was down are caught up.
func (s *Syncer) Reconcile(ctx context.Context, pages diff.Set[string]) error {
	ids, err := s.st.PageIDs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list stored pages: %w", err)
	}
	stored := diff.NewSet(ids...)
	added := pages.Difference(stored)
	removed := stored.Difference(pages)
	s.log.Info("Reconciled page store",
		zap.Int("stored", stored.Len()),
		zap.Int("missing", len(added)),
		zap.Int("stale", len(removed)))
	s.Submit(added, removed)
	return nil
}

// Run processes queued changes until ctx is cancelled. A failed flush is
// retried with exponential backoff even when nothing new is submitted.
func (s *Syncer) Run(ctx context.Context) error {
	retry := time.NewTimer(s.maxRetry)
	retry.Stop()
	defer retry.Stop()

	backoff := s.minRetry
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.wake:
		case <-retry.C:
		}

		err := s.Flush(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			backoff = s.minRetry
			continue
		}
		s.log.Warn("Page sync failed, will retry", zap.Error(err), zap.Duration("backoff", backoff))
		retry.Reset(backoff)
		backoff = min(2*backoff, s.maxRetry)
	}
}

// Flush processes everything queued so far. Pages that could not be handled
// are queued again.
func (s *Syncer) Flush(ctx context.Context) error {
	added, removed := s.take()

	if len(removed) > 0 {
		if s.purge {
			if err := s.st.PurgePages(ctx, removed); err != nil {
				s.requeue(added, removed)
				return fmt.Errorf("purge %d pages: %w", len(removed), err)
			}
			s.log.Info("Purged pages", zap.Int("count", len(removed)))
		} else {
			s.log.Debug("Keeping removed pages", zap.Int("count", len(removed)))
		}
	}

	for start := 0; start < len(added); start += chunk {
		end := start + chunk
		if end > len(added) {
			end = len(added)
		}
		if err := s.download(ctx, added[start:end]); err != nil {
			s.requeue(added[start:], nil)
			return err
		}
	}
	if len(added) > 0 {
		s.log.Info("Downloaded pages", zap.Int("count", len(added)))
	}
	return nil
}

func (s *Syncer) download(ctx context.Context, names []string) error {
	meta, err := s.src.PageMeta(ctx, names)
	if err != nil {
		return fmt.Errorf("fetch page metadata: %w", err)
	}
	pages := make([]store.Page, 0, len(meta))
	for _, m := range meta {
		pages = append(pages, store.Page{
			ID:        m.Fullname,
			Title:     m.Title,
			CreatedBy: m.CreatedBy,
			CreatedAt: m.CreatedAt,
			Rating:    m.Rating,
			Tags:      m.Tags,
		})
	}
	if err := s.st.UpsertPages(ctx, pages); err != nil {
		return fmt.Errorf("store pages: %w", err)
	}
	return nil
}

func (s *Syncer) take() (added, removed []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	added = s.added.Keys()
	removed = s.removed.Keys()
	s.added = diff.NewSet[string]()
	s.removed = diff.NewSet[string]()

	sort.Strings(added)
	sort.Strings(removed)
	return added, removed
}

// requeue puts back changes that failed, unless newer ones superseded them.
func (s *Syncer) requeue(added, removed []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range added {
		if !s.removed.Has(id) {
			s.added.Add(id)
		}
	}
	for _, id := range removed {
		if !s.added.Has(id) {
			s.removed.Add(id)
		}
	}
}
