// Package poll drives diff engines on a fixed interval, one goroutine per feed.
package poll

import (
	"context"
	"errors"
	"time"

	"github.com/dalnet/wikibot/internal/diff"
	"github.com/dalnet/wikibot/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// defaultTimeout bounds one refresh when the feed sets none.
const defaultTimeout = 2 * time.Minute

// Feed is one polled feed. Diff and Close are normally the methods of a
// diff.Engine, which keeps Feed free of the key type.
type Feed struct {
	Name     string
	Interval time.Duration
	// Timeout bounds a single refresh
	Timeout time.Duration
	Diff    func(ctx context.Context) (diff.Delta, error)
	// Close is called once the loop ends
	Close func()
}

// FromEngine adapts an engine to a Feed.
func FromEngine[K comparable](e *diff.Engine[K], interval, timeout time.Duration) Feed {
	return Feed{
		Name:     e.Name(),
		Interval: interval,
		Timeout:  timeout,
		Diff:     e.Diff,
		Close:    e.Close,
	}
}

// Run polls f until ctx is cancelled or its consumer goes away. The first
// cycle runs one interval after the call; the initial state is expected to
// have been fetched by diff.Build already.
func Run(ctx context.Context, f Feed, log *zap.Logger) {
	log = log.With(zap.String("feed", f.Name))
	if f.Close != nil {
		defer f.Close()
	}

	ticker := time.NewTicker(f.Interval)
	defer ticker.Stop()

	log.Info("Poller started", zap.Duration("interval", f.Interval))
	for {
		select {
		case <-ctx.Done():
			log.Info("Poller stopped")
			return
		case <-ticker.C:
			if !cycle(ctx, f, log) {
				return
			}
		}
	}
}

// cycle runs one diff and reports whether polling should continue.
func cycle(ctx context.Context, f Feed, log *zap.Logger) bool {
	timeout := f.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	delta, err := f.Diff(cctx)
	took := time.Since(start)

	switch {
	case err == nil:
		metrics.ObserveCycle(f.Name, metrics.ResultCommitted, delta.Added, delta.Removed, delta.Size, took)
		log.Info("Scanned feed",
			zap.Int("added", delta.Added),
			zap.Int("removed", delta.Removed),
			zap.Int("size", delta.Size),
			zap.Duration("took", took))
		return true
	case errors.Is(err, diff.ErrChannelClosed):
		metrics.ObserveCycle(f.Name, metrics.ResultClosed, delta.Added, delta.Removed, delta.Size, took)
		log.Warn("Feed consumer is gone, stopping poller", zap.Error(err))
		return false
	default:
		metrics.ObserveCycle(f.Name, metrics.ResultFailed, 0, 0, 0, took)
		log.Warn("Feed refresh failed, will retry", zap.Error(err), zap.Duration("took", took))
		return true
	}
}

// Group runs every feed's poller concurrently and waits for all of them.
func Group(ctx context.Context, log *zap.Logger, feeds ...Feed) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, f := range feeds {
		f := f
		g.Go(func() error {
			Run(gctx, f, log)
			return nil
		})
	}
	return g.Wait()
}
