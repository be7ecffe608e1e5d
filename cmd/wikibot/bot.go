package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dalnet/wikibot/internal/cache"
	"github.com/dalnet/wikibot/internal/config"
	"github.com/dalnet/wikibot/internal/diff"
	"github.com/dalnet/wikibot/internal/feeds"
	"github.com/dalnet/wikibot/internal/irc"
	"github.com/dalnet/wikibot/internal/logger"
	"github.com/dalnet/wikibot/internal/metrics"
	"github.com/dalnet/wikibot/internal/pagesync"
	"github.com/dalnet/wikibot/internal/poll"
	"github.com/dalnet/wikibot/internal/storage"
	"github.com/dalnet/wikibot/internal/store"
	"github.com/dalnet/wikibot/internal/wikidot"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// bot holds everything built from the configuration
type bot struct {
	cfg   *config.Config
	log   *zap.Logger
	wiki  *wikidot.Client
	store *store.Store // nil without a database
	cache *cache.Cache
	sync  *pagesync.Syncer
	feeds []poll.Feed
	// pages is the initial pages snapshot, used to reconcile the store
	pages diff.Set[string]
}

func loadConfig(path string) (*config.Config, error) {
	// Make config path absolute
	if !filepath.IsAbs(path) {
		wd, _ := os.Getwd()
		path = filepath.Join(wd, path)
	}
	return config.Load(path)
}

func newBot(ctx context.Context, cfg *config.Config, log *zap.Logger) (*bot, error) {
	wiki, err := wikidot.New(cfg.Wikidot)
	if err != nil {
		return nil, err
	}
	b := &bot{
		cfg:   cfg,
		log:   log,
		wiki:  wiki,
		cache: cache.New(log.Named("cache")),
	}

	if cfg.Database.URL != "" {
		st, err := store.Open(ctx, cfg.Database.URL)
		if err != nil {
			return nil, err
		}
		if err := st.EnsureSchema(ctx); err != nil {
			st.Close()
			return nil, err
		}
		b.store = st
	}
	return b, nil
}

func (b *bot) close() {
	if b.store != nil {
		b.store.Close()
	}
}

// build fetches one feed synchronously, registers its poller and returns
// the engine's initial snapshot with the receiver for its mirror.
func build[K comparable](ctx context.Context, b *bot, name string, f config.Feed, fetch diff.FetchFunc[K]) (diff.Set[K], *diff.Receiver[K], error) {
	start := time.Now()
	e, rx, err := diff.Build(ctx, name, fetch)
	if err != nil {
		return nil, nil, err
	}
	snap := e.Snapshot()
	metrics.SetSnapshot(name, snap.Len())
	b.log.Info("Built feed",
		zap.String("feed", name),
		zap.Int("size", snap.Len()),
		zap.Duration("took", time.Since(start)))

	b.feeds = append(b.feeds, poll.FromEngine(e, f.Interval, 0))
	return snap, rx, nil
}

// buildFeeds builds every enabled feed and attaches it to the cache. Mirrors
// are seeded before any poller runs.
func (b *bot) buildFeeds(ctx context.Context) error {
	fc := b.cfg.Feeds

	if fc.Bans.Enabled {
		snap, rx, err := build(ctx, b, "bans", fc.Bans, feeds.Bans(b.wiki, fc.Bans.URL, time.Now))
		if err != nil {
			return err
		}
		b.cache.AttachBans(snap, rx)
	}

	if fc.Titles.Enabled {
		fetch := feeds.Titles(b.wiki, feeds.TitleSources{
			Pages:     fc.Titles.Pages,
			Series:    fc.Titles.Series,
			MaxSeries: fc.Titles.MaxSeries,
		})
		snap, rx, err := build(ctx, b, "titles", fc.Titles.Feed, fetch)
		if err != nil {
			return err
		}
		b.cache.AttachTitles(snap, rx)
	}

	if fc.Pages.Enabled {
		if !b.wiki.HasRPC() {
			b.log.Warn("Pages feed needs Wikidot API credentials, skipping")
		} else {
			snap, rx, err := build(ctx, b, "pages", fc.Pages.Feed, feeds.Pages(b.wiki))
			if err != nil {
				return err
			}
			b.pages = snap
			if b.store != nil {
				b.sync = pagesync.New(b.wiki, b.store, fc.Pages.PurgeOnRemove, b.log.Named("pagesync"))
				b.cache.AttachPages(snap, rx, b.sync)
			} else {
				b.cache.AttachPages(snap, rx, nil)
			}
		}
	}

	if fc.Authors.Enabled {
		var fetch diff.FetchFunc[string]
		if b.store != nil {
			fetch = feeds.Authors(b.wiki, fc.Authors.URL, b.store)
		} else {
			fetch = feeds.Authors(b.wiki, fc.Authors.URL, nil)
		}
		snap, rx, err := build(ctx, b, "authors", fc.Authors, fetch)
		if err != nil {
			return err
		}
		b.cache.AttachAuthors(snap, rx)
	}
	return nil
}

func run(ctx context.Context, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer log.Sync()

	if err := storage.EnsureDir(cfg.DataDir); err != nil {
		return err
	}
	if path, err := writePIDFile(cfg.DataDir); err != nil {
		log.Warn("Could not write PID file", zap.Error(err))
	} else {
		defer os.Remove(path)
		log.Info("Started", zap.Int("pid", os.Getpid()), zap.String("pid_file", path))
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b, err := newBot(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.close()

	if err := b.buildFeeds(ctx); err != nil {
		return fmt.Errorf("failed to build feeds: %w", err)
	}
	if b.sync != nil {
		if err := b.sync.Reconcile(ctx, b.pages); err != nil {
			log.Warn("Page store reconciliation failed", zap.Error(err))
		}
	}

	client, err := irc.NewClient(cfg, b.cache, log.Named("irc"))
	if err != nil {
		return fmt.Errorf("failed to create IRC client: %w", err)
	}
	client.OnShutdown = stop

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return poll.Group(gctx, log.Named("poll"), b.feeds...)
	})
	if b.sync != nil {
		g.Go(func() error { return b.sync.Run(gctx) })
	}
	if cfg.MetricsAddr != "" {
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: metrics.Handler()}
		g.Go(func() error {
			log.Info("Serving metrics", zap.String("addr", cfg.MetricsAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics listener: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}

	log.Info("Connecting", zap.String("server", cfg.Server), zap.Int("port", cfg.Port))
	if err := client.Connect(); err != nil {
		stop()
		g.Wait()
		return fmt.Errorf("failed to connect: %w", err)
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down")
		client.Quit("Shutting down")
		return nil
	})
	g.Go(func() error {
		client.Loop()
		// Loop only returns once we have quit
		stop()
		return nil
	})

	return g.Wait()
}

func check(ctx context.Context, out io.Writer, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer log.Sync()

	b, err := newBot(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.close()

	if err := b.buildFeeds(ctx); err != nil {
		return err
	}
	for _, f := range b.feeds {
		f.Close()
	}

	s := b.cache.Stats()
	fmt.Fprintf(out, "feeds:   %d enabled\n", len(b.feeds))
	fmt.Fprintf(out, "bans:    %d\n", s.Bans)
	fmt.Fprintf(out, "titles:  %d\n", s.Titles)
	fmt.Fprintf(out, "pages:   %d\n", s.Pages)
	fmt.Fprintf(out, "authors: %d\n", s.Authors)
	return nil
}
