package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pders01/ntrack/internal/classify"
	"github.com/pders01/ntrack/internal/config"
	"github.com/pders01/ntrack/internal/debuglog"
	"github.com/pders01/ntrack/internal/engine"
	"github.com/pders01/ntrack/internal/fetch"
	"github.com/pders01/ntrack/internal/notify"
	"github.com/pders01/ntrack/internal/opener"
	"github.com/pders01/ntrack/internal/scheduler"
	"github.com/pders01/ntrack/internal/search"
	"github.com/pders01/ntrack/internal/storage"
	"github.com/pders01/ntrack/internal/tracker"
	"github.com/pders01/ntrack/internal/validation"
)

// app is every component a command may need, wired from one config.
type app struct {
	cfg       *config.Config
	kv        storage.KV
	store     *tracker.Store
	searcher  search.Searcher
	manager   *engine.Manager
	scheduler *scheduler.Scheduler
	opener    *opener.Opener
}

func openApp(ctx context.Context, cfg *config.Config) (*app, error) {
	if cfg.Database.Driver == "bolt" {
		path, err := validation.StateFile(cfg.Database.Path)
		if err != nil {
			return nil, fmt.Errorf("database path: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
		cfg.Database.Path = path
	}
	if cfg.Database.SearchIndex != "" {
		path, err := validation.StatePath(cfg.Database.SearchIndex)
		if err != nil {
			return nil, fmt.Errorf("search index path: %w", err)
		}
		cfg.Database.SearchIndex = path
	}

	kv, err := storage.Open(ctx, storage.Options{
		Driver:  cfg.Database.Driver,
		Path:    cfg.Database.Path,
		Timeout: cfg.Database.Timeout,
	})
	if err != nil {
		return nil, err
	}

	store := tracker.NewStore(kv, tracker.StoreOptions{
		MaxTrackers: cfg.Tracker.MaxTrackers,
		Defaults: tracker.Defaults{
			UpdateInterval:    cfg.Tracker.DefaultUpdateInterval,
			DailyRequestLimit: cfg.Tracker.DefaultDailyLimit,
			QuotaWindow:       cfg.Tracker.QuotaWindow,
		},
	})
	if err := store.Init(ctx); err != nil {
		kv.Close()
		return nil, err
	}

	client := fetch.NewClient(cfg.Fetch)
	registry, fetchers, err := fetch.NewDefaultRegistry(client, cfg.Fetch)
	if err != nil {
		kv.Close()
		return nil, err
	}

	notifier, err := notify.New(cfg.Notify)
	if err != nil {
		// Telegram is optional; keep going with the log notifier
		debuglog.Warnf("notifications: %v", err)
		notifier = notify.Log{}
	}

	a := &app{
		cfg:      cfg,
		kv:       kv,
		store:    store,
		searcher: newSearcher(store, cfg.Database.SearchIndex),
		opener:   opener.New(cfg.UI),
	}
	a.manager = engine.NewManager(cfg, engine.Deps{
		Store:      store,
		Fetcher:    registry,
		Keys:       fetchers,
		Classifier: classify.New(client, cfg.Fetch),
		Notifier:   notifier,
		Search:     a.searcher,
	})
	a.scheduler = scheduler.New(a.manager, cfg.Scheduler)
	return a, nil
}

// newSearcher prefers the persistent index and falls back to scanning the
// store when it cannot be opened, e.g. while another process holds it.
func newSearcher(src search.Source, indexPath string) search.Searcher {
	if indexPath == "" {
		return search.NewEngine(src)
	}
	be, err := search.NewBleveEngine(src, indexPath)
	if err != nil {
		debuglog.Warnf("search index unavailable, using scan search: %v", err)
		return search.NewEngine(src)
	}
	return be
}

func (a *app) Close() error {
	var errs []error
	if c, ok := a.searcher.(interface{ Close() error }); ok {
		errs = append(errs, c.Close())
	}
	errs = append(errs, a.store.Teardown(context.Background()))
	errs = append(errs, a.kv.Close())
	return errors.Join(errs...)
}
