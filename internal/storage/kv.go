// Package storage provides the persistent key-value store the tracker engine
// snapshots its state into. Values are opaque byte slices addressed by a
// collection and a key.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Collections known to the application. Only trackers is written by the
// engine; the others belong to surfaces outside this module and are created
// so their data survives alongside.
const (
	CollectionSettings   = "settings"
	CollectionShortcuts  = "shortcuts"
	CollectionWallpapers = "wallpapers"
	CollectionTrackers   = "trackers"
)

var collections = []string{
	CollectionSettings,
	CollectionShortcuts,
	CollectionWallpapers,
	CollectionTrackers,
}

var ErrNotFound = errors.New("key not found")

type KV interface {
	Get(ctx context.Context, collection, key string) ([]byte, error)
	Set(ctx context.Context, collection, key string, value []byte) error
	Delete(ctx context.Context, collection, key string) error
	Close() error
}

type Options struct {
	Driver  string
	Path    string
	Timeout time.Duration
}

// Open returns the backend selected by opts.Driver.
func Open(ctx context.Context, opts Options) (KV, error) {
	switch opts.Driver {
	case "", "bolt":
		return OpenBolt(opts.Path, opts.Timeout)
	case "sqlite":
		return OpenSQLite(ctx, opts.Path)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", opts.Driver)
	}
}
