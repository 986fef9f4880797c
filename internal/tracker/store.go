package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pders01/ntrack/internal/debuglog"
	"github.com/pders01/ntrack/internal/storage"
)

// The whole tracker list lives under one key.
const snapshotKey = "data"

var (
	ErrNotFound     = errors.New("tracker not found")
	ErrLimitReached = errors.New("tracker limit reached")
	ErrNotLoaded    = errors.New("tracker store not initialized")
)

type StoreOptions struct {
	MaxTrackers int
	Defaults    Defaults
	Now         func() time.Time
}

// Store is the in-memory tracker list mirrored to a key-value backend.
// Every mutation writes the full list back once.
type Store struct {
	kv   storage.KV
	opts StoreOptions

	mu     sync.RWMutex
	list   []*Tracker
	loaded bool
}

func NewStore(kv storage.KV, opts StoreOptions) *Store {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{kv: kv, opts: opts}
}

// Init loads the persisted snapshot. Missing quota fields are back-filled
// and written back.
func (s *Store) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var list []*Tracker
	data, err := s.kv.Get(ctx, storage.CollectionTrackers, snapshotKey)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return fmt.Errorf("loading trackers: %w", err)
	default:
		if err := json.Unmarshal(data, &list); err != nil {
			return fmt.Errorf("decoding trackers: %w", err)
		}
	}

	now := s.opts.Now()
	changed := false
	kept := list[:0]
	for _, t := range list {
		if t == nil || t.ID == "" {
			changed = true
			continue
		}
		if t.Backfill(s.opts.Defaults, now) {
			changed = true
		}
		kept = append(kept, t)
	}

	s.list = kept
	s.loaded = true
	debuglog.Infof("loaded %d trackers", len(kept))

	if changed {
		return s.flushLocked(ctx)
	}
	return nil
}

// Teardown writes the final snapshot and releases the in-memory list.
func (s *Store) Teardown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		return nil
	}
	err := s.flushLocked(ctx)
	s.list = nil
	s.loaded = false
	return err
}

// Full reports whether the tracker cap has been reached.
func (s *Store) Full() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.opts.MaxTrackers > 0 && len(s.list) >= s.opts.MaxTrackers
}

func (s *Store) Add(ctx context.Context, t *Tracker) error {
	if t == nil || t.ID == "" {
		return fmt.Errorf("tracker without id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		return ErrNotLoaded
	}
	if s.opts.MaxTrackers > 0 && len(s.list) >= s.opts.MaxTrackers {
		return fmt.Errorf("%w (%d)", ErrLimitReached, s.opts.MaxTrackers)
	}
	if s.indexLocked(t.ID) >= 0 {
		return fmt.Errorf("tracker %s already exists", t.ID)
	}

	s.list = append(s.list, t.Clone())
	if err := s.flushLocked(ctx); err != nil {
		s.list = s.list[:len(s.list)-1]
		return err
	}
	return nil
}

// Update applies patch to a copy of the tracker and commits it when patch
// succeeds. The committed tracker is returned.
func (s *Store) Update(ctx context.Context, id string, patch func(*Tracker) error) (*Tracker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		return nil, ErrNotLoaded
	}
	i := s.indexLocked(id)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	prev := s.list[i]
	next := prev.Clone()
	if err := patch(next); err != nil {
		return nil, err
	}
	next.ID = prev.ID

	s.list[i] = next
	if err := s.flushLocked(ctx); err != nil {
		s.list[i] = prev
		return nil, err
	}
	return next.Clone(), nil
}

func (s *Store) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		return ErrNotLoaded
	}
	i := s.indexLocked(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	prev := s.list
	next := make([]*Tracker, 0, len(prev)-1)
	next = append(next, prev[:i]...)
	next = append(next, prev[i+1:]...)

	s.list = next
	if err := s.flushLocked(ctx); err != nil {
		s.list = prev
		return err
	}
	return nil
}

// List returns copies of all trackers in insertion order.
func (s *Store) List() []*Tracker {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Tracker, len(s.list))
	for i, t := range s.list {
		out[i] = t.Clone()
	}
	return out
}

func (s *Store) Get(id string) (*Tracker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.indexLocked(id)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.list[i].Clone(), nil
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.list)
}

func (s *Store) indexLocked(id string) int {
	for i, t := range s.list {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) flushLocked(ctx context.Context) error {
	list := s.list
	if list == nil {
		list = []*Tracker{}
	}
	data, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("encoding trackers: %w", err)
	}
	if err := s.kv.Set(ctx, storage.CollectionTrackers, snapshotKey, data); err != nil {
		return fmt.Errorf("saving trackers: %w", err)
	}
	return nil
}
