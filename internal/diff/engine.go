// Package diff keeps a cached snapshot of a remote keyed set and reports
// what changed between fetches as a stream of add/remove events.
//
// An Engine is driven by a single goroutine (its poller); the snapshot it
// caches is never shared. Consumers learn about changes only through the
// Receiver returned by Build.
package diff

import (
	"context"
	"errors"
	"fmt"
)

// FetchFunc fetches and parses the complete current state of one feed.
type FetchFunc[K comparable] func(ctx context.Context) (Set[K], error)

// FetchError wraps a failed refresh of a feed.
type FetchError struct {
	Feed string
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("refresh %s: %v", e.Feed, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Delta summarises one diff cycle.
type Delta struct {
	Added   int
	Removed int
	// Size is the number of keys in the committed snapshot.
	Size int
}

// Engine owns the cached snapshot of one feed.
type Engine[K comparable] struct {
	name   string
	fetch  FetchFunc[K]
	sender *Sender[K]
	cache  Set[K]
}

// New creates an engine with an empty snapshot bound to sender.
func New[K comparable](name string, sender *Sender[K], fetch FetchFunc[K]) *Engine[K] {
	return &Engine[K]{
		name:   name,
		fetch:  fetch,
		sender: sender,
		cache:  Set[K]{},
	}
}

// Build creates an engine, performs the first fetch synchronously and commits
// it without emitting events. The returned receiver only sees later changes,
// so a mirror seeded from Snapshot needs no replay.
func Build[K comparable](ctx context.Context, name string, fetch FetchFunc[K]) (*Engine[K], *Receiver[K], error) {
	tx, rx := NewChannel[K]()
	e := New(name, tx, fetch)
	initial, err := e.Refresh(ctx)
	if err != nil {
		return nil, nil, err
	}
	e.Commit(initial)
	return e, rx, nil
}

// Name returns the feed name the engine was built with.
func (e *Engine[K]) Name() string {
	return e.name
}

// Snapshot returns the last committed snapshot. Callers must not modify it.
func (e *Engine[K]) Snapshot() Set[K] {
	return e.cache
}

// Refresh fetches the current state of the feed without touching the cache.
func (e *Engine[K]) Refresh(ctx context.Context) (Set[K], error) {
	s, err := e.fetch(ctx)
	if err != nil {
		return nil, &FetchError{Feed: e.name, Err: err}
	}
	if s == nil {
		s = Set[K]{}
	}
	return s, nil
}

// Send pushes one event to the consumer.
func (e *Engine[K]) Send(k K, added bool) error {
	return e.sender.Send(Event[K]{Key: k, Added: added})
}

// Commit replaces the cached snapshot.
func (e *Engine[K]) Commit(s Set[K]) {
	e.cache = s
}

// Diff runs one refresh/compare/notify/commit cycle.
//
// A failed refresh leaves the engine untouched and sends nothing. Once the
// refresh succeeds the new snapshot is always committed, even when the
// receiver has gone away mid-cycle; in that case sending stops at the first
// failure and ErrChannelClosed is returned.
func (e *Engine[K]) Diff(ctx context.Context) (Delta, error) {
	next, err := e.Refresh(ctx)
	if err != nil {
		return Delta{}, err
	}

	old := e.cache
	added := next.Difference(old)
	removed := old.Difference(next)
	delta := Delta{Added: len(added), Removed: len(removed), Size: next.Len()}

	err = e.sendAll(added, removed)
	e.Commit(next)
	return delta, err
}

func (e *Engine[K]) sendAll(added, removed []K) error {
	for _, k := range added {
		if err := e.Send(k, true); err != nil {
			return err
		}
	}
	for _, k := range removed {
		if err := e.Send(k, false); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the producing side of the channel. The engine must not be
// used afterwards.
func (e *Engine[K]) Close() {
	e.sender.Close()
}

// IsFetchError reports whether err came from a failed refresh.
func IsFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}
