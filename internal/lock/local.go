package lock

import (
	"context"
	"strings"
	"sync"
	"time"
)

const BackendLocal = "local"

type entry struct {
	ch   chan struct{}
	refs int
}

// Local is an in-process keyed mutex. Entries are dropped once no goroutine
// holds or waits on them, so the map stays bounded by live keys.
type Local struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func NewLocal() *Local {
	return &Local{entries: make(map[string]*entry)}
}

func (l *Local) Backend() string { return BackendLocal }

// Acquire blocks until the key is free or ctx is done. ttl is ignored: a local
// holder cannot outlive the process.
func (l *Local) Acquire(ctx context.Context, key string, _ time.Duration) (Release, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, ErrEmptyKey
	}

	e := l.ref(key)
	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		l.unref(key, e)
		return nil, &ContentionError{Key: key, Cause: ctx.Err()}
	}

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			<-e.ch
			l.unref(key, e)
		})
		return nil
	}, nil
}

// Lock acquires key without a deadline and returns its unlock function.
func (l *Local) Lock(key string) func() {
	release, err := l.Acquire(context.Background(), key, 0)
	if err != nil {
		// only reachable with an empty key; nothing is held
		return func() {}
	}
	return func() { _ = release(context.Background()) }
}

func (l *Local) ref(key string) *entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		l.entries[key] = e
	}
	e.refs++
	return e
}

func (l *Local) unref(key string, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
}

func (l *Local) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
