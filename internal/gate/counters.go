package gate

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"contextcache/internal/logging"
)

// CounterStore is a fixed-window counter: the first Incr of a key starts the
// window and sets its TTL; later Incrs bump the count without extending it.
// When the key expires the window resets. Incr also reports how long the
// current window has left, so refusals can hint an accurate Retry-After.
type CounterStore interface {
	Incr(ctx context.Context, key string, ttl time.Duration) (count int64, remaining time.Duration, err error)
	Close() error
}

// =============================================================================
// BADGER COUNTERS
// =============================================================================

// BadgerCounters keeps burst windows in an embedded BadgerDB so counts
// survive restarts and can be shared by processes on the same host. Expiry
// is Badger-native TTL: an expired key reads as not-found and the window
// restarts.
type BadgerCounters struct {
	db *badger.DB
}

// OpenBadgerCounters opens (or creates) the counter database at dir.
func OpenBadgerCounters(dir string) (*BadgerCounters, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open counter store: %w", err)
	}
	logging.Gate("badger counter store open at %s", dir)
	return &BadgerCounters{db: db}, nil
}

// Incr bumps the counter for key, starting a new TTL window when absent.
func (b *BadgerCounters) Incr(_ context.Context, key string, ttl time.Duration) (int64, time.Duration, error) {
	var count int64
	remaining := ttl
	err := b.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err == badger.ErrKeyNotFound {
			count = 1
			entry := badger.NewEntry([]byte(key), []byte("1")).WithTTL(ttl)
			return txn.SetEntry(entry)
		}
		if err != nil {
			return err
		}

		var prev int64
		if verr := item.Value(func(val []byte) error {
			prev, err = strconv.ParseInt(string(val), 10, 64)
			return err
		}); verr != nil {
			return verr
		}
		count = prev + 1

		// Preserve the original window: re-set with the remaining TTL.
		if exp := item.ExpiresAt(); exp > 0 {
			if until := time.Until(time.Unix(int64(exp), 0)); until > 0 {
				remaining = until
			}
		}
		entry := badger.NewEntry([]byte(key), []byte(strconv.FormatInt(count, 10))).WithTTL(remaining)
		return txn.SetEntry(entry)
	})
	if err != nil {
		return 0, 0, err
	}
	return count, remaining, nil
}

// Close closes the underlying database.
func (b *BadgerCounters) Close() error {
	return b.db.Close()
}

// =============================================================================
// IN-MEMORY COUNTERS
// =============================================================================

// MemCounters is the in-process fallback used when no counter directory is
// configured (development, tests). Windows reset lazily on access.
type MemCounters struct {
	mu      sync.Mutex
	windows map[string]*memWindow
	now     func() time.Time
}

type memWindow struct {
	count     int64
	expiresAt time.Time
}

// NewMemCounters creates an empty in-memory counter store.
func NewMemCounters() *MemCounters {
	return &MemCounters{
		windows: make(map[string]*memWindow),
		now:     time.Now,
	}
}

// Incr bumps the counter for key, resetting expired windows.
func (m *MemCounters) Incr(_ context.Context, key string, ttl time.Duration) (int64, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	w, ok := m.windows[key]
	if !ok || now.After(w.expiresAt) {
		m.windows[key] = &memWindow{count: 1, expiresAt: now.Add(ttl)}
		return 1, ttl, nil
	}
	w.count++
	return w.count, w.expiresAt.Sub(now), nil
}

// Close is a no-op.
func (m *MemCounters) Close() error { return nil }
