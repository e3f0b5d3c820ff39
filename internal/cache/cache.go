package cache

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Cache is the content-addressed front over a Store. Records are keyed by
// Key(text) and owned by the cache; callers receive copies.
type Cache struct {
	store Store
	now   func() time.Time

	locksMu sync.Mutex
	locks   map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

type Option func(*Cache)

// WithClock overrides the timestamp source, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

func New(store Store, opts ...Option) *Cache {
	if store == nil {
		store = NewMemoryStore(0)
	}
	c := &Cache{
		store: store,
		now:   time.Now,
		locks: make(map[string]*keyLock),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

func (c *Cache) Key(text string) string {
	return Key(text)
}

// Lookup returns a record only when it is complete enough to serve.
// Records written by older pipeline versions get job_id and
// explainer_status backfilled instead of being trusted as-is.
func (c *Cache) Lookup(ctx context.Context, jobID string) (*Record, bool, error) {
	rec, ok, err := c.store.Get(ctx, jobID)
	if err != nil || !ok {
		return nil, false, err
	}
	if !rec.Servable() {
		return nil, false, nil
	}
	backfill(jobID, rec)
	return rec, true, nil
}

// Get returns whatever the store holds for jobID, without the completeness check.
func (c *Cache) Get(ctx context.Context, jobID string) (*Record, bool, error) {
	rec, ok, err := c.store.Get(ctx, jobID)
	if err != nil || !ok {
		return nil, false, err
	}
	backfill(jobID, rec)
	return rec, true, nil
}

// Save overwrites the record stored under jobID.
func (c *Cache) Save(ctx context.Context, jobID string, record *Record) error {
	if record == nil {
		return fmt.Errorf("nil record for %s", jobID)
	}
	lock := c.acquire(jobID)
	defer c.release(jobID, lock)

	rec := record.Clone()
	c.stamp(jobID, rec)
	return c.store.Set(ctx, jobID, rec)
}

// Update applies fn to the current record under a per-key lock and stores
// the result. fn is not called when the record does not exist.
func (c *Cache) Update(ctx context.Context, jobID string, fn func(*Record) error) (*Record, error) {
	lock := c.acquire(jobID)
	defer c.release(jobID, lock)

	rec, ok, err := c.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	backfill(jobID, rec)
	if err := fn(rec); err != nil {
		return nil, err
	}
	c.stamp(jobID, rec)
	if err := c.store.Set(ctx, jobID, rec); err != nil {
		return nil, err
	}
	return rec.Clone(), nil
}

// Sweep drops records not updated within ttl. A zero ttl keeps everything.
func (c *Cache) Sweep(ctx context.Context, ttl time.Duration) (int, error) {
	if ttl <= 0 {
		return 0, nil
	}
	return c.store.Sweep(ctx, c.now().Add(-ttl))
}

func (c *Cache) stamp(jobID string, rec *Record) {
	now := c.now().UTC()
	rec.JobID = jobID
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
}

func (c *Cache) acquire(jobID string) *keyLock {
	c.locksMu.Lock()
	l, ok := c.locks[jobID]
	if !ok {
		l = &keyLock{}
		c.locks[jobID] = l
	}
	l.refs++
	c.locksMu.Unlock()

	l.mu.Lock()
	return l
}

func (c *Cache) release(jobID string, l *keyLock) {
	l.mu.Unlock()

	c.locksMu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(c.locks, jobID)
	}
	c.locksMu.Unlock()
}

func backfill(jobID string, rec *Record) {
	if rec.JobID == "" {
		rec.JobID = jobID
	}
	if rec.ExplainerStatus == "" {
		if rec.Explainer != nil {
			rec.ExplainerStatus = ExplainerReady
		} else {
			rec.ExplainerStatus = ExplainerPending
		}
	}
}
