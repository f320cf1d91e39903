package cache

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/singleflight"
)

// DurableTier is the persistent backing store for cache entries. The run
// store implements it; the cache never imports the store package directly.
type DurableTier interface {
	CacheGet(ctx context.Context, key string) (Entry, bool, error)
	CacheSet(ctx context.Context, e Entry) error
}

// Tiered reads through memory then the durable tier, promoting durable hits
// into memory. Concurrent misses for the same key collapse into a single
// compute via singleflight.
type Tiered struct {
	mem     *Memory
	durable DurableTier
	group   singleflight.Group
	now     func() time.Time
}

// NewTiered wires the hot tier over a durable tier. durable may be nil, in
// which case entries live only in memory.
func NewTiered(mem *Memory, durable DurableTier) *Tiered {
	return &Tiered{mem: mem, durable: durable, now: time.Now}
}

// Get checks memory, then the durable tier. Durable hits are promoted.
// Durable tier errors are returned as misses with the error attached so the
// caller can log and recompute.
func (t *Tiered) Get(ctx context.Context, key string) (Entry, bool, error) {
	if e, ok := t.mem.Get(key); ok && !e.Expired(t.now()) {
		return e, true, nil
	}
	if t.durable == nil {
		return Entry{}, false, nil
	}

	e, ok, err := t.durable.CacheGet(ctx, key)
	if err != nil {
		return Entry{}, false, eris.Wrap(err, "cache: durable get")
	}
	if !ok || e.Expired(t.now()) {
		return Entry{}, false, nil
	}
	t.mem.Set(e)
	return e, true, nil
}

// Set writes through both tiers. A durable write failure does not invalidate
// the memory write; the entry simply will not survive a restart.
func (t *Tiered) Set(ctx context.Context, class Class, key string, value []byte) error {
	e := Entry{
		Key:       key,
		Class:     class,
		Value:     value,
		ExpiresAt: t.now().Add(TTLFor(class)),
	}
	t.mem.Set(e)
	if t.durable == nil {
		return nil
	}
	if err := t.durable.CacheSet(ctx, e); err != nil {
		return eris.Wrap(err, "cache: durable set")
	}
	return nil
}

// GetOrCompute returns the cached value for key, computing and storing it on
// a miss. Concurrent callers for the same key share one compute: exactly one
// invocation of fn runs, the rest receive its result.
func (t *Tiered) GetOrCompute(ctx context.Context, class Class, key string, fn func(context.Context) ([]byte, error)) ([]byte, bool, error) {
	if e, ok, _ := t.Get(ctx, key); ok {
		return e.Value, true, nil
	}

	type result struct {
		value []byte
		hit   bool
	}
	v, err, _ := t.group.Do(key, func() (any, error) {
		// Re-check under the flight: another caller may have finished the
		// compute between our miss and entering the group.
		if e, ok, _ := t.Get(ctx, key); ok {
			return result{value: e.Value, hit: true}, nil
		}
		value, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		if err := t.Set(ctx, class, key, value); err != nil {
			return nil, err
		}
		return result{value: value}, nil
	})
	if err != nil {
		return nil, false, err
	}
	r := v.(result)
	return r.value, r.hit, nil
}
