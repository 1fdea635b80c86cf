package resultcache

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"
)

// Loader reads entries through a Cache and fills misses. Concurrent misses for the
// same key share one fill.
type Loader struct {
	cache Cache
	group singleflight.Group
}

// NewLoader creates a loader over cache.
func NewLoader(cache Cache) *Loader {
	return &Loader{cache: cache}
}

// Cache returns the underlying cache.
func (l *Loader) Cache() Cache {
	return l.cache
}

// Loaded is the outcome of Loader.Load.
type Loaded struct {
	Entry *Entry
	// Hit reports whether the entry came from the cache.
	Hit bool
	// CacheErr is a cache read, decode or write failure. Loads fall back to the fill
	// function on such failures, so it is informational.
	CacheErr error
}

// Load returns the entry stored under key, or calls fill and stores its result for ttl.
func (l *Loader) Load(ctx context.Context, key string, ttl time.Duration, fill func(context.Context) (*Entry, error)) (Loaded, error) {
	var cacheErr error
	data, getErr := l.cache.Get(ctx, key)
	switch {
	case getErr != nil:
		cacheErr = getErr
	case data != nil:
		decoded, decodeErr := Decode(data)
		if decodeErr == nil {
			return Loaded{Entry: decoded, Hit: true}, nil
		}
		cacheErr = decodeErr
	}

	// The fill is shared by every caller waiting on key, so it must not inherit the
	// cancellation of whichever caller started it. Each caller still stops waiting
	// when its own context ends.
	fillCtx := context.WithoutCancel(ctx)
	ch := l.group.DoChan(key, func() (any, error) {
		filled, err := fill(fillCtx)
		if err != nil {
			return nil, err
		}
		encoded, encErr := Encode(filled)
		if encErr != nil {
			return filledResult{entry: filled, cacheErr: encErr}, nil
		}
		if setErr := l.cache.Set(fillCtx, key, encoded, ttl); setErr != nil {
			return filledResult{entry: filled, cacheErr: setErr}, nil
		}
		return filledResult{entry: filled}, nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return Loaded{CacheErr: cacheErr}, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return Loaded{CacheErr: cacheErr}, res.Err
	}
	filled := res.Val.(filledResult)
	if cacheErr == nil {
		cacheErr = filled.cacheErr
	}
	return Loaded{Entry: filled.entry, CacheErr: cacheErr}, nil
}

// EvictRegion removes every entry of region.
func (l *Loader) EvictRegion(ctx context.Context, region string) error {
	if err := ValidateRegion(region); err != nil {
		return err
	}
	return l.cache.DeletePrefix(ctx, RegionPrefix(region))
}

type filledResult struct {
	entry    *Entry
	cacheErr error
}
