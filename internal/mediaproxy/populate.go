package mediaproxy

import (
	"context"

	"golang.org/x/sync/singleflight"
)

// mediaResolver is satisfied by *OriginResolver.
type mediaResolver interface {
	Resolve(ctx context.Context, rt ResourceType, resourceID string, opts HostURLOptions) ([]MediaEntry, error)
}

// Populator refreshes a resource's whole media set into the cache. Fetching
// every entry at once keeps sibling files of the same form warm.
type Populator struct {
	cache    Cache[CacheKey, string]
	resolver mediaResolver
	stats    *statsCollector

	group singleflight.Group
}

func NewPopulator(cache Cache[CacheKey, string], resolver mediaResolver, stats *statsCollector) *Populator {
	return &Populator{cache: cache, resolver: resolver, stats: stats}
}

// Populate fetches the media set of (rt, resourceID) and caches every entry
// under the caller's device. Concurrent calls for the same device and
// resource share one origin round trip. The shared fetch is detached from any
// single caller's cancellation; each caller only observes its own ctx.
func (p *Populator) Populate(ctx context.Context, rt ResourceType, resourceID string, opts HostURLOptions) ([]MediaEntry, error) {
	flightKey := opts.DeviceID + "\x00" + rt.String() + "\x00" + resourceID
	fetchCtx := context.WithoutCancel(ctx)
	ch := p.group.DoChan(flightKey, func() (any, error) {
		p.stats.Repopulation()
		entries, err := p.resolver.Resolve(fetchCtx, rt, resourceID, opts)
		if err != nil {
			p.stats.OriginError()
			return nil, err
		}
		for _, e := range entries {
			p.PopulateOne(opts, rt, resourceID, e.Filename, e.URL)
		}
		return entries, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]MediaEntry), nil
	}
}

// PopulateOne caches a single resolution.
func (p *Populator) PopulateOne(opts HostURLOptions, rt ResourceType, resourceID, fileName, remoteURL string) {
	key := CacheKey{
		DeviceID:  opts.DeviceID,
		LocalPath: BuildLocalPath(opts.BasePath, rt, resourceID, fileName),
	}
	p.cache.Set(key, remoteURL)
}
