package mediaproxy

import "context"

// Resolver answers local media paths with remote URLs.
type Resolver struct {
	cache     Cache[CacheKey, string]
	populator *Populator
	stats     *statsCollector
}

func NewResolver(cache Cache[CacheKey, string], populator *Populator, stats *statsCollector) *Resolver {
	return &Resolver{cache: cache, populator: populator, stats: stats}
}

// Resolve returns the remote URL for opts.RequestPath. Paths that are not
// media paths, and media that is still unknown after a full repopulation,
// come back as opts.RequestPath unchanged. Only origin failures are errors.
func (r *Resolver) Resolve(ctx context.Context, opts HostURLOptions) (string, error) {
	seg, ok := ParseLocalPath(opts.RequestPath)
	if !ok {
		return opts.RequestPath, nil
	}

	// Rebuilt rather than taken from the request so the key matches what
	// Populate writes.
	key := CacheKey{
		DeviceID:  opts.DeviceID,
		LocalPath: BuildLocalPath(opts.BasePath, seg.ResourceType, seg.ResourceID, seg.FileName),
	}
	if u, ok := r.cache.Get(key); ok {
		r.stats.Hit()
		return u, nil
	}
	r.stats.Miss()

	if _, err := r.populator.Populate(ctx, seg.ResourceType, seg.ResourceID, opts); err != nil {
		return "", err
	}
	if u, ok := r.cache.Get(key); ok {
		return u, nil
	}
	return opts.RequestPath, nil
}

// MediaMap repopulates a resource and returns the mapping embedded in
// transformed markup: escaped filename → local path.
func (r *Resolver) MediaMap(ctx context.Context, rt ResourceType, resourceID string, opts HostURLOptions) (map[string]string, error) {
	entries, err := r.populator.Populate(ctx, rt, resourceID, opts)
	if err != nil {
		return nil, err
	}
	media := make(map[string]string, len(entries))
	for _, e := range entries {
		media[EscapeFilenameForMarkup(e.Filename)] = BuildLocalPath(opts.BasePath, rt, resourceID, e.Filename)
	}
	return media, nil
}
