package mediaproxy

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const proxyHeader = "X-Mediaproxy"

type Service struct {
	cfg Config
	log zerolog.Logger

	httpClient *http.Client
	clock      Clock

	store     Store
	forms     FormInfoProvider
	manifests ManifestProvider

	cache     *TTLCache[CacheKey, string]
	populator *Populator
	resolver  *Resolver
	rewriter  ReferenceRewriter
	describer RequestDescriber

	registry *prometheus.Registry
	stats    *statsCollector

	originLog *rateLimitedLogger

	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Option overrides a collaborator, mostly for tests.
type Option func(*Service)

func WithStore(st Store) Option               { return func(s *Service) { s.store = st } }
func WithClock(c Clock) Option                { return func(s *Service) { s.clock = c } }
func WithHTTPClient(c *http.Client) Option    { return func(s *Service) { s.httpClient = c } }
func WithFormInfo(f FormInfoProvider) Option  { return func(s *Service) { s.forms = f } }
func WithManifests(m ManifestProvider) Option { return func(s *Service) { s.manifests = m } }

// NewService wires the resolution pipeline. The store is opened from cfg
// unless WithStore is given; the service owns it either way.
func NewService(cfg Config, log zerolog.Logger, opts ...Option) (*Service, error) {
	s := &Service{
		cfg:      cfg,
		log:      log,
		clock:    SystemClock{},
		rewriter: RegexpRewriter{},
		describer: cookieDescriber{
			basePath:     cfg.Server.BasePath,
			deviceCookie: cfg.Media.DeviceCookie,
		},
		registry:  prometheus.NewRegistry(),
		originLog: newRateLimitedLogger(log, time.Minute),
		stopCh:    make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	if s.httpClient == nil {
		s.httpClient = &http.Client{Timeout: cfg.originTimeoutDur}
	}
	if s.store == nil {
		st, err := OpenStore(cfg)
		if err != nil {
			return nil, err
		}
		s.store = st
	}
	if s.forms == nil || s.manifests == nil {
		orc := newOpenRosaClient(s.httpClient, cfg.maxBodyBytes)
		if s.forms == nil {
			s.forms = orc
		}
		if s.manifests == nil {
			s.manifests = orc
		}
	}

	s.cache = NewTTLCache[CacheKey, string](cfg.expirationDur, s.clock)
	s.stats = newStatsCollector(s.registry, func() float64 { return float64(s.cache.Len()) })
	s.cache.onEvict = func(CacheKey) { s.stats.Eviction() }

	origin := &OriginResolver{
		Surveys:     s.store,
		Forms:       s.forms,
		Manifests:   s.manifests,
		Attachments: s.store,
	}
	s.populator = NewPopulator(s.cache, origin, s.stats)
	s.resolver = NewResolver(s.cache, s.populator, s.stats)

	if every := cfg.logStatsEveryDur; every > 0 {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.statsLoop(every)
		}()
	}
	return s, nil
}

// Close stops background work, cancels every cache timer and closes the
// store. Later calls are no-ops.
func (s *Service) Close() {
	s.closeOnce.Do(func() {
		close(s.stopCh)
		s.wg.Wait()
		s.cache.Close()
		if err := s.store.Close(); err != nil {
			s.log.Warn().Err(err).Msg("close store")
		}
	})
}

// Resolver exposes the resolution pipeline for in-process callers.
func (s *Service) Resolver() *Resolver { return s.resolver }

func (s *Service) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(s.accessLog)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	r.Route(s.cfg.Server.BasePath+"/media", func(r chi.Router) {
		r.Get("/get/*", s.handleMedia)
		r.Post("/rewrite/{type}/{id}", s.handleRewrite)
	})

	if s.cfg.Admin.APIKey != "" {
		r.Route("/admin", func(r chi.Router) {
			r.Use(s.requireAPIKey)
			r.Put("/surveys/{id}", s.handlePutSurvey)
			r.Put("/instances/{id}", s.handlePutInstance)
			r.Delete("/cache", s.handleClearCache)
		})
	}
	return r
}

func (s *Service) handleMedia(w http.ResponseWriter, r *http.Request) {
	opts, err := s.describer.Describe(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resolved, err := s.resolver.Resolve(r.Context(), opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if resolved == opts.RequestPath {
		setProxyHeader(w.Header(), "not-found")
		http.NotFound(w, r)
		return
	}
	setProxyHeader(w.Header(), "resolved")
	http.Redirect(w, r, resolved, http.StatusTemporaryRedirect)
}

func (s *Service) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrUnauthorized):
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	case errors.Is(err, ErrSurveyNotFound), errors.Is(err, ErrInstanceNotFound):
		setProxyHeader(w.Header(), "not-found")
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, context.Canceled) && r.Context().Err() != nil:
		// client went away
	default:
		s.originLog.Warn(err, "origin resolution failed", nil)
		setProxyHeader(w.Header(), "bad-gateway")
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}
}

func (s *Service) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("request_id", chimiddleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

func setProxyHeader(h http.Header, v string) {
	if v != "" {
		h.Set(proxyHeader, v)
	}
	ensureExposedHeader(h, proxyHeader)
}

// ensureExposedHeader lets browser scripts read name in CORS responses.
func ensureExposedHeader(h http.Header, name string) {
	const expose = "Access-Control-Expose-Headers"
	cur := h.Values(expose)
	if len(cur) == 0 {
		h.Set(expose, name)
		return
	}
	merged := strings.Join(cur, ",")
	for _, part := range strings.Split(merged, ",") {
		if strings.EqualFold(strings.TrimSpace(part), name) {
			return
		}
	}
	h.Set(expose, strings.TrimSpace(merged)+", "+name)
}

func (s *Service) statsLoop(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-t.C:
			ss := s.stats.Snapshot()
			s.log.Info().
				Int("entries", s.cache.Len()).
				Uint64("hits", ss.Hits).
				Uint64("misses", ss.Misses).
				Float64("hit_rate", ss.HitRate()).
				Uint64("repopulations", ss.Repopulations).
				Uint64("origin_errors", ss.OriginErrors).
				Uint64("evictions", ss.Evictions).
				Msg("cache stats")
		}
	}
}
