package mediaproxy

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// statsCollector counts cache outcomes for the periodic stats log and mirrors
// them into Prometheus. A nil collector is valid and counts nothing.
type statsCollector struct {
	hits          atomic.Uint64
	misses        atomic.Uint64
	repopulations atomic.Uint64
	originErrors  atomic.Uint64
	evictions     atomic.Uint64

	promHits          prometheus.Counter
	promMisses        prometheus.Counter
	promRepopulations prometheus.Counter
	promOriginErrors  prometheus.Counter
	promEvictions     prometheus.Counter
}

func newStatsCollector(reg prometheus.Registerer, entries func() float64) *statsCollector {
	s := &statsCollector{
		promHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mediaproxy_cache_hits_total",
			Help: "Media resolutions answered from the cache",
		}),
		promMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mediaproxy_cache_misses_total",
			Help: "Media resolutions that required a repopulation",
		}),
		promRepopulations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mediaproxy_repopulations_total",
			Help: "Origin media set fetches",
		}),
		promOriginErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mediaproxy_origin_errors_total",
			Help: "Failed origin media set fetches",
		}),
		promEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mediaproxy_cache_evictions_total",
			Help: "Resolutions dropped after their idle window",
		}),
	}
	if reg != nil {
		reg.MustRegister(s.promHits, s.promMisses, s.promRepopulations, s.promOriginErrors, s.promEvictions)
		if entries != nil {
			reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Name: "mediaproxy_cache_entries",
				Help: "Resolutions currently cached",
			}, entries))
		}
	}
	return s
}

func (s *statsCollector) Hit() {
	if s == nil {
		return
	}
	s.hits.Add(1)
	s.promHits.Inc()
}

func (s *statsCollector) Miss() {
	if s == nil {
		return
	}
	s.misses.Add(1)
	s.promMisses.Inc()
}

func (s *statsCollector) Repopulation() {
	if s == nil {
		return
	}
	s.repopulations.Add(1)
	s.promRepopulations.Inc()
}

func (s *statsCollector) OriginError() {
	if s == nil {
		return
	}
	s.originErrors.Add(1)
	s.promOriginErrors.Inc()
}

func (s *statsCollector) Eviction() {
	if s == nil {
		return
	}
	s.evictions.Add(1)
	s.promEvictions.Inc()
}

type statsSnapshot struct {
	Hits          uint64
	Misses        uint64
	Repopulations uint64
	OriginErrors  uint64
	Evictions     uint64
}

func (s *statsCollector) Snapshot() statsSnapshot {
	if s == nil {
		return statsSnapshot{}
	}
	return statsSnapshot{
		Hits:          s.hits.Load(),
		Misses:        s.misses.Load(),
		Repopulations: s.repopulations.Load(),
		OriginErrors:  s.originErrors.Load(),
		Evictions:     s.evictions.Load(),
	}
}

func (ss statsSnapshot) HitRate() float64 {
	total := ss.Hits + ss.Misses
	if total == 0 {
		return 0
	}
	return float64(ss.Hits) / float64(total) * 100
}

func formatBytes(b uint64) string {
	const (
		kb = 1024
		mb = 1024 * kb
		gb = 1024 * mb
	)
	if b < kb {
		return fmt.Sprintf("%db", b)
	}
	if b < mb {
		return trimFloat(fmt.Sprintf("%.1f", float64(b)/kb)) + "kb"
	}
	if b < gb {
		return trimFloat(fmt.Sprintf("%.1f", float64(b)/mb)) + "mb"
	}
	return trimFloat(fmt.Sprintf("%.1f", float64(b)/gb)) + "gb"
}

func trimFloat(s string) string {
	return strings.TrimSuffix(strings.TrimSpace(s), ".0")
}
