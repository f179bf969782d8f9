package mediaproxy

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestStatsCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := newStatsCollector(reg, func() float64 { return 3 })

	s.Hit()
	s.Hit()
	s.Hit()
	s.Miss()
	s.Repopulation()
	s.OriginError()
	s.Eviction()

	ss := s.Snapshot()
	assert.Equal(t, statsSnapshot{Hits: 3, Misses: 1, Repopulations: 1, OriginErrors: 1, Evictions: 1}, ss)
	assert.InDelta(t, 75.0, ss.HitRate(), 0.001)

	assert.InDelta(t, 3.0, testutil.ToFloat64(s.promHits), 0.001)
	n, err := testutil.GatherAndCount(reg, "mediaproxy_cache_entries")
	assert.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStatsCollectorNil(t *testing.T) {
	var s *statsCollector
	s.Hit()
	s.Miss()
	s.Eviction()
	assert.Equal(t, statsSnapshot{}, s.Snapshot())
	assert.Zero(t, s.Snapshot().HitRate())
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512b", formatBytes(512))
	assert.Equal(t, "1kb", formatBytes(1024))
	assert.Equal(t, "1.5kb", formatBytes(1536))
	assert.Equal(t, "4mb", formatBytes(4<<20))
	assert.Equal(t, "2gb", formatBytes(2<<30))
}

func TestRateLimitedLogger(t *testing.T) {
	var buf bytes.Buffer
	l := newRateLimitedLogger(zerolog.New(&buf), time.Hour)
	boom := errors.New("boom")

	l.Warn(boom, "origin failed", map[string]any{"survey": "abcd"})
	l.Warn(boom, "origin failed", nil)
	l.Warn(boom, "origin failed", nil)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"survey":"abcd"`)
	assert.Equal(t, 2, l.dropped)

	l.lastAt = time.Now().Add(-2 * time.Hour)
	buf.Reset()
	l.Warn(boom, "origin failed", nil)
	assert.Contains(t, buf.String(), `"suppressed":2`)
}
