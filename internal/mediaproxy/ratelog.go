package mediaproxy

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// rateLimitedLogger drops warnings that arrive within interval of the last
// emitted one. An unreachable origin would otherwise log once per request.
type rateLimitedLogger struct {
	log      zerolog.Logger
	mu       sync.Mutex
	lastAt   time.Time
	interval time.Duration
	dropped  int
}

func newRateLimitedLogger(log zerolog.Logger, interval time.Duration) *rateLimitedLogger {
	return &rateLimitedLogger{log: log, interval: interval}
}

func (l *rateLimitedLogger) Warn(err error, msg string, fields map[string]any) {
	l.mu.Lock()
	now := time.Now()
	if !l.lastAt.IsZero() && now.Sub(l.lastAt) < l.interval {
		l.dropped++
		l.mu.Unlock()
		return
	}
	dropped := l.dropped
	l.lastAt = now
	l.dropped = 0
	l.mu.Unlock()

	ev := l.log.Warn().Err(err).Fields(fields)
	if dropped > 0 {
		ev = ev.Int("suppressed", dropped)
	}
	ev.Msg(msg)
}
