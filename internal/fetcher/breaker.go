package fetcher

import (
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrCircuitOpen is returned when a host has failed too often recently.
var ErrCircuitOpen = eris.New("fetcher: circuit breaker is open")

type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

func (s breakerState) String() string {
	switch s {
	case breakerClosed:
		return "closed"
	case breakerOpen:
		return "open"
	case breakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig controls the per-host circuit breakers.
type BreakerConfig struct {
	FailureThreshold int
	ResetTimeout     time.Duration
}

type breaker struct {
	mu                  sync.Mutex
	state               breakerState
	consecutiveFailures int
	openedAt            time.Time
}

// hostBreakers tracks one breaker per host. A host that keeps failing is
// rejected without a request until ResetTimeout elapses, then a single
// probe decides whether it closes again.
type hostBreakers struct {
	cfg      BreakerConfig
	now      func() time.Time
	mu       sync.Mutex
	breakers map[string]*breaker
}

func newHostBreakers(cfg BreakerConfig) *hostBreakers {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = time.Minute
	}
	return &hostBreakers{cfg: cfg, now: time.Now, breakers: make(map[string]*breaker)}
}

func (h *hostBreakers) get(host string) *breaker {
	h.mu.Lock()
	defer h.mu.Unlock()
	b, ok := h.breakers[host]
	if !ok {
		b = &breaker{}
		h.breakers[host] = b
	}
	return b
}

func (h *hostBreakers) allow(host string) error {
	b := h.get(host)
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerOpen:
		if h.now().Sub(b.openedAt) < h.cfg.ResetTimeout {
			return eris.Wrapf(ErrCircuitOpen, "host %s", host)
		}
		b.state = breakerHalfOpen
		return nil
	default:
		return nil
	}
}

// record counts only failures that say something about the host's health:
// transport errors and transient statuses. A 404 leaves the breaker alone.
func (h *hostBreakers) record(host string, err error) {
	b := h.get(host)
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil || !IsTransient(err) {
		if b.state != breakerClosed {
			zap.L().Info("fetcher: circuit closed", zap.String("host", host))
		}
		b.state = breakerClosed
		b.consecutiveFailures = 0
		return
	}

	b.consecutiveFailures++
	if b.state == breakerHalfOpen || b.consecutiveFailures >= h.cfg.FailureThreshold {
		if b.state != breakerOpen {
			zap.L().Warn("fetcher: circuit opened",
				zap.String("host", host),
				zap.Int("failures", b.consecutiveFailures),
			)
		}
		b.state = breakerOpen
		b.openedAt = h.now()
	}
}

func (h *hostBreakers) state(host string) breakerState {
	b := h.get(host)
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
