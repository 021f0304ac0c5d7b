package gateway

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrCircuitOpen = errors.New("circuit breaker open")

type ProtectedGatewayConfig struct {
	Timeout          time.Duration // hard timeout per multicast call
	FailureThreshold int           // consecutive batch failures to open circuit
	Cooldown         time.Duration // how long to stay open before half-open
	HalfOpenMaxCalls int           // allow N trial calls in half-open
}

// ProtectedGateway wraps a Gateway with a timeout and a circuit breaker so a
// provider outage fails fast instead of stalling every worker slot. Only
// batch-level errors trip the breaker; per-token failures are normal
// operation.
type ProtectedGateway struct {
	inner Gateway
	cfg   ProtectedGatewayConfig
	mu    sync.Mutex

	state string // "closed" | "open" | "half_open"

	consecutiveFailures int
	openedAt            time.Time
	halfOpenInFlight    int
}

func NewProtectedGateway(inner Gateway, cfg ProtectedGatewayConfig) *ProtectedGateway {
	// defaults
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 15 * time.Second
	}
	if cfg.HalfOpenMaxCalls <= 0 {
		cfg.HalfOpenMaxCalls = 1
	}

	return &ProtectedGateway{
		inner: inner,
		cfg:   cfg,
		state: "closed",
	}
}

func (g *ProtectedGateway) SendMulticast(ctx context.Context, tokens []string, payload Payload) (Report, error) {
	// fail-fast gate
	if !g.allowRequest() {
		return Report{}, ErrCircuitOpen
	}

	// enforce timeout
	sendCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	report, err := g.inner.SendMulticast(sendCtx, tokens, payload)

	g.afterRequest(err)

	return report, err
}

func (g *ProtectedGateway) allowRequest() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch g.state {
	case "closed":
		return true
	case "open":
		// cooldown has passed? move to half open
		if time.Since(g.openedAt) >= g.cfg.Cooldown {
			g.state = "half_open"
			g.halfOpenInFlight = 0
			return true
		}
		return false
	case "half_open":
		if g.halfOpenInFlight >= g.cfg.HalfOpenMaxCalls {
			return false
		}
		g.halfOpenInFlight++
		return true

	default:
		// safe fallback
		return true
	}
}

func (g *ProtectedGateway) afterRequest(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	// half-open call just finished
	if g.state == "half_open" && g.halfOpenInFlight > 0 {
		g.halfOpenInFlight--
	}

	if err == nil {
		// success => close circuit and reset counters
		g.consecutiveFailures = 0
		g.state = "closed"
		return
	}

	// failure
	g.consecutiveFailures++

	// if half-open failed, reopen immediately
	if g.state == "half_open" {
		g.state = "open"
		g.openedAt = time.Now()
		return
	}

	// if failures reached threshold, open circuit
	if g.consecutiveFailures >= g.cfg.FailureThreshold {
		g.state = "open"
		g.openedAt = time.Now()
	}
}
