package gateway

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"
)

// LogGateway is the provider used in dev and when no FCM credentials are
// configured: it logs instead of sending. Env knobs simulate provider
// behavior for manual testing.
type LogGateway struct{}

func NewLogGateway() *LogGateway { return &LogGateway{} }

func (g *LogGateway) SendMulticast(ctx context.Context, tokens []string, payload Payload) (Report, error) {
	// Optional: simulate slow provider
	if msStr := os.Getenv("GATEWAY_SLEEP_MS"); msStr != "" {
		ms, _ := strconv.Atoi(msStr)
		if ms > 0 {
			select {
			case <-time.After(time.Duration(ms) * time.Millisecond):
			case <-ctx.Done():
				return Report{}, ctx.Err()
			}
		}
	}

	// Optional: simulate provider outage
	if os.Getenv("GATEWAY_FAIL") == "1" {
		return Report{}, fmt.Errorf("provider down (simulated)")
	}

	log.Printf("push.multicast tokens=%d title=%q body=%q data=%v",
		len(tokens), payload.Title, payload.Body, payload.Data,
	)
	return Report{SuccessCount: len(tokens)}, nil
}
