package socket

import "golang.org/x/time/rate"

// Inbound message rate per connection. Messages beyond it are dropped; the
// burst absorbs pastes into the terminal.
const (
	inboundRateLimit rate.Limit = 200
	inboundRateBurst            = 200
)

func newInboundLimiter() *rate.Limiter {
	return rate.NewLimiter(inboundRateLimit, inboundRateBurst)
}
