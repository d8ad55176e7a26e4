package socket

import (
	"strings"

	"github.com/rs/zerolog"

	"github.com/miroslavpejic85/mirotalk-admin/internal/auth"
	"github.com/miroslavpejic85/mirotalk-admin/internal/metrics"
	"github.com/miroslavpejic85/mirotalk-admin/internal/stream"
)

const invalidTokenMessage = "Invalid or expired token.\n"

// Gate checks the token carried by each privileged event.
type Gate struct {
	verifier auth.Verifier
	log      zerolog.Logger
}

func NewGate(verifier auth.Verifier, log zerolog.Logger) *Gate {
	return &Gate{verifier: verifier, log: log}
}

// Validate reports whether token is valid. On failure it emits the invalid
// token message on events.Output and Done(1) to em, and the caller must
// return without side effects. Success emits nothing.
func (g *Gate) Validate(token string, em stream.Emitter, events stream.Events) bool {
	if _, err := g.verifier.Verify(token); err != nil {
		operation := strings.TrimSuffix(events.Output, "Output")
		metrics.RecordAuthFailure(operation)
		g.log.Warn().Str("operation", operation).Err(err).Msg("rejected socket token")
		em.Emit(events.Output, invalidTokenMessage)
		em.Emit(events.Done, 1)
		return false
	}
	return true
}
