package oracle

import (
	"context"
	"errors"
	"time"

	"github.com/rooney011/CodeWeaver/internal/circuit"
	cwerrors "github.com/rooney011/CodeWeaver/internal/errors"
	"github.com/rooney011/CodeWeaver/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Guarded wraps an Oracle with a per-call timeout and a circuit breaker, and
// records latency for every call.
type Guarded struct {
	inner   Oracle
	timeout time.Duration
	breaker *circuit.Breaker
}

// NewGuarded wraps inner. A non-positive timeout defaults to 30s.
func NewGuarded(inner Oracle, timeout time.Duration, breaker *circuit.Breaker) *Guarded {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if breaker == nil {
		breaker = circuit.NewBreaker("oracle-"+inner.Name(), circuit.DefaultConfig())
	}
	provider := inner.Name()
	breaker.SetOnStateChange(func(_, to circuit.State) {
		metrics.OracleBreakerState.WithLabelValues(provider).Set(float64(to))
	})
	return &Guarded{inner: inner, timeout: timeout, breaker: breaker}
}

// Name returns the wrapped provider's name.
func (g *Guarded) Name() string {
	return g.inner.Name()
}

// Breaker exposes the breaker for status reporting.
func (g *Guarded) Breaker() *circuit.Breaker {
	return g.breaker
}

// Invoke calls the wrapped Oracle unless the breaker is open.
func (g *Guarded) Invoke(ctx context.Context, system, user string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	var out string
	err := g.breaker.Execute(func() error {
		var invokeErr error
		out, invokeErr = g.inner.Invoke(ctx, system, user)
		if invokeErr != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return cwerrors.New(cwerrors.KindTransientExternal, "oracle.invoke", g.inner.Name(),
				errors.Join(cwerrors.ErrTimeout, invokeErr))
		}
		return invokeErr
	})
	elapsed := time.Since(start)

	outcome := "success"
	switch {
	case circuit.IsCircuitOpen(err):
		outcome = "circuit_open"
	case err != nil:
		outcome = "error"
	}
	metrics.RecordOracleRequest(g.inner.Name(), outcome, elapsed)

	if err != nil {
		log.Warn().
			Err(err).
			Str("provider", g.inner.Name()).
			Dur("elapsed", elapsed).
			Msg("Oracle call failed")
		return "", err
	}
	return out, nil
}
