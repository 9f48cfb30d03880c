package validator

import (
	"context"
	"time"

	"github.com/raykavin/quantcore/pkg/core"
	"github.com/raykavin/quantcore/pkg/logger"
)

// RationaleUnavailable marks verdicts produced when the validator could
// not be reached rather than by an actual rejection.
const RationaleUnavailable = "validator_unavailable"

// Timeout wraps a validator with a hard deadline. A slow or failing
// inner validator degrades to a non-confirming verdict; it never
// surfaces an error to the caller.
type Timeout struct {
	inner   core.SignalValidator
	timeout time.Duration
	log     logger.Logger
}

// WithTimeout decorates inner with a per-call deadline.
func WithTimeout(inner core.SignalValidator, timeout time.Duration, log logger.Logger) *Timeout {
	return &Timeout{inner: inner, timeout: timeout, log: log}
}

// Validate calls the inner validator with a bounded context. Timeouts
// and errors both map to Confirmed=false.
func (t *Timeout) Validate(ctx context.Context, packet core.FeaturePacket) (core.Validation, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	type outcome struct {
		verdict core.Validation
		err     error
	}
	done := make(chan outcome, 1)

	go func() {
		verdict, err := t.inner.Validate(ctx, packet)
		done <- outcome{verdict, err}
	}()

	select {
	case <-ctx.Done():
		t.log.WithError(ctx.Err()).Warnf("validator timed out for %s %s", packet.Symbol, packet.Side)
		return core.Validation{Confirmed: false, Rationale: RationaleUnavailable}, nil
	case out := <-done:
		if out.err != nil {
			t.log.WithError(out.err).Warnf("validator failed for %s %s", packet.Symbol, packet.Side)
			return core.Validation{Confirmed: false, Rationale: RationaleUnavailable}, nil
		}
		return out.verdict, nil
	}
}

// Static always answers with a fixed verdict. Used in tests and as a
// stand-in when no external validator is configured.
type Static struct {
	Verdict core.Validation
	Err     error

	// Packets records every packet received, in call order.
	Packets []core.FeaturePacket
}

// Validate implements core.SignalValidator.
func (s *Static) Validate(_ context.Context, packet core.FeaturePacket) (core.Validation, error) {
	s.Packets = append(s.Packets, packet)
	return s.Verdict, s.Err
}
