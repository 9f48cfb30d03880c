package core

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the evaluation core. Callers match them with
// errors.Is; everything else raised inside a run is recovered locally.
var (
	ErrValidation            = errors.New("validation error")
	ErrInsufficientData      = errors.New("insufficient candle data")
	ErrMarketDataUnavailable = errors.New("market data unavailable")
	ErrValidatorUnavailable  = errors.New("signal validator unavailable")
	ErrPersistence           = errors.New("persistence error")
)

// Validationf wraps ErrValidation with a formatted message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// IsFatalRunError reports whether an error should fail a back-test run
// instead of being recovered in place.
func IsFatalRunError(err error) bool {
	return errors.Is(err, ErrInsufficientData) || errors.Is(err, ErrMarketDataUnavailable)
}
