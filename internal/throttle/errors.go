package throttle

import (
	"errors"
	"fmt"

	"redditstudy/internal/shared"
)

var (
	// ErrInvalidConfig is returned by New for parameters that cannot describe a schedule.
	// It wraps shared.ErrValidation.
	ErrInvalidConfig = fmt.Errorf("throttle: invalid config: %w", shared.ErrValidation)

	// ErrClosed is returned by operations on a throttle whose event loop has exited.
	ErrClosed = errors.New("throttle: closed")

	// ErrCompleted is returned by Start once every pass has finished. Use Restart instead.
	ErrCompleted = errors.New("throttle: already completed")
)

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}
