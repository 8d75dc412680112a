package helper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/utkarsh5026/helperpool/internal/backoff"
)

// SubmitWithRetry calls submit until it stops failing with ErrOutOfMemory,
// sleeping between attempts according to the strategy configured with
// WithSubmitRetry. Any other error is returned immediately.
//
// Example:
//
//	err := c.SubmitWithRetry(ctx, func() error { return c.SubmitParse(t) })
func (c *Coordinator) SubmitWithRetry(ctx context.Context, submit func() error) error {
	strategy := backoff.New(c.cfg.backoffType, c.cfg.backoffInitial, c.cfg.backoffMax, c.cfg.backoffJitter)

	var err error
	for attempt := 0; attempt < c.cfg.submitAttempts; attempt++ {
		if err = submit(); err == nil || !errors.Is(err, ErrOutOfMemory) {
			return err
		}
		if attempt == c.cfg.submitAttempts-1 {
			break
		}

		delay := strategy.NextDelay(attempt)
		c.log.Debug().Int("attempt", attempt+1).Dur("delay", delay).Msg("worklist full, retrying submit")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return fmt.Errorf("helper: submit failed after %d attempts: %w", c.cfg.submitAttempts, err)
}
