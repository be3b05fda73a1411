package registration

import (
	"context"
	"log"
	"time"
)

// Watch polls LookupState for an email until the state settles (active
// or rejected), then delivers that state on the returned channel and
// closes it. A failed poll is logged and retried at the next tick. The
// goroutine and its ticker stop when ctx is cancelled.
func (s *Service) Watch(ctx context.Context, email string, interval time.Duration) <-chan State {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	out := make(chan State, 1)
	ticker := time.NewTicker(interval)

	go func() {
		defer ticker.Stop()
		defer close(out)
		for {
			state, err := s.LookupState(ctx, email)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Printf("status watch for %s: %v", email, err)
			} else if state.Settled() {
				out <- state
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return out
}
