package probe

import (
	"context"
	"time"
)

// RetryChecker re-probes a target that gave no response up to Attempts
// times. Any HTTP answer, 4xx and 5xx included, is final. With Attempts <= 1
// it is a plain passthrough.
type RetryChecker struct {
	Inner    Checker
	Attempts int
	Backoff  time.Duration
}

func (r *RetryChecker) Check(ctx context.Context, target string) Result {
	attempts := r.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var last Result
	for i := 0; i < attempts; i++ {
		last = r.Inner.Check(ctx, target)
		if last.Available || last.Responded() || i == attempts-1 {
			return last
		}
		if r.Backoff > 0 {
			t := time.NewTimer(r.Backoff)
			select {
			case <-ctx.Done():
				t.Stop()
				return last
			case <-t.C:
			}
		}
	}
	return last
}
