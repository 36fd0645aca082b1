package probe

import (
	"context"
	"testing"
	"time"
)

// scriptedChecker replays results in order.
type scriptedChecker struct {
	results []Result
	calls   int
}

func (f *scriptedChecker) Check(ctx context.Context, target string) Result {
	if f.calls >= len(f.results) {
		f.calls++
		return Result{Reason: ReasonOther}
	}
	r := f.results[f.calls]
	f.calls++
	return r
}

func TestRetryChecker_SucceedsAfterRetry(t *testing.T) {
	f := &scriptedChecker{
		results: []Result{
			{Reason: ReasonRefused},
			{Available: true, StatusCode: 200, Latency: time.Millisecond},
		},
	}
	rc := &RetryChecker{Inner: f, Attempts: 3, Backoff: time.Millisecond}
	out := rc.Check(context.Background(), "https://example.com")
	if !out.Available || out.StatusCode != 200 {
		t.Fatalf("expected success after retry, got %+v", out)
	}
	if f.calls != 2 {
		t.Fatalf("expected 2 calls, got %d", f.calls)
	}
}

func TestRetryChecker_AllFailReturnsLast(t *testing.T) {
	f := &scriptedChecker{
		results: []Result{
			{Reason: ReasonRefused},
			{StatusCode: 503},
		},
	}
	rc := &RetryChecker{Inner: f, Attempts: 2}
	out := rc.Check(context.Background(), "https://example.com")
	if out.Available || out.StatusCode != 503 {
		t.Fatalf("expected last failure, got %+v", out)
	}
}

func TestRetryChecker_SingleAttemptIsPassthrough(t *testing.T) {
	f := &scriptedChecker{results: []Result{{Reason: ReasonTimeout}}}
	rc := &RetryChecker{Inner: f}
	_ = rc.Check(context.Background(), "https://example.com")
	if f.calls != 1 {
		t.Fatalf("expected exactly one probe, got %d", f.calls)
	}
}

func TestRetryChecker_StopsOnCancel(t *testing.T) {
	f := &scriptedChecker{results: []Result{{Reason: ReasonRefused}, {Reason: ReasonRefused}}}
	rc := &RetryChecker{Inner: f, Attempts: 2, Backoff: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = rc.Check(ctx, "https://example.com")
	if f.calls != 1 {
		t.Fatalf("expected backoff to abort on cancel, got %d calls", f.calls)
	}
}

func TestRetryChecker_HTTPErrorIsFinal(t *testing.T) {
	f := &scriptedChecker{
		results: []Result{
			{StatusCode: 503, Latency: time.Millisecond},
			{Available: true, StatusCode: 200},
		},
	}
	rc := &RetryChecker{Inner: f, Attempts: 3}
	out := rc.Check(context.Background(), "https://example.com")
	if out.Available || out.StatusCode != 503 {
		t.Fatalf("expected the 503 as is, got %+v", out)
	}
	if f.calls != 1 {
		t.Fatalf("a response must not be retried, got %d calls", f.calls)
	}
}
