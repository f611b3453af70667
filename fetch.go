package gtfsnext

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	// FetchAttempts is the total attempt budget, including the first try.
	FetchAttempts = 3

	// FetchTimeout bounds a whole transfer, not a single read.
	FetchTimeout = 600 * time.Second
)

// RetryDelays is the fixed wait schedule between fetch attempts. These are
// contract values, not tuning knobs.
var RetryDelays = []time.Duration{5 * time.Second, 15 * time.Second, 30 * time.Second}

// Fetcher downloads feed archives to a staging path. The zero value is
// usable; fields exist so tests can shrink the schedule and observe it.
type Fetcher struct {
	Client   *http.Client
	Delays   []time.Duration
	Attempts int

	// Notify is called before each retry wait. Defaults to logging.
	Notify func(err error, next time.Duration)
}

func (f *Fetcher) client() *http.Client {
	if f.Client != nil {
		return f.Client
	}
	return http.DefaultClient
}

func (f *Fetcher) delays() []time.Duration {
	if f.Delays != nil {
		return f.Delays
	}
	return RetryDelays
}

func (f *Fetcher) attempts() int {
	if f.Attempts > 0 {
		return f.Attempts
	}
	return FetchAttempts
}

// Fetch performs a single download attempt, streaming the body to
// destPath in bounded chunks. If anything goes wrong the partially
// written file is removed before the error is returned.
func (f *Fetcher) Fetch(ctx context.Context, url string, destPath string) (err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := f.client().Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode}
	}

	dest, err := os.Create(destPath)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = dest.Close()
			_ = os.Remove(destPath)
		}
	}()

	// 8 KiB chunks; archives can run to hundreds of MB so the body is
	// never held in memory.
	_, err = io.CopyBuffer(dest, resp.Body, make([]byte, 8192))
	if err != nil {
		return err
	}

	err = dest.Close()
	if err != nil {
		return err
	}

	slog.Info(fmt.Sprintf("Downloaded %s to %s", url, destPath))
	return nil
}

// FetchWithRetry runs Fetch up to the attempt budget, waiting the fixed
// schedule between attempts. Exhausting the budget is terminal: the
// returned ExhaustedError is not retried further up the stack.
func (f *Fetcher) FetchWithRetry(ctx context.Context, url string, destPath string) error {
	notify := f.Notify
	if notify == nil {
		notify = func(err error, next time.Duration) {
			slog.Warn(fmt.Sprintf("Download attempt failed, retrying in %s: %v", next, err))
		}
	}

	attempt := 0
	op := func() error {
		attempt++
		slog.Debug(fmt.Sprintf("Download attempt %d/%d", attempt, f.attempts()))
		return f.Fetch(ctx, url, destPath)
	}

	b := backoff.WithContext(&scheduleBackOff{
		delays:      f.delays(),
		maxAttempts: f.attempts(),
	}, ctx)

	err := backoff.RetryNotify(op, b, notify)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return err
	}
	return &ExhaustedError{Attempts: attempt, Last: err}
}

// scheduleBackOff is a backoff.BackOff that follows a fixed delay
// schedule rather than multiplying: the i-th retry waits delays[i].
type scheduleBackOff struct {
	delays      []time.Duration
	maxAttempts int
	fails       int
}

func (b *scheduleBackOff) NextBackOff() time.Duration {
	b.fails++
	if b.fails >= b.maxAttempts {
		return backoff.Stop
	}
	i := b.fails - 1
	if i >= len(b.delays) {
		i = len(b.delays) - 1
	}
	return b.delays[i]
}

func (b *scheduleBackOff) Reset() { b.fails = 0 }
