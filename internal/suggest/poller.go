package suggest

import (
	"context"
	"errors"
	"time"

	"github.com/cardledger/cardintake/internal/ocr"
)

// Default polling limits of the suggestion backend. A pending answer is
// retried DefaultPollRetries times after the first call.
const (
	DefaultPollRetries = 6
	DefaultPollDelay    = 1500 * time.Millisecond
)

// Outcome is the tagged result of one poll: Pending, Ready, Empty or Failed.
type Outcome interface {
	isOutcome()
}

// Pending means the backend was still working after every retry. Attempts
// counts all calls, the first one included.
type Pending struct {
	Attempts int
}

// Ready carries a response with at least one value.
type Ready struct {
	Response *ocr.Response
}

// Empty means the backend answered with nothing usable.
type Empty struct {
	Response *ocr.Response
}

// Failed carries a transport, not-ready or cancellation error.
type Failed struct {
	Err error
}

func (Pending) isOutcome() {}
func (Ready) isOutcome()   {}
func (Empty) isOutcome()   {}
func (Failed) isOutcome()  {}

// Poller retries a pending backend a bounded number of times.
type Poller struct {
	Adapter ocr.Adapter
	Retries int
	Delay   time.Duration
}

// NewPoller creates a poller with the default limits
func NewPoller(adapter ocr.Adapter) *Poller {
	return &Poller{
		Adapter: adapter,
		Retries: DefaultPollRetries,
		Delay:   DefaultPollDelay,
	}
}

// Poll asks the adapter until it stops reporting pending, the retries run
// out, or ctx is cancelled.
func (p *Poller) Poll(ctx context.Context, req ocr.Request) Outcome {
	attempts := 1 + max(p.Retries, 0)

	for attempt := 1; ; attempt++ {
		resp, err := p.Adapter.Suggest(ctx, req)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ocr.ErrNotReady) {
				return Failed{Err: ctxErr}
			}
			return Failed{Err: err}
		}

		switch resp.Status {
		case ocr.StatusPending:
		case ocr.StatusEmpty:
			return Empty{Response: resp}
		default:
			if !resp.HasValues() {
				return Empty{Response: resp}
			}
			return Ready{Response: resp}
		}

		if attempt >= attempts {
			return Pending{Attempts: attempt}
		}

		timer := time.NewTimer(p.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Failed{Err: ctx.Err()}
		case <-timer.C:
		}
	}
}
