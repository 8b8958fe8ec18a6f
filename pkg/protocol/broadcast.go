package protocol

import (
	"context"
	"fmt"
	"time"

	"github.com/decred/slog"
	"golang.org/x/sync/errgroup"
)

// Sender delivers one message to one endpoint.
type Sender interface {
	Send(ctx context.Context, endpoint string, m Message) error
}

// Delivery is one message addressed to one peer.
type Delivery struct {
	Identity string
	Endpoint string
	Message  Message
}

// Result is the outcome of one Delivery.
type Result struct {
	Identity string
	Kind     Kind
	Err      error
	Elapsed  time.Duration
}

// Broadcaster fans deliveries out concurrently and waits for all of them.
type Broadcaster struct {
	sender Sender
	limit  int
	log    slog.Logger
}

// NewBroadcaster returns a broadcaster running at most limit deliveries at a
// time. A limit <= 0 means unbounded.
func NewBroadcaster(sender Sender, limit int, log slog.Logger) *Broadcaster {
	if log == nil {
		log = slog.Disabled
	}
	return &Broadcaster{sender: sender, limit: limit, log: log}
}

// Fanout sends every delivery and returns one result per delivery, in input
// order. Failures are recorded in the result and never cancel siblings.
func (b *Broadcaster) Fanout(ctx context.Context, deliveries []Delivery) []Result {
	results := make([]Result, len(deliveries))
	var g errgroup.Group
	if b.limit > 0 {
		g.SetLimit(b.limit)
	}
	for i, d := range deliveries {
		g.Go(func() error {
			results[i] = b.deliver(ctx, d)
			return nil
		})
	}
	g.Wait()

	for _, r := range results {
		if r.Err != nil {
			b.log.Debugf("%s to %s failed after %v: %v", r.Kind, r.Identity, r.Elapsed, r.Err)
		}
	}
	return results
}

func (b *Broadcaster) deliver(ctx context.Context, d Delivery) (res Result) {
	start := time.Now()
	res = Result{Identity: d.Identity}
	if d.Message != nil {
		res.Kind = d.Message.Kind()
	}
	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("delivery to %s panicked: %v", d.Identity, r)
		}
		res.Elapsed = time.Since(start)
	}()
	if d.Message == nil {
		res.Err = ErrUnknownKind
		return res
	}
	res.Err = b.sender.Send(ctx, d.Endpoint, d.Message)
	return res
}

// Failed returns the results that carry an error.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}
