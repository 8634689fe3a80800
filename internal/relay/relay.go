package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/SGK112/ai-website-builder-sub004/internal/metrics"
	"github.com/SGK112/ai-website-builder-sub004/internal/provider"
	"github.com/SGK112/ai-website-builder-sub004/internal/router"
)

type Outcome int

const (
	Completed Outcome = iota
	Failed
	Canceled
)

func (o Outcome) String() string {
	switch o {
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	case Canceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Result summarises one relayed stream. Text is everything that was
// delivered to the client, in order.
type Result struct {
	Text      string
	Fragments int
	Outcome   Outcome
	Err       error
}

type Relay struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{logger: logger.With("component", "relay")}
}

// Stream forwards chunks to w until the producer ends or fails, ctx's
// deadline passes, or the client goes away. A fragment is flushed before the
// next one is received. cancel releases the upstream and is always called
// before Stream returns; w is always closed.
func (r *Relay) Stream(ctx context.Context, w *Writer, d *router.Decision, chunks <-chan *provider.Chunk, cancel context.CancelFunc, sessionID string) Result {
	defer w.Close()
	defer cancel()

	var text strings.Builder
	res := Result{}
	finish := func(o Outcome, err error) Result {
		res.Text = text.String()
		res.Outcome = o
		res.Err = err
		return res
	}

	fail := func(err error) Result {
		r.logger.Error("upstream stream failed",
			"provider", d.Provider,
			"fragments", res.Fragments,
			"error", err,
		)
		if sendErr := w.Send(ErrorEvent(Sanitize(err))); sendErr != nil {
			r.logger.Debug("client gone before error event", "provider", d.Provider, "error", sendErr)
		}
		return finish(Failed, err)
	}
	// A deadline on ctx is the upstream time budget running out while the
	// client is still listening; plain cancellation means the client left.
	interrupted := func(upstreamErr error) Result {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			switch {
			case upstreamErr == nil:
				upstreamErr = ctx.Err()
			case !errors.Is(upstreamErr, context.DeadlineExceeded):
				upstreamErr = fmt.Errorf("%w: %v", ctx.Err(), upstreamErr)
			}
			return fail(upstreamErr)
		}
		return finish(Canceled, ctx.Err())
	}

	for {
		var chunk *provider.Chunk
		var ok bool
		select {
		case <-ctx.Done():
			return interrupted(nil)
		case chunk, ok = <-chunks:
		}

		// Producers stop and close when ctx ends; that is not a completion.
		if !ok && ctx.Err() != nil {
			return interrupted(nil)
		}
		if !ok || chunk.Done {
			if err := w.Send(DoneEvent(d.Provider, d.Reasoning, sessionID)); err != nil {
				return finish(Canceled, err)
			}
			return finish(Completed, nil)
		}

		if chunk.Err != nil {
			if ctx.Err() != nil {
				return interrupted(chunk.Err)
			}
			return fail(chunk.Err)
		}

		if chunk.Delta == "" {
			continue
		}
		if err := w.Send(ContentEvent(d.Provider, chunk.Delta)); err != nil {
			return finish(Canceled, err)
		}
		text.WriteString(chunk.Delta)
		res.Fragments++
		metrics.FragmentsRelayed.WithLabelValues(d.Provider).Inc()
	}
}

// Buffered relays an already complete response as one content event and done.
func (r *Relay) Buffered(ctx context.Context, w *Writer, d *router.Decision, text string, sessionID string) Result {
	ctx, cancel := context.WithCancel(ctx)
	return r.Stream(ctx, w, d, FromText(text), cancel, sessionID)
}

// FromText turns a buffered completion into a fragment stream holding one
// content chunk followed by done.
func FromText(text string) <-chan *provider.Chunk {
	ch := make(chan *provider.Chunk, 2)
	if text != "" {
		ch <- &provider.Chunk{Delta: text}
	}
	ch <- &provider.Chunk{Done: true}
	close(ch)
	return ch
}

// Sanitize turns an upstream error into a message safe to show clients.
func Sanitize(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, provider.ErrRateLimited):
		return "The AI provider is rate limiting requests. Please try again shortly."
	case errors.Is(err, provider.ErrAuthenticationFailed):
		return "The AI provider rejected the configured credentials."
	case errors.Is(err, context.DeadlineExceeded):
		return "The AI provider took too long to respond."
	case errors.Is(err, router.ErrProviderUnavailable):
		return "No AI provider is available right now."
	default:
		return "The AI provider failed to complete the response."
	}
}
