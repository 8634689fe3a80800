package router

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/SGK112/ai-website-builder-sub004/internal/metrics"
	"github.com/SGK112/ai-website-builder-sub004/internal/provider"
)

// Breakers holds one circuit breaker per provider. Breakers only count
// outcomes; nothing here retries. The two-step form lets a stream report
// its outcome when it ends, after the call that admitted it has returned.
type Breakers struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.TwoStepCircuitBreaker
	settings func(name string) gobreaker.Settings
}

func NewBreakers() *Breakers {
	return &Breakers{
		breakers: make(map[string]*gobreaker.TwoStepCircuitBreaker),
		settings: defaultSettings,
	}
}

func defaultSettings(name string) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    5 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
		},
	}
}

// successful reports whether err leaves the breaker's failure count alone.
// A client walking away says nothing about the upstream's health.
func successful(err error) bool {
	return err == nil || errors.Is(err, context.Canceled)
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

func (b *Breakers) get(name string) *gobreaker.TwoStepCircuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	cb, ok := b.breakers[name]
	if !ok {
		cb = gobreaker.NewTwoStepCircuitBreaker(b.settings(name))
		b.breakers[name] = cb
	}
	return cb
}

// Available reports whether calls to name are currently let through.
func (b *Breakers) Available(name string) bool {
	return b.get(name).State() != gobreaker.StateOpen
}

func (b *Breakers) State(name string) gobreaker.State {
	return b.get(name).State()
}

// admit asks the breaker for a slot. In half-open state only MaxRequests
// calls are let through until their outcomes are known.
func (b *Breakers) admit(name string) (func(success bool), error) {
	done, err := b.get(name).Allow()
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: circuit breaker is open for provider %s", ErrProviderUnavailable, name)
		}
		return nil, err
	}
	return done, nil
}

func (b *Breakers) Execute(ctx context.Context, req *provider.Request, p provider.Provider) (*provider.Response, error) {
	done, err := b.admit(p.Name())
	if err != nil {
		return nil, err
	}
	resp, err := p.Complete(ctx, req)
	done(successful(err))
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// ExecuteStream starts a stream and reports its outcome to the breaker once
// the stream ends. Chunks are forwarded unchanged and one at a time.
func (b *Breakers) ExecuteStream(ctx context.Context, req *provider.Request, p provider.Provider) (<-chan *provider.Chunk, error) {
	done, err := b.admit(p.Name())
	if err != nil {
		return nil, err
	}

	origCh, err := p.CompleteStream(ctx, req)
	if err != nil {
		done(successful(err))
		return nil, err
	}

	wrappedCh := make(chan *provider.Chunk)
	go func() {
		defer close(wrappedCh)
		var streamErr error
		defer func() {
			if streamErr == nil && ctx.Err() != nil {
				streamErr = ctx.Err()
			}
			done(successful(streamErr))
		}()
		for chunk := range origCh {
			if chunk.Err != nil {
				streamErr = chunk.Err
			}
			select {
			case wrappedCh <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()

	return wrappedCh, nil
}
