package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/SGK112/ai-website-builder-sub004/internal/auth"
	"github.com/SGK112/ai-website-builder-sub004/internal/metrics"
	"github.com/SGK112/ai-website-builder-sub004/internal/provider"
)

var ErrInsufficientCredits = errors.New("insufficient credits")

// InsufficientCreditsError carries what the paywall response needs.
type InsufficientCreditsError struct {
	Balance  int64
	Required int64
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: balance %d, required %d", e.Balance, e.Required)
}

func (e *InsufficientCreditsError) Is(target error) bool {
	return target == ErrInsufficientCredits
}

type Authorization struct {
	UserID    string
	Cost      int64
	Remaining int64
	Demo      bool
}

// Ledger is the system of record for credit balances.
type Ledger interface {
	GetBalance(ctx context.Context, userID string) (int64, error)
	// Authorize debits cost from userID or returns an error matching
	// ErrInsufficientCredits without changing the balance.
	Authorize(ctx context.Context, userID string, cost int64) (*Authorization, error)
}

// DemoLedger serves anonymous callers from a fixed allowance. Nothing is
// persisted, so the allowance caps a single request, not a visitor: every
// request sees the full allowance again. How often an anonymous caller can
// spend it is bounded by the per-IP rate limit in front of the gate.
type DemoLedger struct {
	Allowance int64
}

func (d *DemoLedger) GetBalance(ctx context.Context, userID string) (int64, error) {
	return d.Allowance, nil
}

func (d *DemoLedger) Authorize(ctx context.Context, userID string, cost int64) (*Authorization, error) {
	if cost > d.Allowance {
		return nil, &InsufficientCreditsError{Balance: d.Allowance, Required: cost}
	}
	return &Authorization{UserID: userID, Cost: cost, Remaining: d.Allowance - cost, Demo: true}, nil
}

// Gate picks the ledger for a caller. It is called after a provider has been
// chosen and before the provider is invoked.
type Gate struct {
	ledger Ledger
	demo   Ledger
}

func NewGate(ledger Ledger, demo Ledger) *Gate {
	return &Gate{ledger: ledger, demo: demo}
}

func (g *Gate) ledgerFor(id auth.Identity) Ledger {
	if id.Anonymous {
		return g.demo
	}
	return g.ledger
}

func (g *Gate) Authorize(ctx context.Context, id auth.Identity, cost int64) (*Authorization, error) {
	if cost < 0 {
		return nil, fmt.Errorf("billing: negative cost %d", cost)
	}
	a, err := g.ledgerFor(id).Authorize(ctx, id.UserID, cost)
	if err != nil {
		return nil, err
	}
	label := "persisted"
	if id.Anonymous {
		label = "demo"
	}
	metrics.CreditsDebited.WithLabelValues(label).Add(float64(cost))
	return a, nil
}

func (g *Gate) Balance(ctx context.Context, id auth.Identity) (int64, error) {
	return g.ledgerFor(id).GetBalance(ctx, id.UserID)
}

// Pricing is the credit cost per task type.
type Pricing struct {
	Chat           int64
	CodeGeneration int64
	Vision         int64
	Other          int64
}

var DefaultPricing = Pricing{Chat: 1, CodeGeneration: 2, Vision: 2, Other: 1}

func (p Pricing) CostFor(task provider.TaskType) int64 {
	switch task {
	case provider.TaskCodeGeneration:
		return p.CodeGeneration
	case provider.TaskVision:
		return p.Vision
	case provider.TaskChat:
		return p.Chat
	default:
		return p.Other
	}
}
