package ratelimit

import (
	"context"
	"errors"
	"testing"

	extratelimit "github.com/vnmchuo/ratelimiter"
)

type budgetStore struct {
	left map[string]int
	err  error
}

func (b *budgetStore) AllowN(ctx context.Context, key string, n int) (*extratelimit.Result, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.left[key] < n {
		return &extratelimit.Result{Allowed: false}, nil
	}
	b.left[key] -= n
	return &extratelimit.Result{Allowed: true}, nil
}

func (b *budgetStore) Allow(ctx context.Context, key string) (*extratelimit.Result, error) {
	return b.AllowN(ctx, key, 1)
}

func (b *budgetStore) Status(ctx context.Context, key string) (*extratelimit.Result, error) {
	return &extratelimit.Result{Allowed: b.left[key] > 0}, b.err
}

func TestLimiter_PerCallerKeys(t *testing.T) {
	store := &budgetStore{left: map[string]int{
		"ratelimit:caller:user-1": 2,
		"ratelimit:caller:user-2": 1,
	}}
	l := NewTestLimiter(store)
	ctx := context.Background()

	for i, want := range []bool{true, true, false} {
		got, err := l.Allow(ctx, "user-1", 0)
		if err != nil || got != want {
			t.Errorf("call %d: Allow = %v, %v; want %v", i, got, err, want)
		}
	}
	if ok, _ := l.Allow(ctx, "user-2", 0); !ok {
		t.Error("Expected user-2 to have its own budget")
	}
	if st, _ := l.Status(ctx, "user-2", 0); st.Allowed {
		t.Error("Expected user-2 exhausted after one request")
	}
}

func TestLimiter_StoreError(t *testing.T) {
	l := NewTestLimiter(&budgetStore{err: errors.New("redis down")})
	if ok, err := l.Allow(context.Background(), "user-1", 10); err == nil || ok {
		t.Errorf("Expected error to surface, got %v %v", ok, err)
	}
}
