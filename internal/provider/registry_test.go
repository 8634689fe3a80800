package provider

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

type stubProvider struct{ name string }

func (s *stubProvider) Complete(ctx context.Context, req *Request) (*Response, error) {
	return &Response{Content: "ok", Provider: s.name}, nil
}
func (s *stubProvider) CompleteStream(ctx context.Context, req *Request) (<-chan *Chunk, error) {
	ch := make(chan *Chunk)
	close(ch)
	return ch, nil
}
func (s *stubProvider) Name() string                { return s.name }
func (s *stubProvider) Capabilities() Capabilities  { return Capabilities{Chat: true} }
func (s *stubProvider) DefaultModel() string        { return "stub-1" }
func (s *stubProvider) CostPerInputToken() float64  { return 0 }
func (s *stubProvider) CostPerOutputToken() float64 { return 0 }
func (s *stubProvider) SupportedModels() []string   { return []string{"stub-1", "stub-2"} }

func TestRegistry_GetConstructsOnceUnderConcurrency(t *testing.T) {
	var built atomic.Int32
	r := NewRegistry()
	err := r.Register(&Entry{
		ID:      "stub",
		Enabled: true,
		Factory: func() Provider {
			built.Add(1)
			return &stubProvider{name: "stub"}
		},
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	var wg sync.WaitGroup
	results := make([]Provider, 32)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := r.Get("stub")
			if err != nil {
				t.Errorf("Get failed: %v", err)
				return
			}
			results[i] = p
		}(i)
	}
	wg.Wait()

	if built.Load() != 1 {
		t.Errorf("Expected factory to run once, ran %d times", built.Load())
	}
	for _, p := range results[1:] {
		if p != results[0] {
			t.Fatal("Expected every caller to receive the same instance")
		}
	}
}

func TestRegistry_UnknownAndDuplicate(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Get("missing"); !errors.Is(err, ErrUnknownProvider) {
		t.Errorf("Expected ErrUnknownProvider, got %v", err)
	}

	e := &Entry{ID: "a", Factory: func() Provider { return &stubProvider{name: "a"} }}
	if err := r.Register(e); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := r.Register(&Entry{ID: "a", Factory: e.Factory}); err == nil {
		t.Error("Expected duplicate registration to fail")
	}
	if err := r.Register(&Entry{ID: "b"}); err == nil {
		t.Error("Expected missing factory to fail")
	}
}

func TestRegistry_SnapshotOrderAndUsable(t *testing.T) {
	r := NewRegistry()
	for _, e := range []*Entry{
		{ID: "first", Enabled: true, CredentialsPresent: true},
		{ID: "second", Enabled: true, CredentialsPresent: false},
		{ID: "third", Enabled: false, CredentialsPresent: true},
	} {
		e.Factory = func() Provider { return &stubProvider{} }
		if err := r.Register(e); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
	}

	snap := r.Snapshot()
	if len(snap) != 3 || snap[0].ID != "first" || snap[2].ID != "third" {
		t.Fatalf("Unexpected snapshot order: %+v", snap)
	}
	want := []bool{true, false, false}
	for i, info := range snap {
		if info.Usable() != want[i] {
			t.Errorf("%s: expected usable=%v", info.ID, want[i])
		}
	}
}

func TestModelFor(t *testing.T) {
	p := &stubProvider{}
	if got := ModelFor(p, "stub-2"); got != "stub-2" {
		t.Errorf("Expected requested model, got %s", got)
	}
	if got := ModelFor(p, "other"); got != "stub-1" {
		t.Errorf("Expected default model, got %s", got)
	}
}

func TestParseTaskType(t *testing.T) {
	cases := map[string]TaskType{
		"":                TaskChat,
		"code-generation": TaskCodeGeneration,
		"Code":            TaskCodeGeneration,
		"vision":          TaskVision,
		"chat":            TaskChat,
		"summarise":       TaskOther,
	}
	for in, want := range cases {
		if got := ParseTaskType(in); got != want {
			t.Errorf("ParseTaskType(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestClassifyStatus(t *testing.T) {
	err := ClassifyStatus("x", 403, []byte("denied"))
	if !errors.Is(err, ErrAuthenticationFailed) {
		t.Errorf("Expected auth failure, got %v", err)
	}
	if errors.Is(err, ErrUpstream) {
		t.Error("403 should not classify as generic upstream")
	}
	wrapped := StreamError("x", context.Canceled)
	if !errors.Is(wrapped, ErrUpstream) || !errors.Is(wrapped, context.Canceled) {
		t.Errorf("Expected upstream kind wrapping the cause, got %v", wrapped)
	}
}
