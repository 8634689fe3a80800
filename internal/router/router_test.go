package router

import (
	"context"
	"errors"
	"testing"

	"github.com/SGK112/ai-website-builder-sub004/internal/provider"
)

type MockProvider struct {
	name        string
	caps        provider.Capabilities
	completeErr error
	chunks      []*provider.Chunk
}

func (m *MockProvider) Complete(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	if m.completeErr != nil {
		return nil, m.completeErr
	}
	return &provider.Response{Content: "mock", Provider: m.name}, nil
}

func (m *MockProvider) CompleteStream(ctx context.Context, req *provider.Request) (<-chan *provider.Chunk, error) {
	ch := make(chan *provider.Chunk, len(m.chunks)+1)
	if m.completeErr != nil {
		ch <- &provider.Chunk{Err: m.completeErr}
	}
	for _, c := range m.chunks {
		ch <- c
	}
	close(ch)
	return ch, nil
}

func (m *MockProvider) Name() string                        { return m.name }
func (m *MockProvider) Capabilities() provider.Capabilities { return m.caps }
func (m *MockProvider) DefaultModel() string                { return "mock-1" }
func (m *MockProvider) CostPerInputToken() float64          { return 0 }
func (m *MockProvider) CostPerOutputToken() float64         { return 0 }
func (m *MockProvider) SupportedModels() []string           { return []string{"mock-1"} }

var (
	fullCaps   = provider.Capabilities{Chat: true, CodeGeneration: true, Vision: true, Streaming: true}
	chatOnly   = provider.Capabilities{Chat: true, Streaming: true}
	visionOnly = provider.Capabilities{Vision: true}
)

func newCatalog(t *testing.T, entries ...*provider.Entry) *provider.Registry {
	t.Helper()
	r := provider.NewRegistry()
	for _, e := range entries {
		name := e.ID
		caps := e.Capabilities
		e.Factory = func() provider.Provider { return &MockProvider{name: name, caps: caps} }
		if err := r.Register(e); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
	}
	return r
}

func enabled(id string, caps provider.Capabilities) *provider.Entry {
	return &provider.Entry{ID: id, Enabled: true, CredentialsPresent: true, Capabilities: caps}
}

func TestDecide_ExplicitPreference(t *testing.T) {
	engine := NewEngine(newCatalog(t,
		enabled("claude", fullCaps),
		enabled("openai", fullCaps),
	))

	for _, task := range []provider.TaskType{provider.TaskChat, provider.TaskCodeGeneration, provider.TaskVision, provider.TaskOther} {
		d, err := engine.Decide(&provider.Request{PreferredProvider: "openai", TaskType: task})
		if err != nil {
			t.Fatalf("Decide failed: %v", err)
		}
		if d.Provider != "openai" || d.Confidence != 1.0 || d.Reasoning != "explicit preference" {
			t.Errorf("%s: expected explicit openai decision, got %+v", task, d)
		}
	}
}

func TestDecide_DisabledPreferenceFallsBack(t *testing.T) {
	engine := NewEngine(newCatalog(t,
		&provider.Entry{ID: "openai", Enabled: true, CredentialsPresent: false, Capabilities: fullCaps},
		enabled("gemini", chatOnly),
	))

	d, err := engine.Decide(&provider.Request{PreferredProvider: "openai", TaskType: provider.TaskChat})
	if err != nil {
		t.Fatalf("Decide failed: %v", err)
	}
	if d.Provider != "gemini" {
		t.Errorf("Expected fallback to gemini, got %s", d.Provider)
	}
	if d.Confidence != ConfidenceDefault {
		t.Errorf("Expected default confidence, got %v", d.Confidence)
	}
}

func TestDecide_UnregisteredPreferenceFallsBack(t *testing.T) {
	engine := NewEngine(newCatalog(t, enabled("claude", fullCaps)))

	d, err := engine.Decide(&provider.Request{PreferredProvider: "mistral"})
	if err != nil {
		t.Fatalf("Decide failed: %v", err)
	}
	if d.Provider != "claude" {
		t.Errorf("Expected claude, got %s", d.Provider)
	}
}

func TestDecide_CodeGenerationPrefersCodeTuned(t *testing.T) {
	engine := NewEngine(newCatalog(t,
		enabled("gemini", fullCaps),
		enabled("openai", fullCaps),
		enabled("claude", fullCaps),
	))

	d, err := engine.Decide(&provider.Request{TaskType: provider.TaskCodeGeneration})
	if err != nil {
		t.Fatalf("Decide failed: %v", err)
	}
	if d.Provider != "claude" {
		t.Errorf("Expected claude for code generation, got %s", d.Provider)
	}
	if d.Confidence != ConfidenceTaskPreferred {
		t.Errorf("Expected task preferred confidence, got %v", d.Confidence)
	}
}

func TestDecide_CapableButNotPreferred(t *testing.T) {
	engine := NewEngine(newCatalog(t, enabled("gemini", fullCaps)))

	d, err := engine.Decide(&provider.Request{TaskType: provider.TaskCodeGeneration})
	if err != nil {
		t.Fatalf("Decide failed: %v", err)
	}
	if d.Provider != "gemini" || d.Confidence != ConfidenceTaskCapable {
		t.Errorf("Expected gemini with capable confidence, got %+v", d)
	}
}

func TestDecide_VisionOnlyProviderCannotServeCode(t *testing.T) {
	engine := NewEngine(newCatalog(t, enabled("openai", visionOnly)))

	_, err := engine.Decide(&provider.Request{TaskType: provider.TaskCodeGeneration})
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Errorf("Expected ErrProviderUnavailable, got %v", err)
	}
}

func TestDecide_VisionRequiresVision(t *testing.T) {
	engine := NewEngine(newCatalog(t,
		enabled("gemini", chatOnly),
		enabled("openai", fullCaps),
	))

	d, err := engine.Decide(&provider.Request{TaskType: provider.TaskVision})
	if err != nil {
		t.Fatalf("Decide failed: %v", err)
	}
	if d.Provider != "openai" {
		t.Errorf("Expected openai for vision, got %s", d.Provider)
	}
}

func TestDecide_NothingEnabled(t *testing.T) {
	engine := NewEngine(newCatalog(t,
		&provider.Entry{ID: "openai", Enabled: false, CredentialsPresent: true, Capabilities: fullCaps},
	))

	_, err := engine.Decide(&provider.Request{})
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Errorf("Expected ErrProviderUnavailable, got %v", err)
	}
}

func TestDecide_TieBreakIsStable(t *testing.T) {
	engine := NewEngine(newCatalog(t,
		enabled("zeta", chatOnly),
		enabled("gemini", chatOnly),
		enabled("openai", chatOnly),
	))

	for i := 0; i < 20; i++ {
		d, err := engine.Decide(&provider.Request{TaskType: provider.TaskChat})
		if err != nil {
			t.Fatalf("Decide failed: %v", err)
		}
		if d.Provider != "openai" {
			t.Fatalf("Expected openai by priority, got %s", d.Provider)
		}
	}
}

func TestDecide_CustomPriority(t *testing.T) {
	engine := NewEngine(newCatalog(t,
		enabled("openai", chatOnly),
		enabled("gemini", chatOnly),
	), WithPriority("gemini", "openai"))

	d, err := engine.Decide(&provider.Request{TaskType: provider.TaskOther})
	if err != nil {
		t.Fatalf("Decide failed: %v", err)
	}
	if d.Provider != "gemini" {
		t.Errorf("Expected gemini, got %s", d.Provider)
	}
}
