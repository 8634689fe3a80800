package router

import (
	"errors"
	"fmt"
	"sort"

	"github.com/SGK112/ai-website-builder-sub004/internal/provider"
)

var ErrProviderUnavailable = errors.New("no AI provider available")

const (
	ConfidenceExplicit      = 1.0
	ConfidenceTaskPreferred = 0.9
	ConfidenceTaskCapable   = 0.75
	ConfidenceDefault       = 0.6
)

// DefaultPriority is the fixed tie-break order.
var DefaultPriority = []string{"claude", "openai", "gemini"}

// Decision is produced once per request and never modified.
type Decision struct {
	Provider   string  `json:"provider"`
	Reasoning  string  `json:"reasoning"`
	Confidence float64 `json:"confidence"`
}

// TaskRule ranks providers for one task type. Specific rules score higher
// than the generic chat default.
type TaskRule struct {
	Preferred []string
	Specific  bool
}

// DefaultRules prefer code-tuned backends for code generation and the
// strongest vision models for vision.
var DefaultRules = map[provider.TaskType]TaskRule{
	provider.TaskCodeGeneration: {Preferred: []string{"claude", "openai"}, Specific: true},
	provider.TaskVision:         {Preferred: []string{"openai", "claude"}, Specific: true},
	provider.TaskChat:           {},
	provider.TaskOther:          {},
}

// Catalog is the static provider capability table.
type Catalog interface {
	Lookup(id string) (provider.Info, bool)
	Snapshot() []provider.Info
}

type Engine struct {
	catalog  Catalog
	priority []string
	rules    map[provider.TaskType]TaskRule
}

type Option func(*Engine)

func WithPriority(ids ...string) Option {
	return func(e *Engine) { e.priority = ids }
}

func WithRules(rules map[provider.TaskType]TaskRule) Option {
	return func(e *Engine) { e.rules = rules }
}

func NewEngine(catalog Catalog, opts ...Option) *Engine {
	e := &Engine{
		catalog:  catalog,
		priority: DefaultPriority,
		rules:    DefaultRules,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Decide picks the provider for req. It only reads the capability table.
func (e *Engine) Decide(req *provider.Request) (*Decision, error) {
	task := req.TaskType
	if task == "" {
		task = provider.TaskChat
	}

	var fallbackNote string
	if pref := req.PreferredProvider; pref != "" {
		info, ok := e.catalog.Lookup(pref)
		switch {
		case ok && info.Usable():
			return &Decision{
				Provider:   pref,
				Reasoning:  "explicit preference",
				Confidence: ConfidenceExplicit,
			}, nil
		case !ok:
			fallbackNote = fmt.Sprintf("preferred provider %q is not registered; ", pref)
		default:
			fallbackNote = fmt.Sprintf("preferred provider %q is not enabled; ", pref)
		}
	}

	rule := e.rules[task]
	var candidates []provider.Info
	for _, info := range e.catalog.Snapshot() {
		if info.Usable() && info.Capabilities.Supports(task) {
			candidates = append(candidates, info)
		}
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w for task %s", ErrProviderUnavailable, task)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		ri, rj := rank(rule.Preferred, candidates[i].ID), rank(rule.Preferred, candidates[j].ID)
		if ri != rj {
			return ri < rj
		}
		return rank(e.priority, candidates[i].ID) < rank(e.priority, candidates[j].ID)
	})

	chosen := candidates[0].ID
	d := &Decision{Provider: chosen}
	switch {
	case !rule.Specific:
		d.Confidence = ConfidenceDefault
		d.Reasoning = fmt.Sprintf("%sdefault routing for %s: %s is the highest priority enabled provider", fallbackNote, task, chosen)
	case rank(rule.Preferred, chosen) < len(rule.Preferred):
		d.Confidence = ConfidenceTaskPreferred
		d.Reasoning = fmt.Sprintf("%s%s is preferred for %s tasks", fallbackNote, chosen, task)
	default:
		d.Confidence = ConfidenceTaskCapable
		d.Reasoning = fmt.Sprintf("%s%s supports %s; no preferred provider is enabled", fallbackNote, chosen, task)
	}
	return d, nil
}

// rank returns the index of id in list, or len(list) when absent.
func rank(list []string, id string) int {
	for i, v := range list {
		if v == id {
			return i
		}
	}
	return len(list)
}
