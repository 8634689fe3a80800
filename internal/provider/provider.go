package provider

import (
	"context"
	"strings"
)

type TaskType string

const (
	TaskCodeGeneration TaskType = "code-generation"
	TaskChat           TaskType = "chat"
	TaskVision         TaskType = "vision"
	TaskOther          TaskType = "other"
)

// ParseTaskType normalises a client supplied task hint. Empty means chat,
// anything unrecognised is treated as other.
func ParseTaskType(s string) TaskType {
	switch TaskType(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return TaskChat
	case TaskCodeGeneration, "code", "codegen":
		return TaskCodeGeneration
	case TaskChat:
		return TaskChat
	case TaskVision:
		return TaskVision
	default:
		return TaskOther
	}
}

type Request struct {
	Model       string
	Messages    []Message
	MaxTokens   int
	Temperature float64
	Stream      bool
	// Metadata for routing decisions
	TaskType          TaskType
	PreferredProvider string
	SessionID         string
	CallerID          string
	RequestID         string
}

// LastUserMessage returns the most recent user turn, used when recording the
// exchange to the transcript.
func (r *Request) LastUserMessage() (Message, bool) {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == RoleUser {
			return r.Messages[i], true
		}
	}
	return Message{}, false
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"` // "user", "assistant", "system"
	Content string `json:"content"`
	// Images holds image URLs attached to a user turn for vision tasks.
	Images []string `json:"images,omitempty"`
}

type Response struct {
	ID           string
	Content      string
	InputTokens  int
	OutputTokens int
	Model        string
	Provider     string
	LatencyMs    int64
}

// Chunk is one element of a fragment stream. Exactly one of Delta, Done or Err
// is meaningful.
type Chunk struct {
	Delta string
	Done  bool
	Err   error
}

// Capabilities is the static feature table the decision engine routes on.
type Capabilities struct {
	Chat           bool `json:"chat"`
	CodeGeneration bool `json:"codeGeneration"`
	Vision         bool `json:"vision"`
	Streaming      bool `json:"streaming"`
}

// Supports reports whether the capability set can serve the task type.
func (c Capabilities) Supports(task TaskType) bool {
	switch task {
	case TaskVision:
		return c.Vision
	case TaskCodeGeneration:
		return c.CodeGeneration
	default:
		return c.Chat
	}
}

// Provider is implemented once per upstream backend. CompleteStream returns a
// channel that is closed when the stream ends; cancelling ctx stops the
// producer and releases the upstream connection.
type Provider interface {
	Complete(ctx context.Context, req *Request) (*Response, error)
	CompleteStream(ctx context.Context, req *Request) (<-chan *Chunk, error)
	Name() string
	Capabilities() Capabilities
	DefaultModel() string
	CostPerInputToken() float64 // cost in USD per 1 token
	CostPerOutputToken() float64
	SupportedModels() []string
}

// ModelFor picks the upstream model: the requested one when the provider
// serves it, the provider default otherwise.
func ModelFor(p Provider, requested string) string {
	if requested != "" {
		for _, m := range p.SupportedModels() {
			if m == requested {
				return requested
			}
		}
	}
	return p.DefaultModel()
}
