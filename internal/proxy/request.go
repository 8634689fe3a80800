package proxy

import (
	"errors"
	"fmt"
	"strings"

	"github.com/SGK112/ai-website-builder-sub004/internal/provider"
)

var errInvalidRequest = errors.New("invalid request")

// GenerateRequest is the body of POST /v1/generate.
type GenerateRequest struct {
	Prompt      string             `json:"prompt"`
	Messages    []provider.Message `json:"messages"`
	Images      []string           `json:"images"`
	TaskType    string             `json:"taskType"`
	Agent       string             `json:"agent"`
	Stream      bool               `json:"stream"`
	SessionID   string             `json:"sessionId"`
	Model       string             `json:"model"`
	MaxTokens   int                `json:"maxTokens"`
	Temperature float64            `json:"temperature"`
}

// toProviderRequest validates the body and builds the immutable request the
// rest of the pipeline works on.
func (g *GenerateRequest) toProviderRequest() (*provider.Request, error) {
	msgs := make([]provider.Message, 0, len(g.Messages)+1)
	for i, m := range g.Messages {
		switch m.Role {
		case provider.RoleSystem, provider.RoleUser, provider.RoleAssistant:
		default:
			return nil, fmt.Errorf("%w: message %d has unknown role %q", errInvalidRequest, i, m.Role)
		}
		msgs = append(msgs, m)
	}
	if p := strings.TrimSpace(g.Prompt); p != "" {
		msgs = append(msgs, provider.Message{Role: provider.RoleUser, Content: g.Prompt})
	}
	if len(msgs) == 0 {
		return nil, fmt.Errorf("%w: prompt or messages is required", errInvalidRequest)
	}
	if g.MaxTokens < 0 {
		return nil, fmt.Errorf("%w: maxTokens must not be negative", errInvalidRequest)
	}
	if g.Temperature < 0 || g.Temperature > 2 {
		return nil, fmt.Errorf("%w: temperature must be between 0 and 2", errInvalidRequest)
	}

	req := &provider.Request{
		Model:             g.Model,
		Messages:          msgs,
		MaxTokens:         g.MaxTokens,
		Temperature:       g.Temperature,
		Stream:            g.Stream,
		TaskType:          provider.ParseTaskType(g.TaskType),
		PreferredProvider: strings.ToLower(strings.TrimSpace(g.Agent)),
		SessionID:         g.SessionID,
	}

	last, ok := req.LastUserMessage()
	if !ok || strings.TrimSpace(last.Content) == "" {
		return nil, fmt.Errorf("%w: the last user message is empty", errInvalidRequest)
	}

	if len(g.Images) > 0 {
		for i := len(req.Messages) - 1; i >= 0; i-- {
			if req.Messages[i].Role == provider.RoleUser {
				req.Messages[i].Images = append(append([]string(nil), req.Messages[i].Images...), g.Images...)
				break
			}
		}
		if strings.TrimSpace(g.TaskType) == "" {
			req.TaskType = provider.TaskVision
		}
	}
	return req, nil
}
