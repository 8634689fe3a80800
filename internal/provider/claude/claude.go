package claude

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/SGK112/ai-website-builder-sub004/internal/provider"
)

const (
	Name             = "claude"
	DefaultBaseURL   = "https://api.anthropic.com/v1"
	DefaultModel     = "claude-3-5-sonnet-20241022"
	anthropicVersion = "2023-06-01"
)

var Capabilities = provider.Capabilities{
	Chat:           true,
	CodeGeneration: true,
	Vision:         true,
	Streaming:      true,
}

type ClaudeProvider struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

type claudeRequest struct {
	Model       string          `json:"model"`
	MaxTokens   int             `json:"max_tokens"`
	System      string          `json:"system,omitempty"`
	Messages    []claudeMessage `json:"messages"`
	Temperature float64         `json:"temperature,omitempty"`
	Stream      bool            `json:"stream,omitempty"`
}

type claudeMessage struct {
	Role    string          `json:"role"`
	Content []claudeContent `json:"content"`
}

type claudeResponse struct {
	ID      string          `json:"id"`
	Content []claudeContent `json:"content"`
	Model   string          `json:"model"`
	Usage   claudeUsage     `json:"usage"`
}

type claudeContent struct {
	Type   string       `json:"type"`
	Text   string       `json:"text,omitempty"`
	Source *claudeImage `json:"source,omitempty"`
}

type claudeImage struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

type claudeUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type claudeStreamDelta struct {
	Type  string       `json:"type"`
	Delta claudeDelta  `json:"delta,omitempty"`
	Error *claudeError `json:"error,omitempty"`
}

type claudeDelta struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type claudeError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func New(cfg provider.Config) provider.Provider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	return &ClaudeProvider{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  cfg.Client(),
	}
}

func (p *ClaudeProvider) Complete(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	httpReq, err := p.newHTTPRequest(ctx, req, false)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, provider.StreamError(p.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, provider.ClassifyStatus(p.Name(), resp.StatusCode, respBody)
	}

	var claudeResp claudeResponse
	if err := json.NewDecoder(resp.Body).Decode(&claudeResp); err != nil {
		return nil, provider.StreamError(p.Name(), err)
	}

	var text strings.Builder
	for _, c := range claudeResp.Content {
		if c.Type == "text" {
			text.WriteString(c.Text)
		}
	}
	if len(claudeResp.Content) == 0 {
		return nil, provider.StreamError(p.Name(), errors.New("claude api returned no content"))
	}

	return &provider.Response{
		ID:           claudeResp.ID,
		Content:      text.String(),
		InputTokens:  claudeResp.Usage.InputTokens,
		OutputTokens: claudeResp.Usage.OutputTokens,
		Model:        claudeResp.Model,
		Provider:     p.Name(),
	}, nil
}

func (p *ClaudeProvider) newHTTPRequest(ctx context.Context, req *provider.Request, stream bool) (*http.Request, error) {
	if p.apiKey == "" {
		return nil, provider.MissingCredentials(p.Name())
	}
	claudeReq := p.mapRequest(req)
	claudeReq.Stream = stream
	body, err := json.Marshal(claudeReq)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/messages", p.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)
	return httpReq, nil
}

// mapRequest hoists system turns into the top-level system field and merges
// consecutive turns of the same role, which the Messages API rejects.
func (p *ClaudeProvider) mapRequest(req *provider.Request) claudeRequest {
	var system []string
	var messages []claudeMessage

	for _, m := range req.Messages {
		if m.Role == provider.RoleSystem {
			system = append(system, m.Content)
			continue
		}
		role := provider.RoleUser
		if m.Role == provider.RoleAssistant {
			role = provider.RoleAssistant
		}

		content := []claudeContent{{Type: "text", Text: m.Content}}
		for _, u := range m.Images {
			content = append(content, claudeContent{Type: "image", Source: &claudeImage{Type: "url", URL: u}})
		}

		if n := len(messages); n > 0 && messages[n-1].Role == role {
			messages[n-1].Content = append(messages[n-1].Content, content...)
			continue
		}
		messages = append(messages, claudeMessage{Role: role, Content: content})
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	return claudeRequest{
		Model:       provider.ModelFor(p, req.Model),
		MaxTokens:   maxTokens,
		System:      strings.Join(system, "\n\n"),
		Messages:    messages,
		Temperature: req.Temperature,
		Stream:      req.Stream,
	}
}

func (p *ClaudeProvider) CompleteStream(ctx context.Context, req *provider.Request) (<-chan *provider.Chunk, error) {
	httpReq, err := p.newHTTPRequest(ctx, req, true)
	if err != nil {
		return nil, err
	}

	ch := make(chan *provider.Chunk)

	go func() {
		defer close(ch)

		send := func(c *provider.Chunk) bool {
			select {
			case ch <- c:
				return true
			case <-ctx.Done():
				return false
			}
		}

		resp, err := p.client.Do(httpReq)
		if err != nil {
			send(&provider.Chunk{Err: provider.StreamError(p.Name(), err)})
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			respBody, _ := io.ReadAll(resp.Body)
			send(&provider.Chunk{Err: provider.ClassifyStatus(p.Name(), resp.StatusCode, respBody)})
			return
		}

		reader := bufio.NewReader(resp.Body)
		var currentEvent string

		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				// A body that ends before message_stop is a truncated reply.
				if err == io.EOF {
					err = io.ErrUnexpectedEOF
				}
				send(&provider.Chunk{Err: provider.StreamError(p.Name(), err)})
				return
			}

			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}

			if strings.HasPrefix(line, "event:") {
				currentEvent = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
				continue
			}

			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))

			switch currentEvent {
			case "content_block_delta":
				var delta claudeStreamDelta
				if err := json.Unmarshal([]byte(data), &delta); err != nil {
					send(&provider.Chunk{Err: provider.StreamError(p.Name(), err)})
					return
				}
				if delta.Delta.Type == "text_delta" && delta.Delta.Text != "" {
					if !send(&provider.Chunk{Delta: delta.Delta.Text}) {
						return
					}
				}
			case "message_stop":
				send(&provider.Chunk{Done: true})
				return
			case "error":
				msg := data
				var delta claudeStreamDelta
				if err := json.Unmarshal([]byte(data), &delta); err == nil && delta.Error != nil {
					msg = delta.Error.Message
					if delta.Error.Type == "overloaded_error" || delta.Error.Type == "rate_limit_error" {
						send(&provider.Chunk{Err: &provider.UpstreamError{Provider: p.Name(), Body: msg, Kind: provider.ErrRateLimited}})
						return
					}
				}
				send(&provider.Chunk{Err: provider.StreamError(p.Name(), fmt.Errorf("claude stream error: %s", msg))})
				return
			}
		}
	}()

	return ch, nil
}

func (p *ClaudeProvider) Name() string {
	return Name
}

func (p *ClaudeProvider) Capabilities() provider.Capabilities {
	return Capabilities
}

func (p *ClaudeProvider) DefaultModel() string {
	return p.model
}

func (p *ClaudeProvider) CostPerInputToken() float64 {
	return 0.000003
}

func (p *ClaudeProvider) CostPerOutputToken() float64 {
	return 0.000015
}

func (p *ClaudeProvider) SupportedModels() []string {
	return []string{
		"claude-3-5-sonnet-20241022",
		"claude-3-5-haiku-20241022",
		"claude-3-7-sonnet-20250219",
		"claude-3-opus-20240229",
	}
}
