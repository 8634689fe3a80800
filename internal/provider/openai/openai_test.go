package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/SGK112/ai-website-builder-sub004/internal/provider"
)

func newTestProvider(url string) *OpenAIProvider {
	return New(provider.Config{APIKey: "test-key", BaseURL: url}).(*OpenAIProvider)
}

func TestComplete_Mock(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("Expected bearer auth header, got %q", r.Header.Get("Authorization"))
		}
		resp := openAIResponse{
			ID: "test-id",
			Choices: []openAIChoice{
				{
					Message: openAIReplyMessage{Role: "assistant", Content: "Hello from OpenAI mock!"},
				},
			},
			Usage: openAIUsage{
				PromptTokens:     15,
				CompletionTokens: 25,
			},
			Model: "gpt-4o-mini",
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	p := newTestProvider(server.URL)

	req := &provider.Request{
		Model: "gpt-4o-mini",
		Messages: []provider.Message{
			{Role: "user", Content: "hi"},
		},
	}

	resp, err := p.Complete(context.Background(), req)
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	if resp.Content != "Hello from OpenAI mock!" {
		t.Errorf("Expected 'Hello from OpenAI mock!', got %s", resp.Content)
	}
	if resp.InputTokens != 15 {
		t.Errorf("Expected 15 input tokens, got %d", resp.InputTokens)
	}
	if resp.OutputTokens != 25 {
		t.Errorf("Expected 25 output tokens, got %d", resp.OutputTokens)
	}
	if resp.Provider != "openai" {
		t.Errorf("Expected provider openai, got %s", resp.Provider)
	}
}

func TestComplete_StatusClassification(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, provider.ErrAuthenticationFailed},
		{http.StatusTooManyRequests, provider.ErrRateLimited},
		{http.StatusInternalServerError, provider.ErrUpstream},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprint(tc.status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				fmt.Fprint(w, `{"error":{"message":"nope"}}`)
			}))
			defer server.Close()

			_, err := newTestProvider(server.URL).Complete(context.Background(), &provider.Request{
				Messages: []provider.Message{{Role: "user", Content: "hi"}},
			})
			if !errors.Is(err, tc.want) {
				t.Errorf("Expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestComplete_MissingKey(t *testing.T) {
	p := New(provider.Config{})
	_, err := p.Complete(context.Background(), &provider.Request{})
	if !errors.Is(err, provider.ErrAuthenticationFailed) {
		t.Errorf("Expected authentication error, got %v", err)
	}
}

func TestCompleteStream_Mock(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")

		var body openAIRequest
		json.NewDecoder(r.Body).Decode(&body)
		if !body.Stream {
			t.Errorf("Expected stream=true in upstream request")
		}

		chunks := []string{"Hello", " from", " OpenAI", "!"}
		for _, chunk := range chunks {
			resp := openAIResponse{
				Choices: []openAIChoice{
					{
						Delta: openAIDelta{Content: chunk},
					},
				},
			}
			data, _ := json.Marshal(resp)
			fmt.Fprintf(w, "data: %s\n\n", string(data))
		}
		fmt.Fprintf(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	p := newTestProvider(server.URL)

	req := &provider.Request{
		Model: "gpt-4o-mini",
		Messages: []provider.Message{
			{Role: "user", Content: "hi"},
		},
	}

	ch, err := p.CompleteStream(context.Background(), req)
	if err != nil {
		t.Fatalf("CompleteStream failed: %v", err)
	}

	var content string
	var done bool
	for chunk := range ch {
		if chunk.Err != nil {
			t.Fatalf("Received error from chunk: %v", chunk.Err)
		}
		if chunk.Done {
			done = true
			continue
		}
		content += chunk.Delta
	}

	if !done {
		t.Error("Expected stream to be done")
	}
	if content != "Hello from OpenAI!" {
		t.Errorf("Expected 'Hello from OpenAI!', got %s", content)
	}
}

func TestCompleteStream_TruncatedBeforeDone(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		data, _ := json.Marshal(openAIResponse{Choices: []openAIChoice{{Delta: openAIDelta{Content: "Hel"}}}})
		fmt.Fprintf(w, "data: %s\n\n", string(data))
	}))
	defer server.Close()

	ch, err := newTestProvider(server.URL).CompleteStream(context.Background(), &provider.Request{
		Messages: []provider.Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("CompleteStream failed: %v", err)
	}

	var chunks []*provider.Chunk
	for c := range ch {
		chunks = append(chunks, c)
	}
	if len(chunks) != 2 || chunks[0].Delta != "Hel" {
		t.Fatalf("Expected one delta then an error, got %+v", chunks)
	}
	last := chunks[1]
	if last.Done || !errors.Is(last.Err, io.ErrUnexpectedEOF) || !errors.Is(last.Err, provider.ErrUpstream) {
		t.Errorf("Expected unexpected EOF upstream error, got done=%v err=%v", last.Done, last.Err)
	}
}

func TestCompleteStream_DoneWithoutTrailingNewline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := json.Marshal(openAIResponse{Choices: []openAIChoice{{Delta: openAIDelta{Content: "ok"}}}})
		fmt.Fprintf(w, "data: %s\n\ndata: [DONE]", string(data))
	}))
	defer server.Close()

	ch, err := newTestProvider(server.URL).CompleteStream(context.Background(), &provider.Request{
		Messages: []provider.Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("CompleteStream failed: %v", err)
	}
	var last *provider.Chunk
	for c := range ch {
		last = c
	}
	if last == nil || !last.Done || last.Err != nil {
		t.Errorf("Expected clean done, got %+v", last)
	}
}

func TestCompleteStream_RateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	ch, err := newTestProvider(server.URL).CompleteStream(context.Background(), &provider.Request{})
	if err != nil {
		t.Fatalf("CompleteStream failed: %v", err)
	}
	chunk := <-ch
	if chunk == nil || !errors.Is(chunk.Err, provider.ErrRateLimited) {
		t.Fatalf("Expected rate limited chunk, got %+v", chunk)
	}
}

func TestCompleteStream_CancelClosesUpstream(t *testing.T) {
	released := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer close(released)
		flusher := w.(http.Flusher)
		w.Header().Set("Content-Type", "text/event-stream")
		for i := 0; ; i++ {
			data, _ := json.Marshal(openAIResponse{Choices: []openAIChoice{{Delta: openAIDelta{Content: fmt.Sprint(i)}}}})
			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
			select {
			case <-r.Context().Done():
				return
			case <-time.After(5 * time.Millisecond):
			}
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := newTestProvider(server.URL).CompleteStream(ctx, &provider.Request{})
	if err != nil {
		t.Fatalf("CompleteStream failed: %v", err)
	}
	<-ch
	<-ch
	cancel()

	select {
	case <-released:
	case <-time.After(2 * time.Second):
		t.Fatal("Expected upstream request to be released after cancel")
	}
	for range ch {
	}
}

func TestMapRequest_Images(t *testing.T) {
	p := newTestProvider("http://unused")
	req := p.mapRequest(&provider.Request{
		Messages: []provider.Message{{Role: "user", Content: "what is this", Images: []string{"https://x/img.png"}}},
	})
	parts, ok := req.Messages[0].Content.([]openAIPart)
	if !ok || len(parts) != 2 {
		t.Fatalf("Expected text+image parts, got %#v", req.Messages[0].Content)
	}
	if parts[1].ImageURL == nil || parts[1].ImageURL.URL != "https://x/img.png" {
		t.Errorf("Unexpected image part %+v", parts[1])
	}
	if req.Model != DefaultModel {
		t.Errorf("Expected default model, got %s", req.Model)
	}
}

func TestName(t *testing.T) {
	p := New(provider.Config{APIKey: "key"})
	if p.Name() != "openai" {
		t.Errorf("Expected 'openai', got %s", p.Name())
	}
	if !strings.Contains(strings.Join(p.SupportedModels(), ","), "gpt-4o-mini") {
		t.Error("gpt-4o-mini should be in supported models")
	}
}
