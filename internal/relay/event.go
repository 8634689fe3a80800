package relay

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

type Kind int

const (
	KindContent Kind = iota
	KindDone
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindContent:
		return "content"
	case KindDone:
		return "done"
	case KindError:
		return "error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Event is one frame on the client stream: any number of content events
// followed by exactly one done or error.
type Event struct {
	Kind      Kind
	Text      string // content
	Provider  string // content, done
	Reasoning string // done
	SessionID string // done, optional
	Message   string // error
}

func ContentEvent(providerName, text string) Event {
	return Event{Kind: KindContent, Provider: providerName, Text: text}
}

func DoneEvent(providerName, reasoning, sessionID string) Event {
	return Event{Kind: KindDone, Provider: providerName, Reasoning: reasoning, SessionID: sessionID}
}

func ErrorEvent(message string) Event {
	return Event{Kind: KindError, Message: message}
}

// Terminal reports whether no event may follow this one.
func (e Event) Terminal() bool {
	return e.Kind == KindDone || e.Kind == KindError
}

// Field order of the payloads is part of the wire format.
type contentPayload struct {
	Content string `json:"content"`
	Agent   string `json:"agent"`
}

type donePayload struct {
	Done      bool   `json:"done"`
	Agent     string `json:"agent"`
	Reasoning string `json:"reasoning"`
	SessionID string `json:"sessionId,omitempty"`
}

type errorPayload struct {
	Error string `json:"error"`
}

// Frame encodes e as "data: <json>\n\n". HTML characters are left unescaped
// since generated code is full of them.
func (e Event) Frame() ([]byte, error) {
	var payload any
	switch e.Kind {
	case KindContent:
		payload = contentPayload{Content: e.Text, Agent: e.Provider}
	case KindDone:
		payload = donePayload{Done: true, Agent: e.Provider, Reasoning: e.Reasoning, SessionID: e.SessionID}
	case KindError:
		payload = errorPayload{Error: e.Message}
	default:
		return nil, fmt.Errorf("relay: unknown event kind %s", e.Kind)
	}

	var buf bytes.Buffer
	buf.WriteString("data: ")
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		return nil, fmt.Errorf("relay: encode %s event: %w", e.Kind, err)
	}
	// Encode terminates with a single newline; the frame needs a blank line.
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

type wirePayload struct {
	Content   *string `json:"content"`
	Agent     string  `json:"agent"`
	Done      bool    `json:"done"`
	Reasoning string  `json:"reasoning"`
	SessionID string  `json:"sessionId"`
	Error     *string `json:"error"`
}

// ReadEvents parses a complete event stream as produced by Writer. It is the
// client side of the framing and is used by tests and tooling.
func ReadEvents(r io.Reader) ([]Event, error) {
	var events []Event
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			return events, fmt.Errorf("relay: unexpected line %q", line)
		}
		var p wirePayload
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			return events, fmt.Errorf("relay: decode event: %w", err)
		}
		switch {
		case p.Error != nil:
			events = append(events, ErrorEvent(*p.Error))
		case p.Done:
			events = append(events, DoneEvent(p.Agent, p.Reasoning, p.SessionID))
		case p.Content != nil:
			events = append(events, ContentEvent(p.Agent, *p.Content))
		default:
			return events, fmt.Errorf("relay: unrecognised payload %q", data)
		}
	}
	return events, scanner.Err()
}
