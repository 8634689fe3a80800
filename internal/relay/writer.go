package relay

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
)

// ErrTransportClosed means the client is gone or the stream was already
// closed. It is a cancellation signal, not a failure.
var ErrTransportClosed = errors.New("transport closed")

// Writer owns the downstream half of one event stream. It is used from a
// single goroutine; Close may be called any number of times.
type Writer struct {
	w       http.ResponseWriter
	rc      *http.ResponseController
	opened  bool
	closed  bool
	once    sync.Once
	onClose []func()
}

func NewWriter(w http.ResponseWriter) *Writer {
	return &Writer{w: w, rc: http.NewResponseController(w)}
}

// Open commits the status line and stream headers.
func (sw *Writer) Open() error {
	if sw.closed {
		return ErrTransportClosed
	}
	if sw.opened {
		return nil
	}
	h := sw.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	sw.w.WriteHeader(http.StatusOK)
	sw.opened = true
	if err := sw.rc.Flush(); err != nil {
		sw.closed = true
		return fmt.Errorf("%w: %v", ErrTransportClosed, err)
	}
	return nil
}

// Send writes one framed event and flushes it before returning.
func (sw *Writer) Send(ev Event) error {
	if sw.closed {
		return ErrTransportClosed
	}
	if !sw.opened {
		if err := sw.Open(); err != nil {
			return err
		}
	}
	frame, err := ev.Frame()
	if err != nil {
		return err
	}
	if _, err := sw.w.Write(frame); err != nil {
		sw.closed = true
		return fmt.Errorf("%w: %v", ErrTransportClosed, err)
	}
	if err := sw.rc.Flush(); err != nil {
		sw.closed = true
		return fmt.Errorf("%w: %v", ErrTransportClosed, err)
	}
	return nil
}

// Close ends the stream. The HTTP response itself is finished when the
// handler returns; after Close no further event is written.
func (sw *Writer) Close() {
	sw.once.Do(func() {
		sw.closed = true
		for _, fn := range sw.onClose {
			fn()
		}
	})
}

// OnClose registers fn to run exactly once when the stream is closed.
func (sw *Writer) OnClose(fn func()) {
	sw.onClose = append(sw.onClose, fn)
}

func (sw *Writer) Closed() bool {
	return sw.closed
}
