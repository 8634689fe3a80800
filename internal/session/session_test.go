package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/pashagolub/pgxmock/v4"

	"github.com/SGK112/ai-website-builder-sub004/internal/provider"
	"github.com/SGK112/ai-website-builder-sub004/internal/worker"
)

type memRecorder struct {
	mu   sync.Mutex
	msgs []provider.Message
	fail error
}

func (m *memRecorder) Append(ctx context.Context, sessionID string, msg provider.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.msgs = append(m.msgs, msg)
	return nil
}

type rejectQueue struct{}

func (rejectQueue) Submit(*worker.Job) bool { return false }

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestAsyncRecorder_AppendsUserThenAssistant(t *testing.T) {
	rec := &memRecorder{}
	pool := worker.NewPool(1, 4, quiet())
	pool.Start(context.Background())

	a := NewAsyncRecorder(rec, pool, quiet())
	if !a.Record("sess-1", "make a page", "<html></html>") {
		t.Fatal("Expected exchange to be queued")
	}
	pool.Stop()

	if len(rec.msgs) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(rec.msgs))
	}
	if rec.msgs[0].Role != provider.RoleUser || rec.msgs[0].Content != "make a page" {
		t.Errorf("Unexpected first message %+v", rec.msgs[0])
	}
	if rec.msgs[1].Role != provider.RoleAssistant || rec.msgs[1].Content != "<html></html>" {
		t.Errorf("Unexpected second message %+v", rec.msgs[1])
	}
}

func TestAsyncRecorder_Skips(t *testing.T) {
	rec := &memRecorder{}
	pool := worker.NewPool(1, 4, quiet())
	pool.Start(context.Background())
	a := NewAsyncRecorder(rec, pool, quiet())

	if a.Record("", "hi", "hello") {
		t.Error("Expected no recording without a session")
	}
	if a.Record("sess-1", "hi", "") {
		t.Error("Expected no recording without assistant text")
	}
	pool.Stop()
	if len(rec.msgs) != 0 {
		t.Errorf("Expected nothing recorded, got %d", len(rec.msgs))
	}

	if NewAsyncRecorder(rec, rejectQueue{}, quiet()).Record("sess-1", "hi", "hello") {
		t.Error("Expected false when the queue rejects")
	}
}

func TestAsyncRecorder_FailureIsSwallowed(t *testing.T) {
	rec := &memRecorder{fail: errors.New("db down")}
	pool := worker.NewPool(1, 4, quiet())
	pool.Start(context.Background())

	NewAsyncRecorder(rec, pool, quiet()).Record("sess-1", "hi", "hello")
	pool.Stop()

	if pool.Failed() != 1 {
		t.Errorf("Expected failure counted by the pool, got %d", pool.Failed())
	}
}

func TestPostgresRecorder_Append(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	mock.ExpectExec("INSERT INTO chat_messages").
		WithArgs("sess-1", provider.RoleUser, "hi").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO chat_messages").
		WithArgs("sess-1", provider.RoleAssistant, "hello").
		WillReturnError(errors.New("connection reset"))

	r := NewPostgresRecorder(mock)
	ctx := context.Background()
	if err := r.Append(ctx, "sess-1", provider.Message{Role: provider.RoleUser, Content: "hi"}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := r.Append(ctx, "sess-1", provider.Message{Role: provider.RoleAssistant, Content: "hello"}); err == nil {
		t.Error("Expected append error to surface")
	}
	if err := r.Append(ctx, "", provider.Message{Role: provider.RoleUser, Content: "x"}); err == nil {
		t.Error("Expected error for empty session id")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
