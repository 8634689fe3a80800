package session

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/SGK112/ai-website-builder-sub004/internal/provider"
	"github.com/SGK112/ai-website-builder-sub004/internal/worker"
)

// Recorder appends messages to a session transcript.
type Recorder interface {
	Append(ctx context.Context, sessionID string, msg provider.Message) error
}

type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresRecorder stores transcripts in chat_messages. Rows are only ever
// inserted; ordering comes from the serial id.
type PostgresRecorder struct {
	db DB
}

func NewPostgresRecorder(db DB) *PostgresRecorder {
	return &PostgresRecorder{db: db}
}

func (r *PostgresRecorder) Append(ctx context.Context, sessionID string, msg provider.Message) error {
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}
	query := `INSERT INTO chat_messages (session_id, role, content) VALUES ($1, $2, $3)`
	if _, err := r.db.Exec(ctx, query, sessionID, msg.Role, msg.Content); err != nil {
		return fmt.Errorf("failed to append %s message to session %s: %w", msg.Role, sessionID, err)
	}
	return nil
}

// AsyncRecorder writes exchanges off the request path.
type AsyncRecorder struct {
	rec    Recorder
	queue  worker.Queue
	logger *slog.Logger
}

func NewAsyncRecorder(rec Recorder, queue worker.Queue, logger *slog.Logger) *AsyncRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &AsyncRecorder{rec: rec, queue: queue, logger: logger.With("component", "session")}
}

// Record queues the user prompt and the assistant reply as one job so the
// two are appended in order. It never blocks and never reports failure to
// the caller; exchanges without a session or without a reply are skipped.
func (a *AsyncRecorder) Record(sessionID, userText, assistantText string) bool {
	if sessionID == "" || assistantText == "" {
		return false
	}
	user := provider.Message{Role: provider.RoleUser, Content: userText}
	assistant := provider.Message{Role: provider.RoleAssistant, Content: assistantText}

	job := worker.NewJob("transcript", func(ctx context.Context) error {
		if err := a.rec.Append(ctx, sessionID, user); err != nil {
			return err
		}
		return a.rec.Append(ctx, sessionID, assistant)
	})
	if !a.queue.Submit(job) {
		a.logger.Warn("transcript dropped", "session_id", sessionID)
		return false
	}
	return true
}
