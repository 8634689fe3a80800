package seeder

import (
	"context"
	"log/slog"

	"github.com/SGK112/ai-website-builder-sub004/internal/auth"
)

const (
	TestAPIKey  = "sk-test-api-key-12345"
	TestUserID  = "00000000-0000-0000-0000-000000000001"
	TestCredits = 100
)

// Granter tops up a user's credit balance.
type Granter interface {
	Grant(ctx context.Context, userID string, amount int64) (int64, error)
}

// Seed creates the development account: an API key, a starting credit
// balance and, when tokens is set, a session token printed to the log.
// Each step is skipped with a log line when it fails, so reseeding an
// existing database is harmless.
func Seed(ctx context.Context, store auth.Store, ledger Granter, tokens *auth.Tokens, logger *slog.Logger) {
	logger = logger.With("component", "seeder")

	apiKey := &auth.APIKey{
		UserID:    TestUserID,
		KeyHash:   auth.HashKey(TestAPIKey),
		RateLimit: 600,
		Active:    true,
	}
	if err := store.Create(ctx, apiKey); err != nil {
		logger.Warn("api key may already exist, skipping", "error", err)
	} else {
		logger.Info("test api key created", "key", TestAPIKey, "user_id", TestUserID)
	}

	balance, err := ledger.Grant(ctx, TestUserID, TestCredits)
	if err != nil {
		logger.Warn("failed to grant test credits", "error", err)
	} else {
		logger.Info("test credits granted", "user_id", TestUserID, "balance", balance)
	}

	if tokens == nil {
		return
	}
	token, err := tokens.Issue(TestUserID)
	if err != nil {
		logger.Warn("failed to issue test session token", "error", err)
		return
	}
	logger.Info("test session token issued", "user_id", TestUserID, "token", token)
}
