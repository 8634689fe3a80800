package billing

import (
	"context"
	"time"
)

// UsageLog records one served generation request.
type UsageLog struct {
	ID           string    `json:"id"`
	TenantID     string    `json:"tenantId"`
	RequestID    string    `json:"requestId"`
	Provider     string    `json:"provider"`
	Model        string    `json:"model"`
	TaskType     string    `json:"taskType"`
	Credits      int64     `json:"credits"`
	Outcome      string    `json:"outcome"`
	InputTokens  int       `json:"inputTokens"`
	OutputTokens int       `json:"outputTokens"`
	CostUSD      float64   `json:"costUsd"`
	LatencyMs    int64     `json:"latencyMs"`
	CreatedAt    time.Time `json:"createdAt"`
}

type Store interface {
	LogUsage(ctx context.Context, log *UsageLog) error
	GetUsageByTenant(ctx context.Context, tenantID string, from, to time.Time) ([]*UsageLog, error)
	GetTotalCostByTenant(ctx context.Context, tenantID string, from, to time.Time) (float64, error)
}
