package store

import (
	"context"
	"errors"
	"time"

	"vrpsolve/internal/model"
)

// Store is the persistence interface used by the API server and the
// webhook worker.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, run model.Run) error
	GetRun(ctx context.Context, tenantID, id string) (model.Run, error)
	ListRuns(ctx context.Context, tenantID, status, cursor string, limit int) (items []model.Run, nextCursor string, err error)
	SetRunStatus(ctx context.Context, tenantID, id, status, errMsg string) (model.Run, error)
	RecordRunProgress(ctx context.Context, tenantID, id string, generations int, bestCost float64, unassigned int) error

	// Solutions
	SaveSolution(ctx context.Context, tenantID string, sol model.Solution) error
	GetSolution(ctx context.Context, tenantID, runID string) (model.Solution, error)

	// Subscriptions
	CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error)
	GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error)
	ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error)
	DeleteSubscription(ctx context.Context, tenantID, id string) error

	// Webhook deliveries
	EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
	FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
	MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
	FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error
	ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]map[string]any, string, error)
}

var ErrNotFound = errors.New("not found")

// ErrConflict is returned for status transitions that are no longer
// possible, e.g. cancelling a finished run.
var ErrConflict = errors.New("conflict")
