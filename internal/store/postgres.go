package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"vrpsolve/internal/model"
)

type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

// Ping reports whether the database is reachable. Used by readiness.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// MigrateDir applies every *.sql file in dir in lexical order. Files are
// idempotent (CREATE ... IF NOT EXISTS), so re-running on boot is safe.
func (p *Postgres) MigrateDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil { return err }
	names := []string{}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") { names = append(names, e.Name()) }
	}
	sort.Strings(names)
	for _, n := range names {
		b, err := os.ReadFile(filepath.Join(dir, n))
		if err != nil { return err }
		if _, err := p.db.Exec(string(b)); err != nil {
			return fmt.Errorf("migrate %s: %w", n, err)
		}
	}
	return nil
}

// Runs

func (p *Postgres) CreateRun(ctx context.Context, run model.Run) error {
	_, err := p.db.ExecContext(ctx, `INSERT INTO runs (id, tenant_id, status, created_at) VALUES ($1,$2,$3,now())`,
		run.ID, run.TenantID, run.Status)
	return err
}

const runCols = `id::text, status, created_at, started_at, finished_at, generations, best_cost, unassigned, COALESCE(error,'')`

func scanRun(row interface{ Scan(...any) error }, tenantID string) (model.Run, error) {
	var r model.Run
	var created time.Time
	var started, finished sql.NullTime
	if err := row.Scan(&r.ID, &r.Status, &created, &started, &finished, &r.Generations, &r.BestCost, &r.Unassigned, &r.Error); err != nil {
		return r, err
	}
	r.TenantID = tenantID
	r.CreatedAt = created.UTC().Format(time.RFC3339)
	if started.Valid { r.StartedAt = started.Time.UTC().Format(time.RFC3339) }
	if finished.Valid { r.FinishedAt = finished.Time.UTC().Format(time.RFC3339) }
	return r, nil
}

func (p *Postgres) GetRun(ctx context.Context, tenantID, id string) (model.Run, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+runCols+` FROM runs WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	r, err := scanRun(row, tenantID)
	if errors.Is(err, sql.ErrNoRows) { return model.Run{}, ErrNotFound }
	return r, err
}

func (p *Postgres) ListRuns(ctx context.Context, tenantID, status, cursor string, limit int) ([]model.Run, string, error) {
	if limit <= 0 || limit > 500 { limit = 100 }
	// Cursor is the last seen id text, same scheme as the other lists.
	var rows *sql.Rows
	var err error
	if status != "" {
		if cursor != "" {
			rows, err = p.db.QueryContext(ctx, `SELECT `+runCols+` FROM runs WHERE tenant_id=$1 AND status=$2 AND id::text > $3 ORDER BY id LIMIT $4`, tenantID, status, cursor, limit)
		} else {
			rows, err = p.db.QueryContext(ctx, `SELECT `+runCols+` FROM runs WHERE tenant_id=$1 AND status=$2 ORDER BY id LIMIT $3`, tenantID, status, limit)
		}
	} else {
		if cursor != "" {
			rows, err = p.db.QueryContext(ctx, `SELECT `+runCols+` FROM runs WHERE tenant_id=$1 AND id::text > $2 ORDER BY id LIMIT $3`, tenantID, cursor, limit)
		} else {
			rows, err = p.db.QueryContext(ctx, `SELECT `+runCols+` FROM runs WHERE tenant_id=$1 ORDER BY id LIMIT $2`, tenantID, limit)
		}
	}
	if err != nil { return nil, "", err }
	defer rows.Close()
	out := []model.Run{}
	var last string
	for rows.Next() {
		r, err := scanRun(rows, tenantID)
		if err != nil { return nil, "", err }
		out = append(out, r)
		last = r.ID
	}
	var next string
	if len(out) == limit { next = last }
	return out, next, nil
}

func (p *Postgres) SetRunStatus(ctx context.Context, tenantID, id, status, errMsg string) (model.Run, error) {
	var q string
	switch status {
	case model.RunRunning:
		q = `UPDATE runs SET status=$3, error=NULL, started_at=now() WHERE tenant_id=$1 AND id=$2 AND status NOT IN ('completed','failed','cancelled')`
	case model.RunCompleted, model.RunFailed, model.RunCancelled:
		q = `UPDATE runs SET status=$3, error=$4, finished_at=now() WHERE tenant_id=$1 AND id=$2 AND status NOT IN ('completed','failed','cancelled')`
	default:
		q = `UPDATE runs SET status=$3, error=$4 WHERE tenant_id=$1 AND id=$2 AND status NOT IN ('completed','failed','cancelled')`
	}
	var res sql.Result
	var err error
	if status == model.RunRunning {
		res, err = p.db.ExecContext(ctx, q, tenantID, id, status)
	} else {
		res, err = p.db.ExecContext(ctx, q, tenantID, id, status, nullIfEmpty(errMsg))
	}
	if err != nil { return model.Run{}, err }
	if n, _ := res.RowsAffected(); n == 0 {
		// Either the run does not exist or it already finished.
		if _, err := p.GetRun(ctx, tenantID, id); err != nil { return model.Run{}, err }
		return model.Run{}, ErrConflict
	}
	return p.GetRun(ctx, tenantID, id)
}

func (p *Postgres) RecordRunProgress(ctx context.Context, tenantID, id string, generations int, bestCost float64, unassigned int) error {
	_, err := p.db.ExecContext(ctx, `UPDATE runs SET generations=$3, best_cost=$4, unassigned=$5 WHERE tenant_id=$1 AND id=$2`,
		tenantID, id, generations, bestCost, unassigned)
	return err
}

// Solutions

func (p *Postgres) SaveSolution(ctx context.Context, tenantID string, sol model.Solution) error {
	body, err := json.Marshal(sol)
	if err != nil { return err }
	_, err = p.db.ExecContext(ctx, `INSERT INTO solutions (run_id, tenant_id, body, created_at) VALUES ($1,$2,$3,now())
		ON CONFLICT (run_id) DO UPDATE SET body=EXCLUDED.body`, sol.RunID, tenantID, body)
	return err
}

func (p *Postgres) GetSolution(ctx context.Context, tenantID, runID string) (model.Solution, error) {
	var body []byte
	err := p.db.QueryRowContext(ctx, `SELECT body FROM solutions WHERE tenant_id=$1 AND run_id=$2`, tenantID, runID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) { return model.Solution{}, ErrNotFound }
	if err != nil { return model.Solution{}, err }
	var sol model.Solution
	if err := json.Unmarshal(body, &sol); err != nil { return model.Solution{}, err }
	return sol, nil
}

// Subscriptions

func (p *Postgres) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	id := uuid.New().String()
	ev, _ := json.Marshal(req.Events)
	_, err := p.db.ExecContext(ctx, `INSERT INTO subscriptions (id, tenant_id, url, events, secret) VALUES ($1,$2,$3,$4,$5)`, id, req.TenantID, req.URL, ev, req.Secret)
	if err != nil { return model.Subscription{}, err }
	return model.Subscription{ID: id, TenantID: req.TenantID, URL: req.URL, Events: req.Events, Secret: req.Secret}, nil
}

func (p *Postgres) GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, url, secret, events FROM subscriptions WHERE tenant_id=$1 AND events @> $2::jsonb`, tenantID, fmt.Sprintf("[\"%s\"]", eventType))
	if err != nil { return nil, err }
	defer rows.Close()
	out := []model.Subscription{}
	for rows.Next() {
		var s model.Subscription
		var events any
		if err := rows.Scan(&s.ID, &s.URL, &s.Secret, &events); err != nil { return nil, err }
		s.TenantID = tenantID
		if b, ok := events.([]byte); ok { _ = json.Unmarshal(b, &s.Events) }
		out = append(out, s)
	}
	return out, nil
}

func (p *Postgres) ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error) {
	if limit <= 0 || limit > 500 { limit = 100 }
	var rows *sql.Rows
	var err error
	if cursor != "" {
		rows, err = p.db.QueryContext(ctx, `SELECT id::text, url, secret, events FROM subscriptions WHERE tenant_id=$1 AND id::text > $2 ORDER BY id LIMIT $3`, tenantID, cursor, limit)
	} else {
		rows, err = p.db.QueryContext(ctx, `SELECT id::text, url, secret, events FROM subscriptions WHERE tenant_id=$1 ORDER BY id LIMIT $2`, tenantID, limit)
	}
	if err != nil { return nil, "", err }
	defer rows.Close()
	var out []model.Subscription
	var last string
	for rows.Next() {
		var s model.Subscription
		var ev []byte
		if err := rows.Scan(&s.ID, &s.URL, &s.Secret, &ev); err != nil { return nil, "", err }
		s.TenantID = tenantID
		_ = json.Unmarshal(ev, &s.Events)
		out = append(out, s)
		last = s.ID
	}
	next := ""
	if len(out) == limit { next = last }
	return out, next, nil
}

func (p *Postgres) DeleteSubscription(ctx context.Context, tenantID, id string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	return err
}

// Webhook deliveries

func (p *Postgres) EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	id := uuid.New().String()
	_, err := p.db.ExecContext(ctx, `INSERT INTO webhook_deliveries (id, tenant_id, subscription_id, event_type, url, secret, payload, status, attempts, next_attempt_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,'pending',0,now())`, id, tenantID, nullIfEmpty(subscriptionID), eventType, url, nullIfEmpty(secret), payload)
	if err != nil { return "", err }
	return id, nil
}

func (p *Postgres) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, tenant_id::text, COALESCE(subscription_id::text,''), event_type, url, COALESCE(secret,''), payload, status, attempts
		FROM webhook_deliveries WHERE status IN ('pending','retry') AND next_attempt_at <= now() ORDER BY next_attempt_at ASC LIMIT $1`, limit)
	if err != nil { return nil, err }
	defer rows.Close()
	out := []WebhookDelivery{}
	for rows.Next() {
		var d WebhookDelivery
		var payload []byte
		if err := rows.Scan(&d.ID, &d.TenantID, &d.SubscriptionID, &d.EventType, &d.URL, &d.Secret, &payload, &d.Status, &d.Attempts); err != nil { return nil, err }
		d.Payload = payload
		out = append(out, d)
	}
	return out, nil
}

func (p *Postgres) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	if !success {
		if nextAttemptAt == nil { t := time.Now().Add(1 * time.Minute); nextAttemptAt = &t }
		_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='retry', last_error=$2, next_attempt_at=$3, updated_at=now(), response_code=$4, latency_ms=$5 WHERE id=$1`,
			id, nullIfEmpty(lastError), *nextAttemptAt, responseCode, latencyMs)
		return err
	}
	_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='delivered', delivered_at=now(), updated_at=now(), response_code=$2, latency_ms=$3 WHERE id=$1`, id, responseCode, latencyMs)
	return err
}

func (p *Postgres) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='failed', last_error=$2, updated_at=now(), response_code=$3, latency_ms=$4 WHERE id=$1`, id, nullIfEmpty(lastError), responseCode, latencyMs)
	return err
}

func (p *Postgres) ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]map[string]any, string, error) {
	if limit <= 0 || limit > 500 { limit = 100 }
	q := `SELECT id::text, event_type, status, attempts, next_attempt_at, last_error, url FROM webhook_deliveries WHERE tenant_id=$1`
	args := []any{tenantID}
	if status != "" {
		q += ` AND status=$2`
		args = append(args, status)
	}
	if cursor != "" {
		q += fmt.Sprintf(` AND id::text > $%d`, len(args)+1)
		args = append(args, cursor)
	}
	q += fmt.Sprintf(` ORDER BY id LIMIT $%d`, len(args)+1)
	args = append(args, limit)
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil { return nil, "", err }
	defer rows.Close()
	out := []map[string]any{}
	var last string
	for rows.Next() {
		var id, eventType, st string
		var attempts int
		var nextAt sql.NullTime
		var lastErr sql.NullString
		var url string
		if err := rows.Scan(&id, &eventType, &st, &attempts, &nextAt, &lastErr, &url); err != nil { return nil, "", err }
		item := map[string]any{"id": id, "eventType": eventType, "status": st, "attempts": attempts, "url": url}
		if nextAt.Valid { item["nextAttemptAt"] = nextAt.Time }
		if lastErr.Valid && lastErr.String != "" { item["lastError"] = lastErr.String }
		out = append(out, item)
		last = id
	}
	next := ""
	if len(out) == limit { next = last }
	return out, next, nil
}

func nullIfEmpty(s string) any { if s == "" { return nil }; return s }
