package store

import (
	"errors"
	"testing"
	"time"

	"vrpsolve/internal/model"
)

func seedRun(t *testing.T, m *Memory, id, tenant string) {
	t.Helper()
	err := m.CreateRun(t.Context(), model.Run{ID: id, TenantID: tenant, Status: model.RunQueued, CreatedAt: time.Now().UTC().Format(time.RFC3339)})
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
}

func TestMemoryRunLifecycle(t *testing.T) {
	m := NewMemory()
	seedRun(t, m, "r1", "t1")

	r, err := m.GetRun(t.Context(), "t1", "r1")
	if err != nil || r.Status != model.RunQueued {
		t.Fatalf("GetRun: %v %+v", err, r)
	}
	if _, err := m.GetRun(t.Context(), "t2", "r1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("wrong tenant should be not found, got %v", err)
	}

	r, err = m.SetRunStatus(t.Context(), "t1", "r1", model.RunRunning, "")
	if err != nil || r.StartedAt == "" {
		t.Fatalf("SetRunStatus running: %v %+v", err, r)
	}
	if err := m.RecordRunProgress(t.Context(), "t1", "r1", 12, 345.6, 2); err != nil {
		t.Fatalf("RecordRunProgress: %v", err)
	}
	r, err = m.SetRunStatus(t.Context(), "t1", "r1", model.RunCompleted, "")
	if err != nil || r.FinishedAt == "" || r.Generations != 12 || r.BestCost != 345.6 {
		t.Fatalf("SetRunStatus completed: %v %+v", err, r)
	}

	// Finished runs cannot transition again.
	if _, err := m.SetRunStatus(t.Context(), "t1", "r1", model.RunCancelled, ""); !errors.Is(err, ErrConflict) {
		t.Fatalf("want ErrConflict, got %v", err)
	}
}

func TestMemoryListRunsCursor(t *testing.T) {
	m := NewMemory()
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		seedRun(t, m, id, "t1")
	}
	page1, next, err := m.ListRuns(t.Context(), "t1", "", "", 2)
	if err != nil || len(page1) != 2 || next == "" {
		t.Fatalf("page1: %v %d %q", err, len(page1), next)
	}
	page2, next2, err := m.ListRuns(t.Context(), "t1", "", next, 10)
	if err != nil || len(page2) != 3 || next2 != "" {
		t.Fatalf("page2: %v %d %q", err, len(page2), next2)
	}
	if page1[0].ID == page2[0].ID {
		t.Fatal("pages overlap")
	}
}

func TestMemoryListRunsStatusFilter(t *testing.T) {
	m := NewMemory()
	seedRun(t, m, "a", "t1")
	seedRun(t, m, "b", "t1")
	if _, err := m.SetRunStatus(t.Context(), "t1", "b", model.RunRunning, ""); err != nil {
		t.Fatalf("SetRunStatus: %v", err)
	}
	items, _, err := m.ListRuns(t.Context(), "t1", model.RunRunning, "", 10)
	if err != nil || len(items) != 1 || items[0].ID != "b" {
		t.Fatalf("filter: %v %+v", err, items)
	}
}

func TestMemorySolutionRoundTrip(t *testing.T) {
	m := NewMemory()
	seedRun(t, m, "r1", "t1")
	sol := model.Solution{RunID: "r1", Cost: 99.5, Routes: []model.Route{{VehicleID: "v1"}}}
	if err := m.SaveSolution(t.Context(), "t1", sol); err != nil {
		t.Fatalf("SaveSolution: %v", err)
	}
	got, err := m.GetSolution(t.Context(), "t1", "r1")
	if err != nil || got.Cost != 99.5 || len(got.Routes) != 1 {
		t.Fatalf("GetSolution: %v %+v", err, got)
	}
	if _, err := m.GetSolution(t.Context(), "t1", "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing run: %v", err)
	}
	if _, err := m.GetSolution(t.Context(), "t2", "r1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cross tenant: %v", err)
	}
}

func TestMemorySubscriptions(t *testing.T) {
	m := NewMemory()
	s, err := m.CreateSubscription(t.Context(), model.SubscriptionRequest{TenantID: "t1", URL: "http://example/hook", Events: []string{"run.completed"}, Secret: "s"})
	if err != nil || s.ID == "" {
		t.Fatalf("CreateSubscription: %v", err)
	}
	subs, err := m.GetSubscriptionsForEvent(t.Context(), "t1", "run.completed")
	if err != nil || len(subs) != 1 {
		t.Fatalf("GetSubscriptionsForEvent: %v %d", err, len(subs))
	}
	if subs, _ := m.GetSubscriptionsForEvent(t.Context(), "t1", "run.failed"); len(subs) != 0 {
		t.Fatal("unsubscribed event matched")
	}
	if err := m.DeleteSubscription(t.Context(), "t1", s.ID); err != nil {
		t.Fatalf("DeleteSubscription: %v", err)
	}
	items, _, _ := m.ListSubscriptions(t.Context(), "t1", "", 10)
	if len(items) != 0 {
		t.Fatalf("expected empty, got %d", len(items))
	}
}

func TestMemoryWebhookQueue(t *testing.T) {
	m := NewMemory()
	id, err := m.EnqueueWebhook(t.Context(), "t1", "sub1", "run.completed", "http://example/hook", "sec", []byte(`{}`))
	if err != nil || id == "" {
		t.Fatalf("EnqueueWebhook: %v", err)
	}
	due, err := m.FetchDueWebhookDeliveries(t.Context(), 10)
	if err != nil || len(due) != 1 || due[0].ID != id {
		t.Fatalf("due: %v %+v", err, due)
	}

	// Failed attempt reschedules into the future.
	next := time.Now().Add(time.Hour)
	if err := m.MarkWebhookDelivery(t.Context(), id, false, &next, "boom", 500, 12); err != nil {
		t.Fatalf("Mark retry: %v", err)
	}
	if due, _ := m.FetchDueWebhookDeliveries(t.Context(), 10); len(due) != 0 {
		t.Fatal("rescheduled delivery should not be due")
	}

	// Terminal failure.
	if err := m.FailWebhookDelivery(t.Context(), id, "gave up", 500, 3); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	items, _, _ := m.ListWebhookDeliveries(t.Context(), "t1", "failed", "", 10)
	if len(items) != 1 {
		t.Fatalf("failed list: %d", len(items))
	}
}
