package tasks

import (
	"context"
	"os"
	"testing"

	"github.com/redis/go-redis/v9"

	"github.com/PilotDataPlatform/dataset-sub000/internal/clients/queue"
	"github.com/PilotDataPlatform/dataset-sub000/internal/domain"
	"github.com/PilotDataPlatform/dataset-sub000/internal/platform/logger"
)

type fakeQueue struct {
	notifications []map[string]any
}

func (f *fakeQueue) SendMessage(ctx context.Context, env queue.Envelope) error { return nil }
func (f *fakeQueue) SendNotification(ctx context.Context, payload map[string]any) error {
	f.notifications = append(f.notifications, payload)
	return nil
}
func (f *fakeQueue) SendDatasetAction(ctx context.Context, action string, payload map[string]any) error {
	return nil
}
func (f *fakeQueue) RequestBIDSValidation(ctx context.Context, datasetCode, accessToken, refreshToken string) error {
	return nil
}

func testTracker(t *testing.T) (*Tracker, *fakeQueue) {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set; skipping tracker tests")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	t.Cleanup(func() {
		rdb.FlushDB(context.Background())
		rdb.Close()
	})
	log, err := logger.New("dev")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	q := &fakeQueue{}
	return NewTracker(log, rdb, q), q
}

func TestTaskKeys(t *testing.T) {
	if got := taskKey("t1", "j1"); got != "dataset:task:t1:j1" {
		t.Fatalf("taskKey = %q", got)
	}
	if got := publishKey("abc"); got != "dataset:publish:abc" {
		t.Fatalf("publishKey = %q", got)
	}
}

func TestTrackerLifecycle(t *testing.T) {
	tracker, q := testTracker(t)
	ctx := context.Background()

	job := domain.JobRecord{
		SessionID: "sess-1",
		TaskID:    "task-1",
		JobID:     "job-1",
		Source:    "folder1",
		Action:    domain.ActionImport,
		Code:      "ds001",
		Operator:  "admin",
	}
	if err := tracker.Init(ctx, job); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := tracker.Running(ctx, job); err != nil {
		t.Fatalf("Running: %v", err)
	}
	if err := tracker.Finish(ctx, job, map[string]any{"id": "x"}); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	records, err := tracker.ListByTask(ctx, "task-1")
	if err != nil {
		t.Fatalf("ListByTask: %v", err)
	}
	if len(records) != 1 || records[0].Status != domain.TaskStatusFinish {
		t.Fatalf("records = %+v", records)
	}

	// One notification per transition.
	if len(q.notifications) != 3 {
		t.Fatalf("notifications = %d, want 3", len(q.notifications))
	}
	if q.notifications[0]["status"] != domain.TaskStatusInit || q.notifications[2]["status"] != domain.TaskStatusFinish {
		t.Fatalf("notification statuses = %v, %v", q.notifications[0]["status"], q.notifications[2]["status"])
	}
}

func TestPublishStatusRoundTrip(t *testing.T) {
	tracker, _ := testTracker(t)
	ctx := context.Background()

	missing, err := tracker.GetPublishStatus(ctx, "none")
	if err != nil || missing != nil {
		t.Fatalf("GetPublishStatus missing = %v, %v", missing, err)
	}

	if err := tracker.SetPublishStatus(ctx, "ds-1", domain.PublishStatus{Status: domain.PublishStatusInProgress}); err != nil {
		t.Fatalf("SetPublishStatus: %v", err)
	}
	got, err := tracker.GetPublishStatus(ctx, "ds-1")
	if err != nil || got == nil || got.Status != domain.PublishStatusInProgress {
		t.Fatalf("GetPublishStatus = %+v, %v", got, err)
	}
}
