package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/PilotDataPlatform/dataset-sub000/internal/clients/queue"
	"github.com/PilotDataPlatform/dataset-sub000/internal/core/cerr"
	"github.com/PilotDataPlatform/dataset-sub000/internal/domain"
	"github.com/PilotDataPlatform/dataset-sub000/internal/platform/logger"
)

const (
	taskRecordTTL    = 24 * time.Hour
	publishStatusTTL = time.Hour
)

// Tracker keeps per-item job records in redis and broadcasts every status
// transition as a socket notification through the queue service. Notification
// failures are logged, never fatal.
type Tracker struct {
	log   *logger.Logger
	rdb   redis.UniversalClient
	queue queue.Client
}

func NewTracker(log *logger.Logger, rdb redis.UniversalClient, q queue.Client) *Tracker {
	return &Tracker{log: log.With("service", "TaskTracker"), rdb: rdb, queue: q}
}

func taskKey(taskID, jobID string) string {
	return fmt.Sprintf("dataset:task:%s:%s", taskID, jobID)
}

func publishKey(datasetID string) string {
	return fmt.Sprintf("dataset:publish:%s", datasetID)
}

// Init records a job in INIT state.
func (t *Tracker) Init(ctx context.Context, job domain.JobRecord) error {
	job.Status = domain.TaskStatusInit
	return t.set(ctx, job)
}

// Running advances a job to RUNNING.
func (t *Tracker) Running(ctx context.Context, job domain.JobRecord) error {
	job.Status = domain.TaskStatusRunning
	return t.set(ctx, job)
}

// Finish marks a job done, carrying the current item payload.
func (t *Tracker) Finish(ctx context.Context, job domain.JobRecord, payload interface{}) error {
	job.Status = domain.TaskStatusFinish
	job.Payload = payload
	return t.set(ctx, job)
}

// Cancel marks a job failed, carrying the error payload.
func (t *Tracker) Cancel(ctx context.Context, job domain.JobRecord, errPayload interface{}) error {
	job.Status = domain.TaskStatusCancelled
	job.Payload = errPayload
	return t.set(ctx, job)
}

func (t *Tracker) set(ctx context.Context, job domain.JobRecord) error {
	job.UpdatedAt = time.Now().Unix()
	raw, err := json.Marshal(job)
	if err != nil {
		return cerr.Internal(fmt.Errorf("marshal job record: %w", err))
	}
	if err := t.rdb.Set(ctx, taskKey(job.TaskID, job.JobID), raw, taskRecordTTL).Err(); err != nil {
		return cerr.Internal(fmt.Errorf("store job record: %w", err))
	}
	t.notify(ctx, job)
	return nil
}

func (t *Tracker) notify(ctx context.Context, job domain.JobRecord) {
	payload := map[string]any{
		"session_id": job.SessionID,
		"task_id":    job.TaskID,
		"job_id":     job.JobID,
		"status":     job.Status,
		"source":     job.Source,
		"action":     job.Action,
		"payload":    job.Payload,
	}
	if err := t.queue.SendNotification(ctx, payload); err != nil {
		t.log.Error("Failed to send task notification", "task_id", job.TaskID, "job_id", job.JobID, "status", job.Status, "error", err)
	}
}

// ListByTask returns every job record of one batch operation.
func (t *Tracker) ListByTask(ctx context.Context, taskID string) ([]domain.JobRecord, error) {
	var records []domain.JobRecord
	iter := t.rdb.Scan(ctx, 0, taskKey(taskID, "*"), 0).Iterator()
	for iter.Next(ctx) {
		raw, err := t.rdb.Get(ctx, iter.Val()).Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, cerr.Internal(fmt.Errorf("read job record %s: %w", iter.Val(), err))
		}
		var job domain.JobRecord
		if err := json.Unmarshal(raw, &job); err != nil {
			t.log.Warn("Skipping malformed job record", "key", iter.Val(), "error", err)
			continue
		}
		records = append(records, job)
	}
	if err := iter.Err(); err != nil {
		return nil, cerr.Internal(fmt.Errorf("scan task records: %w", err))
	}
	return records, nil
}

// SetPublishStatus stores the publish state of a dataset for one hour.
func (t *Tracker) SetPublishStatus(ctx context.Context, datasetID string, status domain.PublishStatus) error {
	raw, err := json.Marshal(status)
	if err != nil {
		return cerr.Internal(err)
	}
	if err := t.rdb.Set(ctx, publishKey(datasetID), raw, publishStatusTTL).Err(); err != nil {
		return cerr.Internal(fmt.Errorf("store publish status: %w", err))
	}
	return nil
}

// GetPublishStatus returns nil when no publish has run recently.
func (t *Tracker) GetPublishStatus(ctx context.Context, datasetID string) (*domain.PublishStatus, error) {
	raw, err := t.rdb.Get(ctx, publishKey(datasetID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, cerr.Internal(fmt.Errorf("read publish status: %w", err))
	}
	var status domain.PublishStatus
	if err := json.Unmarshal(raw, &status); err != nil {
		return nil, cerr.Internal(fmt.Errorf("decode publish status: %w", err))
	}
	return &status, nil
}
