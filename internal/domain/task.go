package domain

// Task status advances monotonically from INIT; FINISH and CANCELLED are
// terminal.
const (
	TaskStatusInit      = "INIT"
	TaskStatusRunning   = "RUNNING"
	TaskStatusFinish    = "FINISH"
	TaskStatusCancelled = "CANCELLED"
)

// Actions tracked per batch operation.
const (
	ActionImport  = "data_import"
	ActionDelete  = "data_delete"
	ActionMove    = "data_transfer"
	ActionRename  = "data_rename"
	ActionPublish = "dataset_publish"
)

// JobRecord is one item's lifecycle row inside one batch operation, persisted
// in the task KV store and broadcast on every transition.
type JobRecord struct {
	SessionID string      `json:"session_id"`
	TaskID    string      `json:"task_id"`
	JobID     string      `json:"job_id"`
	Source    string      `json:"source"`
	Action    string      `json:"action"`
	Status    string      `json:"status"`
	Code      string      `json:"code"`
	Operator  string      `json:"operator"`
	Payload   interface{} `json:"payload"`
	UpdatedAt int64       `json:"update_timestamp"`
}

// Publish status values; inprogress blocks new publish attempts.
const (
	PublishStatusInProgress = "inprogress"
	PublishStatusSuccess    = "success"
	PublishStatusFailed     = "failed"
)

type PublishStatus struct {
	Status   string `json:"status"`
	ErrorMsg string `json:"error_msg"`
}
