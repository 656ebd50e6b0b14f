package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Version records one published snapshot of a dataset.
type Version struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	DatasetCode string    `gorm:"column:dataset_code;not null;index" json:"dataset_code"`
	DatasetID   uuid.UUID `gorm:"column:dataset_geid;type:uuid;not null;uniqueIndex:idx_version_dataset_version" json:"dataset_geid"`
	Version     string    `gorm:"column:version;not null;uniqueIndex:idx_version_dataset_version" json:"version"`
	CreatedBy   string    `gorm:"column:created_by;not null" json:"created_by"`
	CreatedAt   time.Time `gorm:"column:created_at;not null;default:now()" json:"created_at"`
	// Object-store URI of the produced zip.
	Location string `gorm:"column:location;not null" json:"location"`
	Notes    string `gorm:"column:notes" json:"notes"`
}

func (Version) TableName() string { return "version" }

// BIDSResult stores the latest output of the external BIDS validator for a
// dataset code.
type BIDSResult struct {
	ID             int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	DatasetCode    string         `gorm:"column:dataset_code;not null;uniqueIndex" json:"dataset_code"`
	ValidateOutput datatypes.JSON `gorm:"column:validate_output;type:jsonb" json:"validate_output"`
	CreatedTime    time.Time      `gorm:"column:created_time;not null;default:now()" json:"created_time"`
	UpdatedTime    time.Time      `gorm:"column:updated_time;not null;default:now()" json:"updated_time"`
}

func (BIDSResult) TableName() string { return "bids_results" }
