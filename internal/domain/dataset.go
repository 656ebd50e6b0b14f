package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// DatasetType values accepted on create.
const (
	DatasetTypeGeneral = "GENERAL"
	DatasetTypeBIDS    = "BIDS"
)

type Dataset struct {
	ID      uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Code    string    `gorm:"column:code;not null;uniqueIndex:idx_datasets_code" json:"code"`
	Title   string    `gorm:"column:title;not null" json:"title"`
	Creator string    `gorm:"column:creator;not null;index" json:"creator"`

	Authors          datatypes.JSON `gorm:"column:authors;type:jsonb" json:"authors"`
	Type             string         `gorm:"column:type;not null;default:'GENERAL'" json:"type"`
	Modality         datatypes.JSON `gorm:"column:modality;type:jsonb" json:"modality"`
	CollectionMethod datatypes.JSON `gorm:"column:collection_method;type:jsonb" json:"collection_method"`
	License          string         `gorm:"column:license" json:"license"`
	Tags             datatypes.JSON `gorm:"column:tags;type:jsonb" json:"tags"`
	Description      string         `gorm:"column:description;type:text" json:"description"`

	// Aggregates over the item tree currently visible under the dataset root.
	Size       int64 `gorm:"column:size;not null;default:0" json:"size"`
	TotalFiles int64 `gorm:"column:total_files;not null;default:0" json:"total_files"`

	// Pinned on first import; once non-null, further imports must come from
	// the same project.
	ProjectID *uuid.UUID `gorm:"column:project_id;type:uuid" json:"project_id"`

	CreatedAt time.Time `gorm:"column:created_at;not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now()" json:"updated_at"`
}

func (Dataset) TableName() string { return "datasets" }
