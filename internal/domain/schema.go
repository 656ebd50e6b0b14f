package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// SchemaTemplate is a re-usable shape for schemas. A nil DatasetID denotes a
// system-defined template shared across datasets.
type SchemaTemplate struct {
	ID        uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"geid"`
	Name      string     `gorm:"column:name;not null;uniqueIndex:idx_schema_template_name_dataset" json:"name"`
	DatasetID *uuid.UUID `gorm:"column:dataset_geid;type:uuid;uniqueIndex:idx_schema_template_name_dataset" json:"dataset_geid"`

	Standard      string         `gorm:"column:standard;not null" json:"standard"`
	SystemDefined bool           `gorm:"column:system_defined;not null;default:false" json:"system_defined"`
	IsDraft       bool           `gorm:"column:is_draft;not null;default:false" json:"is_draft"`
	Content       datatypes.JSON `gorm:"column:content;type:jsonb" json:"content"`
	Creator       string         `gorm:"column:creator;not null" json:"creator"`

	CreateTimestamp time.Time `gorm:"column:create_timestamp;not null;default:now()" json:"create_timestamp"`
	UpdateTimestamp time.Time `gorm:"column:update_timestamp;not null;default:now()" json:"update_timestamp"`
}

func (SchemaTemplate) TableName() string { return "schema_template" }

// Schema is an instance of a template owned by a dataset. The schema whose
// name equals the configured essential name mirrors its content onto the
// owning dataset row on every update.
type Schema struct {
	ID        uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"geid"`
	Name      string     `gorm:"column:name;not null;uniqueIndex:idx_schema_name_dataset" json:"name"`
	DatasetID *uuid.UUID `gorm:"column:dataset_geid;type:uuid;uniqueIndex:idx_schema_name_dataset" json:"dataset_geid"`
	TplID     uuid.UUID  `gorm:"column:tpl_geid;type:uuid;not null;index" json:"tpl_geid"`

	Standard      string         `gorm:"column:standard;not null" json:"standard"`
	SystemDefined bool           `gorm:"column:system_defined;not null;default:false" json:"system_defined"`
	IsDraft       bool           `gorm:"column:is_draft;not null;default:false" json:"is_draft"`
	Content       datatypes.JSON `gorm:"column:content;type:jsonb" json:"content"`
	Creator       string         `gorm:"column:creator;not null" json:"creator"`

	CreateTimestamp time.Time `gorm:"column:create_timestamp;not null;default:now()" json:"create_timestamp"`
	UpdateTimestamp time.Time `gorm:"column:update_timestamp;not null;default:now()" json:"update_timestamp"`
}

func (Schema) TableName() string { return "schema" }

// Schema standards recognised by the publish pipeline sidecar naming.
const (
	SchemaStandardDefault   = "default"
	SchemaStandardOpenMinds = "open_minds"
)
