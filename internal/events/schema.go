package events

import (
	"time"

	"github.com/hamba/avro/v2"
)

// Avro schemas for the two activity-log topics. Consumers downstream decode
// with the same definitions, so field names and order are part of the
// contract.
const datasetActivitySchemaJSON = `{
  "type": "record",
  "name": "DatasetActivity",
  "namespace": "dataset.activity",
  "fields": [
    {"name": "activity_type", "type": "string"},
    {"name": "activity_time", "type": {"type": "long", "logicalType": "timestamp-micros"}},
    {"name": "container_code", "type": "string"},
    {"name": "version", "type": ["null", "string"], "default": null},
    {"name": "user", "type": "string"},
    {"name": "target_name", "type": ["null", "string"], "default": null},
    {"name": "changes", "type": {"type": "array", "items": {
      "type": "record",
      "name": "ActivityChange",
      "fields": [
        {"name": "item_property", "type": "string"},
        {"name": "old_value", "type": ["null", "string"], "default": null},
        {"name": "new_value", "type": ["null", "string"], "default": null}
      ]
    }}}
  ]
}`

const itemActivitySchemaJSON = `{
  "type": "record",
  "name": "ItemActivity",
  "namespace": "item.activity",
  "fields": [
    {"name": "activity_type", "type": "string"},
    {"name": "activity_time", "type": {"type": "long", "logicalType": "timestamp-micros"}},
    {"name": "item_id", "type": "string"},
    {"name": "item_type", "type": "string"},
    {"name": "item_name", "type": "string"},
    {"name": "item_parent_path", "type": "string"},
    {"name": "container_code", "type": "string"},
    {"name": "container_type", "type": "string"},
    {"name": "zone", "type": "int"},
    {"name": "user", "type": "string"},
    {"name": "imported_from", "type": ["null", "string"], "default": null},
    {"name": "changes", "type": {"type": "array", "items": {
      "type": "record",
      "name": "ItemActivityChange",
      "fields": [
        {"name": "item_property", "type": "string"},
        {"name": "old_value", "type": ["null", "string"], "default": null},
        {"name": "new_value", "type": ["null", "string"], "default": null}
      ]
    }}}
  ]
}`

var (
	datasetActivitySchema = avro.MustParse(datasetActivitySchemaJSON)
	itemActivitySchema    = avro.MustParse(itemActivitySchemaJSON)
)

const (
	ActivityCreate         = "create"
	ActivityRelease        = "release"
	ActivityUpdate         = "update"
	ActivityDelete         = "delete"
	ActivityImport         = "import"
	ActivityTemplateCreate = "template_create"
	ActivityTemplateUpdate = "template_update"
	ActivityTemplateDelete = "template_delete"
	ActivitySchemaCreate   = "schema_create"
	ActivitySchemaUpdate   = "schema_update"
	ActivitySchemaDelete   = "schema_delete"
)

type Change struct {
	ItemProperty string  `avro:"item_property"`
	OldValue     *string `avro:"old_value"`
	NewValue     *string `avro:"new_value"`
}

type DatasetActivity struct {
	ActivityType  string    `avro:"activity_type"`
	ActivityTime  time.Time `avro:"activity_time"`
	ContainerCode string    `avro:"container_code"`
	Version       *string   `avro:"version"`
	User          string    `avro:"user"`
	TargetName    *string   `avro:"target_name"`
	Changes       []Change  `avro:"changes"`
}

type ItemActivity struct {
	ActivityType   string    `avro:"activity_type"`
	ActivityTime   time.Time `avro:"activity_time"`
	ItemID         string    `avro:"item_id"`
	ItemType       string    `avro:"item_type"`
	ItemName       string    `avro:"item_name"`
	ItemParentPath string    `avro:"item_parent_path"`
	ContainerCode  string    `avro:"container_code"`
	ContainerType  string    `avro:"container_type"`
	Zone           int       `avro:"zone"`
	User           string    `avro:"user"`
	ImportedFrom   *string   `avro:"imported_from"`
	Changes        []Change  `avro:"changes"`
}

// StrPtr is a convenience for optional message fields.
func StrPtr(s string) *string { return &s }
