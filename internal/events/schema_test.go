package events

import (
	"testing"
	"time"

	"github.com/hamba/avro/v2"
)

func TestDatasetActivityRoundTrip(t *testing.T) {
	msg := DatasetActivity{
		ActivityType:  ActivityRelease,
		ActivityTime:  time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		ContainerCode: "ds001",
		Version:       StrPtr("1.1"),
		User:          "admin",
		Changes:       []Change{},
	}

	raw, err := avro.Marshal(datasetActivitySchema, msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded DatasetActivity
	if err := avro.Unmarshal(datasetActivitySchema, raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.ActivityType != ActivityRelease || decoded.ContainerCode != "ds001" {
		t.Fatalf("decoded = %+v", decoded)
	}
	if decoded.Version == nil || *decoded.Version != "1.1" {
		t.Fatalf("version = %v", decoded.Version)
	}
	if decoded.TargetName != nil {
		t.Fatalf("target_name should decode as nil, got %v", *decoded.TargetName)
	}
	if !decoded.ActivityTime.Equal(msg.ActivityTime) {
		t.Fatalf("activity_time = %v", decoded.ActivityTime)
	}
}

func TestItemActivityWithChanges(t *testing.T) {
	msg := ItemActivity{
		ActivityType:   ActivityUpdate,
		ActivityTime:   time.Now().UTC().Truncate(time.Microsecond),
		ItemID:         "b1c0e9d2-0000-0000-0000-000000000000",
		ItemType:       "file",
		ItemName:       "renamed.txt",
		ItemParentPath: "data.sub-01",
		ContainerCode:  "ds001",
		ContainerType:  "dataset",
		Zone:           1,
		User:           "admin",
		Changes: []Change{
			{ItemProperty: "name", OldValue: StrPtr("old.txt"), NewValue: StrPtr("renamed.txt")},
		},
	}

	raw, err := avro.Marshal(itemActivitySchema, msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded ItemActivity
	if err := avro.Unmarshal(itemActivitySchema, raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(decoded.Changes) != 1 || decoded.Changes[0].ItemProperty != "name" {
		t.Fatalf("changes = %+v", decoded.Changes)
	}
	if decoded.ImportedFrom != nil {
		t.Fatalf("imported_from should be nil")
	}
}
