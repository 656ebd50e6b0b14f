package lock

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/PilotDataPlatform/dataset-sub000/internal/core/cerr"
	"github.com/PilotDataPlatform/dataset-sub000/internal/domain"
	"github.com/PilotDataPlatform/dataset-sub000/internal/platform/logger"
)

type fakeLockClient struct {
	acquired []Entry
	released []Entry
	failOn   string
}

func (f *fakeLockClient) Acquire(_ context.Context, key, operation string) error {
	if key == f.failOn {
		return cerr.Conflictf("locked")
	}
	f.acquired = append(f.acquired, Entry{Key: key, Operation: operation})
	return nil
}

func (f *fakeLockClient) Release(_ context.Context, key, operation string) error {
	f.released = append(f.released, Entry{Key: key, Operation: operation})
	return nil
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("dev")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

func TestAcquireAllRollsBackOnConflict(t *testing.T) {
	fake := &fakeLockClient{failOn: "ds001/data/b"}
	coord := NewCoordinator(testLogger(t), fake)

	err := coord.AcquireAll(context.Background(), []Entry{
		{Key: "ds001/data/a", Operation: OpWrite},
		{Key: "ds001/data/b", Operation: OpWrite},
		{Key: "ds001/data/c", Operation: OpWrite},
	})
	if cerr.KindOf(err) != cerr.KindConflict {
		t.Fatalf("kind = %v, want Conflict", cerr.KindOf(err))
	}
	if len(fake.acquired) != 1 {
		t.Fatalf("acquired = %v", fake.acquired)
	}
	if len(fake.released) != 1 || fake.released[0].Key != "ds001/data/a" {
		t.Fatalf("released = %v", fake.released)
	}
}

func TestReleaseAllReverseOrder(t *testing.T) {
	fake := &fakeLockClient{}
	coord := NewCoordinator(testLogger(t), fake)

	entries := []Entry{
		{Key: "ds001/data/a", Operation: OpRead},
		{Key: "ds001/data/b", Operation: OpWrite},
	}
	if err := coord.AcquireAll(context.Background(), entries); err != nil {
		t.Fatalf("AcquireAll: %v", err)
	}
	coord.ReleaseAll(context.Background())

	if len(fake.released) != 2 {
		t.Fatalf("released = %v", fake.released)
	}
	if fake.released[0].Key != "ds001/data/b" || fake.released[1].Key != "ds001/data/a" {
		t.Fatalf("release order = %v", fake.released)
	}
	// A second release is a no-op.
	coord.ReleaseAll(context.Background())
	if len(fake.released) != 2 {
		t.Fatalf("released after second ReleaseAll = %v", fake.released)
	}
}

func newTreeItem(name, parentPath, itemType string) *domain.Item {
	return &domain.Item{ID: uuid.New(), Name: name, ParentPath: parentPath, Type: itemType}
}

func TestPlanImportLocksBothSides(t *testing.T) {
	folder := newTreeItem("anat", "sub-01", domain.ItemTypeFolder)
	file := newTreeItem("T1w.nii.gz", "sub-01.anat", domain.ItemTypeFile)

	walk := func(_ context.Context, parent *domain.Item) ([]*domain.Item, error) {
		if parent.ID == folder.ID {
			return []*domain.Item{file}, nil
		}
		return nil, nil
	}

	entries, err := PlanImport(context.Background(), walk, []Target{{Item: folder, TargetName: "anat"}}, "testproject", "ds001", "data")
	if err != nil {
		t.Fatalf("PlanImport: %v", err)
	}
	want := []Entry{
		{Key: "core-testproject/sub-01/anat", Operation: OpRead},
		{Key: "ds001/data/anat", Operation: OpWrite},
		{Key: "core-testproject/sub-01/anat/T1w.nii.gz", Operation: OpRead},
		{Key: "ds001/data/anat/T1w.nii.gz", Operation: OpWrite},
	}
	if len(entries) != len(want) {
		t.Fatalf("entries = %v", entries)
	}
	for i := range want {
		if entries[i] != want[i] {
			t.Fatalf("entries[%d] = %v, want %v", i, entries[i], want[i])
		}
	}
}

func TestPlanMoveRenameLocksOldAndNewPaths(t *testing.T) {
	file := newTreeItem("old.txt", "data", domain.ItemTypeFile)

	walk := func(_ context.Context, _ *domain.Item) ([]*domain.Item, error) {
		return nil, nil
	}

	entries, err := PlanMoveRename(context.Background(), walk, []Target{{Item: file, TargetName: "new.txt"}}, "ds001", "data")
	if err != nil {
		t.Fatalf("PlanMoveRename: %v", err)
	}
	want := []Entry{
		{Key: "ds001/data/old.txt", Operation: OpWrite},
		{Key: "ds001/data/new.txt", Operation: OpWrite},
	}
	if len(entries) != len(want) {
		t.Fatalf("entries = %v", entries)
	}
	for i := range want {
		if entries[i] != want[i] {
			t.Fatalf("entries[%d] = %v, want %v", i, entries[i], want[i])
		}
	}
}

func TestPlanDeleteSkipsArchivedAndRoot(t *testing.T) {
	root := newTreeItem("ds001", "", domain.ItemTypeNameFolder)
	folder := newTreeItem("sub-01", "data", domain.ItemTypeFolder)
	archived := newTreeItem("old.txt", "data.sub-01", domain.ItemTypeFile)
	archived.Archived = true
	live := newTreeItem("keep.txt", "data.sub-01", domain.ItemTypeFile)

	walk := func(_ context.Context, parent *domain.Item) ([]*domain.Item, error) {
		if parent.ID == folder.ID {
			return []*domain.Item{archived, live}, nil
		}
		return nil, nil
	}

	entries, err := PlanDelete(context.Background(), walk, []*domain.Item{root, folder}, "ds001")
	if err != nil {
		t.Fatalf("PlanDelete: %v", err)
	}
	want := []Entry{
		{Key: "ds001/data/sub-01", Operation: OpWrite},
		{Key: "ds001/data/sub-01/keep.txt", Operation: OpWrite},
	}
	if len(entries) != len(want) {
		t.Fatalf("entries = %v", entries)
	}
	for i := range want {
		if entries[i] != want[i] {
			t.Fatalf("entries[%d] = %v, want %v", i, entries[i], want[i])
		}
	}
}

func TestPlanPublish(t *testing.T) {
	files := []*domain.Item{
		newTreeItem("a.txt", "data", domain.ItemTypeFile),
		newTreeItem("b.txt", "data.sub", domain.ItemTypeFile),
	}
	entries := PlanPublish(files, "ds001")
	if len(entries) != 2 || entries[0].Operation != OpRead {
		t.Fatalf("entries = %v", entries)
	}
	if entries[1].Key != "ds001/data/sub/b.txt" {
		t.Fatalf("entries[1] = %v", entries[1])
	}
}
