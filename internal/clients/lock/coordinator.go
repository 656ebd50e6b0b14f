package lock

import (
	"context"

	"github.com/PilotDataPlatform/dataset-sub000/internal/core/cerr"
	"github.com/PilotDataPlatform/dataset-sub000/internal/domain"
	"github.com/PilotDataPlatform/dataset-sub000/internal/platform/logger"
)

// Entry is one resource lock request, keyed "<bucket>/<object_path>".
type Entry struct {
	Key       string
	Operation string
}

// Coordinator acquires sets of resource locks and tracks what it holds so
// everything can be released in reverse order when the operation ends.
type Coordinator struct {
	log    *logger.Logger
	client Client
	held   []Entry
}

func NewCoordinator(log *logger.Logger, client Client) *Coordinator {
	return &Coordinator{log: log.With("service", "LockCoordinator"), client: client}
}

// AcquireAll locks every entry in order. On the first failure it releases
// whatever it already acquired during this call and surfaces Conflict with
// the offending key.
func (c *Coordinator) AcquireAll(ctx context.Context, entries []Entry) error {
	acquired := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if err := c.client.Acquire(ctx, e.Key, e.Operation); err != nil {
			c.releaseEntries(ctx, acquired)
			if cerr.KindOf(err) == cerr.KindConflict {
				return cerr.Conflictf("failed to lock resource %s", e.Key)
			}
			return err
		}
		acquired = append(acquired, e)
	}
	c.held = append(c.held, acquired...)
	return nil
}

// ReleaseAll best-effort releases every held lock in reverse acquisition
// order. Individual failures are logged, never returned.
func (c *Coordinator) ReleaseAll(ctx context.Context) {
	c.releaseEntries(ctx, c.held)
	c.held = nil
}

func (c *Coordinator) releaseEntries(ctx context.Context, entries []Entry) {
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if err := c.client.Release(ctx, e.Key, e.Operation); err != nil {
			c.log.Error("Failed to release resource lock", "key", e.Key, "operation", e.Operation, "error", err)
		}
	}
}

// Target pairs an item with the name it will carry at the destination; the
// two differ when a batch collision forced a rename.
type Target struct {
	Item       *domain.Item
	TargetName string
}

// PlanImport computes the lock set for importing targets from a project
// bucket into a dataset bucket: read on every source path, write on every
// destination path. Children are resolved through walk.
func PlanImport(ctx context.Context, walk func(ctx context.Context, parent *domain.Item) ([]*domain.Item, error), targets []Target, projectCode, datasetCode, rootFolder string) ([]Entry, error) {
	var entries []Entry
	srcBucket := "core-" + projectCode
	err := walkTree(ctx, walk, targets, func(item *domain.Item, targetPath string) {
		entries = append(entries,
			Entry{Key: srcBucket + "/" + item.ObjectKey(), Operation: OpRead},
			Entry{Key: datasetCode + "/" + targetPath, Operation: OpWrite},
		)
	}, rootFolder)
	return entries, err
}

// PlanDelete computes write locks over the full subtrees being removed from
// the dataset bucket.
func PlanDelete(ctx context.Context, walk func(ctx context.Context, parent *domain.Item) ([]*domain.Item, error), roots []*domain.Item, datasetCode string) ([]Entry, error) {
	var entries []Entry
	err := walkTreeInPlace(ctx, walk, roots, func(item *domain.Item) {
		entries = append(entries, Entry{Key: datasetCode + "/" + item.ObjectKey(), Operation: OpWrite})
	})
	return entries, err
}

// PlanMoveRename locks both the current and the future path of every item in
// the subtrees, write on both sides.
func PlanMoveRename(ctx context.Context, walk func(ctx context.Context, parent *domain.Item) ([]*domain.Item, error), targets []Target, datasetCode, targetPrefix string) ([]Entry, error) {
	var entries []Entry
	err := walkTree(ctx, walk, targets, func(item *domain.Item, targetPath string) {
		entries = append(entries,
			Entry{Key: datasetCode + "/" + item.ObjectKey(), Operation: OpWrite},
			Entry{Key: datasetCode + "/" + targetPath, Operation: OpWrite},
		)
	}, targetPrefix)
	return entries, err
}

// PlanPublish locks every file in the dataset read-only for the duration of
// the snapshot.
func PlanPublish(files []*domain.Item, datasetCode string) []Entry {
	entries := make([]Entry, 0, len(files))
	for _, f := range files {
		entries = append(entries, Entry{Key: datasetCode + "/" + f.ObjectKey(), Operation: OpRead})
	}
	return entries
}

// walkTree visits targets and their descendants depth-first, handing each
// item its path relative to prefix in the destination container. The root of
// each subtree is rebased onto its target name; descendants keep their own
// names. Archived items and the dataset root name folder are skipped.
func walkTree(ctx context.Context, walk func(ctx context.Context, parent *domain.Item) ([]*domain.Item, error), targets []Target, visit func(item *domain.Item, targetPath string), prefix string) error {
	var rec func(item *domain.Item, targetPath string) error
	rec = func(item *domain.Item, targetPath string) error {
		if item.Archived || item.Type == domain.ItemTypeNameFolder {
			return nil
		}
		visit(item, targetPath)
		if !item.IsFolder() {
			return nil
		}
		children, err := walk(ctx, item)
		if err != nil {
			return err
		}
		for _, child := range children {
			if err := rec(child, targetPath+"/"+child.Name); err != nil {
				return err
			}
		}
		return nil
	}
	for _, t := range targets {
		path := t.TargetName
		if prefix != "" {
			path = prefix + "/" + t.TargetName
		}
		if err := rec(t.Item, path); err != nil {
			return err
		}
	}
	return nil
}

// walkTreeInPlace is walkTree without path rebasing; items keep their stored
// object keys.
func walkTreeInPlace(ctx context.Context, walk func(ctx context.Context, parent *domain.Item) ([]*domain.Item, error), roots []*domain.Item, visit func(item *domain.Item)) error {
	var rec func(item *domain.Item) error
	rec = func(item *domain.Item) error {
		if item.Archived || item.Type == domain.ItemTypeNameFolder {
			return nil
		}
		visit(item)
		if !item.IsFolder() {
			return nil
		}
		children, err := walk(ctx, item)
		if err != nil {
			return err
		}
		for _, child := range children {
			if err := rec(child); err != nil {
				return err
			}
		}
		return nil
	}
	for _, root := range roots {
		if err := rec(root); err != nil {
			return err
		}
	}
	return nil
}
