package fileops

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/PilotDataPlatform/dataset-sub000/internal/clients/lock"
	"github.com/PilotDataPlatform/dataset-sub000/internal/clients/metadata"
	"github.com/PilotDataPlatform/dataset-sub000/internal/clients/objectstore"
	"github.com/PilotDataPlatform/dataset-sub000/internal/domain"
	"github.com/PilotDataPlatform/dataset-sub000/internal/events"
	"github.com/PilotDataPlatform/dataset-sub000/internal/platform/dbctx"
)

func (s *Service) walk(ctx context.Context, parent *domain.Item) ([]*domain.Item, error) {
	return s.meta.GetSubtree(ctx, parent.ID)
}

func dottedToSlash(path string) string { return strings.ReplaceAll(path, ".", "/") }

// lockTargets pairs each accepted root with its (possibly rewritten) target
// name, for lock planning.
func lockTargets(oks []*accepted) []lock.Target {
	targets := make([]lock.Target, 0, len(oks))
	for _, a := range oks {
		targets = append(targets, lock.Target{Item: a.item, TargetName: a.targetName})
	}
	return targets
}

func (s *Service) jobFor(a *accepted, action, sessionID, datasetCode, operator string, datasetID uuid.UUID) domain.JobRecord {
	return domain.JobRecord{
		SessionID: sessionID,
		TaskID:    s.taskID(action, datasetID),
		JobID:     a.item.ID.String(),
		Source:    a.item.DisplayPath(),
		Action:    action,
		Code:      datasetCode,
		Operator:  operator,
	}
}

func (s *Service) cancelJobs(ctx context.Context, jobsToCancel []domain.JobRecord, cause error) {
	payload := map[string]any{"error": cause.Error()}
	for _, job := range jobsToCancel {
		if err := s.tracker.Cancel(ctx, job, payload); err != nil {
			s.log.Error("Failed to cancel job", "task_id", job.TaskID, "job_id", job.JobID, "error", err)
		}
	}
}

func (s *Service) runImport(ctx context.Context, ds *domain.Dataset, oks []*accepted, in ImportInput) {
	jobRecords := make([]domain.JobRecord, len(oks))
	for i, a := range oks {
		jobRecords[i] = s.jobFor(a, domain.ActionImport, in.SessionID, ds.Code, in.Operator, ds.ID)
		if err := s.tracker.Init(ctx, jobRecords[i]); err != nil {
			s.log.Error("Failed to init job", "job_id", jobRecords[i].JobID, "error", err)
		}
	}

	coord := lock.NewCoordinator(s.log, s.locks)
	entries, err := lock.PlanImport(ctx, s.walk, lockTargets(oks), in.ProjectCode, ds.Code, s.cfg.RootFolder)
	if err == nil {
		err = coord.AcquireAll(ctx, entries)
	}
	if err != nil {
		s.log.Error("Import aborted before work started", "dataset", ds.Code, "error", err)
		s.cancelJobs(ctx, jobRecords, err)
		return
	}
	defer coord.ReleaseAll(ctx)

	var numFiles, totalBytes int64
	for i, a := range oks {
		if err := s.tracker.Running(ctx, jobRecords[i]); err != nil {
			s.log.Error("Failed to mark job running", "job_id", jobRecords[i].JobID, "error", err)
		}
		newItem, nf, nb, err := s.copyTree(ctx, a.item, a.targetName, s.cfg.RootFolder, nil, ds, in.Operator)
		if err != nil {
			s.log.Error("Import failed", "dataset", ds.Code, "item", a.item.ID, "error", err)
			s.cancelJobs(ctx, jobRecords[i:], err)
			return
		}
		numFiles += nf
		totalBytes += nb
		if err := s.tracker.Finish(ctx, jobRecords[i], newItem); err != nil {
			s.log.Error("Failed to finish job", "job_id", jobRecords[i].JobID, "error", err)
		}
	}

	for _, a := range oks {
		s.emitItemEvent(ctx, events.ItemActivity{
			ActivityType:   events.ActivityImport,
			ItemID:         a.item.ID.String(),
			ItemType:       a.item.Type,
			ItemName:       a.targetName,
			ItemParentPath: s.cfg.RootFolder,
			ContainerCode:  ds.Code,
			ContainerType:  domain.ContainerTypeDataset,
			Zone:           s.cfg.CoreZone,
			User:           in.Operator,
			ImportedFrom:   events.StrPtr(in.ProjectCode),
		})
	}

	dbc := dbctx.Context{Ctx: ctx}
	if err := s.datasets.AddToAggregates(dbc, ds.ID, numFiles, totalBytes); err != nil {
		s.log.Error("Failed to update aggregates after import", "dataset", ds.Code, "error", err)
	}
	if err := s.datasets.SetProjectID(dbc, ds.ID, in.ProjectID); err != nil {
		s.log.Error("Failed to pin project on dataset", "dataset", ds.Code, "error", err)
	}

	s.relayBusEvent(ctx, domain.ActionImport, map[string]any{
		"dataset_code": ds.Code,
		"operator":     in.Operator,
		"source":       in.ProjectCode,
		"num_of_files": numFiles,
		"total_size":   totalBytes,
	})
}

func (s *Service) runMove(ctx context.Context, ds *domain.Dataset, oks []*accepted, targetPath string, in MoveInput) {
	jobRecords := make([]domain.JobRecord, len(oks))
	for i, a := range oks {
		jobRecords[i] = s.jobFor(a, domain.ActionMove, in.SessionID, ds.Code, in.Operator, ds.ID)
		if err := s.tracker.Init(ctx, jobRecords[i]); err != nil {
			s.log.Error("Failed to init job", "job_id", jobRecords[i].JobID, "error", err)
		}
	}

	coord := lock.NewCoordinator(s.log, s.locks)
	entries, err := lock.PlanMoveRename(ctx, s.walk, lockTargets(oks), ds.Code, dottedToSlash(targetPath))
	if err == nil {
		err = coord.AcquireAll(ctx, entries)
	}
	if err != nil {
		s.log.Error("Move aborted before work started", "dataset", ds.Code, "error", err)
		s.cancelJobs(ctx, jobRecords, err)
		return
	}
	defer coord.ReleaseAll(ctx)

	for i, a := range oks {
		if err := s.tracker.Running(ctx, jobRecords[i]); err != nil {
			s.log.Error("Failed to mark job running", "job_id", jobRecords[i].JobID, "error", err)
		}
		newItem, _, _, err := s.copyTree(ctx, a.item, a.targetName, targetPath, nil, ds, in.Operator)
		if err == nil {
			_, _, err = s.deleteTree(ctx, a.item)
		}
		if err != nil {
			s.log.Error("Move failed", "dataset", ds.Code, "item", a.item.ID, "error", err)
			s.cancelJobs(ctx, jobRecords[i:], err)
			return
		}
		if err := s.tracker.Finish(ctx, jobRecords[i], newItem); err != nil {
			s.log.Error("Failed to finish job", "job_id", jobRecords[i].JobID, "error", err)
		}

		s.emitItemEvent(ctx, events.ItemActivity{
			ActivityType:   events.ActivityUpdate,
			ItemID:         a.item.ID.String(),
			ItemType:       a.item.Type,
			ItemName:       a.targetName,
			ItemParentPath: targetPath,
			ContainerCode:  ds.Code,
			ContainerType:  domain.ContainerTypeDataset,
			Zone:           s.cfg.CoreZone,
			User:           in.Operator,
			Changes: []events.Change{{
				ItemProperty: "parent_path",
				OldValue:     events.StrPtr(a.item.ParentPath),
				NewValue:     events.StrPtr(targetPath),
			}},
		})
	}

	s.relayBusEvent(ctx, domain.ActionMove, map[string]any{
		"dataset_code": ds.Code,
		"operator":     in.Operator,
		"target_path":  targetPath,
	})
}

func (s *Service) runRename(ctx context.Context, ds *domain.Dataset, item *domain.Item, in RenameInput) {
	a := &accepted{item: item, targetName: in.NewName}
	job := s.jobFor(a, domain.ActionRename, in.SessionID, ds.Code, in.Operator, ds.ID)
	if err := s.tracker.Init(ctx, job); err != nil {
		s.log.Error("Failed to init job", "job_id", job.JobID, "error", err)
	}

	coord := lock.NewCoordinator(s.log, s.locks)
	entries, err := lock.PlanMoveRename(ctx, s.walk, []lock.Target{{Item: item, TargetName: in.NewName}}, ds.Code, dottedToSlash(item.ParentPath))
	if err == nil {
		err = coord.AcquireAll(ctx, entries)
	}
	if err != nil {
		s.log.Error("Rename aborted before work started", "dataset", ds.Code, "error", err)
		s.cancelJobs(ctx, []domain.JobRecord{job}, err)
		return
	}
	defer coord.ReleaseAll(ctx)

	if err := s.tracker.Running(ctx, job); err != nil {
		s.log.Error("Failed to mark job running", "job_id", job.JobID, "error", err)
	}
	newItem, _, _, err := s.copyTree(ctx, item, in.NewName, item.ParentPath, item.ParentID, ds, in.Operator)
	if err == nil {
		_, _, err = s.deleteTree(ctx, item)
	}
	if err != nil {
		s.log.Error("Rename failed", "dataset", ds.Code, "item", item.ID, "error", err)
		s.cancelJobs(ctx, []domain.JobRecord{job}, err)
		return
	}
	if err := s.tracker.Finish(ctx, job, newItem); err != nil {
		s.log.Error("Failed to finish job", "job_id", job.JobID, "error", err)
	}

	s.emitItemEvent(ctx, events.ItemActivity{
		ActivityType:   events.ActivityUpdate,
		ItemID:         item.ID.String(),
		ItemType:       item.Type,
		ItemName:       in.NewName,
		ItemParentPath: item.ParentPath,
		ContainerCode:  ds.Code,
		ContainerType:  domain.ContainerTypeDataset,
		Zone:           s.cfg.CoreZone,
		User:           in.Operator,
		Changes: []events.Change{{
			ItemProperty: "name",
			OldValue:     events.StrPtr(item.Name),
			NewValue:     events.StrPtr(in.NewName),
		}},
	})

	s.relayBusEvent(ctx, domain.ActionRename, map[string]any{
		"dataset_code": ds.Code,
		"operator":     in.Operator,
		"old_name":     item.Name,
		"new_name":     in.NewName,
	})
}

func (s *Service) runDelete(ctx context.Context, ds *domain.Dataset, oks []*accepted, in DeleteInput) {
	jobRecords := make([]domain.JobRecord, len(oks))
	for i, a := range oks {
		jobRecords[i] = s.jobFor(a, domain.ActionDelete, in.SessionID, ds.Code, in.Operator, ds.ID)
		if err := s.tracker.Init(ctx, jobRecords[i]); err != nil {
			s.log.Error("Failed to init job", "job_id", jobRecords[i].JobID, "error", err)
		}
	}

	roots := make([]*domain.Item, len(oks))
	for i, a := range oks {
		roots[i] = a.item
	}
	coord := lock.NewCoordinator(s.log, s.locks)
	entries, err := lock.PlanDelete(ctx, s.walk, roots, ds.Code)
	if err == nil {
		err = coord.AcquireAll(ctx, entries)
	}
	if err != nil {
		s.log.Error("Delete aborted before work started", "dataset", ds.Code, "error", err)
		s.cancelJobs(ctx, jobRecords, err)
		return
	}
	defer coord.ReleaseAll(ctx)

	var numFiles, totalBytes int64
	for i, a := range oks {
		if err := s.tracker.Running(ctx, jobRecords[i]); err != nil {
			s.log.Error("Failed to mark job running", "job_id", jobRecords[i].JobID, "error", err)
		}
		nf, nb, err := s.deleteTree(ctx, a.item)
		if err != nil {
			s.log.Error("Delete failed", "dataset", ds.Code, "item", a.item.ID, "error", err)
			s.cancelJobs(ctx, jobRecords[i:], err)
			return
		}
		numFiles += nf
		totalBytes += nb
		if err := s.tracker.Finish(ctx, jobRecords[i], a.item); err != nil {
			s.log.Error("Failed to finish job", "job_id", jobRecords[i].JobID, "error", err)
		}

		s.emitItemEvent(ctx, events.ItemActivity{
			ActivityType:   events.ActivityDelete,
			ItemID:         a.item.ID.String(),
			ItemType:       a.item.Type,
			ItemName:       a.item.Name,
			ItemParentPath: a.item.ParentPath,
			ContainerCode:  ds.Code,
			ContainerType:  domain.ContainerTypeDataset,
			Zone:           s.cfg.CoreZone,
			User:           in.Operator,
		})
	}

	if err := s.datasets.AddToAggregates(dbctx.Context{Ctx: ctx}, ds.ID, -numFiles, -totalBytes); err != nil {
		s.log.Error("Failed to update aggregates after delete", "dataset", ds.Code, "error", err)
	}

	s.relayBusEvent(ctx, domain.ActionDelete, map[string]any{
		"dataset_code": ds.Code,
		"operator":     in.Operator,
		"num_of_files": numFiles,
		"total_size":   totalBytes,
	})
}

// copyTree copies one subtree into the dataset bucket. For files the
// metadata item is created first, carrying the computed location, then the
// object is copied. Only the returned top-level item is reported back to the
// tracker; descendants stay silent.
func (s *Service) copyTree(ctx context.Context, src *domain.Item, targetName, dstParentPath string, dstParentID *uuid.UUID, ds *domain.Dataset, operator string) (*domain.Item, int64, int64, error) {
	if src.Archived {
		return nil, 0, 0, nil
	}

	if src.IsFile() {
		key := dottedToSlash(dstParentPath) + "/" + targetName
		created, err := s.meta.CreateItem(ctx, metadata.CreateItemPayload{
			Parent:        dstParentID,
			ParentPath:    dstParentPath,
			Type:          domain.ItemTypeFile,
			Zone:          s.cfg.CoreZone,
			Name:          targetName,
			Size:          src.Size,
			Owner:         operator,
			ContainerCode: ds.Code,
			ContainerType: domain.ContainerTypeDataset,
			LocationURI:   s.store.LocationURI(ds.Code, key),
		})
		if err != nil {
			return nil, 0, 0, err
		}
		srcBucket, srcKey, err := objectstore.ParseLocationURI(src.Storage.LocationURI)
		if err != nil {
			return nil, 0, 0, err
		}
		if err := s.store.Copy(ctx, ds.Code, key, srcBucket, srcKey); err != nil {
			return nil, 0, 0, err
		}
		return created, 1, src.Size, nil
	}

	created, err := s.meta.CreateItem(ctx, metadata.CreateItemPayload{
		Parent:        dstParentID,
		ParentPath:    dstParentPath,
		Type:          domain.ItemTypeFolder,
		Zone:          s.cfg.CoreZone,
		Name:          targetName,
		Owner:         operator,
		ContainerCode: ds.Code,
		ContainerType: domain.ContainerTypeDataset,
	})
	if err != nil {
		return nil, 0, 0, err
	}

	children, err := s.walk(ctx, src)
	if err != nil {
		return nil, 0, 0, err
	}
	var numFiles, totalBytes int64
	childPath := created.DottedChildPath()
	for _, child := range children {
		_, nf, nb, err := s.copyTree(ctx, child, child.Name, childPath, &created.ID, ds, operator)
		if err != nil {
			return nil, 0, 0, err
		}
		numFiles += nf
		totalBytes += nb
	}
	return created, numFiles, totalBytes, nil
}

// deleteTree removes one subtree. Files lose their object first, then their
// metadata item; folders recurse before removing themselves. Archived items
// are skipped entirely.
func (s *Service) deleteTree(ctx context.Context, item *domain.Item) (int64, int64, error) {
	if item.Archived {
		return 0, 0, nil
	}

	if item.IsFile() {
		bucket, key, err := objectstore.ParseLocationURI(item.Storage.LocationURI)
		if err != nil {
			return 0, 0, err
		}
		if err := s.store.Delete(ctx, bucket, key); err != nil {
			return 0, 0, err
		}
		if err := s.meta.DeleteItem(ctx, item.ID); err != nil {
			return 0, 0, err
		}
		return 1, item.Size, nil
	}

	children, err := s.walk(ctx, item)
	if err != nil {
		return 0, 0, err
	}
	var numFiles, totalBytes int64
	for _, child := range children {
		nf, nb, err := s.deleteTree(ctx, child)
		if err != nil {
			return 0, 0, err
		}
		numFiles += nf
		totalBytes += nb
	}
	if err := s.meta.DeleteItem(ctx, item.ID); err != nil {
		return 0, 0, err
	}
	return numFiles, totalBytes, nil
}

func (s *Service) emitItemEvent(ctx context.Context, msg events.ItemActivity) {
	if err := s.events.PublishItemActivity(ctx, msg); err != nil {
		s.log.Error("Failed to publish item activity", "activity_type", msg.ActivityType, "item", msg.ItemID, "error", err)
	}
}

func (s *Service) relayBusEvent(ctx context.Context, action string, payload map[string]any) {
	if err := s.queue.SendDatasetAction(ctx, action, payload); err != nil {
		s.log.Error("Failed to relay activity to legacy bus", "action", action, "error", err)
	}
}
