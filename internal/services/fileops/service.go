package fileops

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/PilotDataPlatform/dataset-sub000/internal/clients/lock"
	"github.com/PilotDataPlatform/dataset-sub000/internal/clients/metadata"
	"github.com/PilotDataPlatform/dataset-sub000/internal/clients/objectstore"
	"github.com/PilotDataPlatform/dataset-sub000/internal/clients/project"
	"github.com/PilotDataPlatform/dataset-sub000/internal/clients/queue"
	"github.com/PilotDataPlatform/dataset-sub000/internal/core/cerr"
	"github.com/PilotDataPlatform/dataset-sub000/internal/data/repos"
	"github.com/PilotDataPlatform/dataset-sub000/internal/domain"
	"github.com/PilotDataPlatform/dataset-sub000/internal/events"
	"github.com/PilotDataPlatform/dataset-sub000/internal/jobs"
	"github.com/PilotDataPlatform/dataset-sub000/internal/platform/dbctx"
	"github.com/PilotDataPlatform/dataset-sub000/internal/platform/logger"
)

// Feedback values attached to items rejected (or renamed) during batch
// validation.
const (
	FeedbackExists               = "exists"
	FeedbackNotExists            = "not_exists"
	FeedbackUnauthorized         = "unauthorized"
	FeedbackDuplicate            = "duplicate"
	FeedbackNotCoreFile          = "not_core_file"
	FeedbackDuplicateBatchRename = "duplicate_in_same_batch_rename"
)

type Config struct {
	RootFolder string
	CoreZone   int
}

// TaskTracker is the slice of the task KV store the engine drives;
// *tasks.Tracker satisfies it.
type TaskTracker interface {
	Init(ctx context.Context, job domain.JobRecord) error
	Running(ctx context.Context, job domain.JobRecord) error
	Finish(ctx context.Context, job domain.JobRecord, payload interface{}) error
	Cancel(ctx context.Context, job domain.JobRecord, errPayload interface{}) error
}

// Service validates item batches synchronously and runs the object-store and
// metadata mutations as background jobs.
type Service struct {
	log        *logger.Logger
	cfg        Config
	datasets   repos.DatasetRepo
	meta       metadata.Gateway
	store      objectstore.Store
	locks      lock.Client
	tracker    TaskTracker
	projects   project.Gateway
	queue      queue.Client
	events     events.Publisher
	dispatcher *jobs.Dispatcher
}

func New(log *logger.Logger, cfg Config, datasets repos.DatasetRepo, meta metadata.Gateway, store objectstore.Store, locks lock.Client, tracker TaskTracker, projects project.Gateway, q queue.Client, pub events.Publisher, dispatcher *jobs.Dispatcher) *Service {
	return &Service{
		log:        log.With("service", "FileOpsService"),
		cfg:        cfg,
		datasets:   datasets,
		meta:       meta,
		store:      store,
		locks:      locks,
		tracker:    tracker,
		projects:   projects,
		queue:      q,
		events:     pub,
		dispatcher: dispatcher,
	}
}

// ItemResult reports one item's fate in the synchronous response.
type ItemResult struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Feedback string    `json:"feedback"`
}

type BatchResponse struct {
	Processing []ItemResult `json:"processing"`
	Ignored    []ItemResult `json:"ignored"`
	TaskID     string       `json:"task_id"`
}

// accepted pairs an item with the name it will carry at the target; batch
// collisions rewrite the name before the background work starts.
type accepted struct {
	item       *domain.Item
	targetName string
	feedback   string
}

func (s *Service) taskID(action string, datasetID uuid.UUID) string {
	return fmt.Sprintf("%s-%s", action, datasetID)
}

// validateBatch resolves ids against the metadata service and applies the
// shared acceptance rules: the item must exist, sit in the expected
// container, and not collide by name inside the batch. Colliding items stay
// accepted under their rewritten display-path name.
func (s *Service) validateBatch(ctx context.Context, ids []uuid.UUID, containerType, containerCode string) ([]*accepted, []ItemResult, error) {
	var oks []*accepted
	var ignored []ItemResult

	found, err := s.meta.BatchGet(ctx, ids)
	if err != nil {
		return nil, nil, err
	}
	byID := make(map[uuid.UUID]*domain.Item, len(found))
	for _, item := range found {
		byID[item.ID] = item
	}

	for _, id := range ids {
		item, ok := byID[id]
		if !ok {
			ignored = append(ignored, ItemResult{ID: id, Feedback: FeedbackNotExists})
			continue
		}
		// Archived items report unauthorized, same as wrong-container items,
		// rather than leaking that the id once existed.
		if item.ContainerType != containerType || item.ContainerCode != containerCode || item.Archived {
			ignored = append(ignored, ItemResult{ID: id, Name: item.Name, Feedback: FeedbackUnauthorized})
			continue
		}
		oks = append(oks, &accepted{item: item, targetName: item.Name, feedback: FeedbackExists})
	}

	byName := map[string][]*accepted{}
	for _, a := range oks {
		byName[a.item.Name] = append(byName[a.item.Name], a)
	}
	for _, group := range byName {
		if len(group) < 2 {
			continue
		}
		for _, a := range group {
			a.targetName = strings.ReplaceAll(a.item.DisplayPath(), "/", "_")
			a.feedback = FeedbackDuplicateBatchRename
		}
	}
	return oks, ignored, nil
}

// dropTargetDuplicates moves accepted items that already have a same-named
// sibling under the target parent into the ignored list.
func (s *Service) dropTargetDuplicates(ctx context.Context, oks []*accepted, datasetCode, targetParentPath string) ([]*accepted, []ItemResult, error) {
	siblings, _, err := s.meta.Search(ctx, metadata.SearchQuery{
		ContainerCode: datasetCode,
		ContainerType: domain.ContainerTypeDataset,
		ParentPath:    targetParentPath,
	})
	if err != nil {
		return nil, nil, err
	}
	names := map[string]bool{}
	for _, sib := range siblings {
		if !sib.Archived {
			names[sib.Name] = true
		}
	}

	var kept []*accepted
	var ignored []ItemResult
	for _, a := range oks {
		if names[a.targetName] {
			ignored = append(ignored, ItemResult{ID: a.item.ID, Name: a.item.Name, Feedback: FeedbackDuplicate})
			continue
		}
		kept = append(kept, a)
	}
	return kept, ignored, nil
}

func toResults(oks []*accepted) []ItemResult {
	results := make([]ItemResult, 0, len(oks))
	for _, a := range oks {
		results = append(results, ItemResult{ID: a.item.ID, Name: a.targetName, Feedback: a.feedback})
	}
	return results
}

type ImportInput struct {
	SourceList  []uuid.UUID
	ProjectID   uuid.UUID
	ProjectCode string
	Operator    string
	SessionID   string
}

// Import validates the batch against the source project and dispatches the
// copy into the dataset bucket.
func (s *Service) Import(ctx context.Context, datasetID uuid.UUID, in ImportInput) (*BatchResponse, error) {
	ds, err := s.datasets.GetByID(dbctx.Context{Ctx: ctx}, datasetID)
	if err != nil {
		return nil, err
	}
	if ds.ProjectID != nil && *ds.ProjectID != in.ProjectID {
		return nil, cerr.Forbiddenf("dataset %q is already bound to another project", ds.Code)
	}
	if in.ProjectCode == "" {
		p, err := s.projects.GetProject(ctx, in.ProjectID)
		if err != nil {
			return nil, err
		}
		in.ProjectCode = p.Code
	}

	oks, ignored, err := s.validateBatch(ctx, in.SourceList, domain.ContainerTypeProject, in.ProjectCode)
	if err != nil {
		return nil, err
	}

	var kept []*accepted
	for _, a := range oks {
		if a.item.Zone != s.cfg.CoreZone {
			ignored = append(ignored, ItemResult{ID: a.item.ID, Name: a.item.Name, Feedback: FeedbackNotCoreFile})
			continue
		}
		kept = append(kept, a)
	}
	oks = kept

	oks, dups, err := s.dropTargetDuplicates(ctx, oks, ds.Code, s.cfg.RootFolder)
	if err != nil {
		return nil, err
	}
	ignored = append(ignored, dups...)

	resp := &BatchResponse{
		Processing: toResults(oks),
		Ignored:    ignored,
		TaskID:     s.taskID(domain.ActionImport, datasetID),
	}
	if len(oks) > 0 {
		s.dispatcher.Submit("import-"+ds.Code, func(bg context.Context) {
			s.runImport(bg, ds, oks, in)
		})
	}
	return resp, nil
}

type MoveInput struct {
	SourceList []uuid.UUID
	TargetID   uuid.UUID
	Operator   string
	SessionID  string
}

// Move validates the batch and the target folder and dispatches the
// copy-then-delete inside the dataset bucket.
func (s *Service) Move(ctx context.Context, datasetID uuid.UUID, in MoveInput) (*BatchResponse, error) {
	ds, err := s.datasets.GetByID(dbctx.Context{Ctx: ctx}, datasetID)
	if err != nil {
		return nil, err
	}

	targetPath := s.cfg.RootFolder
	var target *domain.Item
	if in.TargetID != datasetID {
		target, err = s.meta.GetItem(ctx, in.TargetID)
		if err != nil || target.ContainerCode != ds.Code || !target.IsFolder() {
			return nil, cerr.NotFoundf("move target %s not found in dataset %q", in.TargetID, ds.Code)
		}
		targetPath = target.DottedChildPath()
	}

	oks, ignored, err := s.validateBatch(ctx, in.SourceList, domain.ContainerTypeDataset, ds.Code)
	if err != nil {
		return nil, err
	}

	// Moving a folder into itself or its own subtree would orphan it.
	var kept []*accepted
	for _, a := range oks {
		childPrefix := a.item.DottedChildPath()
		if a.item.ID == in.TargetID || targetPath == childPrefix || strings.HasPrefix(targetPath, childPrefix+".") {
			ignored = append(ignored, ItemResult{ID: a.item.ID, Name: a.item.Name, Feedback: FeedbackUnauthorized})
			continue
		}
		kept = append(kept, a)
	}
	oks = kept

	oks, dups, err := s.dropTargetDuplicates(ctx, oks, ds.Code, targetPath)
	if err != nil {
		return nil, err
	}
	ignored = append(ignored, dups...)

	resp := &BatchResponse{
		Processing: toResults(oks),
		Ignored:    ignored,
		TaskID:     s.taskID(domain.ActionMove, datasetID),
	}
	if len(oks) > 0 {
		s.dispatcher.Submit("move-"+ds.Code, func(bg context.Context) {
			s.runMove(bg, ds, oks, targetPath, in)
		})
	}
	return resp, nil
}

type RenameInput struct {
	NewName   string
	Operator  string
	SessionID string
}

// Rename gives one item a new name by copying it under the new name and
// deleting the original.
func (s *Service) Rename(ctx context.Context, datasetID, itemID uuid.UUID, in RenameInput) (*BatchResponse, error) {
	ds, err := s.datasets.GetByID(dbctx.Context{Ctx: ctx}, datasetID)
	if err != nil {
		return nil, err
	}
	item, err := s.meta.GetItem(ctx, itemID)
	if err != nil {
		return &BatchResponse{
			Ignored: []ItemResult{{ID: itemID, Feedback: FeedbackNotExists}},
			TaskID:  s.taskID(domain.ActionRename, datasetID),
		}, nil
	}
	if item.ContainerCode != ds.Code || item.ContainerType != domain.ContainerTypeDataset {
		return &BatchResponse{
			Ignored: []ItemResult{{ID: itemID, Name: item.Name, Feedback: FeedbackUnauthorized}},
			TaskID:  s.taskID(domain.ActionRename, datasetID),
		}, nil
	}

	siblings, _, err := s.meta.Search(ctx, metadata.SearchQuery{
		ContainerCode: ds.Code,
		ContainerType: domain.ContainerTypeDataset,
		ParentPath:    item.ParentPath,
	})
	if err != nil {
		return nil, err
	}
	for _, sib := range siblings {
		if sib.Name == in.NewName && !sib.Archived {
			return &BatchResponse{
				Ignored: []ItemResult{{ID: itemID, Name: item.Name, Feedback: FeedbackDuplicate}},
				TaskID:  s.taskID(domain.ActionRename, datasetID),
			}, nil
		}
	}

	resp := &BatchResponse{
		Processing: []ItemResult{{ID: item.ID, Name: in.NewName, Feedback: FeedbackExists}},
		TaskID:     s.taskID(domain.ActionRename, datasetID),
	}
	s.dispatcher.Submit("rename-"+ds.Code, func(bg context.Context) {
		s.runRename(bg, ds, item, in)
	})
	return resp, nil
}

type DeleteInput struct {
	SourceList []uuid.UUID
	Operator   string
	SessionID  string
}

// Delete removes the given subtrees from both metadata and the object store.
func (s *Service) Delete(ctx context.Context, datasetID uuid.UUID, in DeleteInput) (*BatchResponse, error) {
	ds, err := s.datasets.GetByID(dbctx.Context{Ctx: ctx}, datasetID)
	if err != nil {
		return nil, err
	}
	oks, ignored, err := s.validateBatch(ctx, in.SourceList, domain.ContainerTypeDataset, ds.Code)
	if err != nil {
		return nil, err
	}

	resp := &BatchResponse{
		Processing: toResults(oks),
		Ignored:    ignored,
		TaskID:     s.taskID(domain.ActionDelete, datasetID),
	}
	if len(oks) > 0 {
		s.dispatcher.Submit("delete-"+ds.Code, func(bg context.Context) {
			s.runDelete(bg, ds, oks, in)
		})
	}
	return resp, nil
}
