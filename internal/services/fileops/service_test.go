package fileops

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/PilotDataPlatform/dataset-sub000/internal/clients/metadata"
	"github.com/PilotDataPlatform/dataset-sub000/internal/clients/project"
	"github.com/PilotDataPlatform/dataset-sub000/internal/clients/queue"
	"github.com/PilotDataPlatform/dataset-sub000/internal/core/cerr"
	"github.com/PilotDataPlatform/dataset-sub000/internal/domain"
	"github.com/PilotDataPlatform/dataset-sub000/internal/events"
	"github.com/PilotDataPlatform/dataset-sub000/internal/jobs"
	"github.com/PilotDataPlatform/dataset-sub000/internal/platform/dbctx"
	"github.com/PilotDataPlatform/dataset-sub000/internal/platform/logger"
)

type fakeMeta struct {
	mu      sync.Mutex
	items   map[uuid.UUID]*domain.Item
	created []metadata.CreateItemPayload
	deleted []uuid.UUID
}

func newFakeMeta(items ...*domain.Item) *fakeMeta {
	m := &fakeMeta{items: map[uuid.UUID]*domain.Item{}}
	for _, item := range items {
		m.items[item.ID] = item
	}
	return m
}

func (m *fakeMeta) GetItem(_ context.Context, id uuid.UUID) (*domain.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if item, ok := m.items[id]; ok {
		return item, nil
	}
	return nil, cerr.NotFoundf("item %s not found", id)
}

func (m *fakeMeta) Search(_ context.Context, q metadata.SearchQuery) ([]*domain.Item, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Item
	for _, item := range m.items {
		if item.ContainerCode == q.ContainerCode && item.ContainerType == q.ContainerType {
			if q.ParentPath == "" || item.ParentPath == q.ParentPath {
				out = append(out, item)
			}
		}
	}
	return out, len(out), nil
}

func (m *fakeMeta) CreateItem(_ context.Context, payload metadata.CreateItemPayload) (*domain.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, payload)
	item := &domain.Item{
		ID:            uuid.New(),
		ParentID:      payload.Parent,
		ParentPath:    payload.ParentPath,
		Type:          payload.Type,
		Zone:          payload.Zone,
		Name:          payload.Name,
		Size:          payload.Size,
		Owner:         payload.Owner,
		ContainerCode: payload.ContainerCode,
		ContainerType: payload.ContainerType,
		Storage:       domain.ItemStorage{LocationURI: payload.LocationURI},
	}
	m.items[item.ID] = item
	return item, nil
}

func (m *fakeMeta) DeleteItem(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, id)
	delete(m.items, id)
	return nil
}

func (m *fakeMeta) GetSubtree(_ context.Context, startID uuid.UUID) ([]*domain.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Item
	for _, item := range m.items {
		if item.ParentID != nil && *item.ParentID == startID {
			out = append(out, item)
		}
	}
	return out, nil
}

func (m *fakeMeta) BatchGet(_ context.Context, ids []uuid.UUID) ([]*domain.Item, error) {
	var out []*domain.Item
	for _, id := range ids {
		if item, ok := m.items[id]; ok {
			out = append(out, item)
		}
	}
	return out, nil
}

type copyCall struct{ dstBucket, dstKey, srcBucket, srcKey string }

type fakeStore struct {
	mu      sync.Mutex
	copies  []copyCall
	deletes []string
}

func (f *fakeStore) Copy(_ context.Context, dstBucket, dstKey, srcBucket, srcKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.copies = append(f.copies, copyCall{dstBucket, dstKey, srcBucket, srcKey})
	return nil
}

func (f *fakeStore) Delete(_ context.Context, bucket, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, bucket+"/"+key)
	return nil
}

func (f *fakeStore) GetStream(_ context.Context, _, _ string, _ int64) (io.ReadCloser, int64, error) {
	return nil, 0, nil
}
func (f *fakeStore) FGet(_ context.Context, _, _, _ string) error              { return nil }
func (f *fakeStore) FPut(_ context.Context, _, _, _ string) error              { return nil }
func (f *fakeStore) MakeDatasetBucket(_ context.Context, _, _ string) error    { return nil }
func (f *fakeStore) LocationURI(bucket, key string) string                     { return "minio://host/" + bucket + "/" + key }

type fakeLocks struct {
	mu       sync.Mutex
	acquired []string
	released []string
}

func (f *fakeLocks) Acquire(_ context.Context, key, op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acquired = append(f.acquired, op+":"+key)
	return nil
}

func (f *fakeLocks) Release(_ context.Context, key, op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, op+":"+key)
	return nil
}

type fakeTracker struct {
	mu          sync.Mutex
	transitions []string
}

func (f *fakeTracker) record(job domain.JobRecord, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transitions = append(f.transitions, status+":"+job.JobID)
}

func (f *fakeTracker) Init(_ context.Context, job domain.JobRecord) error {
	f.record(job, domain.TaskStatusInit)
	return nil
}
func (f *fakeTracker) Running(_ context.Context, job domain.JobRecord) error {
	f.record(job, domain.TaskStatusRunning)
	return nil
}
func (f *fakeTracker) Finish(_ context.Context, job domain.JobRecord, _ interface{}) error {
	f.record(job, domain.TaskStatusFinish)
	return nil
}
func (f *fakeTracker) Cancel(_ context.Context, job domain.JobRecord, _ interface{}) error {
	f.record(job, domain.TaskStatusCancelled)
	return nil
}

type fakeDatasetRepo struct {
	mu         sync.Mutex
	dataset    *domain.Dataset
	deltaFiles int64
	deltaBytes int64
	projectID  *uuid.UUID
}

func (f *fakeDatasetRepo) Create(_ dbctx.Context, ds *domain.Dataset) (*domain.Dataset, error) {
	return ds, nil
}

func (f *fakeDatasetRepo) GetByID(_ dbctx.Context, id uuid.UUID) (*domain.Dataset, error) {
	if f.dataset != nil && f.dataset.ID == id {
		return f.dataset, nil
	}
	return nil, cerr.NotFoundf("dataset %s not found", id)
}

func (f *fakeDatasetRepo) GetByCode(_ dbctx.Context, code string) (*domain.Dataset, error) {
	return nil, cerr.NotFoundf("dataset %q not found", code)
}

func (f *fakeDatasetRepo) ListByCreator(_ dbctx.Context, _ string, _, _ int, _, _ string) ([]*domain.Dataset, int64, error) {
	return nil, 0, nil
}

func (f *fakeDatasetRepo) UpdateFields(_ dbctx.Context, _ uuid.UUID, _ map[string]any) error {
	return nil
}

func (f *fakeDatasetRepo) AddToAggregates(_ dbctx.Context, _ uuid.UUID, deltaFiles, deltaSize int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deltaFiles += deltaFiles
	f.deltaBytes += deltaSize
	return nil
}

func (f *fakeDatasetRepo) SetProjectID(_ dbctx.Context, _, projectID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.projectID = &projectID
	return nil
}

type fakePublisher struct {
	mu       sync.Mutex
	itemMsgs []events.ItemActivity
}

func (f *fakePublisher) PublishDatasetActivity(_ context.Context, _ events.DatasetActivity) error {
	return nil
}

func (f *fakePublisher) PublishItemActivity(_ context.Context, msg events.ItemActivity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.itemMsgs = append(f.itemMsgs, msg)
	return nil
}

func (f *fakePublisher) Ping(_ context.Context) error { return nil }
func (f *fakePublisher) Close() error                 { return nil }

type fakeQueue struct {
	mu      sync.Mutex
	actions []string
}

func (q *fakeQueue) SendMessage(_ context.Context, _ queue.Envelope) error { return nil }
func (q *fakeQueue) SendNotification(_ context.Context, _ map[string]any) error { return nil }
func (q *fakeQueue) RequestBIDSValidation(_ context.Context, _, _, _ string) error { return nil }

func (q *fakeQueue) SendDatasetAction(_ context.Context, action string, _ map[string]any) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.actions = append(q.actions, action)
	return nil
}

type fixture struct {
	svc        *Service
	meta       *fakeMeta
	store      *fakeStore
	locks      *fakeLocks
	tracker    *fakeTracker
	datasets   *fakeDatasetRepo
	projects   *fakeProjects
	queue      *fakeQueue
	pub        *fakePublisher
	dispatcher *jobs.Dispatcher
}

type fakeProjects struct {
	code  string
	calls int
}

func (p *fakeProjects) GetProject(_ context.Context, id uuid.UUID) (*project.Project, error) {
	p.calls++
	return &project.Project{ID: id, Code: p.code}, nil
}

func newFixture(t *testing.T, ds *domain.Dataset, items ...*domain.Item) *fixture {
	t.Helper()
	log, err := logger.New("dev")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	f := &fixture{
		meta:     newFakeMeta(items...),
		store:    &fakeStore{},
		locks:    &fakeLocks{},
		tracker:  &fakeTracker{},
		datasets: &fakeDatasetRepo{dataset: ds},
		projects: &fakeProjects{code: "testproject"},
		queue:    &fakeQueue{},
		pub:      &fakePublisher{},
	}
	f.dispatcher = jobs.NewDispatcher(context.Background(), log, 2)
	f.svc = New(log, Config{RootFolder: "data", CoreZone: 1}, f.datasets, f.meta, f.store, f.locks, f.tracker, f.projects, f.queue, f.pub, f.dispatcher)
	return f
}

func projectFile(name, parentPath string, size int64) *domain.Item {
	return &domain.Item{
		ID:            uuid.New(),
		Name:          name,
		ParentPath:    parentPath,
		Type:          domain.ItemTypeFile,
		Zone:          1,
		Size:          size,
		ContainerCode: "testproject",
		ContainerType: domain.ContainerTypeProject,
		Storage:       domain.ItemStorage{LocationURI: "minio://host/core-testproject/" + parentPath + "/" + name},
	}
}

func TestImportHappyPath(t *testing.T) {
	ds := &domain.Dataset{ID: uuid.New(), Code: "ds001"}
	file := projectFile("scan.nii.gz", "raw", 2048)
	f := newFixture(t, ds, file)
	projectID := uuid.New()

	resp, err := f.svc.Import(context.Background(), ds.ID, ImportInput{
		SourceList:  []uuid.UUID{file.ID},
		ProjectID:   projectID,
		ProjectCode: "testproject",
		Operator:    "admin",
		SessionID:   "sess",
	})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if len(resp.Processing) != 1 || resp.Processing[0].Feedback != FeedbackExists {
		t.Fatalf("processing = %+v", resp.Processing)
	}
	f.dispatcher.Wait()

	if len(f.meta.created) != 1 {
		t.Fatalf("created = %+v", f.meta.created)
	}
	created := f.meta.created[0]
	if created.ParentPath != "data" || created.LocationURI != "minio://host/ds001/data/scan.nii.gz" {
		t.Fatalf("created payload = %+v", created)
	}
	if len(f.store.copies) != 1 || f.store.copies[0].dstKey != "data/scan.nii.gz" || f.store.copies[0].srcBucket != "core-testproject" {
		t.Fatalf("copies = %+v", f.store.copies)
	}
	if f.datasets.deltaFiles != 1 || f.datasets.deltaBytes != 2048 {
		t.Fatalf("aggregates = %d files, %d bytes", f.datasets.deltaFiles, f.datasets.deltaBytes)
	}
	if f.datasets.projectID == nil || *f.datasets.projectID != projectID {
		t.Fatalf("project pin = %v", f.datasets.projectID)
	}
	if len(f.locks.released) != len(f.locks.acquired) {
		t.Fatalf("locks leaked: acquired %v released %v", f.locks.acquired, f.locks.released)
	}
	if len(f.pub.itemMsgs) != 1 || f.pub.itemMsgs[0].ActivityType != events.ActivityImport {
		t.Fatalf("events = %+v", f.pub.itemMsgs)
	}
	if f.pub.itemMsgs[0].ImportedFrom == nil || *f.pub.itemMsgs[0].ImportedFrom != "testproject" {
		t.Fatalf("imported_from = %v", f.pub.itemMsgs[0].ImportedFrom)
	}
	if len(f.queue.actions) != 1 || f.queue.actions[0] != domain.ActionImport {
		t.Fatalf("bus actions = %v", f.queue.actions)
	}

	want := []string{"INIT:" + file.ID.String(), "RUNNING:" + file.ID.String(), "FINISH:" + file.ID.String()}
	if len(f.tracker.transitions) != 3 {
		t.Fatalf("transitions = %v", f.tracker.transitions)
	}
	for i := range want {
		if f.tracker.transitions[i] != want[i] {
			t.Fatalf("transitions = %v", f.tracker.transitions)
		}
	}
}

func TestImportResolvesProjectCode(t *testing.T) {
	ds := &domain.Dataset{ID: uuid.New(), Code: "ds001"}
	file := projectFile("scan.nii.gz", "raw", 2048)
	f := newFixture(t, ds, file)

	resp, err := f.svc.Import(context.Background(), ds.ID, ImportInput{
		SourceList: []uuid.UUID{file.ID},
		ProjectID:  uuid.New(),
		Operator:   "admin",
	})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	f.dispatcher.Wait()

	if f.projects.calls != 1 {
		t.Fatalf("project lookups = %d, want 1", f.projects.calls)
	}
	if len(resp.Processing) != 1 {
		t.Fatalf("processing = %+v", resp.Processing)
	}
}

func TestImportRejectsCrossProject(t *testing.T) {
	otherProject := uuid.New()
	ds := &domain.Dataset{ID: uuid.New(), Code: "ds001", ProjectID: &otherProject}
	f := newFixture(t, ds)

	_, err := f.svc.Import(context.Background(), ds.ID, ImportInput{
		SourceList:  []uuid.UUID{uuid.New()},
		ProjectID:   uuid.New(),
		ProjectCode: "testproject",
	})
	if cerr.KindOf(err) != cerr.KindForbidden {
		t.Fatalf("kind = %v, want Forbidden", cerr.KindOf(err))
	}
}

func TestImportValidationFeedback(t *testing.T) {
	ds := &domain.Dataset{ID: uuid.New(), Code: "ds001"}
	greenRoom := projectFile("green.txt", "raw", 10)
	greenRoom.Zone = 0
	existing := &domain.Item{
		ID:            uuid.New(),
		Name:          "taken.txt",
		ParentPath:    "data",
		Type:          domain.ItemTypeFile,
		Zone:          1,
		ContainerCode: "ds001",
		ContainerType: domain.ContainerTypeDataset,
	}
	incoming := projectFile("taken.txt", "raw", 10)
	missing := uuid.New()
	f := newFixture(t, ds, greenRoom, incoming, existing)

	resp, err := f.svc.Import(context.Background(), ds.ID, ImportInput{
		SourceList:  []uuid.UUID{greenRoom.ID, incoming.ID, missing},
		ProjectID:   uuid.New(),
		ProjectCode: "testproject",
	})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	f.dispatcher.Wait()

	if len(resp.Processing) != 0 {
		t.Fatalf("processing = %+v", resp.Processing)
	}
	feedback := map[uuid.UUID]string{}
	for _, r := range resp.Ignored {
		feedback[r.ID] = r.Feedback
	}
	if feedback[missing] != FeedbackNotExists {
		t.Fatalf("missing feedback = %q", feedback[missing])
	}
	if feedback[greenRoom.ID] != FeedbackNotCoreFile {
		t.Fatalf("zone feedback = %q", feedback[greenRoom.ID])
	}
	if feedback[incoming.ID] != FeedbackDuplicate {
		t.Fatalf("duplicate feedback = %q", feedback[incoming.ID])
	}
}

func TestBatchNameCollisionRename(t *testing.T) {
	ds := &domain.Dataset{ID: uuid.New(), Code: "ds001"}
	a := projectFile("same.txt", "raw.one", 1)
	b := projectFile("same.txt", "raw.two", 1)
	f := newFixture(t, ds, a, b)

	resp, err := f.svc.Import(context.Background(), ds.ID, ImportInput{
		SourceList:  []uuid.UUID{a.ID, b.ID},
		ProjectID:   uuid.New(),
		ProjectCode: "testproject",
	})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	f.dispatcher.Wait()

	if len(resp.Processing) != 2 {
		t.Fatalf("processing = %+v", resp.Processing)
	}
	names := map[string]bool{}
	for _, r := range resp.Processing {
		if r.Feedback != FeedbackDuplicateBatchRename {
			t.Fatalf("feedback = %q", r.Feedback)
		}
		names[r.Name] = true
	}
	if !names["raw_one_same.txt"] || !names["raw_two_same.txt"] {
		t.Fatalf("rewritten names = %v", names)
	}
}

func TestDeleteSubtree(t *testing.T) {
	ds := &domain.Dataset{ID: uuid.New(), Code: "ds001"}
	folder := &domain.Item{
		ID:            uuid.New(),
		Name:          "sub-01",
		ParentPath:    "data",
		Type:          domain.ItemTypeFolder,
		Zone:          1,
		ContainerCode: "ds001",
		ContainerType: domain.ContainerTypeDataset,
	}
	child := &domain.Item{
		ID:            uuid.New(),
		ParentID:      &folder.ID,
		Name:          "scan.nii.gz",
		ParentPath:    "data.sub-01",
		Type:          domain.ItemTypeFile,
		Zone:          1,
		Size:          512,
		ContainerCode: "ds001",
		ContainerType: domain.ContainerTypeDataset,
		Storage:       domain.ItemStorage{LocationURI: "minio://host/ds001/data/sub-01/scan.nii.gz"},
	}
	f := newFixture(t, ds, folder, child)

	resp, err := f.svc.Delete(context.Background(), ds.ID, DeleteInput{
		SourceList: []uuid.UUID{folder.ID},
		Operator:   "admin",
	})
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(resp.Processing) != 1 {
		t.Fatalf("processing = %+v", resp.Processing)
	}
	f.dispatcher.Wait()

	if len(f.store.deletes) != 1 || f.store.deletes[0] != "ds001/data/sub-01/scan.nii.gz" {
		t.Fatalf("object deletes = %v", f.store.deletes)
	}
	if len(f.meta.deleted) != 2 {
		t.Fatalf("metadata deletes = %v", f.meta.deleted)
	}
	if f.datasets.deltaFiles != -1 || f.datasets.deltaBytes != -512 {
		t.Fatalf("aggregates = %d, %d", f.datasets.deltaFiles, f.datasets.deltaBytes)
	}
	if len(f.queue.actions) != 1 || f.queue.actions[0] != domain.ActionDelete {
		t.Fatalf("bus actions = %v", f.queue.actions)
	}
}

func TestMoveIntoOwnSubtreeRejected(t *testing.T) {
	ds := &domain.Dataset{ID: uuid.New(), Code: "ds001"}
	folder := &domain.Item{
		ID:            uuid.New(),
		Name:          "sub-01",
		ParentPath:    "data",
		Type:          domain.ItemTypeFolder,
		Zone:          1,
		ContainerCode: "ds001",
		ContainerType: domain.ContainerTypeDataset,
	}
	inner := &domain.Item{
		ID:            uuid.New(),
		ParentID:      &folder.ID,
		Name:          "nested",
		ParentPath:    "data.sub-01",
		Type:          domain.ItemTypeFolder,
		Zone:          1,
		ContainerCode: "ds001",
		ContainerType: domain.ContainerTypeDataset,
	}
	f := newFixture(t, ds, folder, inner)

	resp, err := f.svc.Move(context.Background(), ds.ID, MoveInput{
		SourceList: []uuid.UUID{folder.ID},
		TargetID:   inner.ID,
	})
	if err != nil {
		t.Fatalf("Move: %v", err)
	}
	f.dispatcher.Wait()

	if len(resp.Processing) != 0 || len(resp.Ignored) != 1 || resp.Ignored[0].Feedback != FeedbackUnauthorized {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestRenameDuplicateSibling(t *testing.T) {
	ds := &domain.Dataset{ID: uuid.New(), Code: "ds001"}
	item := &domain.Item{
		ID:            uuid.New(),
		Name:          "a.txt",
		ParentPath:    "data",
		Type:          domain.ItemTypeFile,
		Zone:          1,
		ContainerCode: "ds001",
		ContainerType: domain.ContainerTypeDataset,
	}
	sibling := &domain.Item{
		ID:            uuid.New(),
		Name:          "b.txt",
		ParentPath:    "data",
		Type:          domain.ItemTypeFile,
		Zone:          1,
		ContainerCode: "ds001",
		ContainerType: domain.ContainerTypeDataset,
	}
	f := newFixture(t, ds, item, sibling)

	resp, err := f.svc.Rename(context.Background(), ds.ID, item.ID, RenameInput{NewName: "b.txt"})
	if err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if len(resp.Ignored) != 1 || resp.Ignored[0].Feedback != FeedbackDuplicate {
		t.Fatalf("resp = %+v", resp)
	}
}
