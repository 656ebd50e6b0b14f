package datasetsvc

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/PilotDataPlatform/dataset-sub000/internal/clients/metadata"
	"github.com/PilotDataPlatform/dataset-sub000/internal/clients/queue"
	"github.com/PilotDataPlatform/dataset-sub000/internal/core/cerr"
	"github.com/PilotDataPlatform/dataset-sub000/internal/data/repos"
	"github.com/PilotDataPlatform/dataset-sub000/internal/domain"
	"github.com/PilotDataPlatform/dataset-sub000/internal/events"
	"github.com/PilotDataPlatform/dataset-sub000/internal/platform/dbctx"
	"github.com/PilotDataPlatform/dataset-sub000/internal/platform/logger"
	"github.com/PilotDataPlatform/dataset-sub000/internal/services/schemasvc"
)

type fakeDatasetRepo struct {
	datasets map[uuid.UUID]*domain.Dataset
	updates  map[string]any
}

func newFakeDatasetRepo(rows ...*domain.Dataset) *fakeDatasetRepo {
	r := &fakeDatasetRepo{datasets: map[uuid.UUID]*domain.Dataset{}}
	for _, ds := range rows {
		r.datasets[ds.ID] = ds
	}
	return r
}

func (r *fakeDatasetRepo) Create(_ dbctx.Context, ds *domain.Dataset) (*domain.Dataset, error) {
	for _, existing := range r.datasets {
		if existing.Code == ds.Code {
			return nil, cerr.Conflictf("dataset code %q already taken", ds.Code)
		}
	}
	ds.ID = uuid.New()
	r.datasets[ds.ID] = ds
	return ds, nil
}

func (r *fakeDatasetRepo) GetByID(_ dbctx.Context, id uuid.UUID) (*domain.Dataset, error) {
	if ds, ok := r.datasets[id]; ok {
		return ds, nil
	}
	return nil, cerr.NotFoundf("dataset %s not found", id)
}

func (r *fakeDatasetRepo) GetByCode(_ dbctx.Context, code string) (*domain.Dataset, error) {
	for _, ds := range r.datasets {
		if ds.Code == code {
			return ds, nil
		}
	}
	return nil, cerr.NotFoundf("dataset %q not found", code)
}

func (r *fakeDatasetRepo) ListByCreator(_ dbctx.Context, creator string, _, _ int, _, _ string) ([]*domain.Dataset, int64, error) {
	var out []*domain.Dataset
	for _, ds := range r.datasets {
		if ds.Creator == creator {
			out = append(out, ds)
		}
	}
	return out, int64(len(out)), nil
}

func (r *fakeDatasetRepo) UpdateFields(_ dbctx.Context, _ uuid.UUID, updates map[string]any) error {
	r.updates = updates
	return nil
}

func (r *fakeDatasetRepo) AddToAggregates(_ dbctx.Context, _ uuid.UUID, _, _ int64) error { return nil }
func (r *fakeDatasetRepo) SetProjectID(_ dbctx.Context, _, _ uuid.UUID) error            { return nil }

type fakeVersionRepo struct{}

func (fakeVersionRepo) Create(_ dbctx.Context, v *domain.Version) (*domain.Version, error) {
	return v, nil
}
func (fakeVersionRepo) Exists(_ dbctx.Context, _ uuid.UUID, _ string) (bool, error) {
	return false, nil
}
func (fakeVersionRepo) ListByDataset(_ dbctx.Context, _ uuid.UUID, _, _ int) ([]*domain.Version, int64, error) {
	return nil, 0, nil
}
func (fakeVersionRepo) GetLatest(_ dbctx.Context, _ uuid.UUID) (*domain.Version, error) {
	return nil, cerr.NotFoundf("no versions")
}

type fakeBIDSRepo struct {
	rows map[string]*domain.BIDSResult
}

func (r *fakeBIDSRepo) Upsert(_ dbctx.Context, result *domain.BIDSResult) error {
	if r.rows == nil {
		r.rows = map[string]*domain.BIDSResult{}
	}
	r.rows[result.DatasetCode] = result
	return nil
}

func (r *fakeBIDSRepo) GetByCode(_ dbctx.Context, code string) (*domain.BIDSResult, error) {
	if row, ok := r.rows[code]; ok {
		return row, nil
	}
	return nil, cerr.NotFoundf("no validation result for %q", code)
}

type fakeTemplateRepo struct {
	templates map[string]*domain.SchemaTemplate
}

func (r *fakeTemplateRepo) Create(_ dbctx.Context, tpl *domain.SchemaTemplate) (*domain.SchemaTemplate, error) {
	return tpl, nil
}
func (r *fakeTemplateRepo) GetByID(_ dbctx.Context, id uuid.UUID) (*domain.SchemaTemplate, error) {
	return nil, cerr.NotFoundf("template %s not found", id)
}
func (r *fakeTemplateRepo) GetByName(_ dbctx.Context, name string, _ *uuid.UUID) (*domain.SchemaTemplate, error) {
	if tpl, ok := r.templates[name]; ok {
		return tpl, nil
	}
	return nil, cerr.NotFoundf("template %q not found", name)
}
func (r *fakeTemplateRepo) ListByDataset(_ dbctx.Context, _ *uuid.UUID) ([]*domain.SchemaTemplate, error) {
	return nil, nil
}
func (r *fakeTemplateRepo) Update(_ dbctx.Context, _ *domain.SchemaTemplate) error { return nil }
func (r *fakeTemplateRepo) Delete(_ dbctx.Context, _ uuid.UUID) error              { return nil }

type fakeSchemaRepo struct {
	rows []*domain.Schema
}

func (r *fakeSchemaRepo) Create(_ dbctx.Context, s *domain.Schema) (*domain.Schema, error) {
	s.ID = uuid.New()
	r.rows = append(r.rows, s)
	return s, nil
}
func (r *fakeSchemaRepo) GetByID(_ dbctx.Context, id uuid.UUID) (*domain.Schema, error) {
	for _, s := range r.rows {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, cerr.NotFoundf("schema %s not found", id)
}
func (r *fakeSchemaRepo) List(_ dbctx.Context, filter repos.SchemaFilter) ([]*domain.Schema, error) {
	var out []*domain.Schema
	for _, s := range r.rows {
		if filter.Name != nil && s.Name != *filter.Name {
			continue
		}
		if filter.DatasetID != nil && (s.DatasetID == nil || *s.DatasetID != *filter.DatasetID) {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}
func (r *fakeSchemaRepo) Update(_ dbctx.Context, _ *domain.Schema) error { return nil }
func (r *fakeSchemaRepo) Delete(_ dbctx.Context, _ uuid.UUID) error      { return nil }

type fakeMeta struct {
	items   map[uuid.UUID]*domain.Item
	created []metadata.CreateItemPayload
}

func newFakeMeta(items ...*domain.Item) *fakeMeta {
	m := &fakeMeta{items: map[uuid.UUID]*domain.Item{}}
	for _, item := range items {
		m.items[item.ID] = item
	}
	return m
}

func (m *fakeMeta) GetItem(_ context.Context, id uuid.UUID) (*domain.Item, error) {
	if item, ok := m.items[id]; ok {
		return item, nil
	}
	return nil, cerr.NotFoundf("item %s not found", id)
}

func (m *fakeMeta) Search(_ context.Context, q metadata.SearchQuery) ([]*domain.Item, int, error) {
	var out []*domain.Item
	for _, item := range m.items {
		if item.ContainerCode == q.ContainerCode && (q.ParentPath == "" || item.ParentPath == q.ParentPath) {
			out = append(out, item)
		}
	}
	return out, len(out), nil
}

func (m *fakeMeta) CreateItem(_ context.Context, payload metadata.CreateItemPayload) (*domain.Item, error) {
	m.created = append(m.created, payload)
	item := &domain.Item{
		ID:            uuid.New(),
		ParentID:      payload.Parent,
		ParentPath:    payload.ParentPath,
		Type:          payload.Type,
		Zone:          payload.Zone,
		Name:          payload.Name,
		Owner:         payload.Owner,
		ContainerCode: payload.ContainerCode,
		ContainerType: payload.ContainerType,
	}
	m.items[item.ID] = item
	return item, nil
}

func (m *fakeMeta) DeleteItem(_ context.Context, id uuid.UUID) error { delete(m.items, id); return nil }
func (m *fakeMeta) GetSubtree(_ context.Context, _ uuid.UUID) ([]*domain.Item, error) {
	return nil, nil
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

type fakeStore struct {
	buckets []string
	content string
	size    int64
}

func (f *fakeStore) Copy(_ context.Context, _, _, _, _ string) error { return nil }
func (f *fakeStore) Delete(_ context.Context, _, _ string) error     { return nil }
func (f *fakeStore) GetStream(_ context.Context, _, _ string, maxBytes int64) (io.ReadCloser, int64, error) {
	body := f.content
	if int64(len(body)) > maxBytes {
		body = body[:maxBytes]
	}
	return io.NopCloser(strings.NewReader(body)), f.size, nil
}
func (f *fakeStore) FGet(_ context.Context, _, _, _ string) error { return nil }
func (f *fakeStore) FPut(_ context.Context, _, _, _ string) error { return nil }
func (f *fakeStore) MakeDatasetBucket(_ context.Context, code, _ string) error {
	f.buckets = append(f.buckets, code)
	return nil
}
func (f *fakeStore) LocationURI(bucket, key string) string {
	return "minio://host/" + bucket + "/" + key
}

type fakeQueue struct {
	bidsRequests []string
	actions      []string
}

func (q *fakeQueue) SendMessage(_ context.Context, _ queue.Envelope) error      { return nil }
func (q *fakeQueue) SendNotification(_ context.Context, _ map[string]any) error { return nil }
func (q *fakeQueue) RequestBIDSValidation(_ context.Context, code, _, _ string) error {
	q.bidsRequests = append(q.bidsRequests, code)
	return nil
}

func (q *fakeQueue) SendDatasetAction(_ context.Context, action string, _ map[string]any) error {
	q.actions = append(q.actions, action)
	return nil
}

type fakePublisher struct {
	datasetMsgs []events.DatasetActivity
}

func (p *fakePublisher) PublishDatasetActivity(_ context.Context, msg events.DatasetActivity) error {
	p.datasetMsgs = append(p.datasetMsgs, msg)
	return nil
}
func (p *fakePublisher) PublishItemActivity(_ context.Context, _ events.ItemActivity) error {
	return nil
}
func (p *fakePublisher) Ping(_ context.Context) error { return nil }
func (p *fakePublisher) Close() error                 { return nil }

type fixture struct {
	svc      *Service
	datasets *fakeDatasetRepo
	schemas  *fakeSchemaRepo
	meta     *fakeMeta
	store    *fakeStore
	queue    *fakeQueue
	pub      *fakePublisher
}

func newFixture(t *testing.T, rows ...*domain.Dataset) *fixture {
	t.Helper()
	log, err := logger.New("dev")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	f := &fixture{
		datasets: newFakeDatasetRepo(rows...),
		schemas:  &fakeSchemaRepo{},
		meta:     newFakeMeta(),
		store:    &fakeStore{},
		queue:    &fakeQueue{},
		pub:      &fakePublisher{},
	}
	templates := &fakeTemplateRepo{templates: map[string]*domain.SchemaTemplate{
		"Essential": {ID: uuid.New(), Name: "Essential"},
	}}
	schemaSvc := schemasvc.New(log, templates, f.schemas, f.datasets, f.queue, f.pub, "essential.schema.json", "Essential")
	f.svc = New(log, Config{RootFolder: "data", CoreZone: 1, MaxPreviewSize: 10},
		f.datasets, fakeVersionRepo{}, &fakeBIDSRepo{}, f.meta, f.store, f.queue, schemaSvc, f.pub)
	return f
}

func TestCreateProvisionsBucketAndEssential(t *testing.T) {
	f := newFixture(t)

	ds, err := f.svc.Create(context.Background(), CreateInput{
		Creator: "admin",
		Title:   "EEG study",
		Code:    "ds001",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if ds.Type != domain.DatasetTypeGeneral {
		t.Fatalf("type = %q, want GENERAL default", ds.Type)
	}
	if len(f.store.buckets) != 1 || f.store.buckets[0] != "ds001" {
		t.Fatalf("buckets = %v", f.store.buckets)
	}
	if len(f.schemas.rows) != 1 || f.schemas.rows[0].Name != "essential.schema.json" {
		t.Fatalf("essential schema rows = %+v", f.schemas.rows)
	}
	if len(f.pub.datasetMsgs) != 1 || f.pub.datasetMsgs[0].ActivityType != events.ActivityCreate {
		t.Fatalf("events = %+v", f.pub.datasetMsgs)
	}
}

func TestCreateRejectsBadCode(t *testing.T) {
	f := newFixture(t)
	for _, code := range []string{"AB", "Has-Caps", "x", strings.Repeat("a", 33)} {
		if _, err := f.svc.Create(context.Background(), CreateInput{Code: code}); cerr.KindOf(err) != cerr.KindBadRequest {
			t.Fatalf("code %q: err = %v, want BadRequest", code, err)
		}
	}
}

func TestUpdateRecordsChanges(t *testing.T) {
	ds := &domain.Dataset{ID: uuid.New(), Code: "ds001", Title: "old", Creator: "admin"}
	f := newFixture(t, ds)
	// The essential schema must exist before an update can sync it.
	if _, err := f.svc.schemas.CreateEssentialFor(context.Background(), ds); err != nil {
		t.Fatalf("seed essential: %v", err)
	}

	title := "new title"
	updated, err := f.svc.Update(context.Background(), ds.ID, UpdateInput{Title: &title, Operator: "admin"})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Title != "new title" {
		t.Fatalf("title = %q", updated.Title)
	}
	if got := f.datasets.updates["title"]; got != "new title" {
		t.Fatalf("persisted updates = %+v", f.datasets.updates)
	}
	msgs := f.pub.datasetMsgs
	last := msgs[len(msgs)-1]
	if last.ActivityType != events.ActivityUpdate || len(last.Changes) != 1 || last.Changes[0].ItemProperty != "title" {
		t.Fatalf("update event = %+v", last)
	}
}

func TestCreateFolderRejectsDuplicate(t *testing.T) {
	ds := &domain.Dataset{ID: uuid.New(), Code: "ds001"}
	f := newFixture(t, ds)

	if _, err := f.svc.CreateFolder(context.Background(), ds.ID, "sub-01", nil, "admin"); err != nil {
		t.Fatalf("first CreateFolder: %v", err)
	}
	_, err := f.svc.CreateFolder(context.Background(), ds.ID, "sub-01", nil, "admin")
	if cerr.KindOf(err) != cerr.KindConflict {
		t.Fatalf("err = %v, want Conflict", err)
	}
}

func TestCreateFolderRejectsBadName(t *testing.T) {
	ds := &domain.Dataset{ID: uuid.New(), Code: "ds001"}
	f := newFixture(t, ds)

	for _, name := range []string{"", "ab", " leading", "trailing ", "with/slash", strings.Repeat("a", 21), strings.Repeat("あ", 21)} {
		if _, err := f.svc.CreateFolder(context.Background(), ds.ID, name, nil, "admin"); cerr.KindOf(err) != cerr.KindBadRequest {
			t.Fatalf("name %q: err = %v, want BadRequest", name, err)
		}
	}

	// Length counts runes, so a 20-rune multibyte name is fine.
	if _, err := f.svc.CreateFolder(context.Background(), ds.ID, strings.Repeat("あ", 20), nil, "admin"); err != nil {
		t.Fatalf("20-rune name: %v", err)
	}
}

func TestPreviewFlagsTruncation(t *testing.T) {
	ds := &domain.Dataset{ID: uuid.New(), Code: "ds001"}
	file := &domain.Item{
		ID:            uuid.New(),
		Name:          "readme.txt",
		ParentPath:    "data",
		Type:          domain.ItemTypeFile,
		ContainerCode: "ds001",
		ContainerType: domain.ContainerTypeDataset,
		Storage:       domain.ItemStorage{LocationURI: "minio://host/ds001/data/readme.txt"},
	}
	f := newFixture(t, ds)
	f.meta.items[file.ID] = file
	f.store.content = "0123456789abcdef"
	f.store.size = 16

	preview, err := f.svc.PreviewFile(context.Background(), ds.ID, file.ID)
	if err != nil {
		t.Fatalf("PreviewFile: %v", err)
	}
	if preview.Content != "0123456789" || !preview.IsConcatenated || preview.Size != 16 {
		t.Fatalf("preview = %+v", preview)
	}
}

func TestScheduleBIDSValidationRequiresBIDSType(t *testing.T) {
	general := &domain.Dataset{ID: uuid.New(), Code: "ds001", Type: domain.DatasetTypeGeneral}
	bids := &domain.Dataset{ID: uuid.New(), Code: "ds002", Type: domain.DatasetTypeBIDS}
	f := newFixture(t, general, bids)

	if err := f.svc.ScheduleBIDSValidation(context.Background(), general.ID, "at", "rt"); cerr.KindOf(err) != cerr.KindBadRequest {
		t.Fatalf("err = %v, want BadRequest", err)
	}
	if err := f.svc.ScheduleBIDSValidation(context.Background(), bids.ID, "at", "rt"); err != nil {
		t.Fatalf("ScheduleBIDSValidation: %v", err)
	}
	if len(f.queue.bidsRequests) != 1 || f.queue.bidsRequests[0] != "ds002" {
		t.Fatalf("bids requests = %v", f.queue.bidsRequests)
	}
}
