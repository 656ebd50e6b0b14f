package datasetsvc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/PilotDataPlatform/dataset-sub000/internal/clients/metadata"
	"github.com/PilotDataPlatform/dataset-sub000/internal/clients/objectstore"
	"github.com/PilotDataPlatform/dataset-sub000/internal/clients/queue"
	"github.com/PilotDataPlatform/dataset-sub000/internal/core/cerr"
	"github.com/PilotDataPlatform/dataset-sub000/internal/data/repos"
	"github.com/PilotDataPlatform/dataset-sub000/internal/domain"
	"github.com/PilotDataPlatform/dataset-sub000/internal/events"
	"github.com/PilotDataPlatform/dataset-sub000/internal/platform/dbctx"
	"github.com/PilotDataPlatform/dataset-sub000/internal/platform/logger"
	"github.com/PilotDataPlatform/dataset-sub000/internal/services/schemasvc"
)

var (
	codePattern = regexp.MustCompile(`^[a-z0-9]{3,32}$`)
	// Folder names: no whitespace at the edges, none of \/:?*<>|" anywhere,
	// between 3 and 20 characters. The length bound is checked separately
	// on the rune count.
	folderBody = regexp.MustCompile(`^[^\s/:?*<>|"]([^/:?*<>|"])+[^\s/:?*<>|"]$`)
)

type Config struct {
	RootFolder     string
	CoreZone       int
	MaxPreviewSize int64
}

// Service owns the dataset lifecycle outside of item mutations and
// publishing: create, fetch, list, update, folders, listing, preview, BIDS.
type Service struct {
	log      *logger.Logger
	cfg      Config
	datasets repos.DatasetRepo
	versions repos.VersionRepo
	bids     repos.BIDSResultRepo
	meta     metadata.Gateway
	store    objectstore.Store
	queue    queue.Client
	schemas  *schemasvc.Service
	events   events.Publisher
}

func New(log *logger.Logger, cfg Config, datasets repos.DatasetRepo, versions repos.VersionRepo, bids repos.BIDSResultRepo, meta metadata.Gateway, store objectstore.Store, q queue.Client, schemas *schemasvc.Service, pub events.Publisher) *Service {
	return &Service{
		log:      log.With("service", "DatasetService"),
		cfg:      cfg,
		datasets: datasets,
		versions: versions,
		bids:     bids,
		meta:     meta,
		store:    store,
		queue:    q,
		schemas:  schemas,
		events:   pub,
	}
}

type CreateInput struct {
	Creator          string          `json:"creator"`
	Username         string          `json:"username"`
	Title            string          `json:"title"`
	Code             string          `json:"code"`
	Type             string          `json:"type"`
	Description      string          `json:"description"`
	Authors          json.RawMessage `json:"authors"`
	Modality         json.RawMessage `json:"modality"`
	CollectionMethod json.RawMessage `json:"collection_method"`
	License          string          `json:"license"`
	Tags             json.RawMessage `json:"tags"`
}

// Create inserts the dataset row, provisions its encrypted bucket with a
// creator policy, instantiates the essential schema from the payload, and
// emits a create activity event.
func (s *Service) Create(ctx context.Context, in CreateInput) (*domain.Dataset, error) {
	if !codePattern.MatchString(in.Code) {
		return nil, cerr.BadRequestf("dataset code %q must match ^[a-z0-9]{3,32}$", in.Code)
	}
	// Older callers send username instead of creator.
	if in.Creator == "" {
		in.Creator = in.Username
	}
	if in.Type == "" {
		in.Type = domain.DatasetTypeGeneral
	}
	if in.Type != domain.DatasetTypeGeneral && in.Type != domain.DatasetTypeBIDS {
		return nil, cerr.BadRequestf("dataset type %q is not supported", in.Type)
	}

	dbc := dbctx.Context{Ctx: ctx}
	ds := &domain.Dataset{
		Code:             in.Code,
		Title:            in.Title,
		Creator:          in.Creator,
		Type:             in.Type,
		Description:      in.Description,
		Authors:          datatypes.JSON(in.Authors),
		Modality:         datatypes.JSON(in.Modality),
		CollectionMethod: datatypes.JSON(in.CollectionMethod),
		License:          in.License,
		Tags:             datatypes.JSON(in.Tags),
	}
	created, err := s.datasets.Create(dbc, ds)
	if err != nil {
		return nil, err
	}

	if err := s.store.MakeDatasetBucket(ctx, created.Code, created.Creator); err != nil {
		return nil, cerr.New(cerr.KindUpstream, fmt.Sprintf("dataset %q created but bucket provisioning failed", created.Code), err)
	}
	if _, err := s.schemas.CreateEssentialFor(ctx, created); err != nil {
		return nil, err
	}

	s.emit(ctx, events.DatasetActivity{
		ActivityType:  events.ActivityCreate,
		ContainerCode: created.Code,
		User:          created.Creator,
	})
	return created, nil
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*domain.Dataset, error) {
	return s.datasets.GetByID(dbctx.Context{Ctx: ctx}, id)
}

func (s *Service) PeekByCode(ctx context.Context, code string) (*domain.Dataset, error) {
	return s.datasets.GetByCode(dbctx.Context{Ctx: ctx}, code)
}

func (s *Service) ListByCreator(ctx context.Context, creator string, page, pageSize int, orderBy, orderType string) ([]*domain.Dataset, int64, error) {
	return s.datasets.ListByCreator(dbctx.Context{Ctx: ctx}, creator, page, pageSize, orderBy, orderType)
}

// UpdateInput carries only the fields the update endpoint may touch; nil
// means "leave alone".
type UpdateInput struct {
	Title            *string         `json:"title"`
	Description      *string         `json:"description"`
	Authors          json.RawMessage `json:"authors"`
	Modality         json.RawMessage `json:"modality"`
	CollectionMethod json.RawMessage `json:"collection_method"`
	License          *string         `json:"license"`
	Tags             json.RawMessage `json:"tags"`
	Type             *string         `json:"type"`
	Operator         string          `json:"operator"`
}

// Update applies the patch, records per-field changes on the activity log,
// and keeps the essential schema content in sync with the dataset row.
func (s *Service) Update(ctx context.Context, id uuid.UUID, in UpdateInput) (*domain.Dataset, error) {
	dbc := dbctx.Context{Ctx: ctx}
	ds, err := s.datasets.GetByID(dbc, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	var changes []events.Change
	setStr := func(field string, old string, val *string) string {
		if val == nil || *val == old {
			return old
		}
		updates[field] = *val
		changes = append(changes, events.Change{ItemProperty: field, OldValue: events.StrPtr(old), NewValue: events.StrPtr(*val)})
		return *val
	}
	setJSON := func(field string, old datatypes.JSON, val json.RawMessage) datatypes.JSON {
		if val == nil || string(val) == string(old) {
			return old
		}
		updates[field] = datatypes.JSON(val)
		changes = append(changes, events.Change{ItemProperty: field, OldValue: events.StrPtr(string(old)), NewValue: events.StrPtr(string(val))})
		return datatypes.JSON(val)
	}

	ds.Title = setStr("title", ds.Title, in.Title)
	ds.Description = setStr("description", ds.Description, in.Description)
	ds.License = setStr("license", ds.License, in.License)
	ds.Type = setStr("type", ds.Type, in.Type)
	ds.Authors = setJSON("authors", ds.Authors, in.Authors)
	ds.Modality = setJSON("modality", ds.Modality, in.Modality)
	ds.CollectionMethod = setJSON("collection_method", ds.CollectionMethod, in.CollectionMethod)
	ds.Tags = setJSON("tags", ds.Tags, in.Tags)

	if len(updates) == 0 {
		return ds, nil
	}
	if err := s.datasets.UpdateFields(dbc, id, updates); err != nil {
		return nil, err
	}
	if err := s.syncEssential(ctx, ds); err != nil {
		s.log.Error("Failed to sync essential schema after dataset update", "dataset", ds.Code, "error", err)
	}

	s.emit(ctx, events.DatasetActivity{
		ActivityType:  events.ActivityUpdate,
		ContainerCode: ds.Code,
		User:          in.Operator,
		Changes:       changes,
	})
	return ds, nil
}

func (s *Service) syncEssential(ctx context.Context, ds *domain.Dataset) error {
	content := schemasvc.EssentialContent(ds)
	raw, err := json.Marshal(content)
	if err != nil {
		return err
	}
	return s.schemas.ReplaceEssentialContent(ctx, ds.ID, raw)
}

// CreateFolder adds an empty folder under the dataset root or under an
// existing folder of the same dataset.
func (s *Service) CreateFolder(ctx context.Context, datasetID uuid.UUID, name string, parentID *uuid.UUID, username string) (*domain.Item, error) {
	if utf8.RuneCountInString(name) > 20 || !folderBody.MatchString(name) {
		return nil, cerr.BadRequestf("invalid folder name %q", name)
	}
	ds, err := s.datasets.GetByID(dbctx.Context{Ctx: ctx}, datasetID)
	if err != nil {
		return nil, err
	}

	parentPath := s.cfg.RootFolder
	var parent *domain.Item
	if parentID != nil {
		parent, err = s.meta.GetItem(ctx, *parentID)
		if err != nil {
			return nil, err
		}
		if parent.ContainerCode != ds.Code || !parent.IsFolder() {
			return nil, cerr.BadRequestf("parent folder does not belong to dataset %q", ds.Code)
		}
		parentPath = parent.DottedChildPath()
	}

	siblings, _, err := s.meta.Search(ctx, metadata.SearchQuery{
		ContainerCode: ds.Code,
		ContainerType: domain.ContainerTypeDataset,
		ParentPath:    parentPath,
	})
	if err != nil {
		return nil, err
	}
	for _, sib := range siblings {
		if sib.Name == name && !sib.Archived {
			return nil, cerr.Conflictf("folder %q already exists", name)
		}
	}

	payload := metadata.CreateItemPayload{
		ParentPath:    parentPath,
		Type:          domain.ItemTypeFolder,
		Zone:          s.cfg.CoreZone,
		Name:          name,
		Owner:         username,
		ContainerCode: ds.Code,
		ContainerType: domain.ContainerTypeDataset,
	}
	if parent != nil {
		payload.Parent = &parent.ID
	}
	return s.meta.CreateItem(ctx, payload)
}

// FileListing is one page of a dataset's item tree.
type FileListing struct {
	Items []*domain.Item
	Total int
}

func (s *Service) ListFiles(ctx context.Context, datasetID uuid.UUID, folderID *uuid.UUID, page, pageSize int, orderBy, orderType string) (*FileListing, error) {
	ds, err := s.datasets.GetByID(dbctx.Context{Ctx: ctx}, datasetID)
	if err != nil {
		return nil, err
	}
	parentPath := s.cfg.RootFolder
	if folderID != nil {
		folder, err := s.meta.GetItem(ctx, *folderID)
		if err != nil {
			return nil, err
		}
		if folder.ContainerCode != ds.Code || !folder.IsFolder() {
			return nil, cerr.NotFoundf("folder %s not found in dataset %q", folderID, ds.Code)
		}
		parentPath = folder.DottedChildPath()
	}
	items, total, err := s.meta.Search(ctx, metadata.SearchQuery{
		ContainerCode: ds.Code,
		ContainerType: domain.ContainerTypeDataset,
		ParentPath:    parentPath,
		Page:          page,
		PageSize:      pageSize,
		OrderBy:       orderBy,
		OrderType:     orderType,
	})
	if err != nil {
		return nil, err
	}
	visible := items[:0]
	for _, item := range items {
		if !item.Archived {
			visible = append(visible, item)
		}
	}
	return &FileListing{Items: visible, Total: total}, nil
}

// Preview streams up to MaxPreviewSize bytes of a file's content.
type Preview struct {
	Content        string `json:"content"`
	Size           int64  `json:"size"`
	IsConcatenated bool   `json:"is_concatenated"`
}

func (s *Service) PreviewFile(ctx context.Context, datasetID, itemID uuid.UUID) (*Preview, error) {
	ds, err := s.datasets.GetByID(dbctx.Context{Ctx: ctx}, datasetID)
	if err != nil {
		return nil, err
	}
	item, err := s.meta.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item.ContainerCode != ds.Code || !item.IsFile() {
		return nil, cerr.NotFoundf("file %s not found in dataset %q", itemID, ds.Code)
	}
	bucket, key, err := objectstore.ParseLocationURI(item.Storage.LocationURI)
	if err != nil {
		return nil, cerr.Internal(err)
	}
	stream, size, err := s.store.GetStream(ctx, bucket, key, s.cfg.MaxPreviewSize)
	if err != nil {
		return nil, cerr.New(cerr.KindUpstream, "failed to read file from object store", err)
	}
	defer stream.Close()
	content, err := io.ReadAll(stream)
	if err != nil {
		return nil, cerr.Internal(err)
	}
	return &Preview{
		Content:        string(content),
		Size:           size,
		IsConcatenated: size > int64(len(content)),
	}, nil
}

// ScheduleBIDSValidation forwards the dataset to the external BIDS validator.
func (s *Service) ScheduleBIDSValidation(ctx context.Context, datasetID uuid.UUID, accessToken, refreshToken string) error {
	ds, err := s.datasets.GetByID(dbctx.Context{Ctx: ctx}, datasetID)
	if err != nil {
		return err
	}
	if ds.Type != domain.DatasetTypeBIDS {
		return cerr.BadRequestf("dataset %q is not a BIDS dataset", ds.Code)
	}
	if err := s.queue.RequestBIDSValidation(ctx, ds.Code, accessToken, refreshToken); err != nil {
		return err
	}
	return nil
}

func (s *Service) GetBIDSResult(ctx context.Context, datasetID uuid.UUID) (*domain.BIDSResult, error) {
	dbc := dbctx.Context{Ctx: ctx}
	ds, err := s.datasets.GetByID(dbc, datasetID)
	if err != nil {
		return nil, err
	}
	return s.bids.GetByCode(dbc, ds.Code)
}

func (s *Service) emit(ctx context.Context, msg events.DatasetActivity) {
	if err := s.events.PublishDatasetActivity(ctx, msg); err != nil {
		s.log.Error("Failed to publish activity event", "activity_type", msg.ActivityType, "dataset", msg.ContainerCode, "error", err)
	}
}

// RootFolderPrefix is the dotted metadata path of the dataset root.
func (s *Service) RootFolderPrefix() string { return strings.TrimSuffix(s.cfg.RootFolder, "/") }
