package schemasvc

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/PilotDataPlatform/dataset-sub000/internal/clients/queue"
	"github.com/PilotDataPlatform/dataset-sub000/internal/core/cerr"
	"github.com/PilotDataPlatform/dataset-sub000/internal/data/repos"
	"github.com/PilotDataPlatform/dataset-sub000/internal/domain"
	"github.com/PilotDataPlatform/dataset-sub000/internal/events"
	"github.com/PilotDataPlatform/dataset-sub000/internal/platform/dbctx"
	"github.com/PilotDataPlatform/dataset-sub000/internal/platform/logger"
)

// Service owns schema templates and schema instances. The schema named after
// the configured essential name mirrors its content onto the owning dataset
// row on every update.
type Service struct {
	log           *logger.Logger
	templates     repos.SchemaTemplateRepo
	schemas       repos.SchemaRepo
	datasets      repos.DatasetRepo
	queue         queue.Client
	events        events.Publisher
	essentialName string
	essentialTpl  string
}

func New(log *logger.Logger, templates repos.SchemaTemplateRepo, schemas repos.SchemaRepo, datasets repos.DatasetRepo, q queue.Client, pub events.Publisher, essentialName, essentialTpl string) *Service {
	return &Service{
		log:           log.With("service", "SchemaService"),
		templates:     templates,
		schemas:       schemas,
		datasets:      datasets,
		queue:         q,
		events:        pub,
		essentialName: essentialName,
		essentialTpl:  essentialTpl,
	}
}

type TemplateInput struct {
	Name          string          `json:"name"`
	Standard      string          `json:"standard"`
	SystemDefined bool            `json:"system_defined"`
	IsDraft       bool            `json:"is_draft"`
	Content       json.RawMessage `json:"content"`
	Creator       string          `json:"creator"`
}

func (s *Service) CreateTemplate(ctx context.Context, datasetID *uuid.UUID, in TemplateInput) (*domain.SchemaTemplate, error) {
	dbc := dbctx.Context{Ctx: ctx}
	tpl := &domain.SchemaTemplate{
		Name:          in.Name,
		DatasetID:     datasetID,
		Standard:      in.Standard,
		SystemDefined: in.SystemDefined,
		IsDraft:       in.IsDraft,
		Content:       datatypes.JSON(in.Content),
		Creator:       in.Creator,
	}
	created, err := s.templates.Create(dbc, tpl)
	if err != nil {
		return nil, err
	}
	s.emitDatasetEvent(ctx, datasetID, events.ActivityTemplateCreate, in.Creator, in.Name, nil)
	return created, nil
}

// ListTemplates returns a dataset's templates, or all system-defined
// templates when datasetID is nil.
func (s *Service) ListTemplates(ctx context.Context, datasetID *uuid.UUID) ([]*domain.SchemaTemplate, error) {
	return s.templates.ListByDataset(dbctx.Context{Ctx: ctx}, datasetID)
}

func (s *Service) GetTemplate(ctx context.Context, id uuid.UUID) (*domain.SchemaTemplate, error) {
	return s.templates.GetByID(dbctx.Context{Ctx: ctx}, id)
}

func (s *Service) UpdateTemplate(ctx context.Context, id uuid.UUID, in TemplateInput) (*domain.SchemaTemplate, error) {
	dbc := dbctx.Context{Ctx: ctx}
	tpl, err := s.templates.GetByID(dbc, id)
	if err != nil {
		return nil, err
	}
	var changes []events.Change
	if in.Name != "" && in.Name != tpl.Name {
		changes = append(changes, events.Change{ItemProperty: "name", OldValue: events.StrPtr(tpl.Name), NewValue: events.StrPtr(in.Name)})
		tpl.Name = in.Name
	}
	if in.Content != nil {
		tpl.Content = datatypes.JSON(in.Content)
		changes = append(changes, events.Change{ItemProperty: "content"})
	}
	tpl.IsDraft = in.IsDraft
	if err := s.templates.Update(dbc, tpl); err != nil {
		return nil, err
	}
	s.emitDatasetEvent(ctx, tpl.DatasetID, events.ActivityTemplateUpdate, in.Creator, tpl.Name, changes)
	return tpl, nil
}

func (s *Service) DeleteTemplate(ctx context.Context, id uuid.UUID, operator string) error {
	dbc := dbctx.Context{Ctx: ctx}
	tpl, err := s.templates.GetByID(dbc, id)
	if err != nil {
		return err
	}
	if err := s.templates.Delete(dbc, id); err != nil {
		return err
	}
	s.emitDatasetEvent(ctx, tpl.DatasetID, events.ActivityTemplateDelete, operator, tpl.Name, nil)
	return nil
}

type SchemaInput struct {
	Name          string          `json:"name"`
	DatasetID     uuid.UUID       `json:"dataset_geid"`
	TplID         uuid.UUID       `json:"tpl_geid"`
	Standard      string          `json:"standard"`
	SystemDefined bool            `json:"system_defined"`
	IsDraft       bool            `json:"is_draft"`
	Content       json.RawMessage `json:"content"`
	Creator       string          `json:"creator"`
}

func (s *Service) CreateSchema(ctx context.Context, in SchemaInput) (*domain.Schema, error) {
	dbc := dbctx.Context{Ctx: ctx}
	if _, err := s.templates.GetByID(dbc, in.TplID); err != nil {
		return nil, err
	}
	sc := &domain.Schema{
		Name:          in.Name,
		DatasetID:     &in.DatasetID,
		TplID:         in.TplID,
		Standard:      in.Standard,
		SystemDefined: in.SystemDefined,
		IsDraft:       in.IsDraft,
		Content:       datatypes.JSON(in.Content),
		Creator:       in.Creator,
	}
	created, err := s.schemas.Create(dbc, sc)
	if err != nil {
		return nil, err
	}
	s.emitDatasetEvent(ctx, sc.DatasetID, events.ActivitySchemaCreate, in.Creator, in.Name, nil)
	return created, nil
}

func (s *Service) GetSchema(ctx context.Context, id uuid.UUID) (*domain.Schema, error) {
	return s.schemas.GetByID(dbctx.Context{Ctx: ctx}, id)
}

type SchemaUpdateInput struct {
	Username string          `json:"username"`
	Content  json.RawMessage `json:"content"`
	IsDraft  bool            `json:"is_draft"`
	Activity []events.Change `json:"activity"`
}

func (s *Service) UpdateSchema(ctx context.Context, id uuid.UUID, in SchemaUpdateInput) (*domain.Schema, error) {
	dbc := dbctx.Context{Ctx: ctx}
	sc, err := s.schemas.GetByID(dbc, id)
	if err != nil {
		return nil, err
	}
	if in.Content != nil {
		sc.Content = datatypes.JSON(in.Content)
	}
	sc.IsDraft = in.IsDraft

	if sc.Name == s.essentialName && sc.DatasetID != nil && in.Content != nil {
		if err := s.propagateEssential(dbc, *sc.DatasetID, in.Content); err != nil {
			return nil, err
		}
	}
	if err := s.schemas.Update(dbc, sc); err != nil {
		return nil, err
	}
	s.emitDatasetEvent(ctx, sc.DatasetID, events.ActivitySchemaUpdate, in.Username, sc.Name, in.Activity)
	return sc, nil
}

func (s *Service) DeleteSchema(ctx context.Context, id uuid.UUID, operator string) error {
	dbc := dbctx.Context{Ctx: ctx}
	sc, err := s.schemas.GetByID(dbc, id)
	if err != nil {
		return err
	}
	if err := s.schemas.Delete(dbc, id); err != nil {
		return err
	}
	s.emitDatasetEvent(ctx, sc.DatasetID, events.ActivitySchemaDelete, operator, sc.Name, nil)
	return nil
}

// ListSchemas applies the filter and moves the essential schema, when
// present, to the front.
func (s *Service) ListSchemas(ctx context.Context, filter repos.SchemaFilter) ([]*domain.Schema, error) {
	rows, err := s.schemas.List(dbctx.Context{Ctx: ctx}, filter)
	if err != nil {
		return nil, err
	}
	for i, row := range rows {
		if row.Name == s.essentialName && i > 0 {
			reordered := make([]*domain.Schema, 0, len(rows))
			reordered = append(reordered, row)
			reordered = append(reordered, rows[:i]...)
			reordered = append(reordered, rows[i+1:]...)
			return reordered, nil
		}
	}
	return rows, nil
}

// CreateEssentialFor creates the essential schema instance of a freshly
// created dataset from its create payload.
func (s *Service) CreateEssentialFor(ctx context.Context, ds *domain.Dataset) (*domain.Schema, error) {
	dbc := dbctx.Context{Ctx: ctx}
	tpl, err := s.templates.GetByName(dbc, s.essentialTpl, nil)
	if err != nil {
		return nil, err
	}
	content := EssentialContent(ds)
	raw, err := json.Marshal(content)
	if err != nil {
		return nil, cerr.Internal(err)
	}
	sc := &domain.Schema{
		Name:      s.essentialName,
		DatasetID: &ds.ID,
		TplID:     tpl.ID,
		Standard:  domain.SchemaStandardDefault,
		Content:   datatypes.JSON(raw),
		Creator:   ds.Creator,
	}
	return s.schemas.Create(dbc, sc)
}

// ReplaceEssentialContent overwrites the essential schema document of a
// dataset after its row changed through the dataset update endpoint.
func (s *Service) ReplaceEssentialContent(ctx context.Context, datasetID uuid.UUID, content json.RawMessage) error {
	dbc := dbctx.Context{Ctx: ctx}
	rows, err := s.schemas.List(dbc, repos.SchemaFilter{Name: &s.essentialName, DatasetID: &datasetID})
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return cerr.NotFoundf("dataset %s has no essential schema", datasetID)
	}
	sc := rows[0]
	sc.Content = datatypes.JSON(content)
	return s.schemas.Update(dbc, sc)
}

// EssentialContent derives the essential schema document from a dataset row.
func EssentialContent(ds *domain.Dataset) map[string]any {
	content := map[string]any{
		"dataset_title":       ds.Title,
		"dataset_authors":     jsonOrEmptyList(ds.Authors),
		"dataset_description": ds.Description,
		"dataset_type":        ds.Type,
	}
	if len(ds.Modality) > 0 {
		content["dataset_modality"] = json.RawMessage(ds.Modality)
	}
	if len(ds.CollectionMethod) > 0 {
		content["dataset_collection_method"] = json.RawMessage(ds.CollectionMethod)
	}
	if ds.License != "" {
		content["dataset_license"] = ds.License
	}
	if len(ds.Tags) > 0 {
		content["dataset_tags"] = json.RawMessage(ds.Tags)
	}
	return content
}

func jsonOrEmptyList(raw datatypes.JSON) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("[]")
	}
	return json.RawMessage(raw)
}

// propagateEssential copies essential document fields onto the dataset row.
// The four required keys must be present; a previously set license is
// cleared when the update omits it.
func (s *Service) propagateEssential(dbc dbctx.Context, datasetID uuid.UUID, content json.RawMessage) error {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(content, &doc); err != nil {
		return cerr.BadRequestf("essential schema content is not a JSON object: %v", err)
	}
	for _, required := range []string{"dataset_title", "dataset_authors", "dataset_description", "dataset_type"} {
		if _, ok := doc[required]; !ok {
			return cerr.BadRequestf("essential schema content missing required key %q", required)
		}
	}

	updates := map[string]any{}
	var title, description, datasetType string
	if err := json.Unmarshal(doc["dataset_title"], &title); err != nil {
		return cerr.BadRequestf("dataset_title must be a string")
	}
	if err := json.Unmarshal(doc["dataset_description"], &description); err != nil {
		return cerr.BadRequestf("dataset_description must be a string")
	}
	if err := json.Unmarshal(doc["dataset_type"], &datasetType); err != nil {
		return cerr.BadRequestf("dataset_type must be a string")
	}
	updates["title"] = title
	updates["description"] = description
	updates["type"] = datasetType
	updates["authors"] = datatypes.JSON(doc["dataset_authors"])

	if raw, ok := doc["dataset_modality"]; ok {
		updates["modality"] = datatypes.JSON(raw)
	}
	if raw, ok := doc["dataset_collection_method"]; ok {
		updates["collection_method"] = datatypes.JSON(raw)
	}
	if raw, ok := doc["dataset_tags"]; ok {
		updates["tags"] = datatypes.JSON(raw)
	}
	if raw, ok := doc["dataset_license"]; ok {
		var license string
		if err := json.Unmarshal(raw, &license); err != nil {
			return cerr.BadRequestf("dataset_license must be a string")
		}
		updates["license"] = license
	} else {
		updates["license"] = ""
	}

	return s.datasets.UpdateFields(dbc, datasetID, updates)
}

func (s *Service) emitDatasetEvent(ctx context.Context, datasetID *uuid.UUID, activityType, user, targetName string, changes []events.Change) {
	if datasetID == nil {
		return
	}
	ds, err := s.datasets.GetByID(dbctx.Context{Ctx: ctx}, *datasetID)
	if err != nil {
		s.log.Warn("Skipping activity event for unknown dataset", "dataset_id", datasetID, "error", err)
		return
	}
	msg := events.DatasetActivity{
		ActivityType:  activityType,
		ContainerCode: ds.Code,
		User:          user,
		TargetName:    events.StrPtr(targetName),
		Changes:       changes,
	}
	if err := s.events.PublishDatasetActivity(ctx, msg); err != nil {
		s.log.Error("Failed to publish activity event", "activity_type", activityType, "dataset", ds.Code, "error", err)
	}
	if err := s.queue.SendDatasetAction(ctx, activityType, map[string]any{
		"dataset_code": ds.Code,
		"operator":     user,
		"target_name":  targetName,
	}); err != nil {
		s.log.Error("Failed to relay activity to legacy bus", "activity_type", activityType, "dataset", ds.Code, "error", err)
	}
}
