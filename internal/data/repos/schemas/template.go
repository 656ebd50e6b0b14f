package schemas

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/PilotDataPlatform/dataset-sub000/internal/core/cerr"
	"github.com/PilotDataPlatform/dataset-sub000/internal/data/repos/repoutil"
	"github.com/PilotDataPlatform/dataset-sub000/internal/domain"
	"github.com/PilotDataPlatform/dataset-sub000/internal/platform/dbctx"
	"github.com/PilotDataPlatform/dataset-sub000/internal/platform/logger"
)

type TemplateRepo interface {
	Create(dbc dbctx.Context, tpl *domain.SchemaTemplate) (*domain.SchemaTemplate, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.SchemaTemplate, error)
	GetByName(dbc dbctx.Context, name string, datasetID *uuid.UUID) (*domain.SchemaTemplate, error)
	// ListByDataset returns a dataset's templates, or all system-defined
	// templates when datasetID is nil.
	ListByDataset(dbc dbctx.Context, datasetID *uuid.UUID) ([]*domain.SchemaTemplate, error)
	Update(dbc dbctx.Context, tpl *domain.SchemaTemplate) error
	Delete(dbc dbctx.Context, id uuid.UUID) error
}

type templateRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTemplateRepo(db *gorm.DB, baseLog *logger.Logger) TemplateRepo {
	return &templateRepo{db: db, log: baseLog.With("repo", "SchemaTemplateRepo")}
}

func (r *templateRepo) tx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *templateRepo) Create(dbc dbctx.Context, tpl *domain.SchemaTemplate) (*domain.SchemaTemplate, error) {
	if err := r.tx(dbc).WithContext(dbc.Ctx).Create(tpl).Error; err != nil {
		if repoutil.IsUniqueViolation(err) {
			return nil, cerr.Conflictf("schema template %q already exists for this dataset", tpl.Name)
		}
		return nil, cerr.Internal(err)
	}
	return tpl, nil
}

func (r *templateRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.SchemaTemplate, error) {
	var tpl domain.SchemaTemplate
	if err := r.tx(dbc).WithContext(dbc.Ctx).First(&tpl, "id = ?", id).Error; err != nil {
		if repoutil.IsNotFound(err) {
			return nil, cerr.NotFoundf("schema template %s not found", id)
		}
		return nil, cerr.Internal(err)
	}
	return &tpl, nil
}

func (r *templateRepo) GetByName(dbc dbctx.Context, name string, datasetID *uuid.UUID) (*domain.SchemaTemplate, error) {
	q := r.tx(dbc).WithContext(dbc.Ctx).Where("name = ?", name)
	if datasetID == nil {
		q = q.Where("dataset_geid IS NULL")
	} else {
		q = q.Where("dataset_geid = ?", *datasetID)
	}
	var tpl domain.SchemaTemplate
	if err := q.First(&tpl).Error; err != nil {
		if repoutil.IsNotFound(err) {
			return nil, cerr.NotFoundf("schema template %q not found", name)
		}
		return nil, cerr.Internal(err)
	}
	return &tpl, nil
}

func (r *templateRepo) ListByDataset(dbc dbctx.Context, datasetID *uuid.UUID) ([]*domain.SchemaTemplate, error) {
	q := r.tx(dbc).WithContext(dbc.Ctx).Model(&domain.SchemaTemplate{})
	if datasetID == nil {
		q = q.Where("system_defined = ?", true)
	} else {
		q = q.Where("dataset_geid = ?", *datasetID)
	}
	var rows []*domain.SchemaTemplate
	if err := q.Order("create_timestamp asc").Find(&rows).Error; err != nil {
		return nil, cerr.Internal(err)
	}
	return rows, nil
}

func (r *templateRepo) Update(dbc dbctx.Context, tpl *domain.SchemaTemplate) error {
	tpl.UpdateTimestamp = time.Now().UTC()
	if err := r.tx(dbc).WithContext(dbc.Ctx).Save(tpl).Error; err != nil {
		if repoutil.IsUniqueViolation(err) {
			return cerr.Conflictf("schema template %q already exists for this dataset", tpl.Name)
		}
		return cerr.Internal(err)
	}
	return nil
}

func (r *templateRepo) Delete(dbc dbctx.Context, id uuid.UUID) error {
	res := r.tx(dbc).WithContext(dbc.Ctx).Delete(&domain.SchemaTemplate{}, "id = ?", id)
	if res.Error != nil {
		return cerr.Internal(res.Error)
	}
	if res.RowsAffected == 0 {
		return cerr.NotFoundf("schema template %s not found", id)
	}
	return nil
}
