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

// SchemaFilter narrows List; nil/zero fields are ignored.
type SchemaFilter struct {
	Name          *string
	DatasetID     *uuid.UUID
	TplID         *uuid.UUID
	Standard      *string
	SystemDefined *bool
	IsDraft       *bool
	Creator       *string
}

type SchemaRepo interface {
	Create(dbc dbctx.Context, s *domain.Schema) (*domain.Schema, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Schema, error)
	List(dbc dbctx.Context, filter SchemaFilter) ([]*domain.Schema, error)
	Update(dbc dbctx.Context, s *domain.Schema) error
	Delete(dbc dbctx.Context, id uuid.UUID) error
}

type schemaRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSchemaRepo(db *gorm.DB, baseLog *logger.Logger) SchemaRepo {
	return &schemaRepo{db: db, log: baseLog.With("repo", "SchemaRepo")}
}

func (r *schemaRepo) tx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *schemaRepo) Create(dbc dbctx.Context, s *domain.Schema) (*domain.Schema, error) {
	if err := r.tx(dbc).WithContext(dbc.Ctx).Create(s).Error; err != nil {
		if repoutil.IsUniqueViolation(err) {
			return nil, cerr.Conflictf("schema %q already exists for this dataset", s.Name)
		}
		return nil, cerr.Internal(err)
	}
	return s, nil
}

func (r *schemaRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Schema, error) {
	var s domain.Schema
	if err := r.tx(dbc).WithContext(dbc.Ctx).First(&s, "id = ?", id).Error; err != nil {
		if repoutil.IsNotFound(err) {
			return nil, cerr.NotFoundf("schema %s not found", id)
		}
		return nil, cerr.Internal(err)
	}
	return &s, nil
}

func (r *schemaRepo) List(dbc dbctx.Context, filter SchemaFilter) ([]*domain.Schema, error) {
	q := r.tx(dbc).WithContext(dbc.Ctx).Model(&domain.Schema{})
	if filter.Name != nil {
		q = q.Where("name = ?", *filter.Name)
	}
	if filter.DatasetID != nil {
		q = q.Where("dataset_geid = ?", *filter.DatasetID)
	}
	if filter.TplID != nil {
		q = q.Where("tpl_geid = ?", *filter.TplID)
	}
	if filter.Standard != nil {
		q = q.Where("standard = ?", *filter.Standard)
	}
	if filter.SystemDefined != nil {
		q = q.Where("system_defined = ?", *filter.SystemDefined)
	}
	if filter.IsDraft != nil {
		q = q.Where("is_draft = ?", *filter.IsDraft)
	}
	if filter.Creator != nil {
		q = q.Where("creator = ?", *filter.Creator)
	}
	var rows []*domain.Schema
	if err := q.Order("create_timestamp asc").Find(&rows).Error; err != nil {
		return nil, cerr.Internal(err)
	}
	return rows, nil
}

func (r *schemaRepo) Update(dbc dbctx.Context, s *domain.Schema) error {
	s.UpdateTimestamp = time.Now().UTC()
	if err := r.tx(dbc).WithContext(dbc.Ctx).Save(s).Error; err != nil {
		if repoutil.IsUniqueViolation(err) {
			return cerr.Conflictf("schema %q already exists for this dataset", s.Name)
		}
		return cerr.Internal(err)
	}
	return nil
}

func (r *schemaRepo) Delete(dbc dbctx.Context, id uuid.UUID) error {
	res := r.tx(dbc).WithContext(dbc.Ctx).Delete(&domain.Schema{}, "id = ?", id)
	if res.Error != nil {
		return cerr.Internal(res.Error)
	}
	if res.RowsAffected == 0 {
		return cerr.NotFoundf("schema %s not found", id)
	}
	return nil
}
