package datasets

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

type DatasetRepo interface {
	Create(dbc dbctx.Context, ds *domain.Dataset) (*domain.Dataset, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Dataset, error)
	GetByCode(dbc dbctx.Context, code string) (*domain.Dataset, error)
	ListByCreator(dbc dbctx.Context, creator string, page, pageSize int, orderBy, orderType string) ([]*domain.Dataset, int64, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]any) error
	// AddToAggregates shifts size/total_files by the given deltas.
	AddToAggregates(dbc dbctx.Context, id uuid.UUID, deltaFiles, deltaSize int64) error
	SetProjectID(dbc dbctx.Context, id, projectID uuid.UUID) error
}

type datasetRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDatasetRepo(db *gorm.DB, baseLog *logger.Logger) DatasetRepo {
	return &datasetRepo{db: db, log: baseLog.With("repo", "DatasetRepo")}
}

func (r *datasetRepo) tx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *datasetRepo) Create(dbc dbctx.Context, ds *domain.Dataset) (*domain.Dataset, error) {
	if err := r.tx(dbc).WithContext(dbc.Ctx).Create(ds).Error; err != nil {
		if repoutil.IsUniqueViolation(err) {
			return nil, cerr.Conflictf("dataset code %q already taken", ds.Code)
		}
		return nil, cerr.Internal(err)
	}
	return ds, nil
}

func (r *datasetRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Dataset, error) {
	var ds domain.Dataset
	if err := r.tx(dbc).WithContext(dbc.Ctx).First(&ds, "id = ?", id).Error; err != nil {
		if repoutil.IsNotFound(err) {
			return nil, cerr.NotFoundf("dataset %s not found", id)
		}
		return nil, cerr.Internal(err)
	}
	return &ds, nil
}

func (r *datasetRepo) GetByCode(dbc dbctx.Context, code string) (*domain.Dataset, error) {
	var ds domain.Dataset
	if err := r.tx(dbc).WithContext(dbc.Ctx).First(&ds, "code = ?", code).Error; err != nil {
		if repoutil.IsNotFound(err) {
			return nil, cerr.NotFoundf("dataset %q not found", code)
		}
		return nil, cerr.Internal(err)
	}
	return &ds, nil
}

func (r *datasetRepo) ListByCreator(dbc dbctx.Context, creator string, page, pageSize int, orderBy, orderType string) ([]*domain.Dataset, int64, error) {
	if page < 0 {
		page = 0
	}
	if pageSize <= 0 {
		pageSize = 10
	}
	switch orderBy {
	case "created_at", "updated_at", "code", "title":
	default:
		orderBy = "created_at"
	}
	if orderType != "asc" {
		orderType = "desc"
	}

	q := r.tx(dbc).WithContext(dbc.Ctx).Model(&domain.Dataset{}).Where("creator = ?", creator)
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, cerr.Internal(err)
	}
	var rows []*domain.Dataset
	if err := q.Order(orderBy + " " + orderType).
		Offset(page * pageSize).
		Limit(pageSize).
		Find(&rows).Error; err != nil {
		return nil, 0, cerr.Internal(err)
	}
	return rows, total, nil
}

func (r *datasetRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	updates["updated_at"] = time.Now().UTC()
	if err := r.tx(dbc).WithContext(dbc.Ctx).
		Model(&domain.Dataset{}).
		Where("id = ?", id).
		Updates(updates).Error; err != nil {
		return cerr.Internal(err)
	}
	return nil
}

func (r *datasetRepo) AddToAggregates(dbc dbctx.Context, id uuid.UUID, deltaFiles, deltaSize int64) error {
	if deltaFiles == 0 && deltaSize == 0 {
		return nil
	}
	if err := r.tx(dbc).WithContext(dbc.Ctx).
		Model(&domain.Dataset{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"total_files": gorm.Expr("GREATEST(total_files + ?, 0)", deltaFiles),
			"size":        gorm.Expr("GREATEST(size + ?, 0)", deltaSize),
			"updated_at":  time.Now().UTC(),
		}).Error; err != nil {
		return cerr.Internal(err)
	}
	return nil
}

func (r *datasetRepo) SetProjectID(dbc dbctx.Context, id, projectID uuid.UUID) error {
	if err := r.tx(dbc).WithContext(dbc.Ctx).
		Model(&domain.Dataset{}).
		Where("id = ? AND project_id IS NULL", id).
		Update("project_id", projectID).Error; err != nil {
		return cerr.Internal(err)
	}
	return nil
}
