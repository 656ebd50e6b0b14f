package datasets

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/PilotDataPlatform/dataset-sub000/internal/core/cerr"
	"github.com/PilotDataPlatform/dataset-sub000/internal/data/repos/repoutil"
	"github.com/PilotDataPlatform/dataset-sub000/internal/domain"
	"github.com/PilotDataPlatform/dataset-sub000/internal/platform/dbctx"
	"github.com/PilotDataPlatform/dataset-sub000/internal/platform/logger"
)

type VersionRepo interface {
	Create(dbc dbctx.Context, v *domain.Version) (*domain.Version, error)
	Exists(dbc dbctx.Context, datasetID uuid.UUID, version string) (bool, error)
	ListByDataset(dbc dbctx.Context, datasetID uuid.UUID, page, pageSize int) ([]*domain.Version, int64, error)
	GetLatest(dbc dbctx.Context, datasetID uuid.UUID) (*domain.Version, error)
}

type versionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewVersionRepo(db *gorm.DB, baseLog *logger.Logger) VersionRepo {
	return &versionRepo{db: db, log: baseLog.With("repo", "VersionRepo")}
}

func (r *versionRepo) tx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *versionRepo) Create(dbc dbctx.Context, v *domain.Version) (*domain.Version, error) {
	if err := r.tx(dbc).WithContext(dbc.Ctx).Create(v).Error; err != nil {
		if repoutil.IsUniqueViolation(err) {
			return nil, cerr.Conflictf("version %s already exists for dataset %s", v.Version, v.DatasetID)
		}
		return nil, cerr.Internal(err)
	}
	return v, nil
}

func (r *versionRepo) Exists(dbc dbctx.Context, datasetID uuid.UUID, version string) (bool, error) {
	var count int64
	if err := r.tx(dbc).WithContext(dbc.Ctx).
		Model(&domain.Version{}).
		Where("dataset_geid = ? AND version = ?", datasetID, version).
		Count(&count).Error; err != nil {
		return false, cerr.Internal(err)
	}
	return count > 0, nil
}

func (r *versionRepo) ListByDataset(dbc dbctx.Context, datasetID uuid.UUID, page, pageSize int) ([]*domain.Version, int64, error) {
	if page < 0 {
		page = 0
	}
	if pageSize <= 0 {
		pageSize = 10
	}
	q := r.tx(dbc).WithContext(dbc.Ctx).Model(&domain.Version{}).Where("dataset_geid = ?", datasetID)
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, cerr.Internal(err)
	}
	var rows []*domain.Version
	if err := q.Order("created_at desc").
		Offset(page * pageSize).
		Limit(pageSize).
		Find(&rows).Error; err != nil {
		return nil, 0, cerr.Internal(err)
	}
	return rows, total, nil
}

func (r *versionRepo) GetLatest(dbc dbctx.Context, datasetID uuid.UUID) (*domain.Version, error) {
	var v domain.Version
	if err := r.tx(dbc).WithContext(dbc.Ctx).
		Where("dataset_geid = ?", datasetID).
		Order("created_at desc").
		First(&v).Error; err != nil {
		if repoutil.IsNotFound(err) {
			return nil, cerr.NotFoundf("no versions for dataset %s", datasetID)
		}
		return nil, cerr.Internal(err)
	}
	return &v, nil
}
