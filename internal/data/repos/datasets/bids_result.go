package datasets

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/PilotDataPlatform/dataset-sub000/internal/core/cerr"
	"github.com/PilotDataPlatform/dataset-sub000/internal/data/repos/repoutil"
	"github.com/PilotDataPlatform/dataset-sub000/internal/domain"
	"github.com/PilotDataPlatform/dataset-sub000/internal/platform/dbctx"
	"github.com/PilotDataPlatform/dataset-sub000/internal/platform/logger"
)

type BIDSResultRepo interface {
	// Upsert keeps exactly one row per dataset code, overwriting the
	// validator output on conflict.
	Upsert(dbc dbctx.Context, result *domain.BIDSResult) error
	GetByCode(dbc dbctx.Context, datasetCode string) (*domain.BIDSResult, error)
}

type bidsResultRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewBIDSResultRepo(db *gorm.DB, baseLog *logger.Logger) BIDSResultRepo {
	return &bidsResultRepo{db: db, log: baseLog.With("repo", "BIDSResultRepo")}
}

func (r *bidsResultRepo) tx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *bidsResultRepo) Upsert(dbc dbctx.Context, result *domain.BIDSResult) error {
	result.UpdatedTime = time.Now().UTC()
	if err := r.tx(dbc).WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "dataset_code"}},
			DoUpdates: clause.AssignmentColumns([]string{"validate_output", "updated_time"}),
		}).
		Create(result).Error; err != nil {
		return cerr.Internal(err)
	}
	return nil
}

func (r *bidsResultRepo) GetByCode(dbc dbctx.Context, datasetCode string) (*domain.BIDSResult, error) {
	var row domain.BIDSResult
	if err := r.tx(dbc).WithContext(dbc.Ctx).
		First(&row, "dataset_code = ?", datasetCode).Error; err != nil {
		if repoutil.IsNotFound(err) {
			return nil, cerr.NotFoundf("no BIDS result for dataset %q", datasetCode)
		}
		return nil, cerr.Internal(err)
	}
	return &row, nil
}
