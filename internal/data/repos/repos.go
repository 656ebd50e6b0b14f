package repos

import (
	"gorm.io/gorm"

	"github.com/PilotDataPlatform/dataset-sub000/internal/data/repos/datasets"
	"github.com/PilotDataPlatform/dataset-sub000/internal/data/repos/schemas"
	"github.com/PilotDataPlatform/dataset-sub000/internal/platform/logger"
)

type DatasetRepo = datasets.DatasetRepo
type VersionRepo = datasets.VersionRepo
type BIDSResultRepo = datasets.BIDSResultRepo

type SchemaTemplateRepo = schemas.TemplateRepo
type SchemaRepo = schemas.SchemaRepo
type SchemaFilter = schemas.SchemaFilter

func NewDatasetRepo(db *gorm.DB, log *logger.Logger) DatasetRepo {
	return datasets.NewDatasetRepo(db, log)
}

func NewVersionRepo(db *gorm.DB, log *logger.Logger) VersionRepo {
	return datasets.NewVersionRepo(db, log)
}

func NewBIDSResultRepo(db *gorm.DB, log *logger.Logger) BIDSResultRepo {
	return datasets.NewBIDSResultRepo(db, log)
}

func NewSchemaTemplateRepo(db *gorm.DB, log *logger.Logger) SchemaTemplateRepo {
	return schemas.NewTemplateRepo(db, log)
}

func NewSchemaRepo(db *gorm.DB, log *logger.Logger) SchemaRepo {
	return schemas.NewSchemaRepo(db, log)
}
