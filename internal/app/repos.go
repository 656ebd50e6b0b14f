package app

import (
	"gorm.io/gorm"

	"github.com/PilotDataPlatform/dataset-sub000/internal/data/repos"
	"github.com/PilotDataPlatform/dataset-sub000/internal/platform/logger"
)

type Repos struct {
	Dataset        repos.DatasetRepo
	Version        repos.VersionRepo
	BIDSResult     repos.BIDSResultRepo
	SchemaTemplate repos.SchemaTemplateRepo
	Schema         repos.SchemaRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Dataset:        repos.NewDatasetRepo(db, log),
		Version:        repos.NewVersionRepo(db, log),
		BIDSResult:     repos.NewBIDSResultRepo(db, log),
		SchemaTemplate: repos.NewSchemaTemplateRepo(db, log),
		Schema:         repos.NewSchemaRepo(db, log),
	}
}
