package app

import (
	"gorm.io/gorm"

	"github.com/PilotDataPlatform/dataset-sub000/internal/http/handlers"
	"github.com/PilotDataPlatform/dataset-sub000/internal/platform/logger"
)

type Handlers struct {
	Datasets *handlers.DatasetHandler
	Files    *handlers.FileHandler
	Publish  *handlers.PublishHandler
	Schemas  *handlers.SchemaHandler
	Health   *handlers.HealthHandler
}

func wireHandlers(log *logger.Logger, db *gorm.DB, s Services, c Clients) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Datasets: handlers.NewDatasetHandler(log, s.Datasets),
		Files:    handlers.NewFileHandler(log, s.FileOps, c.Tracker),
		Publish:  handlers.NewPublishHandler(log, s.Publish),
		Schemas:  handlers.NewSchemaHandler(log, s.Schemas),
		Health:   handlers.NewHealthHandler(log, db, c.Events),
	}
}
