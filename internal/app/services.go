package app

import (
	"context"

	"github.com/PilotDataPlatform/dataset-sub000/internal/jobs"
	"github.com/PilotDataPlatform/dataset-sub000/internal/platform/logger"
	"github.com/PilotDataPlatform/dataset-sub000/internal/services/datasetsvc"
	"github.com/PilotDataPlatform/dataset-sub000/internal/services/fileops"
	"github.com/PilotDataPlatform/dataset-sub000/internal/services/publishsvc"
	"github.com/PilotDataPlatform/dataset-sub000/internal/services/schemasvc"
)

type Services struct {
	Schemas  *schemasvc.Service
	Datasets *datasetsvc.Service
	FileOps  *fileops.Service
	Publish  *publishsvc.Service

	Dispatcher *jobs.Dispatcher
}

func wireServices(base context.Context, log *logger.Logger, cfg Config, r Repos, c Clients) Services {
	log.Info("Wiring services...")

	dispatcher := jobs.NewDispatcher(base, log, cfg.WorkerConcurrency)

	schemas := schemasvc.New(log, r.SchemaTemplate, r.Schema, r.Dataset, c.Queue, c.Events, cfg.EssentialName, cfg.EssentialTplName)

	datasets := datasetsvc.New(log, datasetsvc.Config{
		RootFolder:     cfg.RootFolder,
		CoreZone:       cfg.CoreZone(),
		MaxPreviewSize: cfg.MaxPreviewSize,
	}, r.Dataset, r.Version, r.BIDSResult, c.Meta, c.Store, c.Queue, schemas, c.Events)

	fileOps := fileops.New(log, fileops.Config{
		RootFolder: cfg.RootFolder,
		CoreZone:   cfg.CoreZone(),
	}, r.Dataset, c.Meta, c.Store, c.Locks, c.Tracker, c.Projects, c.Queue, c.Events, dispatcher)

	publish := publishsvc.New(log, publishsvc.Config{
		RootFolder:     cfg.RootFolder,
		DownloadKey:    cfg.DownloadKey,
		DownloadExpiry: cfg.DownloadExpiry,
	}, r.Dataset, r.Version, r.Schema, c.Meta, c.Store, c.Locks, c.Tracker, c.Queue, c.Events, dispatcher)

	return Services{
		Schemas:    schemas,
		Datasets:   datasets,
		FileOps:    fileOps,
		Publish:    publish,
		Dispatcher: dispatcher,
	}
}
