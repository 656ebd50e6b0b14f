package http

import (
	"github.com/gin-gonic/gin"

	"github.com/PilotDataPlatform/dataset-sub000/internal/http/handlers"
	"github.com/PilotDataPlatform/dataset-sub000/internal/http/middleware"
	"github.com/PilotDataPlatform/dataset-sub000/internal/platform/logger"
)

type RouterConfig struct {
	Log      *logger.Logger
	Mode     string
	Datasets *handlers.DatasetHandler
	Files    *handlers.FileHandler
	Publish  *handlers.PublishHandler
	Schemas  *handlers.SchemaHandler
	Health   *handlers.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	switch cfg.Mode {
	case "prod", "production", "release":
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.CORS())
	r.Use(middleware.RequestLogger(cfg.Log))

	r.GET("/health", cfg.Health.Check)

	v1 := r.Group("/v1")

	v1.POST("/dataset", cfg.Datasets.Create)
	v1.GET("/dataset-peek/:code", cfg.Datasets.Peek)
	v1.POST("/users/:username/datasets", cfg.Datasets.ListByCreator)
	v1.POST("/dataset/verify/pre", cfg.Datasets.VerifyPre)
	v1.GET("/dataset/bids-msg/:id", cfg.Datasets.BIDSResult)

	ds := v1.Group("/dataset/:id")
	{
		ds.GET("", cfg.Datasets.Get)
		ds.PUT("", cfg.Datasets.Update)
		ds.POST("/folder", cfg.Datasets.CreateFolder)
		ds.GET("/files", cfg.Datasets.ListFiles)
		ds.GET("/preview/:item_id", cfg.Datasets.Preview)

		ds.PUT("/files", cfg.Files.Import)
		ds.POST("/files", cfg.Files.Move)
		ds.DELETE("/files", cfg.Files.Delete)
		ds.POST("/files/:item_id", cfg.Files.Rename)
		ds.GET("/tasks", cfg.Files.Tasks)

		ds.POST("/publish", cfg.Publish.Publish)
		ds.GET("/publish/status", cfg.Publish.Status)
		ds.GET("/versions", cfg.Publish.ListVersions)
		ds.GET("/download/pre", cfg.Publish.DownloadPre)

		ds.POST("/schemaTPL", cfg.Schemas.CreateTemplate)
		ds.POST("/schemaTPL/list", cfg.Schemas.ListTemplates)
		ds.GET("/schemaTPL/:tid", cfg.Schemas.GetTemplate)
		ds.PUT("/schemaTPL/:tid", cfg.Schemas.UpdateTemplate)
		ds.DELETE("/schemaTPL/:tid", cfg.Schemas.DeleteTemplate)
	}

	v1.POST("/schema", cfg.Schemas.CreateSchema)
	v1.POST("/schema/list", cfg.Schemas.ListSchemas)
	v1.GET("/schema/:id", cfg.Schemas.GetSchema)
	v1.PUT("/schema/:id", cfg.Schemas.UpdateSchema)
	v1.DELETE("/schema/:id", cfg.Schemas.DeleteSchema)

	return r
}
