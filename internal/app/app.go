package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/PilotDataPlatform/dataset-sub000/internal/db"
	httpx "github.com/PilotDataPlatform/dataset-sub000/internal/http"
	"github.com/PilotDataPlatform/dataset-sub000/internal/platform/logger"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Cfg      Config
	Clients  Clients
	Repos    Repos
	Services Services
	Router   *gin.Engine

	cancel context.CancelFunc
}

func New() (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	cfg := LoadConfig(log)

	pg, err := db.NewPostgresService(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	if err := pg.AutoMigrateAll(); err != nil {
		log.Sync()
		return nil, fmt.Errorf("postgres automigrate: %w", err)
	}
	theDB := pg.DB()

	clientset, err := wireClients(log, cfg)
	if err != nil {
		log.Sync()
		return nil, err
	}

	reposet := wireRepos(theDB, log)

	ctx, cancel := context.WithCancel(context.Background())
	serviceset := wireServices(ctx, log, cfg, reposet, clientset)

	handlerset := wireHandlers(log, theDB, serviceset, clientset)
	router := httpx.NewRouter(httpx.RouterConfig{
		Log:      log,
		Mode:     cfg.LogMode,
		Datasets: handlerset.Datasets,
		Files:    handlerset.Files,
		Publish:  handlerset.Publish,
		Schemas:  handlerset.Schemas,
		Health:   handlerset.Health,
	})

	return &App{
		Log:      log,
		DB:       theDB,
		Cfg:      cfg,
		Clients:  clientset,
		Repos:    reposet,
		Services: serviceset,
		Router:   router,
		cancel:   cancel,
	}, nil
}

// Run serves until SIGINT/SIGTERM, then drains in-flight requests and
// background jobs before returning.
func (a *App) Run() error {
	srv := &http.Server{
		Addr:    ":" + a.Cfg.Port,
		Handler: a.Router,
	}

	errCh := make(chan error, 1)
	go func() {
		a.Log.Info("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		a.Log.Info("Shutting down...", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		a.Log.Error("HTTP shutdown failed", "error", err)
	}

	a.cancel()
	a.Services.Dispatcher.Wait()
	return nil
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.Clients.Events != nil {
		if err := a.Clients.Events.Close(); err != nil {
			a.Log.Warn("Closing event publisher failed", "error", err)
		}
	}
	if a.Clients.Redis != nil {
		if err := a.Clients.Redis.Close(); err != nil {
			a.Log.Warn("Closing redis client failed", "error", err)
		}
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
