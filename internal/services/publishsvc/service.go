package publishsvc

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/PilotDataPlatform/dataset-sub000/internal/clients/lock"
	"github.com/PilotDataPlatform/dataset-sub000/internal/clients/metadata"
	"github.com/PilotDataPlatform/dataset-sub000/internal/clients/objectstore"
	"github.com/PilotDataPlatform/dataset-sub000/internal/clients/queue"
	"github.com/PilotDataPlatform/dataset-sub000/internal/core/cerr"
	"github.com/PilotDataPlatform/dataset-sub000/internal/data/repos"
	"github.com/PilotDataPlatform/dataset-sub000/internal/domain"
	"github.com/PilotDataPlatform/dataset-sub000/internal/events"
	"github.com/PilotDataPlatform/dataset-sub000/internal/jobs"
	"github.com/PilotDataPlatform/dataset-sub000/internal/platform/dbctx"
	"github.com/PilotDataPlatform/dataset-sub000/internal/platform/logger"
)

var versionPattern = regexp.MustCompile(`^\d+\.\d+$`)

const maxNotesLength = 250

type Config struct {
	RootFolder     string
	DownloadKey    string
	DownloadExpiry time.Duration
}

// StatusStore is the publish-status slice of the task tracker.
type StatusStore interface {
	SetPublishStatus(ctx context.Context, datasetID string, status domain.PublishStatus) error
	GetPublishStatus(ctx context.Context, datasetID string) (*domain.PublishStatus, error)
}

// Service assembles immutable zip snapshots of datasets and hands out
// short-lived download tokens for them.
type Service struct {
	log        *logger.Logger
	cfg        Config
	datasets   repos.DatasetRepo
	versions   repos.VersionRepo
	schemas    repos.SchemaRepo
	meta       metadata.Gateway
	store      objectstore.Store
	locks      lock.Client
	status     StatusStore
	queue      queue.Client
	events     events.Publisher
	dispatcher *jobs.Dispatcher
}

func New(log *logger.Logger, cfg Config, datasets repos.DatasetRepo, versions repos.VersionRepo, schemas repos.SchemaRepo, meta metadata.Gateway, store objectstore.Store, locks lock.Client, status StatusStore, q queue.Client, pub events.Publisher, dispatcher *jobs.Dispatcher) *Service {
	return &Service{
		log:        log.With("service", "PublishService"),
		cfg:        cfg,
		datasets:   datasets,
		versions:   versions,
		schemas:    schemas,
		meta:       meta,
		store:      store,
		locks:      locks,
		status:     status,
		queue:      q,
		events:     pub,
		dispatcher: dispatcher,
	}
}

type PublishInput struct {
	Version  string `json:"version"`
	Notes    string `json:"notes"`
	Operator string `json:"operator"`
}

// Publish validates the preconditions synchronously and dispatches the
// snapshot build. The returned status id is what the polling endpoint takes.
func (s *Service) Publish(ctx context.Context, datasetID uuid.UUID, in PublishInput) (string, error) {
	dbc := dbctx.Context{Ctx: ctx}
	ds, err := s.datasets.GetByID(dbc, datasetID)
	if err != nil {
		return "", err
	}
	if len(in.Notes) > maxNotesLength {
		return "", cerr.BadRequestf("notes longer than %d characters", maxNotesLength)
	}
	if !versionPattern.MatchString(in.Version) {
		return "", cerr.BadRequestf("version %q must match ^\\d+\\.\\d+$", in.Version)
	}
	current, err := s.status.GetPublishStatus(ctx, datasetID.String())
	if err != nil {
		return "", err
	}
	if current != nil && current.Status == domain.PublishStatusInProgress {
		return "", cerr.BadRequestf("Dataset is inprogress of publishing")
	}
	exists, err := s.versions.Exists(dbc, datasetID, in.Version)
	if err != nil {
		return "", err
	}
	if exists {
		return "", cerr.Conflictf("version %s already published for dataset %q", in.Version, ds.Code)
	}

	if err := s.status.SetPublishStatus(ctx, datasetID.String(), domain.PublishStatus{Status: domain.PublishStatusInProgress}); err != nil {
		return "", err
	}
	s.dispatcher.Submit("publish-"+ds.Code, func(bg context.Context) {
		s.runPublish(bg, ds, in)
	})
	return datasetID.String(), nil
}

func (s *Service) runPublish(ctx context.Context, ds *domain.Dataset, in PublishInput) {
	if err := s.buildSnapshot(ctx, ds, in); err != nil {
		s.log.Error("Publish failed", "dataset", ds.Code, "version", in.Version, "error", err)
		if statusErr := s.status.SetPublishStatus(ctx, ds.ID.String(), domain.PublishStatus{
			Status:   domain.PublishStatusFailed,
			ErrorMsg: err.Error(),
		}); statusErr != nil {
			s.log.Error("Failed to record publish failure", "dataset", ds.Code, "error", statusErr)
		}
		return
	}
	if err := s.status.SetPublishStatus(ctx, ds.ID.String(), domain.PublishStatus{Status: domain.PublishStatusSuccess}); err != nil {
		s.log.Error("Failed to record publish success", "dataset", ds.Code, "error", err)
	}
}

func (s *Service) buildSnapshot(ctx context.Context, ds *domain.Dataset, in PublishInput) error {
	files, err := s.datasetFiles(ctx, ds)
	if err != nil {
		return err
	}

	coord := lock.NewCoordinator(s.log, s.locks)
	if err := coord.AcquireAll(ctx, lock.PlanPublish(files, ds.Code)); err != nil {
		return err
	}
	defer coord.ReleaseAll(ctx)

	tmpDir, err := os.MkdirTemp("", "publish-"+ds.Code+"-")
	if err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	for _, file := range files {
		relPath := strings.TrimPrefix(file.DisplayPath(), s.cfg.RootFolder+"/")
		local := filepath.Join(tmpDir, filepath.FromSlash(relPath))
		if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
			return fmt.Errorf("prepare %s: %w", relPath, err)
		}
		bucket, key, err := objectstore.ParseLocationURI(file.Storage.LocationURI)
		if err != nil {
			return err
		}
		if err := s.store.FGet(ctx, bucket, key, local); err != nil {
			return err
		}
	}

	if err := s.writeSchemaSidecars(ctx, ds, tmpDir); err != nil {
		return err
	}

	zipName := fmt.Sprintf("%s_%s.zip", ds.Code, time.Now().UTC().Format("20060102150405"))
	zipPath := filepath.Join(os.TempDir(), zipName)
	defer os.Remove(zipPath)
	if err := zipDirectory(tmpDir, zipPath); err != nil {
		return fmt.Errorf("zip snapshot: %w", err)
	}

	key := "versions/" + zipName
	if err := s.store.FPut(ctx, ds.Code, key, zipPath); err != nil {
		return err
	}
	location := s.store.LocationURI(ds.Code, key)

	if _, err := s.versions.Create(dbctx.Context{Ctx: ctx}, &domain.Version{
		DatasetCode: ds.Code,
		DatasetID:   ds.ID,
		Version:     in.Version,
		CreatedBy:   in.Operator,
		Location:    location,
		Notes:       in.Notes,
	}); err != nil {
		return err
	}

	// The release event is the one emit whose delivery the pipeline insists
	// on; losing it silently would hide the new version from consumers.
	if err := s.events.PublishDatasetActivity(ctx, events.DatasetActivity{
		ActivityType:  events.ActivityRelease,
		ContainerCode: ds.Code,
		Version:       events.StrPtr(in.Version),
		User:          in.Operator,
	}); err != nil {
		return fmt.Errorf("publish release event: %w", err)
	}

	if err := s.queue.SendDatasetAction(ctx, domain.ActionPublish, map[string]any{
		"dataset_code": ds.Code,
		"operator":     in.Operator,
		"version":      in.Version,
	}); err != nil {
		s.log.Error("Failed to relay publish activity to legacy bus", "dataset", ds.Code, "error", err)
	}
	return nil
}

func (s *Service) datasetFiles(ctx context.Context, ds *domain.Dataset) ([]*domain.Item, error) {
	items, _, err := s.meta.Search(ctx, metadata.SearchQuery{
		ContainerCode: ds.Code,
		ContainerType: domain.ContainerTypeDataset,
		Recursive:     true,
		PageSize:      10000,
	})
	if err != nil {
		return nil, err
	}
	var files []*domain.Item
	for _, item := range items {
		if item.IsFile() && !item.Archived {
			files = append(files, item)
		}
	}
	return files, nil
}

// writeSchemaSidecars dumps every non-draft schema of the dataset into the
// snapshot directory, default_<name> for the default standard and
// openMINDS_<name> for open_minds.
func (s *Service) writeSchemaSidecars(ctx context.Context, ds *domain.Dataset, dir string) error {
	isDraft := false
	rows, err := s.schemas.List(dbctx.Context{Ctx: ctx}, repos.SchemaFilter{DatasetID: &ds.ID, IsDraft: &isDraft})
	if err != nil {
		return err
	}
	for _, row := range rows {
		var prefix string
		switch row.Standard {
		case domain.SchemaStandardOpenMinds:
			prefix = "openMINDS_"
		default:
			prefix = "default_"
		}
		var pretty bytes.Buffer
		if err := json.Indent(&pretty, row.Content, "", "    "); err != nil {
			return fmt.Errorf("format schema %s: %w", row.Name, err)
		}
		path := filepath.Join(dir, prefix+row.Name)
		if err := os.WriteFile(path, pretty.Bytes(), 0o644); err != nil {
			return fmt.Errorf("write schema sidecar %s: %w", row.Name, err)
		}
	}
	return nil
}

func zipDirectory(srcDir, dstPath string) error {
	out, err := os.Create(dstPath)
	if err != nil {
		return err
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	defer zw.Close()

	return filepath.Walk(srcDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		w, err := zw.Create(filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(w, f)
		return err
	})
}

// GetStatus returns the stored publish status, NotFound when no publish ran
// within the status TTL.
func (s *Service) GetStatus(ctx context.Context, datasetID uuid.UUID) (*domain.PublishStatus, error) {
	status, err := s.status.GetPublishStatus(ctx, datasetID.String())
	if err != nil {
		return nil, err
	}
	if status == nil {
		return nil, cerr.NotFoundf("no publish status for dataset %s", datasetID)
	}
	return status, nil
}

func (s *Service) ListVersions(ctx context.Context, datasetID uuid.UUID, page, pageSize int) ([]*domain.Version, int64, error) {
	return s.versions.ListByDataset(dbctx.Context{Ctx: ctx}, datasetID, page, pageSize)
}

// DownloadToken mints a short-lived HMAC token over a version's stored
// location; the byte stream itself is served elsewhere.
func (s *Service) DownloadToken(ctx context.Context, datasetID uuid.UUID, version string) (string, error) {
	dbc := dbctx.Context{Ctx: ctx}
	var row *domain.Version
	var err error
	if version == "" {
		row, err = s.versions.GetLatest(dbc, datasetID)
	} else {
		var rows []*domain.Version
		rows, _, err = s.versions.ListByDataset(dbc, datasetID, 0, 1000)
		if err == nil {
			for _, candidate := range rows {
				if candidate.Version == version {
					row = candidate
					break
				}
			}
			if row == nil {
				err = cerr.NotFoundf("version %s not found for dataset %s", version, datasetID)
			}
		}
	}
	if err != nil {
		return "", err
	}

	claims := jwt.MapClaims{
		"location": row.Location,
		"exp":      time.Now().Add(s.cfg.DownloadExpiry).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.DownloadKey))
	if err != nil {
		return "", cerr.Internal(err)
	}
	return token, nil
}
