package project

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/PilotDataPlatform/dataset-sub000/internal/core/cerr"
	"github.com/PilotDataPlatform/dataset-sub000/internal/platform/logger"
)

type Project struct {
	ID   uuid.UUID `json:"id"`
	Code string    `json:"code"`
	Name string    `json:"name"`
}

// Gateway resolves projects from the external project service.
type Gateway interface {
	GetProject(ctx context.Context, id uuid.UUID) (*Project, error)
}

type Config struct {
	BaseURL string
	Timeout time.Duration
}

type gateway struct {
	log     *logger.Logger
	baseURL string
	http    *http.Client
}

func New(log *logger.Logger, cfg Config) Gateway {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &gateway{
		log:     log.With("service", "ProjectGateway"),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (g *gateway) GetProject(ctx context.Context, id uuid.UUID) (*Project, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/v1/projects/%s", g.baseURL, id), nil)
	if err != nil {
		return nil, cerr.Internal(err)
	}
	resp, err := g.http.Do(req)
	if err != nil {
		return nil, cerr.Internal(fmt.Errorf("project service unreachable: %w", err))
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, cerr.Internal(err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, cerr.NotFoundf("project %s not found", id)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, cerr.Upstream(resp.StatusCode, string(raw))
	}
	var p Project
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, cerr.Internal(fmt.Errorf("decode project response: %w", err))
	}
	return &p, nil
}
