package metadata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/PilotDataPlatform/dataset-sub000/internal/core/cerr"
	"github.com/PilotDataPlatform/dataset-sub000/internal/domain"
	"github.com/PilotDataPlatform/dataset-sub000/internal/platform/logger"
)

// Gateway is a thin, retry-free adapter over the external metadata service.
type Gateway interface {
	GetItem(ctx context.Context, id uuid.UUID) (*domain.Item, error)
	// Search lists items of a container. With recursive=false only the
	// top level under the root folder is returned.
	Search(ctx context.Context, q SearchQuery) ([]*domain.Item, int, error)
	CreateItem(ctx context.Context, payload CreateItemPayload) (*domain.Item, error)
	DeleteItem(ctx context.Context, id uuid.UUID) error
	// GetSubtree returns the direct children of the given item.
	GetSubtree(ctx context.Context, startID uuid.UUID) ([]*domain.Item, error)
	BatchGet(ctx context.Context, ids []uuid.UUID) ([]*domain.Item, error)
}

type SearchQuery struct {
	ContainerCode string
	ContainerType string
	Zone          *int
	Recursive     bool
	ParentPath    string
	Page          int
	PageSize      int
	OrderBy       string
	OrderType     string
}

type CreateItemPayload struct {
	Parent        *uuid.UUID `json:"parent"`
	ParentPath    string     `json:"parent_path"`
	Type          string     `json:"type"`
	Zone          int        `json:"zone"`
	Name          string     `json:"name"`
	Size          int64      `json:"size"`
	Owner         string     `json:"owner"`
	ContainerCode string     `json:"container_code"`
	ContainerType string     `json:"container_type"`
	LocationURI   string     `json:"location_uri,omitempty"`
}

type Config struct {
	BaseURL string
	Timeout time.Duration
}

type gateway struct {
	log     *logger.Logger
	baseURL string
	client  *http.Client
}

func New(log *logger.Logger, cfg Config) Gateway {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &gateway{
		log:     log.With("service", "MetadataGateway"),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type itemEnvelope struct {
	Result *domain.Item `json:"result"`
}

type itemListEnvelope struct {
	Result []*domain.Item `json:"result"`
	Total  int            `json:"total"`
}

func (g *gateway) GetItem(ctx context.Context, id uuid.UUID) (*domain.Item, error) {
	var env itemEnvelope
	if err := g.do(ctx, http.MethodGet, fmt.Sprintf("/v1/item/%s/", id), nil, &env); err != nil {
		return nil, err
	}
	if env.Result == nil {
		return nil, cerr.NotFoundf("item %s not found", id)
	}
	return env.Result, nil
}

func (g *gateway) Search(ctx context.Context, q SearchQuery) ([]*domain.Item, int, error) {
	params := url.Values{}
	params.Set("container_code", q.ContainerCode)
	params.Set("container_type", q.ContainerType)
	params.Set("recursive", strconv.FormatBool(q.Recursive))
	if q.Zone != nil {
		params.Set("zone", strconv.Itoa(*q.Zone))
	}
	if q.ParentPath != "" {
		params.Set("parent_path", q.ParentPath)
	}
	if q.Page > 0 {
		params.Set("page", strconv.Itoa(q.Page))
	}
	if q.PageSize > 0 {
		params.Set("page_size", strconv.Itoa(q.PageSize))
	}
	if q.OrderBy != "" {
		params.Set("sorting", q.OrderBy)
		params.Set("order", q.OrderType)
	}
	var env itemListEnvelope
	if err := g.do(ctx, http.MethodGet, "/v1/items/search/?"+params.Encode(), nil, &env); err != nil {
		return nil, 0, err
	}
	return env.Result, env.Total, nil
}

func (g *gateway) CreateItem(ctx context.Context, payload CreateItemPayload) (*domain.Item, error) {
	var env itemEnvelope
	if err := g.do(ctx, http.MethodPost, "/v1/item/", payload, &env); err != nil {
		return nil, err
	}
	if env.Result == nil {
		return nil, cerr.Internal(fmt.Errorf("metadata create returned empty result"))
	}
	return env.Result, nil
}

func (g *gateway) DeleteItem(ctx context.Context, id uuid.UUID) error {
	return g.do(ctx, http.MethodDelete, fmt.Sprintf("/v1/item/?id=%s", id), nil, nil)
}

func (g *gateway) GetSubtree(ctx context.Context, startID uuid.UUID) ([]*domain.Item, error) {
	var env itemListEnvelope
	path := fmt.Sprintf("/v1/items/search/?parent_id=%s", startID)
	if err := g.do(ctx, http.MethodGet, path, nil, &env); err != nil {
		return nil, err
	}
	return env.Result, nil
}

func (g *gateway) BatchGet(ctx context.Context, ids []uuid.UUID) ([]*domain.Item, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	params := url.Values{}
	for _, id := range ids {
		params.Add("ids", id.String())
	}
	var env itemListEnvelope
	if err := g.do(ctx, http.MethodGet, "/v1/items/batch/?"+params.Encode(), nil, &env); err != nil {
		return nil, err
	}
	return env.Result, nil
}

func (g *gateway) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return cerr.Internal(fmt.Errorf("marshal metadata request: %w", err))
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return cerr.Internal(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return cerr.Internal(fmt.Errorf("metadata service unreachable: %w", err))
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return cerr.Internal(fmt.Errorf("read metadata response: %w", err))
	}
	if resp.StatusCode == http.StatusNotFound {
		return cerr.NotFoundf("metadata: %s", strings.TrimSpace(string(raw)))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		g.log.Error("Metadata service returned error", "method", method, "path", path, "status", resp.StatusCode)
		return cerr.Upstream(resp.StatusCode, string(raw))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return cerr.Internal(fmt.Errorf("decode metadata response: %w", err))
	}
	return nil
}
