package lock

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PilotDataPlatform/dataset-sub000/internal/core/cerr"
	"github.com/PilotDataPlatform/dataset-sub000/internal/platform/logger"
)

const (
	OpRead  = "read"
	OpWrite = "write"
)

// Client talks to the external resource-lock service.
type Client interface {
	Acquire(ctx context.Context, key, operation string) error
	Release(ctx context.Context, key, operation string) error
}

type Config struct {
	BaseURL string
	Timeout time.Duration
}

type client struct {
	log     *logger.Logger
	baseURL string
	http    *http.Client
}

func NewClient(log *logger.Logger, cfg Config) Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &client{
		log:     log.With("service", "LockClient"),
		baseURL: strings.TrimRight(cfg.BaseURL, "/") + "/v2/resource/lock/",
		http:    &http.Client{Timeout: timeout},
	}
}

type lockRequest struct {
	ResourceKey string `json:"resource_key"`
	Operation   string `json:"operation"`
}

func (c *client) Acquire(ctx context.Context, key, operation string) error {
	return c.do(ctx, http.MethodPost, key, operation)
}

func (c *client) Release(ctx context.Context, key, operation string) error {
	return c.do(ctx, http.MethodDelete, key, operation)
}

func (c *client) do(ctx context.Context, method, key, operation string) error {
	raw, err := json.Marshal(lockRequest{ResourceKey: key, Operation: operation})
	if err != nil {
		return cerr.Internal(err)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL, bytes.NewReader(raw))
	if err != nil {
		return cerr.Internal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return cerr.Internal(fmt.Errorf("lock service unreachable: %w", err))
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusConflict {
		return cerr.Conflictf("resource %s is locked by another operation", key)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return cerr.Upstream(resp.StatusCode, string(body))
	}
	return nil
}
