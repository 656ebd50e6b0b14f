package queue

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

// Envelope is the legacy bus message shape the queue service relays.
type Envelope struct {
	EventType  string         `json:"event_type"`
	Payload    map[string]any `json:"payload"`
	Queue      string         `json:"queue"`
	RoutingKey string         `json:"routing_key"`
	Exchange   Exchange       `json:"exchange"`
}

type Exchange struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Client posts envelopes to the queue service broker endpoint and socket
// notifications to its socket endpoint.
type Client interface {
	SendMessage(ctx context.Context, env Envelope) error
	SendNotification(ctx context.Context, payload map[string]any) error
	// SendDatasetAction relays one schema/import/delete/move/rename/publish
	// activity envelope on the legacy bus.
	SendDatasetAction(ctx context.Context, action string, payload map[string]any) error
	// RequestBIDSValidation asks the BIDS validator worker to inspect a
	// dataset.
	RequestBIDSValidation(ctx context.Context, datasetCode, accessToken, refreshToken string) error
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

func New(log *logger.Logger, cfg Config) Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &client{
		log:     log.With("service", "QueueClient"),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *client) SendMessage(ctx context.Context, env Envelope) error {
	return c.post(ctx, "/v1/broker/pub", env)
}

func (c *client) SendNotification(ctx context.Context, payload map[string]any) error {
	return c.post(ctx, "/v1/socketio/emit", payload)
}

func (c *client) SendDatasetAction(ctx context.Context, action string, payload map[string]any) error {
	return c.SendMessage(ctx, Envelope{
		EventType:  action,
		Payload:    payload,
		Queue:      "dataset_actions",
		RoutingKey: action,
		Exchange:   Exchange{Name: "dataset_actions_exchange", Type: "topic"},
	})
}

func (c *client) RequestBIDSValidation(ctx context.Context, datasetCode, accessToken, refreshToken string) error {
	return c.SendMessage(ctx, Envelope{
		EventType: "bids_validate",
		Payload: map[string]any{
			"dataset_geid":  datasetCode,
			"access_token":  accessToken,
			"refresh_token": refreshToken,
		},
		Queue:      "bids_validate",
		RoutingKey: "bids_validate",
		Exchange:   Exchange{Name: "bids_validate_exchange", Type: "topic"},
	})
}

func (c *client) post(ctx context.Context, path string, body any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return cerr.Internal(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return cerr.Internal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return cerr.Internal(fmt.Errorf("queue service unreachable: %w", err))
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return cerr.Upstream(resp.StatusCode, string(respBody))
	}
	return nil
}
