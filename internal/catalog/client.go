package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/URBREATH/geoserver-publisher/internal/logger"
)

// Broker resource kinds, as path segments of the broker API.
const (
	kindDataset      = "dataset"
	kindDistribution = "distributiondcatap"
)

// BrokerClient talks to the catalog broker's REST API. A nil or disabled
// client turns all operations into no-op successes.
type BrokerClient struct {
	baseURL string
	client  *http.Client
	log     logger.Logger
}

// NewBrokerClient creates a broker client. An empty URL yields a disabled
// client.
func NewBrokerClient(baseURL string, log logger.Logger) *BrokerClient {
	return &BrokerClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
		log:     log,
	}
}

// Enabled reports whether the broker is configured.
func (c *BrokerClient) Enabled() bool {
	return c != nil && c.baseURL != ""
}

// upsert implements the broker's creation discipline: GET by id first and
// treat an existing resource as success without updating it; otherwise POST,
// treating 409 the same as a pre-existing resource. This is idempotent
// creation, not idempotent update.
func (c *BrokerClient) upsert(ctx context.Context, kind, id string, payload any) error {
	api := fmt.Sprintf("%s/api/%s", c.baseURL, kind)

	getReq, err := http.NewRequestWithContext(ctx, http.MethodGet, api+"/"+id, http.NoBody)
	if err != nil {
		return fmt.Errorf("create get request: %w", err)
	}
	getResp, err := c.client.Do(getReq)
	if err != nil {
		return fmt.Errorf("get %s %q: %w", kind, id, err)
	}
	io.Copy(io.Discard, getResp.Body)
	getResp.Body.Close()

	if getResp.StatusCode == http.StatusOK {
		c.log.Info("catalog resource exists, skipping",
			logger.String("kind", kind),
			logger.String("id", id))
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s %q: %w", kind, id, err)
	}

	c.log.Info("creating catalog resource",
		logger.String("kind", kind),
		logger.String("id", id))

	postReq, err := http.NewRequestWithContext(ctx, http.MethodPost, api, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create post request: %w", err)
	}
	postReq.Header.Set("Content-Type", "application/json")

	postResp, err := c.client.Do(postReq)
	if err != nil {
		return fmt.Errorf("post %s %q: %w", kind, id, err)
	}
	defer postResp.Body.Close()

	switch postResp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		return nil
	case http.StatusConflict:
		// Created concurrently or already present; same as the GET hit.
		return nil
	}

	respBody, _ := io.ReadAll(postResp.Body)
	return fmt.Errorf("create %s %q: status %d: %s", kind, id, postResp.StatusCode, respBody)
}

// UpsertDataset creates the dataset if it does not already exist.
func (c *BrokerClient) UpsertDataset(ctx context.Context, id string, payload any) error {
	return c.upsert(ctx, kindDataset, id, payload)
}

// UpsertDistribution creates the distribution if it does not already exist.
func (c *BrokerClient) UpsertDistribution(ctx context.Context, id string, payload any) error {
	return c.upsert(ctx, kindDistribution, id, payload)
}
