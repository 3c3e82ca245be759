// Package geoserver implements the map-server REST facade consumed by the
// resource publisher: workspace, datastore, coveragestore, style, and layer
// operations against the GeoServer REST API.
package geoserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/URBREATH/geoserver-publisher/internal/config"
	"github.com/URBREATH/geoserver-publisher/internal/domain"
	"github.com/URBREATH/geoserver-publisher/internal/logger"
)

const (
	contentTypeJSON = "application/json"
	contentTypeSLD  = "application/vnd.ogc.sld+xml"
	contentTypeZip  = "application/zip"
	contentTypeTIFF = "image/tiff"

	defaultTimeout = 30 * time.Second
)

// Client talks to the GeoServer REST API using basic authentication.
type Client struct {
	baseURL  string
	username string
	password string
	client   *http.Client
	log      logger.Logger
}

// NewClient creates a GeoServer client from config.
func NewClient(cfg config.GeoServerConfig, log logger.Logger) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("geoserver URL is required")
	}

	return &Client{
		baseURL:  strings.TrimSuffix(cfg.URL, "/") + "/rest",
		username: cfg.Username,
		password: cfg.Password,
		client: &http.Client{
			Timeout: defaultTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		log: log,
	}, nil
}

// do sends a request with auth and the given content type, returning the
// response status and fully-read body.
func (c *Client) do(ctx context.Context, method, url, contentType string, body io.Reader) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(c.username, c.password)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", contentTypeJSON)

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}

// EnsureWorkspace checks that the workspace exists and creates it when the
// server reports 404. Any other status is an error.
func (c *Client) EnsureWorkspace(ctx context.Context, workspace string) error {
	status, body, err := c.do(ctx, http.MethodGet,
		fmt.Sprintf("%s/workspaces/%s", c.baseURL, workspace), "", http.NoBody)
	if err != nil {
		return err
	}

	switch status {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
		c.log.Info("workspace not found, creating",
			logger.String("workspace", workspace))

		payload, marshalErr := json.Marshal(map[string]any{
			"workspace": map[string]string{"name": workspace},
		})
		if marshalErr != nil {
			return fmt.Errorf("marshal workspace payload: %w", marshalErr)
		}

		createStatus, createBody, createErr := c.do(ctx, http.MethodPost,
			c.baseURL+"/workspaces", contentTypeJSON, bytes.NewReader(payload))
		if createErr != nil {
			return createErr
		}
		if createStatus != http.StatusCreated {
			return fmt.Errorf("create workspace %q: status %d: %s", workspace, createStatus, createBody)
		}
		return nil
	default:
		return fmt.Errorf("check workspace %q: status %d: %s", workspace, status, body)
	}
}

// storeExists reports whether an upload failure indicates the store is
// already present. GeoServer answers 500 with an "already exists" message
// on repeat uploads, which the publisher must treat as success so that
// re-delivered requests stay idempotent.
func storeExists(status int, body []byte) bool {
	return status == http.StatusInternalServerError &&
		strings.Contains(string(body), "already exists")
}

// PublishVectorData uploads a shapefile (with its sidecar files) as a zip
// archive, creating or refreshing the named datastore and its first layer.
func (c *Client) PublishVectorData(ctx context.Context, workspace, store, localPath string) error {
	archive, err := buildShapefileArchive(localPath)
	if err != nil {
		return fmt.Errorf("bundle shapefile %q: %w", localPath, err)
	}

	url := fmt.Sprintf("%s/workspaces/%s/datastores/%s/file.shp?configure=first",
		c.baseURL, workspace, store)

	c.log.Info("uploading vector data",
		logger.String("workspace", workspace),
		logger.String("store", store),
		logger.Int("archive_bytes", len(archive)))

	status, body, err := c.do(ctx, http.MethodPut, url, contentTypeZip, bytes.NewReader(archive))
	if err != nil {
		return err
	}
	if status == http.StatusOK || status == http.StatusCreated {
		return nil
	}
	if storeExists(status, body) {
		c.log.Warn("datastore already exists, treating as published",
			logger.String("store", store))
		return nil
	}
	return fmt.Errorf("upload shapefile to store %q: status %d: %s", store, status, body)
}

// PublishVectorReference creates a datastore pointing at a file already on
// the map server's data volume and publishes its first feature type. Used
// for formats the file upload endpoint does not accept, like GeoJSON.
func (c *Client) PublishVectorReference(ctx context.Context, workspace, store, serverPath string) error {
	payload, err := json.Marshal(map[string]any{
		"dataStore": map[string]any{
			"name":    store,
			"enabled": true,
			"connectionParameters": map[string]any{
				"entry": []map[string]string{
					{"@key": "url", "$": "file:" + serverPath},
					{"@key": "namespace", "$": "urn:geoserver:" + workspace},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("marshal datastore payload: %w", err)
	}

	url := fmt.Sprintf("%s/workspaces/%s/datastores", c.baseURL, workspace)

	c.log.Info("creating file-reference datastore",
		logger.String("workspace", workspace),
		logger.String("store", store),
		logger.String("server_path", serverPath))

	status, body, err := c.do(ctx, http.MethodPost, url, contentTypeJSON, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	switch {
	case status == http.StatusCreated:
		// Fall through to feature type publication below.
	case status == http.StatusConflict, storeExists(status, body):
		c.log.Warn("datastore already exists, treating as published",
			logger.String("store", store))
		return nil
	default:
		return fmt.Errorf("create datastore %q: status %d: %s", store, status, body)
	}

	ftURL := fmt.Sprintf("%s/%s/featuretypes.json", url, store)
	ftStatus, ftBody, err := c.do(ctx, http.MethodPost, ftURL, contentTypeJSON, strings.NewReader("{}"))
	if err != nil {
		return err
	}
	if ftStatus != http.StatusCreated {
		return fmt.Errorf("publish layer from store %q: status %d: %s", store, ftStatus, ftBody)
	}
	return nil
}

// PublishCoverage streams a GeoTIFF into the named coveragestore, creating
// or refreshing it and its coverage.
func (c *Client) PublishCoverage(ctx context.Context, workspace, store string, data io.Reader) error {
	url := fmt.Sprintf("%s/workspaces/%s/coveragestores/%s/file.geotiff?configure=first&coverageName=%s",
		c.baseURL, workspace, store, store)

	c.log.Info("uploading coverage",
		logger.String("workspace", workspace),
		logger.String("store", store))

	status, body, err := c.do(ctx, http.MethodPut, url, contentTypeTIFF, data)
	if err != nil {
		return err
	}
	if status == http.StatusOK || status == http.StatusCreated {
		return nil
	}
	if storeExists(status, body) {
		c.log.Warn("coveragestore already exists, treating as published",
			logger.String("store", store))
		return nil
	}
	return fmt.Errorf("upload geotiff to store %q: status %d: %s", store, status, body)
}

// EnsureStyle uploads an SLD document as a workspace style. When the style
// already exists it is left untouched unless override is set, in which case
// the body is replaced.
func (c *Client) EnsureStyle(ctx context.Context, workspace, name string, sld []byte, override bool) error {
	checkURL := fmt.Sprintf("%s/workspaces/%s/styles/%s.json", c.baseURL, workspace, name)
	status, _, err := c.do(ctx, http.MethodGet, checkURL, "", http.NoBody)
	if err != nil {
		return err
	}

	if status == http.StatusOK {
		if !override {
			return nil
		}
		putURL := fmt.Sprintf("%s/workspaces/%s/styles/%s", c.baseURL, workspace, name)
		putStatus, putBody, putErr := c.do(ctx, http.MethodPut, putURL, contentTypeSLD, bytes.NewReader(sld))
		if putErr != nil {
			return putErr
		}
		if putStatus != http.StatusOK {
			return fmt.Errorf("update style %q: status %d: %s", name, putStatus, putBody)
		}
		return nil
	}

	postURL := fmt.Sprintf("%s/workspaces/%s/styles?name=%s", c.baseURL, workspace, name)
	postStatus, postBody, postErr := c.do(ctx, http.MethodPost, postURL, contentTypeSLD, bytes.NewReader(sld))
	if postErr != nil {
		return postErr
	}
	if postStatus != http.StatusCreated {
		return fmt.Errorf("create style %q: status %d: %s", name, postStatus, postBody)
	}
	return nil
}

// AssignDefaultStyle sets the workspace-qualified style as the layer's
// default.
func (c *Client) AssignDefaultStyle(ctx context.Context, workspace, layer, style string) error {
	payload, err := json.Marshal(map[string]any{
		"layer": map[string]any{
			"defaultStyle": map[string]string{
				"name": fmt.Sprintf("%s:%s", workspace, style),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("marshal layer payload: %w", err)
	}

	url := fmt.Sprintf("%s/layers/%s:%s", c.baseURL, workspace, layer)
	status, body, err := c.do(ctx, http.MethodPut, url, contentTypeJSON, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("assign style %q to layer %q: status %d: %s", style, layer, status, body)
	}
	return nil
}

type layerResponse struct {
	Layer struct {
		Resource struct {
			Href string `json:"href"`
		} `json:"resource"`
	} `json:"layer"`
}

type resourceResponse struct {
	FeatureType *resourceBody `json:"featureType"`
	Coverage    *resourceBody `json:"coverage"`
}

type resourceBody struct {
	LatLonBoundingBox *struct {
		MinX float64 `json:"minx"`
		MinY float64 `json:"miny"`
		MaxX float64 `json:"maxx"`
		MaxY float64 `json:"maxy"`
	} `json:"latLonBoundingBox"`
}

// LayerBoundingBox resolves a published layer's lat/lon bounding box by
// following the layer's resource link to its feature type or coverage
// description.
func (c *Client) LayerBoundingBox(ctx context.Context, workspace, layer string) (domain.BoundingBox, error) {
	url := fmt.Sprintf("%s/layers/%s:%s.json", c.baseURL, workspace, layer)
	status, body, err := c.do(ctx, http.MethodGet, url, "", http.NoBody)
	if err != nil {
		return domain.BoundingBox{}, err
	}
	if status != http.StatusOK {
		return domain.BoundingBox{}, fmt.Errorf("get layer %q: status %d", layer, status)
	}

	var lr layerResponse
	if err := json.Unmarshal(body, &lr); err != nil {
		return domain.BoundingBox{}, fmt.Errorf("decode layer response: %w", err)
	}
	if lr.Layer.Resource.Href == "" {
		return domain.BoundingBox{}, fmt.Errorf("layer %q has no resource link", layer)
	}

	resStatus, resBody, err := c.do(ctx, http.MethodGet, lr.Layer.Resource.Href, "", http.NoBody)
	if err != nil {
		return domain.BoundingBox{}, err
	}
	if resStatus != http.StatusOK {
		return domain.BoundingBox{}, fmt.Errorf("get layer resource: status %d", resStatus)
	}

	var rr resourceResponse
	if err := json.Unmarshal(resBody, &rr); err != nil {
		return domain.BoundingBox{}, fmt.Errorf("decode resource response: %w", err)
	}

	res := rr.FeatureType
	if res == nil {
		res = rr.Coverage
	}
	if res == nil || res.LatLonBoundingBox == nil {
		return domain.BoundingBox{}, fmt.Errorf("layer %q resource has no bounding box", layer)
	}

	bb := res.LatLonBoundingBox
	return domain.BoundingBox{bb.MinX, bb.MinY, bb.MaxX, bb.MaxY}, nil
}
