// Package publisher drives the per-resource publication pipeline against
// the map server.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/URBREATH/geoserver-publisher/internal/domain"
	"github.com/URBREATH/geoserver-publisher/internal/logger"
)

// errWorkspace is the recorded failure cause when the workspace cannot be
// verified or created; the message is part of the output contract.
var errWorkspace = errors.New("Workspace error")

// GeoClient is the subset of the map-server facade the pipeline needs.
type GeoClient interface {
	EnsureWorkspace(ctx context.Context, workspace string) error
	PublishVectorData(ctx context.Context, workspace, store, localPath string) error
	PublishVectorReference(ctx context.Context, workspace, store, serverPath string) error
	PublishCoverage(ctx context.Context, workspace, store string, data io.Reader) error
	EnsureStyle(ctx context.Context, workspace, name string, sld []byte, override bool) error
	AssignDefaultStyle(ctx context.Context, workspace, layer, style string) error
	LayerBoundingBox(ctx context.Context, workspace, layer string) (domain.BoundingBox, error)
}

// Publisher publishes one resource at a time. Each pipeline step is a hard
// gate: the first failure aborts the remaining steps and its message becomes
// the resource's error log.
type Publisher struct {
	geo        GeoClient
	stagingDir string
	dataRoot   string
	log        logger.Logger
}

// New creates a resource publisher reading data files from stagingDir, the
// local mirror the sync sidecar fills from the object store. dataRoot is
// the mount point of the same mirror inside the map server, used for
// file-reference datastores.
func New(geo GeoClient, stagingDir, dataRoot string, log logger.Logger) *Publisher {
	return &Publisher{
		geo:        geo,
		stagingDir: stagingDir,
		dataRoot:   dataRoot,
		log:        log,
	}
}

// Publish runs the pipeline for one resource: validation, workspace,
// staging check, data publication by extension, style handling, and the
// bounding-box lookup for catalog-bound resources.
//
// Map-server steps tolerate already-exists responses, so re-running the
// same spec after a partial failure is safe.
func (p *Publisher) Publish(ctx context.Context, spec domain.ResourceSpec) (*domain.PublishedResource, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	log := p.log.With(
		logger.String("workspace", spec.Workspace),
		logger.String("store", spec.StoreName))

	if err := p.geo.EnsureWorkspace(ctx, spec.Workspace); err != nil {
		log.Error("workspace check failed", logger.Error(err))
		// The terse message is the output contract; the cause is in the log.
		return nil, errWorkspace
	}

	localData := filepath.Join(p.stagingDir, spec.DataPath)
	if _, err := os.Stat(localData); err != nil {
		// Expected while the sync sidecar has not yet mirrored the object;
		// cleared by a later cycle once the file lands.
		return nil, fmt.Errorf("File missing: %s", localData)
	}

	published := domain.PublishedResource{
		Workspace:   spec.Workspace,
		LayerName:   spec.StoreName,
		DataPath:    spec.DataPath,
		StylePath:   spec.StylePath,
		StyleName:   spec.StyleName,
		BoundingBox: domain.FullExtent,
	}

	switch strings.ToLower(filepath.Ext(spec.DataPath)) {
	case ".shp":
		published.IsGeospatial = true
		published.LayerName = strings.TrimSuffix(filepath.Base(spec.DataPath), filepath.Ext(spec.DataPath))
		if err := p.geo.PublishVectorData(ctx, spec.Workspace, spec.StoreName, localData); err != nil {
			log.Error("vector publish failed", logger.Error(err))
			return nil, fmt.Errorf("GeoServer publish failed: %w", err)
		}
	case ".geojson":
		published.IsGeospatial = true
		// GeoJSON cannot go through the archive upload endpoint; the map
		// server reads it from the shared data volume instead.
		serverPath := path.Join(p.dataRoot, filepath.ToSlash(spec.DataPath))
		if err := p.geo.PublishVectorReference(ctx, spec.Workspace, spec.StoreName, serverPath); err != nil {
			log.Error("vector publish failed", logger.Error(err))
			return nil, fmt.Errorf("GeoServer publish failed: %w", err)
		}
	case ".tif", ".tiff":
		published.IsGeospatial = true
		if err := p.publishCoverageFile(ctx, spec, localData); err != nil {
			log.Error("coverage publish failed", logger.Error(err))
			return nil, fmt.Errorf("GeoServer publish failed: %w", err)
		}
	default:
		// Non-geospatial pass-through: nothing to publish on the map
		// server, the file is simply counted and may still reach the
		// catalog as a download distribution.
		log.Debug("non-geospatial resource, skipping map server",
			logger.String("data_path", spec.DataPath))
	}

	if published.IsGeospatial && spec.StyleName != "" && spec.StylePath != "" {
		if err := p.applyStyle(ctx, spec, published.LayerName); err != nil {
			return nil, err
		}
	}

	if spec.WriteOnCatalogue && published.IsGeospatial {
		bbox, err := p.geo.LayerBoundingBox(ctx, spec.Workspace, published.LayerName)
		if err != nil {
			// Catalog metadata degrades to the full extent rather than
			// failing an already-published resource.
			log.Warn("bounding box lookup failed, using full extent",
				logger.String("layer", published.LayerName),
				logger.Error(err))
			bbox = domain.FullExtent
		}
		published.BoundingBox = bbox
	}

	return &published, nil
}

func (p *Publisher) publishCoverageFile(ctx context.Context, spec domain.ResourceSpec, localData string) error {
	f, err := os.Open(localData)
	if err != nil {
		return fmt.Errorf("open %q: %w", localData, err)
	}
	defer f.Close()

	return p.geo.PublishCoverage(ctx, spec.Workspace, spec.StoreName, f)
}

// applyStyle uploads the SLD and assigns it as the layer's default. A style
// failure marks the resource failed without rolling back the data publish;
// the next cycle re-runs the idempotent data steps against the existing
// store.
func (p *Publisher) applyStyle(ctx context.Context, spec domain.ResourceSpec, layerName string) error {
	localSLD := filepath.Join(p.stagingDir, spec.StylePath)

	sld, err := os.ReadFile(localSLD)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("File missing: %s", localSLD)
		}
		return fmt.Errorf("read style %q: %w", localSLD, err)
	}

	if err := p.geo.EnsureStyle(ctx, spec.Workspace, spec.StyleName, sld, spec.OverrideStyle); err != nil {
		p.log.Error("style upload failed",
			logger.String("style", spec.StyleName),
			logger.Error(err))
		return fmt.Errorf("style upload failed: %w", err)
	}

	if err := p.geo.AssignDefaultStyle(ctx, spec.Workspace, layerName, spec.StyleName); err != nil {
		p.log.Error("style assignment failed",
			logger.String("style", spec.StyleName),
			logger.String("layer", layerName),
			logger.Error(err))
		return fmt.Errorf("style assignment failed: %w", err)
	}

	return nil
}
