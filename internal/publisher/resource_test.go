package publisher_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/URBREATH/geoserver-publisher/internal/domain"
	"github.com/URBREATH/geoserver-publisher/internal/logger"
	"github.com/URBREATH/geoserver-publisher/internal/publisher"
)

// fakeGeoClient records calls and returns scripted errors.
type fakeGeoClient struct {
	calls []string

	workspaceErr error
	vectorErr    error
	referenceErr error
	coverageErr  error
	styleErr     error
	assignErr    error
	bboxErr      error

	styleExists  bool
	styleBody    []byte
	referenceArg string
	bbox         domain.BoundingBox
}

func (f *fakeGeoClient) EnsureWorkspace(_ context.Context, workspace string) error {
	f.calls = append(f.calls, "workspace:"+workspace)
	return f.workspaceErr
}

func (f *fakeGeoClient) PublishVectorData(_ context.Context, _, store, _ string) error {
	f.calls = append(f.calls, "vector:"+store)
	return f.vectorErr
}

func (f *fakeGeoClient) PublishVectorReference(_ context.Context, _, store, serverPath string) error {
	f.calls = append(f.calls, "reference:"+store)
	f.referenceArg = serverPath
	return f.referenceErr
}

func (f *fakeGeoClient) PublishCoverage(_ context.Context, _, store string, data io.Reader) error {
	f.calls = append(f.calls, "coverage:"+store)
	_, _ = io.Copy(io.Discard, data)
	return f.coverageErr
}

func (f *fakeGeoClient) EnsureStyle(_ context.Context, _, name string, sld []byte, override bool) error {
	f.calls = append(f.calls, "style:"+name)
	f.styleBody = sld
	if f.styleExists && !override {
		return nil
	}
	return f.styleErr
}

func (f *fakeGeoClient) AssignDefaultStyle(_ context.Context, _, layer, style string) error {
	f.calls = append(f.calls, "assign:"+layer+":"+style)
	return f.assignErr
}

func (f *fakeGeoClient) LayerBoundingBox(_ context.Context, _, layer string) (domain.BoundingBox, error) {
	f.calls = append(f.calls, "bbox:"+layer)
	return f.bbox, f.bboxErr
}

type pubFixture struct {
	geo     *fakeGeoClient
	pub     *publisher.Publisher
	staging string
}

func newFixture(t *testing.T) *pubFixture {
	t.Helper()
	geo := &fakeGeoClient{bbox: domain.BoundingBox{1, 2, 3, 4}}
	staging := t.TempDir()
	return &pubFixture{
		geo:     geo,
		pub:     publisher.New(geo, staging, "/opt/geoserver_data", logger.NewNopLogger()),
		staging: staging,
	}
}

// stage writes an empty data file under the staging mirror.
func (fx *pubFixture) stage(t *testing.T, relPath string) {
	t.Helper()
	full := filepath.Join(fx.staging, relPath)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte("data"), 0o600))
}

func validSpec() domain.ResourceSpec {
	return domain.ResourceSpec{
		Workspace: "athens",
		StoreName: "flood",
		DataPath:  "athens/2025-06-01/flood_zones.shp",
	}
}

func TestPublish_MissingMandatoryFields(t *testing.T) {
	fx := newFixture(t)

	spec := validSpec()
	spec.Workspace = ""

	_, err := fx.pub.Publish(context.Background(), spec)
	require.Error(t, err)
	assert.Equal(t, "Missing mandatory fields", err.Error())
	assert.Empty(t, fx.geo.calls, "validation failure must not touch the map server")
}

func TestPublish_WorkspaceError(t *testing.T) {
	fx := newFixture(t)
	fx.geo.workspaceErr = errors.New("connection refused")

	_, err := fx.pub.Publish(context.Background(), validSpec())
	require.Error(t, err)
	assert.Equal(t, "Workspace error", err.Error())
}

func TestPublish_FileMissing(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.pub.Publish(context.Background(), validSpec())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "File missing: ")
	assert.Contains(t, err.Error(), "athens/2025-06-01/flood_zones.shp")
	// Workspace was checked, but no publish happened.
	assert.Equal(t, []string{"workspace:athens"}, fx.geo.calls)
}

func TestPublish_Shapefile(t *testing.T) {
	fx := newFixture(t)
	fx.stage(t, "athens/2025-06-01/flood_zones.shp")

	published, err := fx.pub.Publish(context.Background(), validSpec())
	require.NoError(t, err)

	assert.True(t, published.IsGeospatial)
	// Shapefile layers take the base filename, not the store name.
	assert.Equal(t, "flood_zones", published.LayerName)
	assert.Equal(t, domain.FullExtent, published.BoundingBox)
	assert.Equal(t, []string{"workspace:athens", "vector:flood"}, fx.geo.calls)
}

func TestPublish_GeoJSONUsesFileReference(t *testing.T) {
	fx := newFixture(t)
	fx.stage(t, "milan/parks.geojson")

	spec := domain.ResourceSpec{
		Workspace: "milan",
		StoreName: "parks",
		DataPath:  "milan/parks.geojson",
	}

	published, err := fx.pub.Publish(context.Background(), spec)
	require.NoError(t, err)

	assert.True(t, published.IsGeospatial)
	// GeoJSON layers keep the store name.
	assert.Equal(t, "parks", published.LayerName)
	assert.Equal(t, []string{"workspace:milan", "reference:parks"}, fx.geo.calls)
	assert.Equal(t, "/opt/geoserver_data/milan/parks.geojson", fx.geo.referenceArg)
}

func TestPublish_GeoTIFF(t *testing.T) {
	fx := newFixture(t)
	fx.stage(t, "athens/heatmap.tif")

	spec := domain.ResourceSpec{
		Workspace: "athens",
		StoreName: "heatmap",
		DataPath:  "athens/heatmap.tif",
	}

	published, err := fx.pub.Publish(context.Background(), spec)
	require.NoError(t, err)

	assert.True(t, published.IsGeospatial)
	assert.Equal(t, "heatmap", published.LayerName)
	assert.Equal(t, []string{"workspace:athens", "coverage:heatmap"}, fx.geo.calls)
}

func TestPublish_NonGeospatialPassThrough(t *testing.T) {
	fx := newFixture(t)
	fx.stage(t, "athens/report.pdf")

	spec := domain.ResourceSpec{
		Workspace: "athens",
		StoreName: "report",
		DataPath:  "athens/report.pdf",
		// Style fields present but ignored for non-geo resources.
		StyleName: "some_style",
		StylePath: "athens/style.sld",
	}

	published, err := fx.pub.Publish(context.Background(), spec)
	require.NoError(t, err)

	assert.False(t, published.IsGeospatial)
	assert.Equal(t, domain.FullExtent, published.BoundingBox)
	assert.Equal(t, []string{"workspace:athens"}, fx.geo.calls)
}

func TestPublish_PublishErrorWrapped(t *testing.T) {
	fx := newFixture(t)
	fx.stage(t, "athens/2025-06-01/flood_zones.shp")
	fx.geo.vectorErr = errors.New("status 500")

	_, err := fx.pub.Publish(context.Background(), validSpec())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GeoServer publish failed")
}

func TestPublish_StyleApplied(t *testing.T) {
	fx := newFixture(t)
	fx.stage(t, "athens/2025-06-01/flood_zones.shp")
	fx.stage(t, "athens/styles/flood.sld")

	spec := validSpec()
	spec.StyleName = "flood_style"
	spec.StylePath = "athens/styles/flood.sld"

	_, err := fx.pub.Publish(context.Background(), spec)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"workspace:athens",
		"vector:flood",
		"style:flood_style",
		"assign:flood_zones:flood_style",
	}, fx.geo.calls)
	assert.Equal(t, []byte("data"), fx.geo.styleBody)
}

func TestPublish_StyleFileMissing(t *testing.T) {
	fx := newFixture(t)
	fx.stage(t, "athens/2025-06-01/flood_zones.shp")

	spec := validSpec()
	spec.StyleName = "flood_style"
	spec.StylePath = "athens/styles/flood.sld"

	_, err := fx.pub.Publish(context.Background(), spec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "File missing: ")
	assert.Contains(t, err.Error(), "flood.sld")
}

func TestPublish_StyleFailureDoesNotRollBackData(t *testing.T) {
	fx := newFixture(t)
	fx.stage(t, "athens/2025-06-01/flood_zones.shp")
	fx.stage(t, "athens/styles/flood.sld")
	fx.geo.styleErr = errors.New("bad SLD")

	spec := validSpec()
	spec.StyleName = "flood_style"
	spec.StylePath = "athens/styles/flood.sld"

	_, err := fx.pub.Publish(context.Background(), spec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "style upload failed")
	// The data publish already happened and stays published.
	assert.Contains(t, fx.geo.calls, "vector:flood")
}

func TestPublish_StyleSkippedWithoutBothFields(t *testing.T) {
	fx := newFixture(t)
	fx.stage(t, "athens/2025-06-01/flood_zones.shp")

	spec := validSpec()
	spec.StyleName = "flood_style" // no StylePath

	_, err := fx.pub.Publish(context.Background(), spec)
	require.NoError(t, err)
	assert.NotContains(t, fx.geo.calls, "style:flood_style")
}

func TestPublish_BoundingBoxForCatalogResources(t *testing.T) {
	fx := newFixture(t)
	fx.stage(t, "athens/2025-06-01/flood_zones.shp")

	spec := validSpec()
	spec.WriteOnCatalogue = true

	published, err := fx.pub.Publish(context.Background(), spec)
	require.NoError(t, err)

	assert.Equal(t, domain.BoundingBox{1, 2, 3, 4}, published.BoundingBox)
	assert.Contains(t, fx.geo.calls, "bbox:flood_zones")
}

func TestPublish_BoundingBoxFailureFallsBackToFullExtent(t *testing.T) {
	fx := newFixture(t)
	fx.stage(t, "athens/2025-06-01/flood_zones.shp")
	fx.geo.bboxErr = errors.New("layer not found")

	spec := validSpec()
	spec.WriteOnCatalogue = true

	published, err := fx.pub.Publish(context.Background(), spec)
	require.NoError(t, err)
	assert.Equal(t, domain.FullExtent, published.BoundingBox)
}

func TestPublish_RepeatedPublishIsStable(t *testing.T) {
	fx := newFixture(t)
	fx.stage(t, "athens/2025-06-01/flood_zones.shp")

	first, err := fx.pub.Publish(context.Background(), validSpec())
	require.NoError(t, err)
	second, err := fx.pub.Publish(context.Background(), validSpec())
	require.NoError(t, err)

	assert.Equal(t, first.LayerName, second.LayerName)
	assert.Equal(t, first.IsGeospatial, second.IsGeospatial)
}

func TestPublish_NoBoundingBoxLookupWithoutCatalog(t *testing.T) {
	fx := newFixture(t)
	fx.stage(t, "athens/2025-06-01/flood_zones.shp")

	_, err := fx.pub.Publish(context.Background(), validSpec())
	require.NoError(t, err)
	assert.NotContains(t, fx.geo.calls, "bbox:flood_zones")
}
