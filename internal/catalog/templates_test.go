package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/URBREATH/geoserver-publisher/internal/logger"
)

func TestMatchDistribution(t *testing.T) {
	store := NewTemplateStore([]DistributionTemplate{
		{FilePattern: "{city}_flood_zones_{date}.shp", Title: "Flood Zones"},
		{FilePattern: "{city}_flood_report_{date}.pdf", Title: "Flood Report"},
		{FilePattern: "green_areas.geojson", Title: "Green Areas"},
	}, nil)

	testCases := []struct {
		name     string
		filename string
		want     string // matched title, empty means no match
	}{
		{
			name:     "exact pattern tokens contained",
			filename: "athens_flood_zones_2025-06-01.shp",
			want:     "Flood Zones",
		},
		{
			name:     "higher overlap wins",
			filename: "milan_flood_report_20250601.pdf",
			want:     "Flood Report",
		},
		{
			name:     "disjoint tokens do not match",
			filename: "population_density.tif",
			want:     "",
		},
		{
			name:     "single shared generic token stays below threshold",
			filename: "traffic_summary.shp",
			want:     "",
		},
		{
			name:     "case insensitive",
			filename: "GREEN_AREAS.GEOJSON",
			want:     "Green Areas",
		},
		{
			name:     "empty filename",
			filename: "",
			want:     "",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := store.MatchDistribution(tc.filename)
			if tc.want == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tc.want, got.Title)
		})
	}
}

func TestMatchDistribution_TieKeepsFirst(t *testing.T) {
	store := NewTemplateStore([]DistributionTemplate{
		{FilePattern: "flood_zones.shp", Title: "First"},
		{FilePattern: "flood_zones.shp", Title: "Second"},
	}, nil)

	got := store.MatchDistribution("athens_flood_zones.shp")
	require.NotNil(t, got)
	assert.Equal(t, "First", got.Title)
}

func TestMatchDistribution_ThresholdIsStrict(t *testing.T) {
	// Pattern with 5 tokens; 2 shared gives exactly 0.40, which must not
	// qualify.
	store := NewTemplateStore([]DistributionTemplate{
		{FilePattern: "alpha_beta_gamma_delta.epsilon", Title: "T"},
	}, nil)

	assert.Nil(t, store.MatchDistribution("alpha_beta_other.thing"))

	// 3 of 5 shared (0.60) qualifies.
	got := store.MatchDistribution("alpha_beta_gamma_other.thing")
	require.NotNil(t, got)
	assert.Equal(t, "T", got.Title)
}

func TestMatchDistribution_EmptyPatternSkipped(t *testing.T) {
	store := NewTemplateStore([]DistributionTemplate{
		{FilePattern: "", Title: "Empty"},
		{FilePattern: "{city}_{date}", Title: "OnlyPlaceholders"},
		{FilePattern: "parks.geojson", Title: "Parks"},
	}, nil)

	got := store.MatchDistribution("milan_parks.geojson")
	require.NotNil(t, got)
	assert.Equal(t, "Parks", got.Title)
}

func TestFindDatasetTemplate(t *testing.T) {
	store := NewTemplateStore(nil, []DatasetTemplate{
		{KPI: "Flood Risk", Title: "Flood Risk Dataset"},
		{KPI: " Urban Heat ", Title: "Urban Heat Dataset"},
	})

	testCases := []struct {
		name  string
		topic string
		want  string
	}{
		{name: "exact match", topic: "Flood Risk", want: "Flood Risk Dataset"},
		{name: "case insensitive", topic: "flood risk", want: "Flood Risk Dataset"},
		{name: "whitespace trimmed both sides", topic: "  urban heat  ", want: "Urban Heat Dataset"},
		{name: "no match", topic: "Air Quality", want: ""},
		{name: "empty topic", topic: "", want: ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := store.FindDatasetTemplate(tc.topic)
			if tc.want == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tc.want, got.Title)
		})
	}
}

func TestTemplateContext_Interpolate(t *testing.T) {
	ctx := templateContext{
		City:    "Athens",
		Date:    "2025-06-01",
		DateDMY: "01-06-2025",
		KPI:     "Flood Risk",
	}

	got := ctx.interpolate("{KPI} for {city} on {date} ({date_dmy})")
	assert.Equal(t, "Flood Risk for Athens on 2025-06-01 (01-06-2025)", got)

	assert.Equal(t, "no placeholders", ctx.interpolate("no placeholders"))
}

func TestLoadTemplates(t *testing.T) {
	dir := t.TempDir()

	distPath := filepath.Join(dir, "distributions.json")
	require.NoError(t, os.WriteFile(distPath, []byte(`[
		{"file_pattern": "flood_zones.shp", "dataset_title": "Flood Zones", "format": "SHP"}
	]`), 0o600))

	// Dataset document holding a single object instead of an array.
	datasetPath := filepath.Join(dir, "datasets.json")
	require.NoError(t, os.WriteFile(datasetPath, []byte(`
		{"KPI": "Flood Risk", "dataset_title": "{city} floods", "keywords": "flood"}
	`), 0o600))

	store := LoadTemplates(distPath, datasetPath, logger.NewNopLogger())

	require.Len(t, store.distributions, 1)
	assert.Equal(t, "Flood Zones", store.distributions[0].Title)

	require.Len(t, store.datasets, 1)
	assert.Equal(t, []string{"flood"}, []string(store.datasets[0].Keywords))
}

func TestLoadTemplates_MissingFiles(t *testing.T) {
	store := LoadTemplates("/nonexistent/a.json", "/nonexistent/b.json", logger.NewNopLogger())

	assert.Empty(t, store.distributions)
	assert.Empty(t, store.datasets)
	assert.Nil(t, store.MatchDistribution("anything.shp"))
	assert.Nil(t, store.FindDatasetTemplate("anything"))
}

func TestStringList_ArrayForm(t *testing.T) {
	var l stringList
	require.NoError(t, l.UnmarshalJSON([]byte(`["a", "b"]`)))
	assert.Equal(t, stringList{"a", "b"}, l)

	require.NoError(t, l.UnmarshalJSON([]byte(`"solo"`)))
	assert.Equal(t, stringList{"solo"}, l)

	assert.Error(t, l.UnmarshalJSON([]byte(`42`)))
}
