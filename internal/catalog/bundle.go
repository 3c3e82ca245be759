package catalog

import (
	"context"
	"fmt"
	"mime"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/URBREATH/geoserver-publisher/internal/domain"
	"github.com/URBREATH/geoserver-publisher/internal/logger"
)

// WMS preview dimensions for catalog distributions.
const (
	wmsWidth  = 768
	wmsHeight = 330
)

// distributionBody is the broker wire shape for one distribution.
type distributionBody struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	DownloadURL string `json:"downloadURL"`
	AccessURL   string `json:"accessURL"`
	Format      string `json:"format"`
	License     string `json:"license,omitempty"`
}

// datasetBody is the broker wire shape for the bundle's dataset.
type datasetBody struct {
	ID                  string   `json:"id"`
	Title               string   `json:"title"`
	Description         string   `json:"description"`
	DatasetDescription  []string `json:"datasetDescription"`
	DatasetDistribution []string `json:"datasetDistribution"`
	Spatial             string   `json:"spatial"`
	Temporal            string   `json:"temporal"`
	Keyword             []string `json:"keyword"`
	Author              string   `json:"author"`
	AuthorEmail         string   `json:"author_email"`
	Theme               []string `json:"theme"`
	PublisherName       string   `json:"publisher_name,omitempty"`
}

// BundleConfig carries the URL roots embedded in distribution links.
type BundleConfig struct {
	ProxyURL           string // Object-store browser URL for raw-data links
	Bucket             string
	GeoServerPublicURL string // Base URL for WMS GetMap links
}

// BundlePublisher turns one request's published resources into a catalog
// dataset plus its distributions.
type BundlePublisher struct {
	broker    *BrokerClient
	templates *TemplateStore
	cfg       BundleConfig
	log       logger.Logger
	now       func() time.Time
}

// NewBundlePublisher creates a bundle publisher. The broker may be disabled,
// in which case every publish is a no-op success.
func NewBundlePublisher(broker *BrokerClient, templates *TemplateStore, cfg BundleConfig, log logger.Logger) *BundlePublisher {
	return &BundlePublisher{
		broker:    broker,
		templates: templates,
		cfg:       cfg,
		log:       log,
		now:       time.Now,
	}
}

// Publish upserts one dataset and one-to-three distributions per resource.
// A distribution failure shrinks the dataset's link list rather than
// aborting dataset creation.
func (p *BundlePublisher) Publish(ctx context.Context, topic, group, date string, resources []domain.PublishedResource) error {
	if !p.broker.Enabled() {
		return nil
	}

	tctx := templateContext{
		City:    group,
		Date:    date,
		DateDMY: reverseDate(date),
		KPI:     topic,
	}

	// One timestamp for the whole bundle so all ids share a prefix.
	stamp := p.now().Format("20060102-150405")
	datasetUID := fmt.Sprintf("%s_%s_%s", group, strings.ReplaceAll(topic, " ", "_"), stamp)

	title := fmt.Sprintf("%s %s %s", group, topic, tctx.DateDMY)
	description := fmt.Sprintf("Dataset for %s in %s", topic, group)
	var keywords []string
	var authorName, authorEmail, theme, publisher string

	if tmpl := p.templates.FindDatasetTemplate(topic); tmpl != nil {
		if tmpl.Title != "" {
			title = tctx.interpolate(tmpl.Title)
		}
		if tmpl.Description != "" {
			description = tctx.interpolate(tmpl.Description)
		}
		for _, kw := range tmpl.Keywords {
			keywords = append(keywords, tctx.interpolate(kw))
		}
		authorName = tmpl.AuthorName
		authorEmail = tmpl.AuthorEmail
		theme = tmpl.Theme
		publisher = tmpl.Publisher
	}

	var distIDs []string
	for _, res := range resources {
		distIDs = append(distIDs, p.publishDistributions(ctx, datasetUID, description, tctx, res)...)
	}

	ds := datasetBody{
		ID:                  fmt.Sprintf("%s:%s", group, datasetUID),
		Title:               title,
		Description:         description,
		DatasetDescription:  []string{description},
		DatasetDistribution: distIDs,
		Temporal:            date,
		Keyword:             keywords,
		Author:              authorName,
		AuthorEmail:         authorEmail,
		Theme:               []string{},
	}
	if theme != "" {
		ds.Theme = []string{theme}
	}
	if publisher != "" {
		ds.PublisherName = publisher
	}
	if len(resources) > 0 {
		ds.Spatial = resources[0].BoundingBox.String()
	}

	p.log.Info("publishing bundle",
		logger.String("topic", topic),
		logger.String("dataset_id", ds.ID),
		logger.Int("distributions", len(distIDs)))

	return p.broker.UpsertDataset(ctx, ds.ID, ds)
}

// publishDistributions emits the distributions for one resource and returns
// the ids of those that were created or already existed.
func (p *BundlePublisher) publishDistributions(ctx context.Context, datasetUID, datasetDesc string, tctx templateContext, res domain.PublishedResource) []string {
	filename := path.Base(res.DataPath)
	tmpl := p.templates.MatchDistribution(filename)

	title := filename
	description := datasetDesc
	license := ""
	if tmpl != nil {
		if tmpl.Title != "" {
			title = tmpl.Title
		}
		description = tctx.interpolate(tmpl.Description)
		license = tmpl.License
	}

	var created []string
	add := func(suffix, downloadURL, format, titleSuffix string) {
		id := fmt.Sprintf("%s_%s_%s", datasetUID, res.LayerName, suffix)
		body := distributionBody{
			ID:          id,
			Title:       title,
			Description: description,
			DownloadURL: downloadURL,
			AccessURL:   downloadURL,
			Format:      format,
			License:     license,
		}
		if titleSuffix != "" {
			body.Title = fmt.Sprintf("%s (%s)", title, titleSuffix)
		}

		if err := p.broker.UpsertDistribution(ctx, id, body); err != nil {
			p.log.Error("distribution upsert failed",
				logger.String("id", id),
				logger.Error(err))
			return
		}
		created = append(created, id)
	}

	rawDataURL := fmt.Sprintf("%s/browser/%s/%s", p.cfg.ProxyURL, p.cfg.Bucket, res.DataPath)

	if !res.IsGeospatial {
		add("download", rawDataURL, p.downloadFormat(tmpl, res.DataPath), "")
		return created
	}

	rawFormat := "application/octet-stream"
	if tmpl != nil && tmpl.Format != "" {
		rawFormat = tmpl.Format
	}
	add("raw_data", rawDataURL, rawFormat, "Raw Data")

	if res.StylePath != "" {
		styleURL := fmt.Sprintf("%s/browser/%s/%s", p.cfg.ProxyURL, p.cfg.Bucket, res.StylePath)
		add("style", styleURL, "text/xml", "SLD Style")
	}

	add("wms", p.wmsURL(res), "image/png", "WMS Visualization")
	return created
}

// downloadFormat picks the format for a non-geospatial distribution: the
// matched template's format, then a mime-type guess by extension, then the
// generic fallback.
func (p *BundlePublisher) downloadFormat(tmpl *DistributionTemplate, dataPath string) string {
	if tmpl != nil && tmpl.Format != "" {
		return tmpl.Format
	}
	if guessed := mime.TypeByExtension(filepath.Ext(dataPath)); guessed != "" {
		return guessed
	}
	return "application/octet-stream"
}

// wmsURL builds the GetMap preview link for a published layer.
func (p *BundlePublisher) wmsURL(res domain.PublishedResource) string {
	params := url.Values{}
	params.Set("service", "WMS")
	params.Set("version", "1.1.1")
	params.Set("request", "GetMap")
	params.Set("layers", fmt.Sprintf("%s:%s", res.Workspace, res.LayerName))
	params.Set("styles", res.StyleName)
	params.Set("bbox", res.BoundingBox.String())
	params.Set("width", fmt.Sprintf("%d", wmsWidth))
	params.Set("height", fmt.Sprintf("%d", wmsHeight))
	params.Set("srs", "EPSG:4326")
	params.Set("format", "image/png")

	return fmt.Sprintf("%s/%s/wms?%s", p.cfg.GeoServerPublicURL, res.Workspace, params.Encode())
}

// reverseDate converts YYYY-MM-DD to DD-MM-YYYY, passing through values
// that are not in that form.
func reverseDate(date string) string {
	parts := strings.Split(date, "-")
	if len(parts) != 3 {
		return date
	}
	return fmt.Sprintf("%s-%s-%s", parts[2], parts[1], parts[0])
}
