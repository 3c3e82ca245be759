// Package catalog implements catalog-broker publication: metadata template
// resolution, the broker REST client, and bundle assembly.
package catalog

import (
	"encoding/json"
	"os"
	"regexp"
	"strings"

	"github.com/URBREATH/geoserver-publisher/internal/logger"
)

// matchThreshold is the minimum token-overlap score for a distribution
// template to qualify. Filenames in the field rarely match a pattern
// exactly (dates and city names get interpolated), so exact matching would
// silently drop metadata; the floor keeps filenames that share only one
// generic token, like an extension, from matching spuriously.
const matchThreshold = 0.40

// DistributionTemplate describes the metadata applied to distributions
// whose source filename resembles the template's file pattern.
type DistributionTemplate struct {
	FilePattern string `json:"file_pattern"`
	Title       string `json:"dataset_title"`
	Description string `json:"description"`
	Format      string `json:"format"`
	License     string `json:"license"`
}

// DatasetTemplate describes the metadata for datasets of a given analysis
// topic, keyed by the KPI field.
type DatasetTemplate struct {
	KPI         string     `json:"KPI"`
	Title       string     `json:"dataset_title"`
	Description string     `json:"description"`
	Keywords    stringList `json:"keywords"`
	AuthorName  string     `json:"author_name"`
	AuthorEmail string     `json:"author_email"`
	Theme       string     `json:"theme"`
	Publisher   string     `json:"publisher"`
}

// stringList accepts either a JSON string or an array of strings.
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*l = stringList{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*l = many
	return nil
}

// TemplateStore holds the metadata templates loaded at startup. It is
// immutable for the life of the process.
type TemplateStore struct {
	distributions []DistributionTemplate
	datasets      []DatasetTemplate
}

// NewTemplateStore builds a store from already-decoded templates.
// Used directly by tests; production code goes through LoadTemplates.
func NewTemplateStore(distributions []DistributionTemplate, datasets []DatasetTemplate) *TemplateStore {
	return &TemplateStore{distributions: distributions, datasets: datasets}
}

// LoadTemplates reads the two template documents. Each document may hold a
// single object or an array. A missing or unreadable document yields an
// empty template set rather than an error, matching the broker being
// best-effort relative to map-server publication.
func LoadTemplates(distributionPath, datasetPath string, log logger.Logger) *TemplateStore {
	store := &TemplateStore{}

	loadJSON(distributionPath, &store.distributions, log)
	loadJSON(datasetPath, &store.datasets, log)

	log.Info("metadata templates loaded",
		logger.Int("distributions", len(store.distributions)),
		logger.Int("datasets", len(store.datasets)))
	return store
}

// loadJSON decodes a document that is either one T or a []T into out,
// which must be a *[]T.
func loadJSON[T any](path string, out *[]T, log logger.Logger) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Error("failed to read template document",
				logger.String("path", path),
				logger.Error(err))
		}
		return
	}

	if err := json.Unmarshal(data, out); err == nil {
		return
	}

	var single T
	if err := json.Unmarshal(data, &single); err != nil {
		log.Error("failed to parse template document",
			logger.String("path", path),
			logger.Error(err))
		return
	}
	*out = []T{single}
}

var placeholderRe = regexp.MustCompile(`\{[^}]*\}`)

// tokenize lower-cases s and splits it on underscores, hyphens, and dots
// into a set of tokens.
func tokenize(s string) map[string]struct{} {
	parts := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return r == '_' || r == '-' || r == '.'
	})
	set := make(map[string]struct{}, len(parts))
	for _, p := range parts {
		set[p] = struct{}{}
	}
	return set
}

// MatchDistribution finds the distribution template whose pattern tokens
// best overlap the filename's tokens. Placeholders in patterns are stripped
// before tokenizing. Only scores strictly above the threshold qualify, and
// among qualifying templates the strictly greatest score wins, so the
// first-seen template keeps a tie. Returns nil when nothing qualifies.
func (t *TemplateStore) MatchDistribution(filename string) *DistributionTemplate {
	if filename == "" {
		return nil
	}

	fileTokens := tokenize(filename)

	var best *DistributionTemplate
	bestScore := 0.0

	for i := range t.distributions {
		tmpl := &t.distributions[i]
		if tmpl.FilePattern == "" {
			continue
		}

		patternTokens := tokenize(placeholderRe.ReplaceAllString(tmpl.FilePattern, ""))
		if len(patternTokens) == 0 {
			continue
		}

		common := 0
		for tok := range patternTokens {
			if _, ok := fileTokens[tok]; ok {
				common++
			}
		}
		score := float64(common) / float64(len(patternTokens))

		if score > matchThreshold && score > bestScore {
			bestScore = score
			best = tmpl
		}
	}

	return best
}

// FindDatasetTemplate returns the first dataset template whose KPI matches
// the topic, compared case-insensitively with surrounding whitespace
// trimmed. Returns nil when no template matches.
func (t *TemplateStore) FindDatasetTemplate(topic string) *DatasetTemplate {
	if topic == "" {
		return nil
	}
	want := strings.ToLower(strings.TrimSpace(topic))
	for i := range t.datasets {
		if strings.ToLower(strings.TrimSpace(t.datasets[i].KPI)) == want {
			return &t.datasets[i]
		}
	}
	return nil
}

// templateContext carries the placeholder values available to template
// fields.
type templateContext struct {
	City    string
	Date    string
	DateDMY string
	KPI     string
}

// interpolate substitutes the {city}, {date}, {date_dmy}, and {KPI}
// placeholders in a template field.
func (c templateContext) interpolate(s string) string {
	return strings.NewReplacer(
		"{city}", c.City,
		"{date}", c.Date,
		"{date_dmy}", c.DateDMY,
		"{KPI}", c.KPI,
	).Replace(s)
}
