// Package domain defines the publish-request model shared by the storage,
// publisher, and worker layers.
package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Topics assigned when a request does not carry one.
const (
	TopicLegacyImport    = "Generic Import"
	TopicUnknownAnalysis = "Unknown Analysis"
)

// ErrMissingFields is recorded when a resource omits any of the mandatory
// workspace/store_name/data_path fields. The message is part of the output
// contract written into failure objects, hence the capitalization.
var ErrMissingFields = errors.New("Missing mandatory fields")

// ResourceSpec is one entry of a publish request's data list. Field names
// follow the request JSON schema; unknown extra fields are dropped by the
// canonical parse.
type ResourceSpec struct {
	ID               string `json:"id,omitempty"`
	Workspace        string `json:"workspace"`
	StoreName        string `json:"store_name"`
	DataPath         string `json:"data_path"`
	StyleName        string `json:"style_name,omitempty"`
	StylePath        string `json:"sld_path,omitempty"`
	OverrideStyle    bool   `json:"override_style,omitempty"`
	WriteOnCatalogue bool   `json:"write_on_catalogue,omitempty"`
	Description      string `json:"description,omitempty"`
}

// Validate checks the mandatory fields.
func (r ResourceSpec) Validate() error {
	if r.Workspace == "" || r.StoreName == "" || r.DataPath == "" {
		return ErrMissingFields
	}
	return nil
}

// FailedResource is a resource spec annotated with the failure cause, as
// written into the failures object.
type FailedResource struct {
	ResourceSpec
	ErrorLog string `json:"error_log"`
}

// PublishRequest is the canonical in-memory form of one pending request
// object, with identity fields derived from the storage key.
type PublishRequest struct {
	// Key is the storage object key the request was read from.
	Key string

	// Topic is the analysis grouping key for catalog publication.
	Topic string

	// Resources is the ordered list of resources to publish.
	Resources []ResourceSpec

	// Group is the first path segment of the key (typically the city).
	Group string

	// OccurredOn is the request date in YYYY-MM-DD form, scanned from the
	// key path or defaulted to the parse time.
	OccurredOn string
}

// requestEnvelope is the object form of the request JSON.
type requestEnvelope struct {
	Analysis string         `json:"analysis"`
	Data     []ResourceSpec `json:"data"`
}

var (
	isoDateRe     = regexp.MustCompile(`(\d{4})-(\d{2})-(\d{2})`)
	compactDateRe = regexp.MustCompile(`(20\d{2}|19\d{2})(\d{2})(\d{2})`)
)

// ParseRequest decodes raw request JSON into its canonical form. It accepts
// the envelope object shape and the legacy bare-array shape; any other shape
// or malformed JSON is an error, which the caller treats as corrupted.
func ParseRequest(key string, raw []byte, now time.Time) (*PublishRequest, error) {
	req := &PublishRequest{
		Key:        key,
		Group:      deriveGroup(key),
		OccurredOn: deriveDate(key, now),
	}

	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	if len(trimmed) == 0 {
		return nil, errors.New("empty request body")
	}

	if trimmed[0] == '[' {
		// Legacy shape: a bare list of resources with no analysis topic.
		var resources []ResourceSpec
		if err := json.Unmarshal(raw, &resources); err != nil {
			return nil, fmt.Errorf("decode legacy request: %w", err)
		}
		req.Topic = TopicLegacyImport
		req.Resources = resources
		return req, nil
	}

	var env requestEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}
	req.Topic = env.Analysis
	if req.Topic == "" {
		req.Topic = TopicUnknownAnalysis
	}
	req.Resources = env.Data
	return req, nil
}

// deriveGroup extracts the leading path segment of the object key.
func deriveGroup(key string) string {
	if key == "" {
		return "Unknown"
	}
	parts := strings.Split(key, "/")
	if parts[0] == "" {
		return "Unknown"
	}
	return parts[0]
}

// deriveDate scans the key for a YYYY-MM-DD or YYYYMMDD date, falling back
// to the current date when neither appears.
func deriveDate(key string, now time.Time) string {
	if m := isoDateRe.FindStringSubmatch(key); m != nil {
		return fmt.Sprintf("%s-%s-%s", m[1], m[2], m[3])
	}
	if m := compactDateRe.FindStringSubmatch(key); m != nil {
		return fmt.Sprintf("%s-%s-%s", m[1], m[2], m[3])
	}
	return now.Format("2006-01-02")
}
