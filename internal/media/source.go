package media

import (
	"fmt"
	"strings"
)

// SourceType identifies the catalog collection a piece of content belongs to.
type SourceType string

const (
	SourceEpisode SourceType = "episode"
	SourceShort   SourceType = "short"
	SourceDaily   SourceType = "daily"
	SourceAsset   SourceType = "asset"
)

// SourceTypes lists every valid source type in display order.
func SourceTypes() []SourceType {
	return []SourceType{SourceEpisode, SourceShort, SourceDaily, SourceAsset}
}

// ParseSourceType converts user input into a SourceType.
func ParseSourceType(value string) (SourceType, error) {
	switch SourceType(strings.ToLower(strings.TrimSpace(value))) {
	case SourceEpisode:
		return SourceEpisode, nil
	case SourceShort:
		return SourceShort, nil
	case SourceDaily:
		return SourceDaily, nil
	case SourceAsset:
		return SourceAsset, nil
	default:
		return "", fmt.Errorf("unknown source type %q", value)
	}
}

// SourceRef identifies the content a job operates on and where its uploaded
// master lives in object storage.
type SourceRef struct {
	Type   SourceType `json:"type"`
	ID     string     `json:"id"`
	Bucket string     `json:"bucket"`
	Key    string     `json:"key"`
}

// Validate checks that the reference is complete enough to locate content.
func (r SourceRef) Validate() error {
	if _, err := ParseSourceType(string(r.Type)); err != nil {
		return err
	}
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("source id must be set")
	}
	if strings.TrimSpace(r.Bucket) == "" {
		return fmt.Errorf("source bucket must be set")
	}
	if strings.TrimSpace(r.Key) == "" {
		return fmt.Errorf("source key must be set")
	}
	return nil
}

// OutputLocation names a bucket and key prefix where job output is published.
type OutputLocation struct {
	Bucket string `json:"bucket"`
	Prefix string `json:"prefix"`
}

// IsZero reports whether no explicit location was provided.
func (o OutputLocation) IsZero() bool {
	return o.Bucket == "" && o.Prefix == ""
}
