package model

import "strings"

// Fingerprint derives the stable identifier for a (key, values) search
// specification: "k" when values is empty, else "k=v1,v2,..." preserving
// input order (duplicates included, if the caller supplied any).
func Fingerprint(key string, values []string) string {
	if len(values) == 0 {
		return key
	}
	return key + "=" + strings.Join(values, ",")
}

// TagErrorKind discriminates the two ways a secondary constraint can fail.
type TagErrorKind string

const (
	TagErrorKeyNotFound   TagErrorKind = "key_not_found"
	TagErrorValueNotFound TagErrorKind = "value_not_found"
)

// TagError records one failed secondary constraint.
type TagError struct {
	Kind TagErrorKind `json:"kind"`
	Key  string       `json:"key"`
}

// SearchStats is the per-matched-search completeness record attached to a
// feature's `stats` property, keyed by the primary fingerprint.
type SearchStats struct {
	Errors       []TagError `json:"errors,omitempty"`
	Completeness float64    `json:"completeness"`
}

// CompletenessBucket counts complete vs. incomplete matches for one
// primary fingerprint.
type CompletenessBucket struct {
	Complete   int `json:"complete"`
	Incomplete int `json:"incomplete"`
}

// Aggregates holds the campaign-level counters, keyed by fingerprint.
type Aggregates struct {
	FeatureCounts     map[string]int                   `json:"feature_counts"`
	Contributors      map[string]map[string]int        `json:"contributors"`
	AttributesCount   map[string]int                   `json:"attributes_count"`
	CompletenessCount map[string]CompletenessBucket     `json:"completeness_count"`
}

// NewAggregates seeds every counter with a zero entry for every known
// fingerprint; counters must never be created lazily on first increment
// (contributors is the sole exception, since user names are unknown up
// front).
func NewAggregates(tags SearchTagMap) *Aggregates {
	a := &Aggregates{
		FeatureCounts:     map[string]int{},
		Contributors:      map[string]map[string]int{},
		AttributesCount:   map[string]int{},
		CompletenessCount: map[string]CompletenessBucket{},
	}
	for key, tag := range tags {
		fp := Fingerprint(key, tag.Values)
		a.FeatureCounts[fp] = 0
		a.Contributors[fp] = map[string]int{}
		a.CompletenessCount[fp] = CompletenessBucket{}
		for skey, stag := range tag.Secondary {
			sfp := Fingerprint(skey, stag.Values)
			a.AttributesCount[sfp] = 0
		}
	}
	return a
}
