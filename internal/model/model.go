// Package model defines the core domain types shared across the campaign
// processor: campaigns, search-tag specifications and the user identity
// carried in signed tokens.
package model

import (
	"fmt"
	"time"
)

// Status is the server-managed lifecycle state of a Campaign.
type Status string

const (
	StatusCreated  Status = "created"
	StatusRunning  Status = "running"
	StatusFinished Status = "finished"
	StatusFailed   Status = "failed"
)

// GeometryType is one of the closed set of geometry families a campaign
// can request from the upstream data source.
type GeometryType string

const (
	GeometryPoints      GeometryType = "points"
	GeometryLineStrings GeometryType = "linestrings"
	GeometryPolygons    GeometryType = "polygons"
)

func (g GeometryType) Valid() bool {
	switch g {
	case GeometryPoints, GeometryLineStrings, GeometryPolygons:
		return true
	default:
		return false
	}
}

// User is the creator identity, carried in campaigns and in signed tokens.
type User struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// SearchTag is a primary or secondary tag constraint: an optional allowed
// set of values, plus (primary tags only) one level of secondary
// constraints.
type SearchTag struct {
	Values    []string     `json:"values"`
	Secondary SearchTagMap `json:"secondary,omitempty"`
}

// SearchTagMap maps a tag key to its constraint. At the top level of a
// Campaign it is the set of primary searches; nested one level inside a
// SearchTag.Secondary it is the set of secondary constraints for that
// primary. Nesting below that is rejected by Validate.
type SearchTagMap map[string]SearchTag

// Validate enforces the two-level nesting bound: a SearchTagMap used as a
// `secondary` map must not itself carry a `secondary`.
func (m SearchTagMap) Validate() error {
	return m.validateDepth(0)
}

func (m SearchTagMap) validateDepth(depth int) error {
	if len(m) == 0 && depth == 0 {
		return fmt.Errorf("tags: at least one search tag is required")
	}
	for key, tag := range m {
		if depth >= 1 && len(tag.Secondary) > 0 {
			return fmt.Errorf("tags[%s]: secondary nesting beyond depth 2 is not allowed", key)
		}
		if err := tag.Secondary.validateDepth(depth + 1); err != nil {
			return err
		}
	}
	return nil
}

// Campaign is the top-level persistent entity.
type Campaign struct {
	UUID          string         `json:"uuid"`
	Name          string         `json:"name"`
	User          User           `json:"user"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	Status        Status         `json:"status"`
	GeometryTypes []GeometryType `json:"geometry_types"`
	Tags          SearchTagMap   `json:"tags"`
	Geom          CampaignGeom   `json:"geom"`
}

// NormalizeGeometryTypes drops duplicates while preserving first-seen
// order, per the "duplicates ignored" invariant.
func NormalizeGeometryTypes(types []GeometryType) []GeometryType {
	seen := make(map[GeometryType]struct{}, len(types))
	out := make([]GeometryType, 0, len(types))
	for _, t := range types {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// HasGeometryType reports whether types contains g.
func HasGeometryType(types []GeometryType, g GeometryType) bool {
	for _, t := range types {
		if t == g {
			return true
		}
	}
	return false
}
