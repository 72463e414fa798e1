// Package querybuilder turns a campaign's area, tags and geometry types
// into a single Overpass QL text query.
package querybuilder

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/hotosm/mapcampaign/internal/apperr"
	"github.com/hotosm/mapcampaign/internal/model"
)

// elementFor maps a requested geometry family to the Overpass element kind
// a filter line is built against.
func elementFor(g model.GeometryType) (string, bool) {
	switch g {
	case model.GeometryPoints:
		return "node", true
	case model.GeometryLineStrings, model.GeometryPolygons:
		return "way", true
	default:
		return "", false
	}
}

// Build produces the Overpass QL query for a campaign.
func Build(c model.Campaign) (string, error) {
	if err := c.Geom.Validate(); err != nil {
		return "", apperr.Wrap(apperr.ErrBadRequest, "query builder: "+err.Error())
	}
	for _, g := range c.GeometryTypes {
		if !g.Valid() {
			return "", apperr.Wrapf(apperr.ErrBadRequest, "query builder: unknown geometry type %q", g)
		}
	}

	var nodeFilters, wayFilters, relationFilters []string

	for _, feature := range c.Geom.Features {
		polyStr := polygonString(feature.OuterRing())
		for _, g := range model.NormalizeGeometryTypes(c.GeometryTypes) {
			element, ok := elementFor(g)
			if !ok {
				continue
			}
			lines := filterLines(element, polyStr, c.Tags)
			switch element {
			case "node":
				nodeFilters = append(nodeFilters, lines...)
			case "way":
				wayFilters = append(wayFilters, lines...)
			default:
				relationFilters = append(relationFilters, lines...)
			}
		}
	}

	query := fmt.Sprintf(
		"(\n  (\n    %s\n  );\n  (\n    %s\n  );>;\n  (\n    %s\n  );>>;>;\n);out meta;\n",
		strings.Join(nodeFilters, "\n    "),
		strings.Join(wayFilters, "\n    "),
		strings.Join(relationFilters, "\n    "),
	)
	return query, nil
}

// polygonString renders a ring's outer boundary as space-separated "lat
// lon" pairs, dropping the closing vertex.
func polygonString(ring []model.LonLat) string {
	if len(ring) == 0 {
		return ""
	}
	pts := ring
	if len(pts) > 1 && pts[0] == pts[len(pts)-1] {
		pts = pts[:len(pts)-1]
	}
	parts := make([]string, 0, len(pts))
	for _, p := range pts {
		lat := strconv.FormatFloat(p[1], 'f', -1, 64)
		lon := strconv.FormatFloat(p[0], 'f', -1, 64)
		parts = append(parts, lat+" "+lon)
	}
	return strings.Join(parts, " ")
}

// filterLines emits one Overpass filter line per primary search tag.
func filterLines(element, polyStr string, tags model.SearchTagMap) []string {
	keys := sortedKeys(tags)
	lines := make([]string, 0, len(keys))
	for _, key := range keys {
		tag := tags[key]
		if len(tag.Values) == 0 {
			lines = append(lines, fmt.Sprintf("%s(poly: '%s')['%s'];", element, polyStr, key))
			continue
		}
		lines = append(lines, fmt.Sprintf("%s(poly: '%s')['%s'~'%s'];", element, polyStr, key, strings.Join(tag.Values, " | ")))
	}
	return lines
}

// sortedKeys gives filter emission a stable order; map iteration order is
// not, and query output must be reproducible within a run.
func sortedKeys(tags model.SearchTagMap) []string {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
