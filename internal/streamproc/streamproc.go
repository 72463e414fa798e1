// Package streamproc is the stream processor (component C): a one-pass
// XML-to-GeoJSON transform with tag validation, geometry assembly and
// aggregate counters, writing the result incrementally to disk.
package streamproc

import (
	"bufio"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/hotosm/mapcampaign/internal/apperr"
	"github.com/hotosm/mapcampaign/internal/core/observability"
	"github.com/hotosm/mapcampaign/internal/model"
)

// Run reads inputPath once in streaming fashion and writes the resulting
// FeatureCollection to outputPath. On any error the partially written
// output file is removed.
func Run(inputPath, outputPath string, tags model.SearchTagMap, geometryTypes []model.GeometryType) (err error) {
	in, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("streamproc: open input: %w", err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("streamproc: create output: %w", err)
	}
	defer func() {
		_ = out.Close()
		if err != nil {
			_ = os.Remove(outputPath)
		}
	}()

	bw := bufio.NewWriter(out)
	w := newOutputWriter(bw)
	if err := w.writePrelude(); err != nil {
		return fmt.Errorf("streamproc: write prelude: %w", err)
	}

	p := &processor{
		tags:          tags,
		geometryTypes: model.NormalizeGeometryTypes(geometryTypes),
		refIndex:      map[int64]model.LonLat{},
		agg:           model.NewAggregates(tags),
		w:             w,
	}

	dec := xml.NewDecoder(in)
	var cur *element
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return apperr.Wrap(apperr.ErrParseFailed, "streamproc: "+err.Error())
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "node":
				id, perr := parseAttrInt64(t, "id")
				if perr != nil {
					return apperr.Wrap(apperr.ErrParseFailed, "streamproc: node id: "+perr.Error())
				}
				lon, lat, perr := parseLonLat(t)
				if perr != nil {
					return apperr.Wrap(apperr.ErrParseFailed, "streamproc: node coords: "+perr.Error())
				}
				cur = &element{
					kind:   "node",
					id:     id,
					user:   attrOr(t, "user", "unknown"),
					coords: []model.LonLat{{lon, lat}},
				}
			case "way":
				id, perr := parseAttrInt64(t, "id")
				if perr != nil {
					return apperr.Wrap(apperr.ErrParseFailed, "streamproc: way id: "+perr.Error())
				}
				cur = &element{kind: "way", id: id, user: attrOr(t, "user", "unknown")}
			case "tag":
				if cur == nil {
					continue
				}
				cur.tags = append(cur.tags, kv{K: attrOr(t, "k", ""), V: attrOr(t, "v", "")})
			case "nd":
				if cur == nil || cur.kind != "way" {
					continue
				}
				refStr := attrOr(t, "ref", "")
				ref, perr := strconv.ParseInt(refStr, 10, 64)
				if perr != nil {
					continue
				}
				if coord, ok := p.refIndex[ref]; ok {
					cur.coords = append(cur.coords, coord)
				}
			default:
				// unknown element kinds are ignored
			}
		case xml.EndElement:
			if (t.Name.Local == "node" || t.Name.Local == "way") && cur != nil {
				if err := p.emit(cur); err != nil {
					return err
				}
				cur = nil
			}
		}
	}

	return w.finalize(p.agg)
}

type processor struct {
	tags          model.SearchTagMap
	geometryTypes []model.GeometryType
	refIndex      map[int64]model.LonLat
	agg           *model.Aggregates
	w             *outputWriter
}

// emit validates and writes out a fully-buffered element. Any write failure
// is propagated to the caller, which fails the whole run rather than
// leaving a truncated output.json behind.
func (p *processor) emit(e *element) error {
	if e.kind == "node" && len(e.tags) == 0 {
		p.refIndex[e.id] = e.coords[0]
		return nil
	}

	matches := validateFeature(e, p.tags)
	if len(matches) == 0 {
		return nil
	}

	geom, kind, hasGeom := p.buildGeometry(e)

	for _, m := range matches {
		p.agg.FeatureCounts[m.fp]++
		if p.agg.Contributors[m.fp] == nil {
			p.agg.Contributors[m.fp] = map[string]int{}
		}
		p.agg.Contributors[m.fp][e.user]++
		for _, sfp := range m.okSFPs {
			p.agg.AttributesCount[sfp]++
		}
		bucket := p.agg.CompletenessCount[m.fp]
		if m.stats.Completeness == 1.0 {
			bucket.Complete++
		} else {
			bucket.Incomplete++
		}
		p.agg.CompletenessCount[m.fp] = bucket
	}

	if !hasGeom {
		return nil
	}

	stats := make(map[string]model.SearchStats, len(matches))
	for _, m := range matches {
		stats[m.fp] = m.stats
	}

	observability.AddFeaturesEmitted(kind, 1)
	if err := p.w.writeFeature(model.Feature{
		Type:     "Feature",
		Geometry: geom,
		Properties: map[string]any{
			"id":    e.id,
			"user":  e.user,
			"stats": stats,
		},
	}); err != nil {
		return fmt.Errorf("streamproc: write feature: %w", err)
	}
	return nil
}

// buildGeometry assembles the output geometry for an element, filtered by
// requested geometry family. Returns hasGeom=false when the element's
// shape is filtered out or degenerate (empty way coords).
func (p *processor) buildGeometry(e *element) (geom model.Geometry, kind string, hasGeom bool) {
	switch e.kind {
	case "node":
		if !model.HasGeometryType(p.geometryTypes, model.GeometryPoints) {
			return model.Geometry{}, "", false
		}
		return model.NewPointGeometry(e.coords[0]), "point", true
	case "way":
		if len(e.coords) == 0 {
			return model.Geometry{}, "", false
		}
		closed := e.coords[0] == e.coords[len(e.coords)-1]
		if closed && len(e.coords) >= 4 {
			if !model.HasGeometryType(p.geometryTypes, model.GeometryPolygons) {
				return model.Geometry{}, "", false
			}
			return model.NewPolygonGeometry(e.coords), "polygon", true
		}
		if !model.HasGeometryType(p.geometryTypes, model.GeometryLineStrings) {
			return model.Geometry{}, "", false
		}
		return model.NewLineStringGeometry(e.coords), "linestring", true
	default:
		return model.Geometry{}, "", false
	}
}

func attrOr(t xml.StartElement, name, def string) string {
	for _, a := range t.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return def
}

func parseAttrInt64(t xml.StartElement, name string) (int64, error) {
	for _, a := range t.Attr {
		if a.Name.Local == name {
			v, err := strconv.ParseInt(a.Value, 10, 64)
			if err != nil {
				return 0, fmt.Errorf("attribute %q: %w", name, err)
			}
			return v, nil
		}
	}
	return 0, fmt.Errorf("attribute %q: not present", name)
}

func parseLonLat(t xml.StartElement) (lon, lat float64, err error) {
	var foundLon, foundLat bool
	for _, a := range t.Attr {
		switch a.Name.Local {
		case "lon":
			if lon, err = strconv.ParseFloat(a.Value, 64); err != nil {
				return 0, 0, fmt.Errorf("lon: %w", err)
			}
			foundLon = true
		case "lat":
			if lat, err = strconv.ParseFloat(a.Value, 64); err != nil {
				return 0, 0, fmt.Errorf("lat: %w", err)
			}
			foundLat = true
		}
	}
	if !foundLon || !foundLat {
		return 0, 0, fmt.Errorf("missing lon/lat attribute")
	}
	return lon, lat, nil
}
