package streamproc

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/hotosm/mapcampaign/internal/model"
)

type decoded struct {
	Type       string           `json:"type"`
	Features   []map[string]any `json:"features"`
	Properties struct {
		FeatureCounts     map[string]int                    `json:"feature_counts"`
		Contributors      map[string]map[string]int         `json:"contributors"`
		AttributesCount   map[string]int                     `json:"attributes_count"`
		CompletenessCount map[string]model.CompletenessBucket `json:"completeness_count"`
	} `json:"properties"`
}

func run(t *testing.T, xmlBody string, tags model.SearchTagMap, geomTypes []model.GeometryType) decoded {
	t.Helper()
	dir := t.TempDir()
	in := filepath.Join(dir, "overpass.xml")
	out := filepath.Join(dir, "output.json")
	if err := os.WriteFile(in, []byte(xmlBody), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	if err := Run(in, out, tags, geomTypes); err != nil {
		t.Fatalf("Run: %v", err)
	}
	b, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	var d decoded
	if err := json.Unmarshal(b, &d); err != nil {
		t.Fatalf("unmarshal output: %v\n%s", err, b)
	}
	return d
}

func TestS1SingleNodeTwoTags(t *testing.T) {
	xmlBody := `<osm><node id="1" lon="1.0" lat="2.0" user="u1"><tag k="building" v="yes"/></node></osm>`
	tags := model.SearchTagMap{"building": {}}
	d := run(t, xmlBody, tags, []model.GeometryType{model.GeometryPoints})

	if len(d.Features) != 1 {
		t.Fatalf("features len = %d, want 1", len(d.Features))
	}
	if d.Properties.FeatureCounts["building"] != 1 {
		t.Fatalf("feature_counts.building = %d, want 1", d.Properties.FeatureCounts["building"])
	}
	if d.Properties.Contributors["building"]["u1"] != 1 {
		t.Fatalf("contributors.building.u1 = %d, want 1", d.Properties.Contributors["building"]["u1"])
	}
	cc := d.Properties.CompletenessCount["building"]
	if cc.Complete != 1 || cc.Incomplete != 0 {
		t.Fatalf("completeness_count.building = %+v", cc)
	}
	geom := d.Features[0]["geometry"].(map[string]any)
	coords := geom["coordinates"].([]any)
	if coords[0].(float64) != 1.0 || coords[1].(float64) != 2.0 {
		t.Fatalf("coords = %v, want [1,2]", coords)
	}
}

func TestS2WayReferencingTwoNodes(t *testing.T) {
	xmlBody := `<osm>
<node id="1" lon="0" lat="0"/>
<node id="2" lon="1" lat="1"/>
<way id="10" user="u2">
<nd ref="1"/><nd ref="2"/>
<tag k="highway" v="primary"/>
</way>
</osm>`
	tags := model.SearchTagMap{"highway": {Values: []string{"primary"}}}
	d := run(t, xmlBody, tags, []model.GeometryType{model.GeometryLineStrings})

	if len(d.Features) != 1 {
		t.Fatalf("features len = %d, want 1", len(d.Features))
	}
	fp := "highway=primary"
	if d.Properties.FeatureCounts[fp] != 1 {
		t.Fatalf("feature_counts[%s] = %d, want 1", fp, d.Properties.FeatureCounts[fp])
	}
	geom := d.Features[0]["geometry"].(map[string]any)
	if geom["type"] != "LineString" {
		t.Fatalf("geometry.type = %v, want LineString", geom["type"])
	}
}

func TestS3PolygonClosure(t *testing.T) {
	xmlBody := `<osm>
<node id="1" lon="0" lat="0"/>
<node id="2" lon="1" lat="0"/>
<node id="3" lon="1" lat="1"/>
<way id="20">
<nd ref="1"/><nd ref="2"/><nd ref="3"/><nd ref="1"/>
<tag k="building" v="yes"/>
</way>
</osm>`
	tags := model.SearchTagMap{"building": {}}
	d := run(t, xmlBody, tags, []model.GeometryType{model.GeometryPolygons})

	if len(d.Features) != 1 {
		t.Fatalf("features len = %d, want 1", len(d.Features))
	}
	geom := d.Features[0]["geometry"].(map[string]any)
	if geom["type"] != "Polygon" {
		t.Fatalf("geometry.type = %v, want Polygon", geom["type"])
	}
}

func TestS4SecondaryTagIncomplete(t *testing.T) {
	xmlBody := `<osm><node id="1" lon="0" lat="0" user="u1"><tag k="building" v="yes"/></node></osm>`
	tags := model.SearchTagMap{
		"building": {Secondary: model.SearchTagMap{"name": {}}},
	}
	d := run(t, xmlBody, tags, []model.GeometryType{model.GeometryPoints})

	if len(d.Features) != 1 {
		t.Fatalf("features len = %d, want 1", len(d.Features))
	}
	stats := d.Features[0]["properties"].(map[string]any)["stats"].(map[string]any)
	building := stats["building"].(map[string]any)
	if building["completeness"].(float64) != 0.0 {
		t.Fatalf("completeness = %v, want 0.0", building["completeness"])
	}
	errs := building["errors"].([]any)
	if len(errs) != 1 {
		t.Fatalf("errors = %v, want 1 entry", errs)
	}
	cc := d.Properties.CompletenessCount["building"]
	if cc.Complete != 0 || cc.Incomplete != 1 {
		t.Fatalf("completeness_count.building = %+v", cc)
	}
}

func TestS5GeometryFilterStillCountsMatches(t *testing.T) {
	xmlBody := `<osm>
<node id="1" lon="0" lat="0"/>
<node id="2" lon="1" lat="1"/>
<way id="10" user="u2">
<nd ref="1"/><nd ref="2"/>
<tag k="highway" v="primary"/>
</way>
</osm>`
	tags := model.SearchTagMap{"highway": {Values: []string{"primary"}}}
	d := run(t, xmlBody, tags, []model.GeometryType{model.GeometryPoints})

	if len(d.Features) != 0 {
		t.Fatalf("features len = %d, want 0 (way filtered out by geometry_types)", len(d.Features))
	}
	fp := "highway=primary"
	if d.Properties.FeatureCounts[fp] != 1 {
		t.Fatalf("feature_counts[%s] = %d, want 1 even though filtered", fp, d.Properties.FeatureCounts[fp])
	}
}

func TestZeroFeatureInput(t *testing.T) {
	d := run(t, `<osm></osm>`, model.SearchTagMap{"building": {}}, []model.GeometryType{model.GeometryPoints})
	if len(d.Features) != 0 {
		t.Fatalf("features len = %d, want 0", len(d.Features))
	}
	if d.Properties.FeatureCounts["building"] != 0 {
		t.Fatalf("feature_counts.building = %d, want 0", d.Properties.FeatureCounts["building"])
	}
}

func TestMissingUserDefaultsToUnknown(t *testing.T) {
	xmlBody := `<osm><node id="1" lon="0" lat="0"><tag k="building" v="yes"/></node></osm>`
	d := run(t, xmlBody, model.SearchTagMap{"building": {}}, []model.GeometryType{model.GeometryPoints})
	contributors := d.Properties.Contributors["building"]
	if contributors["unknown"] != 1 {
		t.Fatalf("contributors.building.unknown = %d, want 1", contributors["unknown"])
	}
}

func TestTruncatedXMLRaisesParseFailed(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "overpass.xml")
	out := filepath.Join(dir, "output.json")
	if err := os.WriteFile(in, []byte(`<osm><node id="1" lon="0" lat="0">`), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	if err := Run(in, out, model.SearchTagMap{"building": {}}, []model.GeometryType{model.GeometryPoints}); err == nil {
		t.Fatal("expected ParseFailed for truncated input")
	}
}

func TestUnparseableIDIsFatal(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "overpass.xml")
	out := filepath.Join(dir, "output.json")
	xmlBody := `<osm><node id="not-a-number" lon="0" lat="0"/></osm>`
	if err := os.WriteFile(in, []byte(xmlBody), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	if err := Run(in, out, model.SearchTagMap{"building": {}}, []model.GeometryType{model.GeometryPoints}); err == nil {
		t.Fatal("expected ParseFailed for unparseable id")
	}
}
