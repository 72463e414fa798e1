package streamproc

import "github.com/hotosm/mapcampaign/internal/model"

// kv is one (key, value) tag pair, in source order.
type kv struct {
	K, V string
}

// element is the parser's transient view of the node or way currently
// being read; it never outlives a single StartElement..EndElement span.
type element struct {
	kind   string // "node" or "way"
	id     int64
	user   string
	coords []model.LonLat
	tags   []kv
}

func (e *element) tagValue(key string) (string, bool) {
	for _, t := range e.tags {
		if t.K == key {
			return t.V, true
		}
	}
	return "", false
}
