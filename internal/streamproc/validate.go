package streamproc

import "github.com/hotosm/mapcampaign/internal/model"

// match is one primary search that matched a feature: its stats record
// (for the feature's `stats` property) plus the secondary fingerprints
// that were satisfied (for attributes_count).
type match struct {
	fp      string
	stats   model.SearchStats
	okSFPs  []string
}

func contains(values []string, v string) bool {
	for _, c := range values {
		if c == v {
			return true
		}
	}
	return false
}

// validateFeature evaluates every primary search against a feature's
// tags.
func validateFeature(e *element, tags model.SearchTagMap) []match {
	var matches []match
	for key, tag := range tags {
		val, found := e.tagValue(key)
		if !found {
			continue
		}
		if len(tag.Values) > 0 && !contains(tag.Values, val) {
			continue
		}
		fp := model.Fingerprint(key, tag.Values)

		if len(tag.Secondary) == 0 {
			matches = append(matches, match{fp: fp, stats: model.SearchStats{Completeness: 1.0}})
			continue
		}

		var errs []model.TagError
		var oks []string
		total := 0
		for sk, stag := range tag.Secondary {
			total++
			sval, sfound := e.tagValue(sk)
			switch {
			case !sfound:
				errs = append(errs, model.TagError{Kind: model.TagErrorKeyNotFound, Key: sk})
			case len(stag.Values) > 0 && !contains(stag.Values, sval):
				errs = append(errs, model.TagError{Kind: model.TagErrorValueNotFound, Key: sk})
			default:
				oks = append(oks, model.Fingerprint(sk, stag.Values))
			}
		}
		completeness := 1 - float64(len(errs))/float64(total)
		matches = append(matches, match{
			fp:     fp,
			stats:  model.SearchStats{Errors: errs, Completeness: completeness},
			okSFPs: oks,
		})
	}
	return matches
}
