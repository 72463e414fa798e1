package streamproc

import (
	"bufio"
	"encoding/json"
	"fmt"

	"github.com/hotosm/mapcampaign/internal/model"
)

// outputWriter streams the output FeatureCollection document one feature
// at a time, never holding the full feature set in memory.
type outputWriter struct {
	bw       *bufio.Writer
	wroteAny bool
}

func newOutputWriter(bw *bufio.Writer) *outputWriter {
	return &outputWriter{bw: bw}
}

func (w *outputWriter) writePrelude() error {
	_, err := w.bw.WriteString(`{"type":"FeatureCollection","features":[`)
	return err
}

// writeFeature appends one Feature, prefixing a comma before all but the
// first.
func (w *outputWriter) writeFeature(f model.Feature) error {
	if w.wroteAny {
		if err := w.bw.WriteByte(','); err != nil {
			return err
		}
	}
	b, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("streamproc: marshal feature: %w", err)
	}
	if _, err := w.bw.Write(b); err != nil {
		return err
	}
	w.wroteAny = true
	return nil
}

// finalize closes the features array and appends the aggregates object.
func (w *outputWriter) finalize(agg *model.Aggregates) error {
	if _, err := w.bw.WriteString("],\"properties\":"); err != nil {
		return err
	}
	b, err := json.Marshal(agg)
	if err != nil {
		return fmt.Errorf("streamproc: marshal aggregates: %w", err)
	}
	if _, err := w.bw.Write(b); err != nil {
		return err
	}
	if err := w.bw.WriteByte('}'); err != nil {
		return err
	}
	return w.bw.Flush()
}
