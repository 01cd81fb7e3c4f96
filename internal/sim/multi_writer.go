package sim

import (
	"errors"
	"io"

	"owl-traffic-gen/internal/sample"
)

// MultiWriter fan-outs samples and state rows to multiple writers.
type MultiWriter struct {
	writers []SampleWriter
}

// NewMultiWriter creates a new MultiWriter. Nil entries are skipped.
func NewMultiWriter(ws ...SampleWriter) *MultiWriter {
	mw := &MultiWriter{}
	for _, w := range ws {
		if w != nil {
			mw.writers = append(mw.writers, w)
		}
	}
	return mw
}

// Len reports how many writers receive rows.
func (mw *MultiWriter) Len() int {
	return len(mw.writers)
}

// Write sends a sample to all writers. A failing writer does not stop the
// others; their errors are joined.
func (mw *MultiWriter) Write(s sample.Sample) error {
	var errs []error
	for _, w := range mw.writers {
		if err := w.Write(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WriteState sends a state row to every writer that records state.
func (mw *MultiWriter) WriteState(row StateRow) error {
	var errs []error
	for _, w := range mw.writers {
		if sw, ok := w.(StateWriter); ok {
			if err := sw.WriteState(row); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Close closes every writer that holds resources.
func (mw *MultiWriter) Close() error {
	var errs []error
	for _, w := range mw.writers {
		if c, ok := w.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
