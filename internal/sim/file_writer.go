package sim

import (
	"encoding/json"
	"os"
	"sync"

	"owl-traffic-gen/internal/sample"
)

// FileWriter writes samples and state rows to JSONL files.
type FileWriter struct {
	mu        sync.Mutex
	logFile   *os.File
	stateFile *os.File
	logEnc    *json.Encoder
	stateEnc  *json.Encoder
}

// NewFileWriter creates a FileWriter. statePath may be empty to skip the state log.
func NewFileWriter(samplePath, statePath string) (*FileWriter, error) {
	lf, err := os.Create(samplePath)
	if err != nil {
		return nil, err
	}
	fw := &FileWriter{logFile: lf, logEnc: json.NewEncoder(lf)}
	if statePath != "" {
		sf, err := os.Create(statePath)
		if err != nil {
			lf.Close()
			return nil, err
		}
		fw.stateFile = sf
		fw.stateEnc = json.NewEncoder(sf)
	}
	return fw, nil
}

// Write logs a single sample.
func (f *FileWriter) Write(s sample.Sample) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logEnc.Encode(s)
}

// WriteState logs a generator state row, if enabled.
func (f *FileWriter) WriteState(row StateRow) error {
	if f.stateEnc == nil {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stateEnc.Encode(row)
}

// Close closes any underlying files.
func (f *FileWriter) Close() error {
	var err error
	if f.logFile != nil {
		if e := f.logFile.Close(); e != nil && err == nil {
			err = e
		}
	}
	if f.stateFile != nil {
		if e := f.stateFile.Close(); e != nil && err == nil {
			err = e
		}
	}
	return err
}
