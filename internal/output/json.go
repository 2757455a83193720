package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pulse-events/loadgen/internal/metrics"
)

// ReportVersion identifies the layout of the JSON report.
const ReportVersion = 1

// Report is the JSON document written for a run.
type Report struct {
	Version     int             `json:"version"`
	GeneratedAt time.Time       `json:"generated_at"`
	Run         RunInfo         `json:"run"`
	Summary     metrics.Summary `json:"summary"`
}

// WriteJSON encodes a report for info and s to w.
func WriteJSON(w io.Writer, info RunInfo, s metrics.Summary) error {
	report := Report{
		Version:     ReportVersion,
		GeneratedAt: s.End.UTC(),
		Run:         info,
		Summary:     s,
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return nil
}

// JSONFile writes the final summary to a file. Progress updates are
// ignored.
type JSONFile struct {
	path   string
	info   RunInfo
	logger *zap.Logger

	mu  sync.Mutex
	err error
}

// NewJSONFile creates a reporter writing to path.
func NewJSONFile(path string, info RunInfo, logger *zap.Logger) *JSONFile {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JSONFile{path: path, info: info, logger: logger}
}

// OnProgress does nothing.
func (j *JSONFile) OnProgress(metrics.Progress) {}

// OnFinal writes the report. Failures are logged and kept for Err.
func (j *JSONFile) OnFinal(s metrics.Summary) {
	err := j.write(s)

	j.mu.Lock()
	j.err = err
	j.mu.Unlock()

	if err != nil {
		j.logger.Error("failed to write JSON report", zap.String("path", j.path), zap.Error(err))
		return
	}
	j.logger.Info("wrote JSON report", zap.String("path", j.path))
}

func (j *JSONFile) write(s metrics.Summary) error {
	f, err := os.Create(j.path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	if err := WriteJSON(f, j.info, s); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Err returns the error from the last write, if any.
func (j *JSONFile) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}
