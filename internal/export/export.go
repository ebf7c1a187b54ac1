package export

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/asaldivar93/reactors-czlab/internal/query"
	"github.com/asaldivar93/reactors-czlab/internal/telemetry"
)

// Source reads experiments and their rows. *query.Querier implements it.
type Source interface {
	Experiment(ctx context.Context, id int64) (telemetry.Experiment, error)
	ExperimentData(ctx context.Context, experimentID int64, window query.Window) ([]telemetry.Record, error)
}

// FileName returns "<name>_<YYYYmmddHHMMSS>.csv" for an export taken at.
// Path separators and spaces in the experiment name become underscores.
func FileName(experiment string, at time.Time) string {
	safe := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ' ', ':':
			return '_'
		}
		return r
	}, experiment)
	return fmt.Sprintf("%s_%s.csv", safe, at.UTC().Format("20060102150405"))
}

// Export renders the experiment's rows within window and writes them to
// sink. Returns the sink location.
func Export(ctx context.Context, src Source, sink Sink, experimentID int64, window query.Window) (string, error) {
	return ExportAt(ctx, src, sink, experimentID, window, time.Now())
}

// ExportAt is Export with an explicit timestamp for the file name.
func ExportAt(ctx context.Context, src Source, sink Sink, experimentID int64, window query.Window, at time.Time) (string, error) {
	exp, err := src.Experiment(ctx, experimentID)
	if err != nil {
		return "", err
	}
	rows, err := src.ExperimentData(ctx, experimentID, window)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, rows); err != nil {
		return "", fmt.Errorf("render export: %w", err)
	}
	return sink.Put(ctx, FileName(exp.Name, at), buf.Bytes())
}
