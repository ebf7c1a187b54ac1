package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"iter"

	"github.com/asaldivar93/reactors-czlab/internal/telemetry"
)

// Header is the first line of every export.
var Header = []string{"source_table", "date", "reactor", "value", "units", "calibration"}

// DateLayout formats the date column.
const DateLayout = "2006-01-02T15:04:05.000Z07:00"

// Fields returns the CSV fields of one row.
func Fields(r telemetry.Record) []string {
	return []string{
		r.Table,
		r.Timestamp.UTC().Format(DateLayout),
		r.Reactor,
		r.Value.String(),
		r.Units,
		r.Calibration,
	}
}

// WriteCSV writes the header and rows to w.
func WriteCSV(w io.Writer, rows []telemetry.Record) error {
	return WriteSeq(w, func(yield func(telemetry.Record, error) bool) {
		for _, r := range rows {
			if !yield(r, nil) {
				return
			}
		}
	})
}

// WriteSeq writes the header and every row of seq to w, stopping at the
// first error.
func WriteSeq(w io.Writer, seq iter.Seq2[telemetry.Record, error]) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for r, err := range seq {
		if err != nil {
			return err
		}
		if err := cw.Write(Fields(r)); err != nil {
			return fmt.Errorf("write row %d: %w", r.ID, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}
