// Package export renders committed rows as CSV and writes them to a sink.
//
// The CSV layout is one line per stored row:
//
//	source_table,date,reactor,value,units,calibration
//
// Dates are RFC 3339 UTC with milliseconds. Vector values are written as
// space separated channels in brackets. A NULL calibration is an empty
// field.
package export
