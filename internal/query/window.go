package query

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/asaldivar93/reactors-czlab/internal/telemetry"
)

// Window is a trailing time range: the last N minutes, hours, or days, or
// everything.
type Window struct {
	span time.Duration
	all  bool
	text string
}

// All selects every row.
var All = Window{all: true, text: "all"}

// Last returns a window covering the trailing d.
func Last(d time.Duration) Window {
	return Window{span: d, text: d.String()}
}

// ParseWindow parses "all" or a number followed by m, h, or d, such as
// "20m", "1.5h", or "7d". An empty string means all.
func ParseWindow(s string) (Window, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || s == "all" {
		return All, nil
	}

	var unit time.Duration
	switch s[len(s)-1] {
	case 'm':
		unit = time.Minute
	case 'h':
		unit = time.Hour
	case 'd':
		unit = 24 * time.Hour
	default:
		return Window{}, telemetry.NewInvalid(fmt.Sprintf("invalid time window %q (valid units: m, h, d, all)", s))
	}

	n, err := strconv.ParseFloat(strings.TrimSpace(s[:len(s)-1]), 64)
	if err != nil || n < 0 {
		return Window{}, telemetry.NewInvalid(fmt.Sprintf("invalid time window %q", s))
	}
	return Window{span: time.Duration(n * float64(unit)), text: s}, nil
}

// IsAll reports whether the window is unbounded.
func (w Window) IsAll() bool {
	return w.all
}

// Since returns the inclusive cutoff relative to now, or nil for All.
func (w Window) Since(now time.Time) *time.Time {
	if w.all {
		return nil
	}
	cutoff := now.Add(-w.span)
	return &cutoff
}

// String returns the window as it was written.
func (w Window) String() string {
	if w.text == "" {
		return "all"
	}
	return w.text
}
