package registry

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/asaldivar93/reactors-czlab/internal/telemetry"
)

// Shape is the value shape a table accepts.
type Shape string

const (
	ShapeScalar Shape = "scalar"
	ShapeVector Shape = "vector"
)

// Layout is the row layout of a table.
type Layout string

const (
	LayoutExperiment Layout = "experiment"
	LayoutNode       Layout = "node"
)

// BiomassChannels is the channel count of the imaging biomass vector.
const BiomassChannels = 10

// ErrLegacyLayout is returned when a contract asks for the node layout.
var ErrLegacyLayout = errors.New("node-scoped layout is not supported; tables must reference experiment")

var identRe = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Contract describes the target table of one measurement kind.
type Contract struct {
	Kind         string
	Table        string
	Calibration  bool
	Shape        Shape
	VectorLen    int
	UnitRequired bool
	Layout       Layout
}

// Registry is an immutable kind → contract lookup.
type Registry struct {
	byKind map[string]Contract
	order  []string
}

// Default returns the built-in registry.
func Default() *Registry {
	r, err := New(defaultContracts()...)
	if err != nil {
		panic(fmt.Sprintf("registry: invalid built-in contracts: %v", err))
	}
	return r
}

func defaultContracts() []Contract {
	scalar := func(kind string, calibration bool) Contract {
		return Contract{
			Kind:         kind,
			Table:        kind,
			Calibration:  calibration,
			Shape:        ShapeScalar,
			UnitRequired: true,
			Layout:       LayoutExperiment,
		}
	}
	return []Contract{
		scalar("visiferm", false),
		scalar("arcph", false),
		scalar("analog", true),
		scalar("actuator", true),
		scalar("digital", true),
		scalar("light", true),
		{
			Kind:         "biomass",
			Table:        "biomass",
			Calibration:  true,
			Shape:        ShapeVector,
			VectorLen:    BiomassChannels,
			UnitRequired: true,
			Layout:       LayoutExperiment,
		},
	}
}

// New validates the contracts and builds a registry.
func New(contracts ...Contract) (*Registry, error) {
	r := &Registry{byKind: make(map[string]Contract, len(contracts))}
	tables := make(map[string]string, len(contracts))

	for _, c := range contracts {
		c.Kind = normalizeKind(c.Kind)
		if c.Table == "" {
			c.Table = c.Kind
		}
		if c.Shape == "" {
			c.Shape = ShapeScalar
		}
		if c.Layout == "" {
			c.Layout = LayoutExperiment
		}
		if err := validate(c); err != nil {
			return nil, err
		}
		if _, dup := r.byKind[c.Kind]; dup {
			return nil, fmt.Errorf("kind %q registered twice", c.Kind)
		}
		if other, dup := tables[c.Table]; dup {
			return nil, fmt.Errorf("table %q used by kinds %q and %q", c.Table, other, c.Kind)
		}
		tables[c.Table] = c.Kind
		r.byKind[c.Kind] = c
		r.order = append(r.order, c.Kind)
	}

	sort.Slice(r.order, func(i, j int) bool {
		return r.byKind[r.order[i]].Table < r.byKind[r.order[j]].Table
	})
	return r, nil
}

func validate(c Contract) error {
	if !identRe.MatchString(c.Kind) {
		return fmt.Errorf("kind %q is not a valid identifier", c.Kind)
	}
	if !identRe.MatchString(c.Table) {
		return fmt.Errorf("table %q for kind %q is not a valid identifier", c.Table, c.Kind)
	}
	if c.Table == "experiment" {
		return fmt.Errorf("kind %q cannot use the reserved table name experiment", c.Kind)
	}
	switch c.Layout {
	case LayoutExperiment:
	case LayoutNode:
		return fmt.Errorf("kind %q: %w", c.Kind, ErrLegacyLayout)
	default:
		return fmt.Errorf("kind %q: unknown layout %q", c.Kind, c.Layout)
	}
	switch c.Shape {
	case ShapeScalar:
		if c.VectorLen != 0 {
			return fmt.Errorf("kind %q: scalar tables take no vector_len", c.Kind)
		}
	case ShapeVector:
		if c.VectorLen <= 0 {
			return fmt.Errorf("kind %q: vector tables need a positive vector_len", c.Kind)
		}
	default:
		return fmt.Errorf("kind %q: unknown shape %q", c.Kind, c.Shape)
	}
	return nil
}

func normalizeKind(kind string) string {
	return strings.ToLower(strings.TrimSpace(kind))
}

// Lookup returns the contract for kind. Matching ignores case and
// surrounding whitespace.
func (r *Registry) Lookup(kind string) (Contract, error) {
	c, ok := r.byKind[normalizeKind(kind)]
	if !ok {
		return Contract{}, telemetry.NewUnknownModel(kind)
	}
	return c, nil
}

// Contracts returns every contract ordered by table name.
func (r *Registry) Contracts() []Contract {
	out := make([]Contract, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, r.byKind[k])
	}
	return out
}

// Kinds returns the registered kinds ordered by table name.
func (r *Registry) Kinds() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// ValueColumns returns the columns holding the value: "value" for scalar
// tables, ch_0..ch_{n-1} for vector tables.
func ValueColumns(c Contract) []string {
	if c.Shape != ShapeVector {
		return []string{"value"}
	}
	cols := make([]string, c.VectorLen)
	for i := range cols {
		cols[i] = fmt.Sprintf("ch_%d", i)
	}
	return cols
}

// Columns returns the insertable columns of an experiment-layout table,
// in the order rows are built.
func Columns(c Contract) []string {
	cols := []string{"experiment_id", "date", "reactor"}
	if c.Calibration {
		cols = append(cols, "calibration")
	}
	cols = append(cols, ValueColumns(c)...)
	return append(cols, "units")
}

// CheckValue validates v against the contract's shape.
func CheckValue(c Contract, v telemetry.Value) error {
	switch c.Shape {
	case ShapeScalar:
		if v.IsVector() {
			return telemetry.NewShapeMismatch(c.Kind, "vector value sent to scalar table")
		}
	case ShapeVector:
		if !v.IsVector() {
			return telemetry.NewShapeMismatch(c.Kind, "scalar value sent to vector table")
		}
		if len(v.Vector) != c.VectorLen {
			return telemetry.NewShapeMismatch(c.Kind,
				fmt.Sprintf("vector has %d channels, table expects %d", len(v.Vector), c.VectorLen))
		}
	}
	return nil
}
