package registry

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

// kindSchema constrains registry files. #Kind is closed, so misspelled
// fields are rejected.
const kindSchema = `
#Kind: {
	table?:         =~"^[a-z][a-z0-9_]*$"
	calibration?:   bool
	shape?:         "scalar" | "vector"
	vector_len?:    int & >0
	unit_required?: bool
	layout?:        "experiment" | "node"
}

kinds: [=~"^[a-z][a-z0-9_]*$"]: #Kind
`

// LoadCUE builds a registry from a CUE file of the form
//
//	kinds: {
//		analog:  {calibration: true}
//		biomass: {calibration: true, shape: "vector", vector_len: 10}
//	}
//
// Omitted fields default to: table = kind, calibration false, scalar shape,
// units required, experiment layout.
func LoadCUE(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry file: %w", err)
	}
	return ParseCUE(path, data)
}

// ParseCUE is LoadCUE on an in-memory source. filename is used in error
// positions only.
func ParseCUE(filename string, src []byte) (*Registry, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(kindSchema, cue.Filename("registry-schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile registry schema: %w", err)
	}

	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	v = schema.Unify(v)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	kindsVal := v.LookupPath(cue.ParsePath("kinds"))
	if !kindsVal.Exists() {
		return nil, fmt.Errorf("%s: no kinds defined", filename)
	}

	iter, err := kindsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var contracts []Contract
	for iter.Next() {
		c, err := contractFromCUE(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		contracts = append(contracts, c)
	}
	if len(contracts) == 0 {
		return nil, fmt.Errorf("%s: no kinds defined", filename)
	}

	return New(contracts...)
}

func contractFromCUE(kind string, v cue.Value) (Contract, error) {
	c := Contract{
		Kind:         kind,
		Table:        kind,
		Shape:        ShapeScalar,
		UnitRequired: true,
		Layout:       LayoutExperiment,
	}

	if f := v.LookupPath(cue.ParsePath("table")); f.Exists() {
		s, err := f.String()
		if err != nil {
			return Contract{}, formatCUEError(err)
		}
		c.Table = s
	}
	if f := v.LookupPath(cue.ParsePath("calibration")); f.Exists() {
		b, err := f.Bool()
		if err != nil {
			return Contract{}, formatCUEError(err)
		}
		c.Calibration = b
	}
	if f := v.LookupPath(cue.ParsePath("shape")); f.Exists() {
		s, err := f.String()
		if err != nil {
			return Contract{}, formatCUEError(err)
		}
		c.Shape = Shape(s)
	}
	if f := v.LookupPath(cue.ParsePath("vector_len")); f.Exists() {
		n, err := f.Int64()
		if err != nil {
			return Contract{}, formatCUEError(err)
		}
		c.VectorLen = int(n)
	}
	if f := v.LookupPath(cue.ParsePath("unit_required")); f.Exists() {
		b, err := f.Bool()
		if err != nil {
			return Contract{}, formatCUEError(err)
		}
		c.UnitRequired = b
	}
	if f := v.LookupPath(cue.ParsePath("layout")); f.Exists() {
		s, err := f.String()
		if err != nil {
			return Contract{}, formatCUEError(err)
		}
		c.Layout = Layout(s)
	}
	return c, nil
}

func formatCUEError(err error) error {
	return fmt.Errorf("registry: %s", cueerrors.Details(err, nil))
}
