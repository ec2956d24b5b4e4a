package sweep

import (
	"fmt"
	"math"

	"github.com/myovent/simbatch/batch/document"
)

// OutputType selects how an adjusted value is coerced before it is stored.
type OutputType string

const (
	OutputNone  OutputType = ""
	OutputInt   OutputType = "int"
	OutputFloat OutputType = "float"
)

var validOutputTypes = map[OutputType]bool{OutputNone: true, OutputInt: true, OutputFloat: true}

// kineticsVariables name the half-sarcomere kinetic scheme collections that
// are addressed by 1-based isotype/scheme/transition/parameter indices.
var kineticsVariables = map[string]bool{"m_kinetics": true, "c_kinetics": true}

// DefaultKineticsRoot is the object holding the kinetic scheme collections
// in a model document.
var DefaultKineticsRoot = document.MustParsePath("MyoVent.circulation.ventricle.myocardium.contraction.model.muscle.half_sarcomere")

// Adjustment is one declarative edit applied to every variant of a sweep.
//
// The target is located in one of three ways:
//   - Path: a path expression such as "MyoVent.circulation.compartments.slack_volume[0]";
//   - Variable "m_kinetics" or "c_kinetics" with 1-based Isotype, Scheme,
//     Transition and ParameterNumber, addressing one rate parameter; with
//     Extension set the target is the scheme's extension and the base value
//     is Extension itself rather than the value in the document;
//   - Class and Variable, addressing document[Class][Variable].
//
// Multipliers scale the base value (one per variant, or one shared by all);
// Value instead overwrites the target with a fixed document in every variant.
type Adjustment struct {
	Class           string             `json:"class,omitempty"`
	Variable        string             `json:"variable,omitempty"`
	Isotype         int                `json:"isotype,omitempty"`
	Scheme          int                `json:"scheme,omitempty"`
	Transition      int                `json:"transition,omitempty"`
	ParameterNumber int                `json:"parameter_number,omitempty"`
	Extension       *float64           `json:"extension,omitempty"`
	Path            string             `json:"path,omitempty"`
	Multipliers     []float64          `json:"multipliers,omitempty"`
	Value           *document.Document `json:"value,omitempty"`
	OutputType      OutputType         `json:"output_type,omitempty"`
}

// ConfigError reports a sweep declaration that cannot drive a sweep.
type ConfigError struct {
	Adjustment int // index into the adjustment list, -1 for the sweep as a whole
	Reason     string
}

func (e *ConfigError) Error() string {
	if e.Adjustment < 0 {
		return "sweep: " + e.Reason
	}
	return fmt.Sprintf("sweep: adjustment[%d]: %s", e.Adjustment, e.Reason)
}

// Target returns the document path the adjustment edits.
func (a Adjustment) Target(kineticsRoot document.Path) (document.Path, error) {
	switch {
	case a.Path != "":
		p, err := document.ParsePath(a.Path)
		if err != nil {
			return nil, err
		}
		if len(p) == 0 {
			return nil, fmt.Errorf("path must not be empty")
		}
		return p, nil
	case kineticsVariables[a.Variable]:
		if a.Isotype < 1 || a.Scheme < 1 {
			return nil, fmt.Errorf("%s: isotype and scheme must be positive (1-based), got %d and %d", a.Variable, a.Isotype, a.Scheme)
		}
		scheme := kineticsRoot.Append(document.Key(a.Variable), document.Index(a.Isotype-1),
			document.Key("scheme"), document.Index(a.Scheme-1))
		if a.Extension != nil {
			return scheme.Append(document.Key("extension")), nil
		}
		if a.Transition < 1 || a.ParameterNumber < 1 {
			return nil, fmt.Errorf("%s: transition and parameter_number must be positive (1-based), got %d and %d", a.Variable, a.Transition, a.ParameterNumber)
		}
		return scheme.Append(document.Key("transition"), document.Index(a.Transition-1),
			document.Key("rate_parameters"), document.Index(a.ParameterNumber-1)), nil
	case a.Class != "" && a.Variable != "":
		return document.Path{document.Key(a.Class), document.Key(a.Variable)}, nil
	}
	return nil, fmt.Errorf("no target: set path, class and variable, or a kinetics variable")
}

// multiplier returns the multiplier for variant i.
func (a Adjustment) multiplier(i int) float64 {
	if len(a.Multipliers) == 1 {
		return a.Multipliers[0]
	}
	return a.Multipliers[i]
}

// Apply edits doc in place for variant i.
func (a Adjustment) Apply(doc *document.Document, i int, kineticsRoot document.Path) error {
	target, err := a.Target(kineticsRoot)
	if err != nil {
		return err
	}
	if a.Value != nil {
		return doc.Set(target, a.Value)
	}
	var base float64
	if a.Extension != nil {
		base = *a.Extension
		// the scheme must exist even though its current extension is ignored
		if _, err := doc.Get(target[:len(target)-1]); err != nil {
			return err
		}
	} else {
		current, err := doc.Get(target)
		if err != nil {
			return err
		}
		f, ok := current.Float()
		if !ok {
			return &document.PathError{Path: target, At: len(target) - 1, Reason: "value is " + current.Kind().String() + ", not a number"}
		}
		base = f
	}
	adjusted, err := coerce(base*a.multiplier(i), a.OutputType)
	if err != nil {
		return &ConfigError{Adjustment: -1, Reason: fmt.Sprintf("%s: %v", target, err)}
	}
	return doc.Set(target, adjusted)
}

// coerce converts an adjusted value to its stored form. Non-finite results
// become null.
func coerce(v float64, t OutputType) (*document.Document, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return document.Null(), nil
	}
	if t == OutputInt {
		if v >= math.MaxInt64 || v < math.MinInt64 {
			return nil, fmt.Errorf("value %g overflows int", v)
		}
		return document.NewInt(int64(v)), nil
	}
	return document.NewFloat(v), nil
}

// VariantCount returns the number of variants the adjustments describe: the
// length of the first multiplier sequence longer than one, else 1 when only
// single shared multipliers are present. Every sequence must have that length
// or length one.
func VariantCount(adjustments []Adjustment) (int, error) {
	if len(adjustments) == 0 {
		return 0, &ConfigError{Adjustment: -1, Reason: "no adjustments"}
	}
	n := 0
	for _, a := range adjustments {
		if len(a.Multipliers) > 1 {
			n = len(a.Multipliers)
			break
		}
		if len(a.Multipliers) == 1 && n == 0 {
			n = 1
		}
	}
	if n == 0 {
		return 0, &ConfigError{Adjustment: -1, Reason: "no adjustment carries a multiplier sequence"}
	}
	for i, a := range adjustments {
		if l := len(a.Multipliers); l != 0 && l != 1 && l != n {
			return 0, &ConfigError{Adjustment: i, Reason: fmt.Sprintf("%d multipliers, want %d or 1", l, n)}
		}
	}
	return n, nil
}

// Validate checks one adjustment in isolation.
func (a Adjustment) Validate(kineticsRoot document.Path) error {
	if !validOutputTypes[a.OutputType] {
		return fmt.Errorf("unknown output_type %q; valid: int, float, or empty", a.OutputType)
	}
	if a.Value != nil && len(a.Multipliers) > 0 {
		return fmt.Errorf("value and multipliers are mutually exclusive")
	}
	if a.Value == nil && len(a.Multipliers) == 0 {
		return fmt.Errorf("needs multipliers or a value")
	}
	if a.Extension != nil && !kineticsVariables[a.Variable] {
		return fmt.Errorf("extension applies only to m_kinetics or c_kinetics")
	}
	for j, m := range a.Multipliers {
		if math.IsInf(m, 0) {
			return fmt.Errorf("multipliers[%d] must be finite", j)
		}
	}
	_, err := a.Target(kineticsRoot)
	return err
}
