// Package characterize turns a characterization setup into ready-to-run
// batches.
//
// A setup names one or more model files (or a manipulation sweep that
// generates them), a shared options file and a list of characterizations.
// Each characterization expands every model into a set of conditions, writes
// one model/options/protocol triple per (model, condition) under its
// sim_folder and records the resulting jobs in <sim_folder>/batch.json.
package characterize

import (
	"fmt"

	"github.com/myovent/simbatch/batch/document"
	"github.com/myovent/simbatch/batch/sweep"
)

// Kind selects how a characterization derives its conditions.
type Kind string

const (
	// Freeform runs NoOfConditions conditions; activation and perturbation
	// entries are routed to conditions by their "simulation" field.
	Freeform Kind = "freeform"
	// Isovolumic runs one condition per ventricular slack volume factor.
	// Its protocols carry every perturbation entry and no activation.
	Isovolumic Kind = "isovolumic"
)

// Setup is a characterization setup file.
type Setup struct {
	File             string             `json:"-"`
	Executable       string             `json:"executable"`
	RelativeTo       *string            `json:"relative_to,omitempty"` // applies to Executable
	ConcurrencyLimit int                `json:"concurrency_limit,omitempty"`
	Model            ModelSection       `json:"model"`
	Characterization []Characterization `json:"characterization"`
}

// ModelSection lists the models to characterize and their options.
type ModelSection struct {
	RelativeTo    *string        `json:"relative_to,omitempty"`
	ModelFiles    []string       `json:"model_files,omitempty"`
	OptionsFile   string         `json:"options_file"`
	Manipulations *Manipulations `json:"manipulations,omitempty"`
}

// Manipulations generate the model files from a base model by a sweep. When
// present they replace ModelFiles.
type Manipulations struct {
	BaseModel       string             `json:"base_model"`
	GeneratedFolder string             `json:"generated_folder"`
	Adjustments     []sweep.Adjustment `json:"adjustments"`
}

// Characterization is one analysis over every model.
type Characterization struct {
	Type              Kind                 `json:"type"`
	RelativeTo        *string              `json:"relative_to,omitempty"`
	SimFolder         string               `json:"sim_folder"`
	TimeStepS         float64              `json:"time_step_s"`
	SimDurationS      float64              `json:"sim_duration_s"`
	MN                *int                 `json:"m_n,omitempty"`
	NoOfConditions    int                  `json:"no_of_conditions,omitempty"`
	SlackFactors      []float64            `json:"ventricular_slack_volume_factors,omitempty"`
	Activation        []*document.Document `json:"activation,omitempty"`
	Perturbation      []*document.Document `json:"perturbation,omitempty"`
	OutputHandlerFile string               `json:"output_handler_file,omitempty"`

	// Figure settings are read by output handlers, not here.
	EspvrStartTimeS    *float64 `json:"espvr_start_time_s,omitempty"`
	OutputImageFormats []string `json:"output_image_formats,omitempty"`
}

// LoadSetup reads and validates a setup file (JSON or YAML). Unknown keys
// are rejected.
func LoadSetup(path string) (*Setup, error) {
	doc, err := document.Load(path)
	if err != nil {
		return nil, fmt.Errorf("reading setup: %w", err)
	}
	var s Setup
	if err := doc.DecodeInto(&s, true); err != nil {
		return nil, fmt.Errorf("parsing setup %s: %w", path, err)
	}
	s.File = path
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks the setup without touching the filesystem.
func (s *Setup) Validate() error {
	if s.Executable == "" {
		return fmt.Errorf("setup %s: executable is required", s.File)
	}
	if s.ConcurrencyLimit < 0 {
		return fmt.Errorf("setup %s: concurrency_limit must be positive, got %d", s.File, s.ConcurrencyLimit)
	}
	if s.Model.OptionsFile == "" {
		return fmt.Errorf("setup %s: model.options_file is required", s.File)
	}
	if m := s.Model.Manipulations; m != nil {
		if m.BaseModel == "" || m.GeneratedFolder == "" {
			return fmt.Errorf("setup %s: manipulations need base_model and generated_folder", s.File)
		}
		for i, a := range m.Adjustments {
			if err := a.Validate(sweep.DefaultKineticsRoot); err != nil {
				return &sweep.ConfigError{Adjustment: i, Reason: err.Error()}
			}
		}
		if _, err := sweep.VariantCount(m.Adjustments); err != nil {
			return err
		}
	} else if len(s.Model.ModelFiles) == 0 {
		return fmt.Errorf("setup %s: model needs model_files or manipulations", s.File)
	}
	if len(s.Characterization) == 0 {
		return fmt.Errorf("setup %s: characterization list is empty", s.File)
	}
	for i := range s.Characterization {
		if err := s.Characterization[i].Validate(); err != nil {
			return fmt.Errorf("setup %s: characterization[%d]: %w", s.File, i, err)
		}
	}
	return nil
}

// Validate checks one characterization.
func (c *Characterization) Validate() error {
	if c.SimFolder == "" {
		return fmt.Errorf("sim_folder is required")
	}
	if c.TimeStepS <= 0 {
		return fmt.Errorf("time_step_s must be positive, got %g", c.TimeStepS)
	}
	if c.SimDurationS <= 0 {
		return fmt.Errorf("sim_duration_s must be positive, got %g", c.SimDurationS)
	}
	switch c.Type {
	case Freeform:
		if c.NoOfConditions < 1 {
			return fmt.Errorf("freeform needs no_of_conditions >= 1, got %d", c.NoOfConditions)
		}
		for _, group := range []struct {
			name    string
			entries []*document.Document
		}{{"activation", c.Activation}, {"perturbation", c.Perturbation}} {
			for j, e := range group.entries {
				if e.Kind() != document.KindObject {
					return fmt.Errorf("%s[%d] must be an object", group.name, j)
				}
				if _, err := simulations(e); err != nil {
					return fmt.Errorf("%s[%d]: %w", group.name, j, err)
				}
			}
		}
	case Isovolumic:
		if len(c.SlackFactors) == 0 {
			return fmt.Errorf("isovolumic needs ventricular_slack_volume_factors")
		}
		if len(c.Activation) > 0 {
			return fmt.Errorf("activation applies only to freeform characterizations")
		}
	default:
		return fmt.Errorf("unknown type %q; valid: freeform, isovolumic", c.Type)
	}
	return nil
}
