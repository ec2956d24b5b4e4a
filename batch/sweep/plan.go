package sweep

import (
	"fmt"
	"path/filepath"

	"github.com/myovent/simbatch/batch"
	"github.com/myovent/simbatch/batch/document"
	"github.com/myovent/simbatch/batch/pathres"
)

// ManifestFileName is the batch manifest written into a sweep's output dir.
const ManifestFileName = "batch.json"

// Plan is a standalone sweep file: a base model, the shared options and
// protocol, the executable and the adjustments. Relative paths follow the
// relative_to rule.
type Plan struct {
	File              string       `json:"-"`
	BaseModel         string       `json:"base_model"`
	OptionsFile       string       `json:"options_file"`
	ProtocolFile      string       `json:"protocol_file"`
	OutputDir         string       `json:"output_dir"`
	OutputHandlerFile string       `json:"output_handler_file,omitempty"`
	Executable        string       `json:"executable"`
	ConcurrencyLimit  int          `json:"concurrency_limit,omitempty"`
	RelativeTo        *string      `json:"relative_to,omitempty"`
	KineticsRoot      string       `json:"kinetics_root,omitempty"`
	Adjustments       []Adjustment `json:"adjustments"`
}

// LoadPlan reads a sweep plan (JSON or YAML). Unknown keys are rejected.
func LoadPlan(path string) (*Plan, error) {
	doc, err := document.Load(path)
	if err != nil {
		return nil, fmt.Errorf("reading sweep plan: %w", err)
	}
	var p Plan
	if err := doc.DecodeInto(&p, true); err != nil {
		return nil, fmt.Errorf("parsing sweep plan %s: %w", path, err)
	}
	p.File = path
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks required fields and every adjustment.
func (p *Plan) Validate() error {
	for _, f := range []struct{ name, value string }{
		{"base_model", p.BaseModel},
		{"options_file", p.OptionsFile},
		{"protocol_file", p.ProtocolFile},
		{"output_dir", p.OutputDir},
		{"executable", p.Executable},
	} {
		if f.value == "" {
			return fmt.Errorf("sweep plan %s: %s is required", p.File, f.name)
		}
	}
	if p.ConcurrencyLimit < 0 {
		return fmt.Errorf("sweep plan %s: concurrency_limit must be positive, got %d", p.File, p.ConcurrencyLimit)
	}
	root, err := p.kineticsRoot()
	if err != nil {
		return err
	}
	for i, a := range p.Adjustments {
		if err := a.Validate(root); err != nil {
			return &ConfigError{Adjustment: i, Reason: err.Error()}
		}
	}
	_, err = VariantCount(p.Adjustments)
	return err
}

func (p *Plan) kineticsRoot() (document.Path, error) {
	if p.KineticsRoot == "" {
		return DefaultKineticsRoot, nil
	}
	root, err := document.ParsePath(p.KineticsRoot)
	if err != nil {
		return nil, fmt.Errorf("sweep plan %s: kinetics_root: %w", p.File, err)
	}
	return root, nil
}

// Build materializes the sweep and writes <output_dir>/batch.json. It
// returns the manifest ready for dispatch.
func (p *Plan) Build() (*batch.Manifest, error) {
	r := pathres.New(p.File)
	resolve := func(raw string) (string, error) {
		if raw == "" {
			return "", nil
		}
		return r.Resolve(raw, p.RelativeTo)
	}
	var cfg Config
	var baseModel, exe string
	for _, f := range []struct {
		raw string
		dst *string
	}{
		{p.BaseModel, &baseModel},
		{p.Executable, &exe},
		{p.OptionsFile, &cfg.OptionsPath},
		{p.ProtocolFile, &cfg.ProtocolPath},
		{p.OutputDir, &cfg.OutputDir},
		{p.OutputHandlerFile, &cfg.OutputHandlerPath},
	} {
		resolved, err := resolve(f.raw)
		if err != nil {
			return nil, err
		}
		*f.dst = resolved
	}
	root, err := p.kineticsRoot()
	if err != nil {
		return nil, err
	}
	cfg.KineticsRoot = root
	planFile, err := filepath.Abs(p.File)
	if err != nil {
		return nil, err
	}
	cfg.Protected = []string{planFile, baseModel, exe, cfg.OptionsPath, cfg.ProtocolPath, cfg.OutputHandlerPath}

	base, err := document.Load(baseModel)
	if err != nil {
		return nil, fmt.Errorf("loading base model: %w", err)
	}
	g, err := NewGenerator(cfg)
	if err != nil {
		return nil, err
	}
	jobs, err := g.Generate(base, p.Adjustments)
	if err != nil {
		return nil, err
	}
	m := &batch.Manifest{
		File:             filepath.Join(cfg.OutputDir, ManifestFileName),
		Executable:       exe,
		ConcurrencyLimit: p.ConcurrencyLimit,
		Jobs:             jobs,
	}
	if err := batch.WriteManifest(m, m.File); err != nil {
		return nil, fmt.Errorf("writing sweep manifest: %w", err)
	}
	return m, nil
}
