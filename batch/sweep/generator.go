// Package sweep generates families of model documents from one base model
// and an ordered list of adjustments, and turns them into batch jobs.
package sweep

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/myovent/simbatch/batch"
	"github.com/myovent/simbatch/batch/document"
	"github.com/myovent/simbatch/batch/pathres"
)

// Default file layout inside a sweep's output directory.
const (
	DefaultModelFileName   = "model.json"
	DefaultResultsFileName = "sim_output.txt"
	InputDirName           = "sim_input"
	OutputDirName          = "sim_output"
)

// Config controls where a sweep writes its variants and what the resulting
// jobs point at.
type Config struct {
	OutputDir         string        // absolute; removed and recreated by Materialize
	OptionsPath       string        // shared by every job
	ProtocolPath      string        // shared by every job
	OutputHandlerPath string        // optional, shared by every job
	KineticsRoot      document.Path // defaults to DefaultKineticsRoot
	ModelFileName     string        // defaults to DefaultModelFileName
	ResultsFileName   string        // defaults to DefaultResultsFileName

	// Protected lists files that must survive cleaning OutputDir, such as
	// the sweep file and the base model. An OutputDir holding any of them is
	// refused.
	Protected []string
}

// Variant is one materialized derived model.
type Variant struct {
	Index       int // 0-based
	ModelPath   string
	ResultsPath string
	Model       *document.Document
}

// Generator derives and writes sweep variants.
type Generator struct {
	cfg Config
}

// NewGenerator validates cfg and fills defaults.
func NewGenerator(cfg Config) (*Generator, error) {
	if cfg.OutputDir == "" || !filepath.IsAbs(cfg.OutputDir) {
		return nil, fmt.Errorf("sweep output dir must be absolute, got %q", cfg.OutputDir)
	}
	cfg.OutputDir = filepath.Clean(cfg.OutputDir)
	if filepath.Dir(cfg.OutputDir) == cfg.OutputDir {
		return nil, fmt.Errorf("refusing to use filesystem root %q as sweep output dir", cfg.OutputDir)
	}
	if cfg.KineticsRoot == nil {
		cfg.KineticsRoot = DefaultKineticsRoot
	}
	if cfg.ModelFileName == "" {
		cfg.ModelFileName = DefaultModelFileName
	}
	if cfg.ResultsFileName == "" {
		cfg.ResultsFileName = DefaultResultsFileName
	}
	return &Generator{cfg: cfg}, nil
}

// Derive builds variant i (0-based) in memory. Adjustments are applied in
// declaration order to a single deep copy of base, so a later adjustment sees
// the effect of earlier ones on the same target.
func Derive(base *document.Document, adjustments []Adjustment, i int, kineticsRoot document.Path) (*document.Document, error) {
	doc := base.Clone()
	for j, a := range adjustments {
		if err := a.Apply(doc, i, kineticsRoot); err != nil {
			return nil, fmt.Errorf("adjustment[%d]: %w", j, err)
		}
	}
	return doc, nil
}

// DeriveAll validates the adjustments and builds every variant in memory.
func DeriveAll(base *document.Document, adjustments []Adjustment, kineticsRoot document.Path) ([]*document.Document, error) {
	for j, a := range adjustments {
		if err := a.Validate(kineticsRoot); err != nil {
			return nil, &ConfigError{Adjustment: j, Reason: err.Error()}
		}
	}
	n, err := VariantCount(adjustments)
	if err != nil {
		return nil, err
	}
	docs := make([]*document.Document, n)
	for i := range docs {
		doc, err := Derive(base, adjustments, i, kineticsRoot)
		if err != nil {
			return nil, fmt.Errorf("variant %d: %w", i+1, err)
		}
		docs[i] = doc
	}
	return docs, nil
}

// Materialize derives every variant and writes variant i to
// <OutputDir>/sim_input/<i+1>/<ModelFileName>. All variants are derived
// before the output directory is touched, so a bad adjustment leaves the
// filesystem unchanged.
func (g *Generator) Materialize(base *document.Document, adjustments []Adjustment) ([]Variant, error) {
	docs, err := DeriveAll(base, adjustments, g.cfg.KineticsRoot)
	if err != nil {
		return nil, err
	}
	for _, p := range g.cfg.Protected {
		if p != "" && pathres.Within(g.cfg.OutputDir, p) {
			return nil, fmt.Errorf("refusing to clean sweep output dir %s: it holds %s", g.cfg.OutputDir, p)
		}
	}
	logrus.Infof("Cleaning sweep output dir %s", g.cfg.OutputDir)
	if err := os.RemoveAll(g.cfg.OutputDir); err != nil {
		return nil, fmt.Errorf("cleaning %s: %w", g.cfg.OutputDir, err)
	}
	variants := make([]Variant, len(docs))
	for i, doc := range docs {
		n := strconv.Itoa(i + 1)
		v := Variant{
			Index:       i,
			ModelPath:   filepath.Join(g.cfg.OutputDir, InputDirName, n, g.cfg.ModelFileName),
			ResultsPath: filepath.Join(g.cfg.OutputDir, OutputDirName, n, g.cfg.ResultsFileName),
			Model:       doc,
		}
		if err := document.Save(doc, v.ModelPath); err != nil {
			return nil, fmt.Errorf("writing variant %d: %w", i+1, err)
		}
		variants[i] = v
	}
	logrus.Infof("Generated %d sweep variants in %s", len(variants), g.cfg.OutputDir)
	return variants, nil
}

// Generate materializes the sweep and returns one job per variant; job
// sequence numbers are the 1-based variant indices.
func (g *Generator) Generate(base *document.Document, adjustments []Adjustment) ([]batch.Job, error) {
	if g.cfg.OptionsPath == "" || g.cfg.ProtocolPath == "" {
		return nil, fmt.Errorf("sweep jobs need options and protocol paths")
	}
	variants, err := g.Materialize(base, adjustments)
	if err != nil {
		return nil, err
	}
	return g.Jobs(variants), nil
}

// Jobs builds the job list for already materialized variants.
func (g *Generator) Jobs(variants []Variant) []batch.Job {
	jobs := make([]batch.Job, len(variants))
	for i, v := range variants {
		jobs[i] = batch.Job{
			Sequence:          v.Index + 1,
			ModelPath:         v.ModelPath,
			OptionsPath:       g.cfg.OptionsPath,
			ProtocolPath:      g.cfg.ProtocolPath,
			ResultsPath:       v.ResultsPath,
			OutputHandlerPath: g.cfg.OutputHandlerPath,
		}
	}
	return jobs
}
