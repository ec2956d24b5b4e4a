package characterize

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/myovent/simbatch/batch"
	"github.com/myovent/simbatch/batch/document"
	"github.com/myovent/simbatch/batch/pathres"
	"github.com/myovent/simbatch/batch/sweep"
)

// File names inside a characterization's sim_input/<n> directory.
const (
	ModelFileName    = "model.json"
	OptionsFileName  = "options.json"
	ProtocolFileName = "protocol.json"
)

// Batches is a setup with its executable, models and options resolved and
// loaded. Characterization i is written to disk by Prepare(i), so callers can
// run each batch before the next one reuses its sim_folder.
type Batches struct {
	setup       *Setup
	r           pathres.Resolver
	exe         string
	modelFiles  []string
	models      []*document.Document
	optionsPath string
	options     *document.Document
}

// Resolve loads the models and options shared by every characterization.
// Manipulations, if any, are materialized here; their variants become the
// model list.
func (s *Setup) Resolve() (*Batches, error) {
	b := &Batches{setup: s, r: pathres.New(s.File)}
	var err error
	if b.exe, err = b.r.Resolve(s.Executable, s.RelativeTo); err != nil {
		return nil, fmt.Errorf("setup %s: executable: %w", s.File, err)
	}
	if b.modelFiles, err = s.modelFiles(b.r); err != nil {
		return nil, err
	}
	if b.optionsPath, err = b.r.Resolve(s.Model.OptionsFile, s.Model.RelativeTo); err != nil {
		return nil, fmt.Errorf("setup %s: options_file: %w", s.File, err)
	}
	if b.options, err = document.Load(b.optionsPath); err != nil {
		return nil, fmt.Errorf("loading options: %w", err)
	}
	b.models = make([]*document.Document, len(b.modelFiles))
	for i, f := range b.modelFiles {
		if b.models[i], err = document.Load(f); err != nil {
			return nil, fmt.Errorf("loading model: %w", err)
		}
	}
	return b, nil
}

// Len is the number of characterizations.
func (b *Batches) Len() int { return len(b.setup.Characterization) }

// Prepare cleans characterization i's sim_folder, writes its inputs and
// batch manifest and returns the manifest. Nothing is dispatched. All of its
// documents are derived before the folder is touched.
func (b *Batches) Prepare(i int) (*batch.Manifest, error) {
	if i < 0 || i >= b.Len() {
		return nil, fmt.Errorf("characterization %d out of range (have %d)", i, b.Len())
	}
	c := &b.setup.Characterization[i]
	m, err := b.prepareOne(c)
	if err != nil {
		return nil, fmt.Errorf("characterization[%d] (%s): %w", i, c.Type, err)
	}
	return m, nil
}

// Prepare writes every characterization's inputs and batch manifest up front
// and returns the manifests in characterization order. Since all folders
// coexist on disk afterwards, sim_folders that are equal or nested are
// rejected before anything is cleaned; use Resolve and Batches.Prepare to
// run characterizations that share a folder one after another.
func (s *Setup) Prepare() ([]*batch.Manifest, error) {
	if err := s.checkDisjointFolders(); err != nil {
		return nil, err
	}
	b, err := s.Resolve()
	if err != nil {
		return nil, err
	}
	manifests := make([]*batch.Manifest, 0, b.Len())
	for i := 0; i < b.Len(); i++ {
		m, err := b.Prepare(i)
		if err != nil {
			return nil, err
		}
		manifests = append(manifests, m)
	}
	return manifests, nil
}

func (s *Setup) checkDisjointFolders() error {
	r := pathres.New(s.File)
	folders := make([]string, len(s.Characterization))
	for i, c := range s.Characterization {
		f, err := r.Resolve(c.SimFolder, c.RelativeTo)
		if err != nil {
			return fmt.Errorf("characterization[%d]: sim_folder: %w", i, err)
		}
		for j, prev := range folders[:i] {
			if pathres.Within(prev, f) || pathres.Within(f, prev) {
				return fmt.Errorf("setup %s: characterization[%d] sim_folder %s overlaps characterization[%d] sim_folder %s",
					s.File, i, f, j, prev)
			}
		}
		folders[i] = f
	}
	return nil
}

// modelFiles returns the absolute model paths, generating them from the
// manipulations when present.
func (s *Setup) modelFiles(r pathres.Resolver) ([]string, error) {
	m := s.Model.Manipulations
	if m == nil {
		files := make([]string, len(s.Model.ModelFiles))
		for i, f := range s.Model.ModelFiles {
			abs, err := r.Resolve(f, s.Model.RelativeTo)
			if err != nil {
				return nil, fmt.Errorf("setup %s: model_files[%d]: %w", s.File, i, err)
			}
			files[i] = abs
		}
		return files, nil
	}

	basePath, err := r.Resolve(m.BaseModel, s.Model.RelativeTo)
	if err != nil {
		return nil, fmt.Errorf("setup %s: base_model: %w", s.File, err)
	}
	genDir, err := r.Resolve(m.GeneratedFolder, s.Model.RelativeTo)
	if err != nil {
		return nil, fmt.Errorf("setup %s: generated_folder: %w", s.File, err)
	}
	base, err := document.Load(basePath)
	if err != nil {
		return nil, fmt.Errorf("loading base model: %w", err)
	}
	setupFile, err := filepath.Abs(s.File)
	if err != nil {
		return nil, err
	}
	g, err := sweep.NewGenerator(sweep.Config{OutputDir: genDir, Protected: []string{setupFile, basePath}})
	if err != nil {
		return nil, err
	}
	variants, err := g.Materialize(base, m.Adjustments)
	if err != nil {
		return nil, fmt.Errorf("generating models: %w", err)
	}
	files := make([]string, len(variants))
	for i, v := range variants {
		files[i] = v.ModelPath
	}
	return files, nil
}

// input is one job's documents before they are written.
type input struct {
	model    *document.Document
	protocol *document.Document
}

func (b *Batches) prepareOne(c *Characterization) (*batch.Manifest, error) {
	r := b.r
	simFolder, err := r.Resolve(c.SimFolder, c.RelativeTo)
	if err != nil {
		return nil, fmt.Errorf("sim_folder: %w", err)
	}
	if filepath.Dir(simFolder) == simFolder {
		return nil, fmt.Errorf("refusing to use filesystem root %q as sim_folder", simFolder)
	}
	handler := ""
	if c.OutputHandlerFile != "" {
		if handler, err = r.Resolve(c.OutputHandlerFile, c.RelativeTo); err != nil {
			return nil, fmt.Errorf("output_handler_file: %w", err)
		}
	}

	var inputs []input
	for mi, model := range b.models {
		conds, err := c.conditions(model)
		if err != nil {
			return nil, fmt.Errorf("model %d: %w", mi+1, err)
		}
		for _, cond := range conds {
			inputs = append(inputs, input{model: cond.model, protocol: c.protocol(cond)})
		}
	}

	setupFile, err := filepath.Abs(b.setup.File)
	if err != nil {
		return nil, err
	}
	protected := append([]string{setupFile, b.exe, b.optionsPath, handler}, b.modelFiles...)
	for _, p := range protected {
		if p != "" && pathres.Within(simFolder, p) {
			return nil, fmt.Errorf("refusing to clean sim_folder %s: it holds %s", simFolder, p)
		}
	}
	logrus.Infof("Cleaning characterization folder %s", simFolder)
	if err := os.RemoveAll(simFolder); err != nil {
		return nil, fmt.Errorf("cleaning %s: %w", simFolder, err)
	}
	m := &batch.Manifest{
		File:             filepath.Join(simFolder, sweep.ManifestFileName),
		Executable:       b.exe,
		ConcurrencyLimit: b.setup.ConcurrencyLimit,
	}
	for i, in := range inputs {
		n := strconv.Itoa(i + 1)
		inDir := filepath.Join(simFolder, sweep.InputDirName, n)
		outDir := filepath.Join(simFolder, sweep.OutputDirName, n)
		job := batch.Job{
			Sequence:          i + 1,
			ModelPath:         filepath.Join(inDir, ModelFileName),
			OptionsPath:       filepath.Join(inDir, OptionsFileName),
			ProtocolPath:      filepath.Join(inDir, ProtocolFileName),
			ResultsPath:       filepath.Join(outDir, sweep.DefaultResultsFileName),
			OutputHandlerPath: handler,
		}
		for _, w := range []struct {
			doc  *document.Document
			path string
		}{{in.model, job.ModelPath}, {b.options, job.OptionsPath}, {in.protocol, job.ProtocolPath}} {
			if err := document.Save(w.doc, w.path); err != nil {
				return nil, err
			}
		}
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", outDir, err)
		}
		m.Jobs = append(m.Jobs, job)
	}
	if err := batch.WriteManifest(m, m.File); err != nil {
		return nil, fmt.Errorf("writing manifest: %w", err)
	}
	logrus.Infof("Prepared %d %s simulations in %s", len(m.Jobs), c.Type, simFolder)
	return m, nil
}
