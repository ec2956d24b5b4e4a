package batch

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/myovent/simbatch/batch/document"
	"github.com/myovent/simbatch/batch/pathres"
)

// ManifestError reports a manifest that is malformed or incomplete. Field
// names the offending key, e.g. "jobs[2].results_path". Err, when set, is the
// underlying decode error.
type ManifestError struct {
	File   string
	Field  string
	Reason string
	Err    error
}

func (e *ManifestError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("manifest %s: %s", e.File, e.Reason)
	}
	return fmt.Sprintf("manifest %s: %s: %s", e.File, e.Field, e.Reason)
}

func (e *ManifestError) Unwrap() error { return e.Err }

// Manifest is a loaded, validated batch: the executable, the concurrency cap
// and the ordered job list. All paths are absolute.
type Manifest struct {
	File             string // source file, empty when built in memory
	Executable       string
	ConcurrencyLimit int // 0 means not configured
	Jobs             []Job
	PostProcessing   *document.Document // opaque; carried through unchanged
}

// manifestFile is the on-disk form of a Manifest.
type manifestFile struct {
	ExecutablePath   string             `json:"executable_path"`
	RelativeTo       *string            `json:"relative_to,omitempty"`
	ConcurrencyLimit *int               `json:"concurrency_limit,omitempty"`
	Jobs             []jobEntry         `json:"jobs"`
	PostProcessing   *document.Document `json:"post_processing,omitempty"`
}

type jobEntry struct {
	ModelPath         string  `json:"model_path"`
	OptionsPath       string  `json:"options_path"`
	ProtocolPath      string  `json:"protocol_path"`
	ResultsPath       string  `json:"results_path"`
	OutputHandlerPath string  `json:"output_handler_path,omitempty"`
	RelativeTo        *string `json:"relative_to,omitempty"`
}

var requiredJobFields = []string{"model_path", "options_path", "protocol_path", "results_path"}

// LoadManifest reads, validates and resolves the manifest at path. Nothing is
// created on disk; an invalid manifest is rejected before any job can run.
func LoadManifest(path string) (*Manifest, error) {
	doc, err := document.Load(path)
	if err != nil {
		var pe *document.ParseError
		if errors.As(err, &pe) {
			return nil, &ManifestError{File: path, Reason: pe.Err.Error(), Err: pe}
		}
		return nil, err
	}
	if err := checkShape(doc, path); err != nil {
		return nil, err
	}
	var raw manifestFile
	if err := doc.DecodeInto(&raw, true); err != nil {
		return nil, &ManifestError{File: path, Reason: err.Error(), Err: err}
	}
	return raw.resolve(path)
}

// checkShape reports the first missing or mistyped required field.
func checkShape(doc *document.Document, file string) error {
	if doc.Kind() != document.KindObject {
		return &ManifestError{File: file, Reason: "top level must be an object"}
	}
	exe, ok := doc.Field("executable_path")
	if !ok {
		return &ManifestError{File: file, Field: "executable_path", Reason: "missing"}
	}
	if s, isStr := exe.Str(); !isStr || s == "" {
		return &ManifestError{File: file, Field: "executable_path", Reason: "must be a non-empty string"}
	}
	if limit, ok := doc.Field("concurrency_limit"); ok && !limit.IsNull() {
		n, isNum := limit.Int()
		if f, _ := limit.Float(); !isNum || float64(n) != f || n < 1 {
			return &ManifestError{File: file, Field: "concurrency_limit", Reason: "must be a positive integer"}
		}
	}
	jobs, ok := doc.Field("jobs")
	if !ok {
		return &ManifestError{File: file, Field: "jobs", Reason: "missing"}
	}
	if jobs.Kind() != document.KindArray || jobs.Len() == 0 {
		return &ManifestError{File: file, Field: "jobs", Reason: "must be a non-empty list"}
	}
	for i, j := range jobs.Items() {
		if j.Kind() != document.KindObject {
			return &ManifestError{File: file, Field: fmt.Sprintf("jobs[%d]", i), Reason: "must be an object"}
		}
		for _, name := range requiredJobFields {
			v, ok := j.Field(name)
			if !ok {
				return &ManifestError{File: file, Field: fmt.Sprintf("jobs[%d].%s", i, name), Reason: "missing"}
			}
			if s, isStr := v.Str(); !isStr || s == "" {
				return &ManifestError{File: file, Field: fmt.Sprintf("jobs[%d].%s", i, name), Reason: "must be a non-empty string"}
			}
		}
	}
	return nil
}

func (raw *manifestFile) resolve(file string) (*Manifest, error) {
	r := pathres.New(file)
	exe, err := r.Resolve(raw.ExecutablePath, raw.RelativeTo)
	if err != nil {
		return nil, &ManifestError{File: file, Field: "executable_path", Reason: err.Error()}
	}
	m := &Manifest{File: file, Executable: exe, PostProcessing: raw.PostProcessing}
	if raw.ConcurrencyLimit != nil {
		m.ConcurrencyLimit = *raw.ConcurrencyLimit
	}
	for i, e := range raw.Jobs {
		job := Job{Sequence: i + 1}
		targets := []struct {
			name string
			raw  string
			dst  *string
		}{
			{"model_path", e.ModelPath, &job.ModelPath},
			{"options_path", e.OptionsPath, &job.OptionsPath},
			{"protocol_path", e.ProtocolPath, &job.ProtocolPath},
			{"results_path", e.ResultsPath, &job.ResultsPath},
			{"output_handler_path", e.OutputHandlerPath, &job.OutputHandlerPath},
		}
		for _, tgt := range targets {
			if tgt.raw == "" {
				continue
			}
			resolved, err := r.Resolve(tgt.raw, e.RelativeTo)
			if err != nil {
				return nil, &ManifestError{File: file, Field: fmt.Sprintf("jobs[%d].%s", i, tgt.name), Reason: err.Error()}
			}
			*tgt.dst = resolved
		}
		m.Jobs = append(m.Jobs, job)
	}
	return m, nil
}

// Validate checks an in-memory manifest before dispatch.
func (m *Manifest) Validate() error {
	if m.Executable == "" {
		return &ManifestError{File: m.File, Field: "executable_path", Reason: "missing"}
	}
	if m.ConcurrencyLimit < 0 {
		return &ManifestError{File: m.File, Field: "concurrency_limit", Reason: "must be positive"}
	}
	if len(m.Jobs) == 0 {
		return &ManifestError{File: m.File, Field: "jobs", Reason: "must be a non-empty list"}
	}
	for i, j := range m.Jobs {
		if j.Sequence != i+1 {
			return &ManifestError{File: m.File, Field: fmt.Sprintf("jobs[%d]", i), Reason: fmt.Sprintf("sequence %d out of order", j.Sequence)}
		}
		if err := j.Validate(); err != nil {
			return &ManifestError{File: m.File, Field: fmt.Sprintf("jobs[%d]", i), Reason: err.Error()}
		}
	}
	return nil
}

// WriteManifest persists m to path with absolute paths and no relative_to
// fields, so the written file loads back to an equal Manifest from anywhere.
func WriteManifest(m *Manifest, path string) error {
	if err := m.Validate(); err != nil {
		return err
	}
	raw := manifestFile{ExecutablePath: m.Executable, PostProcessing: m.PostProcessing}
	if m.ConcurrencyLimit > 0 {
		limit := m.ConcurrencyLimit
		raw.ConcurrencyLimit = &limit
	}
	for _, j := range m.Jobs {
		raw.Jobs = append(raw.Jobs, jobEntry{
			ModelPath:         j.ModelPath,
			OptionsPath:       j.OptionsPath,
			ProtocolPath:      j.ProtocolPath,
			ResultsPath:       j.ResultsPath,
			OutputHandlerPath: j.OutputHandlerPath,
		})
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	doc, err := document.Decode(data, document.FormatJSON)
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	return document.Save(doc, path)
}
