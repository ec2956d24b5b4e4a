package document

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format selects the textual interchange format of a document file.
type Format int

const (
	FormatJSON Format = iota
	FormatYAML
)

// FormatFor picks the format from the file extension; anything that is not
// .yaml or .yml is JSON.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	}
	return FormatJSON
}

// Load reads and decodes the document at path.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &NotFoundError{File: path}
		}
		return nil, fmt.Errorf("reading document: %w", err)
	}
	doc, err := Decode(data, FormatFor(path))
	if err != nil {
		return nil, &ParseError{File: path, Err: err}
	}
	return doc, nil
}

// Decode parses data in the given format.
func Decode(data []byte, format Format) (*Document, error) {
	var raw any
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&raw); err != nil {
			return nil, err
		}
		if _, err := dec.Token(); !errors.Is(err, io.EOF) {
			return nil, errors.New("trailing data after document")
		}
	}
	return FromValue(raw)
}

// Encode renders d in its canonical textual form: JSON indented by four
// spaces with sorted keys, or YAML with sorted keys.
func Encode(d *Document, format Format) ([]byte, error) {
	if format == FormatYAML {
		return yaml.Marshal(d.yamlValue())
	}
	out, err := json.MarshalIndent(d.Value(), "", "    ")
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}

// MarshalJSON implements json.Marshaler.
func (d *Document) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Value())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Document) UnmarshalJSON(data []byte) error {
	parsed, err := Decode(data, FormatJSON)
	if err != nil {
		return err
	}
	d.v = parsed.v
	return nil
}

// Save writes d to path, creating parent directories as needed. The file is
// written to a temporary sibling and renamed into place, so readers never
// observe a partial document and a failed save leaves no file behind.
func Save(d *Document, path string) error {
	data, err := Encode(d, FormatFor(path))
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	return WriteFileAtomic(path, data)
}

// WriteFileAtomic writes data to path via a temporary file and rename.
func WriteFileAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()
	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err = tmp.Chmod(0o644); err != nil {
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("renaming into %s: %w", path, err)
	}
	return nil
}

// DecodeInto converts d into a typed value via its JSON form. With strict
// set, object keys without a matching struct field are rejected.
func (d *Document) DecodeInto(v any, strict bool) error {
	data, err := json.Marshal(d.Value())
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	if strict {
		dec.DisallowUnknownFields()
	}
	return dec.Decode(v)
}

// yamlValue is Value with numbers converted to native ints and floats so
// yaml.v3 emits them unquoted.
func (d *Document) yamlValue() any {
	switch d.Kind() {
	case KindNumber:
		n := d.v.(json.Number)
		if i, err := n.Int64(); err == nil {
			return i
		}
		f, _ := n.Float64()
		return f
	case KindArray:
		items := d.Items()
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = item.yamlValue()
		}
		return out
	case KindObject:
		obj := d.v.(map[string]*Document)
		out := make(map[string]any, len(obj))
		for k, item := range obj {
			out[k] = item.yamlValue()
		}
		return out
	}
	return d.Value()
}
