// Package pathres resolves file references read from configuration documents.
//
// Every path field in a manifest, sweep or setup document may be accompanied
// by a "relative_to" field selecting how it is interpreted:
//   - absent: the path is used as given (made absolute against the working directory);
//   - "this_file": the path is relative to the directory of the declaring document;
//   - any other string: that string is the base directory.
package pathres

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ThisFile is the relative_to value selecting the declaring document's directory.
const ThisFile = "this_file"

// Policy is one of the three resolution modes.
type Policy int

const (
	Absolute Policy = iota
	RelativeToDocument
	RelativeToExplicitBase
)

func (p Policy) String() string {
	switch p {
	case Absolute:
		return "absolute"
	case RelativeToDocument:
		return "relative-to-document"
	case RelativeToExplicitBase:
		return "relative-to-base"
	}
	return fmt.Sprintf("policy(%d)", int(p))
}

// PolicyFor maps a relative_to field to a policy. A nil pointer means the
// field was absent.
func PolicyFor(relativeTo *string) Policy {
	switch {
	case relativeTo == nil:
		return Absolute
	case *relativeTo == ThisFile:
		return RelativeToDocument
	default:
		return RelativeToExplicitBase
	}
}

// Resolve returns the cleaned absolute form of raw under policy. docPath is
// the declaring document's path; base is the explicit base directory.
func Resolve(raw string, policy Policy, docPath, base string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("empty path")
	}
	var joined string
	switch policy {
	case Absolute:
		joined = raw
	case RelativeToDocument:
		if docPath == "" {
			return "", fmt.Errorf("resolving %q relative to its document: document path unknown", raw)
		}
		joined = filepath.Join(filepath.Dir(docPath), raw)
	case RelativeToExplicitBase:
		joined = filepath.Join(base, raw)
	default:
		return "", fmt.Errorf("unknown policy %v", policy)
	}
	abs, err := filepath.Abs(joined)
	if err != nil {
		return "", fmt.Errorf("resolving %q: %w", raw, err)
	}
	return abs, nil
}

// Resolver applies the relative_to rule for one declaring document.
type Resolver struct {
	DocPath string
}

// New returns a Resolver for the document at docPath.
func New(docPath string) Resolver { return Resolver{DocPath: docPath} }

// Resolve resolves raw according to relativeTo.
func (r Resolver) Resolve(raw string, relativeTo *string) (string, error) {
	base := ""
	if relativeTo != nil {
		base = *relativeTo
	}
	return Resolve(raw, PolicyFor(relativeTo), r.DocPath, base)
}

// Base returns the directory that relative paths under relativeTo are joined
// to. It is the working directory for the absolute policy.
func (r Resolver) Base(relativeTo *string) (string, error) {
	return r.Resolve(".", relativeTo)
}

// Within reports whether path is dir itself or lies beneath it. Both must be
// absolute.
func Within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
