package document

import "fmt"

// ParseError reports a document that could not be decoded.
type ParseError struct {
	File string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing %s: %v", e.File, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// NotFoundError reports a document path that does not exist on disk.
type NotFoundError struct {
	File string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("document %s not found", e.File)
}

// PathError reports a navigation failure. At is the index of the step in
// Path where navigation stopped.
type PathError struct {
	Path   Path
	At     int
	Reason string
}

func (e *PathError) Error() string {
	return fmt.Sprintf("path %s: %s at %s", e.Path, e.Reason, e.Path[:e.At+1])
}
