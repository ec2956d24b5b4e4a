package document

import (
	"fmt"
	"strconv"
	"strings"
)

// Step is one hop of a Path: either an object key or an array index.
type Step struct {
	Key     string
	Index   int
	IsIndex bool
}

// Key returns an object-key step.
func Key(k string) Step { return Step{Key: k} }

// Index returns a zero-based array-index step.
func Index(i int) Step { return Step{Index: i, IsIndex: true} }

func (s Step) String() string {
	if s.IsIndex {
		return "[" + strconv.Itoa(s.Index) + "]"
	}
	return s.Key
}

// Path addresses a node inside a Document.
type Path []Step

// String renders p in the form accepted by ParsePath.
func (p Path) String() string {
	var b strings.Builder
	for i, s := range p {
		if !s.IsIndex && i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(s.String())
	}
	if b.Len() == 0 {
		return "<root>"
	}
	return b.String()
}

// Append returns a new path with steps appended; p is left untouched.
func (p Path) Append(steps ...Step) Path {
	out := make(Path, 0, len(p)+len(steps))
	out = append(out, p...)
	return append(out, steps...)
}

// ParsePath parses expressions such as "a.b[2].c" or "[0].x".
// Keys may not contain '.', '[' or ']'.
func ParsePath(expr string) (Path, error) {
	var p Path
	i := 0
	for i < len(expr) {
		switch expr[i] {
		case '.':
			if i == 0 || i == len(expr)-1 || expr[i+1] == '.' || expr[i+1] == '[' {
				return nil, fmt.Errorf("invalid path %q: misplaced '.' at %d", expr, i)
			}
			i++
		case '[':
			end := strings.IndexByte(expr[i:], ']')
			if end < 0 {
				return nil, fmt.Errorf("invalid path %q: unterminated '['", expr)
			}
			n, err := strconv.Atoi(expr[i+1 : i+end])
			if err != nil || n < 0 {
				return nil, fmt.Errorf("invalid path %q: bad index %q", expr, expr[i+1:i+end])
			}
			p = append(p, Index(n))
			i += end + 1
			if i < len(expr) && expr[i] != '.' && expr[i] != '[' {
				return nil, fmt.Errorf("invalid path %q: expected '.' or '[' at %d", expr, i)
			}
		case ']':
			return nil, fmt.Errorf("invalid path %q: unexpected ']' at %d", expr, i)
		default:
			end := strings.IndexAny(expr[i:], ".[]")
			if end < 0 {
				end = len(expr) - i
			}
			p = append(p, Key(expr[i:i+end]))
			i += end
		}
	}
	return p, nil
}

// MustParsePath is ParsePath for compile-time constant expressions.
func MustParsePath(expr string) Path {
	p, err := ParsePath(expr)
	if err != nil {
		panic(err)
	}
	return p
}

// Get returns the node at p.
func (d *Document) Get(p Path) (*Document, error) {
	cur := d
	for i, s := range p {
		next, err := step(cur, p, i, s)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	if cur == nil {
		return Null(), nil
	}
	return cur, nil
}

// Set stores a copy of v at p. Every intermediate node must exist; the final
// step may add a new key to an existing object but may not grow an array.
// An empty path replaces d itself.
func (d *Document) Set(p Path, v *Document) error {
	if len(p) == 0 {
		d.v = v.Clone().v
		return nil
	}
	parent, err := d.Get(p[:len(p)-1])
	if err != nil {
		return err
	}
	last := p[len(p)-1]
	switch container := parent.v.(type) {
	case map[string]*Document:
		if last.IsIndex {
			return &PathError{Path: p, At: len(p) - 1, Reason: "index into object"}
		}
		container[last.Key] = v.Clone()
		return nil
	case []*Document:
		if !last.IsIndex {
			return &PathError{Path: p, At: len(p) - 1, Reason: "key into array"}
		}
		if last.Index >= len(container) {
			return &PathError{Path: p, At: len(p) - 1, Reason: fmt.Sprintf("index out of range (len %d)", len(container))}
		}
		container[last.Index] = v.Clone()
		return nil
	}
	return &PathError{Path: p, At: len(p) - 1, Reason: "parent is " + parent.Kind().String()}
}

func step(cur *Document, p Path, i int, s Step) (*Document, error) {
	switch container := cur.valueOrNil().(type) {
	case map[string]*Document:
		if s.IsIndex {
			return nil, &PathError{Path: p, At: i, Reason: "index into object"}
		}
		next, ok := container[s.Key]
		if !ok {
			return nil, &PathError{Path: p, At: i, Reason: "missing key"}
		}
		return next, nil
	case []*Document:
		if !s.IsIndex {
			return nil, &PathError{Path: p, At: i, Reason: "key into array"}
		}
		if s.Index >= len(container) {
			return nil, &PathError{Path: p, At: i, Reason: fmt.Sprintf("index out of range (len %d)", len(container))}
		}
		return container[s.Index], nil
	}
	return nil, &PathError{Path: p, At: i, Reason: "cannot descend into " + cur.Kind().String()}
}

func (d *Document) valueOrNil() any {
	if d == nil {
		return nil
	}
	return d.v
}
