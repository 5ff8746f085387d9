package persist

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/cwbudde/algo-automation/dsp/core"
)

var (
	// ErrFormat reports an attribute whose value cannot be parsed.
	ErrFormat = errors.New("persist: malformed attribute")
	// ErrUnknownFormat reports an unsupported document file extension.
	ErrUnknownFormat = errors.New("persist: unknown document format")
)

// Attr is one named attribute value.
type Attr struct {
	Name  string
	Value string
}

// Element is a named, ordered list of attributes.
type Element struct {
	Name  string
	Attrs []Attr
}

// NewElement returns an empty element.
func NewElement(name string) Element {
	return Element{Name: name}
}

// Set replaces the value of an existing attribute or appends a new one.
func (e *Element) Set(name, value string) {
	for i := range e.Attrs {
		if e.Attrs[i].Name == name {
			e.Attrs[i].Value = value
			return
		}
	}
	e.Attrs = append(e.Attrs, Attr{Name: name, Value: value})
}

// SetFloat stores v with the shortest representation that parses back to
// the identical float64.
func (e *Element) SetFloat(name string, v float64) {
	e.Set(name, strconv.FormatFloat(v, 'g', -1, 64))
}

// SetInt stores v in base 10.
func (e *Element) SetInt(name string, v int64) {
	e.Set(name, strconv.FormatInt(v, 10))
}

// Get returns the raw value of an attribute.
func (e Element) Get(name string) (string, bool) {
	for _, a := range e.Attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// Float parses attribute name into dst. Absent or empty attributes leave
// dst unchanged and report false. A value that is not a finite number
// returns an error wrapping ErrFormat.
func (e Element) Float(name string, dst *float64) (bool, error) {
	raw, ok := e.lookup(name)
	if !ok {
		return false, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || !core.IsFinite(v) {
		return false, fmt.Errorf("%w: %s.%s=%q", ErrFormat, e.Name, name, raw)
	}
	*dst = v
	return true, nil
}

// Int64 parses attribute name into dst with the same rules as Float.
func (e Element) Int64(name string, dst *int64) (bool, error) {
	raw, ok := e.lookup(name)
	if !ok {
		return false, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return false, fmt.Errorf("%w: %s.%s=%q", ErrFormat, e.Name, name, raw)
	}
	*dst = v
	return true, nil
}

func (e Element) lookup(name string) (string, bool) {
	raw, ok := e.Get(name)
	if !ok {
		return "", false
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	return raw, true
}
