package persist

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Document is a saved session: timing plus per-track effect settings and
// automation events.
type Document struct {
	SampleRate float64 `yaml:"sampleRate"`
	Tempo      float64 `yaml:"tempo"`
	Tracks     []Track `yaml:"tracks"`
}

// Track holds one track's settings. GainDB is 0 for unity gain.
type Track struct {
	Name       string    `yaml:"name"`
	Automation bool      `yaml:"automation"`
	GainDB     float64   `yaml:"gainDB,omitempty"`
	Effects    []Element `yaml:"effects,omitempty"`
	Events     []Element `yaml:"events,omitempty"`
}

// Load reads a document, choosing the codec from the file extension
// (.xml, .yaml or .yml).
func Load(path string) (*Document, error) {
	codec, err := codecFor(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("persist: open %s: %w", path, err)
	}
	defer f.Close()

	doc, err := codec.decode(f)
	if err != nil {
		return nil, fmt.Errorf("persist: decode %s: %w", path, err)
	}
	return doc, nil
}

// Save writes doc to path, choosing the codec from the file extension.
func Save(path string, doc *Document) (err error) {
	codec, err := codecFor(path)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("persist: create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("persist: close %s: %w", path, cerr)
		}
	}()

	if err := codec.encode(f, doc); err != nil {
		return fmt.Errorf("persist: encode %s: %w", path, err)
	}
	return nil
}

type codec struct {
	encode func(io.Writer, *Document) error
	decode func(io.Reader) (*Document, error)
}

func codecFor(path string) (codec, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xml":
		return codec{encode: EncodeXML, decode: DecodeXML}, nil
	case ".yaml", ".yml":
		return codec{encode: EncodeYAML, decode: DecodeYAML}, nil
	default:
		return codec{}, fmt.Errorf("%w: %q", ErrUnknownFormat, filepath.Ext(path))
	}
}
