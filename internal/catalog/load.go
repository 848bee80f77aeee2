package catalog

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// file is the on-disk layout of a catalog YAML file.
type file struct {
	Indicators []Indicator `yaml:"indicators"`
}

// Decode reads a catalog from YAML.
func Decode(r io.Reader) (*Catalog, error) {
	var f file
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if err == io.EOF {
			return nil, ErrEmpty
		}
		return nil, fmt.Errorf("catalog: decode yaml: %w", err)
	}
	return New(f.Indicators)
}

// Load reads a catalog from path, or returns the builtin catalog when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return New(Builtin())
	}
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: open %s: %w", path, err)
	}
	defer fh.Close()
	return Decode(fh)
}

// Encode writes the catalog as YAML in the same layout Decode reads.
func (c *Catalog) Encode(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(file{Indicators: c.List()}); err != nil {
		return err
	}
	return enc.Close()
}
