package workflow

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Decode reads one or more YAML documents, each a single definition.
func Decode(r io.Reader) ([]Definition, error) {
	dec := yaml.NewDecoder(r)
	var defs []Definition
	for {
		var def Definition
		err := dec.Decode(&def)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode workflow %d: %w", len(defs)+1, err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// LoadFile reads definitions from a YAML file.
func LoadFile(path string) ([]Definition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open workflow file: %w", err)
	}
	defer f.Close()

	defs, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return defs, nil
}

// LoadPath reads a YAML file, or every .yaml/.yml file of a directory in
// lexical order.
func LoadPath(path string) ([]Definition, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("workflow path: %w", err)
	}
	if !info.IsDir() {
		return LoadFile(path)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if !e.IsDir() && (ext == ".yaml" || ext == ".yml") {
			files = append(files, filepath.Join(path, e.Name()))
		}
	}
	sort.Strings(files)

	var defs []Definition
	for _, f := range files {
		d, err := LoadFile(f)
		if err != nil {
			return nil, err
		}
		defs = append(defs, d...)
	}
	return defs, nil
}
