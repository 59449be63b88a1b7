// Package index keeps a per-user registry of named Qt installation prefixes, so that projects
// can refer to an installation as @name instead of a machine specific path.
package index

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"go.trai.ch/zerr"
)

const IndexFilename = "qtkit_index.json"

var ErrUnknownPrefix = errors.New("no such prefix in index")

type Index struct {
	// on windows: %LocalAppData%/qtkit/qtkit_index.json
	// on linux: ~/.cache/qtkit/qtkit_index.json
	path string
	// name -> installation prefix
	Prefixes map[string]string
}

// DefaultPath is where the user's index lives
func DefaultPath() (string, error) {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cacheDir, "qtkit", IndexFilename), nil
}

func ParseIndex(rdr io.Reader, path string) (*Index, error) {
	var prefixes map[string]string
	if err := json.NewDecoder(bufio.NewReader(rdr)).Decode(&prefixes); err != nil {
		return nil, zerr.With(zerr.Wrap(err, "parsing index"), "path", path)
	}
	return &Index{Prefixes: prefixes, path: path}, nil
}

// Load reads the index at path. A missing file is an empty index.
func Load(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Index{path: path, Prefixes: make(map[string]string)}, nil
		}
		return nil, err
	}
	defer f.Close()
	return ParseIndex(f, path)
}

// LoadDefault loads the index at DefaultPath
func LoadDefault() (*Index, error) {
	path, err := DefaultPath()
	if err != nil {
		return nil, err
	}
	return Load(path)
}

func (idx *Index) Path() string { return idx.path }

func (idx *Index) Save() error {
	if err := os.MkdirAll(filepath.Dir(idx.path), 0755); err != nil {
		return err
	}
	f, err := os.Create(idx.path)
	if err != nil {
		return err
	}
	defer f.Close()

	bufw := bufio.NewWriter(f)
	enc := json.NewEncoder(bufw)
	enc.SetIndent("", "  ")
	if err := enc.Encode(idx.Prefixes); err != nil {
		return err
	}
	return bufw.Flush()
}

// Set registers prefix under name. Relative prefixes are made absolute.
func (idx *Index) Set(name, prefix string) error {
	abs, err := filepath.Abs(prefix)
	if err != nil {
		return err
	}
	if idx.Prefixes == nil {
		idx.Prefixes = make(map[string]string)
	}
	idx.Prefixes[name] = abs
	return nil
}

func (idx *Index) Has(name string) bool {
	_, exists := idx.Prefixes[name]
	return exists
}

func (idx *Index) Remove(name string) bool {
	if _, ok := idx.Prefixes[name]; ok {
		delete(idx.Prefixes, name)
		return true
	}
	return false
}

func (idx *Index) Lookup(name string) (string, error) {
	prefix, ok := idx.Prefixes[name]
	if !ok {
		return "", zerr.With(zerr.Wrap(ErrUnknownPrefix, name), "index", idx.path)
	}
	return prefix, nil
}

// Names returns the registered names in order
func (idx *Index) Names() []string {
	return slices.Sorted(maps.Keys(idx.Prefixes))
}

// Search returns the names containing term, ignoring case
func (idx *Index) Search(term string) []string {
	term = strings.ToLower(term)
	var res []string
	for _, name := range idx.Names() {
		if strings.Contains(strings.ToLower(name), term) {
			res = append(res, name)
		}
	}
	return res
}

// IncludeDirs returns <prefix>/include for every registered prefix, in name order
func (idx *Index) IncludeDirs() []string {
	var res []string
	for _, name := range idx.Names() {
		res = append(res, filepath.Join(idx.Prefixes[name], "include"))
	}
	return res
}
