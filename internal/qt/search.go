package qt

import (
	"os"
	"path/filepath"
	"strings"

	"go.trai.ch/zerr"
)

// Match is a file found by the search engine
type Match struct {
	Dir  string
	Name string
}

func (m Match) Path() string { return filepath.Join(m.Dir, m.Name) }

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// SearchAll returns every existing dir/name pair. Names are tried in order, each against
// every directory in order.
func SearchAll(names, dirs []string) []Match {
	var res []Match
	for _, name := range names {
		for _, dir := range dirs {
			if exists(filepath.Join(dir, name)) {
				res = append(res, Match{Dir: dir, Name: name})
			}
		}
	}
	return res
}

// SearchOne returns the first match in SearchAll order
func SearchOne(names, dirs []string) (Match, error) {
	for _, name := range names {
		for _, dir := range dirs {
			if exists(filepath.Join(dir, name)) {
				return Match{Dir: dir, Name: name}, nil
			}
		}
	}
	err := zerr.Wrap(ErrNotFound, "tried "+strings.Join(names, ", ")+" in "+strings.Join(dirs, ", "))
	err = zerr.With(err, "names", names)
	return Match{}, zerr.With(err, "dirs", dirs)
}
