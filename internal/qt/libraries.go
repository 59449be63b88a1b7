package qt

import (
	"debug/elf"
	"fmt"
	"maps"
	"path/filepath"
	"slices"
	"strings"

	"github.com/qobs-build/qtkit/internal/graph"
	"go.trai.ch/zerr"
)

// defaultLibraries maps logical library names to Qt module names
var defaultLibraries = map[string]string{
	"core":         "QtCore",
	"support_3":    "Qt3Support",
	"declarative":  "QtDeclarative",
	"gui":          "QtGui",
	"multimedia":   "QtMultimedia",
	"network":      "QtNetwork",
	"webkit":       "QtWebKit",
	"xml":          "QtXml",
	"xml_patterns": "QtXmlPatterns",
}

// Binding is a Qt library resolved for one link mode
type Binding struct {
	Name    string `yaml:"name"`
	Library string `yaml:"library"`
	Static  bool   `yaml:"static"`
	Path    string `yaml:"path"`
	// Soname is the DT_SONAME of a shared ELF library, if any
	Soname string `yaml:"soname,omitempty"`

	header graph.CompileConfig
	link   graph.CompileConfig
}

// Config returns the configuration fragment of the library. Without link, only the include
// path and the linkage define are set.
func (b *Binding) Config(link bool) graph.CompileConfig {
	if link {
		return b.link.Clone()
	}
	return b.header.Clone()
}

type bindingKey struct {
	name   string
	static bool
}

// Libraries resolves and caches library bindings for one installation
type Libraries struct {
	inst  *Installation
	table map[string]string
	cache map[bindingKey]*Binding
}

func NewLibraries(inst *Installation) *Libraries {
	return &Libraries{
		inst:  inst,
		table: maps.Clone(defaultLibraries),
		cache: make(map[bindingKey]*Binding),
	}
}

// Register adds or replaces a logical library
func (l *Libraries) Register(name, library string) {
	l.table[name] = library
}

// Names lists the known logical names, sorted
func (l *Libraries) Names() []string {
	return slices.Sorted(maps.Keys(l.table))
}

// SearchPath is where library files are looked for, Qt specific directory first
func (l *Libraries) SearchPath() []string {
	return []string{
		filepath.Join(l.inst.Prefix, "lib", "qt4"),
		filepath.Join(l.inst.Prefix, "lib"),
	}
}

// Binding resolves the library called name. Results are cached: later calls with the same
// arguments return the same *Binding.
func (l *Libraries) Binding(name string, static bool) (*Binding, error) {
	key := bindingKey{name, static}
	if b, ok := l.cache[key]; ok {
		return b, nil
	}

	library, ok := l.table[name]
	if !ok {
		return nil, zerr.With(zerr.Wrap(ErrUnknownLibrary, name), "known", l.Names())
	}

	candidates := Candidates(l.inst.target, l.inst.Version, static, library)
	dirs := l.SearchPath()
	m, err := SearchOne(candidates, dirs)
	if err != nil {
		err := zerr.Wrap(ErrLibraryNotFound, fmt.Sprintf("%s (%s): tried %s in %s",
			name, library, strings.Join(candidates, ", "), strings.Join(dirs, ", ")))
		return nil, zerr.With(err, "library", name)
	}

	b := &Binding{Name: name, Library: library, Static: static, Path: m.Path()}
	if !static {
		b.Soname = soname(b.Path)
	}

	mode := "DYN"
	if static {
		mode = "STATIC"
	}
	b.header.Define(fmt.Sprintf("Qt_%s_%s_LINK", strings.ToUpper(name), mode), "1")
	b.header.AddSystemIncludePath(filepath.Join(l.inst.IncludeDir, library))
	b.link = b.header.Clone()
	b.link.AddLibrary(b.Path)

	l.cache[key] = b
	return b, nil
}

// Config is the configuration fragment for name. A nil static picks the mode the
// installation prefers.
func (l *Libraries) Config(name string, static *bool, link bool) (graph.CompileConfig, error) {
	s := !l.inst.PreferShared
	if static != nil {
		s = *static
	}
	b, err := l.Binding(name, s)
	if err != nil {
		return graph.CompileConfig{}, err
	}
	return b.Config(link), nil
}

// soname reads DT_SONAME; files that are not ELF have none
func soname(path string) string {
	f, err := elf.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	names, err := f.DynString(elf.DT_SONAME)
	if err != nil || len(names) == 0 {
		return ""
	}
	return names[0]
}
