// Package graph is a small incremental build graph: file nodes, builders that produce them,
// compile and link steps with hook points, and a runner that only re-executes what changed.
package graph

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"go.trai.ch/zerr"
)

// Kind classifies a node by its filename extension
type Kind string

const (
	KindFile   Kind = "file"
	KindSource Kind = "source"
	KindHeader Kind = "header"
	KindObject Kind = "object"
)

var defaultKinds = map[string]Kind{
	"c":   KindSource,
	"cc":  KindSource,
	"cpp": KindSource,
	"cxx": KindSource,
	"h":   KindHeader,
	"hh":  KindHeader,
	"hpp": KindHeader,
	"hxx": KindHeader,
	"o":   KindObject,
	"obj": KindObject,
}

// Node is a file in the build graph. Nodes are interned by path, see Graph.Node.
type Node struct {
	path    string
	kind    Kind
	builder Builder
}

func (n *Node) Path() string     { return n.path }
func (n *Node) Kind() Kind       { return n.kind }
func (n *Node) Builder() Builder { return n.builder }
func (n *Node) String() string   { return n.path }

// Generated reports whether some builder in the graph produces this node
func (n *Node) Generated() bool { return n.builder != nil }

// Options configures a Graph
type Options struct {
	// SourceDir is the root of the source tree. Relative paths are rooted here.
	SourceDir string
	// BuildDir receives objects and generated files.
	BuildDir string
	// CC and CXX are the C and C++ compilers used by compile and link steps.
	CC, CXX string
}

// Graph owns the node cache, the builders and the hook registry of one build configuration
type Graph struct {
	opts     Options
	nodes    map[string]*Node
	kinds    map[string]Kind
	builders []Builder
	objects  map[string]*Compiler

	objectHooks []ObjectHook
	linkHooks   []LinkHook
	sourceHooks []SourceHook
	handlers    map[string]DepsHandler
}

func New(opts Options) *Graph {
	if opts.SourceDir != "" {
		opts.SourceDir = filepath.Clean(opts.SourceDir)
	}
	if opts.BuildDir == "" {
		opts.BuildDir = filepath.Join(opts.SourceDir, "build")
	}
	opts.BuildDir = filepath.Clean(opts.BuildDir)

	kinds := make(map[string]Kind, len(defaultKinds))
	for ext, k := range defaultKinds {
		kinds[ext] = k
	}
	return &Graph{
		opts:     opts,
		nodes:    make(map[string]*Node),
		kinds:    kinds,
		objects:  make(map[string]*Compiler),
		handlers: make(map[string]DepsHandler),
	}
}

func (g *Graph) SourceDir() string { return g.opts.SourceDir }
func (g *Graph) BuildDir() string  { return g.opts.BuildDir }

// RegisterKind maps a (possibly multi-dot) extension such as "ui" or "moc.cc" to a node kind.
// Nodes created afterwards pick it up.
func (g *Graph) RegisterKind(ext string, kind Kind) {
	g.kinds[strings.TrimPrefix(ext, ".")] = kind
}

func (g *Graph) kindOf(path string) Kind {
	parts := strings.Split(filepath.Base(path), ".")
	// longest extension wins: "foo.moc.cc" tries "moc.cc" before "cc"
	for i := 1; i < len(parts); i++ {
		if k, ok := g.kinds[strings.Join(parts[i:], ".")]; ok {
			return k
		}
	}
	return KindFile
}

func (g *Graph) abs(path string) string {
	if !filepath.IsAbs(path) && g.opts.SourceDir != "" {
		path = filepath.Join(g.opts.SourceDir, path)
	}
	return filepath.Clean(path)
}

// Abs roots a relative path in the source directory
func (g *Graph) Abs(path string) string { return g.abs(path) }

func (g *Graph) absAll(paths []string) []string {
	res := make([]string, len(paths))
	for i, p := range paths {
		res[i] = g.abs(p)
	}
	return res
}

// Node returns the node for path, creating it on first use. Repeated calls for the same path
// return the same instance.
func (g *Graph) Node(path string) *Node {
	path = g.abs(path)
	if n, ok := g.nodes[path]; ok {
		return n
	}
	n := &Node{path: path, kind: g.kindOf(path)}
	g.nodes[path] = n
	return n
}

// Lookup returns the node for path if it was already created
func (g *Graph) Lookup(path string) (*Node, bool) {
	n, ok := g.nodes[g.abs(path)]
	return n, ok
}

// SetBuilder records b as the producer of n
func (g *Graph) SetBuilder(n *Node, b Builder) error {
	if n.builder != nil {
		return zerr.With(zerr.Wrap(ErrDuplicateBuilder, n.path), "builder", n.builder.Name())
	}
	n.builder = b
	return nil
}

// Add registers a builder and claims its outputs
func (g *Graph) Add(b Builder) error {
	for _, out := range b.Outputs() {
		if err := g.SetBuilder(out, b); err != nil {
			return err
		}
	}
	g.builders = append(g.builders, b)
	return nil
}

// Builders returns every registered builder in creation order
func (g *Graph) Builders() []Builder {
	return slices.Clone(g.builders)
}

// BuildPath maps a path from the source tree into the build tree. Paths already inside the
// build tree are returned unchanged; paths outside the source tree keep only their basename.
func (g *Graph) BuildPath(path string) string {
	path = g.abs(path)
	if isUnder(path, g.opts.BuildDir) {
		return path
	}
	rel, err := filepath.Rel(g.opts.SourceDir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = filepath.Base(path)
	}
	return filepath.Join(g.opts.BuildDir, rel)
}

// Extension returns everything after the last dot of the basename, without the dot
func Extension(path string) string {
	return strings.TrimPrefix(filepath.Ext(path), ".")
}

// WithExtension replaces the last extension of path: WithExtension("foo.hh", "moc.cc") is "foo.moc.cc"
func WithExtension(path, ext string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + "." + ext
}

// isUnder reports whether path equals dir or lies below it
func isUnder(path, dir string) bool {
	if dir == "" {
		return false
	}
	rel, err := filepath.Rel(dir, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// IsUnder reports whether path lies inside any of dirs
func IsUnder(path string, dirs []string) bool {
	for _, d := range dirs {
		if isUnder(filepath.Clean(path), filepath.Clean(d)) {
			return true
		}
	}
	return false
}

func (g *Graph) String() string {
	return fmt.Sprintf("Graph(%d nodes, %d builders)", len(g.nodes), len(g.builders))
}
