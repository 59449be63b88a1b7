package qt

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/qobs-build/qtkit/internal/graph"
	"github.com/qobs-build/qtkit/internal/msg"
	"go.trai.ch/zerr"
)

// DepsHandler tags the dynamic sources added by the engine
const DepsHandler = "qt.moc"

const (
	KindForm     graph.Kind = "form"
	KindResource graph.Kind = "resource"
)

var headerExtensions = []string{"hh", "h", "hpp", "hxx"}

// Engine wires moc, uic and rcc into a graph. One engine serves one graph.
type Engine struct {
	inst     *Installation
	detector *Detector
	graph    *graph.Graph
	deps     map[*graph.Node][]*graph.Node // companion objects found while compiling each object
	linked   map[*graph.Node]bool          // objects whose deps were handed to a link step
}

func NewEngine(inst *Installation, classifier Classifier) *Engine {
	return &Engine{
		inst:     inst,
		detector: NewDetector(inst, classifier),
		deps:     make(map[*graph.Node][]*graph.Node),
		linked:   make(map[*graph.Node]bool),
	}
}

func (e *Engine) Installation() *Installation { return e.inst }
func (e *Engine) Detector() *Detector         { return e.detector }

// Dependencies returns the companion objects recorded for obj
func (e *Engine) Dependencies(obj *graph.Node) []*graph.Node {
	return slices.Clone(e.deps[obj])
}

// Plug registers the Qt node kinds, the three hooks and the deps handler on g. Object hooks
// run before link hooks for every link step, and a link step freezes the deps of its
// objects.
func (e *Engine) Plug(g *graph.Graph) {
	e.graph = g
	g.RegisterKind("ui", KindForm)
	g.RegisterKind("qrc", KindResource)
	g.RegisterKind("moc.cc", graph.KindSource)

	// when an object is compiled, search Q_OBJECT in its sources and local headers
	g.HookObjectDeps(e.objectDeps)
	// when a binary is linked, add the moc objects of its objects
	g.HookBinDeps(e.binDeps)
	// forms and resources
	g.HookBinSrc(e.binSrc)
	g.RegisterDepsHandler(DepsHandler, e.restore)
}

func (e *Engine) objectDeps(c *graph.Compiler) error {
	obj := c.Object()
	if e.linked[obj] {
		return zerr.With(zerr.Wrap(ErrPhaseOrder, obj.Path()), "object", obj.Path())
	}
	delete(e.deps, obj)

	sources := c.Sources()
	for _, h := range c.HeaderDependencies() {
		if h.Local {
			sources = append(sources, h.Node)
		}
	}
	for _, src := range sources {
		comp, err := e.detector.NeedsGeneration(c, src)
		if err != nil {
			return err
		}
		if comp == nil || slices.Contains(e.deps[obj], comp.Object()) {
			continue
		}
		e.deps[obj] = append(e.deps[obj], comp.Object())
		c.AddDynamicSource(DepsHandler, comp.Object(), false)
	}
	return nil
}

func (e *Engine) binDeps(l *graph.Linker) error {
	objects := l.Objects()
	for _, d := range l.DynamicSources() {
		if !slices.Contains(objects, d.Node) {
			objects = append(objects, d.Node)
		}
	}

	for _, obj := range objects {
		e.linked[obj] = true
		for _, dep := range e.deps[obj] {
			if slices.Contains(l.Objects(), dep) {
				continue
			}
			l.AddDynamicSource(DepsHandler, dep, true)
		}
	}
	return nil
}

func (e *Engine) binSrc(n *graph.Node) (*graph.Node, error) {
	g := e.graph
	switch n.Kind() {
	case KindForm:
		out := g.Node(g.BuildPath(graph.WithExtension(n.Path(), graph.Extension(n.Path())+".hh")))
		if out.Builder() == nil {
			if err := g.Add(NewUic(g, e.inst, n, out)); err != nil {
				return nil, err
			}
		}
		return out, nil
	case KindResource:
		out := g.Node(g.BuildPath(graph.WithExtension(n.Path(), graph.Extension(n.Path())+".cc")))
		if out.Builder() == nil {
			if err := g.Add(NewRcc(g, e.inst, n, out)); err != nil {
				return nil, err
			}
		}
		return out, nil
	}
	return nil, nil
}

// headerOf finds the header a recorded companion object was generated from. The object
// lives at <build>/dir/foo.moc.o; the header is looked for at dir/foo.<ext> in the source
// tree, then in the build tree. It returns nil when no such header exists anymore.
func (e *Engine) headerOf(g *graph.Graph, obj string) *graph.Node {
	obj = g.Abs(obj)
	stem := strings.TrimSuffix(obj, ".moc.o")
	if stem == obj {
		stem = strings.TrimSuffix(obj, filepath.Ext(obj))
	}

	var dirs []string
	if rel, err := filepath.Rel(g.BuildDir(), stem); err == nil && !strings.HasPrefix(rel, "..") {
		dirs = append(dirs, filepath.Join(g.SourceDir(), rel))
	}
	dirs = append(dirs, stem)

	for _, base := range dirs {
		for _, ext := range headerExtensions {
			path := base + "." + ext
			if n, ok := g.Lookup(path); ok && n.Generated() {
				return n
			}
			if exists(path) {
				return g.Node(path)
			}
		}
	}
	return nil
}

// reached reports whether header is the source of c or one of its local headers
func reached(c *graph.Compiler, header *graph.Node) bool {
	if c.Source() == header {
		return true
	}
	for _, h := range c.HeaderDependencies() {
		if h.Local && h.Node == header {
			return true
		}
	}
	return false
}

// restore replays a dynamic source recorded by an earlier run. A record only comes back when
// its header still exists, is still reached by the step and still needs moc; anything else
// is dropped so that stale companions leave the graph.
func (e *Engine) restore(b graph.Builder, path string) (*graph.Node, error) {
	switch b := b.(type) {
	case *graph.Linker:
		g := b.Graph()
		header := e.headerOf(g, path)
		if header == nil {
			msg.Debug("dropping %s: header is gone", path)
			return nil, nil
		}
		for _, obj := range b.Objects() {
			c, ok := obj.Builder().(*graph.Compiler)
			if !ok || !reached(c, header) {
				continue
			}
			comp, err := e.detector.NeedsGeneration(c, header)
			if err != nil || comp == nil {
				return nil, err
			}
			return comp.Object(), nil
		}
		msg.Debug("dropping %s: %s is not included anymore", path, header)
		return nil, nil
	case *graph.Compiler:
		g := b.Graph()
		header := e.headerOf(g, path)
		if header == nil || !reached(b, header) {
			msg.Debug("dropping %s for %s", path, b.Object())
			return nil, nil
		}
		comp, err := e.detector.NeedsGeneration(b, header)
		if err != nil || comp == nil {
			return nil, err
		}
		obj := b.Object()
		if !slices.Contains(e.deps[obj], comp.Object()) {
			if e.linked[obj] {
				return nil, zerr.With(zerr.Wrap(ErrPhaseOrder, obj.Path()), "object", obj.Path())
			}
			e.deps[obj] = append(e.deps[obj], comp.Object())
		}
		return comp.Object(), nil
	default:
		return nil, zerr.With(zerr.Wrap(ErrUnsupportedBuilder, fmt.Sprintf("%s for %s", b.Name(), path)), "builder", b.Name())
	}
}
