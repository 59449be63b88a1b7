package graph

import (
	"context"
	"os"
	"path/filepath"
	"slices"

	"go.trai.ch/zerr"
)

// Compiler compiles one source into one object
type Compiler struct {
	graph   *Graph
	source  *Node
	object  *Node
	Config  CompileConfig
	headers []HeaderDep
	dynamic []DynamicSource
}

func (c *Compiler) Name() string     { return "CC" }
func (c *Compiler) Graph() *Graph    { return c.graph }
func (c *Compiler) Source() *Node    { return c.source }
func (c *Compiler) Object() *Node    { return c.object }
func (c *Compiler) Outputs() []*Node { return []*Node{c.object} }

// HeaderDependencies returns the transitive headers found when the step was created
func (c *Compiler) HeaderDependencies() []HeaderDep { return slices.Clone(c.headers) }

// Sources returns the declared sources of the step
func (c *Compiler) Sources() []*Node { return []*Node{c.source} }

// AddDynamicSource registers n as an input discovered after construction. Adding the same
// node twice has no effect.
func (c *Compiler) AddDynamicSource(handler string, n *Node, source bool) {
	c.dynamic = addDynamic(c.dynamic, DynamicSource{Handler: handler, Node: n, Source: source})
}

func (c *Compiler) DynamicSources() []DynamicSource { return slices.Clone(c.dynamic) }

func (c *Compiler) Inputs() []*Node {
	res := []*Node{c.source}
	for _, h := range c.headers {
		if h.Local {
			res = append(res, h.Node)
		}
	}
	for _, d := range c.dynamic {
		res = append(res, d.Node)
	}
	return res
}

func (c *Compiler) compiler() string {
	if Extension(c.source.path) == "c" {
		return c.graph.opts.CC
	}
	return c.graph.opts.CXX
}

// Command is the compiler invocation
func (c *Compiler) Command() []string {
	args := []string{c.compiler()}
	args = append(args, c.Config.CompileArgs()...)
	return append(args, "-c", c.source.path, "-o", c.object.path)
}

func (c *Compiler) Hash() []string { return c.Command() }

func (c *Compiler) Execute(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(c.object.path), 0755); err != nil {
		return err
	}
	return RunCommand(ctx, c.Command())
}

// ObjectPath is where the object for src is written
func (g *Graph) ObjectPath(src string) string {
	return WithExtension(g.BuildPath(src), "o")
}

// Object returns the compile step for src, creating it on first use. Creation computes the
// header dependencies and then runs the object hooks.
func (g *Graph) Object(src *Node, cfg CompileConfig) (*Compiler, error) {
	path := g.ObjectPath(src.path)
	if c, ok := g.objects[path]; ok {
		return c, nil
	}

	c := &Compiler{graph: g, source: src, object: g.Node(path), Config: cfg.Clone()}
	if err := g.Add(c); err != nil {
		return nil, err
	}
	g.objects[path] = c

	if err := g.Rescan(c); err != nil {
		return nil, err
	}
	return c, nil
}

// Rescan recomputes the header dependencies of c and runs the object hooks again
func (g *Graph) Rescan(c *Compiler) error {
	headers, err := g.scanHeaders(c.source.path, c.Config)
	if err != nil {
		return zerr.With(zerr.Wrap(err, "scanning headers"), "source", c.source.path)
	}
	c.headers = headers

	for _, h := range g.objectHooks {
		if err := h(c); err != nil {
			return err
		}
	}
	return nil
}

func addDynamic(list []DynamicSource, d DynamicSource) []DynamicSource {
	for _, cur := range list {
		if cur.Node == d.Node {
			return list
		}
	}
	return append(list, d)
}

// Linker links objects into a binary or archives them into a static library
type Linker struct {
	graph   *Graph
	output  *Node
	sources []*Node
	Config  CompileConfig
	lib     bool
	dynamic []DynamicSource
}

func (l *Linker) Name() string {
	if l.lib {
		return "AR"
	}
	return "LINK"
}

func (l *Linker) Graph() *Graph    { return l.graph }
func (l *Linker) Output() *Node    { return l.output }
func (l *Linker) Outputs() []*Node { return []*Node{l.output} }
func (l *Linker) Sources() []*Node { return slices.Clone(l.sources) }

func (l *Linker) AddDynamicSource(handler string, n *Node, source bool) {
	l.dynamic = addDynamic(l.dynamic, DynamicSource{Handler: handler, Node: n, Source: source})
}

func (l *Linker) DynamicSources() []DynamicSource { return slices.Clone(l.dynamic) }

// Objects returns every object taking part in the command, declared and dynamic
func (l *Linker) Objects() []*Node {
	res := slices.Clone(l.sources)
	for _, d := range l.dynamic {
		if d.Source && !slices.Contains(res, d.Node) {
			res = append(res, d.Node)
		}
	}
	return res
}

func (l *Linker) Inputs() []*Node {
	res := l.Objects()
	for _, d := range l.dynamic {
		if !slices.Contains(res, d.Node) {
			res = append(res, d.Node)
		}
	}
	return res
}

// Command is the linker (or archiver) invocation
func (l *Linker) Command() []string {
	var args []string
	if l.lib {
		args = []string{"ar", "rcs", l.output.path}
		for _, o := range l.Objects() {
			args = append(args, o.path)
		}
		return args
	}
	args = []string{l.graph.opts.CXX, "-o", l.output.path}
	for _, o := range l.Objects() {
		args = append(args, o.path)
	}
	args = append(args, l.Config.Libraries...)
	return args
}

func (l *Linker) Hash() []string { return l.Command() }

func (l *Linker) Execute(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(l.output.path), 0755); err != nil {
		return err
	}
	return RunCommand(ctx, l.Command())
}

// Link assembles a link step for out. Sources first go through the source hooks, so that
// plugins can substitute generated files; compilable sources are then turned into objects.
// Headers are accepted and contribute nothing to the command.
func (g *Graph) Link(out string, sources []*Node, cfg CompileConfig, lib bool) (*Linker, error) {
	substituted := make([]*Node, 0, len(sources))
	for _, src := range sources {
		n, err := g.substitute(src)
		if err != nil {
			return nil, err
		}
		substituted = append(substituted, n)
	}

	l := &Linker{graph: g, output: g.Node(g.BuildPath(out)), Config: cfg.Clone(), lib: lib}
	for _, n := range substituted {
		switch n.kind {
		case KindSource:
			c, err := g.Object(n, cfg)
			if err != nil {
				return nil, err
			}
			l.sources = append(l.sources, c.object)
		case KindObject:
			l.sources = append(l.sources, n)
		case KindHeader:
		default:
			return nil, zerr.With(zerr.Wrap(ErrUnsupportedSource, n.path), "kind", string(n.kind))
		}
	}
	if err := g.Add(l); err != nil {
		return nil, err
	}

	for _, h := range g.linkHooks {
		if err := h(l); err != nil {
			return nil, err
		}
	}
	return l, nil
}
