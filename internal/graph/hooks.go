package graph

import "go.trai.ch/zerr"

// ObjectHook runs once per compile step, after its header dependencies are known
type ObjectHook func(c *Compiler) error

// LinkHook runs once per link step, after its objects are assembled and before it is usable
type LinkHook func(l *Linker) error

// SourceHook may substitute a link source before it is classified. Returning nil keeps the
// source as is.
type SourceHook func(n *Node) (*Node, error)

// DepsHandler recreates a dynamic source of builder b from its recorded path. A nil node
// means the handler recorded the dependency itself.
type DepsHandler func(b Builder, path string) (*Node, error)

func (g *Graph) HookObjectDeps(h ObjectHook) { g.objectHooks = append(g.objectHooks, h) }
func (g *Graph) HookBinDeps(h LinkHook)      { g.linkHooks = append(g.linkHooks, h) }
func (g *Graph) HookBinSrc(h SourceHook)     { g.sourceHooks = append(g.sourceHooks, h) }

// RegisterDepsHandler installs the handler used to restore dynamic sources tagged name
func (g *Graph) RegisterDepsHandler(name string, h DepsHandler) {
	g.handlers[name] = h
}

// RestoreDynamicSource replays a dynamic source recorded by an earlier run
func (g *Graph) RestoreDynamicSource(b Builder, handler, path string) error {
	h, ok := g.handlers[handler]
	if !ok {
		return zerr.With(zerr.Wrap(ErrUnknownDepsHandler, handler), "handler", handler)
	}
	n, err := h(b, path)
	if err != nil {
		return err
	}
	if n == nil {
		return nil
	}
	if sink, ok := b.(DynamicSink); ok {
		for _, d := range sink.DynamicSources() {
			if d.Node == n {
				return nil
			}
		}
		sink.AddDynamicSource(handler, n, true)
	}
	return nil
}

func (g *Graph) substitute(n *Node) (*Node, error) {
	for _, h := range g.sourceHooks {
		res, err := h(n)
		if err != nil {
			return nil, err
		}
		if res != nil {
			return res, nil
		}
	}
	return n, nil
}
