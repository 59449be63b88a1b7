package qt

import (
	"os"
	"slices"

	"github.com/qobs-build/qtkit/internal/graph"
	"go.trai.ch/zerr"
)

// Companion is the moc output of a header and the step compiling it
type Companion struct {
	Header *graph.Node
	Source *graph.Node
	Step   *graph.Compiler
}

// Object is the companion object file
func (c *Companion) Object() *graph.Node { return c.Step.Object() }

// Detector decides which sources need moc and synthesizes their companions. Every verdict
// is cached, negative ones included.
type Detector struct {
	inst       *Installation
	classifier Classifier
	cache      map[*graph.Node]*Companion

	// ReadFile loads source content
	ReadFile func(path string) ([]byte, error)
}

func NewDetector(inst *Installation, classifier Classifier) *Detector {
	if classifier == nil {
		classifier = QObject
	}
	return &Detector{
		inst:       inst,
		classifier: classifier,
		ReadFile:   os.ReadFile,
		cache:      make(map[*graph.Node]*Companion),
	}
}

// CompanionPath is where the moc output of header goes
func CompanionPath(g *graph.Graph, header string) string {
	return g.BuildPath(graph.WithExtension(header, "moc.cc"))
}

func (d *Detector) system(g *graph.Graph, c *graph.Compiler, path string) bool {
	dirs := slices.Concat(c.Config.SystemIncludePath, d.inst.SystemIncludePath())
	for i := range dirs {
		dirs[i] = g.Abs(dirs[i])
	}
	return graph.IsUnder(path, dirs)
}

// NeedsGeneration returns the companion of src, or nil when src does not need moc. Headers
// under a system include directory and files produced by the build are never scanned. A
// source is read at most once.
func (d *Detector) NeedsGeneration(c *graph.Compiler, src *graph.Node) (*Companion, error) {
	if res, ok := d.cache[src]; ok {
		return res, nil
	}

	var res *Companion
	if !src.Generated() && !d.system(c.Graph(), c, src.Path()) {
		content, err := d.ReadFile(src.Path())
		if err != nil {
			return nil, zerr.With(zerr.Wrap(err, "scanning for moc"), "source", src.Path())
		}
		if d.classifier.Classify(content) {
			res, err = d.Synthesize(c.Graph(), src, c.Config)
			if err != nil {
				return nil, err
			}
		}
	}
	d.cache[src] = res
	return res, nil
}

// Synthesize creates the moc step for header and the compile step for its output. Both are
// shared: asking twice for the same header returns the same steps.
func (d *Detector) Synthesize(g *graph.Graph, header *graph.Node, cfg graph.CompileConfig) (*Companion, error) {
	src := g.Node(CompanionPath(g, header.Path()))
	if src.Builder() == nil {
		if err := g.Add(NewMoc(g, d.inst, header, src)); err != nil {
			return nil, err
		}
	}
	step, err := g.Object(src, cfg)
	if err != nil {
		return nil, err
	}
	return &Companion{Header: header, Source: src, Step: step}, nil
}
