package qt

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/qobs-build/qtkit/internal/graph"
	"go.trai.ch/zerr"
)

// generator runs one Qt tool on one source to produce one file
type generator struct {
	verb string
	tool *graph.Node
	src  *graph.Node
	tgt  *graph.Node
	argv []string
}

func newGenerator(g *graph.Graph, verb, tool string, src, tgt *graph.Node, argv []string) generator {
	gen := generator{verb: verb, src: src, tgt: tgt, argv: argv}
	if filepath.IsAbs(tool) {
		gen.tool = g.Node(tool)
	}
	return gen
}

func (b *generator) Name() string           { return b.verb }
func (b *generator) Source() *graph.Node    { return b.src }
func (b *generator) Target() *graph.Node    { return b.tgt }
func (b *generator) Outputs() []*graph.Node { return []*graph.Node{b.tgt} }

func (b *generator) Inputs() []*graph.Node {
	if b.tool == nil {
		return []*graph.Node{b.src}
	}
	return []*graph.Node{b.src, b.tool}
}

// Command is the tool invocation. It is also the identity of the builder.
func (b *generator) Command() []string { return slices.Clone(b.argv) }

func (b *generator) Hash() []string { return b.Command() }

func (b *generator) Execute(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(b.tgt.Path()), 0755); err != nil {
		return err
	}
	if err := graph.RunCommand(ctx, b.argv); err != nil {
		cmdline := graph.QuoteArgs(b.argv)
		err := zerr.Wrap(ErrExternalTool, fmt.Sprintf("%s of %s: %s: %v", b.verb, b.tgt.Path(), cmdline, err))
		err = zerr.With(err, "command", cmdline)
		return zerr.With(err, "target", b.tgt.Path())
	}
	return nil
}

func (b *generator) String() string {
	return fmt.Sprintf("%s of %s", b.verb, b.src.Path())
}

// Moc runs the meta-object compiler on a header
type Moc struct{ generator }

func NewMoc(g *graph.Graph, inst *Installation, src, tgt *graph.Node) *Moc {
	tool := inst.Tool(ToolMoc)
	// -f keeps the generated #include independent of the working directory
	argv := []string{tool, src.Path(), "-o", tgt.Path(), "-f" + src.Path()}
	return &Moc{newGenerator(g, "MOC", tool, src, tgt, argv)}
}

// Uic compiles a Designer form into a header
type Uic struct{ generator }

func NewUic(g *graph.Graph, inst *Installation, src, tgt *graph.Node) *Uic {
	tool := inst.Tool(ToolUic)
	argv := []string{tool, src.Path(), "-o", tgt.Path()}
	return &Uic{newGenerator(g, "UIC", tool, src, tgt, argv)}
}

// Rcc compiles a resource collection into a source file
type Rcc struct{ generator }

func NewRcc(g *graph.Graph, inst *Installation, src, tgt *graph.Node) *Rcc {
	tool := inst.Tool(ToolRcc)
	argv := []string{tool, "-name", "resources", src.Path(), "-o", tgt.Path()}
	return &Rcc{newGenerator(g, "RCC", tool, src, tgt, argv)}
}
