package graph

import (
	"context"
	"os"
	"os/exec"
	"strings"

	"github.com/qobs-build/qtkit/internal/msg"
	"go.trai.ch/zerr"
)

// Builder turns input nodes into output nodes
type Builder interface {
	// Name is the short verb shown in progress output, e.g. "CC" or "MOC"
	Name() string
	Inputs() []*Node
	Outputs() []*Node
	// Hash is the identity of the builder for rebuild avoidance. Two builders with equal
	// hashes are considered the same work.
	Hash() []string
	Execute(ctx context.Context) error
}

// DynamicSink is implemented by builders that accept inputs discovered after construction
type DynamicSink interface {
	Builder
	AddDynamicSource(handler string, n *Node, source bool)
	DynamicSources() []DynamicSource
}

// DynamicSource is an input registered after the builder was created, tagged with the
// handler able to recreate it from a path in a later run
type DynamicSource struct {
	Handler string
	Node    *Node
	// Source marks inputs that take part in the command (e.g. extra objects to link),
	// as opposed to pure ordering dependencies.
	Source bool
}

// RunCommand runs argv with output indented under the current step
func RunCommand(ctx context.Context, argv []string) error {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdout = &msg.IndentWriter{Indent: "  ", W: os.Stdout}
	cmd.Stderr = &msg.IndentWriter{Indent: "  ", W: os.Stderr}
	if err := cmd.Run(); err != nil {
		return zerr.With(zerr.Wrap(ErrCommandFailed, err.Error()), "command", strings.Join(argv, " "))
	}
	return nil
}

// QuoteArgs renders argv as a single shell-safe command line
func QuoteArgs(argv []string) string {
	quoted := make([]string, len(argv))
	for i, a := range argv {
		if a == "" || strings.ContainsAny(a, " \t\n\"'\\$`") {
			a = "'" + strings.ReplaceAll(a, "'", `'\''`) + "'"
		}
		quoted[i] = a
	}
	return strings.Join(quoted, " ")
}
