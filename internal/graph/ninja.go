package graph

import (
	"os"
	"os/exec"
	"strings"
)

const NinjaFilename = "build.ninja"

var ninjaPathEscaper = strings.NewReplacer("$", "$$", ":", "$:", " ", "$ ")

func quote(s string) string { return ninjaPathEscaper.Replace(s) }

func write(sb *strings.Builder, s ...string) {
	for _, str := range s {
		sb.WriteString(str)
	}
}

func writeln(sb *strings.Builder, s ...string) {
	for _, str := range s {
		sb.WriteString(str)
	}
	sb.WriteByte('\n')
}

// commander is implemented by builders that are a single external command
type commander interface {
	Command() []string
}

// Ninja renders the graph as a build.ninja file. Every builder becomes one build statement
// running its command; dynamic sources end up as implicit inputs.
func (g *Graph) Ninja() string {
	var sb strings.Builder

	writeln(&sb, "ninja_required_version = 1.1")
	writeln(&sb)
	write(&sb,
		`rule run
  command = $cmd
  description = $desc
`)
	writeln(&sb)

	for _, b := range g.builders {
		cmd, ok := b.(commander)
		if !ok {
			continue
		}

		write(&sb, "build")
		for _, out := range b.Outputs() {
			write(&sb, " ", quote(out.path))
		}
		write(&sb, ": run")
		for _, in := range b.Inputs() {
			write(&sb, " ", quote(in.path))
		}
		writeln(&sb)
		writeln(&sb, "  cmd = ", strings.ReplaceAll(QuoteArgs(cmd.Command()), "$", "$$"))
		writeln(&sb, "  desc = ", b.Name(), " ", relTo(g.BuildDir(), key(b)))
	}

	return sb.String()
}

// InvokeNinja runs ninja in the build directory
func (g *Graph) InvokeNinja() error {
	cmd := exec.Command("ninja", "-C", g.BuildDir())
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	return cmd.Run()
}
