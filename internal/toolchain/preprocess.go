package toolchain

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/qobs-build/qtkit/internal/graph"
	"go.trai.ch/zerr"
)

// PreprocessCommand renders the preprocessor invocation for a program read from input
func (tk *Toolkit) PreprocessCommand(cfg graph.CompileConfig, input string) []string {
	if tk.Flavor == MSVC {
		args := []string{tk.CXX, "/nologo", "/EP"}
		for _, d := range cfg.IncludePath {
			args = append(args, "/I"+d)
		}
		for _, d := range cfg.SystemIncludePath {
			args = append(args, "/I"+d)
		}
		return append(args, input)
	}
	args := []string{tk.CXX, "-E", "-P", "-x", "c++"}
	args = append(args, cfg.CompileArgs()...)
	return append(args, input)
}

// Preprocess runs program through the C++ preprocessor and returns its output
func (tk *Toolkit) Preprocess(ctx context.Context, program string, cfg graph.CompileConfig) (string, error) {
	input := "-"
	if tk.Flavor == MSVC {
		// cl cannot read a translation unit from stdin
		dir, err := os.MkdirTemp("", "qtkit-pp")
		if err != nil {
			return "", err
		}
		defer os.RemoveAll(dir)
		input = filepath.Join(dir, "probe.cc")
		if err := os.WriteFile(input, []byte(program), 0644); err != nil {
			return "", err
		}
	}

	argv := tk.PreprocessCommand(cfg, input)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	if input == "-" {
		cmd.Stdin = strings.NewReader(program)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		reason := strings.TrimSpace(stderr.String())
		if reason == "" {
			reason = err.Error()
		}
		return "", zerr.With(zerr.Wrap(ErrPreprocessFailed, reason), "command", graph.QuoteArgs(argv))
	}
	return stdout.String(), nil
}
