package qt_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/qobs-build/qtkit/internal/graph"
	"github.com/qobs-build/qtkit/internal/qt"
	"github.com/qobs-build/qtkit/internal/toolchain"
	"github.com/stretchr/testify/require"
)

var linux = toolchain.Target{OS: "linux", Arch: "amd64", Flavor: toolchain.GNU}

func touch(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// fakeQt lays out a Qt prefix holding only the marker header
func fakeQt(t *testing.T, prefix string) string {
	t.Helper()
	touch(t, filepath.Join(prefix, "include", "Qt", "qglobal.h"), "#define QT_VERSION 0x040806\n")
	return prefix
}

// install resolves a fake Qt 4.8.6 without probing
func install(t *testing.T, prefix string, opts qt.Options) *qt.Installation {
	t.Helper()
	fakeQt(t, prefix)
	v := qt.Version{Major: 4, Minor: 8, Patch: 6}
	opts.Prefix = prefix
	opts.VersionEffective = &v
	inst, err := qt.Find(context.Background(), nil, linux, opts)
	require.NoError(t, err)
	return inst
}

// project is a source tree with a plugged engine
type project struct {
	root   string
	graph  *graph.Graph
	inst   *qt.Installation
	engine *qt.Engine
}

func newProject(t *testing.T) *project {
	t.Helper()
	root := t.TempDir()
	inst := install(t, filepath.Join(root, "qt"), qt.Options{PreferShared: true})
	g := graph.New(graph.Options{SourceDir: root, CC: "cc", CXX: "c++"})
	e := qt.NewEngine(inst, nil)
	e.Plug(g)
	return &project{root: root, graph: g, inst: inst, engine: e}
}

func (p *project) file(t *testing.T, rel, content string) *graph.Node {
	t.Helper()
	touch(t, filepath.Join(p.root, rel), content)
	return p.graph.Node(rel)
}

func (p *project) config() graph.CompileConfig {
	return p.inst.Config()
}

func buildersOf[T graph.Builder](g *graph.Graph) []T {
	var res []T
	for _, b := range g.Builders() {
		if tb, ok := b.(T); ok {
			res = append(res, tb)
		}
	}
	return res
}

const widgetHeader = `#pragma once
#include <QObject>

class Widget : public QObject {
  Q_OBJECT
public:
  Widget();
};
`
