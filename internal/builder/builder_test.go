package builder

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/qobs-build/qtkit/internal/graph"
	"github.com/qobs-build/qtkit/internal/index"
	"github.com/qobs-build/qtkit/internal/qt"
	"github.com/qobs-build/qtkit/internal/toolchain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func newTestBuilder(t *testing.T, dir, config string) *Builder {
	t.Helper()
	env := testEnv(dir)
	cfg, err := ParseConfig(strings.NewReader(config), env)
	require.NoError(t, err)
	idx, err := index.Load(filepath.Join(t.TempDir(), index.IndexFilename))
	require.NoError(t, err)
	return &Builder{cfg: cfg, basedir: dir, env: env, Index: idx}
}

func TestParseGitURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		want gitURL
	}{
		{"https://example.org/qt/qt", gitURL{cleanURL: "https://example.org/qt/qt.git"}},
		{"https://example.org/qt/qt.git@4.8", gitURL{cleanURL: "https://example.org/qt/qt.git", branch: "4.8"}},
		{"https://example.org/qt/qt#v4.8.7", gitURL{cleanURL: "https://example.org/qt/qt.git", commitOrTag: "v4.8.7"}},
		{"https://example.org/qt/qt@4.8#abc123", gitURL{cleanURL: "https://example.org/qt/qt.git", branch: "4.8", commitOrTag: "abc123"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseGitURL(tt.raw), tt.raw)
	}
}

func TestResolvePrefix(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	idx, err := index.Load(filepath.Join(dir, index.IndexFilename))
	require.NoError(t, err)
	require.NoError(t, idx.Set("qt48", filepath.Join(dir, "qt-4.8")))

	got, err := resolvePrefix("/opt/qt", filepath.Join(dir, "deps"), idx)
	require.NoError(t, err)
	assert.Equal(t, "/opt/qt", got)

	got, err = resolvePrefix("@qt48", filepath.Join(dir, "deps"), idx)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "qt-4.8"), got)

	_, err = resolvePrefix("@missing", filepath.Join(dir, "deps"), idx)
	assert.True(t, errors.Is(err, index.ErrUnknownPrefix))

	_, err = resolvePrefix("https://example.org/qt-4.8.7.tar.gz", filepath.Join(dir, "deps"), idx)
	assert.True(t, errors.Is(err, errArchive))

	_, err = resolvePrefix("", filepath.Join(dir, "deps"), idx)
	assert.True(t, errors.Is(err, errIllegalPrefix))

	// an earlier clone is reused without touching the network
	clone := filepath.Join(dir, "clone")
	require.NoError(t, os.MkdirAll(filepath.Join(clone, ".git"), 0755))
	got, err = resolvePrefix("gh:qt/qt@4.8", clone, idx)
	require.NoError(t, err)
	assert.Equal(t, clone, got)
}

func TestCollectFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "src", "main.cc"), "")
	writeFile(t, filepath.Join(dir, "src", "ui", "window.cc"), "")
	writeFile(t, filepath.Join(dir, "src", "ui", "window.hh"), "")
	writeFile(t, filepath.Join(dir, "include", "viewer.hh"), "")
	b := newTestBuilder(t, dir, "")

	files, err := b.collectFiles([]string{"src/**/*.cc"}, false)
	require.NoError(t, err)
	slices.Sort(files)
	assert.Equal(t, []string{
		filepath.Join(dir, "src", "main.cc"),
		filepath.Join(dir, "src", "ui", "window.cc"),
	}, files)

	dirs, err := b.collectFiles([]string{"src/**/*.hh", "include"}, true)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "include"),
		filepath.Join(dir, "src", "ui"),
	}, dirs)
}

func TestQtOptions(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	b := newTestBuilder(t, dir, `
[qt]
prefix = "third_party/qt"
version = "4.8"
version-effective = "4.8.6"
prefer-shared = true
uic = "uic-qt4"
`)

	opts, err := b.qtOptions()
	require.NoError(t, err)
	assert.Equal(t, "third_party/qt", opts.Prefix)
	assert.Equal(t, dir, opts.SourceDir)
	assert.True(t, opts.Version.Contains(qt.Version{Major: 4, Minor: 8, Patch: 2}))
	assert.False(t, opts.Version.Contains(qt.Version{Major: 4, Minor: 7}))
	require.NotNil(t, opts.VersionEffective)
	assert.Equal(t, qt.Version{Major: 4, Minor: 8, Patch: 6}, *opts.VersionEffective)
	assert.True(t, opts.PreferShared)
	assert.Equal(t, map[string]string{qt.ToolUic: "uic-qt4"}, opts.Tools)

	b = newTestBuilder(t, dir, `
[qt]
version = ">= 4.x"
`)
	_, err = b.qtOptions()
	require.Error(t, err)
}

func TestExtendIncludePath(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	b := newTestBuilder(t, dir, `
[qt]
include-path = ["vendor/qt/include", "/opt/qt/include"]
`)
	require.NoError(t, b.Index.Set("embedded", "/opt/qte"))

	tk := &toolchain.Toolkit{Target: toolchain.Target{IncludePath: []string{"/usr/include"}}}
	b.extendIncludePath(tk)
	assert.Equal(t, []string{
		filepath.Join(dir, "vendor", "qt", "include"),
		"/opt/qt/include",
		"/usr/include",
		filepath.Join("/opt/qte", "include"),
	}, tk.IncludePath)

	// with an explicit prefix the index is not consulted
	b.cfg.Qt.Prefix = "/opt/qt"
	tk = &toolchain.Toolkit{Target: toolchain.Target{IncludePath: []string{"/usr/include"}}}
	b.extendIncludePath(tk)
	assert.Equal(t, []string{
		filepath.Join(dir, "vendor", "qt", "include"),
		"/opt/qt/include",
		"/usr/include",
	}, tk.IncludePath)
}

const viewerConfig = `
[package]
name = "viewer"

[qt]
libraries = ["core", "gui"]

[target]
sources = ["src/**/*.cc"]
headers = ["src/**/*.hh"]
forms = ["forms/*.ui"]
resources = ["viewer.qrc"]
links = ["pthread"]
`

// fakeInstallation lays out a Qt 4.8.6 prefix with static core and gui libraries
func fakeInstallation(t *testing.T) (*toolchain.Toolkit, *qt.Installation) {
	t.Helper()
	prefix := t.TempDir()
	writeFile(t, filepath.Join(prefix, "include", "Qt", "qglobal.h"), "#define QT_VERSION 0x040806\n")
	writeFile(t, filepath.Join(prefix, "include", "QtCore", "QObject"), "")
	writeFile(t, filepath.Join(prefix, "lib", "libQtCore.a"), "")
	writeFile(t, filepath.Join(prefix, "lib", "libQtGui.a"), "")

	tk := &toolchain.Toolkit{
		CC:     "cc",
		CXX:    "c++",
		Target: toolchain.Target{OS: "linux", Arch: "amd64", Flavor: toolchain.GNU},
	}
	v := qt.Version{Major: 4, Minor: 8, Patch: 6}
	inst, err := qt.Find(context.Background(), nil, tk.Target, qt.Options{Prefix: prefix, VersionEffective: &v})
	require.NoError(t, err)
	return tk, inst
}

func builderNames(g *graph.Graph) []string {
	var names []string
	for _, b := range g.Builders() {
		names = append(names, b.Name())
	}
	return names
}

func TestAssemble(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "src", "main.cc"), "#include \"window.hh\"\nint main() {}\n")
	writeFile(t, filepath.Join(dir, "src", "window.hh"), "#include <QtCore/QObject>\nclass Window : public QObject {\n  Q_OBJECT\n};\n")
	writeFile(t, filepath.Join(dir, "forms", "dialog.ui"), "<ui/>\n")
	writeFile(t, filepath.Join(dir, "viewer.qrc"), "<RCC/>\n")
	b := newTestBuilder(t, dir, viewerConfig)
	tk, inst := fakeInstallation(t)

	p, err := b.Assemble(tk, inst, "release")
	require.NoError(t, err)
	assert.Same(t, inst, p.Qt)

	names := builderNames(p.Graph)
	assert.Contains(t, names, "MOC")
	assert.Contains(t, names, "UIC")
	assert.Contains(t, names, "RCC")
	assert.Contains(t, names, "LINK")

	build := filepath.Join(dir, "build")
	assert.Equal(t, filepath.Join(build, "viewer"), p.Target.Output().Path())

	var objects []string
	for _, o := range p.Target.Objects() {
		objects = append(objects, o.Path())
	}
	assert.Contains(t, objects, filepath.Join(build, "src", "main.o"))
	assert.Contains(t, objects, filepath.Join(build, "src", "window.moc.o"))
	assert.Contains(t, objects, filepath.Join(build, "viewer.qrc.o"))

	cmd := p.Target.Command()
	assert.Contains(t, cmd, filepath.Join(inst.Prefix, "lib", "libQtCore.a"))
	assert.Contains(t, cmd, filepath.Join(inst.Prefix, "lib", "libQtGui.a"))
	assert.Contains(t, cmd, "-lpthread")

	cfg := p.Target.Config
	assert.Contains(t, cfg.Flags, "-O3")
	assert.Equal(t, "1", cfg.Defines["Qt_CORE_STATIC_LINK"])
	assert.Contains(t, cfg.IncludePath, filepath.Join(dir, "src"))
	assert.Contains(t, cfg.IncludePath, filepath.Join(build, "src"))
	assert.Contains(t, cfg.IncludePath, filepath.Join(build, "forms"))
	assert.Contains(t, cfg.SystemIncludePath, inst.IncludeDir)
}

func TestAssembleLibrary(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "src", "model.cc"), "int model() { return 0; }\n")
	b := newTestBuilder(t, dir, `
[package]
name = "model"

[qt]
libraries = ["core"]

[target]
lib = true
sources = ["src/*.cc"]
`)
	tk, inst := fakeInstallation(t)

	p, err := b.Assemble(tk, inst, "debug")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "build", "libmodel.a"), p.Target.Output().Path())
	assert.Equal(t, "AR", p.Target.Name())
	assert.NotContains(t, p.Target.Config.Libraries, filepath.Join(inst.Prefix, "lib", "libQtCore.a"))
	assert.NotContains(t, p.Target.Config.Flags, "-O3")
}

func TestAssembleErrors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tk, inst := fakeInstallation(t)

	b := newTestBuilder(t, dir, `
[qt]
libraries = ["opengl"]
`)
	_, err := b.Assemble(tk, inst, "release")
	assert.True(t, errors.Is(err, qt.ErrUnknownLibrary))

	b = newTestBuilder(t, dir, `
[qt]
libraries = ["network"]
`)
	_, err = b.Assemble(tk, inst, "release")
	assert.True(t, errors.Is(err, qt.ErrLibraryNotFound))

	b = newTestBuilder(t, dir, `
[package]
name = "viewer"
build = 'target_os == "plan9"'
`)
	_, err = b.Assemble(tk, inst, "release")
	require.Error(t, err)

	b = newTestBuilder(t, dir, "")
	_, err = b.Assemble(tk, inst, "nope")
	require.Error(t, err)
}

func TestBuildUnknownGenerator(t *testing.T) {
	t.Parallel()

	b := newTestBuilder(t, t.TempDir(), "")
	_, err := b.Build(context.Background(), "release", "vs2022")
	assert.True(t, errors.Is(err, errUnknownGenerator))
}

func TestBuildAndRunLibrary(t *testing.T) {
	t.Parallel()

	b := newTestBuilder(t, t.TempDir(), "[target]\nlib = true\n")
	err := b.BuildAndRun(context.Background(), nil, "release", GeneratorQobs)
	assert.True(t, errors.Is(err, errCantRunLib))
}

// saveDynamicState writes the build state a finished run of g would leave behind, as far as
// dynamic sources are concerned
func saveDynamicState(t *testing.T, g *graph.Graph) {
	t.Helper()
	state := make(map[string]*graph.BuildState)
	for _, b := range g.Builders() {
		sink, ok := b.(graph.DynamicSink)
		if !ok {
			continue
		}
		st := &graph.BuildState{Identity: graph.Identity(b.Hash())}
		for _, d := range sink.DynamicSources() {
			st.Dynamic = append(st.Dynamic, graph.DynamicRecord{Handler: d.Handler, Path: d.Node.Path()})
		}
		state[b.Outputs()[0].Path()] = st
	}
	data, err := json.Marshal(state)
	require.NoError(t, err)
	writeFile(t, filepath.Join(g.BuildDir(), graph.StateFilename), string(data))
}

const windowConfig = `
[package]
name = "window"

[qt]
libraries = ["core"]

[target]
sources = ["src/*.cc"]
headers = ["src/*.hh"]
`

func TestRebuildAfterHeaderRemoval(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "src", "main.cc"), "#include \"window.hh\"\nint main() {}\n")
	writeFile(t, filepath.Join(dir, "src", "window.hh"), "#include <QtCore/QObject>\nclass Window : public QObject {\n  Q_OBJECT\n};\n")
	tk, inst := fakeInstallation(t)

	first, err := newTestBuilder(t, dir, windowConfig).Assemble(tk, inst, "debug")
	require.NoError(t, err)
	require.Contains(t, builderNames(first.Graph), "MOC")
	require.Len(t, first.Target.DynamicSources(), 1)
	saveDynamicState(t, first.Graph)

	require.NoError(t, os.Remove(filepath.Join(dir, "src", "window.hh")))
	writeFile(t, filepath.Join(dir, "src", "main.cc"), "int main() {}\n")

	b := newTestBuilder(t, dir, windowConfig)
	second, err := b.Assemble(tk, inst, "debug")
	require.NoError(t, err)
	_, err = b.runner(second.Graph)
	require.NoError(t, err)

	assert.NotContains(t, builderNames(second.Graph), "MOC")
	assert.Empty(t, second.Target.DynamicSources())
	for _, o := range second.Target.Objects() {
		assert.NotContains(t, o.Path(), "window.moc")
	}
}

func TestRebuildKeepsLiveCompanion(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "src", "main.cc"), "#include \"window.hh\"\nint main() {}\n")
	writeFile(t, filepath.Join(dir, "src", "window.hh"), "#include <QtCore/QObject>\nclass Window : public QObject {\n  Q_OBJECT\n};\n")
	tk, inst := fakeInstallation(t)

	first, err := newTestBuilder(t, dir, windowConfig).Assemble(tk, inst, "debug")
	require.NoError(t, err)
	saveDynamicState(t, first.Graph)

	b := newTestBuilder(t, dir, windowConfig)
	second, err := b.Assemble(tk, inst, "debug")
	require.NoError(t, err)
	_, err = b.runner(second.Graph)
	require.NoError(t, err)

	moc := 0
	for _, name := range builderNames(second.Graph) {
		if name == "MOC" {
			moc++
		}
	}
	assert.Equal(t, 1, moc)
	require.Len(t, second.Target.DynamicSources(), 1)
	assert.Equal(t, filepath.Join(dir, "build", "src", "window.moc.o"), second.Target.DynamicSources()[0].Node.Path())
}
