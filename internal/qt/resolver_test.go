package qt_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/qobs-build/qtkit/internal/graph"
	"github.com/qobs-build/qtkit/internal/qt"
	"github.com/qobs-build/qtkit/internal/qt/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const probe = "#include <Qt/qglobal.h>\nQT_VERSION"

func includeConfig(dir string) graph.CompileConfig {
	var cfg graph.CompileConfig
	cfg.AddSystemIncludePath(dir)
	return cfg
}

func TestFindFirstMatchingVersion(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	old := fakeQt(t, filepath.Join(root, "old"))
	good := fakeQt(t, filepath.Join(root, "good"))
	newer := fakeQt(t, filepath.Join(root, "newer"))

	ctrl := gomock.NewController(t)
	pp := mocks.NewMockPreprocessor(ctrl)
	gomock.InOrder(
		pp.EXPECT().
			Preprocess(gomock.Any(), probe, includeConfig(filepath.Join(old, "include"))).
			Return("typedef int qint32;\n0x010200\n\n", nil),
		pp.EXPECT().
			Preprocess(gomock.Any(), probe, includeConfig(filepath.Join(good, "include"))).
			Return("0x020001\n", nil),
	)

	target := linux
	target.IncludePath = []string{
		filepath.Join(old, "include"),
		filepath.Join(good, "include"),
		filepath.Join(newer, "include"),
		"/nonexistent/lib",
	}
	inst, err := qt.Find(context.Background(), pp, target, qt.Options{
		Version:      qt.MustParseRange(">=2.0 <2.1"),
		PreferShared: true,
	})
	require.NoError(t, err)
	assert.Equal(t, good, inst.Prefix)
	assert.Equal(t, qt.Version{Major: 2, Minor: 0, Patch: 1}, inst.Version)
	assert.Equal(t, filepath.Join(good, "include"), inst.IncludeDir)
	assert.Equal(t, []string{filepath.Join(good, "include")}, inst.SystemIncludePath())
	assert.Equal(t, filepath.Join(good, "bin", "moc"), inst.Tool(qt.ToolMoc))
	assert.Equal(t, filepath.Join(good, "bin", "qmake"), inst.Tool(qt.ToolQmake))
}

func TestFindSkipsUnreadableInstallations(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	broken := fakeQt(t, filepath.Join(root, "broken"))
	good := fakeQt(t, filepath.Join(root, "good"))

	ctrl := gomock.NewController(t)
	pp := mocks.NewMockPreprocessor(ctrl)
	pp.EXPECT().
		Preprocess(gomock.Any(), probe, includeConfig(filepath.Join(broken, "include"))).
		Return("", errors.New("QT_VERSION undeclared"))
	pp.EXPECT().
		Preprocess(gomock.Any(), probe, includeConfig(filepath.Join(good, "include"))).
		Return("QT_VERSION\n", nil)

	target := linux
	target.IncludePath = []string{filepath.Join(broken, "include"), filepath.Join(good, "include")}
	_, err := qt.Find(context.Background(), pp, target, qt.Options{})

	// neither installation yields a version, so nothing is found and nothing is near
	require.Error(t, err)
	assert.True(t, errors.Is(err, qt.ErrQtNotFound))
	assert.False(t, errors.Is(err, qt.ErrResolutionMiss))
}

func TestFindNotFound(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	a := filepath.Join(root, "a")
	b := filepath.Join(root, "b")
	touch(t, filepath.Join(a, "include", "QtCore", "qobject.h"), "")

	ctrl := gomock.NewController(t)
	pp := mocks.NewMockPreprocessor(ctrl)

	target := linux
	target.IncludePath = []string{filepath.Join(a, "include"), filepath.Join(b, "include", "qt4")}
	inst, err := qt.Find(context.Background(), pp, target, qt.Options{})
	require.Error(t, err)
	assert.Nil(t, inst)
	assert.True(t, errors.Is(err, qt.ErrQtNotFound))
	assert.Contains(t, err.Error(), a)
	assert.Contains(t, err.Error(), b)
}

func TestFindReportsNearMisses(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	prefix := fakeQt(t, filepath.Join(root, "qt"))
	v := qt.Version{Major: 4, Minor: 6, Patch: 2}

	_, err := qt.Find(context.Background(), nil, linux, qt.Options{
		Prefix:           "qt",
		SourceDir:        root,
		Version:          qt.MustParseRange(">=4.7"),
		VersionEffective: &v,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, qt.ErrQtNotFound))
	assert.Contains(t, err.Error(), prefix)
	assert.Contains(t, err.Error(), "4.6.2")
	assert.Contains(t, err.Error(), ">=4.7")
}

func TestFindQt4IncludeLayout(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	touch(t, filepath.Join(root, "usr", "include", "qt4", "Qt", "qglobal.h"), "")
	v := qt.Version{Major: 4, Minor: 8, Patch: 6}

	target := linux
	target.IncludePath = []string{filepath.Join(root, "usr", "include", "qt4"), filepath.Join(root, "usr", "include")}
	inst, err := qt.Find(context.Background(), nil, target, qt.Options{VersionEffective: &v})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "usr"), inst.Prefix)
	assert.Equal(t, filepath.Join(root, "usr", "include", "qt4"), inst.IncludeDir)
}

func TestFindToolOverrides(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	inst := install(t, filepath.Join(root, "qt"), qt.Options{
		Tools: map[string]string{qt.ToolMoc: "/opt/moc-qt4"},
	})
	assert.Equal(t, "/opt/moc-qt4", inst.Tool(qt.ToolMoc))
	assert.Equal(t, filepath.Join(root, "qt", "bin", "uic"), inst.Tool(qt.ToolUic))
}

func TestAdopt(t *testing.T) {
	t.Parallel()

	inst := install(t, t.TempDir(), qt.Options{})

	got, err := qt.Adopt(inst, qt.MustParseRange("4.8"))
	require.NoError(t, err)
	assert.Same(t, inst, got)

	_, err = qt.Adopt(inst, qt.MustParseRange(">=5"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, qt.ErrVersionMismatch))
}
