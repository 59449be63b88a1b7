package builder

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEnv(dir string) ConfigEnv {
	return ConfigEnv{
		TargetOS:   "linux",
		TargetArch: "amd64",
		Environ:    map[string]string{"QTDIR": "/opt/qt-4.8"},
		basedir:    dir,
	}
}

const sampleConfig = `
[package]
name = "viewer"

[qt]
prefix = '{{ environ["QTDIR"] }}'
version = ">= 4.7, < 5"
libraries = ["core", "gui"]
moc = "/usr/bin/moc-qt4"

[qt.'target_os == "plan9"']
libraries = ["network"]

[qt.'target_os == "linux"']
prefer-shared = true

[target]
sources = ["src/**/*.cc"]
headers = ["src/**/*.hh"]
forms = ["forms/*.ui"]
resources = ["viewer.qrc"]

[target.'target_arch == "amd64"']
defines = { VIEWER_64 = "1" }
links = ["pthread"]

[profile.small]
opt-level = "s"

[profile.fast]
opt-level = 2
`

func TestParseConfig(t *testing.T) {
	t.Parallel()

	cfg, err := ParseConfig(strings.NewReader(sampleConfig), testEnv(t.TempDir()))
	require.NoError(t, err)

	assert.Equal(t, "viewer", cfg.Package.Name)
	assert.Equal(t, "/opt/qt-4.8", cfg.Qt.Prefix)
	assert.Equal(t, ">= 4.7, < 5", cfg.Qt.Version)
	assert.Equal(t, []string{"core", "gui"}, cfg.Qt.Libraries)
	assert.Equal(t, "/usr/bin/moc-qt4", cfg.Qt.Moc)
	require.NotNil(t, cfg.Qt.PreferShared)
	assert.True(t, *cfg.Qt.PreferShared)
	assert.Nil(t, cfg.Qt.Static)

	assert.Equal(t, []string{"forms/*.ui"}, cfg.Target.Forms)
	assert.Equal(t, []string{"viewer.qrc"}, cfg.Target.Resources)
	assert.Equal(t, map[string]string{"VIEWER_64": "1"}, cfg.Target.Defines)
	assert.Equal(t, []string{"pthread"}, cfg.Target.Links)

	assert.Equal(t, []string{"debug", "fast", "release", "small"}, cfg.Profiles())
}

func TestMakeCflags(t *testing.T) {
	t.Parallel()

	cfg, err := ParseConfig(strings.NewReader(sampleConfig), testEnv(t.TempDir()))
	require.NoError(t, err)
	b := &Builder{cfg: cfg}

	tests := []struct {
		profile string
		want    []string
	}{
		{"release", []string{"-O3"}},
		{"debug", nil},
		{"small", []string{"-Os"}},
		{"fast", []string{"-O2"}},
	}
	for _, tt := range tests {
		t.Run(tt.profile, func(t *testing.T) {
			got, err := b.makeCflags(tt.profile)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err = b.makeCflags("nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "known profiles: debug, fast, release, small")
}

func TestParseConfigEmpty(t *testing.T) {
	t.Parallel()

	cfg, err := ParseConfig(strings.NewReader(""), testEnv(t.TempDir()))
	require.NoError(t, err)
	assert.Equal(t, []string{"debug", "release"}, cfg.Profiles())
	assert.Empty(t, cfg.Qt.Libraries)
}

func TestParseConfigErrors(t *testing.T) {
	t.Parallel()

	_, err := ParseConfig(strings.NewReader("[package\nname="), testEnv(t.TempDir()))
	require.Error(t, err)

	_, err = ParseConfig(strings.NewReader(`[qt]
prefix = "{{ no_such_variable }}"
`), testEnv(t.TempDir()))
	require.Error(t, err)
}

func TestReadFileExpression(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "QT_VERSION"), []byte("4.8.6\n"), 0644))

	cfg, err := ParseConfig(strings.NewReader(`[qt]
version-effective = '{{ ReadFile("QT_VERSION") }}'
`), testEnv(dir))
	require.NoError(t, err)
	assert.Equal(t, "4.8.6", cfg.Qt.VersionEffective)

	_, err = testEnv(dir).ReadFile("../outside")
	require.Error(t, err)
}

func TestRunBuildScript(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	env := testEnv(dir)

	cfg := Config{Package: PackageSection{Name: "viewer", Build: `target_os == "linux"`}}
	require.NoError(t, cfg.RunBuildScript(env))

	cfg.Package.Build = `Exists("qt.conf")`
	require.Error(t, cfg.RunBuildScript(env))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "qt.conf"), nil, 0644))
	require.NoError(t, cfg.RunBuildScript(env))
}

func TestSectionMerge(t *testing.T) {
	t.Parallel()

	yes := true
	qt := QtSection{Prefix: "/a", Moc: "moc", Libraries: []string{"core"}}
	qt.merge(QtSection{Moc: "moc-qt4", Libraries: []string{"gui"}, Static: &yes})

	assert.Equal(t, "/a", qt.Prefix)
	assert.Equal(t, "moc-qt4", qt.Moc)
	assert.Equal(t, []string{"core", "gui"}, qt.Libraries)
	require.NotNil(t, qt.Static)
	assert.True(t, *qt.Static)
	assert.Nil(t, qt.PreferShared)

	target := TargetSection{Sources: []string{"a.cc"}, Defines: map[string]string{"A": "1"}}
	target.merge(TargetSection{Lib: true, Sources: []string{"b.cc"}, Defines: map[string]string{"A": "2", "B": "1"}})

	assert.True(t, target.Lib)
	assert.Equal(t, []string{"a.cc", "b.cc"}, target.Sources)
	assert.Equal(t, map[string]string{"A": "2", "B": "1"}, target.Defines)
}

func TestConditionalSectionOrder(t *testing.T) {
	t.Parallel()

	// both conditions hold; the later key wins whatever the table order
	cfg, err := ParseConfig(strings.NewReader(`
[qt.'target_os == "linux"']
moc = "moc-linux"
libraries = ["b"]

[qt.'target_arch == "amd64"']
moc = "moc-amd64"
libraries = ["a"]

[qt.'target_os == "windows"']
moc = "moc.exe"
`), testEnv(t.TempDir()))
	require.NoError(t, err)
	assert.Equal(t, "moc-linux", cfg.Qt.Moc)
	assert.Equal(t, []string{"a", "b"}, cfg.Qt.Libraries)
}

func TestExpandExpressions(t *testing.T) {
	t.Parallel()

	env := testEnv(t.TempDir())
	got, err := expand(`{{ target_os }}-{{ target_arch }}/{{environ["QTDIR"]}}`, env)
	require.NoError(t, err)
	assert.Equal(t, "linux-amd64//opt/qt-4.8", got)

	got, err = expand("no expressions", env)
	require.NoError(t, err)
	assert.Equal(t, "no expressions", got)

	_, err = expand("{{ target_os }} {{ missing }}", env)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"missing"`)
}
