package builder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/qobs-build/qtkit/internal/graph"
	"github.com/qobs-build/qtkit/internal/index"
	"github.com/qobs-build/qtkit/internal/msg"
	"github.com/qobs-build/qtkit/internal/qt"
	"github.com/qobs-build/qtkit/internal/toolchain"
	"go.trai.ch/zerr"
)

var (
	errCantRunLib       = errors.New("can't run a library target (target.lib is true)")
	errUnknownGenerator = errors.New("unknown generator")
)

const (
	GeneratorNinja = "ninja"
	GeneratorQobs  = "qobs"
)

// Builder builds the package of one directory
type Builder struct {
	cfg     *Config
	basedir string
	env     ConfigEnv

	// Syntax selects the tree-sitter classifier instead of the Q_OBJECT marker scan
	Syntax bool

	// Jobs limits parallel steps of the qobs generator, 0 means one per CPU
	Jobs int

	// Index resolves @name prefixes. When nil the user's index is loaded on demand.
	Index *index.Index
}

func NewBuilderInDirectory(path string) (*Builder, error) {
	var err error
	path, err = filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	env := NewConfigEnv(path)
	cfg, err := ParseConfigFromFile(filepath.Join(path, ConfigFilename), env)
	if err != nil {
		return nil, err
	}
	return &Builder{cfg: cfg, basedir: path, env: env}, nil
}

func (b *Builder) Config() *Config { return b.cfg }
func (b *Builder) Dir() string     { return b.basedir }

func (b *Builder) buildDir() string { return filepath.Join(b.basedir, "build") }

// outputName returns the desired artifact name for this package (e.g., `my_app.exe` or `libmy_lib.a`)
func (b *Builder) outputName(t toolchain.Target) string {
	pkgName := b.cfg.Package.Name
	if b.cfg.Target.Lib {
		return t.LibnameStatic(pkgName)
	}
	return t.Exe(pkgName)
}

func (b *Builder) index() *index.Index {
	if b.Index != nil {
		return b.Index
	}
	idx, err := index.LoadDefault()
	if err != nil {
		msg.Debug("prefix index unavailable: %v", err)
		return nil
	}
	b.Index = idx
	return idx
}

func (b *Builder) collectFiles(patterns []string, stripFilename bool) ([]string, error) {
	var files []string
	var stripmap map[string]struct{}
	if stripFilename {
		stripmap = map[string]struct{}{}
	}
	fsys := os.DirFS(b.basedir)

	var globparams []doublestar.GlobOption
	if !stripFilename {
		globparams = append(globparams, doublestar.WithFilesOnly())
	}

	for _, pat := range patterns {
		if filepath.IsAbs(pat) {
			files = append(files, filepath.Clean(pat))
			continue
		}
		matches, err := doublestar.Glob(fsys, pat, globparams...)
		if err != nil {
			return nil, err
		}
		for _, match := range matches {
			absPath := filepath.Join(b.basedir, match)
			if stripFilename {
				if stat, err := os.Stat(absPath); err == nil && !stat.IsDir() {
					stripmap[filepath.Dir(absPath)] = struct{}{} // this is a file, we need directories
				} else {
					stripmap[absPath] = struct{}{}
				}
			} else {
				files = append(files, absPath)
			}
		}
	}

	if stripFilename {
		for dir := range stripmap {
			files = append(files, dir)
		}
		slices.Sort(files)
	}

	return files, nil
}

func (b *Builder) makeCflags(profile string) ([]string, error) {
	if prof, ok := b.cfg.Profile[profile]; ok {
		var cflags []string
		optLevel := prof.Opt()
		if optLevel != "" {
			cflags = append(cflags, "-O"+optLevel)
		}
		return cflags, nil
	}
	return nil, fmt.Errorf("unknown profile %q, known profiles: %s", profile, strings.Join(b.cfg.Profiles(), ", "))
}

// Toolkit detects the host compilers. The [qt] include-path entries are searched before the
// compiler defaults; the parents of the include directories are where Qt is looked for when
// no prefix is configured, so indexed prefixes are tried last.
func (b *Builder) Toolkit() (*toolchain.Toolkit, error) {
	tk, err := toolchain.Detect()
	if err != nil {
		return nil, err
	}
	b.extendIncludePath(tk)
	return tk, nil
}

func (b *Builder) extendIncludePath(tk *toolchain.Toolkit) {
	var dirs []string
	for _, dir := range b.cfg.Qt.IncludePath {
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(b.basedir, dir)
		}
		dirs = append(dirs, dir)
	}
	dirs = append(dirs, tk.IncludePath...)
	if b.cfg.Qt.Prefix == "" {
		if idx := b.index(); idx != nil {
			dirs = append(dirs, idx.IncludeDirs()...)
		}
	}
	tk.IncludePath = dirs
}

// qtOptions translates the [qt] section, fetching the prefix when it is a git source
func (b *Builder) qtOptions() (qt.Options, error) {
	q := b.cfg.Qt
	opts := qt.Options{SourceDir: b.basedir}

	if q.Prefix != "" {
		var idx *index.Index
		if strings.HasPrefix(q.Prefix, indexPrefix) {
			idx = b.index()
		}
		prefix, err := resolvePrefix(q.Prefix, filepath.Join(b.buildDir(), "_deps", "qt"), idx)
		if err != nil {
			return opts, fmt.Errorf("failed to resolve qt prefix: %w", err)
		}
		opts.Prefix = prefix
	}

	r, err := qt.ParseRange(q.Version)
	if err != nil {
		return opts, err
	}
	opts.Version = r

	if q.VersionEffective != "" {
		v, err := qt.ParseVersion(q.VersionEffective)
		if err != nil {
			return opts, err
		}
		opts.VersionEffective = &v
	}
	if q.PreferShared != nil {
		opts.PreferShared = *q.PreferShared
	}

	for name, path := range map[string]string{
		qt.ToolMoc:   q.Moc,
		qt.ToolUic:   q.Uic,
		qt.ToolRcc:   q.Rcc,
		qt.ToolQmake: q.Qmake,
	} {
		if path == "" {
			continue
		}
		if opts.Tools == nil {
			opts.Tools = make(map[string]string)
		}
		opts.Tools[name] = path
	}
	return opts, nil
}

// Installation finds the Qt the package asks for
func (b *Builder) Installation(ctx context.Context, tk *toolchain.Toolkit) (*qt.Installation, error) {
	opts, err := b.qtOptions()
	if err != nil {
		return nil, err
	}
	return qt.Find(ctx, tk, tk.Target, opts)
}

// Project is a fully assembled build of the package
type Project struct {
	Toolkit *toolchain.Toolkit
	Qt      *qt.Installation
	Libs    *qt.Libraries
	Engine  *qt.Engine
	Graph   *graph.Graph
	Target  *graph.Linker
}

func (b *Builder) classifier() qt.Classifier {
	if b.Syntax {
		return qt.NewSyntaxClassifier(string(qt.QObject.Token))
	}
	return qt.QObject
}

// Assemble builds the graph of the package: the Qt engine is plugged before the link step is
// created, so moc, uic and rcc steps are discovered while the graph grows.
func (b *Builder) Assemble(tk *toolchain.Toolkit, inst *qt.Installation, profile string) (*Project, error) {
	if err := b.cfg.RunBuildScript(b.env); err != nil {
		return nil, err
	}

	cflags, err := b.makeCflags(profile)
	if err != nil {
		return nil, err
	}

	g := graph.New(graph.Options{SourceDir: b.basedir, BuildDir: b.buildDir(), CC: tk.CC, CXX: tk.CXX})
	engine := qt.NewEngine(inst, b.classifier())
	engine.Plug(g)

	libs := qt.NewLibraries(inst)
	cfg := inst.Config()
	cfg.Flags = append(cflags, b.cfg.Target.Cflags...)
	for _, name := range b.cfg.Qt.Libraries {
		lib, err := libs.Config(name, b.cfg.Qt.Static, !b.cfg.Target.Lib)
		if err != nil {
			return nil, err
		}
		cfg = cfg.Merge(lib)
	}

	// own include paths, plus their build mirrors where uic writes headers
	headers, err := b.collectFiles(b.cfg.Target.Headers, true)
	if err != nil {
		return nil, fmt.Errorf("failed to collect headers: %w", err)
	}
	for _, dir := range headers {
		cfg.AddIncludePath(dir, g.BuildPath(dir))
	}

	for define, v := range b.cfg.Target.Defines {
		cfg.Define(define, v)
	}
	for _, lib := range b.cfg.Target.Links {
		cfg.AddLibrary("-l" + lib)
	}

	var sources []*graph.Node
	for _, set := range []struct {
		what     string
		patterns []string
	}{
		{"sources", b.cfg.Target.Sources},
		{"forms", b.cfg.Target.Forms},
		{"resources", b.cfg.Target.Resources},
	} {
		files, err := b.collectFiles(set.patterns, false)
		if err != nil {
			return nil, fmt.Errorf("failed to collect %s: %w", set.what, err)
		}
		for _, f := range files {
			if set.what == "forms" {
				cfg.AddIncludePath(g.BuildPath(filepath.Dir(f)))
			}
			sources = append(sources, g.Node(f))
		}
	}

	target, err := g.Link(b.outputName(tk.Target), sources, cfg, b.cfg.Target.Lib)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "assembling build graph"), "package", b.cfg.Package.Name)
	}

	return &Project{
		Toolkit: tk,
		Qt:      inst,
		Libs:    libs,
		Engine:  engine,
		Graph:   g,
		Target:  target,
	}, nil
}

// Prepare detects the toolkit, finds Qt and assembles the graph
func (b *Builder) Prepare(ctx context.Context, profile string) (*Project, error) {
	tk, err := b.Toolkit()
	if err != nil {
		return nil, err
	}
	inst, err := b.Installation(ctx, tk)
	if err != nil {
		return nil, err
	}
	msg.Debug("using %s", inst)
	return b.Assemble(tk, inst, profile)
}

// Build prepares the project and then invokes the generator (or builder)
func (b *Builder) Build(ctx context.Context, profile, generator string) (*Project, error) {
	if generator != GeneratorQobs && generator != GeneratorNinja {
		return nil, zerr.With(zerr.Wrap(errUnknownGenerator, generator), "generator", generator)
	}

	p, err := b.Prepare(ctx, profile)
	if err != nil {
		return nil, err
	}

	switch generator {
	case GeneratorNinja:
		if err := os.MkdirAll(b.buildDir(), 0755); err != nil {
			return nil, err
		}
		buildFile := filepath.Join(b.buildDir(), graph.NinjaFilename)
		if err := os.WriteFile(buildFile, []byte(p.Graph.Ninja()), 0644); err != nil {
			return nil, err
		}
		return p, p.Graph.InvokeNinja()
	default:
		return p, b.run(ctx, p.Graph)
	}
}

// runner loads the state of the previous build and replays its dynamic sources into g
func (b *Builder) runner(g *graph.Graph) (*graph.Runner, error) {
	r := graph.NewRunner(g)
	if err := r.LoadState(); err != nil {
		msg.Warn("ignoring unreadable build state: %v", err)
	}
	if err := r.RestoreDynamic(); err != nil {
		return nil, err
	}
	r.SetJobs(b.Jobs)
	return r, nil
}

func (b *Builder) run(ctx context.Context, g *graph.Graph) error {
	r, err := b.runner(g)
	if err != nil {
		return err
	}
	return r.Run(ctx)
}

func (b *Builder) BuildAndRun(ctx context.Context, args []string, profile, generator string) error {
	if b.cfg.Target.Lib {
		return errCantRunLib
	}

	p, err := b.Build(ctx, profile, generator)
	if err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, p.Target.Output().Path(), args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin
	return cmd.Run()
}
