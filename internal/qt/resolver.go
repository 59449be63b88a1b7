// Package qt finds a Qt 4 installation, binds its libraries and plugs moc, uic and rcc into
// the build graph.
package qt

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/qobs-build/qtkit/internal/graph"
	"github.com/qobs-build/qtkit/internal/msg"
	"github.com/qobs-build/qtkit/internal/toolchain"
	"go.trai.ch/zerr"
)

const (
	marker       = "Qt/qglobal.h"
	versionProbe = "#include <Qt/qglobal.h>\nQT_VERSION"
)

// includeSubdirs are the layouts in which a prefix may hold the Qt headers
var includeSubdirs = []string{"include", filepath.Join("include", "qt4")}

// Tool names, see Installation.Tool
const (
	ToolMoc   = "moc"
	ToolUic   = "uic"
	ToolRcc   = "rcc"
	ToolQmake = "qmake"
)

// Options drives Find
type Options struct {
	// Prefix is where to look for Qt, a directory holding include/Qt/qglobal.h. Relative
	// prefixes are rooted in SourceDir. When empty, the parents of the toolkit include
	// directories are tried.
	Prefix    string
	SourceDir string
	// Version is the requested range
	Version Range
	// VersionEffective skips the preprocessor probe
	VersionEffective *Version
	// PreferShared makes library bindings default to dynamic linking
	PreferShared bool
	// Tools overrides the path of moc, uic, rcc or qmake
	Tools map[string]string
}

// Installation is a resolved Qt. It is never modified after Find returns it.
type Installation struct {
	Prefix       string            `yaml:"prefix"`
	Version      Version           `yaml:"version"`
	IncludeDir   string            `yaml:"include_dir"`
	PreferShared bool              `yaml:"prefer_shared"`
	Tools        map[string]string `yaml:"tools"`
	target       toolchain.Target
	config       graph.CompileConfig
}

// Config is the base compile configuration: the Qt include directory as a system include
func (i *Installation) Config() graph.CompileConfig { return i.config.Clone() }

func (i *Installation) SystemIncludePath() []string {
	return slices.Clone(i.config.SystemIncludePath)
}

func (i *Installation) Target() toolchain.Target { return i.target }

// Tool returns the path of a Qt tool, <prefix>/bin/<name> unless overridden
func (i *Installation) Tool(name string) string { return i.Tools[name] }

func (i *Installation) String() string {
	return fmt.Sprintf("Qt %s (prefix = %s)", i.Version, i.Prefix)
}

// candidatePrefixes lists the directories Find looks into
func candidatePrefixes(target toolchain.Target, opts Options) []string {
	var res []string
	if opts.Prefix != "" {
		res = []string{opts.Prefix}
	} else {
		for _, dir := range target.IncludePath {
			dir = filepath.Clean(dir)
			for _, sub := range includeSubdirs {
				if strings.HasSuffix(dir, string(filepath.Separator)+sub) {
					res = append(res, strings.TrimSuffix(dir, string(filepath.Separator)+sub))
				}
			}
		}
	}
	var uniq []string
	for _, p := range res {
		if !filepath.IsAbs(p) {
			p = filepath.Join(opts.SourceDir, p)
		}
		if !slices.Contains(uniq, p) {
			uniq = append(uniq, p)
		}
	}
	return uniq
}

// probeVersion asks the preprocessor for QT_VERSION
func probeVersion(ctx context.Context, pp Preprocessor, cfg graph.CompileConfig) (Version, error) {
	out, err := pp.Preprocess(ctx, versionProbe, cfg)
	if err != nil {
		return Version{}, zerr.Wrap(ErrResolutionMiss, err.Error())
	}

	lines := strings.Split(strings.TrimSpace(out), "\n")
	last := strings.TrimSpace(lines[len(lines)-1])
	last = strings.TrimSuffix(strings.ToLower(last), "u")
	n, err := strconv.ParseUint(strings.TrimPrefix(last, "0x"), 16, 32)
	if err != nil {
		return Version{}, zerr.With(zerr.Wrap(ErrResolutionMiss, "QT_VERSION did not expand to a number"), "output", last)
	}
	return Unpack(n), nil
}

func tools(target toolchain.Target, prefix string, overrides map[string]string) map[string]string {
	res := make(map[string]string, 4)
	for _, name := range []string{ToolMoc, ToolUic, ToolRcc, ToolQmake} {
		if p, ok := overrides[name]; ok && p != "" {
			res[name] = p
		} else {
			res[name] = filepath.Join(prefix, "bin", target.Exe(name))
		}
	}
	return res
}

// Find locates the first Qt installation whose version fits opts.Version. Candidates are
// tried in order and the search stops at the first fit. When nothing fits the error lists
// every prefix searched and every version that was found but rejected.
func Find(ctx context.Context, pp Preprocessor, target toolchain.Target, opts Options) (*Installation, error) {
	prefixes := candidatePrefixes(target, opts)
	tokens := make([]string, len(includeSubdirs))
	for i, sub := range includeSubdirs {
		tokens[i] = filepath.Join(sub, marker)
	}

	var misses []Version
	for _, m := range SearchAll(tokens, prefixes) {
		includeDir := filepath.Join(m.Dir, filepath.Dir(filepath.Dir(m.Name)))
		var cfg graph.CompileConfig
		cfg.AddSystemIncludePath(includeDir)

		var version Version
		if opts.VersionEffective != nil {
			version = *opts.VersionEffective
		} else {
			v, err := probeVersion(ctx, pp, cfg)
			if err != nil {
				msg.Debug("skipping %s: %v", m.Dir, err)
				continue
			}
			version = v
		}

		if !opts.Version.Contains(version) {
			msg.Debug("%v", zerr.With(zerr.Wrap(ErrVersionMismatch, "Qt "+version.String()+" at "+m.Dir), "requested", opts.Version.String()))
			misses = append(misses, version)
			continue
		}

		inst := &Installation{
			Prefix:       m.Dir,
			Version:      version,
			IncludeDir:   includeDir,
			PreferShared: opts.PreferShared,
			Tools:        tools(target, m.Dir, opts.Tools),
			target:       target,
			config:       cfg,
		}
		msg.Debug("found %s", inst)
		return inst, nil
	}

	found := make([]string, len(misses))
	for i, v := range misses {
		found[i] = v.String()
	}
	err := zerr.Wrap(ErrQtNotFound, fmt.Sprintf("requested %s, searched %s, found versions: %s",
		opts.Version, strings.Join(prefixes, ", "), strings.Join(found, ", ")))
	err = zerr.With(err, "prefixes", prefixes)
	return nil, zerr.With(err, "found", found)
}

// Adopt reuses an installation that was already resolved, provided it fits r
func Adopt(inst *Installation, r Range) (*Installation, error) {
	if !r.Contains(inst.Version) {
		err := zerr.Wrap(ErrVersionMismatch, fmt.Sprintf("given Qt %s does not fit the requested version %s", inst.Version, r))
		return nil, zerr.With(err, "prefix", inst.Prefix)
	}
	return inst, nil
}
