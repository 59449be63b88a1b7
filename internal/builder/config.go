package builder

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"slices"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/pelletier/go-toml/v2"
)

const ConfigFilename = "qtkit.toml"

var defaultProfiles = map[string]ProfileSection{
	"release": {
		OptLevel: 3,
	},
	"debug": {
		OptLevel: "", // no -O
	},
}

type Config struct {
	Package PackageSection            `toml:"package"`
	Qt      QtSection                 `toml:"qt"`
	Target  TargetSection             `toml:"target"`
	Profile map[string]ProfileSection `toml:"profile"`
}

func (c Config) Profiles() []string {
	return slices.Sorted(maps.Keys(c.Profile))
}

// ProfileSection defines the [profile.*] section
type ProfileSection struct {
	// OptLevel is an integer or a string such as "s"
	OptLevel any `toml:"opt-level"`
}

// Opt is the -O suffix of the profile, empty for none
func (p ProfileSection) Opt() string {
	switch v := p.OptLevel.(type) {
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case string:
		return v
	default:
		return ""
	}
}

// PackageSection defines the [package] section
type PackageSection struct {
	Name        string   `toml:"name"`
	Description string   `toml:"description"`
	Authors     []string `toml:"authors"`

	// Build is an expression that must evaluate to true before the package is built
	Build string `toml:"build"`
}

// QtSection defines the [qt(.*)] section
type QtSection struct {
	// Prefix is a directory, a git source (git:, gh:, ...) or @name of an indexed prefix
	Prefix           string   `toml:"prefix"`
	Version          string   `toml:"version"`
	VersionEffective string   `toml:"version-effective"`
	PreferShared     *bool    `toml:"prefer-shared"`
	Static           *bool    `toml:"static"`
	Libraries        []string `toml:"libraries"`
	IncludePath      []string `toml:"include-path"`
	Moc              string   `toml:"moc"`
	Uic              string   `toml:"uic"`
	Rcc              string   `toml:"rcc"`
	Qmake            string   `toml:"qmake"`
}

// TargetSection defines the [target(.*)] section
type TargetSection struct {
	Lib       bool              `toml:"lib"`
	Sources   []string          `toml:"sources"`
	Headers   []string          `toml:"headers"`
	Forms     []string          `toml:"forms"`
	Resources []string          `toml:"resources"`
	Defines   map[string]string `toml:"defines"`
	Links     []string          `toml:"links"`
	Cflags    []string          `toml:"cflags"`
}

func (q *QtSection) merge(o QtSection) {
	for dst, src := range map[*string]string{
		&q.Prefix:           o.Prefix,
		&q.Version:          o.Version,
		&q.VersionEffective: o.VersionEffective,
		&q.Moc:              o.Moc,
		&q.Uic:              o.Uic,
		&q.Rcc:              o.Rcc,
		&q.Qmake:            o.Qmake,
	} {
		if src != "" {
			*dst = src
		}
	}
	if o.PreferShared != nil {
		q.PreferShared = o.PreferShared
	}
	if o.Static != nil {
		q.Static = o.Static
	}
	q.Libraries = append(q.Libraries, o.Libraries...)
	q.IncludePath = append(q.IncludePath, o.IncludePath...)
}

func (t *TargetSection) merge(o TargetSection) {
	t.Lib = t.Lib || o.Lib
	t.Sources = append(t.Sources, o.Sources...)
	t.Headers = append(t.Headers, o.Headers...)
	t.Forms = append(t.Forms, o.Forms...)
	t.Resources = append(t.Resources, o.Resources...)
	t.Links = append(t.Links, o.Links...)
	t.Cflags = append(t.Cflags, o.Cflags...)
	if len(o.Defines) > 0 {
		if t.Defines == nil {
			t.Defines = make(map[string]string, len(o.Defines))
		}
		maps.Copy(t.Defines, o.Defines)
	}
}

// conditional is a section that conditional sub-tables can be merged into
type conditional[T any] interface {
	*T
	merge(T)
}

// decodeTable re-encodes a raw TOML value and decodes it into dst
func decodeTable(data, dst any) error {
	b, err := toml.Marshal(data)
	if err != nil {
		return err
	}
	return toml.Unmarshal(b, dst)
}

func eval(expression string, env ConfigEnv) (any, error) {
	program, err := expr.Compile(expression, expr.Env(env))
	if err != nil {
		return nil, err
	}
	return expr.Run(program, env)
}

// unmarshalConditionalSection parses a section, then merges every sub-table whose key is an
// expression evaluating to true, e.g. [qt.'target_os == "windows"']. Sub-tables merge in
// key order.
func unmarshalConditionalSection[T any, P conditional[T]](rawCfg map[string]any, name string, dst P, env ConfigEnv) error {
	data, ok := rawCfg[name]
	if !ok {
		return nil
	}
	section, ok := data.(map[string]any)
	if !ok {
		return fmt.Errorf("invalid [%s] section format: expected a table", name)
	}

	base := make(map[string]any)
	var conditions []string
	for key, val := range section {
		if _, table := val.(map[string]any); table {
			if _, err := expr.Compile(key, expr.Env(env)); err == nil {
				conditions = append(conditions, key)
				continue
			}
		}
		base[key] = val
	}
	if err := decodeTable(base, dst); err != nil {
		return fmt.Errorf("failed to parse [%s] section: %w", name, err)
	}

	slices.Sort(conditions)
	for _, cond := range conditions {
		result, err := eval(cond, env)
		if err != nil {
			return fmt.Errorf("failed to evaluate [%s.%q]: %w", name, cond, err)
		}
		if matched, ok := result.(bool); !ok || !matched {
			continue
		}
		var extra T
		if err := decodeTable(section[cond], &extra); err != nil {
			return fmt.Errorf("failed to parse conditional section [%s.%q]: %w", name, cond, err)
		}
		dst.merge(extra)
	}
	return nil
}

var exprRegex = regexp.MustCompile(`\{\{(.+?)\}\}`)

// expand replaces every {{ ... }} expression of s with its value
func expand(s string, env ConfigEnv) (string, error) {
	var failed error
	out := exprRegex.ReplaceAllStringFunc(s, func(m string) string {
		expression := strings.TrimSpace(m[2 : len(m)-2])
		v, err := eval(expression, env)
		if err != nil {
			if failed == nil {
				failed = fmt.Errorf("failed to evaluate %q: %w", expression, err)
			}
			return m
		}
		return fmt.Sprint(v)
	})
	return out, failed
}

// expandAll expands the strings of parsed TOML data in place
func expandAll(data any, env ConfigEnv) (any, error) {
	var err error
	switch v := data.(type) {
	case string:
		return expand(v, env)
	case map[string]any:
		for key, val := range v {
			if v[key], err = expandAll(val, env); err != nil {
				return nil, err
			}
		}
	case []any:
		for i, item := range v {
			if v[i], err = expandAll(item, env); err != nil {
				return nil, err
			}
		}
	}
	return data, nil
}

func ParseConfig(rdr io.Reader, env ConfigEnv) (*Config, error) {
	var raw map[string]any
	if err := toml.NewDecoder(rdr).Decode(&raw); err != nil {
		if derr, ok := err.(*toml.DecodeError); ok {
			return nil, errors.New(derr.String())
		}
		return nil, err
	}
	if _, err := expandAll(raw, env); err != nil {
		return nil, fmt.Errorf("error processing expressions in config: %w", err)
	}

	cfg := &Config{Profile: maps.Clone(defaultProfiles)}
	if data, ok := raw["package"]; ok {
		if err := decodeTable(data, &cfg.Package); err != nil {
			return nil, fmt.Errorf("failed to parse [package] section: %w", err)
		}
	}
	if data, ok := raw["profile"]; ok {
		if err := decodeTable(data, &cfg.Profile); err != nil {
			return nil, fmt.Errorf("failed to parse [profile] section: %w", err)
		}
	}
	if err := unmarshalConditionalSection(raw, "qt", &cfg.Qt, env); err != nil {
		return nil, err
	}
	if err := unmarshalConditionalSection(raw, "target", &cfg.Target, env); err != nil {
		return nil, err
	}
	for name, prof := range defaultProfiles {
		if _, ok := cfg.Profile[name]; !ok {
			cfg.Profile[name] = prof
		}
	}

	return cfg, nil
}

// ParseConfigFromFile parses and validates a config file from a filepath
func ParseConfigFromFile(path string, env ConfigEnv) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return ParseConfig(bufio.NewReader(f), env)
}

//
// expr-lang helpers
//

func (cfg Config) RunBuildScript(env ConfigEnv) error {
	if cfg.Package.Build == "" {
		return nil
	}

	result, err := eval(cfg.Package.Build, env)
	if err != nil {
		return fmt.Errorf("failed to run build script for package %q: %w", cfg.Package.Name, err)
	}

	if result, ok := result.(bool); !ok || !result {
		return fmt.Errorf("build script for package %q returned false\n%s", cfg.Package.Name, cfg.Package.Build)
	}

	return nil
}

type ConfigEnv struct {
	TargetOS   string            `expr:"target_os"`
	TargetArch string            `expr:"target_arch"`
	Environ    map[string]string `expr:"environ"`
	basedir    string
}

func NewConfigEnv(basedir string) ConfigEnv {
	environ := make(map[string]string)
	for _, e := range os.Environ() {
		if i := strings.Index(e, "="); i >= 0 {
			environ[e[:i]] = e[i+1:]
		}
	}

	return ConfigEnv{
		TargetOS:   runtime.GOOS,
		TargetArch: runtime.GOARCH,
		Environ:    environ,
		basedir:    basedir,
	}
}

// ReadFile returns the content of a file of the package, e.g. {{ ReadFile("VERSION") }}
func (env ConfigEnv) ReadFile(path string) (string, error) {
	fullPath := filepath.Join(env.basedir, path)
	rel, err := filepath.Rel(env.basedir, fullPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("path %q is outside of package directory %q", path, env.basedir)
	}

	data, err := os.ReadFile(fullPath)
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(string(data)), nil
}

// Exists reports whether a path exists, relative paths being rooted in the package directory
func (env ConfigEnv) Exists(path string) bool {
	if !filepath.IsAbs(path) {
		path = filepath.Join(env.basedir, path)
	}
	_, err := os.Stat(path)
	return err == nil
}
