package graph

import (
	"maps"
	"slices"
)

// CompileConfig is the set of flags a compile or link step is configured with
type CompileConfig struct {
	IncludePath       []string          `yaml:"include_path,omitempty"`
	SystemIncludePath []string          `yaml:"system_include_path,omitempty"`
	Defines           map[string]string `yaml:"defines,omitempty"`
	Libraries         []string          `yaml:"libraries,omitempty"`
	Flags             []string          `yaml:"flags,omitempty"`
}

func (c *CompileConfig) AddIncludePath(dirs ...string) {
	for _, d := range dirs {
		if !slices.Contains(c.IncludePath, d) {
			c.IncludePath = append(c.IncludePath, d)
		}
	}
}

func (c *CompileConfig) AddSystemIncludePath(dirs ...string) {
	for _, d := range dirs {
		if !slices.Contains(c.SystemIncludePath, d) {
			c.SystemIncludePath = append(c.SystemIncludePath, d)
		}
	}
}

func (c *CompileConfig) Define(name, value string) {
	if c.Defines == nil {
		c.Defines = make(map[string]string)
	}
	c.Defines[name] = value
}

func (c *CompileConfig) AddLibrary(libs ...string) {
	for _, l := range libs {
		if !slices.Contains(c.Libraries, l) {
			c.Libraries = append(c.Libraries, l)
		}
	}
}

// Clone returns a deep copy
func (c CompileConfig) Clone() CompileConfig {
	return CompileConfig{
		IncludePath:       slices.Clone(c.IncludePath),
		SystemIncludePath: slices.Clone(c.SystemIncludePath),
		Defines:           maps.Clone(c.Defines),
		Libraries:         slices.Clone(c.Libraries),
		Flags:             slices.Clone(c.Flags),
	}
}

// Merge returns a copy of c extended with o. Defines in o win.
func (c CompileConfig) Merge(o CompileConfig) CompileConfig {
	res := c.Clone()
	res.AddIncludePath(o.IncludePath...)
	res.AddSystemIncludePath(o.SystemIncludePath...)
	for k, v := range o.Defines {
		res.Define(k, v)
	}
	res.AddLibrary(o.Libraries...)
	res.Flags = append(res.Flags, o.Flags...)
	return res
}

// CompileArgs renders the preprocessor and compiler flags in a stable order
func (c CompileConfig) CompileArgs() []string {
	args := slices.Clone(c.Flags)
	for _, d := range c.IncludePath {
		args = append(args, "-I"+d)
	}
	for _, d := range c.SystemIncludePath {
		args = append(args, "-isystem", d)
	}
	for _, name := range slices.Sorted(maps.Keys(c.Defines)) {
		if v := c.Defines[name]; v != "" {
			args = append(args, "-D"+name+"="+v)
		} else {
			args = append(args, "-D"+name)
		}
	}
	return args
}
