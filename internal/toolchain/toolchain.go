// Package toolchain describes the C/C++ compiler qtkit builds with and the platform it targets.
package toolchain

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"go.trai.ch/zerr"
)

var (
	ErrNoCompiler       = zerr.New("no C/C++ compiler found")
	ErrPreprocessFailed = zerr.New("preprocessor failed")
)

// Flavor is the command-line dialect of a compiler
type Flavor string

const (
	GNU   Flavor = "gnu"
	Clang Flavor = "clang"
	MSVC  Flavor = "msvc"
)

// TODO: zig cc
var (
	commonCCompilers   = []string{"clang", "gcc", "icx", "icc", "tcc", "cl"}
	commonCxxCompilers = []string{"clang++", "g++", "clang", "gcc", "icpx", "icx", "icpc", "icc", "cl"}
)

// Target is what library naming and header lookup depend on
type Target struct {
	OS     string `yaml:"os"`
	Arch   string `yaml:"arch"`
	Flavor Flavor `yaml:"flavor"`
	// MSVCVersion is the major Visual C++ version, 9 for VS2008, 10 for VS2010. Zero
	// outside of MSVC.
	MSVCVersion int `yaml:"msvc_version,omitempty"`
	// IncludePath lists the directories the compiler searches for system headers
	IncludePath []string `yaml:"include_path"`
}

func (t Target) Windows() bool { return t.OS == "windows" }

// Toolkit is a detected compiler pair plus its target
type Toolkit struct {
	Target
	CC  string `yaml:"cc"`
	CXX string `yaml:"cxx"`
}

// findCompiler attempts to find a suitable C or C++ compiler on the system
func findCompiler(needCxx bool) string {
	cc := os.Getenv("CC")
	cxx := os.Getenv("CXX")

	if needCxx && cxx != "" {
		return cxx
	}
	if !needCxx && cc != "" {
		return cc
	}

	if cxx != "" {
		return cxx
	}
	if cc != "" {
		return cc
	}

	var compilersToTry []string
	if needCxx {
		compilersToTry = commonCxxCompilers
	} else {
		compilersToTry = commonCCompilers
	}

	for _, compiler := range compilersToTry {
		path, err := exec.LookPath(compiler)
		if err == nil {
			return path
		}
	}

	return ""
}

// FlavorOf guesses the dialect from the compiler executable name
func FlavorOf(compiler string) Flavor {
	base := strings.ToLower(filepath.Base(compiler))
	base = strings.TrimSuffix(base, ".exe")
	switch {
	case base == "cl" || base == "clang-cl":
		return MSVC
	case strings.Contains(base, "clang"):
		return Clang
	default:
		return GNU
	}
}

// DefaultIncludePath is the system header search path of a host compiler: CPATH entries
// first, then the usual Unix locations. On Windows the INCLUDE variable is used instead.
func DefaultIncludePath(goos string) []string {
	var res []string
	if goos == "windows" {
		return filepath.SplitList(os.Getenv("INCLUDE"))
	}
	for _, p := range filepath.SplitList(os.Getenv("CPATH")) {
		if p != "" {
			res = append(res, p)
		}
	}
	return append(res, "/usr/local/include", "/usr/include")
}

// msvcVersion reads the major version of the active Visual Studio environment
func msvcVersion() int {
	v := os.Getenv("VisualStudioVersion")
	major, _, _ := strings.Cut(v, ".")
	n, err := strconv.Atoi(major)
	if err != nil {
		return 0
	}
	return n
}

// Detect finds the host compilers and describes the host as the target
func Detect() (*Toolkit, error) {
	cxx := findCompiler(true)
	if cxx == "" {
		return nil, ErrNoCompiler
	}
	cc := findCompiler(false)
	if cc == "" {
		cc = cxx
	}

	tk := &Toolkit{
		CC:  cc,
		CXX: cxx,
		Target: Target{
			OS:          runtime.GOOS,
			Arch:        runtime.GOARCH,
			Flavor:      FlavorOf(cxx),
			IncludePath: DefaultIncludePath(runtime.GOOS),
		},
	}
	if tk.Flavor == MSVC {
		tk.MSVCVersion = msvcVersion()
	}
	return tk, nil
}

// LibnameStatic is the filename of the static library called name
func (t Target) LibnameStatic(name string) string {
	if t.Flavor == MSVC {
		return name + ".lib"
	}
	return "lib" + name + ".a"
}

// LibnameDyn is the filename of the shared library called name. MSVC links against the
// import library.
func (t Target) LibnameDyn(name, prefix string) string {
	switch {
	case t.Flavor == MSVC:
		return name + ".lib"
	case t.OS == "windows":
		return prefix + name + ".dll"
	case t.OS == "darwin":
		return prefix + name + ".dylib"
	default:
		return prefix + name + ".so"
	}
}

// Exe appends the platform executable suffix
func (t Target) Exe(name string) string {
	if t.Windows() {
		return name + ".exe"
	}
	return name
}
