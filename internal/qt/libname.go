package qt

import (
	"fmt"
	"strconv"

	"github.com/qobs-build/qtkit/internal/toolchain"
)

// variants is the build-variant slot of a library name (a debug tag, for instance). Qt 4
// release builds leave it empty.
var variants = []string{""}

func suffixes(t toolchain.Target, v Version, static bool) []string {
	res := []string{"", "-mt"}
	if static {
		res = append(res, "-mt-s", "-s")
	}
	if t.Windows() {
		for i := range res {
			res[i] += strconv.Itoa(v.Major)
		}
	}
	if t.Flavor == toolchain.MSVC {
		vc := fmt.Sprintf("-vc%d0-mt-%d_%d", t.MSVCVersion, v.Major, v.Minor)
		mgw := fmt.Sprintf("-mgw-mt-%d_%d", v.Major, v.Minor)
		res = append([]string{vc}, res...)
		res = append(res, mgw)
	}
	return res
}

// Candidates lists, in preference order, every filename the library called one of names may
// have on t. Shared libraries on Unix targets are tried with their SONAME-style suffixes
// (.so.4, .so.4.8.6, .so.4.8) before the bare filename.
func Candidates(t toolchain.Target, v Version, static bool, names ...string) []string {
	prefix := "lib"
	if t.Windows() {
		prefix = ""
	}

	var res []string
	for _, name := range names {
		for _, suffix := range suffixes(t, v, static) {
			for _, variant := range variants {
				libname := name + variant + suffix
				if static {
					res = append(res, t.LibnameStatic(libname))
					continue
				}
				filename := t.LibnameDyn(libname, prefix)
				if !t.Windows() {
					res = append(res,
						fmt.Sprintf("%s.%d", filename, v.Major),
						fmt.Sprintf("%s.%s", filename, v),
						fmt.Sprintf("%s.%d.%d", filename, v.Major, v.Minor),
					)
				}
				res = append(res, filename)
			}
		}
	}
	return res
}
