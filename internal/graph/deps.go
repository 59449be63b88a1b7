package graph

import (
	"bufio"
	"os"
	"path/filepath"
	"regexp"
)

// HeaderDep is a header reached from a compiled source. Local headers live outside every
// system include directory.
type HeaderDep struct {
	Node  *Node
	Local bool
}

var includeRegex = regexp.MustCompile(`^\s*#\s*include\s*([<"])([^>"]+)[>"]`)

type include struct {
	name   string
	quoted bool
}

func readIncludes(path string) ([]include, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var res []include
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		m := includeRegex.FindSubmatch(scanner.Bytes())
		if m == nil {
			continue
		}
		res = append(res, include{name: string(m[2]), quoted: m[1][0] == '"'})
	}
	return res, scanner.Err()
}

func (g *Graph) exists(path string) bool {
	if n, ok := g.nodes[path]; ok && n.Generated() {
		return true
	}
	stat, err := os.Stat(path)
	return err == nil && !stat.IsDir()
}

// resolveInclude finds the file an #include refers to. Quoted includes try the including
// file's directory and its build-tree mirror first.
func (g *Graph) resolveInclude(from string, inc include, cfg CompileConfig) (string, bool) {
	var dirs []string
	if inc.quoted {
		dir := filepath.Dir(from)
		dirs = append(dirs, dir, g.BuildPath(dir))
	}
	dirs = append(dirs, cfg.IncludePath...)
	dirs = append(dirs, cfg.SystemIncludePath...)
	for _, dir := range dirs {
		candidate := filepath.Join(g.abs(dir), inc.name)
		if g.exists(candidate) {
			return candidate, true
		}
	}
	return "", false
}

// scanHeaders computes the transitive header dependencies of src. Unresolvable includes
// are skipped, and system headers are not followed.
func (g *Graph) scanHeaders(src string, cfg CompileConfig) ([]HeaderDep, error) {
	var res []HeaderDep
	sysDirs := g.absAll(cfg.SystemIncludePath)
	seen := map[string]bool{src: true}
	queue := []string{src}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		incs, err := readIncludes(cur)
		if err != nil {
			if os.IsNotExist(err) {
				continue // generated, not produced yet
			}
			return nil, err
		}
		for _, inc := range incs {
			path, ok := g.resolveInclude(cur, inc, cfg)
			if !ok || seen[path] {
				continue
			}
			seen[path] = true
			local := !IsUnder(path, sysDirs)
			res = append(res, HeaderDep{Node: g.Node(path), Local: local})
			if local {
				queue = append(queue, path)
			}
		}
	}
	return res, nil
}
