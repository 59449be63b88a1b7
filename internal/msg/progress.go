package msg

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// Progress prints `[n/total] VERB target` lines for builder steps. Safe for concurrent use.
type Progress struct {
	Total   int
	Indent  int
	W       io.Writer
	mu      sync.Mutex
	current int
}

func NewProgress(total, indent int, w io.Writer) *Progress {
	return &Progress{Total: total, Indent: indent, W: w}
}

// Step records one finished step and prints it
func (p *Progress) Step(verb, target string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current++
	fmt.Fprintf(p.W, "%s[%d/%d] %s %s\n",
		strings.Repeat(" ", p.Indent),
		p.current,
		max(p.Total, p.current),
		color.HiCyanString(verb),
		target,
	)
}

// Done returns the number of steps recorded so far
func (p *Progress) Done() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}
