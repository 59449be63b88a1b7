package graph

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/qobs-build/qtkit/internal/msg"
	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"
)

const StateFilename = "qtkit_build_state.json"

// BuildState is what the runner remembers about a builder between runs
type BuildState struct {
	Identity string            `json:"identity"`          // digest of Builder.Hash
	Inputs   map[string]string `json:"inputs,omitempty"`  // input path -> content hash
	Dynamic  []DynamicRecord   `json:"dynamic,omitempty"` // dynamic sources to restore
}

// DynamicRecord is the persisted form of a DynamicSource
type DynamicRecord struct {
	Handler string `json:"handler"`
	Path    string `json:"path"`
}

// Identity digests a builder hash into a stable value. Argument boundaries are preserved so
// that ["a b"] and ["a", "b"] differ.
func Identity(hash []string) string {
	d := xxhash.New()
	for _, arg := range hash {
		d.WriteString(strconv.Itoa(len(arg)))
		d.WriteString(":")
		d.WriteString(arg)
	}
	return strconv.FormatUint(d.Sum64(), 16)
}

// Runner executes the builders of a graph, skipping those whose identity and inputs did not
// change since the last successful run
type Runner struct {
	graph     *Graph
	stateFile string
	state     map[string]*BuildState
	hashCache map[string]string
	jobs      int
	progress  *msg.Progress
}

func NewRunner(g *Graph) *Runner {
	return &Runner{
		graph:     g,
		stateFile: filepath.Join(g.BuildDir(), StateFilename),
		state:     make(map[string]*BuildState),
		hashCache: make(map[string]string),
		jobs:      runtime.NumCPU(),
	}
}

// SetJobs limits how many builders run at once
func (r *Runner) SetJobs(n int) {
	if n > 0 {
		r.jobs = n
	}
}

// LoadState reads the state of the previous run, if any
func (r *Runner) LoadState() error {
	f, err := os.Open(r.stateFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // no previous state, that's fine
		}
		return err
	}
	defer f.Close()
	return json.NewDecoder(bufio.NewReader(f)).Decode(&r.state)
}

func (r *Runner) saveState() error {
	if err := os.MkdirAll(filepath.Dir(r.stateFile), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(r.state, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(r.stateFile, data, 0644)
}

func key(b Builder) string {
	return b.Outputs()[0].path
}

// RestoreDynamic replays the dynamic sources recorded for builders of the graph that the
// current construction did not rediscover
func (r *Runner) RestoreDynamic() error {
	for _, b := range r.graph.Builders() {
		sink, ok := b.(DynamicSink)
		if !ok {
			continue
		}
		state := r.state[key(b)]
		if state == nil {
			continue
		}
		for _, rec := range state.Dynamic {
			if err := r.graph.RestoreDynamicSource(sink, rec.Handler, rec.Path); err != nil {
				return err
			}
		}
	}
	return nil
}

// Plan returns the dirty builders grouped by dependency level. Builders in one level never
// depend on each other.
func (r *Runner) Plan() ([][]Builder, error) {
	levels, err := r.levels()
	if err != nil {
		return nil, err
	}

	dirty := make(map[Builder]bool)
	var plan [][]Builder
	for _, level := range levels {
		var todo []Builder
		for _, b := range level {
			isDirty, err := r.isDirty(b, dirty)
			if err != nil {
				return nil, err
			}
			if isDirty {
				dirty[b] = true
				todo = append(todo, b)
			}
		}
		if len(todo) > 0 {
			plan = append(plan, todo)
		}
	}
	return plan, nil
}

// levels sorts builders topologically: a builder's level is one more than the deepest
// builder producing one of its inputs
func (r *Runner) levels() ([][]Builder, error) {
	depth := make(map[Builder]int)
	visiting := make(map[Builder]bool)

	var visit func(b Builder) (int, error)
	visit = func(b Builder) (int, error) {
		if d, ok := depth[b]; ok {
			return d, nil
		}
		if visiting[b] {
			return 0, zerr.With(zerr.Wrap(ErrCycle, key(b)), "builder", b.Name())
		}
		visiting[b] = true
		d := 0
		for _, in := range b.Inputs() {
			if in.builder == nil || in.builder == b {
				continue
			}
			pd, err := visit(in.builder)
			if err != nil {
				return 0, err
			}
			d = max(d, pd+1)
		}
		visiting[b] = false
		depth[b] = d
		return d, nil
	}

	var levels [][]Builder
	for _, b := range r.graph.builders {
		d, err := visit(b)
		if err != nil {
			return nil, err
		}
		for len(levels) <= d {
			levels = append(levels, nil)
		}
		levels[d] = append(levels[d], b)
	}
	return levels, nil
}

// isDirty checks whether b must run: output missing, no state, changed identity, rebuilt
// producer or changed input content
func (r *Runner) isDirty(b Builder, dirty map[Builder]bool) (bool, error) {
	for _, out := range b.Outputs() {
		if _, err := os.Stat(out.path); os.IsNotExist(err) {
			return true, nil
		}
	}

	state := r.state[key(b)]
	if state == nil || state.Identity != Identity(b.Hash()) {
		return true, nil
	}

	for _, in := range b.Inputs() {
		if in.builder != nil && dirty[in.builder] {
			return true, nil
		}
		hash, err := r.fileHash(in.path)
		if err != nil {
			if os.IsNotExist(err) {
				return true, nil
			}
			return true, zerr.With(zerr.Wrap(ErrInputHashFailed, err.Error()), "input", in.path)
		}
		if prev, ok := state.Inputs[in.path]; !ok || prev != hash {
			return true, nil
		}
	}
	return false, nil
}

// Run executes every dirty builder level by level and records the new state
func (r *Runner) Run(ctx context.Context) error {
	plan, err := r.Plan()
	if err != nil {
		return fmt.Errorf("build planning failed: %w", err)
	}

	total := 0
	for _, level := range plan {
		total += len(level)
	}
	if total == 0 {
		fmt.Println("qtkit: no work to do.")
		return nil
	}
	r.progress = msg.NewProgress(total, 0, os.Stdout)

	for _, level := range plan {
		err := runJobs(ctx, level, func(ctx context.Context, b Builder) error {
			if err := b.Execute(ctx); err != nil {
				return err
			}
			r.progress.Step(b.Name(), relTo(r.graph.BuildDir(), key(b)))
			return nil
		}, r.jobs)
		if err != nil {
			if serr := r.saveState(); serr != nil {
				msg.Warn("failed to save build state: %v", serr)
			}
			return err
		}
		for _, b := range level {
			for _, out := range b.Outputs() {
				delete(r.hashCache, out.path)
			}
			if err := r.updateState(b); err != nil {
				msg.Warn("failed to update build state for %s: %v", key(b), err)
			}
		}
	}

	if err := r.saveState(); err != nil {
		msg.Warn("failed to save build state: %v", err)
	}
	return nil
}

// updateState records the identity and input hashes of b after a successful run
func (r *Runner) updateState(b Builder) error {
	state := &BuildState{
		Identity: Identity(b.Hash()),
		Inputs:   make(map[string]string),
	}
	for _, in := range b.Inputs() {
		hash, err := r.fileHash(in.path)
		if err != nil {
			return fmt.Errorf("failed to hash input %s: %w", in.path, err)
		}
		state.Inputs[in.path] = hash
	}
	if sink, ok := b.(DynamicSink); ok {
		for _, d := range sink.DynamicSources() {
			state.Dynamic = append(state.Dynamic, DynamicRecord{Handler: d.Handler, Path: d.Node.path})
		}
	}
	r.state[key(b)] = state
	return nil
}

// fileHash computes the SHA256 hash of a file with an in-memory cache
func (r *Runner) fileHash(path string) (string, error) {
	if hash, ok := r.hashCache[path]; ok {
		return hash, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}

	hexHash := hex.EncodeToString(hash.Sum(nil))
	r.hashCache[path] = hexHash
	return hexHash, nil
}

// runJobs runs jobs in parallel
func runJobs[T any](ctx context.Context, jobs []T, jobfunc func(ctx context.Context, job T) error, limit int) error {
	if len(jobs) == 0 {
		return nil
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(limit)

	for _, job := range jobs {
		eg.Go(func() error {
			return jobfunc(ctx, job)
		})
	}

	return eg.Wait()
}

func relTo(base, path string) string {
	if rel, err := filepath.Rel(base, path); err == nil && !strings.HasPrefix(rel, "..") {
		return rel
	}
	return path
}
