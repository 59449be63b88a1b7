package builder

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/go-git/go-git/v6"
	"github.com/go-git/go-git/v6/plumbing"
	"github.com/qobs-build/qtkit/internal/index"
	"github.com/qobs-build/qtkit/internal/msg"
	"go.trai.ch/zerr"
)

var depShortcuts = map[string]string{
	"gh:": "https://github.com/",
	"gl:": "https://gitlab.com/",
	"bb:": "https://bitbucket.org/",
	"sr:": "https://sr.ht/",
	"cb:": "https://codeberg.org/",
}

const (
	gitPrefix   = "git:"
	indexPrefix = "@"
)

var (
	errIllegalPrefix = errors.New("empty or illegal qt prefix")
	errArchive       = errors.New("archive prefixes are not supported, use a git source or a directory")
)

// resolvePrefix turns the [qt] prefix setting into a directory. Git sources are cloned into
// toWhere unless a previous build already did, @name is looked up in the prefix index and
// anything else is a path.
func resolvePrefix(prefix, toWhere string, idx *index.Index) (string, error) {
	if prefix == "" {
		return "", errIllegalPrefix
	}

	if name, ok := strings.CutPrefix(prefix, indexPrefix); ok {
		if idx == nil {
			return "", zerr.With(zerr.Wrap(index.ErrUnknownPrefix, name), "index", "<none>")
		}
		return idx.Lookup(name)
	}

	// check for `git:` prefix, e.g. git:https://example.org/qt/qt4.git@4.8#v4.8.7
	if rest, ok := strings.CutPrefix(prefix, gitPrefix); ok {
		return cloneOnce(rest, toWhere)
	}

	// check for shortcut prefix, e.g. gh:qt/qt@4.8
	for shortcut, url := range depShortcuts {
		if rest, ok := strings.CutPrefix(prefix, shortcut); ok {
			return cloneOnce(url+rest, toWhere)
		}
	}

	if isURL(prefix) {
		return "", zerr.With(zerr.Wrap(errArchive, prefix), "prefix", prefix)
	}

	// otherwise it's a path
	return prefix, nil
}

func isURL(maybeURL string) bool {
	u, err := url.Parse(maybeURL)
	return err == nil && u.Scheme != "" && u.Host != ""
}

func cloneOnce(url, toWhere string) (string, error) {
	if _, err := os.Stat(filepath.Join(toWhere, ".git")); err == nil {
		return toWhere, nil
	}
	return cloneGitRepo(url, toWhere)
}

type gitURL struct {
	cleanURL    string
	branch      string
	commitOrTag string
}

// someone/something@master#0.1.0
// someone/something@feature-branch#12345abc
// someone/something#12345abc
func parseGitURL(rawURL string) (res gitURL) {
	parts := strings.SplitN(rawURL, "#", 2)
	baseURL := parts[0]
	if len(parts) == 2 {
		res.commitOrTag = parts[1]
	}

	parts = strings.SplitN(baseURL, "@", 2)
	res.cleanURL = parts[0]
	if len(parts) == 2 {
		res.branch = parts[1]
	}

	if !strings.HasSuffix(res.cleanURL, ".git") {
		res.cleanURL += ".git"
	}

	return
}

// cloneGitRepo clones a Git remote into the specified directory
func cloneGitRepo(url, toWhere string) (string, error) {
	parsedURL := parseGitURL(url)

	fmt.Printf("  %s %s\n", color.HiGreenString("Fetching"), parsedURL.cleanURL)
	cloneOptions := &git.CloneOptions{
		URL:               parsedURL.cleanURL,
		Progress:          &msg.IndentWriter{Indent: "    ", W: os.Stdout},
		RecurseSubmodules: git.DefaultSubmoduleRecursionDepth,
	}

	if parsedURL.commitOrTag == "" {
		cloneOptions.Depth = 1 // we can do a shallow clone of the latest commit
	}

	if parsedURL.branch != "" {
		cloneOptions.ReferenceName = plumbing.NewBranchReferenceName(parsedURL.branch)
		cloneOptions.SingleBranch = true
	}

	repo, err := git.PlainClone(toWhere, cloneOptions)
	if err != nil {
		return toWhere, err
	}

	if parsedURL.commitOrTag != "" {
		w, err := repo.Worktree()
		if err != nil {
			return toWhere, fmt.Errorf("could not get worktree: %w", err)
		}

		revision := parsedURL.commitOrTag
		hash, err := repo.ResolveRevision(plumbing.Revision(revision))
		if err != nil {
			return toWhere, fmt.Errorf("could not resolve revision `%s`: %w", revision, err)
		}

		err = w.Checkout(&git.CheckoutOptions{
			Hash:  *hash,
			Force: true,
		})
		if err != nil {
			return toWhere, fmt.Errorf("failed to checkout `%s`: %w", revision, err)
		}
	}

	return toWhere, nil
}
