package config

import (
	stderrors "errors"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/arthur-debert/riceify/pkg/errors"
	"github.com/arthur-debert/riceify/pkg/paths"
	"github.com/arthur-debert/riceify/pkg/types"
	"github.com/bmatcuk/doublestar"
)

// DefaultRoot is used for profiles that do not set root.
const DefaultRoot = "~"

// Resolved is a profile definition expanded against the live filesystem.
type Resolved struct {
	Files []string
	Edges []types.DependencyEdge
}

// RootDir returns the absolute directory relative entries are resolved against.
func (d ProfileDef) RootDir() (string, error) {
	root := d.Root
	if root == "" {
		root = DefaultRoot
	}
	return types.NormalizePath(paths.ExpandHome(root))
}

// Resolve expands the file entries and dependency endpoints to normalized
// absolute paths. Literal entries are kept even when missing so that saving
// reports them as unreadable; glob entries only yield regular files that
// exist in fsys. Dependencies must name tracked files.
func (d ProfileDef) Resolve(fsys types.FS) (Resolved, error) {
	root, err := d.RootDir()
	if err != nil {
		return Resolved{}, errors.Wrap(err, errors.ErrInvalidInput, "failed to resolve profile root")
	}

	seen := make(map[string]bool)
	var files []string
	add := func(path string) error {
		norm, err := types.NormalizePath(path)
		if err != nil {
			return errors.Wrapf(err, errors.ErrInvalidInput, "failed to normalize %s", path)
		}
		if !seen[norm] {
			seen[norm] = true
			files = append(files, norm)
		}
		return nil
	}

	for _, entry := range d.Files {
		pattern := d.absolute(root, entry)
		if !isGlob(entry) {
			if err := add(pattern); err != nil {
				return Resolved{}, err
			}
			continue
		}

		matches, err := glob(fsys, pattern)
		if err != nil {
			return Resolved{}, err
		}
		for _, m := range matches {
			if err := add(m); err != nil {
				return Resolved{}, err
			}
		}
	}
	sort.Strings(files)

	edges := make([]types.DependencyEdge, 0, len(d.Dependencies))
	for _, dep := range d.Dependencies {
		from, err := types.NormalizePath(d.absolute(root, dep.From))
		if err != nil {
			return Resolved{}, errors.Wrapf(err, errors.ErrInvalidInput, "failed to normalize %s", dep.From)
		}
		to, err := types.NormalizePath(d.absolute(root, dep.To))
		if err != nil {
			return Resolved{}, errors.Wrapf(err, errors.ErrInvalidInput, "failed to normalize %s", dep.To)
		}
		if !seen[from] || !seen[to] {
			return Resolved{}, errors.Newf(errors.ErrValidation,
				"dependency %s references a file the profile does not track", dep).
				WithPaths(from, to)
		}
		edges = append(edges, types.DependencyEdge{From: from, To: to})
	}

	return Resolved{Files: files, Edges: edges}, nil
}

func (d ProfileDef) absolute(root, entry string) string {
	entry = paths.ExpandHome(strings.TrimSpace(entry))
	if filepath.IsAbs(entry) {
		return entry
	}
	return filepath.Join(root, entry)
}

func isGlob(entry string) bool {
	return strings.ContainsAny(entry, "*?[{")
}

// glob walks the static prefix of pattern and returns the regular files
// that match it. Directories are not followed through symlinks. A missing
// prefix matches nothing.
func glob(fsys types.FS, pattern string) ([]string, error) {
	if _, err := doublestar.PathMatch(pattern, pattern); err != nil {
		return nil, errors.Wrapf(err, errors.ErrValidation, "invalid pattern %q", pattern)
	}

	segments := strings.Split(pattern, string(filepath.Separator))
	static := 0
	for static < len(segments) && !isGlob(segments[static]) {
		static++
	}
	base := strings.Join(segments[:static], string(filepath.Separator))
	if base == "" {
		base = string(filepath.Separator)
	}
	maxDepth := len(segments) - static
	if strings.Contains(pattern, "**") {
		maxDepth = -1
	}

	var matches []string
	var walk func(dir string, depth int) error
	walk = func(dir string, depth int) error {
		entries, err := fsys.ReadDir(dir)
		if err != nil {
			if stderrors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return errors.Wrapf(err, errors.ErrRead, "failed to list %s", dir).WithPaths(dir)
		}
		for _, entry := range entries {
			path := filepath.Join(dir, entry.Name())
			if entry.IsDir() {
				if maxDepth < 0 || depth < maxDepth {
					if err := walk(path, depth+1); err != nil {
						return err
					}
				}
				continue
			}
			ok, err := doublestar.PathMatch(pattern, path)
			if err != nil {
				return errors.Wrapf(err, errors.ErrValidation, "invalid pattern %q", pattern)
			}
			if !ok {
				continue
			}
			info, err := fsys.Stat(path)
			if err != nil || !info.Mode().IsRegular() {
				continue
			}
			matches = append(matches, path)
		}
		return nil
	}
	if err := walk(base, 1); err != nil {
		return nil, err
	}
	return matches, nil
}
