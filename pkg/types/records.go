package types

import (
	"fmt"
	"path/filepath"
	"sort"
	"time"
)

// FileRecord describes one file as known to the hash cache or captured in a
// profile. Hash is always the digest of the file bytes as of ModTime.
type FileRecord struct {
	Path          string    `toml:"path" json:"path"`
	Hash          string    `toml:"hash" json:"hash"`
	Size          int64     `toml:"size" json:"size"`
	ModTime       time.Time `toml:"mtime" json:"mtime"`
	Mode          uint32    `toml:"mode,omitempty" json:"mode,omitempty"`
	DependencyIDs []string  `toml:"depends_on,omitempty" json:"depends_on,omitempty"`

	// Absent marks a path that did not exist when the record was captured.
	// Only backup snapshots carry absent records; restoring one deletes the path.
	Absent bool `toml:"absent,omitempty" json:"absent,omitempty"`

	// Invalid marks a cache entry known to be stale. Invalid entries are kept
	// to distinguish "known changed" from "never seen".
	Invalid bool `toml:"invalid,omitempty" json:"invalid,omitempty"`
}

// FileMode returns the permission bits to use when materializing the record.
func (r FileRecord) FileMode() uint32 {
	if r.Mode == 0 {
		return 0644
	}
	return r.Mode
}

// DependencyEdge means From must be materialized before To.
type DependencyEdge struct {
	From string `toml:"from" json:"from" yaml:"from"`
	To   string `toml:"to" json:"to" yaml:"to"`
}

func (e DependencyEdge) String() string {
	return fmt.Sprintf("%s -> %s", e.From, e.To)
}

// ProfileKind distinguishes user-saved profiles from implicit backups.
type ProfileKind string

const (
	ProfileKindUser   ProfileKind = "user"
	ProfileKindBackup ProfileKind = "backup"
)

// Profile is a named, versioned, immutable snapshot of a set of files.
type Profile struct {
	Name      string           `toml:"name"`
	Version   int              `toml:"version"`
	Kind      ProfileKind      `toml:"kind"`
	CreatedAt time.Time        `toml:"created_at"`
	Files     []FileRecord     `toml:"files"`
	Edges     []DependencyEdge `toml:"edges,omitempty"`
}

// File returns the record for path, if the profile contains one.
func (p *Profile) File(path string) (FileRecord, bool) {
	i := sort.Search(len(p.Files), func(i int) bool { return p.Files[i].Path >= path })
	if i < len(p.Files) && p.Files[i].Path == path {
		return p.Files[i], true
	}
	return FileRecord{}, false
}

// Paths returns the paths of every file in the profile, in profile order.
func (p *Profile) Paths() []string {
	out := make([]string, len(p.Files))
	for i, f := range p.Files {
		out[i] = f.Path
	}
	return out
}

// SortFiles orders Files by path, which File relies on.
func (p *Profile) SortFiles() {
	sort.Slice(p.Files, func(i, j int) bool { return p.Files[i].Path < p.Files[j].Path })
}

// SameContent reports whether two profiles capture the same files with the
// same digests, modes and edges.
func (p *Profile) SameContent(other *Profile) bool {
	if other == nil || len(p.Files) != len(other.Files) || len(p.Edges) != len(other.Edges) {
		return false
	}
	for i := range p.Files {
		a, b := p.Files[i], other.Files[i]
		if a.Path != b.Path || a.Hash != b.Hash || a.Mode != b.Mode || a.Absent != b.Absent {
			return false
		}
	}
	for i := range p.Edges {
		if p.Edges[i] != other.Edges[i] {
			return false
		}
	}
	return true
}

// NormalizePath returns the absolute, cleaned form of path used as file identity.
func NormalizePath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.Clean(abs), nil
}
