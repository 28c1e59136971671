package hashstore

import (
	"bufio"
	"bytes"
	"encoding/json"
	stderrors "errors"
	"io/fs"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arthur-debert/riceify/pkg/errors"
	"github.com/arthur-debert/riceify/pkg/filesystem"
	"github.com/arthur-debert/riceify/pkg/internal/hashutil"
	"github.com/arthur-debert/riceify/pkg/types"
	"github.com/rs/zerolog"
)

// Verdict classifies a file against its cache entry.
type Verdict int

const (
	// Unknown means the path has never been recorded.
	Unknown Verdict = iota
	// Unchanged means mtime and digest both match a valid entry.
	Unchanged
	// Changed means mtime or digest differ from a valid entry.
	Changed
	// Stale means the entry was invalidated.
	Stale
)

func (v Verdict) String() string {
	switch v {
	case Unchanged:
		return "unchanged"
	case Changed:
		return "changed"
	case Stale:
		return "stale"
	default:
		return "unknown"
	}
}

// Options configures a Store.
type Options struct {
	// Path is the JSON-lines file the store persists to.
	Path   string
	FS     types.FS
	Hasher hashutil.Hasher
	Logger zerolog.Logger
}

// Store is the hash cache. It is safe for concurrent use; the engine
// nevertheless only mutates it while committing or rolling back.
type Store struct {
	path   string
	fs     types.FS
	hasher hashutil.Hasher
	logger zerolog.Logger

	mu      sync.RWMutex
	entries map[string]types.FileRecord
	dirty   bool
	writes  int
	corrupt int

	hits   atomic.Int64
	misses atomic.Int64
}

// New creates an empty store.
func New(opts Options) *Store {
	fsys := opts.FS
	if fsys == nil {
		fsys = filesystem.NewOS()
	}
	return &Store{
		path:    opts.Path,
		fs:      fsys,
		hasher:  opts.Hasher,
		logger:  opts.Logger,
		entries: make(map[string]types.FileRecord),
	}
}

// Open creates a store and loads its persisted entries.
func Open(opts Options) (*Store, error) {
	s := New(opts)
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the persistence location.
func (s *Store) Path() string {
	return s.path
}

// Lookup returns the entry for path. Invalidated entries are returned with
// Invalid set; found is false only for paths never recorded.
func (s *Store) Lookup(path string) (types.FileRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.entries[filepath.Clean(path)]
	return rec, ok
}

// Update records digest, size and mtime for path. It reports whether the
// entry changed; recording identical values on a valid entry is a no-op.
func (s *Store) Update(path, hash string, size int64, mtime time.Time) bool {
	path = filepath.Clean(path)

	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.entries[path]; ok && !cur.Invalid &&
		cur.Hash == hash && cur.Size == size && cur.ModTime.Equal(mtime) {
		return false
	}
	s.entries[path] = types.FileRecord{
		Path:    path,
		Hash:    hash,
		Size:    size,
		ModTime: mtime,
	}
	s.dirty = true
	s.writes++
	return true
}

// Invalidate marks the entry for path stale. Unknown paths are left unknown.
func (s *Store) Invalidate(path string) bool {
	path = filepath.Clean(path)

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.entries[path]
	if !ok || cur.Invalid {
		return false
	}
	cur.Invalid = true
	s.entries[path] = cur
	s.dirty = true
	s.writes++
	return true
}

// Reset drops every entry and the hit/miss counters.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.entries) > 0 {
		s.writes++
	}
	s.entries = make(map[string]types.FileRecord)
	s.dirty = true
	s.corrupt = 0
	s.hits.Store(0)
	s.misses.Store(0)
}

// Writes returns the number of entry mutations since the store was created.
func (s *Store) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}

// Classify compares an observed digest and mtime with the entry for path.
// It counts a cache hit for Unchanged and a miss otherwise; entries are not
// touched.
func (s *Store) Classify(path, hash string, mtime time.Time) Verdict {
	v := s.classify(filepath.Clean(path), hash, mtime)
	if v == Unchanged {
		s.hits.Add(1)
	} else {
		s.misses.Add(1)
	}
	return v
}

func (s *Store) classify(path, hash string, mtime time.Time) Verdict {
	s.mu.RLock()
	cur, ok := s.entries[path]
	s.mu.RUnlock()

	switch {
	case !ok:
		return Unknown
	case cur.Invalid:
		return Stale
	case !cur.ModTime.Equal(mtime):
		return Changed
	case cur.Hash != hash:
		return Changed
	default:
		return Unchanged
	}
}

// ReadRecord stats, reads and hashes path, returning its record and bytes.
// It is the one place live files are hashed. Errors are ErrRead, carry the
// path and keep the underlying cause for errors.Is checks; callers must
// treat an unreadable file as changed.
func ReadRecord(fsys types.FS, hasher hashutil.Hasher, path string) (types.FileRecord, []byte, error) {
	path = filepath.Clean(path)
	rec := types.FileRecord{Path: path}

	info, err := fsys.Stat(path)
	if err != nil {
		return rec, nil, errors.Wrapf(err, errors.ErrRead, "failed to stat %s", path).WithPaths(path)
	}
	if !info.Mode().IsRegular() {
		return rec, nil, errors.Newf(errors.ErrRead, "%s is not a regular file", path).WithPaths(path)
	}
	data, err := fsys.ReadFile(path)
	if err != nil {
		return rec, nil, errors.Wrapf(err, errors.ErrRead, "failed to read %s", path).WithPaths(path)
	}

	rec.Hash = hasher.Sum(data)
	rec.Size = int64(len(data))
	rec.ModTime = info.ModTime()
	rec.Mode = uint32(info.Mode().Perm())
	return rec, data, nil
}

// Load replaces the in-memory entries with the persisted ones. A missing
// file yields an empty store. Unparsable lines are skipped and counted.
func (s *Store) Load() error {
	data, err := s.fs.ReadFile(s.path)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			s.mu.Lock()
			s.entries = make(map[string]types.FileRecord)
			s.mu.Unlock()
			return nil
		}
		return errors.Wrapf(err, errors.ErrRead, "failed to read hash cache %s", s.path)
	}

	entries := make(map[string]types.FileRecord)
	corrupt := 0
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var rec types.FileRecord
		if err := json.Unmarshal(raw, &rec); err != nil || !validRecord(rec) {
			corrupt++
			s.logger.Warn().
				Str("code", string(errors.ErrCacheCorruption)).
				Str("file", s.path).
				Int("line", line).
				Msg("Skipping unreadable hash cache record")
			continue
		}
		entries[filepath.Clean(rec.Path)] = rec
	}
	if err := scanner.Err(); err != nil {
		// An over-long line ends the scan; whatever was parsed stays usable.
		corrupt++
		s.logger.Warn().Err(err).Str("code", string(errors.ErrCacheCorruption)).Msg("Hash cache truncated")
	}

	s.mu.Lock()
	s.entries = entries
	s.corrupt = corrupt
	s.dirty = corrupt > 0
	s.mu.Unlock()

	s.logger.Debug().Int("entries", len(entries)).Int("corrupt", corrupt).Msg("Hash cache loaded")
	return nil
}

func validRecord(rec types.FileRecord) bool {
	if rec.Path == "" || !filepath.IsAbs(rec.Path) {
		return false
	}
	_, _, ok := hashutil.Split(rec.Hash)
	return ok
}

// Save persists the entries if anything changed since the last load or save.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dirty {
		return nil
	}

	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	for _, k := range keys {
		line, err := json.Marshal(s.entries[k])
		if err != nil {
			return errors.Wrapf(err, errors.ErrInternal, "failed to encode cache entry %s", k)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}

	if err := filesystem.WriteFileAtomic(s.fs, s.path, buf.Bytes(), 0644); err != nil {
		return errors.Wrapf(err, errors.ErrWrite, "failed to persist hash cache %s", s.path)
	}
	s.dirty = false
	return nil
}

// Status summarizes the cache for cache-status.
type Status struct {
	Path    string `json:"path" yaml:"path"`
	Algo    string `json:"algo" yaml:"algo"`
	Entries int    `json:"entries" yaml:"entries"`
	Invalid int    `json:"invalid" yaml:"invalid"`
	Corrupt int    `json:"corrupt" yaml:"corrupt"`
	Hits    int64  `json:"hits" yaml:"hits"`
	Misses  int64  `json:"misses" yaml:"misses"`
	Writes  int    `json:"writes" yaml:"writes"`
	Dirty   bool   `json:"dirty" yaml:"dirty"`
}

// Status returns counts for the cache. It does not mutate entries.
func (s *Store) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Status{
		Path:    s.path,
		Algo:    s.hasher.Algo(),
		Entries: len(s.entries),
		Corrupt: s.corrupt,
		Hits:    s.hits.Load(),
		Misses:  s.misses.Load(),
		Writes:  s.writes,
		Dirty:   s.dirty,
	}
	for _, rec := range s.entries {
		if rec.Invalid {
			st.Invalid++
		}
	}
	return st
}
