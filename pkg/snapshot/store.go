// Package snapshot persists profiles and the file bodies they reference.
//
// Layout under the data directory:
//
//	profiles/<name>/v000001.toml   one manifest per saved version
//	objects/<hh>/<hex>             file bodies, keyed by digest, shared by all profiles
//	backups/<id>.toml              backup manifests taken before a switch
//	backups/PREVIOUS               the id of the backup "restore" returns to
//
// Every write goes through a temp file and a rename, and object bodies are
// verified against their digest both when written and when read back.
package snapshot

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/arthur-debert/riceify/pkg/config"
	"github.com/arthur-debert/riceify/pkg/errors"
	"github.com/arthur-debert/riceify/pkg/filesystem"
	"github.com/arthur-debert/riceify/pkg/internal/hashutil"
	"github.com/arthur-debert/riceify/pkg/types"
	"github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog"
)

const (
	manifestExt  = ".toml"
	previousFile = "PREVIOUS"
)

// Options configures a Store.
type Options struct {
	ProfilesDir string
	ObjectsDir  string
	BackupsDir  string
	FS          types.FS
	Logger      zerolog.Logger

	// ContentBytes bounds the in-memory object cache. 0 disables it.
	ContentBytes int64
}

// Store is the snapshot store.
type Store struct {
	profilesDir string
	objectsDir  string
	backupsDir  string
	fs          types.FS
	logger      zerolog.Logger
	cache       *contentCache
}

// New creates a store. Directories are created lazily on first write.
func New(opts Options) *Store {
	fsys := opts.FS
	if fsys == nil {
		fsys = filesystem.NewOS()
	}
	return &Store{
		profilesDir: opts.ProfilesDir,
		objectsDir:  opts.ObjectsDir,
		backupsDir:  opts.BackupsDir,
		fs:          fsys,
		logger:      opts.Logger,
		cache:       newContentCache(opts.ContentBytes),
	}
}

// ObjectPath returns where the body for digest is stored.
func (s *Store) ObjectPath(digest string) (string, error) {
	_, hex, ok := hashutil.Split(digest)
	if !ok || strings.ContainsAny(hex, `/\.`) {
		return "", errors.Newf(errors.ErrInvalidInput, "invalid digest %q", digest)
	}
	return filepath.Join(s.objectsDir, hex[:2], hex), nil
}

// HasObject reports whether a body for digest is stored.
func (s *Store) HasObject(digest string) bool {
	path, err := s.ObjectPath(digest)
	if err != nil {
		return false
	}
	ok, err := filesystem.Exists(s.fs, path)
	return err == nil && ok
}

// PutObject stores data under digest. data must hash to digest. Storing a
// body that already exists is a no-op.
func (s *Store) PutObject(digest string, data []byte) error {
	if !hashutil.Verify(digest, data) {
		return errors.Newf(errors.ErrValidation, "content does not match digest %s", digest)
	}
	path, err := s.ObjectPath(digest)
	if err != nil {
		return err
	}
	if s.HasObject(digest) {
		return nil
	}
	if err := filesystem.WriteFileAtomic(s.fs, path, data, 0644); err != nil {
		return errors.Wrapf(err, errors.ErrWrite, "failed to store object %s", digest)
	}
	s.cache.put(digest, data)
	return nil
}

// IngestObject stores the file at src under digest.
func (s *Store) IngestObject(digest, src string) error {
	if s.HasObject(digest) {
		return nil
	}
	data, err := s.fs.ReadFile(src)
	if err != nil {
		return errors.Wrapf(err, errors.ErrRead, "failed to read staged file %s", src).WithPaths(src)
	}
	return s.PutObject(digest, data)
}

// ReadObject returns the body stored under digest, verifying it.
func (s *Store) ReadObject(digest string) ([]byte, error) {
	if data, ok := s.cache.get(digest); ok {
		return data, nil
	}

	path, err := s.ObjectPath(digest)
	if err != nil {
		return nil, err
	}
	data, err := s.fs.ReadFile(path)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, errors.Wrapf(err, errors.ErrNotFound, "object %s not found", digest)
		}
		return nil, errors.Wrapf(err, errors.ErrRead, "failed to read object %s", digest)
	}
	if !hashutil.Verify(digest, data) {
		return nil, errors.Newf(errors.ErrCacheCorruption, "object %s does not match its digest", digest).
			WithPaths(path)
	}
	s.cache.put(digest, data)
	return data, nil
}

// ContentCache returns the in-memory object cache counters.
func (s *Store) ContentCache() ContentCacheStats {
	return s.cache.stats()
}

// ClearContentCache empties the in-memory object cache.
func (s *Store) ClearContentCache() {
	s.cache.clear()
}

func (s *Store) profileDir(name string) (string, error) {
	if err := config.ValidateProfileName(name); err != nil {
		return "", err
	}
	return filepath.Join(s.profilesDir, name), nil
}

func versionFile(version int) string {
	return fmt.Sprintf("v%06d%s", version, manifestExt)
}

func parseVersionFile(name string) (int, bool) {
	if !strings.HasPrefix(name, "v") || !strings.HasSuffix(name, manifestExt) {
		return 0, false
	}
	v, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, "v"), manifestExt))
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

// Versions returns the saved versions of name in ascending order.
func (s *Store) Versions(name string) ([]int, error) {
	dir, err := s.profileDir(name)
	if err != nil {
		return nil, err
	}
	entries, err := s.fs.ReadDir(dir)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, errors.Newf(errors.ErrNotFound, "profile %q not found", name)
		}
		return nil, errors.Wrapf(err, errors.ErrRead, "failed to list versions of %q", name)
	}

	var versions []int
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if v, ok := parseVersionFile(e.Name()); ok {
			versions = append(versions, v)
		}
	}
	if len(versions) == 0 {
		return nil, errors.Newf(errors.ErrNotFound, "profile %q has no saved versions", name)
	}
	sort.Ints(versions)
	return versions, nil
}

// Version loads one version of name.
func (s *Store) Version(name string, version int) (*types.Profile, error) {
	dir, err := s.profileDir(name)
	if err != nil {
		return nil, err
	}
	return s.readManifest(filepath.Join(dir, versionFile(version)))
}

// Latest loads the newest version of name.
func (s *Store) Latest(name string) (*types.Profile, error) {
	versions, err := s.Versions(name)
	if err != nil {
		return nil, err
	}
	return s.Version(name, versions[len(versions)-1])
}

// SaveProfile writes p as the next version of p.Name. Every referenced
// object must already be stored. When p captures the same content as the
// latest version, nothing is written and the latest version is returned
// with created false.
func (s *Store) SaveProfile(p *types.Profile) (saved *types.Profile, created bool, err error) {
	dir, err := s.profileDir(p.Name)
	if err != nil {
		return nil, false, err
	}

	next := 1
	latest, err := s.Latest(p.Name)
	switch {
	case err == nil:
		if latest.SameContent(p) {
			return latest, false, nil
		}
		next = latest.Version + 1
	case errors.IsErrorCode(err, errors.ErrNotFound):
	default:
		return nil, false, err
	}

	for _, f := range p.Files {
		if !f.Absent && !s.HasObject(f.Hash) {
			return nil, false, errors.Newf(errors.ErrInternal, "object %s for %s was not stored", f.Hash, f.Path).
				WithPaths(f.Path)
		}
	}

	out := *p
	out.Files = append([]types.FileRecord(nil), out.Files...)
	out.Version = next
	out.Kind = types.ProfileKindUser
	if out.CreatedAt.IsZero() {
		out.CreatedAt = time.Now().UTC()
	}
	out.SortFiles()

	if err := s.writeManifest(filepath.Join(dir, versionFile(next)), &out); err != nil {
		return nil, false, err
	}
	s.logger.Debug().Str("profile", out.Name).Int("version", next).Int("files", len(out.Files)).Msg("Profile version written")
	return &out, true, nil
}

// Summary describes one saved profile.
type Summary struct {
	Name      string    `json:"name" yaml:"name"`
	Versions  int       `json:"versions" yaml:"versions"`
	Latest    int       `json:"latest" yaml:"latest"`
	Files     int       `json:"files" yaml:"files"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// List summarizes every saved profile, sorted by name.
func (s *Store) List() ([]Summary, error) {
	entries, err := s.fs.ReadDir(s.profilesDir)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, errors.Wrap(err, errors.ErrRead, "failed to list profiles")
	}

	var out []Summary
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		versions, err := s.Versions(e.Name())
		if err != nil {
			if errors.IsErrorCode(err, errors.ErrNotFound) || errors.IsErrorCode(err, errors.ErrInvalidInput) {
				continue
			}
			return nil, err
		}
		latest, err := s.Version(e.Name(), versions[len(versions)-1])
		if err != nil {
			return nil, err
		}
		out = append(out, Summary{
			Name:      e.Name(),
			Versions:  len(versions),
			Latest:    latest.Version,
			Files:     len(latest.Files),
			CreatedAt: latest.CreatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// DeleteProfile removes every version of name. Objects are left in place.
func (s *Store) DeleteProfile(name string) error {
	if _, err := s.Versions(name); err != nil {
		return err
	}
	dir, err := s.profileDir(name)
	if err != nil {
		return err
	}
	if err := s.fs.RemoveAll(dir); err != nil {
		return errors.Wrapf(err, errors.ErrWrite, "failed to delete profile %q", name)
	}
	return nil
}

// SetPrevious stores backup as the profile restore returns to. backup.Name
// identifies it and every non-absent record's object must be stored. The
// backup it replaces is removed.
func (s *Store) SetPrevious(backup *types.Profile) error {
	if err := config.ValidateProfileName(backup.Name); err != nil {
		return err
	}
	for _, f := range backup.Files {
		if !f.Absent && !s.HasObject(f.Hash) {
			return errors.Newf(errors.ErrInternal, "backup object %s for %s was not stored", f.Hash, f.Path).
				WithPaths(f.Path)
		}
	}

	out := *backup
	out.Files = append([]types.FileRecord(nil), out.Files...)
	out.Kind = types.ProfileKindBackup
	if out.CreatedAt.IsZero() {
		out.CreatedAt = time.Now().UTC()
	}
	out.SortFiles()

	old, err := s.previousID()
	if err != nil {
		return err
	}

	if err := s.writeManifest(filepath.Join(s.backupsDir, out.Name+manifestExt), &out); err != nil {
		return err
	}
	if err := filesystem.WriteFileAtomic(s.fs, filepath.Join(s.backupsDir, previousFile), []byte(out.Name+"\n"), 0644); err != nil {
		return errors.Wrap(err, errors.ErrWrite, "failed to record previous backup")
	}

	if old != "" && old != out.Name {
		if err := filesystem.RemoveIfExists(s.fs, filepath.Join(s.backupsDir, old+manifestExt)); err != nil {
			s.logger.Warn().Err(err).Str("backup", old).Msg("Failed to remove superseded backup")
		}
	}
	return nil
}

// Previous loads the backup restore returns to.
func (s *Store) Previous() (*types.Profile, error) {
	id, err := s.previousID()
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, errors.New(errors.ErrNotFound, "no previous state recorded")
	}
	return s.readManifest(filepath.Join(s.backupsDir, id+manifestExt))
}

func (s *Store) previousID() (string, error) {
	data, err := s.fs.ReadFile(filepath.Join(s.backupsDir, previousFile))
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", errors.Wrap(err, errors.ErrRead, "failed to read previous backup pointer")
	}
	return strings.TrimSpace(string(data)), nil
}

func (s *Store) writeManifest(path string, p *types.Profile) error {
	data, err := toml.Marshal(p)
	if err != nil {
		return errors.Wrapf(err, errors.ErrInternal, "failed to encode manifest for %q", p.Name)
	}
	if err := filesystem.WriteFileAtomic(s.fs, path, data, 0644); err != nil {
		return errors.Wrapf(err, errors.ErrWrite, "failed to write manifest %s", path)
	}
	return nil
}

func (s *Store) readManifest(path string) (*types.Profile, error) {
	data, err := s.fs.ReadFile(path)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, errors.Wrapf(err, errors.ErrNotFound, "manifest %s not found", path)
		}
		return nil, errors.Wrapf(err, errors.ErrRead, "failed to read manifest %s", path)
	}

	var p types.Profile
	if err := toml.Unmarshal(data, &p); err != nil {
		return nil, errors.Wrapf(err, errors.ErrCacheCorruption, "failed to decode manifest %s", path).WithPaths(path)
	}
	p.SortFiles()
	return &p, nil
}
