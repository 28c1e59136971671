// Package paths provides centralized path handling for riceify.
// It implements XDG Base Directory specification compliance and
// defines the on-disk layout of the profile store, the hash cache
// and the per-transaction staging areas.
package paths

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/arthur-debert/riceify/pkg/errors"
)

// Environment variable names
const (
	// EnvDataDir overrides the XDG data directory for riceify
	EnvDataDir = "RICEIFY_DATA_DIR"

	// EnvConfigDir overrides the XDG config directory for riceify
	EnvConfigDir = "RICEIFY_CONFIG_DIR"

	// EnvCacheDir overrides the XDG cache directory for riceify
	EnvCacheDir = "RICEIFY_CACHE_DIR"

	// EnvHome is the standard home directory variable
	EnvHome = "HOME"
)

// Layout of riceify's internal directories. These are not user-configurable;
// user-configurable locations belong in pkg/config.
const (
	// AppDirName is the directory name for riceify-specific files
	AppDirName = "riceify"

	// ConfigFileName is the user configuration file inside ConfigDir
	ConfigFileName = "riceify.toml"

	// ProfilesDir holds one directory of versioned manifests per profile
	ProfilesDir = "profiles"

	// ObjectsDir holds content-addressed file bodies
	ObjectsDir = "objects"

	// BackupsDir holds backup snapshot manifests
	BackupsDir = "backups"

	// StagingDir holds per-transaction scratch space
	StagingDir = "staging"

	// HashCacheFile is the hash cache inside CacheDir
	HashCacheFile = "hashes.jsonl"
)

// Paths provides centralized path management for riceify
type Paths interface {
	DataDir() string
	ConfigDir() string
	CacheDir() string
	StateDir() string
	ConfigFilePath() string
	ProfilesDir() string
	ObjectsDir() string
	BackupsDir() string
	StagingDir() string
	HashCachePath() string
}

type paths struct {
	xdgData   string
	xdgConfig string
	xdgCache  string
	xdgState  string
}

// New creates a Paths instance from the environment, respecting
// RICEIFY_*_DIR overrides before falling back to XDG locations.
func New() (Paths, error) {
	p := &paths{}

	if dataDir := os.Getenv(EnvDataDir); dataDir != "" {
		p.xdgData = ExpandHome(dataDir)
	} else {
		p.xdgData = filepath.Join(xdg.DataHome, AppDirName)
	}

	if configDir := os.Getenv(EnvConfigDir); configDir != "" {
		p.xdgConfig = ExpandHome(configDir)
	} else {
		p.xdgConfig = filepath.Join(xdg.ConfigHome, AppDirName)
	}

	if cacheDir := os.Getenv(EnvCacheDir); cacheDir != "" {
		p.xdgCache = ExpandHome(cacheDir)
	} else {
		p.xdgCache = filepath.Join(xdg.CacheHome, AppDirName)
	}

	// State directory - XDG doesn't provide StateHome on every platform, so we check manually
	if stateDir := os.Getenv("XDG_STATE_HOME"); stateDir != "" {
		p.xdgState = filepath.Join(stateDir, AppDirName)
	} else {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrConfigLoad, "failed to resolve home directory")
		}
		p.xdgState = filepath.Join(homeDir, ".local", "state", AppDirName)
	}

	for _, dir := range []*string{&p.xdgData, &p.xdgConfig, &p.xdgCache, &p.xdgState} {
		abs, err := filepath.Abs(*dir)
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrConfigLoad, "failed to get absolute path for %s", *dir)
		}
		*dir = abs
	}

	return p, nil
}

// NewWithRoot places every directory under root. Used by tests and by the
// CLI's --root flag.
func NewWithRoot(root string) Paths {
	return &paths{
		xdgData:   filepath.Join(root, "data"),
		xdgConfig: filepath.Join(root, "config"),
		xdgCache:  filepath.Join(root, "cache"),
		xdgState:  filepath.Join(root, "state"),
	}
}

// ExpandHome expands a leading ~ to the home directory
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = os.Getenv(EnvHome)
		if homeDir == "" {
			return path
		}
	}

	if len(path) == 1 {
		return homeDir
	}

	if path[1] == '/' || path[1] == filepath.Separator {
		return filepath.Join(homeDir, path[2:])
	}

	// ~something (not the user's home)
	return path
}

func (p *paths) DataDir() string   { return p.xdgData }
func (p *paths) ConfigDir() string { return p.xdgConfig }
func (p *paths) CacheDir() string  { return p.xdgCache }
func (p *paths) StateDir() string  { return p.xdgState }

func (p *paths) ConfigFilePath() string {
	return filepath.Join(p.xdgConfig, ConfigFileName)
}

func (p *paths) ProfilesDir() string {
	return filepath.Join(p.xdgData, ProfilesDir)
}

func (p *paths) ObjectsDir() string {
	return filepath.Join(p.xdgData, ObjectsDir)
}

func (p *paths) BackupsDir() string {
	return filepath.Join(p.xdgData, BackupsDir)
}

func (p *paths) StagingDir() string {
	return filepath.Join(p.xdgData, StagingDir)
}

func (p *paths) HashCachePath() string {
	return filepath.Join(p.xdgCache, HashCacheFile)
}
