package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/arthur-debert/riceify/pkg/errors"
	"github.com/arthur-debert/riceify/pkg/internal/hashutil"
)

// Config is the complete riceify configuration.
type Config struct {
	// Workers bounds the task pool. 0 means runtime.NumCPU().
	Workers int `koanf:"workers"`

	Cache    CacheConfig           `koanf:"cache"`
	Profiles map[string]ProfileDef `koanf:"profiles"`
}

// CacheConfig configures the hash cache and the content cache.
type CacheConfig struct {
	Path         string `koanf:"path"`
	Hash         string `koanf:"hash"`
	ContentBytes int64  `koanf:"content_bytes"`
}

// ProfileDef declares which files belong to a profile.
type ProfileDef struct {
	Root         string       `koanf:"root"`
	Files        []string     `koanf:"files"`
	Dependencies []Dependency `koanf:"dependencies"`
}

// Dependency declares that From must be written before To.
type Dependency struct {
	From string `koanf:"from"`
	To   string `koanf:"to"`
}

// Default returns the configuration described by the embedded defaults.
func Default() *Config {
	return &Config{
		Cache: CacheConfig{
			Hash:         hashutil.DefaultAlgo,
			ContentBytes: 8 << 20,
		},
		Profiles: map[string]ProfileDef{},
	}
}

// Profile returns the definition for name.
func (c *Config) Profile(name string) (ProfileDef, bool) {
	def, ok := c.Profiles[name]
	return def, ok
}

// ProfileNames returns the defined profile names, sorted.
func (c *Config) ProfileNames() []string {
	names := make([]string, 0, len(c.Profiles))
	for name := range c.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks the configuration for values the engine cannot use.
func (c *Config) Validate() error {
	if c.Workers < 0 {
		return errors.Newf(errors.ErrConfigValid, "workers must not be negative, got %d", c.Workers)
	}
	if c.Cache.ContentBytes < 0 {
		return errors.Newf(errors.ErrConfigValid, "cache.content_bytes must not be negative, got %d", c.Cache.ContentBytes)
	}
	if _, err := hashutil.New(c.Cache.Hash); err != nil {
		return errors.Wrap(err, errors.ErrConfigValid, "invalid cache.hash")
	}
	for _, name := range c.ProfileNames() {
		if err := ValidateProfileName(name); err != nil {
			return err
		}
		def := c.Profiles[name]
		if len(def.Files) == 0 {
			return errors.Newf(errors.ErrConfigValid, "profile %q tracks no files", name)
		}
		for i, dep := range def.Dependencies {
			if strings.TrimSpace(dep.From) == "" || strings.TrimSpace(dep.To) == "" {
				return errors.Newf(errors.ErrConfigValid, "profile %q dependency %d needs both from and to", name, i)
			}
		}
	}
	return nil
}

// ValidateProfileName rejects names that cannot be used as a directory name
// or a koanf key.
func ValidateProfileName(name string) error {
	switch {
	case name == "":
		return errors.New(errors.ErrInvalidInput, "profile name must not be empty")
	case strings.ContainsAny(name, `/\.`+"\x00"):
		return errors.Newf(errors.ErrInvalidInput, "profile name %q must not contain '/', '\\' or '.'", name)
	case strings.HasPrefix(name, "-"):
		return errors.Newf(errors.ErrInvalidInput, "profile name %q must not start with '-'", name)
	}
	return nil
}

func (d Dependency) String() string {
	return fmt.Sprintf("%s -> %s", d.From, d.To)
}
