package engine

import (
	"github.com/arthur-debert/riceify/pkg/config"
	"github.com/arthur-debert/riceify/pkg/errors"
	"github.com/arthur-debert/riceify/pkg/filesystem"
	"github.com/arthur-debert/riceify/pkg/hashstore"
	"github.com/arthur-debert/riceify/pkg/internal/hashutil"
	"github.com/arthur-debert/riceify/pkg/logging"
	"github.com/arthur-debert/riceify/pkg/paths"
	"github.com/arthur-debert/riceify/pkg/snapshot"
	"github.com/arthur-debert/riceify/pkg/taskpool"
	"github.com/arthur-debert/riceify/pkg/types"
	"github.com/rs/zerolog"
)

// Setup lists what Open needs beyond the configuration.
type Setup struct {
	Paths  paths.Paths
	FS     types.FS
	Logger zerolog.Logger
	// Observer defaults to a LogObserver on Logger.
	Observer       Observer
	ObserverBuffer int
	// Trace is passed to the task pool.
	Trace func(taskpool.Event)
}

// Open builds the stores and the task pool described by cfg and returns an
// engine over them. The hash cache is loaded from disk.
func Open(cfg *config.Config, s Setup) (*Engine, error) {
	if cfg == nil {
		return nil, errors.New(errors.ErrInvalidInput, "engine needs a configuration")
	}
	if s.Paths == nil {
		return nil, errors.New(errors.ErrInvalidInput, "engine needs data paths")
	}
	fsys := s.FS
	if fsys == nil {
		fsys = filesystem.NewOS()
	}

	hasher, err := hashutil.New(cfg.Cache.Hash)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigValid, "invalid cache.hash")
	}

	cachePath := cfg.Cache.Path
	if cachePath == "" {
		cachePath = s.Paths.HashCachePath()
	} else {
		cachePath = paths.ExpandHome(cachePath)
	}

	hashes, err := hashstore.Open(hashstore.Options{
		Path:   cachePath,
		FS:     fsys,
		Hasher: hasher,
		Logger: logging.Component(s.Logger, "hashstore"),
	})
	if err != nil {
		return nil, err
	}

	snapshots := snapshot.New(snapshot.Options{
		ProfilesDir:  s.Paths.ProfilesDir(),
		ObjectsDir:   s.Paths.ObjectsDir(),
		BackupsDir:   s.Paths.BackupsDir(),
		FS:           fsys,
		Logger:       logging.Component(s.Logger, "snapshot"),
		ContentBytes: cfg.Cache.ContentBytes,
	})

	pool := taskpool.New(taskpool.Options{
		Workers: cfg.Workers,
		FS:      fsys,
		Hasher:  hasher,
		Trace:   s.Trace,
	})

	observer := s.Observer
	if observer == nil {
		observer = NewLogObserver(logging.Component(s.Logger, "observer"))
	}

	return New(Options{
		FS:             fsys,
		Config:         cfg,
		Hashes:         hashes,
		Snapshots:      snapshots,
		Pool:           pool,
		StagingDir:     s.Paths.StagingDir(),
		Logger:         s.Logger,
		Observer:       observer,
		ObserverBuffer: s.ObserverBuffer,
	})
}
