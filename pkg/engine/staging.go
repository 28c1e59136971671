package engine

import (
	"fmt"
	"path/filepath"

	"github.com/arthur-debert/riceify/pkg/errors"
)

// staging is the per-transaction directory backup copies are written to.
type staging struct {
	dir string
}

func (e *Engine) newStaging(tx *Transaction) (*staging, error) {
	dir := filepath.Join(e.stagingDir, tx.ID)
	if err := e.fs.MkdirAll(dir, 0700); err != nil {
		return nil, errors.Wrapf(err, errors.ErrWrite, "failed to create staging directory %s", dir)
	}
	return &staging{dir: dir}, nil
}

// path returns the staged location for the i-th captured file.
func (s *staging) path(i int) string {
	return filepath.Join(s.dir, fmt.Sprintf("%06d", i))
}

func (e *Engine) removeStaging(s *staging) {
	if s == nil {
		return
	}
	if err := e.fs.RemoveAll(s.dir); err != nil {
		e.logger.Warn().Err(err).Str("dir", s.dir).Msg("Failed to remove staging directory")
	}
}
