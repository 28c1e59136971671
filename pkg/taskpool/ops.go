package taskpool

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/arthur-debert/riceify/pkg/errors"
	"github.com/arthur-debert/riceify/pkg/filesystem"
	"github.com/arthur-debert/riceify/pkg/hashstore"
	"github.com/arthur-debert/riceify/pkg/types"
)

// Kind identifies the file operation an Op performs.
type Kind int

const (
	// KindHashCheck stats and hashes a live file.
	KindHashCheck Kind = iota
	// KindCopyToBackup copies a live file to Dest, recording absence.
	KindCopyToBackup
	// KindWriteFile atomically writes Data to Path.
	KindWriteFile
	// KindDeleteFile removes Path; a missing file is not an error.
	KindDeleteFile
)

func (k Kind) String() string {
	switch k {
	case KindHashCheck:
		return "hash-check"
	case KindCopyToBackup:
		return "copy-to-backup"
	case KindWriteFile:
		return "write-file"
	case KindDeleteFile:
		return "delete-file"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Op is one unit of file work.
type Op struct {
	Kind Kind
	Path string
	Dest string
	Data []byte
	Mode fs.FileMode
}

// HashCheck returns an op that hashes path.
func HashCheck(path string) Op {
	return Op{Kind: KindHashCheck, Path: path}
}

// CopyToBackup returns an op that copies path to dest.
func CopyToBackup(path, dest string) Op {
	return Op{Kind: KindCopyToBackup, Path: path, Dest: dest}
}

// WriteFile returns an op that writes data to path with mode.
func WriteFile(path string, data []byte, mode fs.FileMode) Op {
	return Op{Kind: KindWriteFile, Path: path, Data: data, Mode: mode}
}

// DeleteFile returns an op that removes path.
func DeleteFile(path string) Op {
	return Op{Kind: KindDeleteFile, Path: path}
}

func (o Op) String() string {
	if o.Dest != "" {
		return fmt.Sprintf("%s %s -> %s", o.Kind, o.Path, o.Dest)
	}
	return fmt.Sprintf("%s %s", o.Kind, o.Path)
}

// Result is the outcome of one Op.
type Result struct {
	Op Op

	// Record describes Path after the op: the observed file for hash checks
	// and copies, the written file for writes.
	Record types.FileRecord

	// Absent is set when Path did not exist.
	Absent bool

	Err error
}

// OK reports whether the op succeeded.
func (r Result) OK() bool {
	return r.Err == nil
}

func (p *Pool) execute(op Op) Result {
	switch op.Kind {
	case KindHashCheck:
		return p.hashCheck(op)
	case KindCopyToBackup:
		return p.copyToBackup(op)
	case KindWriteFile:
		return p.writeFile(op)
	case KindDeleteFile:
		return p.deleteFile(op)
	default:
		return Result{Op: op, Err: errors.Newf(errors.ErrInternal, "unknown operation %s", op.Kind)}
	}
}

func (p *Pool) hashCheck(op Op) Result {
	rec, _, err := hashstore.ReadRecord(p.fs, p.hasher, op.Path)
	if err != nil {
		return Result{Op: op, Record: rec, Absent: stderrors.Is(err, fs.ErrNotExist), Err: err}
	}
	return Result{Op: op, Record: rec}
}

func (p *Pool) copyToBackup(op Op) Result {
	rec, data, err := hashstore.ReadRecord(p.fs, p.hasher, op.Path)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			rec.Absent = true
			return Result{Op: op, Record: rec, Absent: true}
		}
		return Result{Op: op, Record: rec, Err: err}
	}

	if err := filesystem.WriteFileAtomic(p.fs, op.Dest, data, fs.FileMode(rec.FileMode())); err != nil {
		return Result{Op: op, Record: rec, Err: errors.Wrapf(err, errors.ErrWrite, "failed to back up %s", op.Path).WithPaths(op.Path)}
	}
	return Result{Op: op, Record: rec}
}

func (p *Pool) writeFile(op Op) Result {
	mode := op.Mode
	if mode == 0 {
		mode = 0644
	}
	if err := filesystem.WriteFileAtomic(p.fs, op.Path, op.Data, mode); err != nil {
		return Result{Op: op, Err: errors.Wrapf(err, errors.ErrWrite, "failed to write %s", op.Path).WithPaths(op.Path)}
	}

	rec := types.FileRecord{
		Path: filepath.Clean(op.Path),
		Hash: p.hasher.Sum(op.Data),
		Size: int64(len(op.Data)),
		Mode: uint32(mode.Perm()),
	}
	info, err := p.fs.Stat(op.Path)
	if err != nil {
		return Result{Op: op, Record: rec, Err: errors.Wrapf(err, errors.ErrWrite, "failed to stat %s after write", op.Path).WithPaths(op.Path)}
	}
	rec.ModTime = info.ModTime()
	return Result{Op: op, Record: rec}
}

func (p *Pool) deleteFile(op Op) Result {
	rec := types.FileRecord{Path: filepath.Clean(op.Path), Absent: true}
	if err := filesystem.RemoveIfExists(p.fs, op.Path); err != nil {
		return Result{Op: op, Record: rec, Err: errors.Wrapf(err, errors.ErrWrite, "failed to delete %s", op.Path).WithPaths(op.Path)}
	}
	return Result{Op: op, Record: rec, Absent: true}
}
