package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/tadoEng/EtabExtension/internal/errs"
)

const (
	lockFileName = "lock"

	lockPollInterval = 25 * time.Millisecond
	// StaleLockAge is how old a lock file must be before another process
	// takes it over. No single manifest update holds the lock that long.
	StaleLockAge = 2 * time.Minute
)

// LockPath returns the location of the project lock file.
func (s *Store) LockPath() string {
	return filepath.Join(s.root, lockFileName)
}

// Lock takes the project lock shared by every process working on the
// project, waiting up to timeout for a holder to release it. The returned
// function releases the lock.
func (s *Store) Lock(timeout time.Duration) (func(), error) {
	path := s.LockPath()
	if err := s.fs.MkdirAll(s.root, 0o755); err != nil {
		return nil, errs.IO(err, "failed to create %s", s.root)
	}

	deadline := time.Now().Add(timeout)
	for {
		f, err := s.fs.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			_, _ = fmt.Fprintf(f, "%d\n", os.Getpid())
			_ = f.Close()
			return func() { _ = s.fs.Remove(path) }, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, errs.IO(err, "failed to create project lock")
		}

		if info, statErr := s.fs.Stat(path); statErr == nil && time.Since(info.ModTime()) > StaleLockAge {
			_ = s.fs.Remove(path)
			continue
		}
		if time.Now().After(deadline) {
			return nil, errs.E(errs.IOFailure, "project is locked by another etabext process (remove %s if none is running)", path)
		}
		time.Sleep(lockPollInterval)
	}
}
