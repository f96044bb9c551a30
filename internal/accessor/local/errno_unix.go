//go:build unix

package local

import (
	"errors"
	"io/fs"

	"golang.org/x/sys/unix"
)

// unlink removes a non-directory entry only.
func unlink(p string) error {
	if err := unix.Unlink(p); err != nil {
		return &fs.PathError{Op: "unlink", Path: p, Err: err}
	}
	return nil
}

// rmdir removes an empty directory only.
func rmdir(p string) error {
	if err := unix.Rmdir(p); err != nil {
		return &fs.PathError{Op: "rmdir", Path: p, Err: err}
	}
	return nil
}

// POSIX lets rmdir report a non-empty directory as either ENOTEMPTY or EEXIST.
func isNotEmpty(err error) bool {
	return errors.Is(err, unix.ENOTEMPTY) || errors.Is(err, unix.EEXIST)
}

func isNotDir(err error) bool {
	return errors.Is(err, unix.ENOTDIR)
}
