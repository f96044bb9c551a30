//go:build !unix

package local

import (
	"errors"
	"io/fs"
	"os"
)

var (
	errDirNotEmpty = errors.New("directory not empty")
	errIsDir       = errors.New("is a directory")
	errNotDir      = errors.New("not a directory")
)

func unlink(p string) error {
	info, err := os.Lstat(p)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return &fs.PathError{Op: "unlink", Path: p, Err: errIsDir}
	}
	return os.Remove(p)
}

func rmdir(p string) error {
	info, err := os.Lstat(p)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return &fs.PathError{Op: "rmdir", Path: p, Err: errNotDir}
	}
	names, err := readDirNames(p)
	if err != nil {
		return err
	}
	if len(names) > 0 {
		return &fs.PathError{Op: "rmdir", Path: p, Err: errDirNotEmpty}
	}
	return os.Remove(p)
}

func isNotEmpty(err error) bool {
	return errors.Is(err, errDirNotEmpty)
}

func isNotDir(err error) bool {
	return false
}
