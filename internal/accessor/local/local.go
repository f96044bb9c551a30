// Package local provides an accessor backed by a directory on the local filesystem.
package local

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/fruitsalade/fsaccess/internal/async"
	"github.com/fruitsalade/fsaccess/internal/fserr"
	"github.com/fruitsalade/fsaccess/internal/locator"
	"github.com/fruitsalade/fsaccess/internal/logging"
	"github.com/fruitsalade/fsaccess/internal/metrics"
	"github.com/fruitsalade/fsaccess/pkg/models"
)

var errNotEmpty = errors.New("directory not empty")

// Config holds local filesystem accessor settings.
type Config struct {
	RootPath string `json:"root_path"`
}

// LocalAccessor implements accessor.Accessor on a local directory.
type LocalAccessor struct {
	rootDir string
	log     *zap.Logger
}

// New creates a local accessor, creating the root directory if it is missing.
func New(cfg Config) (*LocalAccessor, error) {
	if cfg.RootPath == "" {
		return nil, fmt.Errorf("root_path is required")
	}

	root, err := filepath.Abs(cfg.RootPath)
	if err != nil {
		return nil, fmt.Errorf("resolve root path %s: %w", cfg.RootPath, err)
	}

	info, err := os.Stat(root)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("stat root path %s: %w", root, err)
		}
		if mkErr := os.MkdirAll(root, 0o755); mkErr != nil {
			return nil, fmt.Errorf("create root path %s: %w", root, mkErr)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("root path %s is not a directory", root)
	}

	return &LocalAccessor{
		rootDir: root,
		log:     logging.Named("local").With(zap.String("root", root)),
	}, nil
}

// NewFromJSON creates a LocalAccessor from raw JSON config.
func NewFromJSON(raw json.RawMessage) (*LocalAccessor, error) {
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse local config: %w", err)
	}
	return New(cfg)
}

// Name returns the root directory.
func (a *LocalAccessor) Name() string { return a.rootDir }

// GetPath maps fullPath under the root. The root itself maps to the root
// directory, and ".." segments never climb above it.
func (a *LocalAccessor) GetPath(fullPath string) string {
	p := models.Clean(fullPath)
	if p == models.DirSeparator {
		return a.rootDir
	}
	return filepath.Join(a.rootDir, filepath.FromSlash(p))
}

// GetURL returns a file:// locator for both GET and PUT.
func (a *LocalAccessor) GetURL(_ context.Context, fullPath string, method locator.Method) (string, error) {
	switch method {
	case locator.GET, locator.PUT:
		return locator.FileURL(a.GetPath(fullPath)), nil
	default:
		return "", nil
	}
}

// GetObject stats fullPath.
func (a *LocalAccessor) GetObject(ctx context.Context, fullPath string) (*models.FileSystemObject, error) {
	start := time.Now()
	obj, err := async.Do(ctx, func() (*models.FileSystemObject, error) {
		p := a.GetPath(fullPath)
		info, err := os.Stat(p)
		if err != nil {
			return nil, a.readErr(fullPath, err)
		}
		obj := toObject(models.Clean(fullPath), info)
		obj.URL = locator.FileURL(p)
		return obj, nil
	})
	a.observe("get_object", start, err)
	return obj, err
}

// GetObjects lists the immediate children of dirPath.
func (a *LocalAccessor) GetObjects(ctx context.Context, dirPath string) ([]*models.FileSystemObject, error) {
	start := time.Now()
	objs, err := async.Do(ctx, func() ([]*models.FileSystemObject, error) {
		dir := a.GetPath(dirPath)
		names, err := readDirNames(dir)
		if err != nil {
			return nil, a.readErr(dirPath, err)
		}
		return a.statChildren(models.Clean(dirPath), dir, names)
	})
	a.observe("get_objects", start, err)
	return objs, err
}

// statChildren stats every listed name. A name that no longer exists was
// deleted after enumeration; it is logged and skipped.
func (a *LocalAccessor) statChildren(dirPath, dir string, names []string) ([]*models.FileSystemObject, error) {
	objs := make([]*models.FileSystemObject, 0, len(names))
	for _, name := range names {
		if isTempName(name) {
			continue
		}

		childPath := models.Join(dirPath, name)
		p := filepath.Join(dir, name)
		info, err := os.Stat(p)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				a.log.Warn("child vanished during listing",
					zap.String("path", childPath),
					zap.Error(err))
				metrics.RecordListingSkip("local")
				continue
			}
			return nil, fserr.NotReadable(a.rootDir, childPath, err)
		}

		obj := toObject(childPath, info)
		obj.URL = locator.FileURL(p)
		objs = append(objs, obj)
	}
	return objs, nil
}

// PutObject creates a directory, or an empty file when obj.Size is set.
func (a *LocalAccessor) PutObject(ctx context.Context, obj *models.FileSystemObject) error {
	start := time.Now()
	err := async.Run(ctx, func() error {
		p := a.GetPath(obj.FullPath)

		var err error
		if obj.IsFile() {
			var f *os.File
			f, err = os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
			if err == nil {
				err = f.Close()
			}
		} else {
			err = os.Mkdir(p, 0o755)
		}
		if err == nil {
			return nil
		}

		// Lost a race or created earlier: fine as long as the kind matches.
		if info, statErr := os.Stat(p); statErr == nil {
			if info.IsDir() != !obj.IsFile() {
				return fserr.InvalidModification(a.rootDir, obj.FullPath,
					fmt.Errorf("%s exists with a different type", obj.FullPath))
			}
			return nil
		}
		return fserr.InvalidModification(a.rootDir, obj.FullPath, err)
	})
	a.observe("put_object", start, err)
	return err
}

// ReadContent reads the whole file at fullPath.
func (a *LocalAccessor) ReadContent(ctx context.Context, fullPath string) ([]byte, error) {
	start := time.Now()
	content, err := async.Do(ctx, func() ([]byte, error) {
		b, err := os.ReadFile(a.GetPath(fullPath))
		if err != nil {
			return nil, a.readErr(fullPath, err)
		}
		return b, nil
	})
	a.observe("read_content", start, err)
	return content, err
}

// WriteContent replaces the file at fullPath. The parent directory must exist.
func (a *LocalAccessor) WriteContent(ctx context.Context, fullPath string, content []byte) error {
	start := time.Now()
	err := async.Run(ctx, func() error {
		if _, err := WriteFile(a.GetPath(fullPath), bytes.NewReader(content)); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return fserr.NotFound(a.rootDir, fullPath, err)
			}
			return fserr.InvalidModification(a.rootDir, fullPath, err)
		}
		return nil
	})
	a.observe("write_content", start, err)
	return err
}

// Delete removes a file or an empty directory.
func (a *LocalAccessor) Delete(ctx context.Context, fullPath string, isFile bool) error {
	start := time.Now()
	err := async.Run(ctx, func() error {
		if models.IsRoot(fullPath) {
			return fserr.InvalidModification(a.rootDir, fullPath, errors.New("cannot delete the root"))
		}

		p := a.GetPath(fullPath)
		var err error
		if isFile {
			err = unlink(p)
		} else {
			err = a.removeDir(p)
		}
		if err == nil {
			return nil
		}
		if errors.Is(err, fs.ErrNotExist) {
			return fserr.NotFound(a.rootDir, fullPath, err)
		}
		return fserr.InvalidModification(a.rootDir, fullPath, err)
	})
	a.observe("delete", start, err)
	return err
}

// removeDir removes an empty directory. A directory whose only entry is
// models.IndexMarker counts as empty: the marker goes first.
func (a *LocalAccessor) removeDir(p string) error {
	err := rmdir(p)
	if err == nil || !isNotEmpty(err) {
		return err
	}

	names, readErr := readDirNames(p)
	if readErr != nil {
		return readErr
	}
	if len(names) != 1 || names[0] != models.IndexMarker {
		return fmt.Errorf("%w: %s", errNotEmpty, p)
	}
	if err := os.Remove(filepath.Join(p, models.IndexMarker)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return rmdir(p)
}

// readErr classifies a stat/read/list failure.
func (a *LocalAccessor) readErr(fullPath string, err error) error {
	if errors.Is(err, fs.ErrNotExist) || isNotDir(err) {
		return fserr.NotFound(a.rootDir, fullPath, err)
	}
	return fserr.NotReadable(a.rootDir, fullPath, err)
}

func (a *LocalAccessor) observe(op string, start time.Time, err error) {
	metrics.RecordAccessorOperation("local", op, time.Since(start), err == nil)
	if err != nil {
		a.log.Debug("operation failed", zap.String("op", op), zap.Error(err))
	}
}

func readDirNames(dir string) ([]string, error) {
	f, err := os.Open(dir)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	names, err := f.Readdirnames(-1)
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

func toObject(fullPath string, info fs.FileInfo) *models.FileSystemObject {
	if info.IsDir() {
		return models.NewDirectory(fullPath, info.ModTime())
	}
	return models.NewFile(fullPath, info.Size(), info.ModTime())
}
