// Package memory provides an in-memory accessor. It never hands out
// locators, so every transfer touching it goes through buffered content.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fruitsalade/fsaccess/internal/fserr"
	"github.com/fruitsalade/fsaccess/internal/locator"
	"github.com/fruitsalade/fsaccess/internal/metrics"
	"github.com/fruitsalade/fsaccess/pkg/models"
)

type entry struct {
	data    []byte // nil for directories
	isDir   bool
	modTime time.Time
}

// MemoryAccessor keeps a whole tree in a map keyed by full path.
// Safe for concurrent use.
type MemoryAccessor struct {
	name string

	mu      sync.RWMutex
	entries map[string]*entry
}

// New creates an empty tree holding only the root.
func New(name string) *MemoryAccessor {
	if name == "" {
		name = "memory"
	}
	return &MemoryAccessor{
		name: name,
		entries: map[string]*entry{
			models.DirSeparator: {isDir: true, modTime: time.Now()},
		},
	}
}

// Name returns "mem:" followed by the configured name.
func (m *MemoryAccessor) Name() string { return "mem:" + m.name }

// GetPath is the cleaned full path; the map is keyed by it.
func (m *MemoryAccessor) GetPath(fullPath string) string { return models.Clean(fullPath) }

// GetURL always reports no locator.
func (m *MemoryAccessor) GetURL(context.Context, string, locator.Method) (string, error) {
	return "", nil
}

// GetObject returns the file or directory at fullPath.
func (m *MemoryAccessor) GetObject(ctx context.Context, fullPath string) (*models.FileSystemObject, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := models.Clean(fullPath)

	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[p]
	if !ok {
		m.record("get_object", start, false)
		return nil, fserr.NotFound(m.Name(), fullPath, nil)
	}
	m.record("get_object", start, true)
	return toObject(p, e), nil
}

// GetObjects lists the direct children of dirPath, sorted by path.
func (m *MemoryAccessor) GetObjects(ctx context.Context, dirPath string) ([]*models.FileSystemObject, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir := models.Clean(dirPath)

	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[dir]
	if !ok {
		m.record("get_objects", start, false)
		return nil, fserr.NotFound(m.Name(), dirPath, nil)
	}
	if !e.isDir {
		m.record("get_objects", start, false)
		return nil, fserr.NotFound(m.Name(), dirPath, errors.New("not a directory"))
	}

	var objs []*models.FileSystemObject
	for p, child := range m.entries {
		if p != models.DirSeparator && models.Parent(p) == dir {
			objs = append(objs, toObject(p, child))
		}
	}
	sort.Slice(objs, func(i, j int) bool { return objs[i].FullPath < objs[j].FullPath })
	m.record("get_objects", start, true)
	return objs, nil
}

// PutObject creates an empty file or a directory. An existing entry of
// the same type is left untouched.
func (m *MemoryAccessor) PutObject(ctx context.Context, obj *models.FileSystemObject) error {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return err
	}
	p := models.Clean(obj.FullPath)

	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.entries[p]; ok {
		if e.isDir == obj.IsFile() {
			m.record("put_object", start, false)
			return fserr.InvalidModification(m.Name(), obj.FullPath,
				fmt.Errorf("%s exists with a different type", obj.FullPath))
		}
		m.record("put_object", start, true)
		return nil
	}
	if err := m.checkParentLocked(p); err != nil {
		m.record("put_object", start, false)
		return fserr.InvalidModification(m.Name(), obj.FullPath, err)
	}

	e := &entry{isDir: !obj.IsFile(), modTime: time.Now()}
	if obj.IsFile() {
		e.data = []byte{}
	}
	m.entries[p] = e
	m.record("put_object", start, true)
	return nil
}

// ReadContent returns a copy of the file content.
func (m *MemoryAccessor) ReadContent(ctx context.Context, fullPath string) ([]byte, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := models.Clean(fullPath)

	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[p]
	if !ok {
		m.record("read_content", start, false)
		return nil, fserr.NotFound(m.Name(), fullPath, nil)
	}
	if e.isDir {
		m.record("read_content", start, false)
		return nil, fserr.NotReadable(m.Name(), fullPath, errors.New("is a directory"))
	}
	out := make([]byte, len(e.data))
	copy(out, e.data)
	m.record("read_content", start, true)
	return out, nil
}

// WriteContent creates or replaces a file. The parent must exist.
func (m *MemoryAccessor) WriteContent(ctx context.Context, fullPath string, content []byte) error {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return err
	}
	p := models.Clean(fullPath)

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkParentLocked(p); err != nil {
		m.record("write_content", start, false)
		return fserr.NotFound(m.Name(), fullPath, err)
	}
	if e, ok := m.entries[p]; ok && e.isDir {
		m.record("write_content", start, false)
		return fserr.InvalidModification(m.Name(), fullPath, errors.New("is a directory"))
	}

	data := make([]byte, len(content))
	copy(data, content)
	m.entries[p] = &entry{data: data, modTime: time.Now()}
	m.record("write_content", start, true)
	return nil
}

// Delete removes a file or an empty directory.
func (m *MemoryAccessor) Delete(ctx context.Context, fullPath string, isFile bool) error {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return err
	}
	p := models.Clean(fullPath)
	if p == models.DirSeparator {
		return fserr.InvalidModification(m.Name(), fullPath, errors.New("cannot delete the root"))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[p]
	if !ok {
		m.record("delete", start, false)
		return fserr.NotFound(m.Name(), fullPath, nil)
	}
	if e.isDir == isFile {
		m.record("delete", start, false)
		return fserr.InvalidModification(m.Name(), fullPath, errors.New("type mismatch"))
	}

	if e.isDir {
		var marker bool
		for child := range m.entries {
			if child == models.DirSeparator || models.Parent(child) != p {
				continue
			}
			if models.Name(child) == models.IndexMarker {
				marker = true
				continue
			}
			m.record("delete", start, false)
			return fserr.InvalidModification(m.Name(), fullPath, errors.New("directory not empty"))
		}
		if marker {
			delete(m.entries, models.Join(p, models.IndexMarker))
		}
	}

	delete(m.entries, p)
	m.record("delete", start, true)
	return nil
}

func (m *MemoryAccessor) checkParentLocked(p string) error {
	parent, ok := m.entries[models.Parent(p)]
	if !ok {
		return fmt.Errorf("parent of %s does not exist", p)
	}
	if !parent.isDir {
		return fmt.Errorf("parent of %s is not a directory", p)
	}
	return nil
}

func (m *MemoryAccessor) record(op string, start time.Time, success bool) {
	metrics.RecordAccessorOperation("memory", op, time.Since(start), success)
}

func toObject(p string, e *entry) *models.FileSystemObject {
	if e.isDir {
		return models.NewDirectory(p, e.modTime)
	}
	return models.NewFile(p, int64(len(e.data)), e.modTime)
}
