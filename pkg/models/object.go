// Package models contains the value types shared by every accessor.
package models

import (
	"path"
	"strings"
	"time"
)

// DirSeparator is the only separator used in abstract full paths.
// The root path is the separator alone.
const DirSeparator = "/"

// IndexMarker is the reserved bookkeeping entry some consumers keep in each
// directory. Accessors delete a directory holding nothing else as if it were empty.
const IndexMarker = ".INDEX.json"

// FileSystemObject describes one file or directory as seen by an accessor.
// A nil Size marks a directory; there is no other type tag.
type FileSystemObject struct {
	FullPath     string `json:"fullPath"`
	Name         string `json:"name"`
	LastModified int64  `json:"lastModified"`
	Size         *int64 `json:"size,omitempty"`
	URL          string `json:"url,omitempty"`
}

// IsFile reports whether the object is a file.
func (o *FileSystemObject) IsFile() bool {
	return o != nil && o.Size != nil
}

// SizeOrZero returns the file size, or 0 for directories.
func (o *FileSystemObject) SizeOrZero() int64 {
	if o == nil || o.Size == nil {
		return 0
	}
	return *o.Size
}

// NewFile builds a file object for fullPath.
func NewFile(fullPath string, size int64, modTime time.Time) *FileSystemObject {
	return &FileSystemObject{
		FullPath:     fullPath,
		Name:         Name(fullPath),
		LastModified: Millis(modTime),
		Size:         &size,
	}
}

// NewDirectory builds a directory object for fullPath.
func NewDirectory(fullPath string, modTime time.Time) *FileSystemObject {
	return &FileSystemObject{
		FullPath:     fullPath,
		Name:         Name(fullPath),
		LastModified: Millis(modTime),
	}
}

// Millis converts t to epoch milliseconds. The zero time maps to 0.
func Millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// Clean normalizes an abstract path: it is always absolute, has no
// trailing separator (except for the root), and ".." never climbs above root.
func Clean(fullPath string) string {
	return path.Clean(DirSeparator + fullPath)
}

// Name returns the last segment of fullPath. The root has an empty name.
func Name(fullPath string) string {
	p := Clean(fullPath)
	if p == DirSeparator {
		return ""
	}
	return p[strings.LastIndex(p, DirSeparator)+1:]
}

// Parent returns the directory containing fullPath. The parent of the root is the root.
func Parent(fullPath string) string {
	return path.Dir(Clean(fullPath))
}

// Join appends name to dirPath without producing a double separator at the root.
func Join(dirPath, name string) string {
	if dirPath == DirSeparator || dirPath == "" {
		return DirSeparator + name
	}
	return dirPath + DirSeparator + name
}

// IsRoot reports whether fullPath addresses the root.
func IsRoot(fullPath string) bool {
	return Clean(fullPath) == DirSeparator
}
