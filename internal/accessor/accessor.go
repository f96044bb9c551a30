// Package accessor defines the Accessor interface every storage backend
// implements, and builds accessors from configuration.
package accessor

import (
	"context"

	"github.com/fruitsalade/fsaccess/internal/locator"
	"github.com/fruitsalade/fsaccess/pkg/models"
)

// Accessor maps the abstract namespace onto one storage medium.
// Every failure it returns is either an *fserr.Error or an unmapped error
// such as a context cancellation.
type Accessor interface {
	// Name identifies the backend in errors and logs (usually its root).
	Name() string

	// GetObject stats fullPath.
	GetObject(ctx context.Context, fullPath string) (*models.FileSystemObject, error)

	// GetObjects lists the immediate children of dirPath. Children that vanish
	// while the listing runs are skipped, never reported.
	GetObjects(ctx context.Context, dirPath string) ([]*models.FileSystemObject, error)

	// PutObject creates a directory (nil Size) or an empty placeholder file.
	// A target that already exists counts as success.
	PutObject(ctx context.Context, obj *models.FileSystemObject) error

	// ReadContent returns the whole content of fullPath.
	ReadContent(ctx context.Context, fullPath string) ([]byte, error)

	// WriteContent replaces the content of fullPath.
	WriteContent(ctx context.Context, fullPath string, content []byte) error

	// Delete removes a file or an empty directory.
	Delete(ctx context.Context, fullPath string, isFile bool) error

	// GetPath maps fullPath onto the backend's own addressing.
	GetPath(fullPath string) string

	// GetURL returns a locator the transfer engine can stream from (GET) or
	// to (PUT), or "" when the backend cannot provide one.
	GetURL(ctx context.Context, fullPath string, method locator.Method) (string, error)
}

// MakeDirectory creates the directory fullPath on a.
func MakeDirectory(ctx context.Context, a Accessor, fullPath string) error {
	return a.PutObject(ctx, &models.FileSystemObject{
		FullPath: fullPath,
		Name:     models.Name(fullPath),
	})
}

// MakeDirectories creates fullPath and every missing ancestor, root first.
func MakeDirectories(ctx context.Context, a Accessor, fullPath string) error {
	p := models.Clean(fullPath)
	if p == models.DirSeparator {
		return nil
	}
	if err := MakeDirectories(ctx, a, models.Parent(p)); err != nil {
		return err
	}
	return MakeDirectory(ctx, a, p)
}
