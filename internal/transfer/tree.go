package transfer

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fruitsalade/fsaccess/internal/accessor"
	"github.com/fruitsalade/fsaccess/pkg/models"
)

// TreeResult summarizes a recursive copy.
type TreeResult struct {
	Dirs     int
	Files    int
	Bytes    int64
	Streamed int
}

// TransferTree copies the directory fromDir on from into toDir on to. The
// source is listed in full before anything is created, so copying a
// directory into its own subtree terminates. The directory skeleton is then
// created depth-first and files are copied in parallel. The first failure
// cancels the remaining copies.
func (t *Transferer) TransferTree(ctx context.Context, from accessor.Accessor, fromDir string,
	to accessor.Accessor, toDir string) (TreeResult, error) {
	start := time.Now()
	fromDir = models.Clean(fromDir)
	toDir = models.Clean(toDir)

	var res TreeResult
	snap := snapshot{}
	if from.Name() == to.Name() {
		snap.skip = toDir
	}
	if err := snap.walk(ctx, from, fromDir); err != nil {
		return res, err
	}

	if err := accessor.MakeDirectories(ctx, to, toDir); err != nil {
		return res, err
	}
	for _, dir := range snap.dirs {
		if err := accessor.MakeDirectory(ctx, to, rebase(dir, fromDir, toDir)); err != nil {
			return res, err
		}
		res.Dirs++
	}
	files := snap.files

	var (
		bytes    atomic.Int64
		copied   atomic.Int64
		streamed atomic.Int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.concurrency)
	for _, f := range files {
		dest := &models.FileSystemObject{
			FullPath: rebase(f.FullPath, fromDir, toDir),
			Name:     f.Name,
			Size:     f.Size,
		}
		g.Go(func() error {
			r, err := t.Transfer(gctx, from, f, to, dest)
			if err != nil {
				return err
			}
			bytes.Add(r.Bytes)
			copied.Add(1)
			if r.Strategy == StrategyStream {
				streamed.Add(1)
			}
			return nil
		})
	}
	err := g.Wait()

	res.Files = int(copied.Load())
	res.Bytes = bytes.Load()
	res.Streamed = int(streamed.Load())
	if err != nil {
		return res, err
	}
	t.log.Info("tree transfer complete",
		zap.String("from", from.Name()+fromDir),
		zap.String("to", to.Name()+toDir),
		zap.Int("dirs", res.Dirs),
		zap.Int("files", res.Files),
		zap.Int64("bytes", res.Bytes),
		zap.Duration("duration", time.Since(start)))
	return res, nil
}

// snapshot is a pre-order listing of a source tree.
type snapshot struct {
	skip  string // destination root when copying within one accessor
	dirs  []string
	files []*models.FileSystemObject
}

func (s *snapshot) walk(ctx context.Context, from accessor.Accessor, dir string) error {
	children, err := from.GetObjects(ctx, dir)
	if err != nil {
		return err
	}
	for _, child := range children {
		if child.IsFile() {
			s.files = append(s.files, child)
			continue
		}
		if models.Clean(child.FullPath) == s.skip {
			continue
		}
		s.dirs = append(s.dirs, child.FullPath)
		if err := s.walk(ctx, from, child.FullPath); err != nil {
			return err
		}
	}
	return nil
}

// rebase moves p from under fromRoot to under toRoot.
func rebase(p, fromRoot, toRoot string) string {
	rel := strings.TrimPrefix(p, fromRoot)
	rel = strings.TrimPrefix(rel, models.DirSeparator)
	if rel == "" {
		return toRoot
	}
	return models.Join(toRoot, rel)
}
