package api

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/fruitsalade/fsaccess/internal/accessor/local"
	"github.com/fruitsalade/fsaccess/internal/auth"
	"github.com/fruitsalade/fsaccess/internal/fserr"
	"github.com/fruitsalade/fsaccess/internal/locator"
	"github.com/fruitsalade/fsaccess/internal/logging"
)

// maxBufferedUpload bounds uploads to backends that cannot stream.
const maxBufferedUpload = 1 << 30

// authorizeContent accepts an API token or a locator token issued for
// exactly this path and method.
func (s *Server) authorizeContent(w http.ResponseWriter, r *http.Request, p string) bool {
	tokenStr := auth.ExtractToken(r)
	if tokenStr == "" {
		auth.SendAuthError(w, http.StatusUnauthorized, "missing authentication token")
		return false
	}
	claims, err := s.auth.ValidateToken(tokenStr)
	if err != nil {
		auth.SendAuthError(w, http.StatusUnauthorized, "invalid token: "+err.Error())
		return false
	}
	if err := auth.Authorize(claims, p, r.Method); err != nil {
		auth.SendAuthError(w, http.StatusUnauthorized, err.Error())
		return false
	}
	return true
}

func (s *Server) handleContentGet(w http.ResponseWriter, r *http.Request) {
	p := pathValue(r)
	if !s.authorizeContent(w, r, p) {
		return
	}
	ctx := r.Context()

	obj, err := s.acc.GetObject(ctx, p)
	if err != nil {
		s.sendErr(w, r, err)
		return
	}
	if !obj.IsFile() {
		s.sendErr(w, r, fserr.NotReadable(s.acc.Name(), p, errors.New("is a directory")))
		return
	}
	modTime := time.UnixMilli(obj.LastModified)

	// Stream straight from disk when the backend is local.
	if u, err := s.acc.GetURL(ctx, p, locator.GET); err == nil && locator.IsLocal(u) {
		if localPath, err := locator.Path(u); err == nil {
			f, err := os.Open(localPath)
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					s.sendErr(w, r, fserr.NotFound(s.acc.Name(), p, err))
				} else {
					s.sendErr(w, r, fserr.NotReadable(s.acc.Name(), p, err))
				}
				return
			}
			defer f.Close()
			http.ServeContent(w, r, obj.Name, modTime, f)
			return
		}
	}

	data, err := s.acc.ReadContent(ctx, p)
	if err != nil {
		s.sendErr(w, r, err)
		return
	}
	http.ServeContent(w, r, obj.Name, modTime, bytes.NewReader(data))
}

func (s *Server) handleContentPut(w http.ResponseWriter, r *http.Request) {
	p := pathValue(r)
	if !s.authorizeContent(w, r, p) {
		return
	}
	ctx := r.Context()
	log := logging.WithContext(ctx)

	if u, err := s.acc.GetURL(ctx, p, locator.PUT); err == nil && locator.IsLocal(u) {
		if localPath, err := locator.Path(u); err == nil {
			n, err := local.WriteFile(localPath, r.Body)
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					s.sendErr(w, r, fserr.NotFound(s.acc.Name(), p, err))
				} else {
					s.sendErr(w, r, fserr.InvalidModification(s.acc.Name(), p, err))
				}
				return
			}
			log.Debug("content streamed", zap.String("path", p), zap.Int64("bytes", n))
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBufferedUpload))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.sendError(w, http.StatusRequestEntityTooLarge, "upload too large", "")
			return
		}
		s.sendError(w, http.StatusBadRequest, "read request body: "+err.Error(), "")
		return
	}
	if err := s.acc.WriteContent(ctx, p, data); err != nil {
		s.sendErr(w, r, err)
		return
	}
	log.Debug("content buffered", zap.String("path", p), zap.Int("bytes", len(data)))
	w.WriteHeader(http.StatusNoContent)
}
