// Package api exposes one accessor over HTTP: JSON metadata endpoints,
// streaming content endpoints and signed content locators.
package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/fruitsalade/fsaccess/internal/accessor"
	"github.com/fruitsalade/fsaccess/internal/auth"
	"github.com/fruitsalade/fsaccess/internal/fserr"
	"github.com/fruitsalade/fsaccess/internal/locator"
	"github.com/fruitsalade/fsaccess/internal/logging"
	"github.com/fruitsalade/fsaccess/internal/metrics"
	"github.com/fruitsalade/fsaccess/pkg/models"
	"github.com/fruitsalade/fsaccess/pkg/protocol"
)

// Server serves one accessor.
type Server struct {
	acc       accessor.Accessor
	auth      *auth.Auth
	publicURL string
}

// NewServer creates a new server. publicURL is the base used in issued
// locators; when empty it is derived from each request.
func NewServer(acc accessor.Accessor, authHandler *auth.Auth, publicURL string) *Server {
	return &Server{
		acc:       acc,
		auth:      authHandler,
		publicURL: strings.TrimSuffix(publicURL, "/"),
	}
}

// Handler returns the HTTP handler with auth, metrics and logging middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Public endpoints
	mux.HandleFunc("GET /health", s.handleHealth)

	// Content endpoints check locator tokens themselves.
	mux.HandleFunc("GET /content/{path...}", s.handleContentGet)
	mux.HandleFunc("PUT /content/{path...}", s.handleContentPut)

	// Protected endpoints. Each is registered on the top-level mux so the
	// request pattern stays visible to the metrics middleware.
	protect := func(h http.HandlerFunc) http.Handler { return s.auth.Middleware(h) }
	mux.Handle("GET /api/v1/objects/{path...}", protect(s.handleGetObject))
	mux.Handle("PUT /api/v1/objects/{path...}", protect(s.handlePutObject))
	mux.Handle("DELETE /api/v1/objects/{path...}", protect(s.handleDelete))
	mux.Handle("GET /api/v1/children/{path...}", protect(s.handleChildren))
	mux.Handle("POST /api/v1/locators", protect(s.handleLocator))

	return logging.Middleware(metrics.Middleware(mux))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, protocol.HealthResponse{Status: "ok", Accessor: s.acc.Name()})
}

func (s *Server) handleGetObject(w http.ResponseWriter, r *http.Request) {
	obj, err := s.acc.GetObject(r.Context(), pathValue(r))
	if err != nil {
		s.sendErr(w, r, err)
		return
	}
	sendJSON(w, http.StatusOK, publicObject(obj))
}

func (s *Server) handleChildren(w http.ResponseWriter, r *http.Request) {
	p := pathValue(r)
	objs, err := s.acc.GetObjects(r.Context(), p)
	if err != nil {
		s.sendErr(w, r, err)
		return
	}
	if objs == nil {
		objs = []*models.FileSystemObject{}
	}
	for _, o := range objs {
		publicObject(o)
	}
	sendJSON(w, http.StatusOK, protocol.ListResponse{Path: p, Objects: objs})
}

func (s *Server) handlePutObject(w http.ResponseWriter, r *http.Request) {
	var obj models.FileSystemObject
	if err := json.NewDecoder(r.Body).Decode(&obj); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body", "")
		return
	}
	obj.FullPath = pathValue(r)
	obj.Name = models.Name(obj.FullPath)

	if err := s.acc.PutObject(r.Context(), &obj); err != nil {
		s.sendErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	p := pathValue(r)

	var isFile bool
	if v := r.URL.Query().Get("file"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			s.sendError(w, http.StatusBadRequest, "invalid file parameter", "")
			return
		}
		isFile = b
	} else {
		obj, err := s.acc.GetObject(r.Context(), p)
		if err != nil {
			s.sendErr(w, r, err)
			return
		}
		isFile = obj.IsFile()
	}

	if err := s.acc.Delete(r.Context(), p, isFile); err != nil {
		s.sendErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLocator(w http.ResponseWriter, r *http.Request) {
	var req protocol.LocatorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body", "")
		return
	}
	method := locator.Method(strings.ToUpper(req.Method))
	if method != locator.GET && method != locator.PUT {
		s.sendError(w, http.StatusBadRequest, "method must be GET or PUT", "")
		return
	}

	p := models.Clean(req.Path)
	token, _, err := s.auth.IssueLocator(p, string(method))
	if err != nil {
		s.sendErr(w, r, err)
		return
	}

	u := s.baseURL(r) + "/content" + (&url.URL{Path: p}).EscapedPath() + "?token=" + url.QueryEscape(token)
	logging.WithContext(r.Context()).Debug("locator issued",
		zap.String("path", p),
		zap.String("method", string(method)))
	sendJSON(w, http.StatusOK, protocol.LocatorResponse{URL: u})
}

func (s *Server) baseURL(r *http.Request) string {
	if s.publicURL != "" {
		return s.publicURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host
}

// publicObject drops a url the client could not fetch. A file:// locator
// names a path on this host and would leak the storage root.
func publicObject(obj *models.FileSystemObject) *models.FileSystemObject {
	if !locator.IsRemote(obj.URL) {
		obj.URL = ""
	}
	return obj
}

func pathValue(r *http.Request) string {
	return models.Clean(r.PathValue("path"))
}

// statusFor maps a failure category onto an HTTP status.
func statusFor(kind fserr.Kind) int {
	switch kind {
	case fserr.KindNotFound:
		return http.StatusNotFound
	case fserr.KindNotReadable:
		return http.StatusForbidden
	case fserr.KindInvalidModification:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) sendErr(w http.ResponseWriter, r *http.Request, err error) {
	kind, ok := fserr.KindOf(err)
	if !ok {
		logging.WithContext(r.Context()).Error("request failed", zap.Error(err))
		msg := "internal error"
		if r.Context().Err() != nil {
			msg = "request cancelled"
		}
		s.sendError(w, http.StatusInternalServerError, msg, "")
		return
	}
	s.sendError(w, statusFor(kind), err.Error(), kind.String())
}

func (s *Server) sendError(w http.ResponseWriter, code int, message, kind string) {
	sendJSON(w, code, protocol.ErrorResponse{
		Error: message,
		Code:  code,
		Kind:  kind,
	})
}

func sendJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Debug("write response", zap.Error(err))
	}
}
