// Package remote provides an accessor that talks to an fsaccess server over HTTP.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fruitsalade/fsaccess/internal/fserr"
	"github.com/fruitsalade/fsaccess/internal/locator"
	"github.com/fruitsalade/fsaccess/internal/logging"
	"github.com/fruitsalade/fsaccess/internal/metrics"
	"github.com/fruitsalade/fsaccess/pkg/models"
	"github.com/fruitsalade/fsaccess/pkg/protocol"
	"github.com/fruitsalade/fsaccess/pkg/retry"
)

// Config holds remote accessor settings.
type Config struct {
	BaseURL     string        `json:"base_url"`
	Token       string        `json:"token"`
	Timeout     time.Duration `json:"timeout"`
	RetryConfig retry.Config  `json:"-"`
}

// RemoteAccessor implements accessor.Accessor against the HTTP API.
type RemoteAccessor struct {
	baseURL     string
	token       string
	httpClient  *http.Client
	retryConfig retry.Config
	log         *zap.Logger
}

// New creates a remote accessor.
func New(cfg Config) (*RemoteAccessor, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("base_url must be an http(s) URL, got %q", cfg.BaseURL)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryConfig.MaxAttempts == 0 {
		cfg.RetryConfig = retry.DefaultConfig()
	}

	base := strings.TrimSuffix(cfg.BaseURL, "/")
	return &RemoteAccessor{
		baseURL: base,
		token:   cfg.Token,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        100,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		retryConfig: cfg.RetryConfig,
		log:         logging.Named("remote").With(zap.String("server", base)),
	}, nil
}

// NewFromJSON creates a RemoteAccessor from raw JSON config.
func NewFromJSON(raw json.RawMessage) (*RemoteAccessor, error) {
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse remote config: %w", err)
	}
	return New(cfg)
}

// Name returns the server base URL.
func (a *RemoteAccessor) Name() string { return a.baseURL }

// GetPath returns the server content URL of fullPath, without credentials.
func (a *RemoteAccessor) GetPath(fullPath string) string {
	return a.baseURL + "/content" + escape(fullPath)
}

func escape(fullPath string) string {
	return (&url.URL{Path: models.Clean(fullPath)}).EscapedPath()
}

func (a *RemoteAccessor) GetObject(ctx context.Context, fullPath string) (*models.FileSystemObject, error) {
	var obj models.FileSystemObject
	err := a.call(ctx, request{
		op:       "get_object",
		method:   http.MethodGet,
		path:     "/api/v1/objects" + escape(fullPath),
		fullPath: fullPath,
		out:      &obj,
	})
	if err != nil {
		return nil, err
	}
	return fetchable(&obj), nil
}

func (a *RemoteAccessor) GetObjects(ctx context.Context, dirPath string) ([]*models.FileSystemObject, error) {
	var resp protocol.ListResponse
	err := a.call(ctx, request{
		op:       "get_objects",
		method:   http.MethodGet,
		path:     "/api/v1/children" + escape(dirPath),
		fullPath: dirPath,
		out:      &resp,
	})
	if err != nil {
		return nil, err
	}
	for _, o := range resp.Objects {
		fetchable(o)
	}
	return resp.Objects, nil
}

// fetchable keeps only locators this client can open.
func fetchable(obj *models.FileSystemObject) *models.FileSystemObject {
	if !locator.IsRemote(obj.URL) {
		obj.URL = ""
	}
	return obj
}

func (a *RemoteAccessor) PutObject(ctx context.Context, obj *models.FileSystemObject) error {
	body, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("encode object: %w", err)
	}
	return a.call(ctx, request{
		op:       "put_object",
		method:   http.MethodPut,
		path:     "/api/v1/objects" + escape(obj.FullPath),
		fullPath: obj.FullPath,
		body:     body,
		json:     true,
		write:    true,
	})
}

func (a *RemoteAccessor) ReadContent(ctx context.Context, fullPath string) ([]byte, error) {
	var data []byte
	err := a.call(ctx, request{
		op:       "read_content",
		method:   http.MethodGet,
		path:     "/content" + escape(fullPath),
		fullPath: fullPath,
		raw:      &data,
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (a *RemoteAccessor) WriteContent(ctx context.Context, fullPath string, content []byte) error {
	if content == nil {
		content = []byte{}
	}
	return a.call(ctx, request{
		op:       "write_content",
		method:   http.MethodPut,
		path:     "/content" + escape(fullPath),
		fullPath: fullPath,
		body:     content,
		write:    true,
	})
}

func (a *RemoteAccessor) Delete(ctx context.Context, fullPath string, isFile bool) error {
	return a.call(ctx, request{
		op:       "delete",
		method:   http.MethodDelete,
		path:     fmt.Sprintf("/api/v1/objects%s?file=%t", escape(fullPath), isFile),
		fullPath: fullPath,
		write:    true,
	})
}

// GetURL asks the server for a signed content locator.
func (a *RemoteAccessor) GetURL(ctx context.Context, fullPath string, method locator.Method) (string, error) {
	body, err := json.Marshal(protocol.LocatorRequest{Path: models.Clean(fullPath), Method: string(method)})
	if err != nil {
		return "", fmt.Errorf("encode locator request: %w", err)
	}
	var resp protocol.LocatorResponse
	err = a.call(ctx, request{
		op:       "get_url",
		method:   http.MethodPost,
		path:     "/api/v1/locators",
		fullPath: fullPath,
		body:     body,
		json:     true,
		out:      &resp,
	})
	if err != nil {
		return "", err
	}
	return resp.URL, nil
}

type request struct {
	op       string
	method   string
	path     string
	fullPath string
	body     []byte
	json     bool
	write    bool    // failures map to InvalidModification rather than NotReadable
	out      any     // JSON response target
	raw      *[]byte // raw response target
}

// statusError is a response the server classified as a failure.
type statusError struct {
	code int
	resp protocol.ErrorResponse
}

func (e *statusError) Error() string {
	if e.resp.Error != "" {
		return fmt.Sprintf("server returned %d: %s", e.code, e.resp.Error)
	}
	return fmt.Sprintf("server returned %d", e.code)
}

func (a *RemoteAccessor) call(ctx context.Context, req request) error {
	start := time.Now()
	err := retry.Do(ctx, a.retryConfig, func() error {
		return a.attempt(ctx, req)
	})
	metrics.RecordAccessorOperation("remote", req.op, time.Since(start), err == nil)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return a.classify(req, err)
}

func (a *RemoteAccessor) attempt(ctx context.Context, req request) error {
	var body io.Reader
	if req.body != nil {
		body = bytes.NewReader(req.body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, a.baseURL+req.path, body)
	if err != nil {
		return err
	}
	if req.json {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if a.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		a.log.Warn("request failed", zap.String("op", req.op), zap.Error(err))
		return retry.Retryable(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &statusError{code: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(&se.resp); err != nil {
			a.log.Debug("undecodable error body", zap.Int("status", resp.StatusCode), zap.Error(err))
		}
		if resp.StatusCode >= 500 {
			return retry.Retryable(se)
		}
		return se
	}

	switch {
	case req.raw != nil:
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return retry.Retryable(fmt.Errorf("read response: %w", err))
		}
		*req.raw = data
	case req.out != nil:
		if err := json.NewDecoder(resp.Body).Decode(req.out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// classify maps a failed call into the taxonomy under this accessor's name.
func (a *RemoteAccessor) classify(req request, err error) error {
	var se *statusError
	if errors.As(err, &se) {
		kind := fserr.ParseKind(se.resp.Kind)
		if kind == 0 {
			switch se.code {
			case http.StatusNotFound:
				kind = fserr.KindNotFound
			case http.StatusForbidden:
				kind = fserr.KindNotReadable
			case http.StatusConflict:
				kind = fserr.KindInvalidModification
			}
		}
		if kind != 0 {
			return fserr.New(kind, a.Name(), req.fullPath, se)
		}
	}
	if req.write {
		return fserr.InvalidModification(a.Name(), req.fullPath, err)
	}
	return fserr.NotReadable(a.Name(), req.fullPath, err)
}
