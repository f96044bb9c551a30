// Package transfer moves object content between two accessors. Content is
// streamed when both sides hand out locators and buffered in memory otherwise.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/fruitsalade/fsaccess/internal/accessor"
	"github.com/fruitsalade/fsaccess/internal/accessor/local"
	"github.com/fruitsalade/fsaccess/internal/fserr"
	"github.com/fruitsalade/fsaccess/internal/locator"
	"github.com/fruitsalade/fsaccess/internal/logging"
	"github.com/fruitsalade/fsaccess/internal/metrics"
	"github.com/fruitsalade/fsaccess/pkg/models"
)

// DefaultTimeout bounds connection setup and response headers on remote legs.
const DefaultTimeout = time.Second

// DefaultConcurrency is the number of files TransferTree copies at once.
const DefaultConcurrency = 4

// Strategy names how a transfer moved its bytes.
type Strategy string

const (
	StrategyStream   Strategy = "stream"
	StrategyBuffered Strategy = "buffered"
)

// Result describes a completed transfer.
type Result struct {
	Strategy Strategy
	Bytes    int64
}

// Transferer copies content between accessors. Safe for concurrent use.
type Transferer struct {
	timeout     time.Duration
	concurrency int
	client      *http.Client
	log         *zap.Logger
}

// Option configures a Transferer.
type Option func(*Transferer)

// WithTimeout bounds dialing, TLS handshakes and the wait for response
// headers on each remote leg. Ignored when WithHTTPClient is also given.
func WithTimeout(d time.Duration) Option {
	return func(t *Transferer) {
		if d > 0 {
			t.timeout = d
		}
	}
}

// WithHTTPClient replaces the client used for remote legs.
func WithHTTPClient(c *http.Client) Option {
	return func(t *Transferer) { t.client = c }
}

// WithConcurrency sets how many files TransferTree copies in parallel.
func WithConcurrency(n int) Option {
	return func(t *Transferer) {
		if n > 0 {
			t.concurrency = n
		}
	}
}

// New creates a Transferer.
func New(opts ...Option) *Transferer {
	t := &Transferer{
		timeout:     DefaultTimeout,
		concurrency: DefaultConcurrency,
		log:         logging.Named("transfer"),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.client == nil {
		t.client = newHTTPClient(t.timeout)
	}
	return t
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   timeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   timeout,
			ResponseHeaderTimeout: timeout,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
		},
	}
}

// Transfer copies the content of fromObj on from into toObj on to.
//
// Source faults come back as NotFound or NotReadable under from's name and
// fromObj's path; destination faults come back as InvalidModification under
// to's name and toObj's path. Context errors are returned unchanged.
func (t *Transferer) Transfer(ctx context.Context, from accessor.Accessor, fromObj *models.FileSystemObject,
	to accessor.Accessor, toObj *models.FileSystemObject) (Result, error) {
	start := time.Now()

	fromURL, err := t.resolve(ctx, from, fromObj.FullPath, locator.GET)
	if err != nil {
		return Result{}, err
	}
	toURL, err := t.resolve(ctx, to, toObj.FullPath, locator.PUT)
	if err != nil {
		return Result{}, err
	}

	res := Result{Strategy: StrategyBuffered}
	if fromURL != "" && toURL != "" {
		res.Strategy = StrategyStream
		res.Bytes, err = t.stream(ctx, from, fromObj, fromURL, to, toObj, toURL)
	} else {
		res.Bytes, err = t.buffered(ctx, from, fromObj, to, toObj)
	}

	metrics.RecordTransfer(string(res.Strategy), res.Bytes, time.Since(start), err == nil)
	if err != nil {
		t.log.Debug("transfer failed",
			zap.String("strategy", string(res.Strategy)),
			zap.String("from", from.Name()+fromObj.FullPath),
			zap.String("to", to.Name()+toObj.FullPath),
			zap.Error(err))
		return res, err
	}
	t.log.Debug("transfer complete",
		zap.String("strategy", string(res.Strategy)),
		zap.String("from", from.Name()+fromObj.FullPath),
		zap.String("to", to.Name()+toObj.FullPath),
		zap.Int64("bytes", res.Bytes),
		zap.Duration("duration", time.Since(start)))
	return res, nil
}

// resolve asks acc for a locator. A failed lookup counts as no locator, so
// the transfer falls back to buffered content.
func (t *Transferer) resolve(ctx context.Context, acc accessor.Accessor, fullPath string, method locator.Method) (string, error) {
	u, err := acc.GetURL(ctx, fullPath, method)
	if err == nil {
		return u, nil
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	t.log.Warn("locator lookup failed, using buffered transfer",
		zap.String("accessor", acc.Name()),
		zap.String("path", fullPath),
		zap.String("method", string(method)),
		zap.Error(err))
	return "", nil
}

func (t *Transferer) buffered(ctx context.Context, from accessor.Accessor, fromObj *models.FileSystemObject,
	to accessor.Accessor, toObj *models.FileSystemObject) (int64, error) {
	data, err := from.ReadContent(ctx, fromObj.FullPath)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		if _, ok := fserr.KindOf(err); ok {
			return 0, err
		}
		return 0, fserr.NotReadable(from.Name(), fromObj.FullPath, err)
	}

	if err := to.WriteContent(ctx, toObj.FullPath, data); err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, destErr(to, toObj.FullPath, err)
	}
	return int64(len(data)), nil
}

func (t *Transferer) stream(ctx context.Context, from accessor.Accessor, fromObj *models.FileSystemObject, fromURL string,
	to accessor.Accessor, toObj *models.FileSystemObject, toURL string) (int64, error) {
	src, size, err := t.openSource(ctx, fromURL)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, sourceErr(from, fromObj.FullPath, err)
	}
	defer src.Close()

	tr := newTrackingReader(ctx, src, size)
	n, err := t.writeDest(ctx, tr, size, toURL)
	if err == nil {
		return n, nil
	}
	if ctx.Err() != nil {
		return n, ctx.Err()
	}
	if srcErr := tr.Err(); srcErr != nil {
		return n, sourceErr(from, fromObj.FullPath, srcErr)
	}
	return n, destErr(to, toObj.FullPath, err)
}

// errNotFound marks a source the remote side reported as missing.
var errNotFound = errors.New("source not found")

// openSource opens the byte stream behind a GET locator and reports its
// size, or -1 when unknown.
func (t *Transferer) openSource(ctx context.Context, u string) (io.ReadCloser, int64, error) {
	if locator.IsLocal(u) {
		p, err := locator.Path(u)
		if err != nil {
			return nil, 0, err
		}
		f, err := os.Open(p)
		if err != nil {
			return nil, 0, err
		}
		info, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, 0, err
		}
		if info.IsDir() {
			f.Close()
			return nil, 0, fmt.Errorf("%s is a directory", p)
		}
		return f, info.Size(), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	switch resp.StatusCode {
	case http.StatusOK:
		return resp.Body, resp.ContentLength, nil
	case http.StatusNotFound:
		resp.Body.Close()
		return nil, 0, errNotFound
	default:
		msg := readSnippet(resp.Body)
		resp.Body.Close()
		return nil, 0, fmt.Errorf("source returned %d: %s", resp.StatusCode, msg)
	}
}

// writeDest drains src into the destination behind a PUT locator and
// returns only once the destination has confirmed the write.
func (t *Transferer) writeDest(ctx context.Context, src *trackingReader, size int64, u string) (int64, error) {
	if locator.IsLocal(u) {
		p, err := locator.Path(u)
		if err != nil {
			return 0, err
		}
		return local.WriteFile(p, src)
	}

	var body io.Reader = src
	if size == 0 {
		body = http.NoBody
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u, body)
	if err != nil {
		return 0, err
	}
	if size > 0 {
		req.ContentLength = size
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := t.client.Do(req)
	if err != nil {
		return src.N(), err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return src.N(), fmt.Errorf("destination returned %d: %s", resp.StatusCode, readSnippet(resp.Body))
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	return src.N(), nil
}

func readSnippet(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 512))
	return string(b)
}

func sourceErr(from accessor.Accessor, fullPath string, err error) error {
	if errors.Is(err, errNotFound) || errors.Is(err, fs.ErrNotExist) {
		return fserr.NotFound(from.Name(), fullPath, err)
	}
	return fserr.NotReadable(from.Name(), fullPath, err)
}

func destErr(to accessor.Accessor, fullPath string, err error) error {
	var fe *fserr.Error
	if errors.As(err, &fe) && fe.Kind == fserr.KindInvalidModification {
		return err
	}
	return fserr.InvalidModification(to.Name(), fullPath, err)
}
