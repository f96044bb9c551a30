package remote_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fruitsalade/fsaccess/internal/accessor"
	"github.com/fruitsalade/fsaccess/internal/accessor/local"
	"github.com/fruitsalade/fsaccess/internal/accessor/memory"
	"github.com/fruitsalade/fsaccess/internal/accessor/remote"
	"github.com/fruitsalade/fsaccess/internal/api"
	"github.com/fruitsalade/fsaccess/internal/auth"
	"github.com/fruitsalade/fsaccess/internal/fserr"
	"github.com/fruitsalade/fsaccess/internal/locator"
	"github.com/fruitsalade/fsaccess/pkg/models"
	"github.com/fruitsalade/fsaccess/pkg/retry"
)

func newServer(t *testing.T, wrap func(http.Handler) http.Handler) (*httptest.Server, string) {
	t.Helper()
	return newServerOver(t, memory.New("backing"), wrap)
}

func newServerOver(t *testing.T, backing accessor.Accessor, wrap func(http.Handler) http.Handler) (*httptest.Server, string) {
	t.Helper()
	a := auth.New("secret", time.Minute)
	token, err := a.IssueToken("test", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	h := api.NewServer(backing, a, "").Handler()
	if wrap != nil {
		h = wrap(h)
	}
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv, token
}

func newClient(t *testing.T, baseURL, token string) *remote.RemoteAccessor {
	t.Helper()
	c, err := remote.New(remote.Config{
		BaseURL:     baseURL,
		Token:       token,
		RetryConfig: retry.Config{MaxAttempts: 3, InitialWait: time.Millisecond, MaxWait: time.Millisecond, Multiplier: 1},
	})
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestRemoteRoundTrip(t *testing.T) {
	srv, token := newServer(t, nil)
	c := newClient(t, srv.URL, token)
	ctx := context.Background()

	if err := c.PutObject(ctx, &models.FileSystemObject{FullPath: "/dir", Name: "dir"}); err != nil {
		t.Fatalf("PutObject: %v", err)
	}
	if err := c.WriteContent(ctx, "/dir/f.txt", []byte("payload")); err != nil {
		t.Fatalf("WriteContent: %v", err)
	}
	if err := c.WriteContent(ctx, "/dir/empty", nil); err != nil {
		t.Fatalf("WriteContent empty: %v", err)
	}

	data, err := c.ReadContent(ctx, "/dir/f.txt")
	if err != nil || string(data) != "payload" {
		t.Fatalf("ReadContent = %q, %v", data, err)
	}

	objs, err := c.GetObjects(ctx, "/dir")
	if err != nil {
		t.Fatal(err)
	}
	if len(objs) != 2 || objs[0].FullPath != "/dir/empty" || objs[0].SizeOrZero() != 0 || !objs[0].IsFile() {
		t.Errorf("GetObjects = %+v", objs)
	}

	if err := c.Delete(ctx, "/dir", false); !errors.Is(err, fserr.ErrInvalidModification) {
		t.Errorf("Delete non-empty = %v", err)
	}
}

func TestRemoteErrorsCarryClientName(t *testing.T) {
	srv, token := newServer(t, nil)
	c := newClient(t, srv.URL, token)

	_, err := c.GetObject(context.Background(), "/missing")
	var fe *fserr.Error
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v", err)
	}
	if fe.Kind != fserr.KindNotFound || fe.Accessor != srv.URL || fe.FullPath != "/missing" {
		t.Errorf("err = %+v", fe)
	}

	bad := newClient(t, srv.URL, "wrong")
	if _, err := bad.GetObject(context.Background(), "/"); !errors.Is(err, fserr.ErrNotReadable) {
		t.Errorf("unauthorized read = %v", err)
	}
	if err := bad.WriteContent(context.Background(), "/x", []byte("x")); !errors.Is(err, fserr.ErrInvalidModification) {
		t.Errorf("unauthorized write = %v", err)
	}
}

func TestRemoteGetURL(t *testing.T) {
	srv, token := newServer(t, nil)
	c := newClient(t, srv.URL, token)

	u, err := c.GetURL(context.Background(), "/f", locator.PUT)
	if err != nil {
		t.Fatal(err)
	}
	if !locator.IsRemote(u) {
		t.Errorf("locator %q is not remote", u)
	}
	if c.GetPath("/a b") != srv.URL+"/content/a%20b" {
		t.Errorf("GetPath = %q", c.GetPath("/a b"))
	}
}

func TestRemoteRetriesServerErrors(t *testing.T) {
	var failures atomic.Int32
	failures.Store(2)
	srv, token := newServer(t, func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if failures.Add(-1) >= 0 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			next.ServeHTTP(w, r)
		})
	})
	c := newClient(t, srv.URL, token)

	if _, err := c.GetObject(context.Background(), "/"); err != nil {
		t.Fatalf("GetObject after transient failures: %v", err)
	}
}

func TestRemoteCancelledContext(t *testing.T) {
	srv, token := newServer(t, nil)
	c := newClient(t, srv.URL, token)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.GetObject(ctx, "/"); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestNewRejectsBadURL(t *testing.T) {
	if _, err := remote.New(remote.Config{BaseURL: "file:///tmp"}); err == nil {
		t.Error("file URL accepted")
	}
}

func TestRemoteHidesServerFileLocators(t *testing.T) {
	backing, err := local.New(local.Config{RootPath: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := backing.WriteContent(ctx, "/a.txt", []byte("a")); err != nil {
		t.Fatal(err)
	}
	if obj, _ := backing.GetObject(ctx, "/a.txt"); !locator.IsLocal(obj.URL) {
		t.Fatalf("backing url = %q, want a file locator", obj.URL)
	}

	srv, token := newServerOver(t, backing, nil)
	c := newClient(t, srv.URL, token)

	obj, err := c.GetObject(ctx, "/a.txt")
	if err != nil {
		t.Fatal(err)
	}
	if obj.URL != "" {
		t.Errorf("GetObject url = %q, want none", obj.URL)
	}
	objs, err := c.GetObjects(ctx, "/")
	if err != nil {
		t.Fatal(err)
	}
	if len(objs) != 1 || objs[0].URL != "" {
		t.Errorf("GetObjects = %+v", objs)
	}

	u, err := c.GetURL(ctx, "/a.txt", locator.GET)
	if err != nil || !locator.IsRemote(u) {
		t.Errorf("GetURL = %q, %v", u, err)
	}
}
