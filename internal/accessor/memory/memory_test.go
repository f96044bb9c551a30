package memory

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fruitsalade/fsaccess/internal/fserr"
	"github.com/fruitsalade/fsaccess/internal/locator"
	"github.com/fruitsalade/fsaccess/pkg/models"
)

func dir(p string) *models.FileSystemObject {
	return &models.FileSystemObject{FullPath: p, Name: models.Name(p)}
}

func TestMemoryRoundTrip(t *testing.T) {
	m := New("test")
	ctx := context.Background()

	for _, want := range [][]byte{{}, {1}, bytes.Repeat([]byte{0xAB}, 1<<20+7)} {
		if err := m.WriteContent(ctx, "/blob", want); err != nil {
			t.Fatal(err)
		}
		got, err := m.ReadContent(ctx, "/blob")
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("round trip of %d bytes failed", len(want))
		}
	}

	obj, err := m.GetObject(ctx, "/blob")
	if err != nil {
		t.Fatal(err)
	}
	if !obj.IsFile() || obj.URL != "" {
		t.Errorf("obj = %+v", obj)
	}
}

func TestMemoryNeverReturnsLocator(t *testing.T) {
	m := New("")
	for _, method := range []locator.Method{locator.GET, locator.PUT} {
		u, err := m.GetURL(context.Background(), "/x", method)
		if err != nil || u != "" {
			t.Errorf("%s: GetURL = %q, %v", method, u, err)
		}
	}
}

func TestMemoryListingAndErrors(t *testing.T) {
	m := New("test")
	ctx := context.Background()

	if _, err := m.GetObject(ctx, "/nope"); !errors.Is(err, fserr.ErrNotFound) {
		t.Errorf("GetObject missing = %v", err)
	}
	if err := m.WriteContent(ctx, "/a/b", []byte("x")); !errors.Is(err, fserr.ErrNotFound) {
		t.Errorf("WriteContent without parent = %v", err)
	}

	m.PutObject(ctx, dir("/a"))
	m.PutObject(ctx, dir("/a/sub"))
	m.WriteContent(ctx, "/a/f", []byte("x"))
	m.WriteContent(ctx, "/a/sub/g", []byte("y"))

	objs, err := m.GetObjects(ctx, "/a")
	if err != nil {
		t.Fatal(err)
	}
	if len(objs) != 2 || objs[0].FullPath != "/a/f" || objs[1].FullPath != "/a/sub" {
		t.Errorf("GetObjects = %+v", objs)
	}

	if err := m.Delete(ctx, "/a", false); !errors.Is(err, fserr.ErrInvalidModification) {
		t.Errorf("Delete non-empty = %v", err)
	}
}

func TestMemoryDeleteIndexOnlyDirectory(t *testing.T) {
	m := New("test")
	ctx := context.Background()
	m.PutObject(ctx, dir("/d"))
	m.WriteContent(ctx, "/d/"+models.IndexMarker, []byte("{}"))

	if err := m.Delete(ctx, "/d", false); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := m.GetObject(ctx, "/d/"+models.IndexMarker); !errors.Is(err, fserr.ErrNotFound) {
		t.Errorf("marker survived: %v", err)
	}
}

func TestMemoryConcurrentPutObject(t *testing.T) {
	m := New("test")
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := m.PutObject(ctx, dir("/same")); err != nil {
				t.Errorf("PutObject: %v", err)
			}
		}()
	}
	wg.Wait()
}

func TestMemoryRecordsOperationDurations(t *testing.T) {
	m := New("timed")
	ctx := context.Background()
	for i := 0; i < 50; i++ {
		m.WriteContent(ctx, "/f", bytes.Repeat([]byte{1}, 4096))
	}

	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, mf := range families {
		if mf.GetName() != "fsaccess_accessor_operation_duration_seconds" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range metric.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["backend"] != "memory" || labels["operation"] != "write_content" {
				continue
			}
			h := metric.GetHistogram()
			if h.GetSampleCount() < 50 {
				t.Errorf("sample count = %d", h.GetSampleCount())
			}
			if h.GetSampleSum() <= 0 {
				t.Error("durations are all zero")
			}
			return
		}
	}
	t.Fatal("memory write_content histogram not found")
}
