package locator

import (
	"path/filepath"
	"testing"
)

func TestFileURLRoundTrip(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "with space", "a#b.txt")

	u := FileURL(p)
	if !IsLocal(u) || IsRemote(u) {
		t.Fatalf("FileURL(%q) = %q is not local", p, u)
	}

	got, err := Path(u)
	if err != nil {
		t.Fatalf("Path: %v", err)
	}
	if got != p {
		t.Errorf("Path = %q, want %q", got, p)
	}
}

func TestSchemes(t *testing.T) {
	tests := []struct {
		u      string
		local  bool
		remote bool
	}{
		{"file:///tmp/a", true, false},
		{"http://127.0.0.1:8080/content/a", false, true},
		{"https://bucket.s3.amazonaws.com/a?X-Amz-Signature=x", false, true},
		{"", false, false},
	}
	for _, tt := range tests {
		if IsLocal(tt.u) != tt.local || IsRemote(tt.u) != tt.remote {
			t.Errorf("%q: local=%v remote=%v", tt.u, IsLocal(tt.u), IsRemote(tt.u))
		}
	}
}

func TestPathRejectsRemote(t *testing.T) {
	if _, err := Path("http://example.com/a"); err == nil {
		t.Error("expected error for http locator")
	}
	if _, err := Path("file://otherhost/a"); err == nil {
		t.Error("expected error for file locator with a host")
	}
}
