package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/fruitsalade/fsaccess/internal/accessor/local"
	"github.com/fruitsalade/fsaccess/internal/accessor/memory"
	"github.com/fruitsalade/fsaccess/internal/auth"
	"github.com/fruitsalade/fsaccess/pkg/models"
	"github.com/fruitsalade/fsaccess/pkg/protocol"
)

var (
	testServer *httptest.Server
	testAuth   *auth.Auth
	testToken  string
	testRoot   string
)

func TestMain(m *testing.M) {
	root, err := os.MkdirTemp("", "fsaccess-api-*")
	if err != nil {
		fmt.Fprintf(os.Stderr, "create temp root: %v\n", err)
		os.Exit(1)
	}
	testRoot = root

	acc, err := local.New(local.Config{RootPath: root})
	if err != nil {
		fmt.Fprintf(os.Stderr, "create accessor: %v\n", err)
		os.Exit(1)
	}
	testAuth = auth.New("test-secret", time.Minute)
	testToken, _ = testAuth.IssueToken("test", time.Hour)
	testServer = httptest.NewServer(NewServer(acc, testAuth, "").Handler())

	code := m.Run()

	testServer.Close()
	os.RemoveAll(root)
	os.Exit(code)
}

func doRequest(t *testing.T, method, path string, body []byte) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, testServer.URL+path, r)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Authorization", "Bearer "+testToken)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeError(t *testing.T, resp *http.Response) protocol.ErrorResponse {
	t.Helper()
	var er protocol.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return er
}

func TestHealth(t *testing.T) {
	resp, err := http.Get(testServer.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var h protocol.HealthResponse
	json.NewDecoder(resp.Body).Decode(&h)
	if resp.StatusCode != http.StatusOK || h.Status != "ok" {
		t.Errorf("health = %d %+v", resp.StatusCode, h)
	}
}

func TestAPIRequiresToken(t *testing.T) {
	resp, err := http.Get(testServer.URL + "/api/v1/objects/")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestObjectLifecycle(t *testing.T) {
	body, _ := json.Marshal(models.FileSystemObject{})
	if resp := doRequest(t, "PUT", "/api/v1/objects/life", body); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("create dir = %d", resp.StatusCode)
	}

	if resp := doRequest(t, "PUT", "/content/life/a%20b.txt", []byte("hello")); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("write content = %d", resp.StatusCode)
	}

	resp := doRequest(t, "GET", "/api/v1/objects/life/a%20b.txt", nil)
	var obj models.FileSystemObject
	json.NewDecoder(resp.Body).Decode(&obj)
	if resp.StatusCode != http.StatusOK || !obj.IsFile() || obj.SizeOrZero() != 5 || obj.Name != "a b.txt" {
		t.Fatalf("get object = %d %+v", resp.StatusCode, obj)
	}

	resp = doRequest(t, "GET", "/api/v1/children/life", nil)
	var list protocol.ListResponse
	json.NewDecoder(resp.Body).Decode(&list)
	if len(list.Objects) != 1 || list.Objects[0].FullPath != "/life/a b.txt" {
		t.Fatalf("children = %+v", list)
	}

	resp = doRequest(t, "DELETE", "/api/v1/objects/life?file=false", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("delete non-empty = %d", resp.StatusCode)
	}
	if er := decodeError(t, resp); er.Kind != "InvalidModification" {
		t.Errorf("kind = %q", er.Kind)
	}

	if resp := doRequest(t, "DELETE", "/api/v1/objects/life/a%20b.txt", nil); resp.StatusCode != http.StatusNoContent {
		t.Errorf("delete file = %d", resp.StatusCode)
	}
	if resp := doRequest(t, "DELETE", "/api/v1/objects/life?file=false", nil); resp.StatusCode != http.StatusNoContent {
		t.Errorf("delete dir = %d", resp.StatusCode)
	}
}

func TestErrorStatuses(t *testing.T) {
	resp := doRequest(t, "GET", "/api/v1/objects/does/not/exist", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing object = %d", resp.StatusCode)
	}
	if er := decodeError(t, resp); er.Kind != "NotFound" {
		t.Errorf("kind = %q", er.Kind)
	}

	resp = doRequest(t, "PUT", "/content/no-parent/f.txt", []byte("x"))
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("write without parent = %d", resp.StatusCode)
	}

	os.Mkdir(testRoot+"/adir", 0o755)
	resp = doRequest(t, "GET", "/content/adir", nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("read directory = %d", resp.StatusCode)
	}

	resp = doRequest(t, "DELETE", "/api/v1/objects/adir?file=maybe", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad file param = %d", resp.StatusCode)
	}
}

func TestLocatorFlow(t *testing.T) {
	body, _ := json.Marshal(protocol.LocatorRequest{Path: "/loc.txt", Method: "PUT"})
	resp := doRequest(t, "POST", "/api/v1/locators", body)
	var put protocol.LocatorResponse
	json.NewDecoder(resp.Body).Decode(&put)
	if !strings.HasPrefix(put.URL, testServer.URL+"/content/loc.txt?token=") {
		t.Fatalf("locator = %q", put.URL)
	}

	// The locator alone authorizes the upload.
	req, _ := http.NewRequest("PUT", put.URL, strings.NewReader("streamed"))
	up, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	up.Body.Close()
	if up.StatusCode != http.StatusNoContent {
		t.Fatalf("PUT via locator = %d", up.StatusCode)
	}

	// A PUT locator does not grant GET.
	get, err := http.Get(put.URL)
	if err != nil {
		t.Fatal(err)
	}
	get.Body.Close()
	if get.StatusCode != http.StatusUnauthorized {
		t.Errorf("GET with PUT locator = %d", get.StatusCode)
	}

	body, _ = json.Marshal(protocol.LocatorRequest{Path: "/loc.txt", Method: "get"})
	resp = doRequest(t, "POST", "/api/v1/locators", body)
	var loc protocol.LocatorResponse
	json.NewDecoder(resp.Body).Decode(&loc)
	get, err = http.Get(loc.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer get.Body.Close()
	data, _ := io.ReadAll(get.Body)
	if get.StatusCode != http.StatusOK || string(data) != "streamed" {
		t.Errorf("GET via locator = %d %q", get.StatusCode, data)
	}

	body, _ = json.Marshal(protocol.LocatorRequest{Path: "/loc.txt", Method: "POST"})
	if resp := doRequest(t, "POST", "/api/v1/locators", body); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad method = %d", resp.StatusCode)
	}
}

func TestBufferedBackend(t *testing.T) {
	srv := httptest.NewServer(NewServer(memory.New("api"), testAuth, "http://public.example").Handler())
	defer srv.Close()

	req, _ := http.NewRequest("PUT", srv.URL+"/content/m.bin", bytes.NewReader([]byte{0, 1, 2}))
	req.Header.Set("Authorization", "Bearer "+testToken)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("buffered PUT = %d", resp.StatusCode)
	}

	req, _ = http.NewRequest("GET", srv.URL+"/content/m.bin", nil)
	req.Header.Set("Authorization", "Bearer "+testToken)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if !bytes.Equal(data, []byte{0, 1, 2}) {
		t.Errorf("buffered GET = %v", data)
	}

	body, _ := json.Marshal(protocol.LocatorRequest{Path: "/m.bin", Method: "GET"})
	req, _ = http.NewRequest("POST", srv.URL+"/api/v1/locators", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+testToken)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var loc protocol.LocatorResponse
	json.NewDecoder(resp.Body).Decode(&loc)
	if !strings.HasPrefix(loc.URL, "http://public.example/content/m.bin?token=") {
		t.Errorf("public locator = %q", loc.URL)
	}
}
