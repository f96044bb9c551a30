package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestAPITokenRoundTrip(t *testing.T) {
	a := New("secret", time.Minute)
	tok, err := a.IssueToken("ops", 0)
	if err != nil {
		t.Fatal(err)
	}
	claims, err := a.ValidateToken(tok)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.Scope != ScopeAPI || claims.Subject != "ops" {
		t.Errorf("claims = %+v", claims)
	}
	if err := Authorize(claims, "/anything", "PUT"); err != nil {
		t.Errorf("API token refused: %v", err)
	}
}

func TestLocatorTokenIsScoped(t *testing.T) {
	a := New("secret", time.Minute)
	tok, _, err := a.IssueLocator("dir//f.txt", "GET")
	if err != nil {
		t.Fatal(err)
	}
	claims, err := a.ValidateToken(tok)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		path, method string
		ok           bool
	}{
		{"/dir/f.txt", "GET", true},
		{"/dir/f.txt", "PUT", false},
		{"/dir/other.txt", "GET", false},
	}
	for _, tt := range tests {
		err := Authorize(claims, tt.path, tt.method)
		if (err == nil) != tt.ok {
			t.Errorf("Authorize(%s %s) = %v, want ok=%v", tt.method, tt.path, err, tt.ok)
		}
		if err != nil && !errors.Is(err, ErrForbidden) {
			t.Errorf("unexpected error type %v", err)
		}
	}
}

func TestValidateRejectsForeignAndExpired(t *testing.T) {
	a := New("secret", time.Minute)
	other := New("other", time.Minute)

	tok, _ := other.IssueToken("x", 0)
	if _, err := a.ValidateToken(tok); err == nil {
		t.Error("token signed with another secret accepted")
	}

	short := New("secret", time.Nanosecond)
	loc, _, _ := short.IssueLocator("/f", "GET")
	time.Sleep(1100 * time.Millisecond)
	if _, err := short.ValidateToken(loc); err == nil {
		t.Error("expired locator accepted")
	}
}

func TestMiddleware(t *testing.T) {
	a := New("secret", time.Minute)
	h := a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetClaims(r.Context()) == nil {
			t.Error("claims missing from context")
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	apiTok, _ := a.IssueToken("ops", time.Hour)
	locTok, _, _ := a.IssueLocator("/f", "GET")

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"garbage", "Bearer nope", http.StatusUnauthorized},
		{"locator", "Bearer " + locTok, http.StatusUnauthorized},
		{"api", "Bearer " + apiTok, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/v1/objects/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestExtractTokenQueryFallback(t *testing.T) {
	req := httptest.NewRequest("GET", "/content/f?token=abc", nil)
	if got := ExtractToken(req); got != "abc" {
		t.Errorf("ExtractToken = %q", got)
	}
}
