// Package locator builds and inspects the URLs accessors hand to the
// transfer engine. A "file" scheme means local; http and https mean remote.
package locator

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// Method selects the direction a locator is requested for.
type Method string

const (
	GET Method = "GET"
	PUT Method = "PUT"
)

// FileURL returns the file:// locator for an absolute local path.
func FileURL(path string) string {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(path)}
	return u.String()
}

// IsLocal reports whether u is a file:// locator.
func IsLocal(u string) bool {
	return strings.HasPrefix(u, "file:")
}

// IsRemote reports whether u is an http(s) locator.
func IsRemote(u string) bool {
	return strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://")
}

// Path converts a file:// locator back into a local path.
func Path(u string) (string, error) {
	parsed, err := url.Parse(u)
	if err != nil {
		return "", fmt.Errorf("parse locator: %w", err)
	}
	if parsed.Scheme != "file" {
		return "", fmt.Errorf("locator %q is not local", u)
	}
	if parsed.Host != "" && parsed.Host != "localhost" {
		return "", fmt.Errorf("locator %q names a remote host", u)
	}
	return filepath.FromSlash(parsed.Path), nil
}
