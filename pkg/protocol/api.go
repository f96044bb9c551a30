// Package protocol defines the API request/response types.
package protocol

import "github.com/fruitsalade/fsaccess/pkg/models"

// ErrorResponse is returned on API errors. Kind carries the failure
// category name ("NotFound", "NotReadable", "InvalidModification") when
// the failure was classified.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
	Kind  string `json:"kind,omitempty"`
}

// ListResponse is returned by GET /api/v1/children/{path}
type ListResponse struct {
	Path    string                     `json:"path"`
	Objects []*models.FileSystemObject `json:"objects"`
}

// LocatorRequest is the body for POST /api/v1/locators
type LocatorRequest struct {
	Path   string `json:"path"`
	Method string `json:"method"` // "GET" or "PUT"
}

// LocatorResponse is returned by POST /api/v1/locators. An empty URL means
// the server's backend cannot stream that object.
type LocatorResponse struct {
	URL string `json:"url"`
}

// HealthResponse is returned by GET /health
type HealthResponse struct {
	Status   string `json:"status"`
	Accessor string `json:"accessor"`
}
