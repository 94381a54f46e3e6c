// Package transport is the HTTP client for the remote POS API. A
// non-2xx response and a network failure are surfaced identically as
// *models.RemoteError; the sync layer treats both as "remote
// unavailable".
package transport

import (
	"context"
	"encoding/json"
)

// Transport abstracts the remote API for the façade and reconciler.
type Transport interface {
	// Request performs an API call and returns the raw response body.
	// method is one of GET, POST, PATCH, DELETE. body may be nil.
	Request(ctx context.Context, method, path string, body interface{}) (json.RawMessage, error)

	// SetToken sets the bearer token for subsequent requests.
	SetToken(token string)

	// Close releases resources.
	Close() error
}
