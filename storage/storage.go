// Package storage provides the durable key/value mirror the session keeps
// alongside its in-memory state, replacing the browser's localStorage.
package storage

import "errors"

// Fixed keys under which session state is mirrored.
const (
	KeyToken        = "token"
	KeyRefreshToken = "refreshToken"
	KeyRealm        = "realm"
)

var NotFoundErr = errors.New("key not found")

// Store is a durable key/value store. Implementations must make Set and
// Delete visible to a subsequent process start.
type Store interface {
	// Get returns the value for key, or NotFoundErr when absent.
	Get(key string) (string, error)

	// Set writes the value for key, replacing any previous value.
	Set(key, value string) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(key string) error
}
