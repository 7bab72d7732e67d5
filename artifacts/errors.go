package artifacts

import "errors"

// Storage failures. Callers match with errors.Is.
var (
	// ErrStorageIO wraps any filesystem read, write or delete failure.
	ErrStorageIO = errors.New("artifacts: storage I/O failure")

	// ErrPathSecurity is returned for names that would resolve outside the storage root.
	// It is returned before any filesystem mutation.
	ErrPathSecurity = errors.New("artifacts: path escapes storage directory")

	// ErrNotFound is returned when the requested image does not exist.
	ErrNotFound = errors.New("artifacts: image not found")
)
