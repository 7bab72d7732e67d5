package db

import "errors"

// errClosed is returned by operations on a closed Database.
var errClosed = errors.New("database connection is closed")
