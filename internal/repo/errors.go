package repo

import "errors"

// ErrNotFound is wrapped by every repository lookup that matches no row
var ErrNotFound = errors.New("not found")
