package interfaces

import "errors"

// ErrNotFound is returned by every repository when the requested row does
// not exist. Implementations translate their driver's sentinel (for example
// sql.ErrNoRows) into this error.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when an insert or update violates a uniqueness
// constraint (duplicate serial, username, or sensor config identity).
var ErrConflict = errors.New("conflict")
