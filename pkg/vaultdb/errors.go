package vaultdb

import "errors"

var (
	ErrDatabaseClosed      = errors.New("vaultdb: database closed")
	ErrDatabaseReadOnly    = errors.New("vaultdb: database is read-only")
	ErrInvalidDatabaseName = errors.New("vaultdb: invalid database name")
	ErrTypeMismatch        = errors.New("vaultdb: collection already open with a different key/value type")
)
