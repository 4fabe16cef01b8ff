package collection

import "errors"

var (
	ErrDuplicateKey       = errors.New("collection: duplicate key")
	ErrKeyNotFound        = errors.New("collection: key not found")
	ErrCollectionClosed   = errors.New("collection: closed")
	ErrCollectionReadOnly = errors.New("collection: read-only")
	ErrAlreadyOpen        = errors.New("collection: already open")
	ErrNotLoaded          = errors.New("collection: not loaded")
	ErrEncryptionConfig   = errors.New("collection: encryption enabled without password")
	ErrDecryptionFailure  = errors.New("collection: password does not match stored checksum")
)
