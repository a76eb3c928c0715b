package db

import "errors"

// Sentinel errors for database operations.
var (
	ErrKeyNotFound    = errors.New("db: key not found")
	ErrRecordNotFound = errors.New("db: record not found")
)

// Op constants name store operations for error context.
const (
	OpMigrate        = "MIGRATE"
	OpUpsert         = "UPSERT"
	OpGet            = "GET"
	OpList           = "LIST"
	OpCount          = "COUNT"
	OpNearest        = "KNN"
	OpGroup          = "GROUP"
	OpStats          = "STATS"
	OpPending        = "PENDING"
	OpSaveEmbedding  = "SAVE_EMBEDDING"
	OpSaveExtraction = "SAVE_EXTRACTION"
	OpKVGet          = "KV_GET"
	OpKVSet          = "KV_SET"
)

// Error wraps an underlying error with the operation name for diagnostics.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }
