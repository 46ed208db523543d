package model

import (
	"errors"
	"fmt"
)

// Sentinel errors. Callers match with errors.Is; the typed errors below
// match their sentinel as well.
var (
	ErrInvalidMemoryType    = errors.New("invalid memory type")
	ErrEmptyContent         = errors.New("memory content cannot be empty")
	ErrContentTooLong       = errors.New("content too long")
	ErrBlockedContent       = errors.New("content contains blocked keyword")
	ErrNotFound             = errors.New("memory not found")
	ErrDecryption           = errors.New("decryption failed")
	ErrStorage              = errors.New("storage failure")
	ErrInvalidTag           = errors.New("invalid tag")
	ErrInvalidCriteria      = errors.New("invalid search criteria")
	ErrConfirmationRequired = errors.New("confirmation required")
)

// BlockedContentError reports the blocked keyword that rejected a write.
type BlockedContentError struct {
	Field   string // content | context
	Keyword string
}

func (e *BlockedContentError) Error() string {
	return fmt.Sprintf("%s contains blocked keyword: %s", e.Field, e.Keyword)
}

func (e *BlockedContentError) Is(target error) bool { return target == ErrBlockedContent }

// TooLongError reports a field exceeding its configured maximum.
type TooLongError struct {
	Field  string
	Length int
	Max    int
}

func (e *TooLongError) Error() string {
	return fmt.Sprintf("%s too long: %d characters (max %d)", e.Field, e.Length, e.Max)
}

func (e *TooLongError) Is(target error) bool { return target == ErrContentTooLong }

// StorageError wraps a failure of the underlying database.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }
