package domain

import (
	"errors"
	"fmt"
)

// Kind classifies an error so the ingestion cycle can decide whether to drop,
// buffer, retry, or stop.
type Kind int

const (
	KindUnknown Kind = iota
	// KindParse is a malformed source row. The row is dropped.
	KindParse
	// KindFileMissing means a source file does not exist yet. Treated as no new data.
	KindFileMissing
	// KindStoreUnavailable is any failure reaching the remote store. Output is
	// buffered and the connection is retried.
	KindStoreUnavailable
	// KindWriteRejected is a store-side validation or conflict error. The batch is skipped.
	KindWriteRejected
	// KindConfig is an unrecoverable startup configuration error.
	KindConfig
)

func (k Kind) String() string {
	switch k {
	case KindParse:
		return "parse"
	case KindFileMissing:
		return "file_missing"
	case KindStoreUnavailable:
		return "store_unavailable"
	case KindWriteRejected:
		return "write_rejected"
	case KindConfig:
		return "config"
	default:
		return "unknown"
	}
}

// Error is an operation failure tagged with its Kind.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// E wraps err with a kind and operation name. A nil err yields nil.
func E(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the outermost tagged error in err's chain,
// or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsStoreUnavailable reports whether err means the remote store could not be reached.
func IsStoreUnavailable(err error) bool {
	return KindOf(err) == KindStoreUnavailable
}
