package persist

import "fmt"

// Error is a local persistence failure. The previously persisted blob is
// left as it was.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("persist: %s: %v", e.Op, e.Err) }

func (e *Error) Unwrap() error { return e.Err }
