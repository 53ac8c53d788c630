package migrate

import (
	"errors"
	"fmt"
)

// ErrDowngrade means the database was written by a newer build than this one.
var ErrDowngrade = errors.New("database version is newer than supported")

// Error is a migration failure. It is fatal to startup and to imports.
type Error struct {
	From string // version stored in the database
	To   string // compiled target version
	Step string // target of the failing step, empty when no step ran
	Err  error
}

func (e *Error) Error() string {
	switch {
	case errors.Is(e.Err, ErrDowngrade):
		return fmt.Sprintf("migrate: stored version %s is newer than target %s", e.From, e.To)
	case e.Step != "":
		return fmt.Sprintf("migrate %s -> %s: step %s: %v", e.From, e.To, e.Step, e.Err)
	default:
		return fmt.Sprintf("migrate %s -> %s: %v", e.From, e.To, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Downgrade reports whether the failure was a refused downgrade.
func (e *Error) Downgrade() bool { return errors.Is(e.Err, ErrDowngrade) }
