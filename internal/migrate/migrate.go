// Package migrate brings a store's schema up to the version this build expects.
//
// Versions are semantic version strings ("1.1.2"). Every pending step runs in
// one transaction together with the version stamp, so a store is either fully
// migrated or left exactly as it was.
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/kittclouds/leakr/internal/store"
)

// Step moves the schema up to Target.
type Step struct {
	Target      string
	Description string
	Up          func(ctx context.Context, tx *sql.Tx) error
}

// Options configures a Manager.
type Options struct {
	// StrictTarget makes a mismatch between the last step and the target a
	// construction error instead of a warning.
	StrictTarget bool
	Logger       *slog.Logger
}

// Manager applies ordered steps to reach a compiled target version.
type Manager struct {
	target string
	steps  []Step
	log    *slog.Logger
}

// Report describes what Ensure did.
type Report struct {
	From    string
	To      string
	Applied []string
}

// Changed reports whether the store was modified.
func (r Report) Changed() bool { return r.From != r.To }

// NewManager validates steps and returns a Manager for target.
// Step targets must be valid versions in strictly increasing order and
// no step may go past target.
func NewManager(target string, steps []Step, opts Options) (*Manager, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	if !semver.IsValid(canonical(target)) {
		return nil, fmt.Errorf("invalid target version %q", target)
	}

	prev := ""
	for i, st := range steps {
		if st.Up == nil {
			return nil, fmt.Errorf("step %d (%s) has no Up function", i, st.Target)
		}
		v := canonical(st.Target)
		if !semver.IsValid(v) {
			return nil, fmt.Errorf("step %d has invalid version %q", i, st.Target)
		}
		if prev != "" && semver.Compare(v, prev) <= 0 {
			return nil, fmt.Errorf("step %s is not after step %s", st.Target, strings.TrimPrefix(prev, "v"))
		}
		if semver.Compare(v, canonical(target)) > 0 {
			return nil, fmt.Errorf("step %s is past target %s", st.Target, target)
		}
		prev = v
	}

	if len(steps) > 0 && semver.Compare(prev, canonical(target)) != 0 {
		if opts.StrictTarget {
			return nil, fmt.Errorf("last step %s does not reach target %s", steps[len(steps)-1].Target, target)
		}
		log.Warn("last migration step does not reach target",
			"last", steps[len(steps)-1].Target, "target", target)
	}

	return &Manager{
		target: target,
		steps:  append([]Step(nil), steps...),
		log:    log,
	}, nil
}

// Target returns the compiled target version.
func (m *Manager) Target() string { return m.target }

// Pending returns the steps that would run for a store at version current.
func (m *Manager) Pending(current string) []Step {
	cur := canonical(current)
	var pending []Step
	for _, st := range m.steps {
		if semver.Compare(canonical(st.Target), cur) > 0 {
			pending = append(pending, st)
		}
	}
	return pending
}

// Ensure migrates s to the target version.
// The stored version is read inside the migration transaction. A store newer
// than the target is refused and left untouched. Any failing step rolls back
// every step and the version stamp.
func (m *Manager) Ensure(ctx context.Context, s *store.SQLiteStore) (Report, error) {
	var (
		report  Report
		pending []Step
		failed  string
	)
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		v, err := store.ReadVersionTx(ctx, tx)
		if err != nil {
			return err
		}
		report = Report{From: v.Version, To: v.Version}
		if pending, err = m.plan(v.Version); err != nil || len(pending) == 0 {
			return err
		}
		for _, st := range pending {
			if err := st.Up(ctx, tx); err != nil {
				failed = st.Target
				return err
			}
			m.log.Info("migration step applied", "version", st.Target, "description", st.Description)
		}
		return store.SetVersionTx(ctx, tx, m.target)
	})
	if err != nil {
		return report, &Error{From: report.From, To: m.target, Step: failed, Err: err}
	}
	if len(pending) == 0 {
		return report, nil
	}

	for _, st := range pending {
		report.Applied = append(report.Applied, st.Target)
	}
	report.To = m.target
	m.log.Info("schema migrated", "from", report.From, "to", report.To, "steps", len(report.Applied))
	return report, nil
}

// plan returns the steps taking a store at version stored to the target.
func (m *Manager) plan(stored string) ([]Step, error) {
	v := canonical(stored)
	if !semver.IsValid(v) {
		return nil, fmt.Errorf("invalid stored version %q", stored)
	}
	switch cmp := semver.Compare(v, canonical(m.target)); {
	case cmp > 0:
		return nil, ErrDowngrade
	case cmp == 0:
		return nil, nil
	}
	return m.Pending(stored), nil
}

// OpenOrCreate loads a store from blob, or creates a fresh one when blob is
// empty, and migrates it. The caller persists the store when the report says
// it changed.
func (m *Manager) OpenOrCreate(ctx context.Context, blob []byte) (*store.SQLiteStore, Report, error) {
	var (
		s   *store.SQLiteStore
		err error
	)
	if len(blob) > 0 {
		s, err = store.OpenSnapshot(ctx, blob, m.log)
	} else {
		s, err = store.NewSQLiteStore(m.log)
	}
	if err != nil {
		return nil, Report{}, fmt.Errorf("open store: %w", err)
	}

	report, err := m.Ensure(ctx, s)
	if err != nil {
		s.Close()
		return nil, report, err
	}
	return s, report, nil
}

// IsDowngrade reports whether err is a refused downgrade.
func IsDowngrade(err error) bool {
	var me *Error
	return errors.As(err, &me) && me.Downgrade()
}

func canonical(v string) string {
	if strings.HasPrefix(v, "v") {
		return v
	}
	return "v" + v
}
