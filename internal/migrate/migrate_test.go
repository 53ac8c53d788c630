package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kittclouds/leakr/internal/store"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func setVersion(t *testing.T, s *store.SQLiteStore, v string) {
	t.Helper()
	require.NoError(t, s.WithTx(context.Background(), func(tx *sql.Tx) error {
		return store.SetVersionTx(context.Background(), tx, v)
	}))
}

func indexExists(t *testing.T, s *store.SQLiteStore, name string) bool {
	t.Helper()
	var n int
	require.NoError(t, s.WithTx(context.Background(), func(tx *sql.Tx) error {
		return tx.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name = ?`, name).Scan(&n)
	}))
	return n == 1
}

func noop(context.Context, *sql.Tx) error { return nil }

func TestDefaultStepsOrder(t *testing.T) {
	var targets []string
	for _, st := range Steps(nil) {
		targets = append(targets, st.Target)
	}
	assert.Equal(t, []string{"1.1.0", "1.1.1", "1.1.2"}, targets)

	m, err := Default(Options{})
	require.NoError(t, err)
	assert.Equal(t, Target, m.Target())
}

func TestNewManagerValidatesOrdering(t *testing.T) {
	_, err := NewManager("1.1.2", []Step{
		{Target: "1.1.1", Up: noop},
		{Target: "1.1.0", Up: noop},
	}, Options{})
	assert.Error(t, err)

	_, err = NewManager("1.1.2", []Step{
		{Target: "1.1.0", Up: noop},
		{Target: "1.1.0", Up: noop},
	}, Options{})
	assert.Error(t, err, "equal targets are not strictly increasing")

	_, err = NewManager("1.1.0", []Step{{Target: "1.2.0", Up: noop}}, Options{})
	assert.Error(t, err, "step past target")

	_, err = NewManager("not-a-version", nil, Options{})
	assert.Error(t, err)

	_, err = NewManager("1.1.0", []Step{{Target: "1.1.0"}}, Options{})
	assert.Error(t, err, "missing Up")
}

func TestNewManagerTargetMismatch(t *testing.T) {
	steps := []Step{{Target: "1.1.0", Up: noop}}

	_, err := NewManager("1.1.2", steps, Options{})
	assert.NoError(t, err, "mismatch is only a warning by default")

	_, err = NewManager("1.1.2", steps, Options{StrictTarget: true})
	assert.Error(t, err)
}

func TestEnsureFromBaseRunsAllSteps(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	var ran []string
	record := func(v string) func(context.Context, *sql.Tx) error {
		return func(context.Context, *sql.Tx) error {
			ran = append(ran, v)
			return nil
		}
	}
	m, err := NewManager("1.1.2", []Step{
		{Target: "1.1.0", Up: record("1.1.0")},
		{Target: "1.1.1", Up: record("1.1.1")},
		{Target: "1.1.2", Up: record("1.1.2")},
	}, Options{})
	require.NoError(t, err)

	report, err := m.Ensure(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, []string{"1.1.0", "1.1.1", "1.1.2"}, ran)
	assert.Equal(t, []string{"1.1.0", "1.1.1", "1.1.2"}, report.Applied)
	assert.True(t, report.Changed())

	v, err := s.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1.1.2", v.Version)

	report, err = m.Ensure(ctx, s)
	require.NoError(t, err)
	assert.False(t, report.Changed())
	assert.Len(t, ran, 3, "nothing runs at target")
}

func TestEnsureSkipsAppliedSteps(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	setVersion(t, s, "1.1.0")

	var ran []string
	m, err := NewManager("1.1.2", []Step{
		{Target: "1.1.0", Up: func(context.Context, *sql.Tx) error { ran = append(ran, "1.1.0"); return nil }},
		{Target: "1.1.1", Up: func(context.Context, *sql.Tx) error { ran = append(ran, "1.1.1"); return nil }},
		{Target: "1.1.2", Up: func(context.Context, *sql.Tx) error { ran = append(ran, "1.1.2"); return nil }},
	}, Options{})
	require.NoError(t, err)

	_, err = m.Ensure(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, []string{"1.1.1", "1.1.2"}, ran)
}

func TestEnsureRefusesDowngrade(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	setVersion(t, s, "9.0.0")

	m, err := Default(Options{})
	require.NoError(t, err)

	_, err = m.Ensure(ctx, s)
	require.Error(t, err)
	assert.True(t, IsDowngrade(err))
	assert.True(t, errors.Is(err, ErrDowngrade))

	v, err := s.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, "9.0.0", v.Version, "store is left unmodified")
}

func TestEnsureRejectsInvalidStoredVersion(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	setVersion(t, s, "not-a-version")

	m, err := Default(Options{})
	require.NoError(t, err)

	report, err := m.Ensure(ctx, s)
	require.Error(t, err)
	var merr *Error
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, "not-a-version", merr.From)
	assert.Empty(t, merr.Step)
	assert.False(t, merr.Downgrade())
	assert.Equal(t, "not-a-version", report.From)
}

func TestFailingStepRollsBackEverything(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	steps := Steps(nil)
	steps[1].Up = func(context.Context, *sql.Tx) error { return boom }
	m, err := NewManager(Target, steps, Options{})
	require.NoError(t, err)

	t.Run("from base", func(t *testing.T) {
		s := newTestStore(t)

		_, err := m.Ensure(ctx, s)
		require.Error(t, err)
		assert.True(t, errors.Is(err, boom))
		var me *Error
		require.True(t, errors.As(err, &me))
		assert.Equal(t, "1.1.1", me.Step)

		v, err := s.SchemaVersion(ctx)
		require.NoError(t, err)
		assert.Equal(t, store.BaseVersion, v.Version)
		assert.False(t, indexExists(t, s, "idx_contents_date"), "step 1.1.0 must be rolled back too")
	})

	t.Run("from 1.1.0", func(t *testing.T) {
		s := newTestStore(t)
		setVersion(t, s, "1.1.0")

		_, err := m.Ensure(ctx, s)
		require.Error(t, err)

		v, err := s.SchemaVersion(ctx)
		require.NoError(t, err)
		assert.Equal(t, "1.1.0", v.Version)
		assert.False(t, indexExists(t, s, "idx_profiles_unique"))
	})
}

func TestCreatorNameRepair(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	first, err := s.AddCreator(ctx, "Alice", nil)
	require.NoError(t, err)
	dup, err := s.AddCreator(ctx, "alice", nil)
	require.NoError(t, err)
	_, err = s.AddCreator(ctx, "Bob", nil)
	require.NoError(t, err)

	m, err := Default(Options{})
	require.NoError(t, err)
	_, err = m.Ensure(ctx, s)
	require.NoError(t, err)

	c, err := s.GetCreator(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, "Alice", c.Name)
	c, err = s.GetCreator(ctx, dup)
	require.NoError(t, err)
	assert.NotEqual(t, "alice", c.Name)
	assert.Contains(t, c.Name, "alice~")

	_, err = s.AddCreator(ctx, "ALICE", nil)
	assert.Error(t, err, "unique index rejects case-insensitive duplicates")
}

func TestCreatorNameRepairAvoidsTakenSuffix(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	first, err := s.AddCreator(ctx, "foo", nil)
	require.NoError(t, err)
	dup, err := s.AddCreator(ctx, "Foo", nil)
	require.NoError(t, err)
	taken, err := s.AddCreator(ctx, fmt.Sprintf("foo~%d", dup), nil)
	require.NoError(t, err)

	m, err := Default(Options{})
	require.NoError(t, err)
	report, err := m.Ensure(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, Target, report.To)

	c, err := s.GetCreator(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, "foo", c.Name)
	c, err = s.GetCreator(ctx, taken)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("foo~%d", dup), c.Name)
	c, err = s.GetCreator(ctx, dup)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("Foo~%d-2", dup), c.Name)

	all, err := s.ListCreators(ctx)
	require.NoError(t, err)
	seen := map[string]bool{}
	for _, c := range all {
		key := strings.ToLower(c.Name)
		assert.False(t, seen[key], "duplicate name %q", c.Name)
		seen[key] = true
	}
}

func TestProfileDedupe(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	creator, err := s.AddCreator(ctx, "Carol", nil)
	require.NoError(t, err)
	platform, err := s.AddPlatform(ctx, "twitch")
	require.NoError(t, err)
	require.NoError(t, s.WithTx(ctx, func(tx *sql.Tx) error {
		for i := 0; i < 3; i++ {
			if _, err := tx.Exec(`INSERT INTO platform_profiles (link, creator_id, platform_id) VALUES (?, ?, ?)`,
				"https://twitch.tv/carol", creator, platform); err != nil {
				return err
			}
		}
		return nil
	}))

	m, err := Default(Options{})
	require.NoError(t, err)
	_, err = m.Ensure(ctx, s)
	require.NoError(t, err)

	profiles, err := s.ListProfilesByCreator(ctx, creator)
	require.NoError(t, err)
	assert.Len(t, profiles, 1)
	assert.True(t, indexExists(t, s, "idx_profiles_unique"))
}

func TestAliasRepair(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.AddCreator(ctx, "Dana", nil)
	require.NoError(t, err)
	require.NoError(t, s.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`UPDATE creators SET aliases = NULL WHERE id = ?`, id)
		return err
	}))

	m, err := Default(Options{})
	require.NoError(t, err)
	_, err = m.Ensure(ctx, s)
	require.NoError(t, err)

	c, err := s.GetCreator(ctx, id)
	require.NoError(t, err)
	assert.False(t, c.Aliases.Malformed)
	assert.Empty(t, c.Aliases.List)
}

func TestOpenOrCreate(t *testing.T) {
	ctx := context.Background()
	m, err := Default(Options{})
	require.NoError(t, err)

	fresh, report, err := m.OpenOrCreate(ctx, nil)
	require.NoError(t, err)
	defer fresh.Close()
	assert.Equal(t, store.BaseVersion, report.From)
	assert.Equal(t, Target, report.To)

	blob, err := fresh.Export(ctx)
	require.NoError(t, err)

	reopened, report, err := m.OpenOrCreate(ctx, blob)
	require.NoError(t, err)
	defer reopened.Close()
	assert.False(t, report.Changed())
}
