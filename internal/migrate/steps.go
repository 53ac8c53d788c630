package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
)

// Target is the schema version this build expects.
const Target = "1.1.2"

// Steps returns the built-in migration steps in order.
func Steps(log *slog.Logger) []Step {
	if log == nil {
		log = slog.Default()
	}
	return []Step{
		{
			Target:      "1.1.0",
			Description: "repair empty alias columns, index contents by date",
			Up: func(ctx context.Context, tx *sql.Tx) error {
				res, err := tx.ExecContext(ctx,
					`UPDATE creators SET aliases = '[]' WHERE aliases IS NULL OR TRIM(aliases) = ''`)
				if err != nil {
					return err
				}
				if n, _ := res.RowsAffected(); n > 0 {
					log.Info("repaired empty alias columns", "rows", n)
				}
				_, err = tx.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_contents_date ON contents(date_added)`)
				return err
			},
		},
		{
			Target:      "1.1.1",
			Description: "unique creator names",
			Up: func(ctx context.Context, tx *sql.Tx) error {
				n, err := disambiguateDuplicates(ctx, tx, "creators", "name")
				if err != nil {
					return err
				}
				if n > 0 {
					log.Warn("renamed duplicate creators", "rows", n)
				}
				if _, err := tx.ExecContext(ctx, `DROP INDEX IF EXISTS idx_creators_name`); err != nil {
					return err
				}
				_, err = tx.ExecContext(ctx,
					`CREATE UNIQUE INDEX IF NOT EXISTS idx_creators_name_unique ON creators(name COLLATE NOCASE)`)
				return err
			},
		},
		{
			Target:      "1.1.2",
			Description: "unique platform profiles",
			Up: func(ctx context.Context, tx *sql.Tx) error {
				n, err := dropDuplicateRows(ctx, tx, "platform_profiles", "creator_id", "platform_id", "link")
				if err != nil {
					return err
				}
				if n > 0 {
					log.Warn("dropped duplicate platform profiles", "rows", n)
				}
				_, err = tx.ExecContext(ctx,
					`CREATE UNIQUE INDEX IF NOT EXISTS idx_profiles_unique ON platform_profiles(creator_id, platform_id, link)`)
				return err
			},
		},
	}
}

// Default returns a Manager for the built-in steps and Target.
func Default(opts Options) (*Manager, error) {
	return NewManager(Target, Steps(opts.Logger), opts)
}

// disambiguateDuplicates makes column unique (case-insensitive) so a unique
// index can be created: the row with the lowest id keeps its value, every
// other duplicate gets "~<id>" appended, or "~<id>-<n>" when that value is
// taken too.
func disambiguateDuplicates(ctx context.Context, tx *sql.Tx, table, column string) (int64, error) {
	type dup struct {
		id    int64
		value string
	}
	q := fmt.Sprintf(`
		SELECT id, %[2]s FROM %[1]s
		WHERE id NOT IN (SELECT MIN(id) FROM %[1]s GROUP BY %[2]s COLLATE NOCASE)
		ORDER BY id
	`, table, column)
	rows, err := tx.QueryContext(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("disambiguate %s.%s: %w", table, column, err)
	}
	var dups []dup
	for rows.Next() {
		var d dup
		if err := rows.Scan(&d.id, &d.value); err != nil {
			rows.Close()
			return 0, fmt.Errorf("disambiguate %s.%s: %w", table, column, err)
		}
		dups = append(dups, d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("disambiguate %s.%s: %w", table, column, err)
	}

	taken := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s = ? COLLATE NOCASE`, table, column)
	update := fmt.Sprintf(`UPDATE %s SET %s = ? WHERE id = ?`, table, column)
	for _, d := range dups {
		value := fmt.Sprintf("%s~%d", d.value, d.id)
		for n := 2; ; n++ {
			var count int
			if err := tx.QueryRowContext(ctx, taken, value).Scan(&count); err != nil {
				return 0, fmt.Errorf("disambiguate %s.%s: %w", table, column, err)
			}
			if count == 0 {
				break
			}
			value = fmt.Sprintf("%s~%d-%d", d.value, d.id, n)
		}
		if _, err := tx.ExecContext(ctx, update, value, d.id); err != nil {
			return 0, fmt.Errorf("disambiguate %s.%s: %w", table, column, err)
		}
	}
	return int64(len(dups)), nil
}

// dropDuplicateRows deletes every row that repeats an earlier row's key columns.
func dropDuplicateRows(ctx context.Context, tx *sql.Tx, table string, keys ...string) (int64, error) {
	q := fmt.Sprintf(`
		DELETE FROM %[1]s
		WHERE id NOT IN (SELECT MIN(id) FROM %[1]s GROUP BY %[2]s)
	`, table, strings.Join(keys, ", "))
	res, err := tx.ExecContext(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("dedupe %s: %w", table, err)
	}
	return res.RowsAffected()
}
