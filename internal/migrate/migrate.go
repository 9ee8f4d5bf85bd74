package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	versionsTable = "gad_schema_versions"
	seedsTable    = "gad_schema_seeds"
)

// ErrNothingToRollback is returned by Down when no migration has been applied.
var ErrNothingToRollback = errors.New("migrate: nothing to roll back")

// Migration is an up/down pair of SQL files sharing a version prefix,
// e.g. 0001_init.up.sql and 0001_init.down.sql.
type Migration struct {
	Version  string
	UpPath   string
	DownPath string
}

// Runner applies SQL migrations and seed files from disk against Postgres.
type Runner struct {
	db            *sql.DB
	migrationsDir string
	seedsDir      string
}

// NewRunner constructs a Runner over the given directories. seedsDir may be
// empty when the deployment carries no seeds.
func NewRunner(db *sql.DB, migrationsDir, seedsDir string) *Runner {
	return &Runner{db: db, migrationsDir: migrationsDir, seedsDir: seedsDir}
}

// Up applies every pending migration in version order.
func (r *Runner) Up(ctx context.Context) error {
	pending, err := r.Pending(ctx)
	if err != nil {
		return err
	}
	for _, mig := range pending {
		if err := r.applyFile(ctx, mig.UpPath); err != nil {
			return fmt.Errorf("migrate: apply %s: %w", mig.Version, err)
		}
		if err := r.markApplied(ctx, versionsTable, mig.Version); err != nil {
			return err
		}
	}
	return nil
}

// Down rolls back the most recently applied migration.
func (r *Runner) Down(ctx context.Context) error {
	if err := r.ensureTables(ctx); err != nil {
		return err
	}
	applied, err := r.Applied(ctx)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		return ErrNothingToRollback
	}
	last := applied[len(applied)-1]

	migs, err := discover(r.migrationsDir)
	if err != nil {
		return err
	}
	var target *Migration
	for i := range migs {
		if migs[i].Version == last {
			target = &migs[i]
			break
		}
	}
	if target == nil || target.DownPath == "" {
		return fmt.Errorf("migrate: no down file for %s", last)
	}
	if err := r.applyFile(ctx, target.DownPath); err != nil {
		return fmt.Errorf("migrate: roll back %s: %w", last, err)
	}
	_, err = r.db.ExecContext(ctx,
		fmt.Sprintf(`delete from %s where version = $1`, versionsTable), last)
	return err
}

// Applied returns applied migration versions in apply order.
func (r *Runner) Applied(ctx context.Context) ([]string, error) {
	if err := r.ensureTables(ctx); err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx,
		fmt.Sprintf(`select version from %s order by applied_at asc, version asc`, versionsTable))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Pending returns discovered migrations that have not been applied yet.
func (r *Runner) Pending(ctx context.Context) ([]Migration, error) {
	if err := r.ensureTables(ctx); err != nil {
		return nil, err
	}
	applied, err := r.Applied(ctx)
	if err != nil {
		return nil, err
	}
	done := make(map[string]bool, len(applied))
	for _, v := range applied {
		done[v] = true
	}
	migs, err := discover(r.migrationsDir)
	if err != nil {
		return nil, err
	}
	var pending []Migration
	for _, mig := range migs {
		if !done[mig.Version] {
			pending = append(pending, mig)
		}
	}
	return pending, nil
}

// Seed applies seed files once each, tracked in a separate bookkeeping table.
func (r *Runner) Seed(ctx context.Context) error {
	if r.seedsDir == "" {
		return nil
	}
	if err := r.ensureTables(ctx); err != nil {
		return err
	}
	done, err := r.seeded(ctx)
	if err != nil {
		return err
	}
	names, err := listSQL(r.seedsDir)
	if err != nil {
		return err
	}
	for _, name := range names {
		if done[name] {
			continue
		}
		if err := r.applyFile(ctx, filepath.Join(r.seedsDir, name)); err != nil {
			return fmt.Errorf("migrate: apply seed %s: %w", name, err)
		}
		if err := r.markApplied(ctx, seedsTable, name); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) ensureTables(ctx context.Context) error {
	for _, table := range []string{versionsTable, seedsTable} {
		col := "version"
		if table == seedsTable {
			col = "name"
		}
		ddl := fmt.Sprintf(`create table if not exists %s (
			%s text primary key,
			applied_at timestamptz not null default now()
		)`, table, col)
		if _, err := r.db.ExecContext(ctx, ddl); err != nil {
			return err
		}
	}
	return nil
}

// applyFile runs the whole file inside one transaction. Files are authored as
// plain statement lists; dollar-quoted bodies are not supported.
func (r *Runner) applyFile(ctx context.Context, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, stmt := range splitStatements(string(raw)) {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *Runner) markApplied(ctx context.Context, table, name string) error {
	col := "version"
	if table == seedsTable {
		col = "name"
	}
	_, err := r.db.ExecContext(ctx,
		fmt.Sprintf(`insert into %s(%s, applied_at) values ($1, $2)`, table, col),
		name, time.Now().UTC())
	return err
}

func (r *Runner) seeded(ctx context.Context) (map[string]bool, error) {
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`select name from %s`, seedsTable))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out[name] = true
	}
	return out, rows.Err()
}

// discover pairs *.up.sql files with their *.down.sql counterparts.
func discover(dir string) ([]Migration, error) {
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	byVersion := make(map[string]*Migration)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			v := strings.TrimSuffix(name, ".up.sql")
			mig := byVersion[v]
			if mig == nil {
				mig = &Migration{Version: v}
				byVersion[v] = mig
			}
			mig.UpPath = filepath.Join(dir, name)
		case strings.HasSuffix(name, ".down.sql"):
			v := strings.TrimSuffix(name, ".down.sql")
			mig := byVersion[v]
			if mig == nil {
				mig = &Migration{Version: v}
				byVersion[v] = mig
			}
			mig.DownPath = filepath.Join(dir, name)
		}
	}
	var migs []Migration
	for _, mig := range byVersion {
		if mig.UpPath == "" {
			return nil, fmt.Errorf("migrate: %s has a down file but no up file", mig.Version)
		}
		migs = append(migs, *mig)
	}
	sort.Slice(migs, func(i, j int) bool { return migs[i].Version < migs[j].Version })
	return migs, nil
}

func listSQL(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// splitStatements splits on semicolons outside single-quoted strings.
func splitStatements(sql string) []string {
	var stmts []string
	var cur strings.Builder
	inString := false
	for _, r := range sql {
		switch r {
		case '\'':
			inString = !inString
			cur.WriteRune(r)
		case ';':
			cur.WriteRune(r)
			if !inString {
				stmts = append(stmts, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteRune(r)
		}
	}
	if strings.TrimSpace(cur.String()) != "" {
		stmts = append(stmts, cur.String())
	}
	return stmts
}
