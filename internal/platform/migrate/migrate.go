package migrate

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// 多实例同时启动并开启 AUTO_MIGRATE 时，用 advisory lock 串行化，
// 后到的实例等锁释放后会发现文件都已应用而跳过。
const advisoryLockID int64 = 0x73686f72746c6e6b // "shortlnk"

type Options struct {
	Dir string
}

type Result struct {
	Dir          string
	AppliedFiles []string
	SkippedFiles []string
}

// Up 按文件名顺序执行 Dir 下尚未应用的 .sql 文件，每个文件一个事务。
func Up(ctx context.Context, db *pgxpool.Pool, opts Options) (*Result, error) {
	dir, err := resolveMigrationsDir(opts.Dir)
	if err != nil {
		return nil, err
	}
	entries, err := listSQLFiles(dir)
	if err != nil {
		return nil, err
	}

	conn, err := db.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire conn: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, advisoryLockID); err != nil {
		return nil, fmt.Errorf("migration lock: %w", err)
	}
	defer func() {
		if _, err := conn.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, advisoryLockID); err != nil {
			slog.Warn("migration unlock failed", "err", err)
		}
	}()

	if err := ensureTable(ctx, conn.Conn()); err != nil {
		return nil, err
	}

	res := &Result{Dir: dir}
	for _, name := range entries {
		applied, err := isApplied(ctx, conn.Conn(), name)
		if err != nil {
			return nil, err
		}
		if applied {
			res.SkippedFiles = append(res.SkippedFiles, name)
			continue
		}
		start := time.Now()
		if err := applyFile(ctx, conn.Conn(), dir, name); err != nil {
			return nil, err
		}
		slog.Info("migration applied", "file", name, "took_ms", time.Since(start).Milliseconds())
		res.AppliedFiles = append(res.AppliedFiles, name)
	}

	return res, nil
}

// Pending 返回尚未应用的文件名，不加锁也不执行。
func Pending(ctx context.Context, db *pgxpool.Pool, opts Options) ([]string, error) {
	dir, err := resolveMigrationsDir(opts.Dir)
	if err != nil {
		return nil, err
	}
	entries, err := listSQLFiles(dir)
	if err != nil {
		return nil, err
	}

	conn, err := db.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire conn: %w", err)
	}
	defer conn.Release()

	if err := ensureTable(ctx, conn.Conn()); err != nil {
		return nil, err
	}
	var pending []string
	for _, name := range entries {
		applied, err := isApplied(ctx, conn.Conn(), name)
		if err != nil {
			return nil, err
		}
		if !applied {
			pending = append(pending, name)
		}
	}
	return pending, nil
}

func ensureTable(ctx context.Context, conn *pgx.Conn) error {
	_, err := conn.Exec(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
  version TEXT PRIMARY KEY,
  applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`)
	if err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}
	return nil
}

func listSQLFiles(dir string) ([]string, error) {
	entries := make([]string, 0, 32)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir {
				return filepath.SkipDir
			}
			return nil
		}
		name := d.Name()
		if strings.HasSuffix(strings.ToLower(name), ".sql") {
			entries = append(entries, name)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(entries)
	return entries, nil
}

func isApplied(ctx context.Context, conn *pgx.Conn, version string) (bool, error) {
	var exists bool
	err := conn.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version=$1)`, version).Scan(&exists)
	return exists, err
}

func applyFile(ctx context.Context, conn *pgx.Conn, dir string, filename string) error {
	path := filepath.Join(dir, filename)
	sqlBytes, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read migration %s: %w", filename, err)
	}

	tx, err := conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, string(sqlBytes)); err != nil {
		return fmt.Errorf("apply migration %s: %w", filename, err)
	}
	if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version, applied_at) VALUES ($1,$2)`, filename, time.Now()); err != nil {
		return fmt.Errorf("record migration %s: %w", filename, err)
	}

	return tx.Commit(ctx)
}

func resolveMigrationsDir(opt string) (string, error) {
	if opt = strings.TrimSpace(opt); opt != "" {
		return filepath.Clean(opt), nil
	}

	// 优先 CWD/migrations
	if dir, err := filepath.Abs("migrations"); err == nil {
		if st, err := os.Stat(dir); err == nil && st.IsDir() {
			return dir, nil
		}
	}

	// 其次是可执行文件旁边的 migrations
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve migrations dir: %w", err)
	}
	dir := filepath.Join(filepath.Dir(exe), "migrations")
	st, err := os.Stat(dir)
	if err != nil || !st.IsDir() {
		return "", fmt.Errorf("migrations dir not found (tried %s)", dir)
	}
	return dir, nil
}
