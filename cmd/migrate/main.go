// migrate 在发布流程里单独执行数据库迁移，和 api 进程的 AUTO_MIGRATE 用同一套文件和锁。
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"shortener.local/internal/platform/config"
	"shortener.local/internal/platform/db"
	"shortener.local/internal/platform/migrate"
)

func main() {
	cfg := config.Load()

	dir := flag.String("dir", cfg.MigrationsDir, "migrations directory (default: ./migrations or next to the binary)")
	status := flag.Bool("status", false, "list pending migrations without applying them")
	timeout := flag.Duration("timeout", 2*time.Minute, "overall timeout")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})))

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := db.New(ctx, cfg.DBDSN)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	opts := migrate.Options{Dir: *dir}
	if *status {
		pending, err := migrate.Pending(ctx, pool, opts)
		if err != nil {
			log.Fatal(err)
		}
		if len(pending) == 0 {
			fmt.Println("up to date")
			return
		}
		for _, name := range pending {
			fmt.Println("pending", name)
		}
		return
	}

	res, err := migrate.Up(ctx, pool, opts)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("dir=%s applied=%d skipped=%d\n", res.Dir, len(res.AppliedFiles), len(res.SkippedFiles))
}
