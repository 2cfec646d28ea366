package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"salesdeck.io/internal/config"
	"salesdeck.io/internal/migrate"
	"salesdeck.io/internal/obs"
	"salesdeck.io/internal/store/pg"
)

type gooseLogger struct{ log *zap.SugaredLogger }

func (l gooseLogger) Fatalf(format string, v ...any) { l.log.Fatalf(format, v...) }
func (l gooseLogger) Printf(format string, v ...any) { l.log.Infof(format, v...) }

func main() {
	var (
		dsn     = flag.String("dsn", os.Getenv("SALESDECK_DATABASE__DSN"), "PostgreSQL DSN")
		table   = flag.String("table", "", "goose version table (default goose_db_version)")
		timeout = flag.Duration("timeout", 30*time.Second, "overall timeout")
	)
	flag.Parse()

	logger, err := obs.NewLogger("info", os.Stderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logger.Sugar()

	if *dsn == "" {
		cfg := config.Default()
		if path := os.Getenv(config.PathEnv); path != "" {
			if cfg, err = config.Load(path); err != nil {
				log.Fatalf("load config: %v", err)
			}
		}
		*dsn = cfg.Database.DSN
	}
	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or SALESDECK_DATABASE__DSN")
	}
	if flag.NArg() == 0 {
		log.Fatal("usage: migrate [up|down|status|version]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	store, err := pg.Open(*dsn, pg.PoolOptions{MaxOpenConns: 2, MaxIdleConns: 1})
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer store.Close()

	opts := []migrate.Option{migrate.WithLogger(gooseLogger{log: log})}
	if *table != "" {
		opts = append(opts, migrate.WithMigrationsTable(*table))
	}
	mgr := migrate.NewManager(store.DB(), opts...)

	switch flag.Arg(0) {
	case "up":
		err = mgr.Up(ctx)
	case "down":
		err = mgr.Down(ctx)
	case "status":
		var history []string
		history, err = mgr.Status(ctx)
		for _, item := range history {
			fmt.Println(item)
		}
	case "version":
		var v int64
		v, err = mgr.Version(ctx)
		if err == nil {
			fmt.Println(v)
		}
	default:
		log.Fatalf("unknown command %q", flag.Arg(0))
	}
	if err != nil {
		log.Fatalf("migrate %s: %v", flag.Arg(0), err)
	}
}
