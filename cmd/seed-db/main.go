package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/app"
	"github.com/xenking/storefront/internal/catalog"
)

// locations is a repeatable string flag.
type locations []string

func (l *locations) String() string { return strings.Join(*l, ",") }

func (l *locations) Set(v string) error {
	*l = append(*l, v)
	return nil
}

type options struct {
	storage     app.StorageConfig
	feeds       locations
	initOnly    bool
	drop        bool
	concurrency int
}

func main() {
	var opts options

	flag.StringVar(&opts.storage.Driver, "driver", app.DriverSQLite, "storage driver: postgres or sqlite")
	flag.StringVar(&opts.storage.DatabaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.storage.SQLitePath, "sqlite-path", "storefront.db", "SQLite database file")
	flag.Var(&opts.feeds, "products-file", "catalog feed URL or file, .gz allowed (repeatable; default: the remote feed)")
	flag.BoolVar(&opts.initOnly, "init-only", false, "create the tables without loading products")
	flag.BoolVar(&opts.drop, "drop", false, "drop every table before creating them")
	flag.IntVar(&opts.concurrency, "concurrency", 8, "parallel product upserts")
	flag.Parse()

	if opts.storage.DatabaseURL == "" {
		opts.storage.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if opts.storage.Driver == app.DriverPostgres && opts.storage.DatabaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if opts.storage.Driver == app.DriverMemory {
		slog.Error("the memory driver keeps nothing to seed; use postgres or sqlite")
		os.Exit(1)
	}
	if len(opts.feeds) == 0 {
		opts.feeds = locations{catalog.DefaultURL}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, opts options) error {
	slog.Info("connecting to database", slog.String("driver", opts.storage.Driver))

	store, err := app.OpenStorage(ctx, opts.storage)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer store.Close()

	if opts.drop {
		slog.Info("dropping tables")
		if err := store.Drop(ctx); err != nil {
			return errors.Wrap(err, "drop tables")
		}
	}

	slog.Info("running migrations")
	if err := store.Migrate(ctx); err != nil {
		return errors.Wrap(err, "run migrations")
	}
	if opts.initOnly {
		return nil
	}

	slog.Info("loading catalog", slog.Any("sources", []string(opts.feeds)))
	sources, err := catalog.LoadAll(ctx, nil, opts.feeds)
	if err != nil {
		return errors.Wrap(err, "load catalog")
	}
	for _, s := range sources {
		slog.Info("read catalog source",
			slog.String("source", s.Location),
			slog.Int("valid", len(s.Products)),
			slog.Int("invalid", len(s.Invalid)),
		)
		for _, err := range s.Invalid {
			slog.Warn("skipping product", slog.String("source", s.Location), slog.String("error", err.Error()))
		}
	}

	products, conflicts := catalog.Merge(sources)
	for _, c := range conflicts {
		slog.Warn("product defined in several sources, last one wins",
			slog.Int64("id", c.ID),
			slog.Any("sources", c.Locations),
		)
	}

	slog.Info("upserting products", slog.Int("count", len(products)))
	if err := catalog.Store(ctx, store.Catalog, products, opts.concurrency); err != nil {
		return errors.Wrap(err, "seed products")
	}
	return nil
}
