package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront/internal/domain/catalog"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/storage/postgres"
)

const (
	bloomFPR  = 0.001
	batchSize = 500
)

func main() {
	var (
		databaseURL string
		files       string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&files, "products", "db/seed/products.json", "comma-separated product JSON files (.json or .json.gz)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, splitFiles(files)); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func splitFiles(s string) []string {
	var out []string
	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

func run(ctx context.Context, databaseURL string, files []string) error {
	if len(files) == 0 {
		return errors.New("no product files given")
	}

	lists, err := readFiles(ctx, files)
	if err != nil {
		return errors.Wrap(err, "read product files")
	}

	products, dups := dedupe(lists)
	if dups > 0 {
		slog.Warn("skipped duplicate product ids", slog.Int("count", dups))
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	repo := postgres.NewProductRepository(pool)
	for start := 0; start < len(products); start += batchSize {
		batch := products[start:min(start+batchSize, len(products))]
		if err := repo.Upsert(ctx, batch); err != nil {
			return errors.Wrapf(err, "upsert products %d-%d", start, start+len(batch))
		}
		slog.Info("upserted products", slog.Int("done", start+len(batch)), slog.Int("total", len(products)))
	}

	return nil
}

// readFiles decodes and validates every file concurrently.
func readFiles(ctx context.Context, files []string) ([][]product.Product, error) {
	lists := make([][]product.Product, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			slog.Info("reading products file", slog.String("path", path))
			ps, err := catalog.FileSource{Path: path}.List(ctx)
			if err != nil {
				return err
			}
			slog.Info("read products file", slog.String("path", path), slog.Int("count", len(ps)))
			lists[i] = ps
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return lists, nil
}

// dedupe keeps the first occurrence of every product id across lists. The
// bloom filter answers "definitely new" for most ids; only possible repeats
// are confirmed against the exact set.
func dedupe(lists [][]product.Product) ([]product.Product, int) {
	var total int
	for _, l := range lists {
		total += len(l)
	}
	if total == 0 {
		return nil, 0
	}

	filter := bloom.NewWithEstimates(uint(total), bloomFPR)
	seen := make(map[string]struct{}, total)
	out := make([]product.Product, 0, total)
	dups := 0
	for _, l := range lists {
		for _, p := range l {
			if filter.TestOrAddString(p.ID) {
				if _, ok := seen[p.ID]; ok {
					dups++
					slog.Debug("duplicate product id", slog.String("id", p.ID))
					continue
				}
			}
			seen[p.ID] = struct{}{}
			out = append(out, p)
		}
	}
	return out, dups
}
