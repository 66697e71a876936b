package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	cli "github.com/jawher/mow.cli"
	"github.com/joho/godotenv"

	"blumenau/catalogworker/config"
	"blumenau/catalogworker/internal/catalog"
	"blumenau/catalogworker/internal/engine"
	"blumenau/catalogworker/internal/export"
	"blumenau/catalogworker/internal/progress"
	"blumenau/catalogworker/internal/supplier"
	"blumenau/catalogworker/logger"
	"blumenau/catalogworker/services/cache"
	"blumenau/catalogworker/services/publisher"
)

func main() {
	_ = godotenv.Load()
	logger.Init()

	cfg := config.LoadConfig()

	app := cli.App("catalogworker", "Incremental product catalog scraper for Magazord storefront suppliers")
	app.Spec = "[--supplier] [--test] [--limit] [--min-price] [--delay] [--workers] [--incremental] [--resume] [--reset] [--status] [--export] [--output]"

	var (
		supplierName = app.StringOpt("supplier", "all", "Supplier to work on (all, proesi, lojavale)")
		testMode     = app.BoolOpt("test", false, "Crawl only a handful of URLs per supplier")
		limit        = app.IntOpt("limit", cfg.TestLimit, "URL cap applied in test mode")
		minPrice     = app.Float64Opt("min-price", cfg.MinPrice, "Minimum accepted price in BRL (inclusive)")
		delayMs      = app.IntOpt("delay", int(cfg.RequestDelay.Milliseconds()), "Per-worker delay between requests in milliseconds")
		workers      = app.IntOpt("workers", cfg.Workers, "Number of concurrent page workers")
		incremental  = app.BoolOpt("incremental", false, "Skip products whose content fingerprint is unchanged")
		resume       = app.BoolOpt("resume", false, "Continue from pending URLs instead of rediscovering")
		reset        = app.BoolOpt("reset", false, "Clear crawl progress for the selected suppliers and exit")
		status       = app.BoolOpt("status", false, "Print crawl progress for the selected suppliers and exit")
		exportFmt    = app.StringOpt("export", "", "Write a marketplace feed from the saved catalog (google, mercadolivre, shopee) and exit")
		output       = app.StringOpt("output", "", "Output path for --export")
	)

	app.Action = func() {
		if err := cfg.Validate(); err != nil {
			logger.Fatal("Invalid configuration: %v", err)
		}

		cfg.MinPrice = *minPrice
		cfg.Workers = *workers
		cfg.RequestDelay = time.Duration(*delayMs) * time.Millisecond
		cfg.TestLimit = *limit

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		suppliers, err := selectSuppliers(cfg, *supplierName)
		if err != nil {
			logger.Fatal("Unknown supplier: %v", err)
		}

		if *exportFmt != "" {
			if err := runExport(cfg, *exportFmt, *output); err != nil {
				logger.Fatal("Export failed: %v", err)
			}
			return
		}

		store, err := progress.NewStore(ctx, cfg.ProgressDBPath)
		if err != nil {
			logger.Fatal("Failed to open progress database: %v", err)
		}
		defer store.Close()

		if *status {
			printStatus(ctx, store, suppliers)
			return
		}
		if *reset {
			for _, sup := range suppliers {
				if err := store.ResetURLs(ctx, sup.Name()); err != nil {
					logger.Fatal("Failed to reset progress for %s: %v", sup.Name(), err)
				}
				logger.Info("Progress cleared for %s", sup.Name())
			}
			return
		}

		mode := engine.ModeFresh
		switch {
		case *testMode:
			mode = engine.ModeTest
		case *resume:
			mode = engine.ModeResume
		}

		total, err := runScrape(ctx, cfg, store, suppliers, mode, *incremental)
		if err != nil {
			logger.Fatal("Scrape failed: %v", err)
		}
		if total == 0 {
			logger.Error("No products scraped")
			cli.Exit(1)
		}
	}

	if err := app.Run(os.Args); err != nil {
		logger.Fatal("Command failed: %v", err)
	}
}

// runScrape crawls each selected supplier in order and merges its results into
// the catalog as soon as it finishes, so an interruption between suppliers
// still leaves a consistent file behind.
func runScrape(ctx context.Context, cfg config.Config, store *progress.Store, suppliers []supplier.Supplier, mode engine.Mode, incremental bool) (int, error) {
	cacheSvc := newCacheService(cfg)
	merger := catalog.NewMerger(cfg.CatalogPath)

	var pub publisher.Publisher
	if cfg.RedisAddr != "" {
		redisPub := publisher.NewRedisPublisher(ctx, cfg.RedisAddr, cfg.RedisDB, cfg.RedisStream, cfg.RedisStreamMaxLength)
		pub = redisPub
		defer pub.Close()
	}

	opts := engine.Options{
		MinPrice:     cfg.MinPrice,
		Workers:      cfg.Workers,
		Mode:         mode,
		Incremental:  incremental,
		TestLimit:    cfg.TestLimit,
		Delay:        cfg.RequestDelay,
		Timeout:      cfg.FetchTimeout,
		Retries:      cfg.FetchRetries,
		SaveInterval: cfg.SaveInterval,
	}

	var total int
	for _, sup := range suppliers {
		if ctx.Err() != nil {
			break
		}

		onSave := func(products []supplier.Product, supplierName string) error {
			_, err := merger.MergeAndSave(mergeInput(merger, products, supplierName, incremental), []string{supplierName})
			return err
		}

		eng := engine.New(store, cacheSvc, opts, onSave)
		accepted, summary, err := eng.ScrapeAll(ctx, sup)
		if err != nil {
			logger.LogError("main", err, "Supplier %s failed, continuing with the next one", sup.Name())
			continue
		}

		if _, err := merger.MergeAndSave(mergeInput(merger, accepted, sup.Name(), incremental), []string{sup.Name()}); err != nil {
			return total, err
		}
		total += summary.Accepted

		if pub != nil {
			publishAccepted(pub, sup.Name(), accepted)
		}
	}

	if pub != nil {
		if err := pub.TrimStreams(); err != nil {
			logger.LogError("main", err, "Failed to trim product streams")
		}
	}
	return total, nil
}

// mergeInput builds the record set handed to the merger. The merger replaces
// a touched supplier's records wholesale, so an incremental run, which only
// returns changed products, must carry the supplier's untouched records over
// from the saved catalog or they would vanish.
func mergeInput(merger *catalog.Merger, accepted []supplier.Product, supplierName string, incremental bool) []supplier.Product {
	if !incremental {
		return accepted
	}

	old, err := merger.Load()
	if err != nil {
		logger.LogError("main", err, "Failed to load catalog for incremental merge")
		return accepted
	}

	seen := make(map[string]struct{}, len(accepted))
	for _, p := range accepted {
		seen[p.ID] = struct{}{}
	}

	records := append([]supplier.Product{}, accepted...)
	for _, p := range old.Products {
		if p.Supplier != supplierName {
			continue
		}
		if _, ok := seen[p.ID]; ok {
			continue
		}
		records = append(records, p)
	}
	return records
}

func publishAccepted(pub publisher.Publisher, supplierName string, products []supplier.Product) {
	for _, p := range products {
		data, err := json.Marshal(p)
		if err != nil {
			logger.LogError("main", err, "Failed to marshal product %s", p.ID)
			continue
		}
		if err := pub.Publish(supplierName, data); err != nil {
			logger.LogError("main", err, "Failed to publish product %s", p.ID)
		}
	}
}

func runExport(cfg config.Config, format, output string) error {
	merger := catalog.NewMerger(cfg.CatalogPath)
	cat, err := merger.Load()
	if err != nil {
		return err
	}
	if output == "" {
		output = defaultFeedPath(format)
	}
	return export.NewExporter(cfg.StoreURL).Export(cat, format, output)
}

func defaultFeedPath(format string) string {
	if format == export.FormatGoogleMerchant {
		return "google-feed.tsv"
	}
	return format + "-feed.csv"
}

func printStatus(ctx context.Context, store *progress.Store, suppliers []supplier.Supplier) {
	for _, sup := range suppliers {
		prog, err := store.GetProgress(ctx, sup.Name())
		if err != nil {
			logger.LogError("main", err, "Failed to read progress for %s", sup.Name())
			continue
		}
		fmt.Printf("%-10s total=%d done=%d errors=%d pending=%d\n",
			sup.Name(), prog.Total, prog.Done, prog.Errors, prog.Pending)
	}
}

func selectSuppliers(cfg config.Config, name string) ([]supplier.Supplier, error) {
	suppliers := supplier.CreateSuppliers(cfg)
	if name == "all" {
		return suppliers, nil
	}
	s := supplier.FindSupplier(suppliers, name)
	if s == nil {
		return nil, fmt.Errorf("no supplier named %q", name)
	}
	return []supplier.Supplier{s}, nil
}

func newCacheService(cfg config.Config) cache.CacheService {
	if cfg.MemcacheAddr != "" {
		return cache.NewMemcacheService(cfg.MemcacheAddr)
	}
	return cache.NewMemoryService()
}

