package engine

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"blumenau/catalogworker/helpers"
	"blumenau/catalogworker/internal/progress"
	"blumenau/catalogworker/internal/supplier"
	"blumenau/catalogworker/logger"
	"blumenau/catalogworker/pkg/errors"
	"blumenau/catalogworker/services/cache"
)

// Mode selects how the engine sources the URL universe for a run
type Mode int

const (
	// ModeFresh resets the supplier's ledger and registers a full discovery
	ModeFresh Mode = iota
	// ModeResume continues from the ledger's pending URLs
	ModeResume
	// ModeTest caps discovery to a small fixed count
	ModeTest
)

// Result tags written to the ledger for terminal "done" entries
const (
	ResultOK        = "ok"
	ResultNoData    = "no_data"
	ResultUnchanged = "unchanged"
)

// Options tunes one engine run
type Options struct {
	MinPrice     float64
	Workers      int
	Mode         Mode
	Incremental  bool
	TestLimit    int
	Delay        time.Duration
	Timeout      time.Duration
	Retries      int
	SaveInterval int
	BlockTime    time.Duration
}

// SaveFunc persists an intermediate snapshot of accepted products. It bounds
// data loss on interruption to one save interval's worth of work.
type SaveFunc func(products []supplier.Product, supplierName string) error

// Summary aggregates the outcome counts of one run
type Summary struct {
	URLs      int
	Accepted  int
	New       int
	Updated   int
	Unchanged int
	NoData    int
	BelowMin  int
	Errors    int
}

// Engine fetches product pages concurrently with a bounded worker pool,
// records per-URL outcomes in the progress store, and streams accepted
// records to the save callback.
type Engine struct {
	store    *progress.Store
	cacheSvc cache.CacheService
	opts     Options
	onSave   SaveFunc
	log      *logger.Logger
}

// New creates an engine. Zero option values fall back to usable defaults.
func New(store *progress.Store, cacheSvc cache.CacheService, opts Options, onSave SaveFunc) *Engine {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Retries < 1 {
		opts.Retries = 3
	}
	if opts.SaveInterval < 1 {
		opts.SaveInterval = 10
	}
	if opts.TestLimit < 1 {
		opts.TestLimit = 10
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.BlockTime <= 0 {
		opts.BlockTime = 5 * time.Minute
	}
	return &Engine{
		store:    store,
		cacheSvc: cacheSvc,
		opts:     opts,
		onSave:   onSave,
		log:      logger.ForEngine(),
	}
}

// runState is the only cross-worker mutable state besides the progress store
type runState struct {
	mu       sync.Mutex
	accepted []supplier.Product
	lastSave int
	summary  Summary
}

// ScrapeAll crawls one supplier's URL universe and returns the products
// accepted during this run. Individual page failures never abort the run;
// a sitemap-level discovery failure aborts this supplier only.
func (e *Engine) ScrapeAll(ctx context.Context, sup supplier.Supplier) ([]supplier.Product, Summary, error) {
	urls, err := e.sourceURLs(ctx, sup)
	if err != nil {
		return nil, Summary{}, err
	}

	state := &runState{}
	state.summary.URLs = len(urls)
	if len(urls) == 0 {
		return nil, state.summary, nil
	}

	e.log.Info().
		Str("supplier", sup.Name()).
		Int("urls", len(urls)).
		Int("workers", e.opts.Workers).
		Bool("incremental", e.opts.Incremental).
		Msg("Starting crawl")

	jobs := make(chan string)
	var wg sync.WaitGroup
	for i := 0; i < e.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Each worker owns its session and its share of the request rate
			fetcher := helpers.NewFetcher(sup.Name(), e.opts.Timeout, e.cacheSvc, e.opts.BlockTime)
			limiter := rate.NewLimiter(rate.Every(e.opts.Delay), 1)
			for u := range jobs {
				e.processURL(ctx, sup, fetcher, u, state)
				if err := limiter.Wait(ctx); err != nil {
					return
				}
			}
		}()
	}

dispatch:
	for _, u := range urls {
		select {
		case jobs <- u:
		case <-ctx.Done():
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()

	e.log.Info().
		Str("supplier", sup.Name()).
		Int("urls", state.summary.URLs).
		Int("accepted", state.summary.Accepted).
		Int("new", state.summary.New).
		Int("updated", state.summary.Updated).
		Int("unchanged", state.summary.Unchanged).
		Int("no_data", state.summary.NoData).
		Int("below_min_price", state.summary.BelowMin).
		Int("errors", state.summary.Errors).
		Msg("Crawl finished")

	return state.accepted, state.summary, nil
}

// sourceURLs resolves the URL universe according to the run mode
func (e *Engine) sourceURLs(ctx context.Context, sup supplier.Supplier) ([]string, error) {
	name := sup.Name()

	switch e.opts.Mode {
	case ModeResume:
		pending, err := e.store.PendingURLs(ctx, name)
		if err != nil {
			return nil, err
		}
		if len(pending) > 0 {
			e.log.Info().Str("supplier", name).Int("pending", len(pending)).Msg("Resuming from pending URLs")
			return pending, nil
		}
		prog, err := e.store.GetProgress(ctx, name)
		if err != nil {
			return nil, err
		}
		if prog.Total > 0 {
			e.log.Info().Str("supplier", name).Msg("Nothing pending, crawl already complete")
			return nil, nil
		}
		// Nothing registered yet: behave like a first run
		return e.discover(ctx, sup, 0, false)
	case ModeTest:
		return e.discover(ctx, sup, e.opts.TestLimit, false)
	default:
		return e.discover(ctx, sup, 0, true)
	}
}

func (e *Engine) discover(ctx context.Context, sup supplier.Supplier, limit int, reset bool) ([]string, error) {
	fetcher := helpers.NewFetcher(sup.Name(), e.opts.Timeout, e.cacheSvc, e.opts.BlockTime)
	urls, err := sup.ListProductURLs(ctx, fetcher)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(urls) > limit {
		e.log.Info().Str("supplier", sup.Name()).Int("limit", limit).Msg("Capping discovery (test mode)")
		urls = urls[:limit]
	}
	if reset {
		if err := e.store.ResetURLs(ctx, sup.Name()); err != nil {
			return nil, err
		}
	}
	if err := e.store.RegisterURLs(ctx, urls, sup.Name()); err != nil {
		return nil, err
	}
	return urls, nil
}

// processURL handles one URL end to end. Every outcome, including a panic in
// parsing code, is recorded in the ledger before the worker moves on.
func (e *Engine) processURL(ctx context.Context, sup supplier.Supplier, fetcher *helpers.Fetcher, url string, state *runState) {
	defer func() {
		if r := recover(); r != nil {
			e.markError(ctx, url, fmt.Sprintf("panic: %v", r), state)
		}
	}()

	body, err := e.fetchWithRetry(ctx, fetcher, url)
	if err != nil {
		e.markError(ctx, url, err.Error(), state)
		return
	}

	p, err := sup.ParsePage(url, body)
	if err != nil {
		e.markError(ctx, url, err.Error(), state)
		return
	}
	if p == nil {
		e.markDone(ctx, url, ResultNoData)
		state.mu.Lock()
		state.summary.NoData++
		state.mu.Unlock()
		return
	}

	// Boundary is inclusive: a price exactly at the minimum is accepted
	if p.Price < e.opts.MinPrice {
		e.markDone(ctx, url, fmt.Sprintf("price_below_min:%.2f", p.Price))
		state.mu.Lock()
		state.summary.BelowMin++
		state.mu.Unlock()
		return
	}

	cached, err := e.store.CachedFingerprint(ctx, p.Supplier, p.SKU)
	if err != nil {
		e.log.Warn().Err(err).Str("url", url).Msg("Fingerprint lookup failed")
	}

	if e.opts.Incremental && cached != nil && cached.ContentHash == progress.Hash(p) {
		e.markDone(ctx, url, ResultUnchanged)
		state.mu.Lock()
		state.summary.Unchanged++
		state.mu.Unlock()
		return
	}

	if err := e.store.UpsertFingerprint(ctx, p); err != nil {
		e.log.Warn().Err(err).Str("url", url).Msg("Fingerprint upsert failed")
	}
	e.markDone(ctx, url, ResultOK)

	e.accept(*p, cached == nil, sup.Name(), state)
}

// fetchWithRetry fetches with up to Retries attempts and linear backoff.
// Non-retryable failures (an active rate-limit block) stop early.
func (e *Engine) fetchWithRetry(ctx context.Context, fetcher *helpers.Fetcher, url string) (body io.Reader, err error) {
	for attempt := 1; attempt <= e.opts.Retries; attempt++ {
		body, err = fetcher.Get(ctx, url)
		if err == nil {
			return body, nil
		}
		if !errors.IsRetryable(err) || attempt == e.opts.Retries {
			break
		}
		e.log.Debug().
			Str("url", url).
			Int("attempt", attempt).
			Int("retries", e.opts.Retries).
			Err(err).
			Msg("Fetch attempt failed")
		backoff := e.opts.Delay * time.Duration(attempt)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, err
}

// accept appends a record to the shared collection and flushes a snapshot
// whenever the count crosses the save interval
func (e *Engine) accept(p supplier.Product, isNew bool, supplierName string, state *runState) {
	var snapshot []supplier.Product

	state.mu.Lock()
	state.accepted = append(state.accepted, p)
	state.summary.Accepted++
	if isNew {
		state.summary.New++
	} else {
		state.summary.Updated++
	}
	if e.onSave != nil && len(state.accepted) >= state.lastSave+e.opts.SaveInterval {
		snapshot = make([]supplier.Product, len(state.accepted))
		copy(snapshot, state.accepted)
		state.lastSave = len(state.accepted)
	}
	state.mu.Unlock()

	e.log.Debug().
		Str("product", p.Name).
		Str("price", p.PriceFormatted).
		Msg("Accepted product")

	if snapshot != nil {
		if err := e.onSave(snapshot, supplierName); err != nil {
			e.log.Error().Err(err).Msg("Incremental save failed")
		} else {
			e.log.Info().Int("products", len(snapshot)).Msg("Incremental save")
		}
	}
}

func (e *Engine) markDone(ctx context.Context, url, result string) {
	if err := e.store.MarkDone(ctx, url, result); err != nil {
		e.log.Warn().Err(err).Str("url", url).Msg("Failed to mark URL done")
	}
}

func (e *Engine) markError(ctx context.Context, url, errText string, state *runState) {
	if err := e.store.MarkError(ctx, url, errText); err != nil {
		e.log.Warn().Err(err).Str("url", url).Msg("Failed to mark URL errored")
	}
	state.mu.Lock()
	state.summary.Errors++
	state.mu.Unlock()
}
