package progress

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"blumenau/catalogworker/helpers"
	"blumenau/catalogworker/internal/supplier"
	"blumenau/catalogworker/logger"
)

// Per-URL crawl status values
const (
	StatusPending = "pending"
	StatusDone    = "done"
	StatusError   = "error"
)

// maxResultLen bounds the free-text result column so failing URLs can't grow
// the ledger without limit
const maxResultLen = 500

// Store is the durable ledger of per-URL crawl state and per-product content
// fingerprints. It backs resume runs and incremental skip decisions.
type Store struct {
	db  *sql.DB
	log *logger.Logger
}

// NewStore opens (or creates) the ledger database at the given path
func NewStore(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("%s?_busy_timeout=5000", path))
	if err != nil {
		return nil, fmt.Errorf("error opening progress database: %w", err)
	}

	// A single connection serializes row writes coming from many workers
	db.SetMaxOpenConns(1)

	if err = db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("unable to establish connection to progress database: %w", err)
	}

	if err = initSchema(ctx, db); err != nil {
		return nil, fmt.Errorf("progress schema initialization error: %w", err)
	}

	return &Store{db: db, log: logger.ForStore()}, nil
}

// initSchema creates the necessary tables if they don't already exist
func initSchema(ctx context.Context, db *sql.DB) error {
	const migrationQuery = `
	CREATE TABLE IF NOT EXISTS url_progress (
		url TEXT PRIMARY KEY NOT NULL,
		supplier TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		processed_at TIMESTAMP,
		result TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_url_progress_supplier_status
		ON url_progress (supplier, status);

	CREATE TABLE IF NOT EXISTS product_cache (
		supplier TEXT NOT NULL,
		sku TEXT NOT NULL,
		id TEXT NOT NULL,
		price REAL NOT NULL,
		content_hash TEXT NOT NULL,
		last_scraped TIMESTAMP NOT NULL,
		source_url TEXT,
		PRIMARY KEY (supplier, sku)
	);
	`
	if _, err := db.ExecContext(ctx, migrationQuery); err != nil {
		return fmt.Errorf("failed to execute migration query: %w", err)
	}
	return nil
}

// Close closes the connection to the database
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		s.log.Error().Err(err).Msg("failed to close the progress database")
		return fmt.Errorf("failed to close the progress database: %w", err)
	}
	return nil
}

// RegisterURLs inserts each URL as pending if absent. Existing entries keep
// their status regardless of how often a supplier's universe is re-registered.
func (s *Store) RegisterURLs(ctx context.Context, urls []string, supplierName string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		"INSERT OR IGNORE INTO url_progress (url, supplier, status) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare insert statement: %w", err)
	}
	defer stmt.Close()

	for _, u := range urls {
		if _, err = stmt.ExecContext(ctx, u, supplierName, StatusPending); err != nil {
			return fmt.Errorf("failed to register url %s: %w", u, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit url registration: %w", err)
	}
	return nil
}

// PendingURLs returns the supplier's URLs still awaiting processing
func (s *Store) PendingURLs(ctx context.Context, supplierName string) ([]string, error) {
	return s.urlsWhere(ctx, "supplier = ? AND status = ?", supplierName, StatusPending)
}

// AllURLs returns every registered URL for the supplier
func (s *Store) AllURLs(ctx context.Context, supplierName string) ([]string, error) {
	return s.urlsWhere(ctx, "supplier = ?", supplierName)
}

func (s *Store) urlsWhere(ctx context.Context, where string, args ...interface{}) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT url FROM url_progress WHERE "+where+" ORDER BY url", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query urls: %w", err)
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var u string
		if err = rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("failed to scan url: %w", err)
		}
		urls = append(urls, u)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return urls, nil
}

// MarkDone records a terminal "done" status with a free-text outcome tag
func (s *Store) MarkDone(ctx context.Context, url, result string) error {
	return s.mark(ctx, url, StatusDone, result)
}

// MarkError records a terminal "error" status. The error text is truncated
// to a bounded length.
func (s *Store) MarkError(ctx context.Context, url, errText string) error {
	return s.mark(ctx, url, StatusError, errText)
}

func (s *Store) mark(ctx context.Context, url, status, result string) error {
	result = helpers.Truncate(result, maxResultLen)
	_, err := s.db.ExecContext(ctx,
		"UPDATE url_progress SET status = ?, processed_at = ?, result = ? WHERE url = ?",
		status, time.Now().UTC(), result, url)
	if err != nil {
		return fmt.Errorf("failed to mark url %s as %s: %w", url, status, err)
	}
	return nil
}

// ResetURLs deletes every ledger entry for a supplier, forcing a full
// re-crawl on the next run. Fingerprints are kept.
func (s *Store) ResetURLs(ctx context.Context, supplierName string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM url_progress WHERE supplier = ?", supplierName)
	if err != nil {
		return fmt.Errorf("failed to reset urls for %s: %w", supplierName, err)
	}
	return nil
}

// Progress aggregates a supplier's ledger counts
type Progress struct {
	Total   int
	Done    int
	Errors  int
	Pending int
}

// GetProgress returns the supplier's aggregate crawl counts
func (s *Store) GetProgress(ctx context.Context, supplierName string) (Progress, error) {
	var p Progress
	rows, err := s.db.QueryContext(ctx,
		"SELECT status, COUNT(*) FROM url_progress WHERE supplier = ? GROUP BY status", supplierName)
	if err != nil {
		return p, fmt.Errorf("failed to query progress: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int
		if err = rows.Scan(&status, &count); err != nil {
			return p, fmt.Errorf("failed to scan progress row: %w", err)
		}
		switch status {
		case StatusDone:
			p.Done = count
		case StatusError:
			p.Errors = count
		case StatusPending:
			p.Pending = count
		}
		p.Total += count
	}
	if err = rows.Err(); err != nil {
		return p, fmt.Errorf("rows iteration error: %w", err)
	}
	return p, nil
}

// Fingerprint is the cached change-detection record for one (supplier, sku)
type Fingerprint struct {
	ID          string
	Supplier    string
	SKU         string
	Price       float64
	ContentHash string
	LastScraped time.Time
	SourceURL   string
}

// Hash computes the content fingerprint of a product. Only name, price,
// stock flag and description participate: image, spec or category changes
// are deliberately invisible to incremental mode.
func Hash(p *supplier.Product) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s|%.2f|%t|%s", p.Name, p.Price, p.InStock, p.Description))
	return hex.EncodeToString(sum[:])
}

// CachedFingerprint returns the stored fingerprint for (supplier, sku), or
// nil when none exists
func (s *Store) CachedFingerprint(ctx context.Context, supplierName, sku string) (*Fingerprint, error) {
	var fp Fingerprint
	err := s.db.QueryRowContext(ctx,
		"SELECT id, supplier, sku, price, content_hash, last_scraped, source_url FROM product_cache WHERE supplier = ? AND sku = ?",
		supplierName, sku).
		Scan(&fp.ID, &fp.Supplier, &fp.SKU, &fp.Price, &fp.ContentHash, &fp.LastScraped, &fp.SourceURL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query fingerprint: %w", err)
	}
	return &fp, nil
}

// UpsertFingerprint stores the current fingerprint for an accepted product
func (s *Store) UpsertFingerprint(ctx context.Context, p *supplier.Product) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO product_cache (supplier, sku, id, price, content_hash, last_scraped, source_url)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (supplier, sku) DO UPDATE SET
			id = excluded.id,
			price = excluded.price,
			content_hash = excluded.content_hash,
			last_scraped = excluded.last_scraped,
			source_url = excluded.source_url`,
		p.Supplier, p.SKU, p.ID, p.Price, Hash(p), time.Now().UTC(), p.SourceURL)
	if err != nil {
		return fmt.Errorf("failed to upsert fingerprint for %s/%s: %w", p.Supplier, p.SKU, err)
	}
	return nil
}

// HasChanged reports whether the product differs from its cached fingerprint.
// Unknown products always count as changed.
func (s *Store) HasChanged(ctx context.Context, p *supplier.Product) (bool, error) {
	fp, err := s.CachedFingerprint(ctx, p.Supplier, p.SKU)
	if err != nil {
		return false, err
	}
	if fp == nil {
		return true, nil
	}
	return fp.ContentHash != Hash(p), nil
}
