// Package storage implements the storage pipeline (C4): batched,
// compressed, content-hash-deduplicated persistence of crawled pages
// across a small metadata table and a larger content table.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/saurabh6354/distributed-web-crawler/internal/domain"
	"github.com/saurabh6354/distributed-web-crawler/internal/logger"
	"github.com/saurabh6354/distributed-web-crawler/internal/retry"
)

// DefaultBatchSize is the number of pages buffered before an automatic flush.
const DefaultBatchSize = 50

// DefaultBatchAge is the maximum time a page sits buffered before an
// automatic flush, regardless of batch size.
const DefaultBatchAge = 5 * time.Second

// ErrClosed is returned by Add once the store has been closed.
var ErrClosed = errors.New("storage: store is closed")

// page is one buffered write, paired metadata and (possibly nil, when
// deduplicated against an already-buffered or already-stored body) content.
type page struct {
	metadata domain.PageMetadata
	content  *domain.PageContent
}

// Config controls batching behavior.
type Config struct {
	BatchSize int
	BatchAge  time.Duration
}

// DefaultConfig returns the documented batching defaults.
func DefaultConfig() Config {
	return Config{BatchSize: DefaultBatchSize, BatchAge: DefaultBatchAge}
}

// Store is the Postgres-backed document store described in
// SPEC_FULL.md §4.4. Pages are buffered in memory and flushed either when
// the batch reaches Config.BatchSize or Config.BatchAge elapses, whichever
// comes first.
type Store struct {
	db     *sqlx.DB
	logger logger.Interface
	cfg    Config

	mu      sync.Mutex
	buffer  []page
	seen    map[string]struct{} // content hashes already buffered this batch
	closed  bool
	flushCh chan struct{}
	doneCh  chan struct{}
}

// New constructs a Store and starts its background batch-age flusher.
func New(db *sqlx.DB, log logger.Interface, cfg Config) *Store {
	if cfg.BatchSize <= 0 {
		cfg = DefaultConfig()
	}
	s := &Store{
		db:      db,
		logger:  log,
		cfg:     cfg,
		seen:    make(map[string]struct{}),
		flushCh: make(chan struct{}, 1),
		doneCh:  make(chan struct{}),
	}
	go s.ageLoop()
	return s
}

// Add buffers a fetched page for persistence, computing its content hash
// for cross-batch deduplication. body may be nil for non-HTML responses
// that carry no content worth storing (metadata is still recorded).
func (s *Store) Add(ctx context.Context, meta domain.PageMetadata, body []byte) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}

	var content *domain.PageContent
	if len(body) > 0 {
		hash := contentHash(body)
		meta.ContentHash = hash

		if _, buffered := s.seen[hash]; !buffered {
			compressed, err := compress(body)
			if err != nil {
				s.mu.Unlock()
				return fmt.Errorf("storage: compress: %w", err)
			}
			content = &domain.PageContent{
				ContentHash:     hash,
				CompressedBody:  compressed,
				OriginalLength:  len(body),
				CompressionAlgo: domain.CompressionDeflate,
				CreatedAt:       time.Now(),
			}
			s.seen[hash] = struct{}{}
		}
	}

	meta.CreatedAt = time.Now()
	meta.UpdatedAt = meta.CreatedAt
	s.buffer = append(s.buffer, page{metadata: meta, content: content})
	shouldFlush := len(s.buffer) >= s.cfg.BatchSize
	s.mu.Unlock()

	if shouldFlush {
		return s.Flush(ctx)
	}
	return nil
}

// Flush persists the current buffer, retrying the write with exponential
// backoff on transient failure. Metadata rows are written first; content
// rows are written only for metadata that was written successfully, so a
// partially-failed batch never leaves orphaned content.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	if len(s.buffer) == 0 {
		s.mu.Unlock()
		return nil
	}
	batch := s.buffer
	s.buffer = nil
	s.seen = make(map[string]struct{})
	s.mu.Unlock()

	err := retry.Retry(ctx, retry.DefaultConfig(), func() error {
		return s.flushBatch(ctx, batch)
	})
	if err != nil {
		s.logger.Error("storage: flush failed permanently", "batch_size", len(batch), "error", err)
		return fmt.Errorf("storage: flush: %w", err)
	}
	return nil
}

func (s *Store) flushBatch(ctx context.Context, batch []page) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	written := make([]page, 0, len(batch))
	for _, p := range batch {
		if _, err := tx.ExecContext(ctx, "SAVEPOINT metadata_row"); err != nil {
			return fmt.Errorf("savepoint: %w", err)
		}
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO pages_metadata
				(url, normalized_url, status, content_type, content_length, content_hash,
				 fetched_at, worker_id, outbound_link_count, headers, created_at, updated_at)
			VALUES
				(:url, :normalized_url, :status, :content_type, :content_length, :content_hash,
				 :fetched_at, :worker_id, :outbound_link_count, :headers, :created_at, :updated_at)
			ON CONFLICT (normalized_url) DO UPDATE SET
				status = EXCLUDED.status,
				content_type = EXCLUDED.content_type,
				content_length = EXCLUDED.content_length,
				content_hash = EXCLUDED.content_hash,
				fetched_at = EXCLUDED.fetched_at,
				worker_id = EXCLUDED.worker_id,
				outbound_link_count = EXCLUDED.outbound_link_count,
				headers = EXCLUDED.headers,
				updated_at = EXCLUDED.updated_at
		`, p.metadata)
		if err != nil {
			// Skip this row and continue with the rest of the batch, mirroring
			// an unordered bulk insert that tolerates individual failures. The
			// savepoint keeps the failed statement from aborting the transaction.
			if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT metadata_row"); rbErr != nil {
				return fmt.Errorf("rollback to savepoint: %w", rbErr)
			}
			s.logger.Warn("storage: metadata write failed, skipping", "url", p.metadata.NormalizedURL, "error", err)
			continue
		}
		written = append(written, p)
	}

	for _, p := range written {
		if p.content == nil {
			continue
		}
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO pages_content (content_hash, compressed_body, original_length, compression, created_at)
			VALUES (:content_hash, :compressed_body, :original_length, :compression, :created_at)
			ON CONFLICT (content_hash) DO NOTHING
		`, p.content)
		if err != nil {
			return fmt.Errorf("insert content %s: %w", p.content.ContentHash, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// GetMetadata retrieves the stored metadata for a normalized URL.
func (s *Store) GetMetadata(ctx context.Context, normalizedURL string) (domain.PageMetadata, error) {
	var meta domain.PageMetadata
	err := s.db.GetContext(ctx, &meta, `SELECT * FROM pages_metadata WHERE normalized_url = $1`, normalizedURL)
	if err != nil {
		return domain.PageMetadata{}, fmt.Errorf("storage: get metadata: %w", err)
	}
	return meta, nil
}

// GetContent retrieves and decompresses the stored content for a hash.
func (s *Store) GetContent(ctx context.Context, contentHash string) ([]byte, error) {
	var row domain.PageContent
	err := s.db.GetContext(ctx, &row, `SELECT * FROM pages_content WHERE content_hash = $1`, contentHash)
	if err != nil {
		return nil, fmt.Errorf("storage: get content: %w", err)
	}
	if row.CompressionAlgo == domain.CompressionNone {
		return row.CompressedBody, nil
	}
	return decompress(row.CompressedBody)
}

// FindByContentHash returns the normalized URLs of every page stored under
// the given content hash, letting a caller discover duplicate pages (pages
// whose bodies hashed identically and so share a single pages_content row)
// without decompressing anything.
func (s *Store) FindByContentHash(ctx context.Context, contentHash string) ([]string, error) {
	var urls []string
	err := s.db.SelectContext(ctx, &urls, `SELECT normalized_url FROM pages_metadata WHERE content_hash = $1`, contentHash)
	if err != nil {
		return nil, fmt.Errorf("storage: find by content hash: %w", err)
	}
	return urls, nil
}

// DomainStats summarizes crawl progress for a single host.
type DomainStats struct {
	Host       string `db:"host"`
	PageCount  int64  `db:"page_count"`
	AvgLatency float64
}

// GetDomainStats returns per-host page counts, derived from the host
// segment of stored normalized URLs.
func (s *Store) GetDomainStats(ctx context.Context) ([]DomainStats, error) {
	var stats []DomainStats
	err := s.db.SelectContext(ctx, &stats, `
		SELECT split_part(split_part(normalized_url, '://', 2), '/', 1) AS host,
		       count(*) AS page_count
		FROM pages_metadata
		GROUP BY host
		ORDER BY page_count DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("storage: domain stats: %w", err)
	}
	return stats, nil
}

// Close flushes any buffered pages and stops the background flusher.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.doneCh)
	return s.Flush(ctx)
}

// ageLoop flushes the buffer every BatchAge interval so a slow trickle of
// pages doesn't sit unpersisted indefinitely between batch-size triggers.
func (s *Store) ageLoop() {
	ticker := time.NewTicker(s.cfg.BatchAge)
	defer ticker.Stop()

	for {
		select {
		case <-s.doneCh:
			return
		case <-ticker.C:
			if err := s.Flush(context.Background()); err != nil {
				s.logger.Error("storage: age-triggered flush failed", "error", err)
			}
		}
	}
}

func contentHash(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
