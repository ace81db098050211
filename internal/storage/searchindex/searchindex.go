// Package searchindex provides a best-effort Elasticsearch mirror of
// stored page metadata, used for ad-hoc read-side search rather than as
// the system of record — the Postgres document store in internal/storage
// remains authoritative.
package searchindex

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	es "github.com/elastic/go-elasticsearch/v8"

	"github.com/saurabh6354/distributed-web-crawler/internal/domain"
	"github.com/saurabh6354/distributed-web-crawler/internal/logger"
)

// PagesIndex is the Elasticsearch index name pages are mirrored into.
const PagesIndex = "pages_search"

// Config configures the Elasticsearch client.
type Config struct {
	Addresses []string
	Username  string
	Password  string
}

// Index is a thin Elasticsearch client wrapper exposing only the document
// upsert operation the storage pipeline needs.
type Index struct {
	client *es.Client
	logger logger.Interface
}

// New connects to Elasticsearch and verifies reachability with Ping.
func New(cfg Config, log logger.Interface) (*Index, error) {
	if len(cfg.Addresses) == 0 {
		return nil, errors.New("searchindex: at least one address is required")
	}

	client, err := es.NewClient(es.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("searchindex: new client: %w", err)
	}

	res, err := client.Ping()
	if err != nil {
		return nil, fmt.Errorf("searchindex: ping: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("searchindex: ping returned error: %s", res.String())
	}

	return &Index{client: client, logger: log}, nil
}

// document is the mirrored subset of page metadata indexed for search.
type document struct {
	URL           string `json:"url"`
	NormalizedURL string `json:"normalized_url"`
	Status        int    `json:"status"`
	ContentType   string `json:"content_type"`
	FetchedAt     string `json:"fetched_at"`
}

// UpsertPage mirrors a page's metadata into the search index, keyed by its
// content hash so re-crawls of an unchanged page overwrite the same
// document instead of accumulating duplicates. Failures here are
// deliberately non-fatal to the caller — the search index is a
// convenience, not the system of record.
func (idx *Index) UpsertPage(ctx context.Context, meta domain.PageMetadata) error {
	doc := document{
		URL:           meta.URL,
		NormalizedURL: meta.NormalizedURL,
		Status:        meta.Status,
		ContentType:   meta.ContentType,
		FetchedAt:     meta.FetchedAt.Format("2006-01-02T15:04:05Z07:00"),
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("searchindex: marshal: %w", err)
	}

	res, err := idx.client.Index(
		PagesIndex,
		bytes.NewReader(body),
		idx.client.Index.WithContext(ctx),
		idx.client.Index.WithDocumentID(meta.ContentHash),
	)
	if err != nil {
		return fmt.Errorf("searchindex: index document: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("searchindex: index returned error: %s", res.String())
	}

	idx.logger.Debug("searchindex: mirrored page", "url", meta.NormalizedURL)
	return nil
}
