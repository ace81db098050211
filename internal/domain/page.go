// Package domain provides the shared record types that flow between the
// frontier, politeness, storage, and worker packages.
package domain

import "time"

// PageMetadata is the small, fast-query document stored per completed page.
// Key = NormalizedURL.
type PageMetadata struct {
	URL              string            `db:"url"                json:"url"`
	NormalizedURL    string            `db:"normalized_url"      json:"normalized_url"`
	Status           int               `db:"status"              json:"status"`
	ContentType      string            `db:"content_type"        json:"content_type"`
	ContentLength    int64             `db:"content_length"      json:"content_length"`
	ContentHash      string            `db:"content_hash"        json:"content_hash"`
	FetchedAt        time.Time         `db:"fetched_at"          json:"fetched_at"`
	WorkerID         string            `db:"worker_id"           json:"worker_id"`
	OutboundLinks    int               `db:"outbound_link_count" json:"outbound_link_count"`
	Headers          JSONBMap          `db:"headers"             json:"headers"`
	CreatedAt        time.Time         `db:"created_at"          json:"created_at"`
	UpdatedAt        time.Time         `db:"updated_at"          json:"updated_at"`
}

// PageContent is the large, compressed document stored once per unique body.
// Key = ContentHash. Many PageMetadata rows may reference one PageContent row.
type PageContent struct {
	ContentHash       string `db:"content_hash"       json:"content_hash"`
	CompressedBody    []byte `db:"compressed_body"    json:"compressed_body"`
	OriginalLength    int    `db:"original_length"    json:"original_length"`
	CompressionAlgo   string `db:"compression"        json:"compression"`
	CreatedAt         time.Time `db:"created_at"      json:"created_at"`
}

// Compression algorithm identifiers stored in PageContent.CompressionAlgo.
const (
	CompressionDeflate = "deflate"
	CompressionNone    = "none"
)
