package domain

import "time"

// FrontierItem is the JSON payload stored as the member of the coordination
// store's frontier sorted set. The score (priority) lives alongside it in
// the ZSET and is not duplicated here.
type FrontierItem struct {
	URL       string  `json:"url"`
	ParentURL string  `json:"parent_url,omitempty"`
	Depth     int     `json:"depth"`
	Host      string  `json:"host"`
}

// InflightClaim is the value stored at inflight:<url> while a worker owns it.
type InflightClaim struct {
	WorkerID   string    `json:"worker_id"`
	ClaimedAt  time.Time `json:"claimed_at"`
	RetryCount int       `json:"retry_count"`
	Priority   float64   `json:"priority"`
	Item       FrontierItem `json:"item"`
}

// DomainRecord is the value stored at domain:<host>.
type DomainRecord struct {
	Host            string    `json:"host"`
	LastFetchAt     time.Time `json:"last_fetch_at"`
	CrawlDelayMs    int64     `json:"crawl_delay_ms"`
	AdaptivePenalty int64     `json:"adaptive_penalty_ms"`
}

// RobotsCacheEntry is the value stored at robots:<host>.
type RobotsCacheEntry struct {
	Host        string    `json:"host"`
	FetchedAt   time.Time `json:"fetched_at"`
	AllowAll    bool      `json:"allow_all"`
	CrawlDelay  int64     `json:"crawl_delay_ms"`
	RulesText   string    `json:"rules_text,omitempty"`
}
