package searchindex

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	es "github.com/elastic/go-elasticsearch/v8"

	"github.com/saurabh6354/distributed-web-crawler/internal/domain"
	"github.com/saurabh6354/distributed-web-crawler/internal/logger"
)

// mockTransport implements http.RoundTripper, letting tests stub
// Elasticsearch responses without a live cluster.
type mockTransport struct {
	RoundTripFn func(req *http.Request) (*http.Response, error)
}

func (t *mockTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.RoundTripFn(req)
}

func newTestIndex(t *testing.T, fn func(req *http.Request) (*http.Response, error)) *Index {
	t.Helper()

	client, err := es.NewClient(es.Config{Transport: &mockTransport{RoundTripFn: fn}})
	if err != nil {
		t.Fatalf("new elasticsearch client: %v", err)
	}
	return &Index{client: client, logger: logger.NewNoOp()}
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
		Header:     http.Header{"X-Elastic-Product": []string{"Elasticsearch"}},
	}
}

func TestNew_RequiresAddresses(t *testing.T) {
	if _, err := New(Config{}, logger.NewNoOp()); err == nil {
		t.Fatal("expected error when no addresses are configured")
	}
}

func TestUpsertPage_Success(t *testing.T) {
	var indexedBody []byte
	idx := newTestIndex(t, func(req *http.Request) (*http.Response, error) {
		if req.Body != nil {
			indexedBody, _ = io.ReadAll(req.Body)
		}
		return jsonResponse(http.StatusCreated, `{"result":"created"}`), nil
	})

	meta := domain.PageMetadata{
		URL:           "https://example.com/a",
		NormalizedURL: "https://example.com/a",
		Status:        200,
		ContentType:   "text/html",
		ContentHash:   "abc123",
		FetchedAt:     time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	if err := idx.UpsertPage(context.Background(), meta); err != nil {
		t.Fatalf("UpsertPage: %v", err)
	}
	if !bytes.Contains(indexedBody, []byte(`"url":"https://example.com/a"`)) {
		t.Errorf("indexed body missing expected url field: %s", indexedBody)
	}
}

func TestUpsertPage_ErrorResponse(t *testing.T) {
	idx := newTestIndex(t, func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusInternalServerError, `{"error":"boom"}`), nil
	})

	meta := domain.PageMetadata{URL: "https://example.com/a", ContentHash: "abc123"}
	if err := idx.UpsertPage(context.Background(), meta); err == nil {
		t.Fatal("expected error for a failing index response")
	}
}
