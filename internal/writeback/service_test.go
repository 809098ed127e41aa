// internal/writeback/service_test.go
package writeback

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nuance-pipeline/internal/common/config"
	"nuance-pipeline/internal/models"
)

// TestLogger implements Logger interface for testing
type TestLogger struct{}

func (l *TestLogger) Debug(msg string, fields map[string]interface{}) {}
func (l *TestLogger) Info(msg string, fields map[string]interface{})  {}
func (l *TestLogger) Warn(msg string, fields map[string]interface{})  {}
func (l *TestLogger) Error(msg string, fields map[string]interface{}) {}
func (l *TestLogger) With(fields map[string]interface{}) Logger       { return l }

type fakeIndexer struct {
	mu      sync.Mutex
	indexed map[string]models.KnowledgeObject
	err     error
}

func newFakeIndexer() *fakeIndexer {
	return &fakeIndexer{indexed: make(map[string]models.KnowledgeObject)}
}

func (f *fakeIndexer) Index(ctx context.Context, naturalKey string, doc interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.indexed[naturalKey] = doc.(models.KnowledgeObject)
	return nil
}

func (f *fakeIndexer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.indexed)
}

func testObject(key string) models.KnowledgeObject {
	return models.KnowledgeObject{
		Type:       models.KnowledgeTaxonomyLabel,
		NaturalKey: key,
		UserID:     "user-1",
		Payload:    json.RawMessage(`{}`),
	}
}

func TestServiceWritesQueuedObjects(t *testing.T) {
	indexer := newFakeIndexer()
	svc := NewService(indexer, config.WritebackConfig{QueueSize: 16, Workers: 2}, &TestLogger{})

	accepted := svc.Enqueue([]models.KnowledgeObject{
		testObject("taxonomy:a"),
		testObject("taxonomy:b"),
	})
	svc.Close()

	assert.Equal(t, 2, accepted)
	assert.Equal(t, 2, indexer.count())
}

func TestServiceSameKeyConvergesToOneObject(t *testing.T) {
	indexer := newFakeIndexer()
	svc := NewService(indexer, config.WritebackConfig{QueueSize: 16, Workers: 1}, &TestLogger{})

	svc.Enqueue([]models.KnowledgeObject{testObject("taxonomy:a")})
	svc.Enqueue([]models.KnowledgeObject{testObject("taxonomy:a")})
	svc.Close()

	assert.Equal(t, 1, indexer.count())
}

func TestServiceDropsOnFullQueue(t *testing.T) {
	indexer := newFakeIndexer()
	// Zero workers would never drain; use a queue of 1 with a blocked
	// worker instead: fill the queue before the worker can act by
	// enqueueing from a service whose store blocks until released.
	release := make(chan struct{})
	blocking := &blockingIndexer{inner: indexer, release: release, busy: make(chan struct{})}
	svc := NewService(blocking, config.WritebackConfig{QueueSize: 1, Workers: 1}, &TestLogger{})

	// First object occupies the worker, second fills the queue, third drops.
	first := svc.Enqueue([]models.KnowledgeObject{testObject("taxonomy:a")})
	blocking.waitBusy()
	second := svc.Enqueue([]models.KnowledgeObject{testObject("taxonomy:b")})
	third := svc.Enqueue([]models.KnowledgeObject{testObject("taxonomy:c")})

	close(release)
	svc.Close()

	assert.Equal(t, 1, first)
	assert.Equal(t, 1, second)
	assert.Equal(t, 0, third, "overflow must drop, not block")
	assert.Equal(t, 2, indexer.count())
}

type blockingIndexer struct {
	inner   *fakeIndexer
	release chan struct{}
	once    sync.Once
	busy    chan struct{}
}

func (b *blockingIndexer) waitBusy() {
	<-b.busy
}

func (b *blockingIndexer) Index(ctx context.Context, naturalKey string, doc interface{}) error {
	b.once.Do(func() {
		close(b.busy)
		<-b.release
	})
	return b.inner.Index(ctx, naturalKey, doc)
}

func TestServiceLogsAndContinuesOnStoreError(t *testing.T) {
	indexer := newFakeIndexer()
	indexer.err = errors.New("index unavailable")
	svc := NewService(indexer, config.WritebackConfig{QueueSize: 16, Workers: 1}, &TestLogger{})

	accepted := svc.Enqueue([]models.KnowledgeObject{testObject("taxonomy:a")})
	svc.Close()

	// Failures are absorbed; nothing panics and nothing is stored.
	assert.Equal(t, 1, accepted)
	assert.Equal(t, 0, indexer.count())
}

func TestElasticsearchStoreIndexesByNaturalKey(t *testing.T) {
	var (
		mu   sync.Mutex
		docs = map[string]int{}
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		require.Len(t, parts, 3)
		assert.Equal(t, "knowledge_objects", parts[0])
		assert.Equal(t, "_doc", parts[1])

		mu.Lock()
		docs[parts[2]]++
		mu.Unlock()

		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"result":"created"}`))
	}))
	defer server.Close()

	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{server.URL}})
	require.NoError(t, err)

	store := NewElasticsearchStore(client, "knowledge_objects", &TestLogger{})

	obj := testObject("taxonomy:req-1-0")
	require.NoError(t, store.Index(context.Background(), obj.NaturalKey, obj))
	require.NoError(t, store.Index(context.Background(), obj.NaturalKey, obj))

	// Same natural key maps to the same document ID both times.
	assert.Equal(t, map[string]int{"taxonomy:req-1-0": 2}, docs)
}

func TestElasticsearchStoreReturnsWritebackError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"boom"}`))
	}))
	defer server.Close()

	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{server.URL}})
	require.NoError(t, err)

	store := NewElasticsearchStore(client, "knowledge_objects", &TestLogger{})

	err = store.Index(context.Background(), "taxonomy:x", testObject("taxonomy:x"))
	assert.Error(t, err)
}

func TestProcessTurnQueuesDerivedObjects(t *testing.T) {
	indexer := newFakeIndexer()
	svc := NewService(indexer, config.WritebackConfig{QueueSize: 16, Workers: 1}, &TestLogger{})

	turn := models.Turn{RequestID: "req-9", UserID: "user-1"}
	resp := &models.UnifiedResponse{
		Capture: &models.OrchestrationResult{
			Actions: []models.EnrichedAction{enrichedAction("buy milk", 1, 0.9, false)},
		},
	}

	accepted := svc.ProcessTurn(turn, resp)
	svc.Close()

	assert.Equal(t, 2, accepted)
	assert.Equal(t, 2, indexer.count())
}
