// internal/writeback/store.go
package writeback

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	stderrors "nuance-pipeline/internal/common/errors"
)

var (
	ErrIndexFailed = errors.New("WRITEBACK_FAILED")
)

// Indexer persists one knowledge object under its natural key.
type Indexer interface {
	Index(ctx context.Context, naturalKey string, doc interface{}) error
}

// ElasticsearchStore indexes knowledge objects keyed by natural key.
// Indexing the same key twice overwrites the document, which makes
// retries and duplicate turns safe.
type ElasticsearchStore struct {
	client *elasticsearch.Client
	index  string
	logger Logger
}

func NewElasticsearchStore(client *elasticsearch.Client, index string, log Logger) *ElasticsearchStore {
	return &ElasticsearchStore{
		client: client,
		index:  index,
		logger: log.With(map[string]interface{}{
			"component": "writeback_store",
			"index":     index,
		}),
	}
}

// Index writes one knowledge object with _id set to its natural key.
func (s *ElasticsearchStore) Index(ctx context.Context, naturalKey string, doc interface{}) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: marshal document: %v", ErrIndexFailed, err)
	}

	req := esapi.IndexRequest{
		Index:      s.index,
		DocumentID: naturalKey,
		Body:       bytes.NewReader(body),
	}

	res, err := req.Do(ctx, s.client)
	if err != nil {
		return stderrors.NewWritebackFailedError(naturalKey, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		detail, _ := io.ReadAll(res.Body)
		return stderrors.NewWritebackFailedError(naturalKey,
			fmt.Errorf("index returned %s: %s", res.Status(), string(detail)))
	}

	return nil
}
