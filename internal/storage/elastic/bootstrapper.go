package elastic

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"go.uber.org/zap"
)

const SpanIndexName = "span_index"

const bootstrapRetries = 30
const bootstrapWaitTime = 5 * time.Second

// spanIndex is the mapping for the span documents. Ids and the service name
// are keywords so trace lookups and service filters are exact term matches;
// the operation name is analyzed text so search can match on fragments.
var spanIndex = map[string]interface{}{
	"settings": map[string]interface{}{
		"number_of_shards":   1,
		"number_of_replicas": 1,
	},
	"mappings": map[string]interface{}{
		"properties": map[string]interface{}{
			"trace_id": map[string]string{
				"type": "keyword",
			},
			"span_id": map[string]string{
				"type": "keyword",
			},
			"parent_span_id": map[string]string{
				"type": "keyword",
			},
			"service_name": map[string]string{
				"type": "keyword",
			},
			"operation_name": map[string]string{
				"type": "text",
			},
			"start_time": map[string]string{
				"type": "date_nanos",
			},
			"end_time": map[string]string{
				"type": "date_nanos",
			},
			"status": map[string]string{
				"type": "keyword",
			},
			"attributes": map[string]string{
				"type":    "object",
				"enabled": "true",
			},
			"events": map[string]interface{}{
				"type": "nested",
				"properties": map[string]interface{}{
					"name": map[string]string{
						"type": "text",
					},
					"attributes": map[string]string{
						"type":    "object",
						"enabled": "true",
					},
					"timestamp": map[string]string{
						"type": "date_nanos",
					},
				},
			},
		},
	},
}

type Bootstrapper struct {
	esClient *elasticsearch.Client
	logger   *zap.Logger
}

func NewBootstrapper(esClient *elasticsearch.Client, logger *zap.Logger) *Bootstrapper {
	return &Bootstrapper{
		esClient: esClient,
		logger:   logger,
	}
}

// Bootstrap waits for Elasticsearch to come up and creates the span index.
// An index that already exists is fine; collector replicas race to create it.
func (bs *Bootstrapper) Bootstrap() error {
	if err := bs.waitForElasticsearch(bootstrapRetries, bootstrapWaitTime); err != nil {
		return fmt.Errorf("failed to connect to Elasticsearch: %w", err)
	}

	if err := bs.createIndex(SpanIndexName, spanIndex); err != nil {
		return fmt.Errorf("error creating span index: %w", err)
	}

	return nil
}

func (bs *Bootstrapper) waitForElasticsearch(maxRetries int, delay time.Duration) error {
	for i := 0; i < maxRetries; i++ {
		res, err := bs.esClient.Info()
		if err == nil && res.StatusCode == 200 {
			bs.logger.Info("Elasticsearch is available")
			return nil
		}
		bs.logger.Warn(fmt.Sprintf("Elasticsearch not available (attempt %d/%d), retrying...", i+1, maxRetries))

		time.Sleep(delay)
	}

	return fmt.Errorf("Elasticsearch is not available after %d attempts", maxRetries)
}

func (bs *Bootstrapper) createIndex(indexName string, index map[string]interface{}) error {
	body, err := json.Marshal(index)
	if err != nil {
		return fmt.Errorf("error marshaling index input during bootstrap: %w", err)
	}

	res, err := bs.esClient.Indices.Create(
		indexName,
		bs.esClient.Indices.Create.WithBody(strings.NewReader(string(body))),
	)
	if err != nil {
		return fmt.Errorf("error creating index during bootstrap %s: %w", indexName, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		if strings.Contains(res.String(), "resource_already_exists_exception") {
			bs.logger.Info("Index already exists, skipping creation", zap.String("index_name", indexName))
			return nil
		}
		return fmt.Errorf("error response for index %s: %s", indexName, res.String())
	}

	bs.logger.Info("Successfully created index", zap.String("index_name", indexName))
	return nil
}
