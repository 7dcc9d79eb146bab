package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
)

const SearchResultSize = 10

type RefreshRate string

const (
	// Wait for the changes made by the request to be made visible by a refresh before replying.
	Wait RefreshRate = "wait_for"
	// Immediate refreshes the relevant primary and replica shards immediately after the operation occurs.
	Immediate RefreshRate = "true"
	// Async takes no refresh related actions; changes become visible some time after the request returns.
	Async RefreshRate = "false"
)

type Client interface {
	// BulkCreate inserts documents with create semantics: an already-present
	// _id comes back as a conflict outcome instead of being overwritten.
	// Outcomes are returned in request order, one per document.
	// https://www.elastic.co/guide/en/elasticsearch/reference/master/docs-bulk.html
	BulkCreate(ctx context.Context, ids []string, documents []map[string]interface{}, index string) ([]BulkOutcome, error)
	// Search runs the query against the indices and returns the raw document
	// sources. queryResultSize is the number of results to return, nil for
	// the default.
	// https://www.elastic.co/guide/en/elasticsearch/reference/master/search-search.html
	Search(ctx context.Context, query string, indices []string, queryResultSize *int) ([]map[string]interface{}, error)
}

// BulkOutcome is the per-document result of a bulk create.
type BulkOutcome struct {
	ID     string
	Status int
	Reason string
}

func (o BulkOutcome) Created() bool {
	return o.Status >= 200 && o.Status < 300
}

func (o BulkOutcome) Conflict() bool {
	return o.Status == http.StatusConflict
}

type ClientImpl struct {
	es          *elasticsearch.Client
	refreshRate string
}

func NewClientImpl(es *elasticsearch.Client, refreshRate RefreshRate) *ClientImpl {
	return &ClientImpl{es: es, refreshRate: string(refreshRate)}
}

func (c *ClientImpl) BulkCreate(
	ctx context.Context,
	ids []string,
	documents []map[string]interface{},
	index string,
) ([]BulkOutcome, error) {
	if len(ids) != len(documents) {
		return nil, fmt.Errorf("bulk create needs one id per document, got %d ids for %d documents", len(ids), len(documents))
	}
	var buf bytes.Buffer
	for i, document := range documents {
		meta := map[string]interface{}{
			"create": map[string]interface{}{
				"_id": ids[i],
			},
		}
		metaJSON, err := json.Marshal(meta)
		if err != nil {
			return nil, fmt.Errorf("error marshaling meta to bulk create: %w", err)
		}
		buf.Write(metaJSON)
		buf.WriteByte('\n')

		documentJSON, err := json.Marshal(document)
		if err != nil {
			return nil, fmt.Errorf("error marshaling document to bulk create: %w", err)
		}
		buf.Write(documentJSON)
		buf.WriteByte('\n')
	}

	res, err := c.es.Bulk(
		bytes.NewReader(buf.Bytes()),
		c.es.Bulk.WithIndex(index),
		c.es.Bulk.WithContext(ctx),
		c.es.Bulk.WithRefresh(c.refreshRate),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to bulk create in Elasticsearch: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("bulk create error: %s", res.String())
	}

	// Item level failures still come back as HTTP 200; each item carries its
	// own status.
	var bulkResponse BulkResponse
	if err := json.NewDecoder(res.Body).Decode(&bulkResponse); err != nil {
		return nil, fmt.Errorf("failed to decode bulk response body: %w", err)
	}
	return parseBulkOutcomes(bulkResponse), nil
}

func parseBulkOutcomes(response BulkResponse) []BulkOutcome {
	outcomes := make([]BulkOutcome, 0, len(response.Items))
	for _, item := range response.Items {
		action, ok := item["create"]
		if !ok {
			outcomes = append(outcomes, BulkOutcome{Status: http.StatusInternalServerError, Reason: "missing create action in bulk item"})
			continue
		}
		outcome := BulkOutcome{ID: action.ID, Status: action.Status}
		if action.Error != nil {
			outcome.Reason = fmt.Sprintf("%s: %s", action.Error.Type, action.Error.Reason)
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

func (c *ClientImpl) Search(
	ctx context.Context,
	query string,
	indices []string,
	queryResultSize *int,
) ([]map[string]interface{}, error) {
	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(indices...),
		c.es.Search.WithBody(strings.NewReader(query)),
		c.es.Search.WithSize(getQuerySize(queryResultSize)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("failed to execute query: %s", res.String())
	}

	var esResponse EsResponse
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		return nil, fmt.Errorf("failed to decode response body: %w", err)
	}

	var results []map[string]interface{}
	for _, hit := range esResponse.Hits.HitArray {
		results = append(results, hit.Source)
	}
	return results, nil
}

func getQuerySize(queryResultSize *int) int {
	if queryResultSize == nil {
		return SearchResultSize
	}
	return *queryResultSize
}
