package elastic

import (
	"time"

	"github.com/ariadne-io/ariadne/internal/storage"
)

func BuildTraceQuery(traceID string) map[string]interface{} {
	return map[string]interface{}{
		"query": map[string]interface{}{
			"term": map[string]interface{}{
				"trace_id": traceID,
			},
		},
		"sort": []map[string]interface{}{
			{
				"start_time": map[string]interface{}{
					"order": "asc",
				},
			},
		},
	}
}

func BuildSpanSearchQuery(criteria storage.SearchCriteria) map[string]interface{} {
	filters := make([]map[string]interface{}, 0)
	if criteria.ServiceName != nil {
		filters = append(filters, map[string]interface{}{
			"term": map[string]interface{}{
				"service_name": *criteria.ServiceName,
			},
		})
	}
	if criteria.OperationName != nil {
		filters = append(filters, map[string]interface{}{
			"match": map[string]interface{}{
				"operation_name": *criteria.OperationName,
			},
		})
	}
	if criteria.StartTime != nil || criteria.EndTime != nil {
		timeRange := map[string]interface{}{}
		if criteria.StartTime != nil {
			timeRange["gte"] = criteria.StartTime.UTC().Format(time.RFC3339Nano)
		}
		if criteria.EndTime != nil {
			timeRange["lte"] = criteria.EndTime.UTC().Format(time.RFC3339Nano)
		}
		filters = append(filters, map[string]interface{}{
			"range": map[string]interface{}{
				"start_time": timeRange,
			},
		})
	}
	for key, value := range criteria.Tags {
		filters = append(filters, map[string]interface{}{
			"match": map[string]interface{}{
				"attributes." + key: value,
			},
		})
	}
	return map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"filter": filters,
			},
		},
		"sort": []map[string]interface{}{
			{
				"start_time": map[string]interface{}{
					"order": "desc",
				},
			},
		},
	}
}
