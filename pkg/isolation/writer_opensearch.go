package isolation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/opensearch-project/opensearch-go/v2"
)

// DefaultIndex is the OpenSearch index violations are written to.
const DefaultIndex = "tenantgate-isolation-violations"

// IndexMapping is the index body for the violation index. Identifiers are
// keywords so they can be filtered and aggregated on.
const IndexMapping = `{
  "mappings": {
    "dynamic": "strict",
    "properties": {
      "id":                  {"type": "keyword"},
      "request_id":          {"type": "keyword"},
      "client_ip":           {"type": "ip"},
      "attempted_tenant_id": {"type": "keyword"},
      "actual_tenant_id":    {"type": "keyword"},
      "field":               {"type": "keyword"},
      "severity":            {"type": "keyword"},
      "reason":              {"type": "keyword"},
      "timestamp":           {"type": "date"}
    }
  }
}`

// OpenSearchWriter indexes violations with the bulk API so they can be
// searched and alerted on next to other audit data.
type OpenSearchWriter struct {
	client *opensearch.Client
	index  string
}

// NewOpenSearchWriter creates a writer for index. An empty index uses DefaultIndex.
func NewOpenSearchWriter(client *opensearch.Client, index string) *OpenSearchWriter {
	if index == "" {
		index = DefaultIndex
	}
	return &OpenSearchWriter{client: client, index: index}
}

type bulkAction struct {
	Create struct {
		ID string `json:"_id"`
	} `json:"create"`
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		Status int `json:"status"`
		Error  *struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error,omitempty"`
	} `json:"items"`
}

// WriteBatch implements BatchWriter. Violations are created under their own
// ID, so a retried batch does not produce duplicates.
func (w *OpenSearchWriter) WriteBatch(ctx context.Context, violations []Violation) error {
	if len(violations) == 0 {
		return nil
	}

	body, err := encodeBulk(violations)
	if err != nil {
		return err
	}

	res, err := w.client.Bulk(bytes.NewReader(body),
		w.client.Bulk.WithContext(ctx),
		w.client.Bulk.WithIndex(w.index),
	)
	if err != nil {
		return fmt.Errorf("bulk index %d violations: %w", len(violations), err)
	}
	defer res.Body.Close()

	if res.IsError() {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
		return fmt.Errorf("bulk index violations: %s: %s", res.Status(), msg)
	}

	var br bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&br); err != nil {
		return fmt.Errorf("decode bulk response: %w", err)
	}
	if !br.Errors {
		return nil
	}

	failed := 0
	var first string
	for _, item := range br.Items {
		for _, r := range item {
			// 409 means the violation was indexed by an earlier attempt.
			if r.Error == nil || r.Status == 409 {
				continue
			}
			if failed == 0 {
				first = r.Error.Type + ": " + r.Error.Reason
			}
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("bulk index violations: %d of %d failed, first error %s", failed, len(violations), first)
	}
	return nil
}

func encodeBulk(violations []Violation) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, v := range violations {
		var action bulkAction
		action.Create.ID = v.ID.String()
		if err := enc.Encode(action); err != nil {
			return nil, fmt.Errorf("encode bulk action: %w", err)
		}
		if err := enc.Encode(v); err != nil {
			return nil, fmt.Errorf("encode violation %s: %w", v.ID, err)
		}
	}
	return buf.Bytes(), nil
}
