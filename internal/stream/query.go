package stream

import (
	jsoniter "github.com/json-iterator/go"
	"github.com/vpspilot/pilot/internal/errors"
	"github.com/vpspilot/pilot/internal/metrics"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Query is the client->server subscription message: {"id":3,"time_range":"5M"}.
type Query struct {
	ID        int    `json:"id"`
	TimeRange string `json:"time_range"`
}

// EncodeQuery serializes the query for a node and range.
func EncodeQuery(nodeID int, r metrics.TimeRange) ([]byte, error) {
	if !r.Valid() {
		return nil, errors.NewInvalidRange(string(r), metrics.RangeLabels())
	}
	return json.Marshal(Query{ID: nodeID, TimeRange: r.Code()})
}

// DecodeQuery parses a query message and validates both fields.
func DecodeQuery(data []byte) (Query, error) {
	var q Query
	if err := json.Unmarshal(data, &q); err != nil {
		return Query{}, errors.WrapWithCode(err, errors.ErrFrame, "Malformed stream query", "")
	}
	if q.ID <= 0 {
		return Query{}, errors.New(errors.ErrFrame, "Stream query has no node id", "")
	}
	if _, err := metrics.ParseTimeRange(q.TimeRange); err != nil {
		return Query{}, err
	}
	return q, nil
}

// Range returns the query's range. Only valid after DecodeQuery.
func (q Query) Range() metrics.TimeRange {
	return metrics.TimeRange(q.TimeRange)
}
