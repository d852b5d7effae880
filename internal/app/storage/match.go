package storage

import (
	"strconv"

	"github.com/tidwall/gjson"

	"github.com/ProvChain-Network/provenance_layer/internal/app/domain/entity"
)

// MatchEvent reports whether an event satisfies every filter of q except
// paging. Data filters resolve gjson paths inside the event payload and
// compare against the expected value; an event without a payload never
// matches a data filter.
func MatchEvent(e entity.Event, q entity.FindEventsQuery) bool {
	idData := e.Content.IDData

	if q.AssetID != "" && idData.AssetID != q.AssetID {
		return false
	}
	if q.CreatedBy != "" && idData.CreatedBy != q.CreatedBy {
		return false
	}
	if q.FromTimestamp != nil && idData.Timestamp < *q.FromTimestamp {
		return false
	}
	if q.ToTimestamp != nil && idData.Timestamp > *q.ToTimestamp {
		return false
	}

	for path, want := range q.Data {
		if len(e.Data) == 0 {
			return false
		}
		got := gjson.GetBytes(e.Data, path)
		if !got.Exists() || !valueMatches(got, want) {
			return false
		}
	}
	return true
}

func valueMatches(got gjson.Result, want string) bool {
	if got.String() == want {
		return true
	}
	// Numeric filters arrive as query strings; compare numerically so
	// "5" matches 5.0.
	if n, err := strconv.ParseFloat(want, 64); err == nil && got.Type == gjson.Number {
		return got.Num == n
	}
	return false
}
