package resource

import (
	"fmt"
	"net/url"
	"strconv"
)

const (
	defaultPageSize = 100
	maxPageSize     = 1000
)

// Query is the storage-level filter handed to an entity store's Search. The
// calling layer owns transaction boundaries; the query only describes rows.
type Query struct {
	// ActiveOnly restricts results to non-soft-deleted rows.
	ActiveOnly bool
	// Filters are exact-match conditions on wire field names the store
	// understands.
	Filters map[string]any
	Limit   int
	Offset  int
}

// DefaultArgsToQuery parses the shared pagination arguments and restricts
// non-administrators to active rows. Entity types layer their own filters on
// top of it or replace it entirely.
func DefaultArgsToQuery(args url.Values, r Requester) (*Query, error) {
	q := &Query{
		ActiveOnly: r == nil || !r.IsAdministrator(),
		Limit:      defaultPageSize,
	}
	if raw := args.Get("number"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("number must be an integer, got %q", raw)
		}
		q.Limit = clamp(1, maxPageSize, n)
	}
	if raw := args.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("offset must be an integer, got %q", raw)
		}
		if n > 0 {
			q.Offset = n
		}
	}
	return q, nil
}

func clamp(low, high, value int) int {
	if value < low {
		return low
	}
	if value > high {
		return high
	}
	return value
}
