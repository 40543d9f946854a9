// Package pagination extracts page/limit parameters from request query
// strings for the message listing endpoints.
package pagination

import (
	"net/url"
	"strconv"
)

// Params holds the validated pagination values for one request. Requested
// reports whether the caller asked for pagination at all; without it the
// listing returns the whole mailbox.
type Params struct {
	Page      int
	Limit     int
	Offset    int
	Requested bool
}

const (
	MaxLimit     = 100
	DefaultPage  = 1
	DefaultLimit = 10
)

// FromQuery reads page and limit from the query values, clamping to sane
// bounds.
func FromQuery(q url.Values) Params {
	params := Params{
		Page:      DefaultPage,
		Limit:     DefaultLimit,
		Requested: q.Get("page") != "" || q.Get("limit") != "",
	}

	if pageStr := q.Get("page"); pageStr != "" {
		if val, err := strconv.Atoi(pageStr); err == nil && val > 0 {
			params.Page = val
		}
	}
	if limitStr := q.Get("limit"); limitStr != "" {
		if val, err := strconv.Atoi(limitStr); err == nil && val > 0 {
			params.Limit = val
		}
	}
	if params.Limit > MaxLimit {
		params.Limit = MaxLimit
	}
	params.Offset = (params.Page - 1) * params.Limit
	return params
}

// Slice applies the window to a total item count, returning start/end
// indexes suitable for slicing.
func (p Params) Slice(total int) (start, end int) {
	start = p.Offset
	if start > total {
		start = total
	}
	end = start + p.Limit
	if end > total {
		end = total
	}
	return start, end
}

// HasNext reports whether more items exist past the current window.
func (p Params) HasNext(total int) bool {
	return p.Offset+p.Limit < total
}
