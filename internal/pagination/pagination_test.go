package pagination

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFromQuery(t *testing.T) {
	tests := []struct {
		name          string
		query         string
		wantPage      int
		wantLimit     int
		wantOffset    int
		wantRequested bool
	}{
		{"defaults", "", 1, 10, 0, false},
		{"explicit page and limit", "page=3&limit=20", 3, 20, 40, true},
		{"limit only", "limit=5", 1, 5, 0, true},
		{"limit clamped", "limit=500", 1, 100, 0, true},
		{"invalid values ignored", "page=abc&limit=-1", 1, 10, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := url.ParseQuery(tt.query)
			require.NoError(t, err)
			params := FromQuery(q)
			require.Equal(t, tt.wantPage, params.Page)
			require.Equal(t, tt.wantLimit, params.Limit)
			require.Equal(t, tt.wantOffset, params.Offset)
			require.Equal(t, tt.wantRequested, params.Requested)
		})
	}
}

func TestSlice(t *testing.T) {
	p := Params{Page: 2, Limit: 10, Offset: 10}

	start, end := p.Slice(25)
	require.Equal(t, 10, start)
	require.Equal(t, 20, end)
	require.True(t, p.HasNext(25))

	start, end = p.Slice(15)
	require.Equal(t, 10, start)
	require.Equal(t, 15, end)
	require.False(t, p.HasNext(15))

	start, end = p.Slice(5)
	require.Equal(t, 5, start)
	require.Equal(t, 5, end)
}
