package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestProductQuery_ToSQL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		query         ProductQuery
		wantCountSQL  string
		wantArgs      []any
		wantDataHas   []string // substrings that must appear in dataSQL
		wantDataNotIn []string // substrings that must NOT appear
	}{
		{
			name:  "empty query uses defaults",
			query: ProductQuery{},
			wantDataHas: []string{
				"FROM products",
				"ORDER BY updated_at DESC",
				"LIMIT 50",
				"OFFSET 0",
			},
			wantDataNotIn: []string{"WHERE"},
			wantCountSQL:  "SELECT COUNT(*) FROM products",
			wantArgs:      nil,
		},
		{
			name: "retailer filter",
			query: ProductQuery{
				RetailerID: ptr("3f0c8aa2-0c1a-4a6e-9c3d-7c1f29f0a111"),
			},
			wantDataHas:  []string{"WHERE retailer_id = $1"},
			wantCountSQL: "SELECT COUNT(*) FROM products WHERE retailer_id = $1",
			wantArgs:     []any{"3f0c8aa2-0c1a-4a6e-9c3d-7c1f29f0a111"},
		},
		{
			name: "enabled filter",
			query: ProductQuery{
				Enabled: ptr(true),
			},
			wantDataHas:  []string{"WHERE enabled = $1"},
			wantCountSQL: "SELECT COUNT(*) FROM products WHERE enabled = $1",
			wantArgs:     []any{true},
		},
		{
			name: "stale filter",
			query: ProductQuery{
				Stale: ptr(true),
			},
			wantDataHas:  []string{"WHERE stale = $1"},
			wantCountSQL: "SELECT COUNT(*) FROM products WHERE stale = $1",
			wantArgs:     []any{true},
		},
		{
			name: "availability filter",
			query: ProductQuery{
				Available: ptr(false),
			},
			wantDataHas:  []string{"WHERE available = $1"},
			wantCountSQL: "SELECT COUNT(*) FROM products WHERE available = $1",
			wantArgs:     []any{false},
		},
		{
			name: "title search wraps the term in wildcards",
			query: ProductQuery{
				Search: ptr("mechanical keyboard"),
			},
			wantDataHas:  []string{"WHERE title ILIKE $1"},
			wantCountSQL: "SELECT COUNT(*) FROM products WHERE title ILIKE $1",
			wantArgs:     []any{"%mechanical keyboard%"},
		},
		{
			name: "multiple filters with correct parameter numbering",
			query: ProductQuery{
				RetailerID: ptr("3f0c8aa2-0c1a-4a6e-9c3d-7c1f29f0a111"),
				Enabled:    ptr(true),
				Search:     ptr("deck"),
			},
			wantDataHas: []string{
				"retailer_id = $1",
				"enabled = $2",
				"title ILIKE $3",
				" AND ",
			},
			wantCountSQL: "SELECT COUNT(*) FROM products WHERE retailer_id = $1 AND enabled = $2 AND title ILIKE $3",
			wantArgs:     []any{"3f0c8aa2-0c1a-4a6e-9c3d-7c1f29f0a111", true, "%deck%"},
		},
		{
			name: "order by price",
			query: ProductQuery{
				OrderBy: "price",
			},
			wantDataHas: []string{"ORDER BY current_price ASC NULLS LAST"},
		},
		{
			name: "order by priority",
			query: ProductQuery{
				OrderBy: "priority",
			},
			wantDataHas: []string{"ORDER BY priority_score ASC"},
		},
		{
			name: "order by title",
			query: ProductQuery{
				OrderBy: "title",
			},
			wantDataHas: []string{"ORDER BY title ASC"},
		},
		{
			name: "invalid order by falls back to default",
			query: ProductQuery{
				OrderBy: "DROP TABLE products; --",
			},
			wantDataHas:   []string{"ORDER BY updated_at DESC"},
			wantDataNotIn: []string{"DROP TABLE"},
		},
		{
			name: "custom limit and offset",
			query: ProductQuery{
				Limit:  25,
				Offset: 100,
			},
			wantDataHas: []string{
				"LIMIT 25",
				"OFFSET 100",
			},
		},
		{
			name: "zero limit defaults to 50",
			query: ProductQuery{
				Limit: 0,
			},
			wantDataHas: []string{"LIMIT 50"},
		},
		{
			name: "limit exceeding max is capped",
			query: ProductQuery{
				Limit: 5000,
			},
			wantDataHas: []string{"LIMIT 500"},
		},
		{
			name: "negative offset defaults to 0",
			query: ProductQuery{
				Offset: -5,
			},
			wantDataHas: []string{"OFFSET 0"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			q := tt.query
			dataSQL, countSQL, args := q.ToSQL()

			for _, s := range tt.wantDataHas {
				assert.Contains(t, dataSQL, s, "dataSQL should contain %q", s)
			}

			for _, s := range tt.wantDataNotIn {
				assert.NotContains(t, dataSQL, s, "dataSQL should not contain %q", s)
			}

			if tt.wantCountSQL != "" {
				assert.Equal(t, tt.wantCountSQL, countSQL)
			}

			if tt.wantArgs != nil {
				require.Len(t, args, len(tt.wantArgs))
				assert.Equal(t, tt.wantArgs, args)
			} else if len(tt.wantArgs) == 0 {
				assert.Empty(t, args)
			}
		})
	}
}

func TestEventQuery_ToSQL(t *testing.T) {
	t.Parallel()

	since := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name          string
		query         EventQuery
		wantCountSQL  string
		wantArgs      []any
		wantDataHas   []string
		wantDataNotIn []string
	}{
		{
			name:  "empty query uses defaults",
			query: EventQuery{},
			wantDataHas: []string{
				"FROM alert_events",
				"ORDER BY created_at DESC",
				"LIMIT 50",
				"OFFSET 0",
			},
			wantDataNotIn: []string{"WHERE"},
			wantCountSQL:  "SELECT COUNT(*) FROM alert_events",
			wantArgs:      nil,
		},
		{
			name: "product filter",
			query: EventQuery{
				ProductID: ptr("9adf0c6e-7b55-4f3e-8e54-2f7f64a3b222"),
			},
			wantDataHas:  []string{"WHERE product_id = $1"},
			wantCountSQL: "SELECT COUNT(*) FROM alert_events WHERE product_id = $1",
			wantArgs:     []any{"9adf0c6e-7b55-4f3e-8e54-2f7f64a3b222"},
		},
		{
			name: "user filter",
			query: EventQuery{
				UserID: ptr("user-7"),
			},
			wantDataHas:  []string{"WHERE user_id = $1"},
			wantCountSQL: "SELECT COUNT(*) FROM alert_events WHERE user_id = $1",
			wantArgs:     []any{"user-7"},
		},
		{
			name: "rule filter",
			query: EventQuery{
				RuleID: ptr("5b1f8c2d-93aa-4a0b-b0cb-55e9d8f0c333"),
			},
			wantDataHas: []string{"WHERE rule_id = $1"},
			wantArgs:    []any{"5b1f8c2d-93aa-4a0b-b0cb-55e9d8f0c333"},
		},
		{
			name: "kind filter",
			query: EventQuery{
				Kind: ptr("price_drop"),
			},
			wantDataHas: []string{"WHERE kind = $1"},
			wantArgs:    []any{"price_drop"},
		},
		{
			name: "unread filter takes no parameter",
			query: EventQuery{
				Unread: ptr(true),
			},
			wantDataHas:  []string{"WHERE read = false"},
			wantCountSQL: "SELECT COUNT(*) FROM alert_events WHERE read = false",
			wantArgs:     nil,
		},
		{
			name: "unread false is not a filter",
			query: EventQuery{
				Unread: ptr(false),
			},
			wantDataNotIn: []string{"WHERE"},
			wantArgs:      nil,
		},
		{
			name: "delivered filter",
			query: EventQuery{
				Delivered: ptr(false),
			},
			wantDataHas: []string{"WHERE delivered = $1"},
			wantArgs:    []any{false},
		},
		{
			name: "since filter",
			query: EventQuery{
				Since: ptr(since),
			},
			wantDataHas: []string{"WHERE created_at >= $1"},
			wantArgs:    []any{since},
		},
		{
			name: "unread between parameterized filters keeps numbering dense",
			query: EventQuery{
				ProductID: ptr("9adf0c6e-7b55-4f3e-8e54-2f7f64a3b222"),
				Kind:      ptr("lowest_ever"),
				Unread:    ptr(true),
				Since:     ptr(since),
			},
			wantDataHas: []string{
				"product_id = $1",
				"kind = $2",
				"read = false",
				"created_at >= $3",
			},
			wantArgs: []any{"9adf0c6e-7b55-4f3e-8e54-2f7f64a3b222", "lowest_ever", since},
		},
		{
			name: "limit exceeding max is capped",
			query: EventQuery{
				Limit: 10000,
			},
			wantDataHas: []string{"LIMIT 500"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			q := tt.query
			dataSQL, countSQL, args := q.ToSQL()

			for _, s := range tt.wantDataHas {
				assert.Contains(t, dataSQL, s, "dataSQL should contain %q", s)
			}

			for _, s := range tt.wantDataNotIn {
				assert.NotContains(t, dataSQL, s, "dataSQL should not contain %q", s)
			}

			if tt.wantCountSQL != "" {
				assert.Equal(t, tt.wantCountSQL, countSQL)
			}

			if tt.wantArgs != nil {
				require.Len(t, args, len(tt.wantArgs))
				assert.Equal(t, tt.wantArgs, args)
			} else if len(tt.wantArgs) == 0 {
				assert.Empty(t, args)
			}
		})
	}
}
