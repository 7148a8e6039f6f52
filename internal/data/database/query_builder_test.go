package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildListQuery(t *testing.T) {
	tests := []struct {
		name      string
		opts      *ListQueryOptions
		wantQuery string
		wantArgs  []any
	}{
		{
			name:      "basic select",
			opts:      NewListQueryOptions("jobs"),
			wantQuery: `SELECT * FROM "jobs"`,
			wantArgs:  []any{},
		},
		{
			name:      "columns are quoted",
			opts:      NewListQueryOptions("jobs", WithColumns("id", "jobs.status")),
			wantQuery: `SELECT "id", "jobs"."status" FROM "jobs"`,
			wantArgs:  []any{},
		},
		{
			name: "filters order and page",
			opts: NewListQueryOptions("jobs",
				WithColumns("id"),
				WithCondition(WhereCond("status", Equal, "dead")),
				WithCondition(WhereCond("type", Equal, "offer_sync")),
				WithOrderBy("created_at", "desc"),
				WithOrderBy("id", "DESC"),
				WithLimit(10),
				WithOffset(20),
			),
			wantQuery: `SELECT "id" FROM "jobs" WHERE "status" = $1 AND "type" = $2 ORDER BY "created_at" DESC, "id" DESC LIMIT $3 OFFSET $4`,
			wantArgs:  []any{"dead", "offer_sync", 10, 20},
		},
		{
			name: "in condition",
			opts: NewListQueryOptions("jobs",
				WithCondition(WhereCond("status", In, []string{"completed", "cancelled"})),
				WithLimit(0),
			),
			wantQuery: `SELECT * FROM "jobs" WHERE "status" IN ($1, $2) LIMIT $3`,
			wantArgs:  []any{"completed", "cancelled", 0},
		},
		{
			name: "empty in condition is dropped",
			opts: NewListQueryOptions("jobs",
				WithCondition(WhereCond("status", In, []string{})),
			),
			wantQuery: `SELECT * FROM "jobs"`,
			wantArgs:  []any{},
		},
		{
			name: "count only ignores paging",
			opts: NewListQueryOptions("job_events",
				WithCountOnly(),
				WithCondition(WhereCond("job_id", Equal, "abc")),
				WithOrderBy("id", "ASC"),
				WithLimit(5),
			),
			wantQuery: `SELECT COUNT(*) FROM "job_events" WHERE "job_id" = $1`,
			wantArgs:  []any{"abc"},
		},
		{
			name: "invalid direction is omitted",
			opts: NewListQueryOptions("jobs",
				WithOrderBy("created_at", "sideways; DROP TABLE jobs"),
			),
			wantQuery: `SELECT * FROM "jobs" ORDER BY "created_at"`,
			wantArgs:  []any{},
		},
		{
			name:      "identifier injection is quoted",
			opts:      NewListQueryOptions(`jobs"; DROP TABLE jobs; --`),
			wantQuery: `SELECT * FROM "jobs""; DROP TABLE jobs; --"`,
			wantArgs:  []any{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, args := BuildListQuery(tt.opts)
			assert.Equal(t, tt.wantQuery, query)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestBuildListQuery_Nil(t *testing.T) {
	query, args := BuildListQuery(nil)
	assert.Empty(t, query)
	assert.Nil(t, args)
}

func TestWithLimit_NegativeIgnored(t *testing.T) {
	opts := NewListQueryOptions("jobs", WithLimit(-5), WithOffset(-1))
	assert.Equal(t, unset, opts.Limit)
	assert.Equal(t, unset, opts.Offset)
}
