package fhir

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/emr/fhir2/internal/platform/db"
)

// RowScanner is satisfied by pgx.Row and pgx.Rows.
type RowScanner interface {
	Scan(dest ...interface{}) error
}

// ExecSearch runs the count query for q and, unless req only wants the
// total, the page query, scanning each row with scan.
func ExecSearch[T any](ctx context.Context, conn db.Querier, q *SearchQuery, req *SearchRequest, scan func(RowScanner) (T, error)) ([]T, int, error) {
	var total int
	if err := conn.QueryRow(ctx, q.CountSQL(), q.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count %s: %w", q.table, err)
	}
	if req.CountOnly() || req.Offset >= total {
		return nil, total, nil
	}

	rows, err := conn.Query(ctx, q.DataSQL(), q.DataArgs(req.Count, req.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("search %s: %w", q.table, err)
	}
	items, err := collect(rows, scan)
	if err != nil {
		return nil, 0, fmt.Errorf("search %s: %w", q.table, err)
	}
	return items, total, nil
}

// ExecAll runs q without paging.
func ExecAll[T any](ctx context.Context, conn db.Querier, q *SearchQuery, scan func(RowScanner) (T, error)) ([]T, error) {
	rows, err := conn.Query(ctx, q.AllSQL(), q.CountArgs()...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.table, err)
	}
	return collect(rows, scan)
}

func collect[T any](rows pgx.Rows, scan func(RowScanner) (T, error)) ([]T, error) {
	defer rows.Close()
	var items []T
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
