package torm

import "context"

// QuerySet is the typed form of Table for a model type T.
type QuerySet[T any] struct {
	t *Table
}

// Query returns a typed query over the persisted rows of T.
func Query[T any](s *Session) *QuerySet[T] {
	return &QuerySet[T]{t: s.Table(new(T))}
}

func (q *QuerySet[T]) FilterBy(eq Eq) *QuerySet[T] {
	return &QuerySet[T]{t: q.t.FilterBy(eq)}
}

func (q *QuerySet[T]) OrderBy(col string, desc bool) *QuerySet[T] {
	return &QuerySet[T]{t: q.t.OrderBy(col, desc)}
}

func (q *QuerySet[T]) Limit(n int) *QuerySet[T] {
	return &QuerySet[T]{t: q.t.Limit(n)}
}

func (q *QuerySet[T]) Offset(n int) *QuerySet[T] {
	return &QuerySet[T]{t: q.t.Offset(n)}
}

func (q *QuerySet[T]) All(ctx context.Context) ([]*T, error) {
	rows, err := q.t.All(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*T, len(rows))
	for i, r := range rows {
		out[i] = r.(*T)
	}
	return out, nil
}

// First returns nil when no row matches.
func (q *QuerySet[T]) First(ctx context.Context) (*T, error) {
	row, err := q.t.First(ctx)
	return one[T](row, err)
}

// Get returns nil when no row has the given id.
func (q *QuerySet[T]) Get(ctx context.Context, id int64) (*T, error) {
	row, err := q.t.Get(ctx, id)
	return one[T](row, err)
}

func (q *QuerySet[T]) Count(ctx context.Context) (int64, error) {
	return q.t.Count(ctx)
}

// DeleteAll stages removal of every matching row; see Table.DeleteAll.
func (q *QuerySet[T]) DeleteAll(ctx context.Context) (int64, error) {
	return q.t.DeleteAll(ctx)
}

func one[T any](row interface{}, err error) (*T, error) {
	if err != nil || row == nil {
		return nil, err
	}
	return row.(*T), nil
}
