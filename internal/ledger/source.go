package ledger

import "context"

// Source fetches datasets. Implementations must tolerate empty results.
type Source interface {
	Fetch(ctx context.Context, q Query) (Dataset, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, q Query) (Dataset, error)

// Fetch implements Source.
func (f SourceFunc) Fetch(ctx context.Context, q Query) (Dataset, error) {
	return f(ctx, q)
}
