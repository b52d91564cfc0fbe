package cli

import (
	"context"
	"fmt"
	"io"
	"os"
)

// CacheInvalidator drops cached ledger datasets.
type CacheInvalidator interface {
	Invalidate(ctx context.Context) error
}

// CacheOptions carries the output streams of the cache invalidate command.
type CacheOptions struct {
	Stdout io.Writer
	Stderr io.Writer
}

// InvalidateCommand clears the ledger cache so the next run reads the database.
func InvalidateCommand(ctx context.Context, cache CacheInvalidator, opts CacheOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if cache == nil {
		_, _ = fmt.Fprintln(opts.Stderr, "cache invalidate: redis not configured")
		return 1
	}
	if err := cache.Invalidate(ctx); err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "cache invalidate: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(opts.Stdout, "ledger cache cleared")
	return 0
}
