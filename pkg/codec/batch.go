package codec

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// EncodeBatch encodes every message concurrently, at most Workers at a
// time. Results keep the order of items. The first failure cancels the
// remaining work.
func (c *Codec) EncodeBatch(ctx context.Context, items [][]byte) ([][]byte, error) {
	return c.batch(ctx, items, c.Encode)
}

// DecodeBatch is the packet counterpart of EncodeBatch.
func (c *Codec) DecodeBatch(ctx context.Context, packets [][]byte) ([][]byte, error) {
	return c.batch(ctx, packets, c.Decode)
}

func (c *Codec) batch(ctx context.Context, items [][]byte, fn func([]byte) ([]byte, error)) ([][]byte, error) {
	results := make([][]byte, len(items))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Workers)

	for i, item := range items {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out, err := fn(item)
			if err != nil {
				return fmt.Errorf("item %d: %w", i, err)
			}
			results[i] = out
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
