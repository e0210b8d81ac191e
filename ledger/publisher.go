package ledger

import "context"

// Publisher receives entries after they are committed. Delivery is best
// effort: the Mutator logs publish errors and never fails a mutation on them.
type Publisher interface {
	PublishEntry(ctx context.Context, e Entry) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, e Entry) error

func (f PublisherFunc) PublishEntry(ctx context.Context, e Entry) error { return f(ctx, e) }

type nopPublisher struct{}

func (nopPublisher) PublishEntry(context.Context, Entry) error { return nil }
