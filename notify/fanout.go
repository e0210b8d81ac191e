/*
Package notify delivers committed ledger entries and low-stock alerts to
the outside world.

PUBLISHERS (ledger.Publisher):
  RedisPublisher   appends each entry to a Redis stream (XADD)
  MongoArchiver    archives each entry as a MongoDB document
  Fanout           sends one entry to several publishers

ALERTERS:
  WebhookAlerter   POSTs a low-stock report as JSON
  LogAlerter       writes the report to the log

Publishing happens after the storage commit. A failed publish never undoes
a mutation; the mutator logs it and moves on.
*/
package notify

import (
	"context"
	"errors"

	"github.com/warp/inventory-ledger/ledger"
)

// Fanout publishes to every configured publisher and joins their errors.
type Fanout []ledger.Publisher

var _ ledger.Publisher = Fanout(nil)

func (f Fanout) PublishEntry(ctx context.Context, e ledger.Entry) error {
	var errs []error
	for _, p := range f {
		if err := p.PublishEntry(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
