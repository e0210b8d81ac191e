/*
mutator.go - The stock mutator: the single write path for inventory quantities

PURPOSE:
  Changes a variant's quantity and appends exactly one ledger entry per
  successful call. Admin adjustments, order deductions/restorations and bulk
  reconciliation all funnel through Mutate.

ALGORITHM (per call):
  Relative (Delta):
    1. One store call: a guarded UPDATE qty = qty + delta, the read-back of
       the new row and the history insert, in one storage transaction. The
       quantity is never read before the write, so no update can be lost.
       A delta that would overflow int64 is rejected as ErrInvalidQuantity.
  Absolute (SetTo):
    1. Read (qty, version).
    2. Check the stock policy against the target.
    3. UPDATE ... WHERE version = ? plus the history insert.
    4. A lost race returns ErrVersionConflict and the whole cycle is retried.

  Retries are bounded by MaxAttempts with linear backoff and jitter. When the
  budget is spent the caller gets ErrConflict.

DEADLINES:
  The caller's context deadline bounds the whole call, retries included. If
  the context has no deadline, Timeout is applied. An expired deadline
  surfaces as ErrUnavailable: the write may or may not have committed, and
  callers re-check history by order id before retrying.
*/
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultMaxAttempts = 4
	DefaultBackoff     = 10 * time.Millisecond
	DefaultTimeout     = 5 * time.Second
)

// MutatorConfig tunes the retry budget and collaborators. Zero values are
// replaced by defaults in NewMutator.
type MutatorConfig struct {
	Policy      StockPolicy
	MaxAttempts int
	Backoff     time.Duration
	Timeout     time.Duration
	Clock       func() time.Time
	NewID       func() EntryID
	Publisher   Publisher
	Logger      *zap.Logger
}

// Mutator owns every write of InventoryQty.
type Mutator struct {
	store  Store
	cfg    MutatorConfig
	logger *zap.Logger
}

func NewMutator(store Store, cfg MutatorConfig) *Mutator {
	if cfg.Policy.AllowNegative == nil {
		cfg.Policy = DefaultStockPolicy()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultBackoff
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = func() time.Time { return time.Now().UTC() }
	}
	if cfg.NewID == nil {
		cfg.NewID = func() EntryID { return EntryID(uuid.NewString()) }
	}
	if cfg.Publisher == nil {
		cfg.Publisher = nopPublisher{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Mutator{store: store, cfg: cfg, logger: cfg.Logger}
}

// Policy returns the negative stock policy in effect.
func (m *Mutator) Policy() StockPolicy { return m.cfg.Policy }

// Mutate applies one change and returns the quantities actually recorded.
// Every error is a *MutationError wrapping one of the ledger sentinels.
func (m *Mutator) Mutate(ctx context.Context, req MutationRequest) (MutationResult, error) {
	fail := func(err error, attempts int) (MutationResult, error) {
		return MutationResult{}, &MutationError{
			BusinessID: req.BusinessID,
			VariantID:  req.VariantID,
			Change:     req.Change,
			Reason:     req.Reason,
			Attempts:   attempts,
			Err:        err,
		}
	}

	if req.BusinessID == "" || req.VariantID == "" {
		return fail(fmt.Errorf("%w: business and variant are required", ErrInvalidLine), 0)
	}
	if err := ValidateChange(req.Reason, req.Change); err != nil {
		return fail(err, 0)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.Timeout)
		defer cancel()
	}

	draft := EntryDraft{
		ID:         m.cfg.NewID(),
		BusinessID: req.BusinessID,
		VariantID:  req.VariantID,
		Reason:     req.Reason,
		Note:       req.Note,
		OrderID:    req.OrderID,
		ActorID:    req.ActorID,
	}

	for attempt := 1; ; attempt++ {
		draft.CreatedAt = m.cfg.Clock()

		entry, err := m.apply(ctx, draft, req.Change)
		if err == nil {
			m.committed(ctx, entry, attempt)
			return MutationResult{
				EntryID:     entry.ID,
				PreviousQty: entry.PreviousQty,
				NewQty:      entry.NewQty,
				ChangeQty:   entry.ChangeQty,
			}, nil
		}

		if !errors.Is(err, ErrVersionConflict) {
			return fail(m.classify(err), attempt)
		}
		if attempt >= m.cfg.MaxAttempts {
			m.logger.Warn("mutation retry budget exhausted",
				zap.String("business_id", string(req.BusinessID)),
				zap.String("variant_id", string(req.VariantID)),
				zap.String("change", req.Change.String()),
				zap.String("reason", string(req.Reason)),
				zap.Int("attempts", attempt))
			return fail(fmt.Errorf("%w after %d attempts", ErrConflict, attempt), attempt)
		}
		if err := m.backoff(ctx, attempt); err != nil {
			return fail(fmt.Errorf("%w: %v", ErrUnavailable, err), attempt)
		}
	}
}

func (m *Mutator) apply(ctx context.Context, draft EntryDraft, change Change) (Entry, error) {
	allowNegative := m.cfg.Policy.Allows(draft.Reason)

	if change.Mode == ModeRelative {
		return m.store.ApplyDelta(ctx, draft, change.Value, allowNegative)
	}

	current, err := m.store.GetVariant(ctx, draft.BusinessID, draft.VariantID)
	if err != nil {
		return Entry{}, err
	}
	if _, ok := SubQty(change.Value, current.InventoryQty); !ok {
		return Entry{}, fmt.Errorf("%w: %s cannot move from %d to %d", ErrInvalidQuantity, draft.VariantID, current.InventoryQty, change.Value)
	}
	if change.Value < 0 && !allowNegative {
		return Entry{}, &InsufficientStockError{
			VariantID: draft.VariantID,
			Available: current.InventoryQty,
			Resulting: change.Value,
		}
	}
	return m.store.CompareAndSet(ctx, draft, current, change.Value)
}

// classify maps store errors onto the public taxonomy. Anything that is not
// a domain outcome (driver errors, deadlines, cancellation) is Unavailable.
func (m *Mutator) classify(err error) error {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrInsufficientStock),
		errors.Is(err, ErrDuplicateEntry),
		errors.Is(err, ErrInvalidReason),
		errors.Is(err, ErrInvalidQuantity):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
}

func (m *Mutator) backoff(ctx context.Context, attempt int) error {
	wait := m.cfg.Backoff*time.Duration(attempt) + time.Duration(rand.Int64N(int64(m.cfg.Backoff)))
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (m *Mutator) committed(ctx context.Context, e Entry, attempts int) {
	m.logger.Debug("stock mutated",
		zap.String("business_id", string(e.BusinessID)),
		zap.String("variant_id", string(e.VariantID)),
		zap.String("entry_id", string(e.ID)),
		zap.String("reason", string(e.Reason)),
		zap.Int64("previous_qty", e.PreviousQty),
		zap.Int64("new_qty", e.NewQty),
		zap.Int("attempts", attempts))

	if err := m.cfg.Publisher.PublishEntry(context.WithoutCancel(ctx), e); err != nil {
		m.logger.Warn("publish entry failed",
			zap.String("entry_id", string(e.ID)),
			zap.Error(err))
	}
}
