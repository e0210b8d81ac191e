package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/warp/inventory-ledger/importer"
	"github.com/warp/inventory-ledger/ledger"
)

// MutateOptions holds flags for the mutate command.
type MutateOptions struct {
	*RootOptions
	Delta   int64
	Set     int64
	Reason  string
	OrderID string
	Note    string
}

// MutationView is the JSON shape of a committed mutation.
type MutationView struct {
	VariantID   string `json:"variant_id"`
	EntryID     string `json:"entry_id"`
	Reason      string `json:"reason"`
	PreviousQty int64  `json:"previous_qty"`
	NewQty      int64  `json:"new_qty"`
	ChangeQty   int64  `json:"change_qty"`
}

// NewMutateCommand creates the mutate command.
func NewMutateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MutateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "mutate <variant-id>",
		Short: "Apply one relative or absolute stock change",
		Long: `Apply one stock change to a variant.

Exactly one of --delta and --set is required. Absolute changes (--set) are
only accepted for the adjustment and correction reasons.`,
		Example: `  ledgerctl mutate tee-red-m --delta 24 --reason restock
  ledgerctl mutate tee-red-m --set 10 --reason adjustment --note "cycle count"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			change, err := opts.change(cmd)
			if err != nil {
				return err
			}
			reason, err := ledger.ParseReason(opts.Reason)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid --reason", err)
			}

			svc, done, err := opts.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			out := opts.formatter(cmd)
			res, err := svc.Mutate(cmd.Context(), ledger.MutationRequest{
				BusinessID: opts.business(),
				VariantID:  ledger.VariantID(args[0]),
				Change:     change,
				Reason:     reason,
				OrderID:    opts.OrderID,
				ActorID:    opts.Actor,
				Note:       opts.Note,
			})
			if err != nil {
				return out.Fail("mutate", err)
			}

			view := MutationView{
				VariantID:   args[0],
				EntryID:     string(res.EntryID),
				Reason:      string(reason),
				PreviousQty: res.PreviousQty,
				NewQty:      res.NewQty,
				ChangeQty:   res.ChangeQty,
			}
			return out.Success(view, func(w io.Writer) {
				fmt.Fprintf(w, "%s: %d -> %d (%+d, %s)\n", view.VariantID, view.PreviousQty, view.NewQty, view.ChangeQty, view.Reason)
			})
		},
	}

	cmd.Flags().Int64Var(&opts.Delta, "delta", 0, "relative change")
	cmd.Flags().Int64Var(&opts.Set, "set", 0, "absolute target quantity")
	cmd.Flags().StringVar(&opts.Reason, "reason", "", "sale|return|restock|adjustment|correction|damage (required)")
	cmd.Flags().StringVar(&opts.OrderID, "order", "", "order id for sale/return")
	cmd.Flags().StringVar(&opts.Note, "note", "", "free-form note")
	cmd.MarkFlagRequired("reason")
	cmd.MarkFlagsMutuallyExclusive("delta", "set")
	cmd.MarkFlagsOneRequired("delta", "set")

	return cmd
}

func (o *MutateOptions) change(cmd *cobra.Command) (ledger.Change, error) {
	if cmd.Flags().Changed("set") {
		return ledger.SetTo(o.Set), nil
	}
	return ledger.Delta(o.Delta), nil
}

// =============================================================================
// BULK SET
// =============================================================================

// BulkSetOptions holds flags for the bulk-set command.
type BulkSetOptions struct {
	*RootOptions
	File string
}

// NewBulkSetCommand creates the bulk-set command.
func NewBulkSetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BulkSetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "bulk-set",
		Short: "Set absolute quantities by SKU from a CSV or YAML file",
		Long: `Set absolute quantities by SKU from a stock count.

CSV files have a sku column and a quantity column (header optional). YAML
files hold a list of {sku, target_qty} items. Every line stands alone: bad
lines are reported and the rest are applied. Exits 1 if any line failed.`,
		Example: `  ledgerctl bulk-set --file stocktake.csv`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			lines, parseFailures, err := importer.ReadFile(opts.File)
			if err != nil {
				return WrapExitError(ExitCommandError, "read file", err)
			}

			svc, done, err := opts.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			out := opts.formatter(cmd)
			res, err := svc.BulkSet(cmd.Context(), opts.business(), opts.Actor, lines)
			if err != nil {
				return out.Fail("bulk set", err)
			}
			res.Failures = append(parseFailures, res.Failures...)

			view := toBulkView(res)
			if err := out.Success(view, func(w io.Writer) { printBulk(w, view) }); err != nil {
				return err
			}
			if len(view.Failures) > 0 {
				return NewExitError(ExitFailure, fmt.Sprintf("%d line(s) failed", len(view.Failures)))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "CSV or YAML file (required)")
	cmd.MarkFlagRequired("file")

	return cmd
}

// BulkView is the JSON shape of a reconciliation result.
type BulkView struct {
	Applied  []BulkAppliedView `json:"applied"`
	Failures []BulkFailureView `json:"failures"`
}

type BulkAppliedView struct {
	SKU         string `json:"sku"`
	VariantID   string `json:"variant_id"`
	PreviousQty int64  `json:"previous_qty"`
	NewQty      int64  `json:"new_qty"`
}

type BulkFailureView struct {
	SKU   string `json:"sku"`
	Row   int    `json:"row,omitempty"`
	Error string `json:"error"`
}

func toBulkView(res ledger.BulkResult) BulkView {
	view := BulkView{
		Applied:  make([]BulkAppliedView, 0, len(res.Applied)),
		Failures: make([]BulkFailureView, 0, len(res.Failures)),
	}
	for _, a := range res.Applied {
		view.Applied = append(view.Applied, BulkAppliedView{
			SKU: a.SKU, VariantID: string(a.VariantID), PreviousQty: a.PreviousQty, NewQty: a.NewQty,
		})
	}
	for _, f := range res.Failures {
		view.Failures = append(view.Failures, BulkFailureView{SKU: f.SKU, Row: f.Row, Error: f.Err.Error()})
	}
	return view
}

func printBulk(w io.Writer, view BulkView) {
	fmt.Fprintf(w, "applied %d, failed %d\n", len(view.Applied), len(view.Failures))
	for _, a := range view.Applied {
		fmt.Fprintf(w, "  ok   %s %d -> %d\n", a.SKU, a.PreviousQty, a.NewQty)
	}
	for _, f := range view.Failures {
		fmt.Fprintf(w, "  fail row %d %s: %s\n", f.Row, f.SKU, f.Error)
	}
}
