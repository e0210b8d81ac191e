package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/warp/inventory-ledger/ledger"
)

// =============================================================================
// HISTORY
// =============================================================================

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Variant string
	Product string
	Order   string
	Limit   int
}

// EntryView is the JSON shape of a ledger entry.
type EntryView struct {
	EntryID     string `json:"entry_id"`
	Seq         int64  `json:"seq"`
	VariantID   string `json:"variant_id"`
	ProductID   string `json:"product_id"`
	PreviousQty int64  `json:"previous_qty"`
	NewQty      int64  `json:"new_qty"`
	ChangeQty   int64  `json:"change_qty"`
	Reason      string `json:"reason"`
	Note        string `json:"note,omitempty"`
	OrderID     string `json:"order_id,omitempty"`
	ActorID     string `json:"actor_id,omitempty"`
	CreatedAt   string `json:"created_at"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List ledger entries, newest first",
		Example: `  ledgerctl history --variant tee-red-m --limit 20
  ledgerctl history --order 1042`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, done, err := opts.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			out := opts.formatter(cmd)
			entries, err := svc.ListHistory(cmd.Context(), opts.business(), ledger.HistoryFilter{
				VariantID: ledger.VariantID(opts.Variant),
				ProductID: ledger.ProductID(opts.Product),
				OrderID:   opts.Order,
			}, opts.Limit)
			if err != nil {
				return out.Fail("history", err)
			}

			views := make([]EntryView, len(entries))
			for i, e := range entries {
				views[i] = EntryView{
					EntryID:     string(e.ID),
					Seq:         e.Seq,
					VariantID:   string(e.VariantID),
					ProductID:   string(e.ProductID),
					PreviousQty: e.PreviousQty,
					NewQty:      e.NewQty,
					ChangeQty:   e.ChangeQty,
					Reason:      string(e.Reason),
					Note:        e.Note,
					OrderID:     e.OrderID,
					ActorID:     e.ActorID,
					CreatedAt:   e.CreatedAt.UTC().Format(time.RFC3339),
				}
			}
			return out.Success(views, func(w io.Writer) { printHistory(w, views) })
		},
	}

	cmd.Flags().StringVar(&opts.Variant, "variant", "", "filter by variant id")
	cmd.Flags().StringVar(&opts.Product, "product", "", "filter by product id")
	cmd.Flags().StringVar(&opts.Order, "order", "", "filter by order id")
	cmd.Flags().IntVar(&opts.Limit, "limit", ledger.DefaultHistoryLimit, "maximum entries")

	return cmd
}

func printHistory(w io.Writer, entries []EntryView) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "no entries")
		return
	}
	for _, e := range entries {
		fmt.Fprintf(w, "#%d %s %s %s %d -> %d (%+d)", e.Seq, e.CreatedAt, e.VariantID, e.Reason, e.PreviousQty, e.NewQty, e.ChangeQty)
		if e.OrderID != "" {
			fmt.Fprintf(w, " order=%s", e.OrderID)
		}
		if e.ActorID != "" {
			fmt.Fprintf(w, " actor=%s", e.ActorID)
		}
		if e.Note != "" {
			fmt.Fprintf(w, " note=%q", e.Note)
		}
		fmt.Fprintln(w)
	}
}

// =============================================================================
// LOW STOCK
// =============================================================================

// LowStockOptions holds flags for the low-stock command.
type LowStockOptions struct {
	*RootOptions
	Threshold int64
}

// LowStockView is the JSON shape of a low-stock report.
type LowStockView struct {
	Threshold int64         `json:"threshold"`
	Low       []VariantView `json:"low"`
	Negative  []VariantView `json:"negative"`
}

// NewLowStockCommand creates the low-stock command.
func NewLowStockCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LowStockOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "low-stock",
		Short: "List variants at or below a threshold, and negative ones",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, done, err := opts.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			out := opts.formatter(cmd)
			report, err := svc.LowStock(cmd.Context(), opts.business(), opts.Threshold)
			if err != nil {
				return out.Fail("low stock", err)
			}

			view := LowStockView{
				Threshold: report.Threshold,
				Low:       make([]VariantView, len(report.Low)),
				Negative:  make([]VariantView, len(report.Negative)),
			}
			for i, v := range report.Low {
				view.Low[i] = toVariantView(v)
			}
			for i, v := range report.Negative {
				view.Negative[i] = toVariantView(v)
			}
			return out.Success(view, func(w io.Writer) { printLowStock(w, view) })
		},
	}

	cmd.Flags().Int64Var(&opts.Threshold, "threshold", 5, "low-stock threshold")

	return cmd
}

func printLowStock(w io.Writer, view LowStockView) {
	fmt.Fprintf(w, "threshold: %d\n", view.Threshold)
	fmt.Fprintf(w, "low (%d):\n", len(view.Low))
	for _, v := range view.Low {
		fmt.Fprintf(w, "  %s qty=%d\n", v.VariantID, v.InventoryQty)
	}
	fmt.Fprintf(w, "negative (%d):\n", len(view.Negative))
	for _, v := range view.Negative {
		fmt.Fprintf(w, "  %s qty=%d\n", v.VariantID, v.InventoryQty)
	}
}

// =============================================================================
// AUDIT
// =============================================================================

// NewAuditCommand creates the audit command.
func NewAuditCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "audit <variant-id>",
		Short: "Replay a variant's entries and check the chain",
		Long: `Replay a variant's entries in order and check that each entry starts
where the previous one ended and that the last one matches the stored
quantity. Exits 1 if the chain is broken.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, done, err := opts.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			out := opts.formatter(cmd)
			report, err := svc.Audit(cmd.Context(), opts.business(), ledger.VariantID(args[0]))
			if err != nil {
				return out.Fail("audit", err)
			}

			if err := out.Success(toAuditView(report), func(w io.Writer) { printAudit(w, report) }); err != nil {
				return err
			}
			if !report.Consistent() {
				return NewExitError(ExitFailure, fmt.Sprintf("ledger chain broken for %s", args[0]))
			}
			return nil
		},
	}
}

// AuditView is the JSON shape of an audit report.
type AuditView struct {
	VariantID  string   `json:"variant_id"`
	Consistent bool     `json:"consistent"`
	Deleted    bool     `json:"deleted,omitempty"`
	Entries    int      `json:"entries"`
	StartQty   int64    `json:"start_qty"`
	EndQty     int64    `json:"end_qty"`
	CurrentQty int64    `json:"current_qty"`
	Breaks     []string `json:"breaks,omitempty"`
}

func toAuditView(r ledger.AuditReport) AuditView {
	view := AuditView{
		VariantID:  string(r.VariantID),
		Consistent: r.Consistent(),
		Deleted:    r.Deleted,
		Entries:    r.Entries,
		StartQty:   r.StartQty,
		EndQty:     r.EndQty,
		CurrentQty: r.CurrentQty,
	}
	for _, b := range r.Breaks {
		view.Breaks = append(view.Breaks, fmt.Sprintf("#%d: %s", b.Seq, b.Problem))
	}
	return view
}

func printAudit(w io.Writer, r ledger.AuditReport) {
	status := "consistent"
	switch {
	case !r.Consistent():
		status = "broken"
	case r.Deleted:
		status = "consistent (variant deleted)"
	}
	fmt.Fprintf(w, "variant: %s\n", r.VariantID)
	fmt.Fprintf(w, "entries: %d\n", r.Entries)
	fmt.Fprintf(w, "start:   %d\n", r.StartQty)
	fmt.Fprintf(w, "end:     %d\n", r.EndQty)
	if !r.Deleted {
		fmt.Fprintf(w, "current: %d\n", r.CurrentQty)
	}
	fmt.Fprintf(w, "status:  %s\n", status)
	for _, b := range r.Breaks {
		fmt.Fprintf(w, "  break at #%d: %s\n", b.Seq, b.Problem)
	}
}
