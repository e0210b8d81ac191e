package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/warp/inventory-ledger/ledger"
)

// VariantView is the JSON shape of a variant.
type VariantView struct {
	VariantID    string `json:"variant_id"`
	ProductID    string `json:"product_id"`
	SKU          string `json:"sku,omitempty"`
	InventoryQty int64  `json:"inventory_qty"`
	Version      int64  `json:"version"`
}

func toVariantView(v ledger.Variant) VariantView {
	return VariantView{
		VariantID:    string(v.VariantID),
		ProductID:    string(v.ProductID),
		SKU:          v.SKU,
		InventoryQty: v.InventoryQty,
		Version:      v.Version,
	}
}

func printVariant(w io.Writer, v VariantView) {
	sku := v.SKU
	if sku == "" {
		sku = "-"
	}
	fmt.Fprintf(w, "variant:  %s\n", v.VariantID)
	fmt.Fprintf(w, "product:  %s\n", v.ProductID)
	fmt.Fprintf(w, "sku:      %s\n", sku)
	fmt.Fprintf(w, "quantity: %d\n", v.InventoryQty)
	fmt.Fprintf(w, "version:  %d\n", v.Version)
}

// VariantCreateOptions holds flags for variant create.
type VariantCreateOptions struct {
	*RootOptions
	Product string
	SKU     string
	Qty     int64
}

// NewVariantCommand groups the variant administration commands.
func NewVariantCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "variant",
		Short: "Create, inspect and delete variants",
	}
	cmd.AddCommand(newVariantCreateCommand(rootOpts))
	cmd.AddCommand(newVariantGetCommand(rootOpts))
	cmd.AddCommand(newVariantDeleteCommand(rootOpts))
	return cmd
}

func newVariantCreateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VariantCreateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:     "create <variant-id>",
		Short:   "Register a variant with its initial quantity",
		Example: `  ledgerctl variant create tee-red-m --product tee --sku TEE-RED-M --qty 12`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, done, err := opts.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			out := opts.formatter(cmd)
			v, err := svc.CreateVariant(cmd.Context(), ledger.Variant{
				BusinessID:   opts.business(),
				VariantID:    ledger.VariantID(args[0]),
				ProductID:    ledger.ProductID(opts.Product),
				SKU:          opts.SKU,
				InventoryQty: opts.Qty,
			})
			if err != nil {
				return out.Fail("create variant", err)
			}
			view := toVariantView(v)
			return out.Success(view, func(w io.Writer) { printVariant(w, view) })
		},
	}

	cmd.Flags().StringVar(&opts.Product, "product", "", "product id (required)")
	cmd.Flags().StringVar(&opts.SKU, "sku", "", "stock keeping unit, unique per tenant")
	cmd.Flags().Int64Var(&opts.Qty, "qty", 0, "initial quantity")
	cmd.MarkFlagRequired("product")

	return cmd
}

func newVariantGetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <variant-id>",
		Short: "Show a variant's current quantity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, done, err := opts.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			out := opts.formatter(cmd)
			v, err := svc.GetVariant(cmd.Context(), opts.business(), ledger.VariantID(args[0]))
			if err != nil {
				return out.Fail("get variant", err)
			}
			view := toVariantView(v)
			return out.Success(view, func(w io.Writer) { printVariant(w, view) })
		},
	}
}

func newVariantDeleteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <variant-id>",
		Short: "Delete a variant's stock row; its history is kept",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, done, err := opts.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			out := opts.formatter(cmd)
			if err := svc.DeleteVariant(cmd.Context(), opts.business(), ledger.VariantID(args[0])); err != nil {
				return out.Fail("delete variant", err)
			}
			return out.Success(map[string]string{"deleted": args[0]}, func(w io.Writer) {
				fmt.Fprintf(w, "deleted variant %s\n", args[0])
			})
		},
	}
}
