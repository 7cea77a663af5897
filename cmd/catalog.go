package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"storefront-dashboard/internal/catalog"
	"storefront-dashboard/internal/model"
	"storefront-dashboard/internal/service"
)

func newProductsCmd(a *app) *cobra.Command {
	var (
		category       string
		search         string
		listCategories bool
	)

	cmd := &cobra.Command{
		Use:   "products",
		Short: "List in-stock products, optionally filtered",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := a.token()
			if err != nil {
				return err
			}
			client := a.client()
			out := cmd.OutOrStdout()

			if listCategories {
				categories, err := client.Categories(cmd.Context(), token)
				if err != nil {
					return a.rejected(err)
				}
				for _, c := range categories {
					fmt.Fprintln(out, c)
				}
				return nil
			}

			products, err := client.Products(cmd.Context(), token)
			if err != nil {
				return a.rejected(err)
			}
			rate := client.DollarRate(cmd.Context(), a.cfg.ExchangeRate.URL, a.cfg.ExchangeRate.Fallback)
			products = catalog.WithUSD(catalog.Filter(products, category, search), rate)

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tDESCRIPTION\tQTY\tSTOCK\tPRICE (R$)\tPRICE (US$)\tCATEGORIES")
			for _, p := range products {
				fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\t%s\t%v\n",
					p.ID, p.Description, p.Quantity,
					catalog.StockStatus(p.Quantity, p.SuggestedQuantity),
					service.FormatMoney(p.Price), service.FormatMoney(p.PriceUSD), p.Categories)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(out, "\n%d products, US$ rate %s\n", len(products), strconv.FormatFloat(rate, 'f', 4, 64))
			return nil
		},
	}

	cmd.Flags().StringVarP(&category, "category", "c", "", "only products in this category")
	cmd.Flags().StringVarP(&search, "search", "s", "", "case-insensitive description filter")
	cmd.Flags().BoolVar(&listCategories, "categories", false, "list categories instead of products")

	cmd.AddCommand(newProductsAddCmd(a))
	return cmd
}

func newProductsAddCmd(a *app) *cobra.Command {
	var req model.ProductCreate

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a new product",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := a.token()
			if err != nil {
				return err
			}
			product, err := a.client().CreateProduct(cmd.Context(), token, req)
			if err != nil {
				return a.rejected(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered product %d: %s (%s, R$ %s)\n",
				product.ID, product.Description, product.Status, service.FormatMoney(product.Price))
			return nil
		},
	}

	cmd.Flags().StringVarP(&req.Description, "description", "d", "", "product description")
	cmd.Flags().StringVar(&req.ImageURL, "image-url", "", "product image URL")
	cmd.Flags().IntVarP(&req.Quantity, "quantity", "q", 0, "units in stock")
	cmd.Flags().IntVar(&req.SuggestedQuantity, "suggested", 0, "suggested stock level")
	cmd.Flags().Float64VarP(&req.Price, "price", "p", 0, "price in R$")
	cmd.Flags().StringSliceVarP(&req.Categories, "category", "c", nil, "product category (repeatable)")
	_ = cmd.MarkFlagRequired("description")
	_ = cmd.MarkFlagRequired("price")
	return cmd
}

func newPurchaseCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "purchase <product-id> <quantity>",
		Short: "Buy units of a product",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid product id %q", args[0])
			}
			qty, err := strconv.Atoi(args[1])
			if err != nil || qty <= 0 {
				return fmt.Errorf("quantity must be a positive integer, got %q", args[1])
			}

			token, err := a.token()
			if err != nil {
				return err
			}
			res, err := a.client().Purchase(cmd.Context(), token, model.PurchaseRequest{ProductID: id, Quantity: qty})
			if err != nil {
				return a.rejected(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", res.Message, res.Product)
			return nil
		},
	}
}
