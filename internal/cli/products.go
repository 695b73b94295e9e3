package cli

import (
	"github.com/spf13/cobra"

	"github.com/vladislavdragonenkov/orderdesk/internal/client"
)

func newProductsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "products",
		Aliases: []string{"product"},
		Short:   "Browse the product catalog",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all products",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.newClient()
			if err != nil {
				return err
			}
			store := client.NewProductStore(c, nil)
			if err := store.FetchProducts(cmd.Context()); err != nil {
				return err
			}
			products := store.Products()
			return opts.write(cmd.OutOrStdout(), products, func() string { return RenderProducts(products) })
		},
	})
	return cmd
}
