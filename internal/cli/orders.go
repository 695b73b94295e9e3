package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vladislavdragonenkov/orderdesk/internal/client"
)

func newOrdersCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "orders",
		Aliases: []string{"order"},
		Short:   "List, show, edit and delete orders",
	}
	cmd.AddCommand(newOrdersListCmd(opts))
	cmd.AddCommand(newOrdersShowCmd(opts))
	cmd.AddCommand(newOrdersEditCmd(opts))
	cmd.AddCommand(newOrdersDeleteCmd(opts))
	return cmd
}

func newOrdersListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all orders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.newClient()
			if err != nil {
				return err
			}
			store := client.NewOrderStore(c, nil)
			if err := store.FetchOrders(cmd.Context()); err != nil {
				return err
			}
			orders := store.Orders()
			return opts.write(cmd.OutOrStdout(), orders, func() string { return RenderOrders(orders) })
		},
	}
}

func newOrdersShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show an order with its products",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseOrderID(args[0])
			if err != nil {
				return err
			}
			c, err := opts.newClient()
			if err != nil {
				return err
			}
			store := client.NewOrderStore(c, nil)
			if err := store.FetchOrderByID(cmd.Context(), id); err != nil {
				return err
			}
			order := store.SelectedOrder()
			return opts.write(cmd.OutOrStdout(), order, func() string { return RenderOrder(*order) })
		},
	}
}

func newOrdersEditCmd(opts *rootOptions) *cobra.Command {
	var (
		name          string
		description   string
		date          string
		products      []string
		clearProducts bool
	)

	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Edit order fields and replace its products",
		Long: "Loads the order, applies the given flags to an edit copy and submits it.\n" +
			"--product id=quantity may be repeated; when given, the order's products are replaced entirely.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseOrderID(args[0])
			if err != nil {
				return err
			}
			lines, err := parseProductFlags(products)
			if err != nil {
				return err
			}
			if clearProducts && len(lines) > 0 {
				return fmt.Errorf("--clear-products cannot be combined with --product")
			}

			c, err := opts.newClient()
			if err != nil {
				return err
			}
			store := client.NewOrderStore(c, nil)
			if err := store.FetchOrderByID(cmd.Context(), id); err != nil {
				return err
			}

			editor := client.NewOrderEditor(store, store.SelectedOrder())
			editor.TriggerEdit()
			working := editor.Order()
			flags := cmd.Flags()
			if flags.Changed("name") {
				working.Name = name
			}
			if flags.Changed("description") {
				working.Description = description
			}
			if flags.Changed("date") {
				working.Date = date
			}
			switch {
			case clearProducts:
				working.Products = []client.Product{}
			case len(lines) > 0:
				working.Products = lines
			}

			if err := editor.Submit(cmd.Context(), working); err != nil {
				return err
			}
			order := store.SelectedOrder()
			return opts.write(cmd.OutOrStdout(), order, func() string { return RenderOrder(*order) })
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "order name")
	cmd.Flags().StringVar(&description, "description", "", "order description")
	cmd.Flags().StringVar(&date, "date", "", "order date (YYYY-MM-DD)")
	cmd.Flags().StringArrayVar(&products, "product", nil, "product line as id=quantity (repeatable)")
	cmd.Flags().BoolVar(&clearProducts, "clear-products", false, "remove all products from the order")
	return cmd
}

func newOrdersDeleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseOrderID(args[0])
			if err != nil {
				return err
			}
			c, err := opts.newClient()
			if err != nil {
				return err
			}
			store := client.NewOrderStore(c, nil)
			if err := store.DeleteOrder(cmd.Context(), id); err != nil {
				return err
			}
			msg := fmt.Sprintf("order %d deleted", id)
			return opts.write(cmd.OutOrStdout(), map[string]any{"id": id, "deleted": true}, func() string { return RenderMessage(msg) })
		},
	}
}

func parseOrderID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid order id %q", raw)
	}
	return id, nil
}

// parseProductFlags разбирает значения вида "id=quantity".
func parseProductFlags(values []string) ([]client.Product, error) {
	lines := make([]client.Product, 0, len(values))
	for _, v := range values {
		idPart, qtyPart, ok := strings.Cut(v, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --product %q: expected id=quantity", v)
		}
		id, err := strconv.ParseInt(strings.TrimSpace(idPart), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid --product %q: bad id", v)
		}
		qty, err := strconv.Atoi(strings.TrimSpace(qtyPart))
		if err != nil {
			return nil, fmt.Errorf("invalid --product %q: bad quantity", v)
		}
		lines = append(lines, client.Product{ID: id, Quantity: qty})
	}
	return lines, nil
}
