package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/orderdesk/internal/client"
	"github.com/vladislavdragonenkov/orderdesk/internal/messaging/kafka"
)

var (
	accent  = lipgloss.Color("#D97706")
	dim     = lipgloss.Color("#6B7280")
	faint   = lipgloss.Color("#3F3F46")
	success = lipgloss.Color("#22C55E")
	danger  = lipgloss.Color("#EF4444")
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(accent)
	headerStyle = lipgloss.NewStyle().Bold(true)
	dimStyle    = lipgloss.NewStyle().Foreground(dim)
	okStyle     = lipgloss.NewStyle().Foreground(success)
	errorStyle  = lipgloss.NewStyle().Foreground(danger).Bold(true)
	boxStyle    = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accent).
			Padding(0, 2)
	separator = lipgloss.NewStyle().Foreground(faint).Render(strings.Repeat("─", 60))
)

// renderTable выравнивает колонки по самой длинной ячейке.
func renderTable(headers []string, rows [][]string) string {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if w := lipgloss.Width(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}

	pad := func(cells []string) string {
		parts := make([]string, len(cells))
		for i, cell := range cells {
			parts[i] = cell + strings.Repeat(" ", widths[i]-lipgloss.Width(cell))
		}
		return strings.TrimRight(strings.Join(parts, "  "), " ")
	}

	var b strings.Builder
	b.WriteString(headerStyle.Render(pad(headers)))
	b.WriteString("\n")
	for _, row := range rows {
		b.WriteString(pad(row))
		b.WriteString("\n")
	}
	return b.String()
}

// RenderOrders выводит список заказов.
func RenderOrders(orders []client.Order) string {
	if len(orders) == 0 {
		return dimStyle.Render("no orders") + "\n"
	}
	rows := make([][]string, 0, len(orders))
	for _, o := range orders {
		rows = append(rows, []string{strconv.FormatInt(o.ID, 10), o.Name, o.Date, o.Description})
	}
	return renderTable([]string{"ID", "NAME", "DATE", "DESCRIPTION"}, rows)
}

// RenderOrder выводит карточку заказа с позициями и итоговой суммой.
func RenderOrder(o client.Order) string {
	var b strings.Builder

	head := titleStyle.Render(fmt.Sprintf("Order #%d  %s", o.ID, o.Name))
	meta := dimStyle.Render(o.Date)
	if o.Description != "" {
		meta += "\n" + o.Description
	}
	b.WriteString(boxStyle.Render(head + "\n" + meta))
	b.WriteString("\n")

	if len(o.Products) == 0 {
		b.WriteString(dimStyle.Render("no products"))
		b.WriteString("\n")
		return b.String()
	}

	rows := make([][]string, 0, len(o.Products))
	for _, p := range o.Products {
		rows = append(rows, []string{
			strconv.FormatInt(p.ID, 10),
			p.Name,
			formatPrice(decimal.NewFromFloat(p.Price)),
			strconv.Itoa(p.Quantity),
			formatPrice(p.LineTotal()),
		})
	}
	b.WriteString(renderTable([]string{"ID", "PRODUCT", "PRICE", "QTY", "SUM"}, rows))
	b.WriteString(separator)
	b.WriteString("\n")
	b.WriteString(headerStyle.Render("Total: " + formatPrice(o.Total())))
	b.WriteString("\n")
	return b.String()
}

// RenderProducts выводит каталог товаров.
func RenderProducts(products []client.Product) string {
	if len(products) == 0 {
		return dimStyle.Render("no products") + "\n"
	}
	rows := make([][]string, 0, len(products))
	for _, p := range products {
		rows = append(rows, []string{strconv.FormatInt(p.ID, 10), p.Name, formatPrice(decimal.NewFromFloat(p.Price))})
	}
	return renderTable([]string{"ID", "NAME", "PRICE"}, rows)
}

// RenderEvent выводит событие заказа, прочитанное из Kafka.
func RenderEvent(env *kafka.Envelope) string {
	line := fmt.Sprintf("%s  %s  %s #%s",
		dimStyle.Render(env.PublishedAt.Format("2006-01-02 15:04:05")),
		titleStyle.Render(env.EventType),
		env.AggregateType,
		env.AggregateID,
	)
	if updated, err := env.OrderUpdated(); err == nil && len(updated.Fields) > 0 {
		line += dimStyle.Render("  fields=" + strings.Join(updated.Fields, ","))
	}
	return line + "\n"
}

// RenderMessage выводит сообщение об успешной операции.
func RenderMessage(msg string) string {
	return okStyle.Render(msg) + "\n"
}

// RenderError выводит ошибку, включая ошибки полей от API.
func RenderError(err error) string {
	var b strings.Builder
	b.WriteString(errorStyle.Render("error: " + err.Error()))
	b.WriteString("\n")

	var fields map[string]string
	if apiErr, ok := asAPIError(err); ok && len(apiErr.Fields) > 0 {
		fields = make(map[string]string, len(apiErr.Fields))
		for k, v := range apiErr.Fields {
			fields[k] = strings.Join(v, " ")
		}
	} else if formErr, ok := asFormError(err); ok {
		fields = formErr.Fields
	}
	for _, k := range sortedKeys(fields) {
		b.WriteString(dimStyle.Render("  " + k + ": "))
		b.WriteString(fields[k])
		b.WriteString("\n")
	}
	return b.String()
}

func formatPrice(v decimal.Decimal) string {
	return v.StringFixed(2)
}
