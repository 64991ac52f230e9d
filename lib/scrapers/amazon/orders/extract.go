package orders

import (
	"context"
	"log/slog"
	"strings"

	"amazon-order-export/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"
)

const (
	selectorOrderBlock  = "div.order"
	selectorLeftInfo    = "div.a-col-left"
	selectorInfoColumn  = "div.a-column"
	selectorColumnLabel = "div.a-row.a-size-mini"
	selectorColumnValue = "div.a-row.a-size-base"
	selectorRightInfo   = "div.a-col-right"
	selectorOrderNumber = "span.a-color-secondary.value"
	selectorDetailsLink = "a.a-link-normal[href*='order-details']"
	selectorShipment    = "div.shipment"
)

// left-column labels of interest, compared case-insensitively against
// the storefront's localized label text
const (
	labelTotal = "summe"
	labelDate  = "bestellung aufgegeben"
)

type ExtractOptions struct {
	// keep orders with a total of zero
	IncludeFree bool
}

// ExtractOrders pulls every qualifying order out of one listing page.
// Per-entry anomalies drop that entry with a logged reason, they never
// fail the page.
func ExtractOrders(ctx context.Context, doc *goquery.Document, opts ExtractOptions) []Order {
	var result []Order
	doc.Find(selectorOrderBlock).Each(func(_ int, block *goquery.Selection) {
		order, ok := extractOrder(ctx, block, opts)
		if ok {
			result = append(result, order)
		}
	})
	return result
}

func extractOrder(ctx context.Context, block *goquery.Selection, opts ExtractOptions) (Order, bool) {
	// every order carries a number and a details link in its right
	// info region, their absence is a genuine defect
	right := block.Find(selectorRightInfo)
	number := htmlutil.SelectionText(right.Find(selectorOrderNumber).First())
	link := right.Find(selectorDetailsLink).First().AttrOr("href", "")
	if number == "" || link == "" {
		slog.WarnContext(ctx, "dropping order entry without number or details link")
		return Order{}, false
	}

	var date string
	var total decimal.Decimal
	haveTotal := false

	block.Find(selectorLeftInfo).Find(selectorInfoColumn).Each(func(_ int, column *goquery.Selection) {
		label := column.Find(selectorColumnLabel).First()
		value := column.Find(selectorColumnValue).First()
		// digital orders omit the recipient column's label/value pair
		// entirely, such a column is an expected variant to skip over
		if label.Length() == 0 || value.Length() == 0 {
			return
		}

		switch strings.ToLower(htmlutil.SelectionText(label)) {
		case labelTotal:
			raw := htmlutil.SelectionText(value)
			parsed, err := ParseTotal(raw)
			if err != nil {
				slog.WarnContext(ctx, "unparseable order total", "order", number, "raw", raw, "err", err)
				return
			}
			total = parsed
			haveTotal = true
		case labelDate:
			date = htmlutil.SelectionText(value)
		}
	})

	// digital orders have no shipment fragment at all, that simply
	// means there is nothing that could have been refunded
	shipment := block.Find(selectorShipment)
	if shipment.Length() > 0 && IsRefunded(shipment.Text()) {
		slog.InfoContext(ctx, "skipping refunded order", "order", number)
		return Order{}, false
	}

	if date == "" {
		slog.WarnContext(ctx, "dropping order: order date not found", "order", number)
		return Order{}, false
	}
	if !haveTotal {
		slog.WarnContext(ctx, "dropping order: order total not found", "order", number)
		return Order{}, false
	}

	order := Order{
		Number:      number,
		Date:        date,
		Total:       total,
		DetailsLink: link,
	}

	if !opts.IncludeFree && order.IsFree() {
		slog.InfoContext(ctx, "skipping free order", "order", number)
		return Order{}, false
	}

	return order, true
}
