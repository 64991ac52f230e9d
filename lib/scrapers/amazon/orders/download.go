package orders

import (
	"context"
	"log/slog"

	"amazon-order-export/lib/scrapers/amazon/core"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/codes"
)

type DownloadOptions struct {
	IncludeFree bool
}

// Download is the end-to-end operation: authenticate, walk every year
// and page of the order history, extract each page's orders and
// accumulate them. Overlapping pagination is deduplicated by order
// number. When the traversal aborts on a navigation failure, the
// orders gathered so far are returned alongside the error.
func Download(ctx context.Context, client *core.Client, creds core.Credentials, opts DownloadOptions) ([]Order, error) {
	ctx, span := tracer.Start(ctx, "Download")
	defer span.End()

	err := client.Login(ctx, creds)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "login failed")
		return nil, err
	}

	seen := map[string]bool{}
	var result []Order

	err = ForEachPage(ctx, client, func(year string, page int, doc *goquery.Document) error {
		extracted := ExtractOrders(ctx, doc, ExtractOptions{IncludeFree: opts.IncludeFree})
		kept := 0
		for _, order := range extracted {
			if seen[order.Number] {
				slog.DebugContext(ctx, "suppressing duplicate order", "order", order.Number, "year", year, "page", page)
				continue
			}
			seen[order.Number] = true
			result = append(result, order)
			kept++
		}
		slog.InfoContext(ctx, "extracted listing page", "year", year, "page", page, "orders", kept)
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "traversal aborted, keeping partial results")
		return result, err
	}

	slog.InfoContext(ctx, "order history downloaded", "orders", len(result))
	return result, nil
}
