package orders

import (
	"context"
	"fmt"
	"log/slog"

	"amazon-order-export/lib/scrapers/amazon/core"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("scrapers/amazon/orders")

const orderHistoryPath = "/gp/css/order-history"

const (
	selectorYearOption = "select#orderFilter option[value^='year-']"
	selectorYearFilter = "select#orderFilter"
	selectorFilterForm = "form#timePeriodForm"
	selectorNextPage   = "ul.a-pagination li.a-last a"
)

// transient fetch failures on one page are retried this many times
// before the traversal aborts
const fetchRetries = 2

// NavigationError reports a page or year of the listing that could not
// be reached within the retry budget. The traversal up to that point
// has already been delivered to the caller.
type NavigationError struct {
	Year string
	Page int
	Err  error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("order listing year %q page %d: %s", e.Year, e.Page, e.Err)
}

func (e *NavigationError) Unwrap() error {
	return e.Err
}

// ForEachPage walks every page of every year partition of the order
// history and hands each page's parsed markup to visit, years in the
// order the site lists them, pages forward within a year. The walk
// ends normally when a page carries no "next page" control. An error
// returned by visit aborts the walk and is passed through unchanged.
func ForEachPage(ctx context.Context, client *core.Client, visit func(year string, page int, doc *goquery.Document) error) error {
	ctx, span := tracer.Start(ctx, "ForEachPage")
	defer span.End()

	browser := client.Browser
	landing := client.Resolve(orderHistoryPath)

	err := withRetry(ctx, func() error {
		return browser.Visit(ctx, landing)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch order history landing page")
		return &NavigationError{Err: err}
	}
	doc, err := browser.Document()
	if err != nil {
		return &NavigationError{Err: err}
	}

	var years []string
	doc.Find(selectorYearOption).Each(func(_ int, option *goquery.Selection) {
		value, exists := option.Attr("value")
		if exists {
			years = append(years, value)
		}
	})
	slog.InfoContext(ctx, "discovered year partitions", "years", years)

	for _, year := range years {
		err := forEachYearPage(ctx, client, year, visit)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "traversal aborted")
			return err
		}
	}
	return nil
}

func forEachYearPage(ctx context.Context, client *core.Client, year string, visit func(year string, page int, doc *goquery.Document) error) error {
	browser := client.Browser

	// year selection resets the listing, so re-enter it from the
	// landing page before submitting the period filter
	err := withRetry(ctx, func() error {
		err := browser.Visit(ctx, client.Resolve(orderHistoryPath))
		if err != nil {
			return err
		}
		err = browser.SetField(selectorYearFilter, year)
		if err != nil {
			return err
		}
		return browser.SubmitForm(ctx, selectorFilterForm)
	})
	if err != nil {
		return &NavigationError{Year: year, Page: 1, Err: err}
	}

	page := 1
	for {
		doc, err := browser.Document()
		if err != nil {
			return &NavigationError{Year: year, Page: page, Err: err}
		}

		err = visit(year, page, doc)
		if err != nil {
			return err
		}

		// a page without a "next page" control is the last one of
		// this year, the sole normal way out of the loop
		if doc.Find(selectorNextPage).Length() == 0 {
			slog.DebugContext(ctx, "reached last page of year", "year", year, "pages", page)
			return nil
		}

		err = withRetry(ctx, func() error {
			return browser.Click(ctx, selectorNextPage)
		})
		if err != nil {
			return &NavigationError{Year: year, Page: page + 1, Err: err}
		}
		page++
	}
}

func withRetry(ctx context.Context, op func() error) error {
	var err error
	for attempt := 0; attempt <= fetchRetries; attempt++ {
		err = op()
		if err == nil {
			return nil
		}
		if attempt < fetchRetries {
			slog.WarnContext(ctx, "retrying page fetch", "attempt", attempt+1, "err", err)
		}
	}
	return err
}
