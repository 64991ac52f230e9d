package orders

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"testing"

	"amazon-order-export/lib/scrapers/amazon/core"
	"amazon-order-export/lib/telemetry"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

const testBase = "https://amazon.test"

// fakeBrowser serves a canned url -> html map, routes form submissions
// through a scripted callback and can inject transient fetch failures.
type fakeBrowser struct {
	pages    map[string]string
	failures map[string]int
	onSubmit func(selector string, fields map[string]string) string
	visited  []string
	current  *url.URL
	doc      *goquery.Document
	fields   map[string]string
}

func newFakeBrowser(pages map[string]string) *fakeBrowser {
	return &fakeBrowser{
		pages:    pages,
		failures: map[string]int{},
		fields:   map[string]string{},
	}
}

func (b *fakeBrowser) Visit(ctx context.Context, rawUrl string) error {
	ref, err := url.Parse(rawUrl)
	if err != nil {
		return err
	}
	target := ref
	if b.current != nil {
		target = b.current.ResolveReference(ref)
	}
	key := target.String()
	if b.failures[key] > 0 {
		b.failures[key]--
		return fmt.Errorf("transient failure fetching %s", key)
	}
	page, ok := b.pages[key]
	if !ok {
		return fmt.Errorf("no such page: %s", key)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return err
	}
	b.current = target
	b.doc = doc
	b.fields = map[string]string{}
	b.visited = append(b.visited, key)
	return nil
}

func (b *fakeBrowser) Location() *url.URL {
	return b.current
}

func (b *fakeBrowser) Document() (*goquery.Document, error) {
	if b.doc == nil {
		return nil, fmt.Errorf("no page has been visited yet")
	}
	return b.doc, nil
}

func (b *fakeBrowser) SetField(selector, value string) error {
	field := b.doc.Find(selector).First()
	if field.Length() == 0 {
		return &core.NoElementError{Selector: selector}
	}
	b.fields[field.AttrOr("name", "")] = value
	return nil
}

func (b *fakeBrowser) Click(ctx context.Context, selector string) error {
	anchor := b.doc.Find(selector).First()
	if anchor.Length() == 0 {
		return &core.NoElementError{Selector: selector}
	}
	return b.Visit(ctx, anchor.AttrOr("href", ""))
}

func (b *fakeBrowser) SubmitForm(ctx context.Context, selector string) error {
	form := b.doc.Find(selector).First()
	if form.Length() == 0 {
		return &core.NoElementError{Selector: selector}
	}
	return b.Visit(ctx, b.onSubmit(selector, b.fields))
}

func (b *fakeBrowser) Close() error {
	return nil
}

func setupClient(t *testing.T, browser *fakeBrowser) *core.Client {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/amazon/orders")
	t.Cleanup(cleanup)

	client, err := core.NewClient(context.Background(), core.ClientOptions{
		BaseUrl: testBase,
		Browser: browser,
	})
	require.NoError(t, err)
	return client
}

// fixture markup mirroring the storefront's listing entry layout

type orderFixture struct {
	number    string
	date      string
	total     string
	shipment  string
	recipient bool
	noNumber  bool
}

func (f orderFixture) html() string {
	var b strings.Builder
	b.WriteString(`<div class="order"><div class="a-col-left">`)
	if f.date != "" {
		b.WriteString(`<div class="a-column">` +
			`<div class="a-row a-size-mini"><span class="a-color-secondary label">Bestellung aufgegeben</span></div>` +
			`<div class="a-row a-size-base"><span class="a-color-secondary value">` + f.date + `</span></div>` +
			`</div>`)
	}
	if f.total != "" {
		b.WriteString(`<div class="a-column">` +
			`<div class="a-row a-size-mini"><span class="a-color-secondary label">Summe</span></div>` +
			`<div class="a-row a-size-base"><span class="a-color-secondary value">` + f.total + `</span></div>` +
			`</div>`)
	}
	if f.recipient {
		// the recipient column of physical orders carries a popover
		// trigger instead of the usual label/value rows
		b.WriteString(`<div class="a-column"><span class="recipient-popover-trigger">Empfänger</span></div>`)
	}
	b.WriteString(`</div><div class="a-col-right">`)
	if !f.noNumber {
		b.WriteString(`<div class="a-row a-size-mini">` +
			`<span class="a-color-secondary label">Bestellnr.</span>` +
			`<span class="a-color-secondary value">` + f.number + `</span>` +
			`</div>` +
			`<div class="a-row"><a class="a-link-normal" href="/gp/css/order-details?orderID=` + f.number + `">Bestelldetails</a></div>`)
	}
	b.WriteString(`</div>`)
	if f.shipment != "" {
		b.WriteString(`<div class="shipment"><div class="a-row">` + f.shipment + `</div></div>`)
	}
	b.WriteString(`</div>`)
	return b.String()
}

func listingPage(nextHref string, fixtures ...orderFixture) string {
	var b strings.Builder
	b.WriteString(`<html><body><div id="ordersContainer">`)
	for _, f := range fixtures {
		b.WriteString(f.html())
	}
	b.WriteString(`</div>`)
	if nextHref != "" {
		b.WriteString(`<ul class="a-pagination"><li class="a-last"><a href="` + nextHref + `">Weiter</a></li></ul>`)
	}
	b.WriteString(`</body></html>`)
	return b.String()
}

func landingPage(years ...string) string {
	var b strings.Builder
	b.WriteString(`<html><body><form id="timePeriodForm" action="/orders" method="get">` +
		`<select id="orderFilter" name="orderFilter">`)
	for _, y := range years {
		b.WriteString(`<option value="` + y + `">` + y + `</option>`)
	}
	b.WriteString(`</select></form></body></html>`)
	return b.String()
}

func listingDoc(t *testing.T, fixtures ...orderFixture) *goquery.Document {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(listingPage("", fixtures...)))
	require.NoError(t, err)
	return doc
}
