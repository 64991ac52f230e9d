package orders

import (
	"context"
	"strings"
	"testing"

	"amazon-order-export/lib/scrapers/amazon/core"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

const signinPage = `
<html><body>
	<form name="signIn" method="post" action="/ap/signin">
		<input type="email" id="ap_email" name="email" />
		<input type="password" id="ap_password" name="password" />
		<input type="submit" id="signInSubmit" />
	</form>
</body></html>`

const homePage = `<html><body><div id="nav">Mein Konto</div></body></html>`

const failedPage = `<html><body><h4>Ein Problem ist aufgetreten</h4></body></html>`

var testCreds = core.Credentials{
	Email:    "user@example.com",
	Password: "hunter2",
}

// one listing page of the stub account: two normal orders, one
// refunded, one free
func stubListing(year string, page int, nextHref string) string {
	prefix := year + "-" + string(rune('0'+page))
	return listingPage(nextHref,
		orderFixture{
			number: prefix + "-normal-a",
			date:   "22. März 2016",
			total:  "EUR 12,50",
		},
		orderFixture{
			number:    prefix + "-normal-b",
			date:      "23. März 2016",
			total:     "EUR 34,99",
			shipment:  "Zugestellt am 25. März 2016",
			recipient: true,
		},
		orderFixture{
			number:   prefix + "-refunded",
			date:     "24. März 2016",
			total:    "EUR 20,00",
			shipment: "Erstattet am 30. März 2016",
		},
		orderFixture{
			number: prefix + "-free",
			date:   "25. März 2016",
			total:  "EUR 0,00",
		},
	)
}

func stubAccount() map[string]string {
	return map[string]string{
		testBase + core.LoginPath:          signinPage,
		testBase + "/home":                 homePage,
		testBase + "/gp/css/order-history": landingPage("year-2016", "year-2015"),
		testBase + "/orders/year-2016/1":   stubListing("year-2016", 1, "/orders/year-2016/2"),
		testBase + "/orders/year-2016/2":   stubListing("year-2016", 2, ""),
		testBase + "/orders/year-2015/1":   stubListing("year-2015", 1, "/orders/year-2015/2"),
		testBase + "/orders/year-2015/2":   stubListing("year-2015", 2, ""),
	}
}

func stubSubmit(selector string, fields map[string]string) string {
	if selector == "form[name=signIn]" {
		return "/home"
	}
	return "/orders/" + fields["orderFilter"] + "/1"
}

func TestDownloadEndToEnd(t *testing.T) {
	browser := newFakeBrowser(stubAccount())
	browser.onSubmit = stubSubmit
	client := setupClient(t, browser)

	result, err := Download(context.Background(), client, testCreds, DownloadOptions{IncludeFree: false})
	require.NoError(t, err)

	// 2 normal orders kept per page x 2 pages x 2 years
	var numbers []string
	for _, order := range result {
		require.False(t, order.IsFree())
		require.NotContains(t, order.Number, "refunded")
		numbers = append(numbers, order.Number)
	}
	diff := cmp.Diff([]string{
		"year-2016-1-normal-a", "year-2016-1-normal-b",
		"year-2016-2-normal-a", "year-2016-2-normal-b",
		"year-2015-1-normal-a", "year-2015-1-normal-b",
		"year-2015-2-normal-a", "year-2015-2-normal-b",
	}, numbers)
	if diff != "" {
		t.Fatal(diff)
	}
}

func TestDownloadIncludeFree(t *testing.T) {
	browser := newFakeBrowser(stubAccount())
	browser.onSubmit = stubSubmit
	client := setupClient(t, browser)

	result, err := Download(context.Background(), client, testCreds, DownloadOptions{IncludeFree: true})
	require.NoError(t, err)
	require.Len(t, result, 12)

	free := 0
	for _, order := range result {
		require.NotContains(t, order.Number, "refunded")
		if order.IsFree() {
			free++
		}
	}
	require.Equal(t, 4, free)
}

func TestDownloadSuppressesDuplicates(t *testing.T) {
	// the same order shows up on both pages, as happens when the
	// listing shifts under the pagination
	duplicated := orderFixture{
		number: "304-7777777-7777777",
		date:   "1. Juni 2016",
		total:  "EUR 49,99",
	}
	browser := newFakeBrowser(map[string]string{
		testBase + core.LoginPath:          signinPage,
		testBase + "/home":                 homePage,
		testBase + "/gp/css/order-history": landingPage("year-2016"),
		testBase + "/orders/year-2016/1":   listingPage("/orders/year-2016/2", duplicated),
		testBase + "/orders/year-2016/2":   listingPage("", duplicated),
	})
	browser.onSubmit = stubSubmit
	client := setupClient(t, browser)

	result, err := Download(context.Background(), client, testCreds, DownloadOptions{})
	require.NoError(t, err)
	require.Len(t, result, 1)
}

func TestDownloadAuthFailure(t *testing.T) {
	browser := newFakeBrowser(map[string]string{
		testBase + core.LoginPath: signinPage,
		testBase + "/failed":      failedPage,
	})
	browser.onSubmit = func(selector string, fields map[string]string) string {
		return "/failed"
	}
	client := setupClient(t, browser)

	result, err := Download(context.Background(), client, testCreds, DownloadOptions{})

	var authErr *core.AuthError
	require.ErrorAs(t, err, &authErr)
	require.Empty(t, result)

	// no listing page may be fetched after a rejected login
	for _, visited := range browser.visited {
		require.False(t, strings.Contains(visited, "order"), visited)
	}
}

func TestDownloadKeepsPartialResults(t *testing.T) {
	browser := newFakeBrowser(stubAccount())
	browser.onSubmit = stubSubmit
	browser.failures[testBase+"/orders/year-2016/2"] = fetchRetries + 1
	client := setupClient(t, browser)

	result, err := Download(context.Background(), client, testCreds, DownloadOptions{})

	var navErr *NavigationError
	require.ErrorAs(t, err, &navErr)

	// the first page of year-2016 was already accumulated
	var numbers []string
	for _, order := range result {
		numbers = append(numbers, order.Number)
	}
	diff := cmp.Diff([]string{"year-2016-1-normal-a", "year-2016-1-normal-b"}, numbers)
	if diff != "" {
		t.Fatal(diff)
	}
}
