package orders

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Order is one purchase from the account's order history. It is built
// by the extractor from one listing entry and read-only afterwards.
type Order struct {
	Number      string
	Date        string
	Total       decimal.Decimal
	DetailsLink string
}

func (o Order) IsFree() bool {
	return o.Total.IsZero()
}

// ParseError reports a raw field value that does not match the pattern
// expected for it.
type ParseError struct {
	Raw string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed currency amount: %q", e.Raw)
}

// order totals as rendered by the german storefront:
// "EUR 12,50", "EUR 1.234,56", "€ 5,00"
var totalPattern = regexp.MustCompile(`^(?:EUR|€)\s*([0-9][0-9.]*(?:,[0-9]{1,2})?)$`)

// ParseTotal converts a german-locale currency string into a decimal
// amount. A missing or unrecognizable value is a *ParseError, never
// a zero amount.
func ParseTotal(raw string) (decimal.Decimal, error) {
	groups := totalPattern.FindStringSubmatch(strings.TrimSpace(raw))
	if groups == nil {
		return decimal.Decimal{}, &ParseError{Raw: raw}
	}
	normalized := strings.ReplaceAll(groups[1], ".", "")
	normalized = strings.ReplaceAll(normalized, ",", ".")
	total, err := decimal.NewFromString(normalized)
	if err != nil {
		return decimal.Decimal{}, &ParseError{Raw: raw}
	}
	return total, nil
}

// marker the storefront renders in a shipment status once the order has
// been refunded. matched case-sensitively, the site capitalizes it.
const refundedMarker = "Erstattet"

// IsRefunded reports whether a shipment status text marks its order as
// refunded. Orders without a shipment fragment (digital goods) have no
// status text, the empty string is therefore "not refunded".
func IsRefunded(shipmentText string) bool {
	return strings.Contains(shipmentText, refundedMarker)
}
