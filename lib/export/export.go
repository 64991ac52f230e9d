package export

import (
	"encoding/json"
	"os"
	"strings"

	"amazon-order-export/lib/scrapers/amazon/orders"
)

// DefaultDelimiter separates the columns of the CSV-like output.
const DefaultDelimiter = "|"

type jsonOrder struct {
	Number      string      `json:"order_number"`
	Date        string      `json:"order_date"`
	Total       json.Number `json:"order_total"`
	DetailsLink string      `json:"order_details_link"`
}

// ToJSON serializes the orders as a pretty-printed JSON array. When
// path is non-empty the output also replaces that file's contents.
// The serialized string is returned either way.
func ToJSON(records []orders.Order, path string) (string, error) {
	rows := make([]jsonOrder, len(records))
	for i, o := range records {
		rows[i] = jsonOrder{
			Number:      o.Number,
			Date:        o.Date,
			Total:       json.Number(o.Total.String()),
			DetailsLink: o.DetailsLink,
		}
	}
	buf, err := json.MarshalIndent(rows, "", "    ")
	if err != nil {
		return "", err
	}
	return write(string(buf), path)
}

// ToCSV serializes the orders as delimiter-separated lines in the
// column order date, total, number, details link, without a header
// row. An empty delimiter means DefaultDelimiter. Fields are not
// quoted or escaped, a field containing the delimiter corrupts its
// row silently.
func ToCSV(records []orders.Order, delimiter string, path string) (string, error) {
	if delimiter == "" {
		delimiter = DefaultDelimiter
	}
	var out strings.Builder
	for _, o := range records {
		out.WriteString(strings.Join([]string{
			o.Date,
			o.Total.String(),
			o.Number,
			o.DetailsLink,
		}, delimiter))
		out.WriteByte('\n')
	}
	return write(out.String(), path)
}

func write(content, path string) (string, error) {
	if path == "" {
		return content, nil
	}
	err := os.WriteFile(path, []byte(content), 0644)
	if err != nil {
		return content, err
	}
	return content, nil
}
