package itax

import (
	"fmt"
	"regexp"
	"strings"

	"kracheck-backend/pkg/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

type PageClass int

const (
	DataPresent PageClass = iota
	ErrorPage
)

func (c PageClass) String() string {
	if c == ErrorPage {
		return "error_page"
	}
	return "data_present"
}

// Classification is the verdict on a fetched page.
type Classification struct {
	Class PageClass
	// Message is the user facing reason for an ErrorPage, it carries the
	// error text scraped from the portal.
	Message string
	// Ambiguous is set when the page had error text but also had the results
	// table, it is still treated as an ErrorPage.
	Ambiguous bool
}

// the portal returns 200 OK for invalid numbers and shows one of these instead.
var errorPhrases = regexp.MustCompile(`(?i)Invalid Invoice Number|Invoice details not found|Error occurred`)

const (
	resultsTableSelector = `table[width="100%"]`
	errorMessageSelector = `div.errorMessage`
	noDataFoundText      = "No Data Found"
)

// Classify decides whether a page carries invoice data or is the portal's
// way of saying there is none.
func Classify(doc *goquery.Document) Classification {
	if len(doc.Nodes) == 0 {
		return Classification{Class: DataPresent}
	}
	root := doc.Nodes[0]

	matched := htmlutil.FindTextNode(root, errorPhrases.MatchString)
	if matched == nil {
		return Classification{Class: DataPresent}
	}

	errorText := htmlutil.NormalizeText(matched.Data)
	errorDiv := htmlutil.NormalizeText(doc.Find(errorMessageSelector).First().Text())
	if errorDiv != "" {
		errorText = errorDiv
	}

	hasTable := doc.Find(resultsTableSelector).Length() > 0
	noData := strings.Contains(htmlutil.GetRenderedText(root), noDataFoundText)
	if !hasTable || noData {
		return Classification{
			Class:   ErrorPage,
			Message: fmt.Sprintf("Invoice details not found: %s", errorText),
		}
	}

	// the error text is taken as authoritative over the presence of the table
	return Classification{
		Class:     ErrorPage,
		Message:   fmt.Sprintf("Invoice details not found or issue reported: %s", errorText),
		Ambiguous: true,
	}
}
