package itax

import (
	"html"
	"regexp"
	"strings"

	"kracheck-backend/pkg/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

// how many cells past the adjacent one are searched when a value is missing
const lookahead = 3

// the tax and invoice totals sometimes sit one or two columns away from their label
var scansForward = map[Field]bool{
	TotalTaxAmount:     true,
	TotalInvoiceAmount: true,
}

const (
	sourceTableWalk      = "table-walk"
	sourceLabelProximity = "label-proximity"
	sourceRawPattern     = "raw-pattern"
	sourceDefault        = "default"
)

// strategy reads whatever fields it can find off a page, strategies never
// look at each other's output.
type strategy struct {
	name    string
	extract func(doc *goquery.Document) ExtractedFields
}

// cascade is tried in order until both critical fields are filled.
var cascade = []strategy{
	{name: sourceTableWalk, extract: tableWalk},
	{name: sourceLabelProximity, extract: labelProximity},
	{name: sourceRawPattern, extract: rawPattern},
}

// Extraction is the output of Extract.
type Extraction struct {
	Fields ExtractedFields
	// Sources maps every filled field to the strategy that filled it.
	Sources map[Field]string
}

// Extract runs the cascade over a page classified as DataPresent. The
// result may be incomplete, it is up to the caller to validate it.
func Extract(doc *goquery.Document) Extraction {
	out := Extraction{Sources: map[Field]string{}}

	for _, s := range cascade {
		if out.Fields.hasCritical() {
			break
		}
		found := s.extract(doc)
		for _, f := range AllFields {
			if out.Fields.Has(f) || !found.Has(f) {
				continue
			}
			out.Fields.Set(f, found.Get(f))
			out.Sources[f] = s.name
		}
	}

	if !out.Fields.Has(TotalTaxAmount) {
		out.Fields.Set(TotalTaxAmount, "0")
		out.Sources[TotalTaxAmount] = sourceDefault
	}

	return out
}

// matchLabel finds the field whose label is contained in `text`.
func matchLabel(text string) (Field, bool) {
	for _, f := range AllFields {
		if strings.Contains(text, f.Label()) {
			return f, true
		}
	}
	return 0, false
}

func cellText(cell *goquery.Selection) string {
	return htmlutil.NormalizeText(cell.Text())
}

// isLabelCell reports whether a cell holds one of the known field names.
// Values are sometimes bold too, so bold text alone doesn't make a label.
func isLabelCell(cell *goquery.Selection) bool {
	_, ok := matchLabel(cellText(cell))
	return ok
}

// cellLabel returns the field named by a cell's own <b> child. Layout cells
// that wrap a whole nested table are never labels.
func cellLabel(cell *goquery.Selection) (Field, bool) {
	if cell.Find("table").Length() > 0 {
		return 0, false
	}
	bold := cell.ChildrenFiltered("b")
	if bold.Length() == 0 {
		return 0, false
	}
	return matchLabel(htmlutil.NormalizeText(bold.First().Text()))
}

// isLayoutRow is true for rows of an outer table whose cells hold the
// actual result tables.
func isLayoutRow(cells *goquery.Selection) bool {
	return cells.Find("table").Length() > 0
}

// scanCells returns the first non-empty text among at most `limit` cells
// starting at `start`, it gives up when it reaches the next label.
// limit < 0 means no limit.
func scanCells(cells *goquery.Selection, start, limit int) string {
	for i := start; i < cells.Length(); i++ {
		if limit >= 0 && i >= start+limit {
			break
		}
		cell := cells.Eq(i)
		if isLabelCell(cell) {
			break
		}
		text := cellText(cell)
		if text != "" {
			return text
		}
	}
	return ""
}

// tableWalk reads label/value pairs off the results table, labels are the
// cells with a <b> child and values are the cells right after. Rows of
// layout tables are skipped, their nested rows are walked on their own.
func tableWalk(doc *goquery.Document) ExtractedFields {
	var out ExtractedFields

	doc.Find("div table tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.ChildrenFiltered("td, th")
		if cells.Length() < 2 || isLayoutRow(cells) {
			return
		}

		for i := 0; i < cells.Length()-1; i++ {
			field, ok := cellLabel(cells.Eq(i))
			if !ok || out.Has(field) {
				continue
			}

			value := cellText(cells.Eq(i + 1))
			if value == "" && scansForward[field] {
				value = scanCells(cells, i+2, lookahead)
			}
			if value != "" {
				out.Set(field, value)
			}
		}
	})

	return out
}

// labelProximity looks for the label text anywhere on the page and reads the
// value from whatever comes after the label's cell.
func labelProximity(doc *goquery.Document) ExtractedFields {
	var out ExtractedFields
	for _, f := range AllFields {
		value := findValueAfterLabel(doc, f.Label())
		if value != "" {
			out.Set(f, value)
		}
	}
	return out
}

func findValueAfterLabel(doc *goquery.Document, label string) string {
	var value string

	doc.Find("body *").Not("script, style").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		ownText := htmlutil.NormalizeText(htmlutil.OwnText(s.Get(0)))
		if !strings.Contains(ownText, label) {
			return true
		}

		container := s.Closest("td, th")
		if container.Length() == 0 {
			container = s
		}

		// the next sibling is read as is, the few after it stop at a label
		siblings := container.NextAll()
		if siblings.Length() > 0 {
			value = cellText(siblings.First())
		}
		if value == "" {
			value = scanCells(siblings, 1, lookahead)
		}
		if value != "" {
			return false
		}

		// everything after the label in the same row
		row := container.Closest("tr")
		if row.Length() > 0 {
			cells := row.ChildrenFiltered("td, th")
			idx := cells.IndexOfSelection(container)
			if idx >= 0 {
				value = scanCells(cells, idx+1, -1)
			}
		}
		return value == ""
	})

	return value
}

var rawPatterns = map[Field]*regexp.Regexp{
	ControlUnitInvoiceNumber: rawLabelPattern(ControlUnitInvoiceNumber),
	SupplierName:             rawLabelPattern(SupplierName),
}

func rawLabelPattern(f Field) *regexp.Regexp {
	return regexp.MustCompile(regexp.QuoteMeta(f.Label()) + `\s*</b>\s*</td>\s*<td[^>]*>\s*([^<]+)`)
}

// rawPattern is the last resort, it matches the serialized markup directly
// and only for the critical fields.
func rawPattern(doc *goquery.Document) ExtractedFields {
	var out ExtractedFields

	markup, err := doc.Html()
	if err != nil {
		return out
	}
	for _, f := range []Field{ControlUnitInvoiceNumber, SupplierName} {
		groups := rawPatterns[f].FindStringSubmatch(markup)
		if len(groups) < 2 {
			continue
		}
		value := htmlutil.NormalizeText(html.UnescapeString(groups[1]))
		if value != "" {
			out.Set(f, value)
		}
	}
	return out
}
