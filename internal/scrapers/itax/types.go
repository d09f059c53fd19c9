package itax

import (
	"bytes"
	"encoding/json"
	"time"

	"kracheck-backend/pkg/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

// Field is one of the fixed set of values scraped off an invoice page.
type Field int

const (
	ControlUnitInvoiceNumber Field = iota
	TraderSystemInvoiceNo
	InvoiceDate
	TotalTaxableAmount
	TotalTaxAmount
	TotalInvoiceAmount
	SupplierName

	fieldCount
)

var fieldLabels = [fieldCount]string{
	ControlUnitInvoiceNumber: "Control Unit Invoice Number",
	TraderSystemInvoiceNo:    "Trader System Invoice No",
	InvoiceDate:              "Invoice Date",
	TotalTaxableAmount:       "Total Taxable Amount",
	TotalTaxAmount:           "Total Tax Amount",
	TotalInvoiceAmount:       "Total Invoice Amount",
	SupplierName:             "Supplier Name",
}

// AllFields lists every field in output order.
var AllFields = []Field{
	ControlUnitInvoiceNumber,
	TraderSystemInvoiceNo,
	InvoiceDate,
	TotalTaxableAmount,
	TotalTaxAmount,
	TotalInvoiceAmount,
	SupplierName,
}

// Label is the text the portal uses to label the field, it doubles as the
// field's key in json.
func (f Field) Label() string {
	if f < 0 || f >= fieldCount {
		return ""
	}
	return fieldLabels[f]
}

func (f Field) String() string {
	return f.Label()
}

// ExtractedFields is an ordered mapping from Field to its scraped value, an
// empty string means the value was not found.
type ExtractedFields struct {
	values [fieldCount]string
}

func (e ExtractedFields) Get(f Field) string {
	return e.values[f]
}

func (e *ExtractedFields) Set(f Field, value string) {
	e.values[f] = value
}

func (e ExtractedFields) Has(f Field) bool {
	return e.values[f] != ""
}

// hasCritical is true when every field required for a successful lookup is present.
func (e ExtractedFields) hasCritical() bool {
	return e.Has(ControlUnitInvoiceNumber) && e.Has(SupplierName)
}

// Map returns the fields keyed by their label.
func (e ExtractedFields) Map() map[string]string {
	out := make(map[string]string, fieldCount)
	for _, f := range AllFields {
		out[f.Label()] = e.values[f]
	}
	return out
}

// MarshalJSON encodes the fields as an object whose keys are in AllFields order.
func (e ExtractedFields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range AllFields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Label())
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(e.values[f])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON accepts an object keyed by field labels, unknown keys are ignored.
func (e *ExtractedFields) UnmarshalJSON(data []byte) error {
	var raw map[string]string
	err := json.Unmarshal(data, &raw)
	if err != nil {
		return err
	}
	*e = ExtractedFields{}
	for _, f := range AllFields {
		e.values[f] = raw[f.Label()]
	}
	return nil
}

// FetchedPage is the raw response for one invoice number.
type FetchedPage struct {
	Url         string
	RetrievedAt time.Time
	Size        int
	ContentType string
	Body        []byte
}

// Document parses the page body, decoding it according to its charset.
func (p FetchedPage) Document() (*goquery.Document, error) {
	r, err := htmlutil.DecodeBody(p.Body, p.ContentType)
	if err != nil {
		return nil, err
	}
	return goquery.NewDocumentFromReader(r)
}

// Result is the outcome of looking up a single invoice number. Err is nil on
// success, otherwise it is a *Failure.
type Result struct {
	InvoiceNumber string
	Fields        ExtractedFields
	Err           error
	// Mismatch is set when the portal echoed back a different invoice number
	// than the one requested, it does not make the lookup fail.
	Mismatch bool
}

func (r Result) OK() bool {
	return r.Err == nil
}
