package service

import (
	"context"

	"kracheck-backend/internal/components/assert"
	"kracheck-backend/internal/components/telemetry"
	"kracheck-backend/internal/scrapers/itax"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("kracheck.service")

const (
	report_rest_decode = "rest.decode"
	report_rest_write  = "rest.write"
)

// Scraper is the subset of *itax.Scraper the service needs.
//
// note: fault injection point
type Scraper interface {
	Lookup(ctx context.Context, invoiceNumber string) itax.Result
	LookupBatch(ctx context.Context, invoiceNumbers []string, onDone func(index int, result itax.Result)) []itax.Result
}

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// InvoiceResult is one entry of a batch response.
type InvoiceResult struct {
	InvoiceNumber string                `json:"invoice_number"`
	Status        string                `json:"status"`
	Data          *itax.ExtractedFields `json:"data"`
	Error         *string               `json:"error"`
}

// NewInvoiceResult converts a scraper result into its wire form.
func NewInvoiceResult(result itax.Result) InvoiceResult {
	if result.Err != nil {
		message := batchMessage(result.Err)
		return InvoiceResult{
			InvoiceNumber: result.InvoiceNumber,
			Status:        StatusError,
			Error:         &message,
		}
	}
	fields := result.Fields
	return InvoiceResult{
		InvoiceNumber: result.InvoiceNumber,
		Status:        StatusSuccess,
		Data:          &fields,
	}
}

// batchMessage prefixes transport failures and unexpected ones so a caller
// can tell them apart from the portal saying there's no such invoice.
func batchMessage(err error) string {
	kind, _ := itax.KindOf(err)
	switch kind {
	case itax.DataNotFound, itax.StructureMismatch:
		return err.Error()
	case itax.Timeout, itax.NetworkError:
		return "Request error: " + err.Error()
	}
	return "Unexpected error: " + err.Error()
}

type Service struct {
	scraper Scraper
	tel     telemetry.API
	// empty means every route is public
	accessToken string
}

func NewService(scraper Scraper, tel telemetry.API) Service {
	assert.NotNil(scraper)
	assert.NotNil(tel)
	return Service{
		scraper: scraper,
		tel:     telemetry.NewScopedAPI("service", tel),
	}
}

// WithAccessToken returns a copy of the service whose routes and procedures
// (except the health check) require `Authorization: Bearer <token>`.
func (s Service) WithAccessToken(token string) Service {
	s.accessToken = token
	return s
}

// GetInvoice looks up a single invoice, the returned error is always a
// *itax.Failure.
func (s Service) GetInvoice(ctx context.Context, invoiceNumber string) (itax.ExtractedFields, error) {
	ctx, span := tracer.Start(ctx, "service:GetInvoice", trace.WithAttributes(
		attribute.String("invoice_number", invoiceNumber),
	))
	defer span.End()

	result := s.scraper.Lookup(ctx, invoiceNumber)
	if result.Err != nil {
		span.RecordError(result.Err)
		span.SetStatus(codes.Error, "lookup failed")
		return itax.ExtractedFields{}, result.Err
	}
	return result.Fields, nil
}

// GetInvoices looks up every invoice number, failures are reported per item
// so the call itself cannot fail.
func (s Service) GetInvoices(ctx context.Context, invoiceNumbers []string) []InvoiceResult {
	ctx, span := tracer.Start(ctx, "service:GetInvoices", trace.WithAttributes(
		attribute.Int("count", len(invoiceNumbers)),
	))
	defer span.End()

	results := s.scraper.LookupBatch(ctx, invoiceNumbers, nil)
	out := make([]InvoiceResult, len(results))
	for i, r := range results {
		out[i] = NewInvoiceResult(r)
	}
	return out
}
