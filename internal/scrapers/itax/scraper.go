package itax

import (
	"context"
	"fmt"

	"kracheck-backend/internal/components/assert"
	"kracheck-backend/internal/components/telemetry"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const (
	report_scraper_lookup   = "scraper.lookup"
	report_scraper_classify = "scraper.classify"
	report_scraper_extract  = "scraper.extract"
	report_scraper_echo     = "scraper.validate-echo"
)

var tracer = otel.Tracer("kracheck.scrapers.itax")

// Scraper runs the fetch, classify, extract, validate pipeline for invoice
// numbers.
type Scraper struct {
	client  *Client
	lookups metric.Int64Counter
	tel     telemetry.API
}

func NewScraper(client *Client, tel telemetry.API) *Scraper {
	assert.NotNil(client)
	assert.NotNil(tel)

	lookups, err := otel.Meter("kracheck.scrapers.itax").Int64Counter(
		"itax.lookups",
		metric.WithDescription("invoice lookups by outcome"),
	)
	if err != nil {
		tel.ReportBroken(report_scraper_lookup, fmt.Errorf("create lookups counter: %w", err))
	}

	return &Scraper{
		client:  client,
		lookups: lookups,
		tel:     telemetry.NewScopedAPI("itax", tel),
	}
}

// Lookup scrapes a single invoice. It never returns an error directly,
// failures are carried in Result.Err as a *Failure.
func (s *Scraper) Lookup(ctx context.Context, invoiceNumber string) (result Result) {
	ctx, span := tracer.Start(ctx, "Lookup", trace.WithAttributes(
		attribute.String("invoice_number", invoiceNumber),
	))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			s.tel.ReportBroken(report_scraper_lookup, err, invoiceNumber)
			result = Result{
				InvoiceNumber: invoiceNumber,
				Err:           unexpectedFailure(invoiceNumber, err),
			}
		}

		outcome := "success"
		if kind, failed := KindOf(result.Err); failed {
			outcome = kind.String()
			span.RecordError(result.Err)
			span.SetStatus(codes.Error, outcome)
		}
		if s.lookups != nil {
			s.lookups.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", outcome)))
		}
	}()

	return s.lookup(ctx, invoiceNumber)
}

func (s *Scraper) lookup(ctx context.Context, invoiceNumber string) Result {
	result := Result{InvoiceNumber: invoiceNumber}

	page, err := s.client.Fetch(ctx, invoiceNumber)
	if err != nil {
		result.Err = err
		return result
	}
	s.tel.ReportDebug("fetched page", invoiceNumber, page.Url, page.Size)

	doc, err := page.Document()
	if err != nil {
		s.tel.ReportBroken(report_scraper_lookup, fmt.Errorf("parse page: %w", err), invoiceNumber)
		result.Err = unexpectedFailure(invoiceNumber, err)
		return result
	}

	class := Classify(doc)
	if class.Class == ErrorPage {
		if class.Ambiguous {
			s.tel.ReportWarning(
				report_scraper_classify,
				"error text found next to the results table, treating as not found",
				invoiceNumber,
				class.Message,
			)
		}
		result.Err = notFoundFailure(invoiceNumber, class.Message)
		return result
	}

	extraction := Extract(doc)
	for f, source := range extraction.Sources {
		s.tel.ReportDebug("extracted field", invoiceNumber, f.Label(), source)
	}

	err = validate(invoiceNumber, extraction.Fields)
	if err != nil {
		s.tel.ReportBroken(report_scraper_extract, err, invoiceNumber, page.Url)
		result.Err = err
		return result
	}

	extracted := extraction.Fields.Get(ControlUnitInvoiceNumber)
	mismatch, similarity := echoMismatch(invoiceNumber, extracted)
	if mismatch {
		s.tel.ReportWarning(
			report_scraper_echo,
			fmt.Errorf("extracted invoice number (%s) doesn't match requested number (%s)", extracted, invoiceNumber),
			similarity,
		)
	}

	result.Fields = extraction.Fields
	result.Mismatch = mismatch
	return result
}

// LookupBatch runs Lookup for every invoice number and returns the results in
// the same order. How many fetches run at once is bounded by the client.
// `onDone` is optional, it is called as each item finishes and may be called
// from several goroutines at once.
func (s *Scraper) LookupBatch(ctx context.Context, invoiceNumbers []string, onDone func(index int, result Result)) []Result {
	results := make([]Result, len(invoiceNumbers))
	if len(invoiceNumbers) == 0 {
		return results
	}

	ctx, span := tracer.Start(ctx, "LookupBatch", trace.WithAttributes(
		attribute.Int("count", len(invoiceNumbers)),
	))
	defer span.End()

	// items never fail the group, a failure is just another result
	var group errgroup.Group
	for i, invoiceNumber := range invoiceNumbers {
		group.Go(func() error {
			result := s.Lookup(ctx, invoiceNumber)
			results[i] = result
			if onDone != nil {
				onDone(i, result)
			}
			return nil
		})
	}
	_ = group.Wait()

	return results
}
