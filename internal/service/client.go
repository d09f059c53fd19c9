package service

import (
	"context"
	"errors"
	"strings"

	"kracheck-backend/internal/scrapers/itax"

	"connectrpc.com/connect"
)

// Client calls a remote InvoiceService.
type Client struct {
	getInvoice  *connect.Client[GetInvoiceRequest, GetInvoiceResponse]
	getInvoices *connect.Client[GetInvoicesRequest, GetInvoicesResponse]
}

func NewClient(httpClient connect.HTTPClient, baseUrl string, opts ...connect.ClientOption) Client {
	baseUrl = strings.TrimRight(baseUrl, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(jsonCodec{})}, opts...)
	return Client{
		getInvoice: connect.NewClient[GetInvoiceRequest, GetInvoiceResponse](
			httpClient,
			baseUrl+GetInvoiceProcedure,
			opts...,
		),
		getInvoices: connect.NewClient[GetInvoicesRequest, GetInvoicesResponse](
			httpClient,
			baseUrl+GetInvoicesProcedure,
			opts...,
		),
	}
}

// GetInvoice returns the fields of one invoice, a failed lookup comes back
// as a *itax.Failure.
func (c Client) GetInvoice(ctx context.Context, invoiceNumber string) (itax.ExtractedFields, error) {
	res, err := c.getInvoice.CallUnary(ctx, connect.NewRequest(&GetInvoiceRequest{
		InvoiceNumber: invoiceNumber,
	}))
	if err != nil {
		return itax.ExtractedFields{}, failureFromConnect(invoiceNumber, err)
	}
	return res.Msg.Invoice, nil
}

func (c Client) GetInvoices(ctx context.Context, invoiceNumbers []string) ([]InvoiceResult, error) {
	res, err := c.getInvoices.CallUnary(ctx, connect.NewRequest(&GetInvoicesRequest{
		InvoiceNumbers: invoiceNumbers,
	}))
	if err != nil {
		return nil, err
	}
	return res.Msg.Results, nil
}

func failureFromConnect(invoiceNumber string, err error) *itax.Failure {
	failure := &itax.Failure{
		InvoiceNumber: invoiceNumber,
		Message:       err.Error(),
		Err:           err,
	}

	var connectErr *connect.Error
	if !errors.As(err, &connectErr) {
		failure.Kind = itax.NetworkError
		return failure
	}
	failure.Message = connectErr.Message()

	kind, ok := itax.ParseErrorKind(connectErr.Meta().Get(failureKindHeader))
	if ok {
		failure.Kind = kind
		return failure
	}
	switch connectErr.Code() {
	case connect.CodeNotFound:
		failure.Kind = itax.DataNotFound
	case connect.CodeDeadlineExceeded:
		failure.Kind = itax.Timeout
	default:
		failure.Kind = itax.NetworkError
	}
	return failure
}
