package service

import (
	"context"
	"net/http"

	"kracheck-backend/internal/scrapers/itax"

	"connectrpc.com/connect"
)

const InvoiceServiceName = "kracheck.invoice.v1.InvoiceService"

const (
	GetInvoiceProcedure  = "/" + InvoiceServiceName + "/GetInvoice"
	GetInvoicesProcedure = "/" + InvoiceServiceName + "/GetInvoices"
)

// failures carry their kind in this header so clients can rebuild an
// *itax.Failure, the connect code alone can't tell a network error apart
// from an unexpected one.
const failureKindHeader = "Kracheck-Failure-Kind"

type GetInvoiceRequest struct {
	InvoiceNumber string `json:"invoice_number"`
}

type GetInvoiceResponse struct {
	Invoice itax.ExtractedFields `json:"invoice"`
}

type GetInvoicesRequest struct {
	InvoiceNumbers []string `json:"invoice_numbers"`
}

type GetInvoicesResponse struct {
	Results []InvoiceResult `json:"results"`
}

// Mount registers the REST routes, the health check and the connect
// procedures on mux.
func (s Service) Mount(mux *http.ServeMux, opts ...connect.HandlerOption) {
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /invoice/{invoice_number}", s.requireAccessToken(s.handleGetInvoice))
	mux.HandleFunc("POST /invoices/details", s.requireAccessToken(s.handleGetInvoices))

	opts = append([]connect.HandlerOption{connect.WithCodec(jsonCodec{})}, opts...)
	if s.accessToken != "" {
		opts = append(opts, connect.WithInterceptors(NewAccessTokenInterceptor(s.accessToken)))
	}
	mux.Handle(GetInvoiceProcedure, connect.NewUnaryHandler(GetInvoiceProcedure, s.connectGetInvoice, opts...))
	mux.Handle(GetInvoicesProcedure, connect.NewUnaryHandler(GetInvoicesProcedure, s.connectGetInvoices, opts...))
}

func (s Service) connectGetInvoice(ctx context.Context, req *connect.Request[GetInvoiceRequest]) (*connect.Response[GetInvoiceResponse], error) {
	fields, err := s.GetInvoice(ctx, req.Msg.InvoiceNumber)
	if err != nil {
		return nil, connectError(err)
	}
	return connect.NewResponse(&GetInvoiceResponse{Invoice: fields}), nil
}

func (s Service) connectGetInvoices(ctx context.Context, req *connect.Request[GetInvoicesRequest]) (*connect.Response[GetInvoicesResponse], error) {
	results := s.GetInvoices(ctx, req.Msg.InvoiceNumbers)
	return connect.NewResponse(&GetInvoicesResponse{Results: results}), nil
}

func connectCode(kind itax.ErrorKind) connect.Code {
	switch kind {
	case itax.DataNotFound, itax.StructureMismatch:
		return connect.CodeNotFound
	case itax.Timeout:
		return connect.CodeDeadlineExceeded
	}
	return connect.CodeInternal
}

func connectError(err error) *connect.Error {
	kind, ok := itax.KindOf(err)
	connectErr := connect.NewError(connectCode(kind), err)
	if ok {
		connectErr.Meta().Set(failureKindHeader, kind.String())
	}
	return connectErr
}
