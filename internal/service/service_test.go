package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"kracheck-backend/internal/components/telemetry"
	"kracheck-backend/internal/scrapers/itax"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/require"
)

type fakeScraper struct {
	results map[string]itax.Result
}

func (f fakeScraper) Lookup(_ context.Context, invoiceNumber string) itax.Result {
	result, ok := f.results[invoiceNumber]
	if !ok {
		return itax.Result{
			InvoiceNumber: invoiceNumber,
			Err: &itax.Failure{
				Kind:          itax.DataNotFound,
				InvoiceNumber: invoiceNumber,
				Message:       "Invoice details not found: Invalid Invoice Number",
			},
		}
	}
	result.InvoiceNumber = invoiceNumber
	return result
}

func (f fakeScraper) LookupBatch(ctx context.Context, invoiceNumbers []string, onDone func(int, itax.Result)) []itax.Result {
	out := make([]itax.Result, len(invoiceNumbers))
	for i, n := range invoiceNumbers {
		out[i] = f.Lookup(ctx, n)
		if onDone != nil {
			onDone(i, out[i])
		}
	}
	return out
}

func failed(kind itax.ErrorKind, message string) itax.Result {
	return itax.Result{Err: &itax.Failure{Kind: kind, Message: message}}
}

func sampleFields() itax.ExtractedFields {
	var fields itax.ExtractedFields
	fields.Set(itax.ControlUnitInvoiceNumber, "0010195720000234911")
	fields.Set(itax.TraderSystemInvoiceNo, "INV-2291")
	fields.Set(itax.InvoiceDate, "14/03/2024")
	fields.Set(itax.TotalTaxableAmount, "10,000.00")
	fields.Set(itax.TotalTaxAmount, "1,600.00")
	fields.Set(itax.TotalInvoiceAmount, "11,600.00")
	fields.Set(itax.SupplierName, "ACME SUPPLIES LIMITED")
	return fields
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	return newTestServerWithToken(t, "")
}

func newTestServerWithToken(t *testing.T, token string) *httptest.Server {
	t.Helper()
	scraper := fakeScraper{results: map[string]itax.Result{
		"0010195720000234911": {Fields: sampleFields()},
		"slow":                failed(itax.Timeout, "request to KRA portal timed out for slow"),
		"down":                failed(itax.NetworkError, "network or HTTP error for down: connection refused"),
		"broken":              failed(itax.StructureMismatch, "Could not find expected invoice data on the page: structure changed or fields missing"),
		"weird":               failed(itax.Unexpected, "an unexpected error occurred during scraping for weird: panic"),
	}}

	mux := http.NewServeMux()
	NewService(scraper, telemetry.SlogAPI{}).WithAccessToken(token).Mount(mux)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func readBody(t *testing.T, res *http.Response) string {
	t.Helper()
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return string(body)
}

func TestHealthz(t *testing.T) {
	server := newTestServer(t)
	res, err := http.Get(server.URL + "/healthz")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, "ok", readBody(t, res))
}

func TestRestGetInvoice(t *testing.T) {
	server := newTestServer(t)
	res, err := http.Get(server.URL + "/invoice/0010195720000234911")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode)

	body := readBody(t, res)
	require.True(t, strings.HasPrefix(body, `{"Control Unit Invoice Number":"0010195720000234911",`), body)

	var decoded map[string]string
	require.NoError(t, json.Unmarshal([]byte(body), &decoded))
	require.Equal(t, sampleFields().Map(), decoded)
}

func TestRestGetInvoiceErrors(t *testing.T) {
	server := newTestServer(t)

	cases := []struct {
		invoiceNumber string
		status        int
		detail        string
	}{
		{"unknown", http.StatusNotFound, "Invoice details not found: Invalid Invoice Number"},
		{"broken", http.StatusNotFound, "Could not find expected invoice data on the page: structure changed or fields missing"},
		{"slow", http.StatusGatewayTimeout, "Request to KRA portal timed out."},
		{"down", http.StatusInternalServerError, "Network or HTTP error fetching data from KRA: network or HTTP error for down: connection refused"},
		{"weird", http.StatusInternalServerError, "An unexpected error occurred: an unexpected error occurred during scraping for weird: panic"},
	}

	for _, test := range cases {
		t.Run(test.invoiceNumber, func(t *testing.T) {
			res, err := http.Get(server.URL + "/invoice/" + test.invoiceNumber)
			require.NoError(t, err)
			require.Equal(t, test.status, res.StatusCode)

			var body restErrorBody
			require.NoError(t, json.Unmarshal([]byte(readBody(t, res)), &body))
			require.Equal(t, test.detail, body.Detail)
		})
	}
}

func TestRestGetInvoices(t *testing.T) {
	server := newTestServer(t)
	res, err := http.Post(
		server.URL+"/invoices/details",
		"application/json",
		strings.NewReader(`{"invoice_numbers": ["0010195720000234911", "slow", "unknown", "weird"]}`),
	)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode)

	var body restBatchResponse
	require.NoError(t, json.Unmarshal([]byte(readBody(t, res)), &body))
	require.Len(t, body.Results, 4)

	require.Equal(t, "0010195720000234911", body.Results[0].InvoiceNumber)
	require.Equal(t, StatusSuccess, body.Results[0].Status)
	require.NotNil(t, body.Results[0].Data)
	require.Equal(t, sampleFields(), *body.Results[0].Data)
	require.Nil(t, body.Results[0].Error)

	require.Equal(t, StatusError, body.Results[1].Status)
	require.Nil(t, body.Results[1].Data)
	require.Equal(t, "Request error: request to KRA portal timed out for slow", *body.Results[1].Error)

	require.Equal(t, "Invoice details not found: Invalid Invoice Number", *body.Results[2].Error)
	require.Equal(t, "Unexpected error: an unexpected error occurred during scraping for weird: panic", *body.Results[3].Error)
}

func TestRestGetInvoicesEmpty(t *testing.T) {
	server := newTestServer(t)
	res, err := http.Post(server.URL+"/invoices/details", "application/json", strings.NewReader(`{"invoice_numbers": []}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.JSONEq(t, `{"results": []}`, readBody(t, res))
}

func TestRestGetInvoicesInvalidBody(t *testing.T) {
	server := newTestServer(t)
	for _, body := range []string{`{"invoice_numbers": [`, `{}`, `{"invoice_numbers": "123"}`} {
		res, err := http.Post(server.URL+"/invoices/details", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		require.Equal(t, http.StatusUnprocessableEntity, res.StatusCode, body)
		readBody(t, res)
	}
}

func TestConnectGetInvoice(t *testing.T) {
	server := newTestServer(t)
	client := NewClient(server.Client(), server.URL)

	fields, err := client.GetInvoice(context.Background(), "0010195720000234911")
	require.NoError(t, err)
	require.Equal(t, sampleFields(), fields)
}

func TestConnectGetInvoiceErrors(t *testing.T) {
	server := newTestServer(t)
	client := NewClient(server.Client(), server.URL)

	cases := []struct {
		invoiceNumber string
		kind          itax.ErrorKind
		code          connect.Code
	}{
		{"unknown", itax.DataNotFound, connect.CodeNotFound},
		{"broken", itax.StructureMismatch, connect.CodeNotFound},
		{"slow", itax.Timeout, connect.CodeDeadlineExceeded},
		{"down", itax.NetworkError, connect.CodeInternal},
		{"weird", itax.Unexpected, connect.CodeInternal},
	}

	for _, test := range cases {
		t.Run(test.invoiceNumber, func(t *testing.T) {
			_, err := client.GetInvoice(context.Background(), test.invoiceNumber)
			require.Error(t, err)

			var failure *itax.Failure
			require.True(t, errors.As(err, &failure))
			require.Equal(t, test.kind, failure.Kind)
			require.Equal(t, test.invoiceNumber, failure.InvoiceNumber)
			require.Equal(t, test.code, connect.CodeOf(err))
		})
	}
}

func TestConnectGetInvoices(t *testing.T) {
	server := newTestServer(t)
	client := NewClient(server.Client(), server.URL+"/")

	results, err := client.GetInvoices(context.Background(), []string{"down", "0010195720000234911"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "Request error: network or HTTP error for down: connection refused", *results[0].Error)
	require.Equal(t, StatusSuccess, results[1].Status)
	require.Equal(t, "ACME SUPPLIES LIMITED", results[1].Data.Get(itax.SupplierName))

	results, err = client.GetInvoices(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestFailureFromConnectWithoutKind(t *testing.T) {
	failure := failureFromConnect("1", connect.NewError(connect.CodeDeadlineExceeded, errors.New("deadline")))
	require.Equal(t, itax.Timeout, failure.Kind)
	require.Equal(t, "deadline", failure.Message)

	failure = failureFromConnect("1", errors.New("dial tcp: refused"))
	require.Equal(t, itax.NetworkError, failure.Kind)
}

func TestAccessToken(t *testing.T) {
	server := newTestServerWithToken(t, "secret")

	res, err := http.Get(server.URL + "/healthz")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode)
	readBody(t, res)

	res, err = http.Get(server.URL + "/invoice/0010195720000234911")
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)
	readBody(t, res)

	req, err := http.NewRequest(http.MethodGet, server.URL+"/invoice/0010195720000234911", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer secret")
	res, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode)
	readBody(t, res)

	_, err = NewClient(server.Client(), server.URL).GetInvoice(context.Background(), "0010195720000234911")
	require.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))

	_, err = NewClient(
		server.Client(),
		server.URL,
		connect.WithInterceptors(NewAccessTokenInterceptor("wrong")),
	).GetInvoices(context.Background(), []string{"1"})
	require.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))

	fields, err := NewClient(
		server.Client(),
		server.URL,
		connect.WithInterceptors(NewAccessTokenInterceptor("secret")),
	).GetInvoice(context.Background(), "0010195720000234911")
	require.NoError(t, err)
	require.Equal(t, sampleFields(), fields)
}

func TestVerifyAccessToken(t *testing.T) {
	require.NoError(t, verifyAccessToken("secret", "Bearer secret"))
	require.Error(t, verifyAccessToken("secret", "secret"))
	require.Error(t, verifyAccessToken("secret", "Bearer secre"))
	require.Error(t, verifyAccessToken("secret", ""))
}
