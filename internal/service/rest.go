package service

import (
	"encoding/json"
	"fmt"
	"net/http"

	"kracheck-backend/internal/scrapers/itax"
)

type restErrorBody struct {
	Detail string `json:"detail"`
}

// restBatchRequest uses a pointer so a missing list can be told apart from
// an empty one.
type restBatchRequest struct {
	InvoiceNumbers *[]string `json:"invoice_numbers"`
}

type restBatchResponse struct {
	Results []InvoiceResult `json:"results"`
}

// restError maps a failed single lookup to a status code and detail message.
func restError(err error) (int, string) {
	kind, _ := itax.KindOf(err)
	switch kind {
	case itax.DataNotFound, itax.StructureMismatch:
		return http.StatusNotFound, err.Error()
	case itax.Timeout:
		return http.StatusGatewayTimeout, "Request to KRA portal timed out."
	case itax.NetworkError:
		return http.StatusInternalServerError, fmt.Sprintf("Network or HTTP error fetching data from KRA: %s", err.Error())
	}
	return http.StatusInternalServerError, fmt.Sprintf("An unexpected error occurred: %s", err.Error())
}

func (s Service) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(body)
	if err != nil {
		s.tel.ReportBroken(report_rest_write, err)
	}
}

func (s Service) handleGetInvoice(w http.ResponseWriter, r *http.Request) {
	fields, err := s.GetInvoice(r.Context(), r.PathValue("invoice_number"))
	if err != nil {
		status, detail := restError(err)
		s.writeJSON(w, status, restErrorBody{Detail: detail})
		return
	}
	s.writeJSON(w, http.StatusOK, fields)
}

func (s Service) handleGetInvoices(w http.ResponseWriter, r *http.Request) {
	var req restBatchRequest
	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		s.tel.ReportDebug(report_rest_decode, err)
		s.writeJSON(w, http.StatusUnprocessableEntity, restErrorBody{
			Detail: fmt.Sprintf("invalid request body: %s", err.Error()),
		})
		return
	}
	if req.InvoiceNumbers == nil {
		s.writeJSON(w, http.StatusUnprocessableEntity, restErrorBody{
			Detail: "invalid request body: invoice_numbers is required",
		})
		return
	}

	results := s.GetInvoices(r.Context(), *req.InvoiceNumbers)
	s.writeJSON(w, http.StatusOK, restBatchResponse{Results: results})
}
