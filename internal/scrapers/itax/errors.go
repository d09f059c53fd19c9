package itax

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a lookup failed.
type ErrorKind int

const (
	// Timeout means the portal did not answer within the configured timeout.
	Timeout ErrorKind = iota + 1
	// NetworkError covers transport failures and non-2xx responses.
	NetworkError
	// DataNotFound means the portal reported that there is no such invoice.
	DataNotFound
	// StructureMismatch means the page looked like it had data but the
	// required fields could not be located, usually because the markup changed.
	StructureMismatch
	// Unexpected is anything else, like a page that could not be parsed at all.
	Unexpected
)

func (k ErrorKind) String() string {
	switch k {
	case Timeout:
		return "timeout"
	case NetworkError:
		return "network_error"
	case DataNotFound:
		return "data_not_found"
	case StructureMismatch:
		return "structure_mismatch"
	case Unexpected:
		return "unexpected"
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// ParseErrorKind is the inverse of ErrorKind.String.
func ParseErrorKind(s string) (ErrorKind, bool) {
	for k := Timeout; k <= Unexpected; k++ {
		if k.String() == s {
			return k, true
		}
	}
	return 0, false
}

// Failure is the error type of every failed lookup.
type Failure struct {
	Kind          ErrorKind
	InvoiceNumber string
	Message       string
	Err           error
}

func (f *Failure) Error() string {
	return f.Message
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// KindOf returns the kind of a *Failure anywhere in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var failure *Failure
	if errors.As(err, &failure) {
		return failure.Kind, true
	}
	return 0, false
}

func timeoutFailure(invoiceNumber string, err error) *Failure {
	return &Failure{
		Kind:          Timeout,
		InvoiceNumber: invoiceNumber,
		Message:       fmt.Sprintf("request to KRA portal timed out for %s", invoiceNumber),
		Err:           err,
	}
}

func networkFailure(invoiceNumber string, err error) *Failure {
	return &Failure{
		Kind:          NetworkError,
		InvoiceNumber: invoiceNumber,
		Message:       fmt.Sprintf("network or HTTP error for %s: %s", invoiceNumber, err.Error()),
		Err:           err,
	}
}

func notFoundFailure(invoiceNumber, message string) *Failure {
	return &Failure{
		Kind:          DataNotFound,
		InvoiceNumber: invoiceNumber,
		Message:       message,
	}
}

func structureFailure(invoiceNumber string) *Failure {
	return &Failure{
		Kind:          StructureMismatch,
		InvoiceNumber: invoiceNumber,
		Message:       "Could not find expected invoice data on the page: structure changed or fields missing",
	}
}

func unexpectedFailure(invoiceNumber string, err error) *Failure {
	return &Failure{
		Kind:          Unexpected,
		InvoiceNumber: invoiceNumber,
		Message:       fmt.Sprintf("an unexpected error occurred during scraping for %s: %s", invoiceNumber, err.Error()),
		Err:           err,
	}
}
